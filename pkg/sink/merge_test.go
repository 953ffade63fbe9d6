package sink

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fieldpipe/fieldpipe/pkg/errors"
)

func TestTargetQualified(t *testing.T) {
	target := Target{Database: "RAW", Schema: "FIELDROUTES", Table: "CUSTOMER"}
	assert.Equal(t, "RAW.FIELDROUTES.CUSTOMER", target.Qualified())
}

func TestBuildMergeSQL(t *testing.T) {
	spec := MergeSpec{
		Target:      Target{Database: "RAW", Schema: "FIELDROUTES", Table: "DIM_CUSTOMER"},
		StagingName: "STG_CUSTOMER",
		KeyColumns:  []string{"CUSTOMER_ID", "OFFICE_ID"},
		Columns:     []string{"CUSTOMER_ID", "OFFICE_ID", "FNAME", "LNAME", "STATUS"},
	}

	stmt, err := BuildMergeSQL(spec)
	require.NoError(t, err)

	assert.Equal(t,
		"MERGE INTO RAW.FIELDROUTES.DIM_CUSTOMER t\n"+
			"USING RAW.FIELDROUTES.STG_CUSTOMER s\n"+
			"ON t.CUSTOMER_ID = s.CUSTOMER_ID AND t.OFFICE_ID = s.OFFICE_ID\n"+
			"WHEN MATCHED THEN UPDATE SET t.FNAME = s.FNAME, t.LNAME = s.LNAME, t.STATUS = s.STATUS\n"+
			"WHEN NOT MATCHED THEN INSERT (CUSTOMER_ID, OFFICE_ID, FNAME, LNAME, STATUS) "+
			"VALUES (s.CUSTOMER_ID, s.OFFICE_ID, s.FNAME, s.LNAME, s.STATUS)",
		stmt)
}

func TestBuildMergeSQLKeysOnly(t *testing.T) {
	spec := MergeSpec{
		Target:      Target{Database: "RAW", Schema: "FIELDROUTES", Table: "BRIDGE"},
		StagingName: "STG_BRIDGE",
		KeyColumns:  []string{"A", "B"},
		Columns:     []string{"A", "B"},
	}

	stmt, err := BuildMergeSQL(spec)
	require.NoError(t, err)
	assert.NotContains(t, stmt, "WHEN MATCHED", "no non-key columns means nothing to update")
	assert.Contains(t, stmt, "WHEN NOT MATCHED THEN INSERT (A, B) VALUES (s.A, s.B)")
}

func TestBuildMergeSQLValidation(t *testing.T) {
	tests := []struct {
		name string
		spec MergeSpec
	}{
		{"missing staging", MergeSpec{
			Target:     Target{Table: "T"},
			KeyColumns: []string{"K"}, Columns: []string{"K", "V"},
		}},
		{"missing keys", MergeSpec{
			Target: Target{Table: "T"}, StagingName: "S",
			Columns: []string{"K", "V"},
		}},
		{"missing columns", MergeSpec{
			Target: Target{Table: "T"}, StagingName: "S",
			KeyColumns: []string{"K"},
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := BuildMergeSQL(tt.spec)
			require.Error(t, err)
			assert.True(t, errors.IsType(err, errors.ErrorTypeValidation))
		})
	}
}
