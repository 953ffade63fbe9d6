package sink

import (
	"fmt"
	"strings"

	"github.com/fieldpipe/fieldpipe/pkg/errors"
)

// Qualified returns the dotted three-part table name.
func (t Target) Qualified() string {
	return fmt.Sprintf("%s.%s.%s", t.Database, t.Schema, t.Table)
}

// BuildMergeSQL renders the SCD-1 MERGE statement for a spec: matched
// rows have their non-key columns updated from staging, unmatched rows
// are inserted whole.
func BuildMergeSQL(spec MergeSpec) (string, error) {
	if spec.Target.Table == "" || spec.StagingName == "" {
		return "", errors.New(errors.ErrorTypeValidation, "merge requires target and staging tables")
	}
	if len(spec.KeyColumns) == 0 {
		return "", errors.New(errors.ErrorTypeValidation, "merge requires at least one key column")
	}
	if len(spec.Columns) == 0 {
		return "", errors.New(errors.ErrorTypeValidation, "merge requires at least one column")
	}

	keys := make(map[string]bool, len(spec.KeyColumns))
	onClauses := make([]string, 0, len(spec.KeyColumns))
	for _, k := range spec.KeyColumns {
		keys[k] = true
		onClauses = append(onClauses, fmt.Sprintf("t.%s = s.%s", k, k))
	}

	var updates []string
	for _, c := range spec.Columns {
		if keys[c] {
			continue
		}
		updates = append(updates, fmt.Sprintf("t.%s = s.%s", c, c))
	}

	staging := Target{Database: spec.Target.Database, Schema: spec.Target.Schema, Table: spec.StagingName}

	var b strings.Builder
	fmt.Fprintf(&b, "MERGE INTO %s t\nUSING %s s\nON %s\n",
		spec.Target.Qualified(), staging.Qualified(), strings.Join(onClauses, " AND "))
	if len(updates) > 0 {
		fmt.Fprintf(&b, "WHEN MATCHED THEN UPDATE SET %s\n", strings.Join(updates, ", "))
	}
	sourceCols := make([]string, 0, len(spec.Columns))
	for _, c := range spec.Columns {
		sourceCols = append(sourceCols, "s."+c)
	}
	fmt.Fprintf(&b, "WHEN NOT MATCHED THEN INSERT (%s) VALUES (%s)",
		strings.Join(spec.Columns, ", "), strings.Join(sourceCols, ", "))

	return b.String(), nil
}
