package extract

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fieldpipe/fieldpipe/pkg/errors"
	"github.com/fieldpipe/fieldpipe/pkg/fieldapi"
	"github.com/fieldpipe/fieldpipe/pkg/tenant"
)

type fakeAPI struct {
	searchResult  *fieldapi.SearchResult
	searchErr     error
	searchWindows []map[string]string
	searchInline  []bool

	records    map[int64]map[string]interface{}
	getErr     error
	getCalls   [][]int64
	failOnCall int // 1-based batch-get call index to fail on, 0 = never
}

func (f *fakeAPI) Search(ctx context.Context, creds tenant.Credentials, entity string, window map[string]string, includeData bool) (*fieldapi.SearchResult, error) {
	f.searchWindows = append(f.searchWindows, window)
	f.searchInline = append(f.searchInline, includeData)
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	return f.searchResult, nil
}

func (f *fakeAPI) GetByIDs(ctx context.Context, creds tenant.Credentials, entity string, ids []int64) ([]map[string]interface{}, error) {
	f.getCalls = append(f.getCalls, append([]int64(nil), ids...))
	if f.failOnCall > 0 && len(f.getCalls) == f.failOnCall {
		return nil, f.getErr
	}
	out := make([]map[string]interface{}, 0, len(ids))
	for _, id := range ids {
		out = append(out, f.records[id])
	}
	return out, nil
}

func record(id int64) map[string]interface{} {
	return map[string]interface{}{"id": id}
}

func TestExtractResolvedThenChunks(t *testing.T) {
	api := &fakeAPI{
		searchResult: &fieldapi.SearchResult{
			Resolved:      []map[string]interface{}{record(1), record(2)},
			UnresolvedIDs: []int64{101, 102, 103},
		},
		records: map[int64]map[string]interface{}{
			101: record(101), 102: record(102), 103: record(103),
		},
	}
	ex := New(api, 2, 1000)

	creds := tenant.Credentials{OfficeID: 7}
	window := TimeWindow{Start: time.Now().Add(-time.Hour), End: time.Now()}
	records, err := ex.Extract(context.Background(), creds, "customer", window, true)
	require.NoError(t, err)

	require.Len(t, records, 5)
	assert.Equal(t, record(1), records[0])
	assert.Equal(t, record(2), records[1])
	assert.Equal(t, record(101), records[2])
	assert.Equal(t, record(102), records[3])
	assert.Equal(t, record(103), records[4])

	// ceil(3/2) = 2 batch-get calls, in ID-list order
	require.Len(t, api.getCalls, 2)
	assert.Equal(t, []int64{101, 102}, api.getCalls[0])
	assert.Equal(t, []int64{103}, api.getCalls[1])

	require.Len(t, api.searchInline, 1)
	assert.True(t, api.searchInline[0])
	require.Len(t, api.searchWindows, 1)
	assert.Contains(t, api.searchWindows[0], "dateUpdatedStart")
	assert.Contains(t, api.searchWindows[0], "dateUpdatedEnd")
}

func TestExtractBatchCallCount(t *testing.T) {
	tests := []struct {
		name      string
		ids       int
		batchSize int
		wantCalls int
	}{
		{"empty", 0, 100, 0},
		{"one chunk exact", 100, 100, 1},
		{"one over", 101, 100, 2},
		{"many", 1000, 100, 10},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ids := make([]int64, tt.ids)
			recs := make(map[int64]map[string]interface{}, tt.ids)
			for i := range ids {
				ids[i] = int64(i + 1)
				recs[int64(i+1)] = record(int64(i + 1))
			}
			api := &fakeAPI{
				searchResult: &fieldapi.SearchResult{UnresolvedIDs: ids},
				records:      recs,
			}
			ex := New(api, tt.batchSize, 1000)

			records, err := ex.Extract(context.Background(), tenant.Credentials{}, "payment", TimeWindow{}, false)
			require.NoError(t, err)
			assert.Len(t, records, tt.ids)
			assert.Len(t, api.getCalls, tt.wantCalls)
		})
	}
}

func TestExtractEmptyResultIsNotError(t *testing.T) {
	api := &fakeAPI{searchResult: &fieldapi.SearchResult{}}
	ex := New(api, 100, 1000)

	records, err := ex.Extract(context.Background(), tenant.Credentials{}, "appointment", TimeWindow{}, false)
	require.NoError(t, err)
	assert.Empty(t, records)
	assert.Empty(t, api.getCalls)
}

func TestExtractUnboundedWindowOmitsFilter(t *testing.T) {
	api := &fakeAPI{searchResult: &fieldapi.SearchResult{}}
	ex := New(api, 100, 1000)

	_, err := ex.Extract(context.Background(), tenant.Credentials{}, "office", TimeWindow{}, true)
	require.NoError(t, err)
	require.Len(t, api.searchWindows, 1)
	assert.Nil(t, api.searchWindows[0])
}

func TestExtractChunkFailureDoesNotRerunSearch(t *testing.T) {
	api := &fakeAPI{
		searchResult: &fieldapi.SearchResult{UnresolvedIDs: []int64{1, 2, 3, 4}},
		getErr:       errors.New(errors.ErrorTypeExtraction, "request failed after 3 retries"),
		failOnCall:   2,
		records:      map[int64]map[string]interface{}{1: record(1), 2: record(2)},
	}
	ex := New(api, 2, 1000)

	_, err := ex.Extract(context.Background(), tenant.Credentials{}, "payment", TimeWindow{}, false)
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeExtraction))
	// one search, and the failing chunk is the last call made
	assert.Len(t, api.searchWindows, 1)
	assert.Len(t, api.getCalls, 2)
}

func TestExtractSearchFailurePropagates(t *testing.T) {
	api := &fakeAPI{searchErr: errors.New(errors.ErrorTypeExtraction, "request failed after 3 retries")}
	ex := New(api, 100, 1000)

	_, err := ex.Extract(context.Background(), tenant.Credentials{}, "customer", TimeWindow{}, true)
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeExtraction))
	assert.Empty(t, api.getCalls)
}
