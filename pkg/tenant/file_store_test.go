package tenant

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fieldpipe/fieldpipe/pkg/errors"
)

const sampleConfig = `offices:
  - office_id: 101
    base_url: https://one.example.test/api
    auth_key: ${OFFICE_101_KEY}
    auth_token: ${OFFICE_101_TOKEN}
    last_successful_run_utc: "2024-03-14T01:00:00Z"
  - office_id: 202
    base_url: https://two.example.test/api
    auth_key: key-two
    auth_token: token-two
`

func writeSample(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "offices.yml")
	require.NoError(t, os.WriteFile(path, []byte(sampleConfig), 0o644))
	return path
}

func TestFileStoreLoadAll(t *testing.T) {
	t.Setenv("OFFICE_101_KEY", "secret-key")
	t.Setenv("OFFICE_101_TOKEN", "secret-token")

	store := NewFileStore(writeSample(t))
	configs, err := store.LoadAll(context.Background())
	require.NoError(t, err)
	require.Len(t, configs, 2)

	first := configs[0]
	assert.Equal(t, 101, first.Credentials.OfficeID)
	assert.Equal(t, "secret-key", first.Credentials.AuthKey)
	assert.Equal(t, "secret-token", first.Credentials.AuthToken)
	require.NotNil(t, first.Watermark.LastSuccessfulRun)
	assert.Equal(t, time.Date(2024, 3, 14, 1, 0, 0, 0, time.UTC), first.Watermark.LastSuccessfulRun.UTC())

	second := configs[1]
	assert.Equal(t, 202, second.Credentials.OfficeID)
	assert.Nil(t, second.Watermark.LastSuccessfulRun)
}

func TestFileStoreMissingFile(t *testing.T) {
	store := NewFileStore(filepath.Join(t.TempDir(), "nope.yml"))

	_, err := store.LoadAll(context.Background())
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))

	err = store.AdvanceWatermark(context.Background(), 101, time.Now())
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))
}

func TestFileStoreMalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "offices.yml")
	require.NoError(t, os.WriteFile(path, []byte("offices: [not closed"), 0o644))

	_, err := NewFileStore(path).LoadAll(context.Background())
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))
}

func TestAdvanceWatermark(t *testing.T) {
	path := writeSample(t)
	store := NewFileStore(path)

	to := time.Date(2024, 3, 15, 9, 30, 0, 0, time.UTC)
	require.NoError(t, store.AdvanceWatermark(context.Background(), 202, to))

	configs, err := store.LoadAll(context.Background())
	require.NoError(t, err)
	require.NotNil(t, configs[1].Watermark.LastSuccessfulRun)
	assert.Equal(t, to, configs[1].Watermark.LastSuccessfulRun.UTC())

	// the other office is untouched
	require.NotNil(t, configs[0].Watermark.LastSuccessfulRun)
	assert.Equal(t, time.Date(2024, 3, 14, 1, 0, 0, 0, time.UTC), configs[0].Watermark.LastSuccessfulRun.UTC())
}

func TestAdvanceWatermarkNeverRollsBack(t *testing.T) {
	path := writeSample(t)
	store := NewFileStore(path)

	past := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, store.AdvanceWatermark(context.Background(), 101, past))

	configs, err := store.LoadAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 3, 14, 1, 0, 0, 0, time.UTC), configs[0].Watermark.LastSuccessfulRun.UTC())
}

func TestAdvanceWatermarkUnknownOffice(t *testing.T) {
	store := NewFileStore(writeSample(t))

	err := store.AdvanceWatermark(context.Background(), 999, time.Now())
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeNotFound))
}

func TestAdvanceWatermarkPreservesPlaceholders(t *testing.T) {
	path := writeSample(t)
	store := NewFileStore(path)

	require.NoError(t, store.AdvanceWatermark(context.Background(), 202, time.Now()))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(raw), "${OFFICE_101_KEY}"),
		"credential placeholders must survive the rewrite")
}

func TestAdvanceWatermarkConcurrentWriters(t *testing.T) {
	path := writeSample(t)
	store := NewFileStore(path)

	base := time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = store.AdvanceWatermark(context.Background(), 202, base.Add(time.Duration(i)*time.Minute))
		}(i)
	}
	wg.Wait()

	configs, err := store.LoadAll(context.Background())
	require.NoError(t, err)
	require.NotNil(t, configs[1].Watermark.LastSuccessfulRun)
	assert.Equal(t, base.Add(19*time.Minute), configs[1].Watermark.LastSuccessfulRun.UTC())
}
