// Package extract implements the extraction core: the incremental window
// calculator and the paginated extractor that drives the two-phase
// search / batch-get protocol for one tenant at a time.
package extract

import (
	"time"
)

// Mode selects between incremental and full-refresh extraction.
type Mode string

const (
	// ModeIncremental extracts a bounded recent time window.
	ModeIncremental Mode = "incremental"
	// ModeFull extracts the entire dataset with no time filter.
	ModeFull Mode = "full"
)

// defaultLookback is applied when a tenant has no watermark yet.
const defaultLookback = 24 * time.Hour

// TimeWindow is the extraction window. The zero value means unbounded
// (full refresh, no filter applied).
type TimeWindow struct {
	Start time.Time
	End   time.Time
}

// Unbounded reports whether no time filter should be applied.
func (w TimeWindow) Unbounded() bool {
	return w.Start.IsZero() && w.End.IsZero()
}

// ComputeWindow derives the extraction window from a tenant's watermark.
// Pure: the watermark is never mutated. Incremental mode windows from the
// watermark (or now minus 24h when none exists) to now; full-refresh mode
// is unbounded regardless of watermark state.
func ComputeWindow(lastSuccessfulRun *time.Time, now time.Time, mode Mode) TimeWindow {
	if mode == ModeFull {
		return TimeWindow{}
	}
	start := now.Add(-defaultLookback)
	if lastSuccessfulRun != nil {
		start = *lastSuccessfulRun
	}
	return TimeWindow{Start: start, End: now}
}
