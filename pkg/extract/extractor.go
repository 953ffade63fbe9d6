package extract

import (
	"context"

	"go.uber.org/zap"

	"github.com/fieldpipe/fieldpipe/pkg/fieldapi"
	"github.com/fieldpipe/fieldpipe/pkg/logger"
	"github.com/fieldpipe/fieldpipe/pkg/tenant"
)

// API is the subset of the FieldRoutes client the extractor drives.
type API interface {
	Search(ctx context.Context, creds tenant.Credentials, entity string, window map[string]string, includeData bool) (*fieldapi.SearchResult, error)
	GetByIDs(ctx context.Context, creds tenant.Credentials, entity string, ids []int64) ([]map[string]interface{}, error)
}

// Extractor runs the two-phase extraction protocol for a single entity
// and tenant: a search call that returns small records inline plus the
// IDs it declined to resolve, followed by chunked batch-get calls for
// the remainder. It holds no per-run state and is safe to reuse across
// tenants and entities.
type Extractor struct {
	api       API
	batchSize int
	inlineCap int
	log       *zap.Logger
}

// New builds an Extractor. batchSize caps the number of IDs per
// batch-get request. inlineCap is the observed ceiling on records the
// API inlines per search; it only informs logging when a predicted-small
// result set turns out not to be, never pagination.
func New(api API, batchSize, inlineCap int) *Extractor {
	if batchSize <= 0 {
		batchSize = 1000
	}
	if inlineCap <= 0 {
		inlineCap = 1000
	}
	return &Extractor{
		api:       api,
		batchSize: batchSize,
		inlineCap: inlineCap,
		log:       logger.Get(),
	}
}

// Extract pulls all records for one entity within the given window.
// predictSmall asks the API to resolve records inline on the search
// call; entities with large payloads always go through batch-get.
// Resolved records come first, batch-get records follow in ID order.
// An empty result is not an error.
func (e *Extractor) Extract(ctx context.Context, creds tenant.Credentials, entity string, window TimeWindow, predictSmall bool) ([]map[string]interface{}, error) {
	var filter map[string]string
	if !window.Unbounded() {
		filter = fieldapi.WindowFilter(window.Start, window.End)
	}

	res, err := e.api.Search(ctx, creds, entity, filter, predictSmall)
	if err != nil {
		return nil, err
	}

	records := res.Resolved
	ids := res.UnresolvedIDs

	if predictSmall && len(ids) > 0 && len(records) >= e.inlineCap {
		e.log.Warn("result set predicted small but hit the inline resolution cap",
			zap.String("entity", entity),
			zap.Int("office_id", creds.OfficeID),
			zap.Int("resolved", len(records)),
			zap.Int("unresolved_ids", len(ids)))
	}

	e.log.Debug("search complete",
		zap.String("entity", entity),
		zap.Int("office_id", creds.OfficeID),
		zap.Int("resolved", len(records)),
		zap.Int("unresolved_ids", len(ids)))

	for start := 0; start < len(ids); start += e.batchSize {
		end := start + e.batchSize
		if end > len(ids) {
			end = len(ids)
		}
		chunk, err := e.api.GetByIDs(ctx, creds, entity, ids[start:end])
		if err != nil {
			return nil, err
		}
		records = append(records, chunk...)
	}

	return records, nil
}
