// Package fieldapi is the client for the upstream field-service REST API.
// Each tenant (office) has its own endpoint and key/token credentials; the
// client is tenant-agnostic and takes credentials per call.
//
// Every outbound call shares one retry mechanism: transient failures
// (network errors and non-2xx responses) are retried with exponential
// backoff up to the configured budget, then promoted to an extraction
// error and propagated. Every successful call is followed by an
// unconditional throttle pause to respect the upstream rate limit.
package fieldapi

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	gojson "github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/fieldpipe/fieldpipe/pkg/errors"
	"github.com/fieldpipe/fieldpipe/pkg/logger"
	"github.com/fieldpipe/fieldpipe/pkg/metrics"
	"github.com/fieldpipe/fieldpipe/pkg/tenant"
)

// Time layout for the dateUpdated filter fields.
const filterTimeLayout = "2006-01-02 15:04:05"

// SearchResult is the two-phase search response: records the API inlined,
// plus IDs it matched but did not inline.
type SearchResult struct {
	Resolved      []map[string]interface{}
	UnresolvedIDs []int64
}

// Client issues search and batch-get calls against a tenant's endpoint.
type Client struct {
	httpClient *http.Client
	retry      *RetryPolicy
	throttle   time.Duration
	sleep      sleeper
	logger     *zap.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithSleeper overrides the pause function. Test hook.
func WithSleeper(s sleeper) Option {
	return func(c *Client) { c.sleep = s }
}

// NewClient creates an API client with the given retry and throttle
// settings.
func NewClient(retry *RetryPolicy, throttle time.Duration, requestTimeout time.Duration, opts ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{
			Timeout: requestTimeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		retry:    retry,
		throttle: throttle,
		sleep:    defaultSleeper,
		logger:   logger.Get().With(zap.String("component", "fieldapi")),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Search issues the windowed search for an entity. The window filter is
// omitted entirely for a full refresh. includeData asks the API to inline
// record payloads and should only be set when the caller expects a small
// result set.
func (c *Client) Search(ctx context.Context, creds tenant.Credentials, entity string, window map[string]string, includeData bool) (*SearchResult, error) {
	body := make(map[string]interface{}, len(window)+2)
	for k, v := range window {
		body[k] = v
	}
	body["officeIDs"] = creds.OfficeID
	if includeData {
		body["includeData"] = 1
	} else {
		body["includeData"] = 0
	}

	url := fmt.Sprintf("%s/%s/search", creds.BaseURL, entity)
	raw, err := c.do(ctx, creds, "search", url, body)
	if err != nil {
		return nil, err
	}

	var envelope map[string]gojson.RawMessage
	if err := gojson.Unmarshal(raw, &envelope); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeData, "failed to decode search response")
	}

	result := &SearchResult{}
	if resolved, ok := envelope["resolvedObjects"]; ok {
		if err := gojson.Unmarshal(resolved, &result.Resolved); err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeData, "failed to decode resolved objects")
		}
	}
	if ids, ok := envelope[entity+"IDsNoDataExported"]; ok {
		if err := gojson.Unmarshal(ids, &result.UnresolvedIDs); err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeData, "failed to decode unresolved IDs")
		}
	}

	return result, nil
}

// GetByIDs fetches full records for a batch of IDs. An empty ID list
// returns immediately with no remote call.
func (c *Client) GetByIDs(ctx context.Context, creds tenant.Credentials, entity string, ids []int64) ([]map[string]interface{}, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	body := map[string]interface{}{
		entity + "IDs": ids,
		"officeIDs":    creds.OfficeID,
	}

	url := fmt.Sprintf("%s/%s/get", creds.BaseURL, entity)
	raw, err := c.do(ctx, creds, "get", url, body)
	if err != nil {
		return nil, err
	}

	var records []map[string]interface{}
	if err := gojson.Unmarshal(raw, &records); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeData, "failed to decode batch-get response")
	}

	return records, nil
}

// WindowFilter renders a time window as search body fields. A zero start
// and end means full refresh: no filter at all.
func WindowFilter(start, end time.Time) map[string]string {
	if start.IsZero() && end.IsZero() {
		return nil
	}
	return map[string]string{
		"dateUpdatedStart": start.UTC().Format(filterTimeLayout),
		"dateUpdatedEnd":   end.UTC().Format(filterTimeLayout),
	}
}

// do runs one logical call with the shared retry and throttle discipline.
// The throttle pause applies after success only; retries sleep the backoff
// interval instead.
func (c *Client) do(ctx context.Context, creds tenant.Credentials, op, url string, body interface{}) ([]byte, error) {
	payload, err := gojson.Marshal(body)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeData, "failed to encode request body")
	}

	var lastErr error
	for attempt := 0; attempt <= c.retry.MaxRetries; attempt++ {
		raw, err := c.once(ctx, creds, url, payload)
		if err == nil {
			metrics.APIRequests.WithLabelValues(op, "ok").Inc()
			if c.throttle > 0 {
				if serr := c.sleep(ctx, c.throttle); serr != nil {
					return nil, errors.Wrap(serr, errors.ErrorTypeTimeout, "cancelled during throttle pause")
				}
			}
			return raw, nil
		}

		lastErr = err
		metrics.APIRequests.WithLabelValues(op, "error").Inc()
		if !errors.IsRetryable(err) || attempt == c.retry.MaxRetries {
			break
		}

		delay := c.retry.Delay(attempt)
		c.logger.Warn("transient request failure, backing off",
			zap.String("op", op),
			zap.Int("office_id", creds.OfficeID),
			zap.Int("attempt", attempt+1),
			zap.Duration("delay", delay),
			zap.Error(err))
		metrics.APIRetries.WithLabelValues(op).Inc()
		if serr := c.sleep(ctx, delay); serr != nil {
			return nil, errors.Wrap(serr, errors.ErrorTypeTimeout, "cancelled during backoff")
		}
	}

	return nil, errors.Wrap(lastErr, errors.ErrorTypeExtraction,
		fmt.Sprintf("request failed after %d retries", c.retry.MaxRetries))
}

// once issues a single HTTP POST.
func (c *Client) once(ctx context.Context, creds tenant.Credentials, url string, payload []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeInternal, "failed to create request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("authenticationKey", creds.AuthKey)
	req.Header.Set("authenticationToken", creds.AuthToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConnection, "request failed")
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConnection, "failed to read response")
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, errors.New(errors.ErrorTypeConnection,
			fmt.Sprintf("unexpected status %d: %s", resp.StatusCode, truncate(raw, 256)))
	}

	return raw, nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
