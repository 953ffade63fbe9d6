// Package fieldpipe extracts operational records from the FieldRoutes
// field-service REST API, one office (tenant) at a time, and loads them
// into a Snowflake or BigQuery warehouse.
//
// # Architecture
//
// The engine is built from four core components:
//
// 1. Tenant Registry (pkg/tenant): office credentials and per-office
// extraction watermarks, backed by a YAML file or a Postgres table.
//
// 2. Window Calculator (pkg/extract): derives the extraction time window
// from a tenant's watermark; full refreshes are unbounded.
//
// 3. Paginated Extractor (pkg/extract): drives the API's two-phase
// protocol, a windowed search followed by chunked batch-get calls for
// the IDs the search did not resolve inline.
//
// 4. Entity Processor (pkg/processor): iterates every registered office
// sequentially for one entity, tags each record with its office and the
// shared run timestamp, advances watermarks, and hands the combined
// batch to the sink.
//
// The API client (pkg/fieldapi) retries transient failures with
// exponential backoff and pauses unconditionally after each successful
// call to respect upstream rate limits. The scheduler (pkg/scheduler)
// runs the catalog nightly with dimensions loaded before facts, plus an
// hourly refresh of the high-churn fact tables.
//
// # Quick Start
//
//	fieldpipe run --entity appointment
//	fieldpipe run-group all --full
//	fieldpipe schedule
//
// Configuration lives in a single YAML file (see configs/fieldpipe.yml)
// with FIELDPIPE_* environment variable overrides.
package fieldpipe
