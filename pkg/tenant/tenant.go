// Package tenant provides the tenant registry: per-office credentials and
// incremental watermarks, loaded together and keyed by office ID.
//
// Two store backends are provided. The file store mirrors the upstream
// operational setup (a single YAML document, read wholesale and rewritten
// wholesale on every watermark update, serialized by an internal lock).
// The postgres store replaces the whole-file rewrite with an atomic
// per-office conditional update.
package tenant

import (
	"context"
	"time"
)

// Credentials identifies one office (tenant) in the source system.
// Immutable once loaded.
type Credentials struct {
	OfficeID  int    `yaml:"office_id"`
	BaseURL   string `yaml:"base_url"`
	AuthKey   string `yaml:"auth_key"`
	AuthToken string `yaml:"auth_token"`
}

// Watermark tracks the end of the last successfully extracted window for
// an office. Nil means the office has never completed an incremental run.
type Watermark struct {
	OfficeID          int
	LastSuccessfulRun *time.Time
}

// Config pairs an office's credentials with its watermark.
type Config struct {
	Credentials Credentials
	Watermark   Watermark
}

// Store is the tenant registry contract. Implementations must guarantee
// that AdvanceWatermark never moves a watermark backwards and that
// concurrent updates do not lose writes.
type Store interface {
	// LoadAll returns every configured tenant in stable order.
	LoadAll(ctx context.Context) ([]Config, error)

	// AdvanceWatermark moves the office's watermark forward to the given
	// time. Unknown offices fail loudly. Advancing to a time at or before
	// the current watermark is a no-op.
	AdvanceWatermark(ctx context.Context, officeID int, to time.Time) error
}
