// Package sink defines the warehouse loading contract and shared SQL
// helpers. Concrete adapters live in the snowflake and bigquery
// subpackages.
package sink

import (
	"context"

	"github.com/fieldpipe/fieldpipe/pkg/models"
)

// Mode controls how a batch lands in the target table.
type Mode string

const (
	// ModeAppend inserts on top of existing rows.
	ModeAppend Mode = "append"
	// ModeOverwrite replaces the table contents before inserting.
	ModeOverwrite Mode = "overwrite"
)

// Target names a fully qualified warehouse table.
type Target struct {
	Database string
	Schema   string
	Table    string
}

// MergeSpec describes an SCD-1 upsert from a staging table into its
// target. Columns covers every column to copy; KeyColumns is the
// subset forming the match predicate.
type MergeSpec struct {
	Target      Target
	StagingName string
	KeyColumns  []string
	Columns     []string
}

// Sink loads extracted batches into a warehouse. Implementations are
// safe for sequential use by one processor run; they do not retry.
type Sink interface {
	// LoadBatch writes every record in the batch to the target table
	// and returns the number of rows loaded.
	LoadBatch(ctx context.Context, batch *models.Batch, target Target, mode Mode) (int, error)
	// RunMerge upserts staged rows into the target table.
	RunMerge(ctx context.Context, spec MergeSpec) error
	// Close releases the underlying warehouse connection.
	Close() error
}
