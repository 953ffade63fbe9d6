// Package snowflake lands extracted batches in Snowflake over
// database/sql with the gosnowflake driver. Records are stored as
// VARIANT payloads alongside their provenance columns.
package snowflake

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	gojson "github.com/goccy/go-json"
	sf "github.com/snowflakedb/gosnowflake"
	"go.uber.org/zap"

	"github.com/fieldpipe/fieldpipe/pkg/config"
	"github.com/fieldpipe/fieldpipe/pkg/errors"
	"github.com/fieldpipe/fieldpipe/pkg/logger"
	"github.com/fieldpipe/fieldpipe/pkg/models"
	"github.com/fieldpipe/fieldpipe/pkg/sink"
)

const defaultChunkSize = 500

// Sink writes batches into Snowflake tables of the shape
// (OFFICE_ID NUMBER, EXTRACT_TIMESTAMP TIMESTAMP_TZ, RECORD VARIANT).
type Sink struct {
	db        *sql.DB
	chunkSize int
	log       *zap.Logger
}

// New opens a Snowflake connection from warehouse config.
func New(cfg config.WarehouseConfig) (*Sink, error) {
	dsn, err := sf.DSN(&sf.Config{
		Account:   cfg.Account,
		User:      cfg.User,
		Password:  cfg.Password,
		Database:  cfg.Database,
		Schema:    cfg.Schema,
		Warehouse: cfg.Warehouse,
		Role:      cfg.Role,
	})
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "build snowflake dsn")
	}
	db, err := sql.Open("snowflake", dsn)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeSink, "open snowflake connection")
	}
	chunk := cfg.InsertChunkSize
	if chunk <= 0 {
		chunk = defaultChunkSize
	}
	return &Sink{db: db, chunkSize: chunk, log: logger.Get()}, nil
}

// LoadBatch inserts the batch into the target table in chunks. On
// overwrite the table is truncated first; either way the table is
// created when missing.
func (s *Sink) LoadBatch(ctx context.Context, batch *models.Batch, target sink.Target, mode sink.Mode) (int, error) {
	if err := s.ensureTable(ctx, target); err != nil {
		return 0, err
	}
	if mode == sink.ModeOverwrite {
		if _, err := s.db.ExecContext(ctx, fmt.Sprintf("TRUNCATE TABLE %s", target.Qualified())); err != nil {
			return 0, errors.Wrap(err, errors.ErrorTypeSink,
				fmt.Sprintf("truncate %s", target.Qualified()))
		}
	}

	loaded := 0
	for start := 0; start < batch.Size(); start += s.chunkSize {
		end := start + s.chunkSize
		if end > batch.Size() {
			end = batch.Size()
		}
		if err := s.insertChunk(ctx, target, batch.Records[start:end]); err != nil {
			return loaded, err
		}
		loaded = end
	}
	s.log.Debug("batch loaded",
		zap.String("table", target.Qualified()),
		zap.Int("rows", loaded),
		zap.String("mode", string(mode)))
	return loaded, nil
}

// insertChunk issues one multi-row insert. PARSE_JSON is only legal in
// a SELECT, so rows go through a VALUES subquery.
func (s *Sink) insertChunk(ctx context.Context, target sink.Target, records []*models.Record) error {
	placeholders := make([]string, 0, len(records))
	args := make([]interface{}, 0, len(records)*3)
	for _, rec := range records {
		payload, err := gojson.Marshal(rec.Data)
		if err != nil {
			return errors.Wrap(err, errors.ErrorTypeSink, "encode record payload")
		}
		placeholders = append(placeholders, "(?, ?, ?)")
		args = append(args,
			rec.Metadata.OfficeID,
			rec.Metadata.ExtractedAt,
			string(payload))
	}

	stmt := fmt.Sprintf(
		"INSERT INTO %s (OFFICE_ID, EXTRACT_TIMESTAMP, RECORD) SELECT column1, column2, PARSE_JSON(column3) FROM VALUES %s",
		target.Qualified(), strings.Join(placeholders, ", "))
	if _, err := s.db.ExecContext(ctx, stmt, args...); err != nil {
		return errors.Wrap(err, errors.ErrorTypeSink,
			fmt.Sprintf("insert into %s", target.Qualified()))
	}
	return nil
}

func (s *Sink) ensureTable(ctx context.Context, target sink.Target) error {
	stmt := fmt.Sprintf(
		"CREATE TABLE IF NOT EXISTS %s (OFFICE_ID NUMBER, EXTRACT_TIMESTAMP TIMESTAMP_TZ, RECORD VARIANT)",
		target.Qualified())
	if _, err := s.db.ExecContext(ctx, stmt); err != nil {
		return errors.Wrap(err, errors.ErrorTypeSink,
			fmt.Sprintf("create %s", target.Qualified()))
	}
	return nil
}

// RunMerge upserts staged rows into the target with an SCD-1 MERGE.
func (s *Sink) RunMerge(ctx context.Context, spec sink.MergeSpec) error {
	stmt, err := sink.BuildMergeSQL(spec)
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, stmt); err != nil {
		return errors.Wrap(err, errors.ErrorTypeSink,
			fmt.Sprintf("merge into %s", spec.Target.Qualified()))
	}
	return nil
}

// Close releases the connection pool.
func (s *Sink) Close() error {
	return s.db.Close()
}
