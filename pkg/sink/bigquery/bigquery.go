// Package bigquery lands extracted batches in BigQuery. The warehouse
// config's database maps to the GCP project and its schema to the
// dataset.
package bigquery

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"

	bq "cloud.google.com/go/bigquery"
	gojson "github.com/goccy/go-json"
	"go.uber.org/zap"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/fieldpipe/fieldpipe/pkg/config"
	"github.com/fieldpipe/fieldpipe/pkg/errors"
	"github.com/fieldpipe/fieldpipe/pkg/logger"
	"github.com/fieldpipe/fieldpipe/pkg/models"
	"github.com/fieldpipe/fieldpipe/pkg/sink"
)

var tableSchema = bq.Schema{
	{Name: "office_id", Type: bq.IntegerFieldType, Required: true},
	{Name: "extract_timestamp", Type: bq.TimestampFieldType, Required: true},
	{Name: "record", Type: bq.JSONFieldType},
}

// Sink streams batches into BigQuery tables.
type Sink struct {
	client *bq.Client
	log    *zap.Logger
}

// New opens a BigQuery client for the configured project.
func New(ctx context.Context, cfg config.WarehouseConfig) (*Sink, error) {
	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	client, err := bq.NewClient(ctx, cfg.Database, opts...)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeSink, "open bigquery client")
	}
	return &Sink{client: client, log: logger.Get()}, nil
}

type row struct {
	rec *models.Record
}

// Save implements bigquery.ValueSaver.
func (r row) Save() (map[string]bq.Value, string, error) {
	payload, err := gojson.Marshal(r.rec.Data)
	if err != nil {
		return nil, "", err
	}
	return map[string]bq.Value{
		"office_id":         r.rec.Metadata.OfficeID,
		"extract_timestamp": r.rec.Metadata.ExtractedAt,
		"record":            string(payload),
	}, "", nil
}

// LoadBatch streams the batch through the table inserter. Overwrite
// drops and recreates the table, which is how BigQuery spells truncate
// for a streaming target.
func (s *Sink) LoadBatch(ctx context.Context, batch *models.Batch, target sink.Target, mode sink.Mode) (int, error) {
	table := s.client.DatasetInProject(target.Database, target.Schema).Table(target.Table)

	if mode == sink.ModeOverwrite {
		if err := table.Delete(ctx); err != nil && !isNotFound(err) {
			return 0, errors.Wrap(err, errors.ErrorTypeSink,
				fmt.Sprintf("drop table %s", target.Qualified()))
		}
		if err := table.Create(ctx, &bq.TableMetadata{Schema: tableSchema}); err != nil {
			return 0, errors.Wrap(err, errors.ErrorTypeSink,
				fmt.Sprintf("create table %s", target.Qualified()))
		}
	} else if _, err := table.Metadata(ctx); err != nil {
		if !isNotFound(err) {
			return 0, errors.Wrap(err, errors.ErrorTypeSink,
				fmt.Sprintf("inspect table %s", target.Qualified()))
		}
		if err := table.Create(ctx, &bq.TableMetadata{Schema: tableSchema}); err != nil {
			return 0, errors.Wrap(err, errors.ErrorTypeSink,
				fmt.Sprintf("create table %s", target.Qualified()))
		}
	}

	rows := make([]row, 0, batch.Size())
	for _, rec := range batch.Records {
		rows = append(rows, row{rec: rec})
	}
	if err := table.Inserter().Put(ctx, rows); err != nil {
		return 0, errors.Wrap(err, errors.ErrorTypeSink,
			fmt.Sprintf("stream into %s", target.Qualified()))
	}
	s.log.Debug("batch loaded",
		zap.String("table", target.Qualified()),
		zap.Int("rows", len(rows)),
		zap.String("mode", string(mode)))
	return len(rows), nil
}

// RunMerge executes the SCD-1 MERGE as a standard SQL job.
func (s *Sink) RunMerge(ctx context.Context, spec sink.MergeSpec) error {
	stmt, err := sink.BuildMergeSQL(spec)
	if err != nil {
		return err
	}
	job, err := s.client.Query(stmt).Run(ctx)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeSink,
			fmt.Sprintf("merge into %s", spec.Target.Qualified()))
	}
	status, err := job.Wait(ctx)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeSink,
			fmt.Sprintf("merge into %s", spec.Target.Qualified()))
	}
	if status.Err() != nil {
		return errors.Wrap(status.Err(), errors.ErrorTypeSink,
			fmt.Sprintf("merge into %s", spec.Target.Qualified()))
	}
	return nil
}

// Close releases the client.
func (s *Sink) Close() error {
	return s.client.Close()
}

func isNotFound(err error) bool {
	var apiErr *googleapi.Error
	if stderrors.As(err, &apiErr) {
		return apiErr.Code == http.StatusNotFound
	}
	return false
}
