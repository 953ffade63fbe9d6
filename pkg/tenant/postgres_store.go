package tenant

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fieldpipe/fieldpipe/pkg/errors"
)

// PostgresStore keeps tenant credentials and watermarks in an offices
// table. Watermark advances are a single conditional UPDATE keyed by
// office_id, so concurrent entity runs cannot lose each other's updates.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore connects to the given DSN and verifies the connection.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "failed to create tenant store pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, errors.Wrap(err, errors.ErrorTypeConnection, "tenant store unreachable")
	}
	return &PostgresStore{pool: pool}, nil
}

// LoadAll returns every office ordered by office_id.
func (s *PostgresStore) LoadAll(ctx context.Context) ([]Config, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT office_id, base_url, auth_key, auth_token, last_successful_run_utc
		FROM offices
		ORDER BY office_id`)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "failed to load tenant config")
	}
	defer rows.Close()

	var configs []Config
	for rows.Next() {
		var (
			creds Credentials
			last  *time.Time
		)
		if err := rows.Scan(&creds.OfficeID, &creds.BaseURL, &creds.AuthKey, &creds.AuthToken, &last); err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeConfig, "failed to scan office row")
		}
		configs = append(configs, Config{
			Credentials: creds,
			Watermark:   Watermark{OfficeID: creds.OfficeID, LastSuccessfulRun: last},
		})
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "failed to load tenant config")
	}

	return configs, nil
}

// AdvanceWatermark moves the office's watermark forward atomically. The
// condition keeps the advance monotonic; a zero-row update is only an
// error when the office does not exist at all.
func (s *PostgresStore) AdvanceWatermark(ctx context.Context, officeID int, to time.Time) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE offices
		SET last_successful_run_utc = $2
		WHERE office_id = $1
		  AND (last_successful_run_utc IS NULL OR last_successful_run_utc < $2)`,
		officeID, to.UTC())
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeConfig, "failed to advance watermark")
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	var exists bool
	if err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM offices WHERE office_id = $1)`, officeID).Scan(&exists); err != nil {
		return errors.Wrap(err, errors.ErrorTypeConfig, "failed to advance watermark")
	}
	if !exists {
		return errors.New(errors.ErrorTypeNotFound,
			fmt.Sprintf("office %d not present in tenant config", officeID))
	}

	// Watermark already at or past the requested time.
	return nil
}

// Close releases the connection pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}
