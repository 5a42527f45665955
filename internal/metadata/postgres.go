package metadata

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/casadona/deidpipe/constants"
	"github.com/casadona/deidpipe/internal/common"
)

// PostgresConfig mirrors the pool knobs exposed through common.MetadataConfig.
type PostgresConfig struct {
	DSN             string
	MaxConns        int32
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
	DialTimeout     time.Duration
}

// PostgresSink implements Sink on a pgx pool for shared-warehouse deployments.
type PostgresSink struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

var _ Sink = (*PostgresSink)(nil)

// OpenPostgres creates a pgx pool, verifies connectivity, and ensures the
// schema exists.
func OpenPostgres(ctx context.Context, cfg PostgresConfig, logger *slog.Logger) (*PostgresSink, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("metadata.postgres.connecting")
	pc, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		pc.MaxConns = cfg.MaxConns
	}
	if cfg.MaxConnLifetime > 0 {
		pc.MaxConnLifetime = cfg.MaxConnLifetime
	}
	if cfg.MaxConnIdleTime > 0 {
		pc.MaxConnIdleTime = cfg.MaxConnIdleTime
	}
	pc.ConnConfig.RuntimeParams["application_name"] = "deidpipe"

	dialCtx := ctx
	if cfg.DialTimeout > 0 {
		var cancel context.CancelFunc
		dialCtx, cancel = context.WithTimeout(ctx, cfg.DialTimeout)
		defer cancel()
	}
	pool, err := pgxpool.NewWithConfig(dialCtx, pc)
	if err != nil {
		logger.Error("metadata.postgres.connect_failed", "error", err)
		return nil, err
	}
	if err := pool.Ping(dialCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	if err := ensurePostgresSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	logger.Info("metadata.postgres.connected")
	return &PostgresSink{pool: pool, logger: logger}, nil
}

func (s *PostgresSink) Close() error {
	s.pool.Close()
	return nil
}

func ensurePostgresSchema(ctx context.Context, pool *pgxpool.Pool) error {
	schema := `
CREATE TABLE IF NOT EXISTS job_records (
	id TEXT PRIMARY KEY,
	job_id UUID NOT NULL,
	filename TEXT NOT NULL,
	media_type TEXT NOT NULL,
	size_bytes BIGINT NOT NULL,
	stage TEXT NOT NULL,
	source_key TEXT NOT NULL DEFAULT '',
	extracted_text_key TEXT NOT NULL DEFAULT '',
	redacted_text_key TEXT NOT NULL DEFAULT '',
	last_error TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_job_records_job_id ON job_records(job_id);
CREATE TABLE IF NOT EXISTS inventory_raw (key TEXT PRIMARY KEY, size_bytes BIGINT NOT NULL, created_at TIMESTAMPTZ NOT NULL);
CREATE TABLE IF NOT EXISTS inventory_processed (key TEXT PRIMARY KEY, size_bytes BIGINT NOT NULL, created_at TIMESTAMPTZ NOT NULL);
CREATE TABLE IF NOT EXISTS inventory_deidentified (key TEXT PRIMARY KEY, size_bytes BIGINT NOT NULL, created_at TIMESTAMPTZ NOT NULL);
CREATE TABLE IF NOT EXISTS enrichment_records (
	job_id UUID NOT NULL,
	entity TEXT NOT NULL,
	category TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_enrichment_job_id ON enrichment_records(job_id);
`
	_, err := pool.Exec(ctx, schema)
	return err
}

func (s *PostgresSink) AppendRecord(ctx context.Context, rec Record) error {
	if rec.ID == "" {
		rec.ID = NewRecordID()
	}
	_, err := s.pool.Exec(ctx, `
INSERT INTO job_records
	(id, job_id, filename, media_type, size_bytes, stage, source_key, extracted_text_key, redacted_text_key, last_error, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		rec.ID, rec.JobID, rec.Filename, rec.MediaType, rec.SizeBytes,
		string(rec.Stage), rec.SourceKey, rec.ExtractedTextKey, rec.RedactedTextKey,
		rec.LastError, rec.CreatedAt.UTC(), rec.UpdatedAt.UTC(),
	)
	if err != nil {
		s.logger.Error("metadata.append.failed", "job_id", rec.JobID, "stage", rec.Stage, "error", err)
		return common.PersistenceError("append job record", err)
	}
	return nil
}

func (s *PostgresSink) History(ctx context.Context, jobID uuid.UUID) ([]Record, error) {
	rows, err := s.pool.Query(ctx, `
SELECT id, job_id, filename, media_type, size_bytes, stage, source_key, extracted_text_key, redacted_text_key, last_error, created_at, updated_at
FROM job_records WHERE job_id = $1 ORDER BY id`, jobID)
	if err != nil {
		return nil, common.PersistenceError("query job history", err)
	}
	defer rows.Close()
	return scanPgxRecords(rows)
}

func (s *PostgresSink) Latest(ctx context.Context) ([]Record, error) {
	rows, err := s.pool.Query(ctx, `
SELECT DISTINCT ON (job_id)
	id, job_id, filename, media_type, size_bytes, stage, source_key, extracted_text_key, redacted_text_key, last_error, created_at, updated_at
FROM job_records ORDER BY job_id, id DESC`)
	if err != nil {
		return nil, common.PersistenceError("query latest records", err)
	}
	defer rows.Close()
	return scanPgxRecords(rows)
}

func scanPgxRecords(rows pgx.Rows) ([]Record, error) {
	var out []Record
	for rows.Next() {
		var rec Record
		var stage string
		if err := rows.Scan(&rec.ID, &rec.JobID, &rec.Filename, &rec.MediaType, &rec.SizeBytes,
			&stage, &rec.SourceKey, &rec.ExtractedTextKey, &rec.RedactedTextKey,
			&rec.LastError, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
			return nil, err
		}
		rec.Stage = constants.JobStage(stage)
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *PostgresSink) OverwriteTable(ctx context.Context, table string, rows []InventoryRow) error {
	if !ValidInventoryTable(table) {
		return common.ValidationErrorf("not an inventory table: %q", table)
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return common.PersistenceError("begin overwrite "+table, err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, "DELETE FROM "+table); err != nil {
		return common.PersistenceError("truncate "+table, err)
	}
	for _, row := range rows {
		if _, err := tx.Exec(ctx,
			"INSERT INTO "+table+" (key, size_bytes, created_at) VALUES ($1, $2, $3)",
			row.Key, row.SizeBytes, row.CreatedAt.UTC(),
		); err != nil {
			return common.PersistenceError("insert into "+table, err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return common.PersistenceError("commit overwrite "+table, err)
	}
	s.logger.Info("metadata.overwrite.ok", "table", table, "rows", len(rows))
	return nil
}

func (s *PostgresSink) ReplaceEnrichment(ctx context.Context, jobID uuid.UUID, rows []EnrichmentRecord) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return common.PersistenceError("begin enrichment replace", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, "DELETE FROM enrichment_records WHERE job_id = $1", jobID); err != nil {
		return common.PersistenceError("delete enrichment rows", err)
	}
	for _, row := range rows {
		if _, err := tx.Exec(ctx,
			"INSERT INTO enrichment_records (job_id, entity, category, created_at) VALUES ($1, $2, $3, $4)",
			jobID, row.Entity, row.Category, row.CreatedAt.UTC(),
		); err != nil {
			return common.PersistenceError("insert enrichment row", err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return common.PersistenceError("commit enrichment replace", err)
	}
	s.logger.Info("metadata.enrichment.replaced", "job_id", jobID, "rows", len(rows))
	return nil
}

func (s *PostgresSink) Enrichment(ctx context.Context, jobID uuid.UUID) ([]EnrichmentRecord, error) {
	rows, err := s.pool.Query(ctx,
		"SELECT job_id, entity, category, created_at FROM enrichment_records WHERE job_id = $1 ORDER BY entity",
		jobID)
	if err != nil {
		return nil, common.PersistenceError("query enrichment rows", err)
	}
	defer rows.Close()

	var out []EnrichmentRecord
	for rows.Next() {
		var rec EnrichmentRecord
		if err := rows.Scan(&rec.JobID, &rec.Entity, &rec.Category, &rec.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *PostgresSink) Query(ctx context.Context, query string, args ...any) ([]map[string]any, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, common.PersistenceError("query", err)
	}
	defer rows.Close()

	fields := rows.FieldDescriptions()
	var out []map[string]any
	for rows.Next() {
		vals, err := rows.Values()
		if err != nil {
			return nil, err
		}
		m := make(map[string]any, len(fields))
		for i, f := range fields {
			m[string(f.Name)] = vals[i]
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
