package metadata

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/casadona/deidpipe/constants"
	"github.com/casadona/deidpipe/internal/common"
)

// SQLiteSink implements Sink using SQLite. This is the default warehouse for
// single-node deployments and tests.
type SQLiteSink struct {
	db     *sql.DB
	logger *slog.Logger
}

var _ Sink = (*SQLiteSink)(nil)

// OpenSQLite opens a SQLite database with WAL mode enabled and initializes
// the schema. Use ":memory:" for an ephemeral sink.
func OpenSQLite(ctx context.Context, path string, logger *slog.Logger) (*SQLiteSink, error) {
	if logger == nil {
		logger = slog.Default()
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	// Enable WAL mode for better concurrency
	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, err
	}
	if err := initSchema(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	return &SQLiteSink{db: db, logger: logger}, nil
}

// Close closes the database connection
func (s *SQLiteSink) Close() error {
	return s.db.Close()
}

// initSchema creates tables if they don't exist
func initSchema(ctx context.Context, db *sql.DB) error {
	schema := `
CREATE TABLE IF NOT EXISTS job_records (
	id TEXT PRIMARY KEY,
	job_id TEXT NOT NULL,
	filename TEXT NOT NULL,
	media_type TEXT NOT NULL,
	size_bytes INTEGER NOT NULL,
	stage TEXT NOT NULL,
	source_key TEXT NOT NULL DEFAULT '',
	extracted_text_key TEXT NOT NULL DEFAULT '',
	redacted_text_key TEXT NOT NULL DEFAULT '',
	last_error TEXT NOT NULL DEFAULT '',
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_job_records_job_id ON job_records(job_id);

CREATE TABLE IF NOT EXISTS inventory_raw (
	key TEXT PRIMARY KEY,
	size_bytes INTEGER NOT NULL,
	created_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS inventory_processed (
	key TEXT PRIMARY KEY,
	size_bytes INTEGER NOT NULL,
	created_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS inventory_deidentified (
	key TEXT PRIMARY KEY,
	size_bytes INTEGER NOT NULL,
	created_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS enrichment_records (
	job_id TEXT NOT NULL,
	entity TEXT NOT NULL,
	category TEXT NOT NULL,
	created_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_enrichment_job_id ON enrichment_records(job_id);
`
	_, err := db.ExecContext(ctx, schema)
	return err
}

func (s *SQLiteSink) AppendRecord(ctx context.Context, rec Record) error {
	if rec.ID == "" {
		rec.ID = NewRecordID()
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO job_records
	(id, job_id, filename, media_type, size_bytes, stage, source_key, extracted_text_key, redacted_text_key, last_error, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.JobID.String(), rec.Filename, rec.MediaType, rec.SizeBytes,
		string(rec.Stage), rec.SourceKey, rec.ExtractedTextKey, rec.RedactedTextKey,
		rec.LastError, rec.CreatedAt.UTC().Format(time.RFC3339Nano), rec.UpdatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		s.logger.Error("metadata.append.failed", "job_id", rec.JobID, "stage", rec.Stage, "error", err)
		return common.PersistenceError("append job record", err)
	}
	return nil
}

func (s *SQLiteSink) History(ctx context.Context, jobID uuid.UUID) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT id, job_id, filename, media_type, size_bytes, stage, source_key, extracted_text_key, redacted_text_key, last_error, created_at, updated_at
FROM job_records WHERE job_id = ? ORDER BY id`, jobID.String())
	if err != nil {
		return nil, common.PersistenceError("query job history", err)
	}
	defer rows.Close()
	return scanRecords(rows)
}

func (s *SQLiteSink) Latest(ctx context.Context) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT r.id, r.job_id, r.filename, r.media_type, r.size_bytes, r.stage, r.source_key, r.extracted_text_key, r.redacted_text_key, r.last_error, r.created_at, r.updated_at
FROM job_records r
JOIN (SELECT job_id, MAX(id) AS max_id FROM job_records GROUP BY job_id) m
	ON r.id = m.max_id
ORDER BY r.id`)
	if err != nil {
		return nil, common.PersistenceError("query latest records", err)
	}
	defer rows.Close()
	return scanRecords(rows)
}

func scanRecords(rows *sql.Rows) ([]Record, error) {
	var out []Record
	for rows.Next() {
		var rec Record
		var jobID, stage, createdAt, updatedAt string
		if err := rows.Scan(&rec.ID, &jobID, &rec.Filename, &rec.MediaType, &rec.SizeBytes,
			&stage, &rec.SourceKey, &rec.ExtractedTextKey, &rec.RedactedTextKey,
			&rec.LastError, &createdAt, &updatedAt); err != nil {
			return nil, err
		}
		id, err := uuid.Parse(jobID)
		if err != nil {
			return nil, fmt.Errorf("bad job id %q: %w", jobID, err)
		}
		rec.JobID = id
		rec.Stage = constants.JobStage(stage)
		if t, err := time.Parse(time.RFC3339Nano, createdAt); err == nil {
			rec.CreatedAt = t
		}
		if t, err := time.Parse(time.RFC3339Nano, updatedAt); err == nil {
			rec.UpdatedAt = t
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// OverwriteTable truncates the inventory table and inserts rows in one
// transaction. Scoped to the known inventory tables only.
func (s *SQLiteSink) OverwriteTable(ctx context.Context, table string, rows []InventoryRow) error {
	if !ValidInventoryTable(table) {
		return common.ValidationErrorf("not an inventory table: %q", table)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return common.PersistenceError("begin overwrite "+table, err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
		return common.PersistenceError("truncate "+table, err)
	}
	for _, row := range rows {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO "+table+" (key, size_bytes, created_at) VALUES (?, ?, ?)",
			row.Key, row.SizeBytes, row.CreatedAt.UTC().Format(time.RFC3339Nano),
		); err != nil {
			return common.PersistenceError("insert into "+table, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return common.PersistenceError("commit overwrite "+table, err)
	}
	s.logger.Info("metadata.overwrite.ok", "table", table, "rows", len(rows))
	return nil
}

func (s *SQLiteSink) ReplaceEnrichment(ctx context.Context, jobID uuid.UUID, rows []EnrichmentRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return common.PersistenceError("begin enrichment replace", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM enrichment_records WHERE job_id = ?", jobID.String()); err != nil {
		return common.PersistenceError("delete enrichment rows", err)
	}
	for _, row := range rows {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO enrichment_records (job_id, entity, category, created_at) VALUES (?, ?, ?, ?)",
			jobID.String(), row.Entity, row.Category, row.CreatedAt.UTC().Format(time.RFC3339Nano),
		); err != nil {
			return common.PersistenceError("insert enrichment row", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return common.PersistenceError("commit enrichment replace", err)
	}
	s.logger.Info("metadata.enrichment.replaced", "job_id", jobID, "rows", len(rows))
	return nil
}

func (s *SQLiteSink) Enrichment(ctx context.Context, jobID uuid.UUID) ([]EnrichmentRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT job_id, entity, category, created_at FROM enrichment_records WHERE job_id = ? ORDER BY entity",
		jobID.String())
	if err != nil {
		return nil, common.PersistenceError("query enrichment rows", err)
	}
	defer rows.Close()

	var out []EnrichmentRecord
	for rows.Next() {
		var rec EnrichmentRecord
		var id, createdAt string
		if err := rows.Scan(&id, &rec.Entity, &rec.Category, &createdAt); err != nil {
			return nil, err
		}
		parsed, err := uuid.Parse(id)
		if err != nil {
			return nil, fmt.Errorf("bad job id %q: %w", id, err)
		}
		rec.JobID = parsed
		if t, err := time.Parse(time.RFC3339Nano, createdAt); err == nil {
			rec.CreatedAt = t
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Query runs an arbitrary read-only query and returns generic rows, used by
// the reporting/export layer.
func (s *SQLiteSink) Query(ctx context.Context, query string, args ...any) ([]map[string]any, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, common.PersistenceError("query", err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	var out []map[string]any
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		m := make(map[string]any, len(cols))
		for i, c := range cols {
			m[c] = vals[i]
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
