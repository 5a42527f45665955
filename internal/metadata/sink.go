package metadata

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"

	"github.com/casadona/deidpipe/constants"
	"github.com/casadona/deidpipe/internal/common"
)

// Record is one append-only snapshot of an upload job. Records are never
// updated or deleted; the ordered set of records for a job id is its history.
// ULID record ids sort in insertion order.
type Record struct {
	ID               string             `json:"id"`
	JobID            uuid.UUID          `json:"job_id"`
	Filename         string             `json:"filename"`
	MediaType        string             `json:"media_type"`
	SizeBytes        int64              `json:"size_bytes"`
	Stage            constants.JobStage `json:"stage"`
	SourceKey        string             `json:"source_key"`
	ExtractedTextKey string             `json:"extracted_text_key,omitempty"`
	RedactedTextKey  string             `json:"redacted_text_key,omitempty"`
	LastError        string             `json:"last_error,omitempty"`
	CreatedAt        time.Time          `json:"created_at"`
	UpdatedAt        time.Time          `json:"updated_at"`
}

// InventoryRow is one reconciled blob-store object in a reporting table.
type InventoryRow struct {
	Key       string    `json:"key"`
	SizeBytes int64     `json:"size_bytes"`
	CreatedAt time.Time `json:"created_at"`
}

// EnrichmentRecord is one extracted entity found in a job's redacted text.
// Derived data; replaced wholesale on every enrichment pass.
type EnrichmentRecord struct {
	JobID     uuid.UUID `json:"job_id"`
	Entity    string    `json:"entity"`
	Category  string    `json:"category"`
	CreatedAt time.Time `json:"created_at"`
}

// Sink is the metadata warehouse capability: append-only job snapshots,
// overwrite-by-batch derived tables, and a read-only query surface.
// Implementations must be safe for concurrent use.
type Sink interface {
	AppendRecord(ctx context.Context, rec Record) error
	// History returns all records for a job ordered by record id (oldest first).
	History(ctx context.Context, jobID uuid.UUID) ([]Record, error)
	// Latest returns the most recent record per job id.
	Latest(ctx context.Context) ([]Record, error)
	// OverwriteTable replaces the named inventory table with rows.
	// An empty rows slice truncates the table; it is not an error.
	OverwriteTable(ctx context.Context, table string, rows []InventoryRow) error
	// ReplaceEnrichment replaces all enrichment rows for one job.
	ReplaceEnrichment(ctx context.Context, jobID uuid.UUID, rows []EnrichmentRecord) error
	Enrichment(ctx context.Context, jobID uuid.UUID) ([]EnrichmentRecord, error)
	// Query runs a read-only query and returns generic rows.
	Query(ctx context.Context, query string, args ...any) ([]map[string]any, error)
	Close() error
}

// Reconciliation scopes and their reporting tables.
const (
	TableInventoryRaw          = "inventory_raw"
	TableInventoryProcessed    = "inventory_processed"
	TableInventoryDeidentified = "inventory_deidentified"
)

var inventoryTables = map[string]string{
	"raw":          TableInventoryRaw,
	"processed":    TableInventoryProcessed,
	"deidentified": TableInventoryDeidentified,
}

// InventoryTable maps a reconciliation scope to its table name.
func InventoryTable(scope string) (string, error) {
	t, ok := inventoryTables[scope]
	if !ok {
		return "", common.ValidationErrorf("unknown reconciliation scope %q", scope)
	}
	return t, nil
}

// ValidInventoryTable guards overwrite targets against arbitrary table names.
func ValidInventoryTable(table string) bool {
	for _, t := range inventoryTables {
		if t == table {
			return true
		}
	}
	return false
}

// NewRecordID returns a fresh sortable record id.
func NewRecordID() string {
	return ulid.Make().String()
}
