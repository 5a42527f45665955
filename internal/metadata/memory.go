package metadata

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/casadona/deidpipe/internal/common"
)

// MemorySink is an in-memory Sink used by tests and dry runs. Its Query
// surface only understands the inventory/enrichment selects issued by the
// reporting layer.
type MemorySink struct {
	mu         sync.RWMutex
	records    []Record
	inventory  map[string][]InventoryRow
	enrichment map[uuid.UUID][]EnrichmentRecord
}

var _ Sink = (*MemorySink)(nil)

func NewMemorySink() *MemorySink {
	return &MemorySink{
		inventory:  make(map[string][]InventoryRow),
		enrichment: make(map[uuid.UUID][]EnrichmentRecord),
	}
}

func (s *MemorySink) AppendRecord(ctx context.Context, rec Record) error {
	if rec.ID == "" {
		rec.ID = NewRecordID()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, rec)
	return nil
}

func (s *MemorySink) History(ctx context.Context, jobID uuid.UUID) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Record
	for _, rec := range s.records {
		if rec.JobID == jobID {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemorySink) Latest(ctx context.Context) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	latest := make(map[uuid.UUID]Record)
	for _, rec := range s.records {
		if prev, ok := latest[rec.JobID]; !ok || rec.ID > prev.ID {
			latest[rec.JobID] = rec
		}
	}
	out := make([]Record, 0, len(latest))
	for _, rec := range latest {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemorySink) OverwriteTable(ctx context.Context, table string, rows []InventoryRow) error {
	if !ValidInventoryTable(table) {
		return common.ValidationErrorf("not an inventory table: %q", table)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inventory[table] = append([]InventoryRow(nil), rows...)
	return nil
}

func (s *MemorySink) ReplaceEnrichment(ctx context.Context, jobID uuid.UUID, rows []EnrichmentRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.enrichment[jobID] = append([]EnrichmentRecord(nil), rows...)
	return nil
}

func (s *MemorySink) Enrichment(ctx context.Context, jobID uuid.UUID) ([]EnrichmentRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]EnrichmentRecord(nil), s.enrichment[jobID]...), nil
}

// Query recognizes "SELECT key, size_bytes, created_at FROM <inventory table>"
// and returns the stored rows; anything else yields no rows.
func (s *MemorySink) Query(ctx context.Context, query string, args ...any) ([]map[string]any, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for table, rows := range s.inventory {
		if strings.Contains(query, table) {
			out := make([]map[string]any, 0, len(rows))
			for _, row := range rows {
				out = append(out, map[string]any{
					"key":        row.Key,
					"size_bytes": row.SizeBytes,
					"created_at": row.CreatedAt,
				})
			}
			return out, nil
		}
	}
	return nil, nil
}

// Records returns a copy of all appended records, oldest first.
func (s *MemorySink) Records() []Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := append([]Record(nil), s.records...)
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// InventoryRows returns the current contents of one inventory table.
func (s *MemorySink) InventoryRows(table string) []InventoryRow {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]InventoryRow(nil), s.inventory[table]...)
}

func (s *MemorySink) Close() error { return nil }
