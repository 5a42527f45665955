package entity

import "context"

// Entity is one domain term found in redacted text.
type Entity struct {
	Name     string `json:"name"`
	Category string `json:"category"`
}

// Extractor finds named entities in plain text, optionally filtered to one
// category. Implementations must be safe for concurrent use.
type Extractor interface {
	ExtractEntities(ctx context.Context, text, wantedCategory string) ([]Entity, error)
}
