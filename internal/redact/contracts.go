package redact

import "context"

// Redactor replaces configured PII categories in plain text with type
// placeholders ("[PHONE_NUMBER]", "[PERSON]", ...). The detection engine is
// an external collaborator; this package only defines the contract and the
// HTTP adapter.
type Redactor interface {
	Redact(ctx context.Context, text string, categories []string) (string, error)
}
