package extract

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/casadona/deidpipe/constants"
)

// Result is the outcome of one extraction attempt. OK=false with a nil error
// means the engine ran but found no usable text.
type Result struct {
	Text     string
	OK       bool
	Method   string // "service" | "tesseract"
	Duration time.Duration
	Warnings []string
}

// TextExtractor turns raw bytes plus a declared media type into plain text.
// Implementations must be deterministic per (bytes, media type).
type TextExtractor interface {
	Extract(ctx context.Context, data []byte, mediaType string) (Result, error)
}

// Registry routes media types to extractors. Register either an exact media
// type ("application/pdf") or a wildcard family ("image/*").
type Registry struct {
	mu     sync.RWMutex
	byType map[string]TextExtractor
	logger *slog.Logger
}

func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{byType: make(map[string]TextExtractor), logger: logger}
}

func (r *Registry) Register(mediaType string, ex TextExtractor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byType[normalizeMediaType(mediaType)] = ex
	r.logger.Debug("extract.registry.registered", "media_type", mediaType)
}

// Lookup returns the extractor for a media type, trying an exact match before
// the "family/*" wildcard.
func (r *Registry) Lookup(mediaType string) (TextExtractor, bool) {
	mt := normalizeMediaType(mediaType)
	r.mu.RLock()
	defer r.mu.RUnlock()
	if ex, ok := r.byType[mt]; ok {
		return ex, true
	}
	if i := strings.IndexByte(mt, '/'); i > 0 {
		if ex, ok := r.byType[mt[:i]+"/*"]; ok {
			return ex, true
		}
	}
	return nil, false
}

// Supports reports whether a submission with this media type is accepted.
// Plain text always is: those uploads skip extraction entirely.
func (r *Registry) Supports(mediaType string) bool {
	if constants.IsPlainText(mediaType) {
		return true
	}
	_, ok := r.Lookup(mediaType)
	return ok
}

func normalizeMediaType(mediaType string) string {
	mt := strings.ToLower(strings.TrimSpace(mediaType))
	if i := strings.IndexByte(mt, ';'); i >= 0 {
		mt = strings.TrimSpace(mt[:i])
	}
	return mt
}

// NormalizeWhitespace escapes line breaks and tabs so extracted text is
// single-line safe for downstream tooling.
func NormalizeWhitespace(text string) string {
	return strings.ReplaceAll(strings.ReplaceAll(text, "\n", "\\n"), "\t", "\\t")
}
