package blobstore

import (
	"context"
	"time"
)

// Logical key prefixes for pipeline artifacts.
const (
	PrefixRaw          = "raw/"
	PrefixProcessed    = "processed/"
	PrefixDeidentified = "deidentified/"
)

// ObjectInfo contains metadata about a stored blob. It is stored separately
// from the blob data so listings never read blob content.
type ObjectInfo struct {
	Key       string    `json:"key"`
	Size      int64     `json:"size"`
	CreatedAt time.Time `json:"createdAt"`
}

// Store is the capability the pipeline consumes: put/get/list opaque byte
// objects by key. Implementations must be safe for concurrent use.
type Store interface {
	Put(ctx context.Context, key string, data []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
	List(ctx context.Context, prefix string) ([]ObjectInfo, error)
}

// RawKey returns the blob key for a raw upload.
func RawKey(filename string) string {
	return PrefixRaw + filename
}

// ProcessedKey returns the blob key for extracted text.
// The ".txt" suffix is appended to the full filename, so "note.txt"
// lands at "processed/note.txt.txt".
func ProcessedKey(filename string) string {
	return PrefixProcessed + filename + ".txt"
}

// DeidentifiedKey returns the blob key for redacted text.
func DeidentifiedKey(filename string) string {
	return PrefixDeidentified + filename + ".txt"
}
