package pipeline

import (
	"context"
	"strings"

	"github.com/casadona/deidpipe/internal/blobstore"
	"github.com/casadona/deidpipe/internal/common"
)

// SearchRedacted lists deidentified objects whose filename contains substr
// (case-insensitive). An empty substr matches everything.
func (o *Orchestrator) SearchRedacted(ctx context.Context, substr string) ([]blobstore.ObjectInfo, error) {
	objects, err := o.deps.Blobs.List(ctx, blobstore.PrefixDeidentified)
	if err != nil {
		return nil, common.WrapError(err, "list deidentified text")
	}
	if substr == "" {
		return objects, nil
	}
	needle := strings.ToLower(substr)
	var out []blobstore.ObjectInfo
	for _, obj := range objects {
		name := strings.TrimPrefix(obj.Key, blobstore.PrefixDeidentified)
		if strings.Contains(strings.ToLower(name), needle) {
			out = append(out, obj)
		}
	}
	return out, nil
}

// FetchRedacted returns the stored redacted text for an uploaded filename.
func (o *Orchestrator) FetchRedacted(ctx context.Context, filename string) ([]byte, error) {
	return o.deps.Blobs.Get(ctx, blobstore.DeidentifiedKey(filename))
}
