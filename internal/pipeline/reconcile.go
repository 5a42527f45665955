package pipeline

import (
	"context"

	"github.com/casadona/deidpipe/internal/blobstore"
	"github.com/casadona/deidpipe/internal/common"
	"github.com/casadona/deidpipe/internal/metadata"
)

var scopePrefixes = map[string]string{
	"raw":          blobstore.PrefixRaw,
	"processed":    blobstore.PrefixProcessed,
	"deidentified": blobstore.PrefixDeidentified,
}

// ReconcileScopes lists the valid arguments to ReconcileMetadata.
var ReconcileScopes = []string{"raw", "processed", "deidentified"}

// ReconcileMetadata rebuilds one reporting table from a full blob-store
// listing. The store is the source of truth; the table is a derived cache,
// so this is a whole-table overwrite, never a merge. An empty listing
// truncates the table and is logged as a no-op, not an error.
func (o *Orchestrator) ReconcileMetadata(ctx context.Context, scope string) error {
	prefix, ok := scopePrefixes[scope]
	if !ok {
		return common.ValidationErrorf("unknown reconciliation scope %q", scope)
	}
	table, err := metadata.InventoryTable(scope)
	if err != nil {
		return err
	}

	objects, err := o.deps.Blobs.List(ctx, prefix)
	if err != nil {
		return common.WrapError(err, "list "+prefix)
	}

	rows := make([]metadata.InventoryRow, 0, len(objects))
	for _, obj := range objects {
		rows = append(rows, metadata.InventoryRow{
			Key:       obj.Key,
			SizeBytes: obj.Size,
			CreatedAt: obj.CreatedAt,
		})
	}
	if err := o.deps.Sink.OverwriteTable(ctx, table, rows); err != nil {
		return common.WrapError(err, "overwrite "+table)
	}

	if len(rows) == 0 {
		o.logger.Info("pipeline.reconcile.noop", "scope", scope, "table", table)
	} else {
		o.logger.Info("pipeline.reconcile.ok", "scope", scope, "table", table, "rows", len(rows))
	}
	return nil
}

// ReconcileAll reconciles every scope. Per-scope failures are logged and do
// not stop the remaining scopes.
func (o *Orchestrator) ReconcileAll(ctx context.Context) {
	for _, scope := range ReconcileScopes {
		if err := o.ReconcileMetadata(ctx, scope); err != nil {
			o.logger.Error("pipeline.reconcile.failed", "scope", scope, "error", err)
		}
	}
}
