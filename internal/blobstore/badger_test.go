package blobstore_test

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/casadona/deidpipe/internal/blobstore"
	"github.com/casadona/deidpipe/internal/common"
)

func openStore(t *testing.T) *blobstore.BadgerStore {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store, err := blobstore.OpenBadger("", true, logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestPutGetRoundTrip(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "raw/a.pdf", []byte("pdf bytes")))

	got, err := store.Get(ctx, "raw/a.pdf")
	require.NoError(t, err)
	assert.Equal(t, []byte("pdf bytes"), got)
}

func TestGetMissingKey(t *testing.T) {
	store := openStore(t)

	_, err := store.Get(context.Background(), "raw/nope.pdf")
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestPutRejectsEmptyKey(t *testing.T) {
	store := openStore(t)

	err := store.Put(context.Background(), "", []byte("x"))
	assert.ErrorIs(t, err, common.ErrValidation)
}

func TestOverwriteKeepsCreatedAt(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "raw/a.txt", []byte("v1")))
	first, err := store.List(ctx, "raw/")
	require.NoError(t, err)
	require.Len(t, first, 1)

	require.NoError(t, store.Put(ctx, "raw/a.txt", []byte("version two")))
	second, err := store.List(ctx, "raw/")
	require.NoError(t, err)
	require.Len(t, second, 1)

	assert.Equal(t, first[0].CreatedAt, second[0].CreatedAt, "re-upload keeps the original timestamp")
	assert.Equal(t, int64(len("version two")), second[0].Size, "re-upload updates the size")

	got, err := store.Get(ctx, "raw/a.txt")
	require.NoError(t, err)
	assert.Equal(t, "version two", string(got))
}

func TestListFiltersByPrefixAndSorts(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "raw/b.txt", []byte("b")))
	require.NoError(t, store.Put(ctx, "raw/a.txt", []byte("a")))
	require.NoError(t, store.Put(ctx, "processed/a.txt.txt", []byte("text")))

	raw, err := store.List(ctx, blobstore.PrefixRaw)
	require.NoError(t, err)
	require.Len(t, raw, 2)
	assert.Equal(t, "raw/a.txt", raw[0].Key)
	assert.Equal(t, "raw/b.txt", raw[1].Key)
	assert.Equal(t, int64(1), raw[0].Size)

	deid, err := store.List(ctx, blobstore.PrefixDeidentified)
	require.NoError(t, err)
	assert.Empty(t, deid)
}

func TestKeyConventions(t *testing.T) {
	assert.Equal(t, "raw/note.txt", blobstore.RawKey("note.txt"))
	assert.Equal(t, "processed/note.txt.txt", blobstore.ProcessedKey("note.txt"))
	assert.Equal(t, "deidentified/note.txt.txt", blobstore.DeidentifiedKey("note.txt"))
	assert.Equal(t, "deidentified/scan.png.txt", blobstore.DeidentifiedKey("scan.png"))
}
