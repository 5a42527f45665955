package pipeline_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/casadona/deidpipe/internal/common"
)

func TestSearchRedacted(t *testing.T) {
	f := newFixture(t, syncSpawner{})

	for _, name := range []string{"invoice-march.txt", "invoice-april.txt", "memo.txt"} {
		_, err := f.orch.Submit(context.Background(), []byte("body of "+name), name, "text/plain")
		require.NoError(t, err)
	}

	all, err := f.orch.SearchRedacted(context.Background(), "")
	require.NoError(t, err)
	assert.Len(t, all, 3)

	invoices, err := f.orch.SearchRedacted(context.Background(), "INVOICE")
	require.NoError(t, err)
	require.Len(t, invoices, 2, "matching is case-insensitive")
	assert.Equal(t, "deidentified/invoice-april.txt.txt", invoices[0].Key)
	assert.Equal(t, "deidentified/invoice-march.txt.txt", invoices[1].Key)

	none, err := f.orch.SearchRedacted(context.Background(), "payroll")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestFetchRedacted(t *testing.T) {
	f := newFixture(t, syncSpawner{})

	_, err := f.orch.Submit(context.Background(), []byte("plain body"), "memo.txt", "text/plain")
	require.NoError(t, err)

	text, err := f.orch.FetchRedacted(context.Background(), "memo.txt")
	require.NoError(t, err)
	assert.Equal(t, "plain body", string(text))

	_, err = f.orch.FetchRedacted(context.Background(), "missing.txt")
	assert.ErrorIs(t, err, common.ErrNotFound)
}
