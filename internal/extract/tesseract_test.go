package extract_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/casadona/deidpipe/internal/extract"
)

type stubRunner struct {
	stdout []byte
	err    error
	name   string
	args   []string
}

func (r *stubRunner) Run(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
	r.name = name
	r.args = args
	return r.stdout, nil, r.err
}

func TestTesseractExtractor(t *testing.T) {
	runner := &stubRunner{stdout: []byte("  recognized text \n")}
	e := extract.NewTesseractExtractor("tesseract", testLogger()).WithRunner(runner)

	res, err := e.Extract(context.Background(), []byte{0x89, 0x50, 0x4e, 0x47}, "image/png")
	require.NoError(t, err)

	assert.True(t, res.OK)
	assert.Equal(t, "recognized text", res.Text, "output is trimmed")
	assert.Equal(t, "tesseract", res.Method)
	assert.Equal(t, "tesseract", runner.name)
	require.Len(t, runner.args, 2)
	assert.True(t, strings.Contains(runner.args[0], "deidpipe-ocr-"), "image is staged through a temp file, got %q", runner.args[0])
	assert.Equal(t, "stdout", runner.args[1])
}

func TestTesseractExtractorNoText(t *testing.T) {
	runner := &stubRunner{stdout: []byte("   \n")}
	e := extract.NewTesseractExtractor("", testLogger()).WithRunner(runner)

	res, err := e.Extract(context.Background(), []byte("img"), "image/jpeg")
	require.NoError(t, err)
	assert.False(t, res.OK, "whitespace-only OCR output is no text")
	assert.Empty(t, res.Text)
}

func TestTesseractExtractorCommandFailure(t *testing.T) {
	runner := &stubRunner{err: errors.New("exit status 1")}
	e := extract.NewTesseractExtractor("tesseract", testLogger()).WithRunner(runner)

	_, err := e.Extract(context.Background(), []byte("img"), "image/png")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "tesseract")
}
