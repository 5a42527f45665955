package common_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/casadona/deidpipe/internal/common"
)

func TestLoadConfigDefaults(t *testing.T) {
	// Empty values read as unset, shielding the test from ambient env.
	for _, key := range []string{"BLOB_PATH", "BLOB_IN_MEMORY", "METADATA_DRIVER", "METADATA_DSN",
		"METADATA_MAX_CONNS", "EXTRACTOR_TIMEOUT", "REDACTOR_TIMEOUT", "ENTITY_CATEGORY",
		"TESSERACT_CMD", "PIPELINE_WORKERS"} {
		t.Setenv(key, "")
	}

	cfg := common.LoadConfig()

	assert.Equal(t, "./data/blobs", cfg.BlobStore.Path)
	assert.False(t, cfg.BlobStore.InMemory)
	assert.Equal(t, "sqlite", cfg.Metadata.Driver)
	assert.Equal(t, "./data/metadata.db", cfg.Metadata.DSN)
	assert.Equal(t, int32(10), cfg.Metadata.MaxConns)
	assert.Equal(t, "tesseract", cfg.Extractor.TesseractCmd)
	assert.Equal(t, 90*time.Second, cfg.Extractor.Timeout)
	assert.Equal(t, 45*time.Second, cfg.Redactor.Timeout)
	assert.Equal(t, "MEDICAL_TERM", cfg.Entity.Category)
	assert.Equal(t, 4, cfg.Pipeline.Workers)
}

func TestLoadConfigFromEnv(t *testing.T) {
	t.Setenv("BLOB_PATH", "/var/lib/deidpipe/blobs")
	t.Setenv("BLOB_IN_MEMORY", "true")
	t.Setenv("METADATA_DRIVER", "postgres")
	t.Setenv("METADATA_DSN", "postgres://localhost/deidpipe")
	t.Setenv("METADATA_MAX_CONNS", "25")
	t.Setenv("EXTRACTOR_URL", "http://extractor:8000/extract")
	t.Setenv("EXTRACTOR_TIMEOUT", "2m")
	t.Setenv("REDACTOR_URL", "http://redactor:8001/redact")
	t.Setenv("PIPELINE_WORKERS", "8")

	cfg := common.LoadConfig()

	assert.Equal(t, "/var/lib/deidpipe/blobs", cfg.BlobStore.Path)
	assert.True(t, cfg.BlobStore.InMemory)
	assert.Equal(t, "postgres", cfg.Metadata.Driver)
	assert.Equal(t, "postgres://localhost/deidpipe", cfg.Metadata.DSN)
	assert.Equal(t, int32(25), cfg.Metadata.MaxConns)
	assert.Equal(t, "http://extractor:8000/extract", cfg.Extractor.ServiceURL)
	assert.Equal(t, 2*time.Minute, cfg.Extractor.Timeout)
	assert.Equal(t, "http://redactor:8001/redact", cfg.Redactor.ServiceURL)
	assert.Equal(t, 8, cfg.Pipeline.Workers)
}

func TestLoadConfigIgnoresMalformedEnv(t *testing.T) {
	t.Setenv("PIPELINE_WORKERS", "a lot")
	t.Setenv("EXTRACTOR_TIMEOUT", "soon")
	t.Setenv("BLOB_IN_MEMORY", "yep")

	cfg := common.LoadConfig()

	assert.Equal(t, 4, cfg.Pipeline.Workers)
	assert.Equal(t, 90*time.Second, cfg.Extractor.Timeout)
	assert.False(t, cfg.BlobStore.InMemory)
}

func TestApplyFileOverlay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "deidpipe.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
metadata:
  driver: postgres
  dsn: postgres://db:5432/deidpipe
extractor:
  service_url: http://extractor:8000/extract
  normalize_whitespace: true
pipeline:
  workers: 16
`), 0644))

	cfg := common.LoadConfig()
	require.NoError(t, cfg.ApplyFile(path))

	assert.Equal(t, "postgres", cfg.Metadata.Driver)
	assert.Equal(t, "postgres://db:5432/deidpipe", cfg.Metadata.DSN)
	assert.Equal(t, "http://extractor:8000/extract", cfg.Extractor.ServiceURL)
	assert.True(t, cfg.Extractor.NormalizeWhitespace)
	assert.Equal(t, 16, cfg.Pipeline.Workers)

	// Values the file does not mention keep their env/default values.
	assert.Equal(t, "./data/blobs", cfg.BlobStore.Path)
	assert.Equal(t, "tesseract", cfg.Extractor.TesseractCmd)
}

func TestApplyFileErrors(t *testing.T) {
	cfg := common.LoadConfig()

	err := cfg.ApplyFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("{not yaml"), 0644))
	assert.Error(t, cfg.ApplyFile(bad))
}

func TestValidate(t *testing.T) {
	valid := func() *common.Config {
		cfg := common.LoadConfig()
		cfg.Redactor.ServiceURL = "http://redactor:8001/redact"
		return cfg
	}

	require.NoError(t, valid().Validate())

	cfg := valid()
	cfg.Redactor.ServiceURL = ""
	assert.ErrorIs(t, cfg.Validate(), common.ErrValidation)

	cfg = valid()
	cfg.Metadata.Driver = "mysql"
	assert.ErrorIs(t, cfg.Validate(), common.ErrValidation)

	cfg = valid()
	cfg.Pipeline.Workers = 0
	assert.ErrorIs(t, cfg.Validate(), common.ErrValidation)

	cfg = valid()
	cfg.BlobStore.Path = ""
	assert.ErrorIs(t, cfg.Validate(), common.ErrValidation)

	cfg = valid()
	cfg.BlobStore.Path = ""
	cfg.BlobStore.InMemory = true
	assert.NoError(t, cfg.Validate(), "in-memory store needs no path")
}
