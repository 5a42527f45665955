package extract_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/casadona/deidpipe/constants"
	"github.com/casadona/deidpipe/internal/extract"
)

func TestServiceExtractorRoundTrip(t *testing.T) {
	var gotMediaType string
	var gotData []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			MediaType string `json:"media_type"`
			Data      []byte `json:"data"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		gotMediaType = req.MediaType
		gotData = req.Data
		json.NewEncoder(w).Encode(map[string]any{"text": "extracted body", "ok": true})
	}))
	defer srv.Close()

	e := extract.NewServiceExtractor(srv.URL, testLogger())
	res, err := e.Extract(context.Background(), []byte("%PDF-1.4"), constants.MediaTypePDF)
	require.NoError(t, err)

	assert.True(t, res.OK)
	assert.Equal(t, "extracted body", res.Text)
	assert.Equal(t, "service", res.Method)
	assert.Equal(t, constants.MediaTypePDF, gotMediaType)
	assert.Equal(t, []byte("%PDF-1.4"), gotData, "payload bytes survive the base64 round trip")
}

func TestServiceExtractorEmptyText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"text": "", "ok": true})
	}))
	defer srv.Close()

	e := extract.NewServiceExtractor(srv.URL, testLogger())
	res, err := e.Extract(context.Background(), []byte("scan"), constants.MediaTypePDF)
	require.NoError(t, err)
	assert.False(t, res.OK, "ok from the service still needs non-empty text")
}

func TestServiceExtractorNormalizesWhitespace(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"text": "a\nb\tc", "ok": true})
	}))
	defer srv.Close()

	e := extract.NewServiceExtractor(srv.URL, testLogger(), extract.WithNormalizeWhitespace())
	res, err := e.Extract(context.Background(), []byte("doc"), constants.MediaTypeDOCX)
	require.NoError(t, err)
	assert.Equal(t, `a\nb\tc`, res.Text)
}

func TestServiceExtractorServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	e := extract.NewServiceExtractor(srv.URL, testLogger())
	_, err := e.Extract(context.Background(), []byte("doc"), constants.MediaTypePDF)
	assert.Error(t, err)
}

func TestServiceExtractorUnreachable(t *testing.T) {
	e := extract.NewServiceExtractor("http://127.0.0.1:1/extract", testLogger())
	_, err := e.Extract(context.Background(), []byte("doc"), constants.MediaTypePDF)
	assert.Error(t, err)
}
