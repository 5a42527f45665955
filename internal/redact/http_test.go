package redact_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/casadona/deidpipe/constants"
	"github.com/casadona/deidpipe/internal/common"
	"github.com/casadona/deidpipe/internal/redact"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestServiceRedactorRoundTrip(t *testing.T) {
	var gotText string
	var gotCategories []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Text       string   `json:"text"`
			Categories []string `json:"categories"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		gotText = req.Text
		gotCategories = req.Categories
		redacted := strings.ReplaceAll(req.Text, "555-0100", "[PHONE_NUMBER]")
		json.NewEncoder(w).Encode(map[string]string{"redacted_text": redacted})
	}))
	defer srv.Close()

	r := redact.NewServiceRedactor(srv.URL, 0, testLogger())
	out, err := r.Redact(context.Background(), "Call John at 555-0100", constants.PIICategories)
	require.NoError(t, err)

	assert.Equal(t, "Call John at [PHONE_NUMBER]", out)
	assert.Equal(t, "Call John at 555-0100", gotText)
	assert.Equal(t, constants.PIICategories, gotCategories)
}

func TestServiceRedactorRejectsMissingField(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Shaped wrong on purpose: no redacted_text.
		json.NewEncoder(w).Encode(map[string]string{"text": "oops"})
	}))
	defer srv.Close()

	r := redact.NewServiceRedactor(srv.URL, 0, testLogger())
	_, err := r.Redact(context.Background(), "text", constants.PIICategories)
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrRedaction)
}

func TestServiceRedactorRejectsNonJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html>gateway timeout</html>"))
	}))
	defer srv.Close()

	r := redact.NewServiceRedactor(srv.URL, 0, testLogger())
	_, err := r.Redact(context.Background(), "text", constants.PIICategories)
	assert.ErrorIs(t, err, common.ErrRedaction)
}

func TestServiceRedactorServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	r := redact.NewServiceRedactor(srv.URL, 0, testLogger())
	_, err := r.Redact(context.Background(), "text", constants.PIICategories)
	assert.ErrorIs(t, err, common.ErrRedaction)
}

func TestServiceRedactorUnreachable(t *testing.T) {
	r := redact.NewServiceRedactor("http://127.0.0.1:1/redact", 0, testLogger())
	_, err := r.Redact(context.Background(), "text", constants.PIICategories)
	assert.ErrorIs(t, err, common.ErrRedaction)
}

func TestServiceRedactorAllowsEmptyResult(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"redacted_text": ""})
	}))
	defer srv.Close()

	r := redact.NewServiceRedactor(srv.URL, 0, testLogger())
	out, err := r.Redact(context.Background(), "fully redacted", constants.PIICategories)
	require.NoError(t, err)
	assert.Empty(t, out, "an all-PII document can legitimately redact to nothing")
}
