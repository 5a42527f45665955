package httpjson_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/casadona/deidpipe/internal/httpjson"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestPostJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "token-123", r.Header.Get("Authorization"))

		var req map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "world", req["hello"])

		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	raw, status, err := httpjson.PostJSON(context.Background(), srv.Client(), srv.URL,
		map[string]string{"hello": "world"},
		map[string]string{"Authorization": "token-123"},
		testLogger())
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"ok":true}`, string(raw))
}

func TestPostJSONNon2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"bad input"}`, http.StatusUnprocessableEntity)
	}))
	defer srv.Close()

	raw, status, err := httpjson.PostJSON(context.Background(), srv.Client(), srv.URL, map[string]string{}, nil, testLogger())
	require.Error(t, err)
	assert.Equal(t, http.StatusUnprocessableEntity, status)
	assert.Contains(t, string(raw), "bad input", "error bodies come back for diagnostics")
}

func TestPostJSONUnencodableBody(t *testing.T) {
	_, _, err := httpjson.PostJSON(context.Background(), nil, "http://localhost", make(chan int), nil, testLogger())
	assert.Error(t, err)
}

func TestPostJSONContextCancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err := httpjson.PostJSON(ctx, srv.Client(), srv.URL, map[string]string{}, nil, testLogger())
	assert.Error(t, err)
}
