package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/casadona/deidpipe/internal/httpjson"
)

// ServiceExtractor calls an external document-understanding service over
// HTTP. The service owns format handling (PDF, office docs, CSV); this
// adapter only moves bytes and interprets the (text, ok) contract.
type ServiceExtractor struct {
	url                 string
	client              *http.Client
	normalizeWhitespace bool
	logger              *slog.Logger
}

var _ TextExtractor = (*ServiceExtractor)(nil)

type ServiceOption func(*ServiceExtractor)

// WithNormalizeWhitespace escapes newlines/tabs in extracted text.
func WithNormalizeWhitespace() ServiceOption {
	return func(e *ServiceExtractor) { e.normalizeWhitespace = true }
}

func WithTimeout(d time.Duration) ServiceOption {
	return func(e *ServiceExtractor) {
		if d > 0 {
			e.client.Timeout = d
		}
	}
}

func NewServiceExtractor(url string, logger *slog.Logger, opts ...ServiceOption) *ServiceExtractor {
	if logger == nil {
		logger = slog.Default()
	}
	e := &ServiceExtractor{
		url:    url,
		client: &http.Client{Timeout: 90 * time.Second},
		logger: logger,
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

type serviceRequest struct {
	MediaType string `json:"media_type"`
	Data      []byte `json:"data"` // base64 via encoding/json
}

type serviceResponse struct {
	Text string `json:"text"`
	OK   bool   `json:"ok"`
}

func (e *ServiceExtractor) Extract(ctx context.Context, data []byte, mediaType string) (Result, error) {
	start := time.Now()
	raw, status, err := httpjson.PostJSON(ctx, e.client, e.url, serviceRequest{
		MediaType: mediaType,
		Data:      data,
	}, nil, e.logger)
	if err != nil {
		e.logger.Error("extract.service.failed", "media_type", mediaType, "status", status, "error", err)
		return Result{Method: "service", Duration: time.Since(start)}, fmt.Errorf("extraction service: %w", err)
	}

	var resp serviceResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return Result{Method: "service", Duration: time.Since(start)}, fmt.Errorf("decode extraction response: %w", err)
	}

	text := resp.Text
	if e.normalizeWhitespace {
		text = NormalizeWhitespace(text)
	}
	res := Result{
		Text:     text,
		OK:       resp.OK && text != "",
		Method:   "service",
		Duration: time.Since(start),
	}
	e.logger.Info("extract.service.ok", "media_type", mediaType, "ok", res.OK, "bytes", len(text), "elapsed_ms", res.Duration.Milliseconds())
	return res, nil
}
