package redact

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/casadona/deidpipe/internal/common"
	"github.com/casadona/deidpipe/internal/httpjson"
)

// responseSchema constrains what we accept back from the redaction service.
// A malformed response must never flow into the deidentified store.
const responseSchema = `{
	"type": "object",
	"properties": {
		"redacted_text": {"type": "string"}
	},
	"required": ["redacted_text"],
	"additionalProperties": true
}`

var compiledResponseSchema = jsonschema.MustCompileString("redact-response.json", responseSchema)

// ServiceRedactor calls a Presidio-style redaction service over HTTP.
type ServiceRedactor struct {
	url    string
	client *http.Client
	logger *slog.Logger
}

var _ Redactor = (*ServiceRedactor)(nil)

func NewServiceRedactor(url string, timeout time.Duration, logger *slog.Logger) *ServiceRedactor {
	if logger == nil {
		logger = slog.Default()
	}
	if timeout <= 0 {
		timeout = 45 * time.Second
	}
	return &ServiceRedactor{
		url:    url,
		client: &http.Client{Timeout: timeout},
		logger: logger,
	}
}

type serviceRequest struct {
	Text       string   `json:"text"`
	Categories []string `json:"categories"`
}

type serviceResponse struct {
	RedactedText string `json:"redacted_text"`
}

func (r *ServiceRedactor) Redact(ctx context.Context, text string, categories []string) (string, error) {
	raw, status, err := httpjson.PostJSON(ctx, r.client, r.url, serviceRequest{
		Text:       text,
		Categories: categories,
	}, nil, r.logger)
	if err != nil {
		r.logger.Error("redact.service.failed", "status", status, "categories", strings.Join(categories, ","), "error", err)
		return "", common.NewAppError("REDACTION", fmt.Sprintf("redaction service: %v", err), common.ErrRedaction)
	}

	var decoded any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return "", common.NewAppError("REDACTION", fmt.Sprintf("decode redaction response: %v", err), common.ErrRedaction)
	}
	if err := compiledResponseSchema.Validate(decoded); err != nil {
		r.logger.Error("redact.service.bad_response", "error", err)
		return "", common.NewAppError("REDACTION", fmt.Sprintf("invalid redaction response: %v", err), common.ErrRedaction)
	}

	var resp serviceResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", common.NewAppError("REDACTION", fmt.Sprintf("decode redaction response: %v", err), common.ErrRedaction)
	}

	r.logger.Info("redact.service.ok", "in_bytes", len(text), "out_bytes", len(resp.RedactedText))
	return resp.RedactedText, nil
}
