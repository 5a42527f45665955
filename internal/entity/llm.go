package entity

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
)

const systemPrompt = `You are a named-entity recognizer. Given a document,
respond with JSON only, shaped as:
{"entities": [{"name": "...", "category": "..."}]}
Categories are upper snake case, e.g. MEDICAL_TERM, ORGANIZATION, PRODUCT.
Entity names are lowercase. Do not invent entities that are not in the text.`

// LLMExtractor implements Extractor using an OpenAI-compatible chat API.
type LLMExtractor struct {
	client llms.Model
	logger *slog.Logger
}

var _ Extractor = (*LLMExtractor)(nil)

// NewLLMExtractor creates an extractor against an OpenAI-compatible endpoint.
// Use token "none" for local services that don't require authentication.
func NewLLMExtractor(baseURL, model, token string, logger *slog.Logger) (*LLMExtractor, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if token == "" {
		token = "none"
	}
	client, err := openai.New(
		openai.WithBaseURL(baseURL),
		openai.WithToken(token),
		openai.WithModel(model),
	)
	if err != nil {
		return nil, err
	}
	return &LLMExtractor{
		client: client,
		logger: logger.With("component", "entity-extractor"),
	}, nil
}

// analysis is the wrapper structure for the LLM's JSON response.
type analysis struct {
	Entities []Entity `json:"entities"`
}

func (e *LLMExtractor) ExtractEntities(ctx context.Context, text, wantedCategory string) ([]Entity, error) {
	content := []llms.MessageContent{
		{
			Role:  llms.ChatMessageTypeSystem,
			Parts: []llms.ContentPart{llms.TextPart(systemPrompt)},
		},
		{
			Role:  llms.ChatMessageTypeHuman,
			Parts: []llms.ContentPart{llms.TextPart(text)},
		},
	}

	resp, err := e.client.GenerateContent(ctx, content, llms.WithJSONMode())
	if err != nil {
		return nil, fmt.Errorf("entity extraction: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("entity extraction: empty response")
	}

	payload := stripCodeFences(resp.Choices[0].Content)
	var parsed analysis
	if err := json.Unmarshal([]byte(payload), &parsed); err != nil {
		e.logger.Error("entity.parse_failed", "error", err, "bytes", len(payload))
		return nil, fmt.Errorf("parse entity response: %w", err)
	}

	out := make([]Entity, 0, len(parsed.Entities))
	for _, ent := range parsed.Entities {
		if ent.Name == "" {
			continue
		}
		if wantedCategory != "" && !strings.EqualFold(ent.Category, wantedCategory) {
			continue
		}
		out = append(out, ent)
	}
	e.logger.Info("entity.extracted", "total", len(parsed.Entities), "matched", len(out), "category", wantedCategory)
	return out, nil
}

// stripCodeFences removes a surrounding markdown code block, which some
// models emit even in JSON mode.
func stripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		if i := strings.LastIndex(s, "```"); i >= 0 {
			s = s[:i]
		}
	}
	return strings.TrimSpace(s)
}
