package llmservice

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
	"github.com/tmc/langchaingo/schema"

	"docqa/internal/config"
	"docqa/internal/models"
)

var thinkRe = regexp.MustCompile(models.ThinkTag)

// Client answers questions from retrieved document context.
type Client struct {
	llm llms.Model
}

// New creates a client for an OpenAI-compatible chat endpoint.
func New(llmConfig config.LLMConfig) (*Client, error) {
	log.Debug().Str("base_url", llmConfig.BaseURL).Str("model", llmConfig.Model).Msg("Configuring inference LLM")
	opts := []openai.Option{openai.WithModel(llmConfig.Model)}
	if llmConfig.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(llmConfig.BaseURL))
	}
	if llmConfig.Key != "" {
		opts = append(opts, openai.WithToken(strings.TrimPrefix(llmConfig.Key, "Bearer ")))
	}
	llm, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("init inference llm: %w", err)
	}
	return NewWithModel(llm), nil
}

func NewWithModel(llm llms.Model) *Client {
	return &Client{llm: llm}
}

// BuildContext renders retrieved chunks with their source and relevance.
func BuildContext(results []models.SearchResult) string {
	parts := make([]string, 0, len(results))
	for _, r := range results {
		parts = append(parts, fmt.Sprintf(models.SourceHeaderTemplate, r.SourceName, r.Score*100, r.Text))
	}
	return strings.Join(parts, models.ContextSeparator)
}

// SystemPrompt picks the prompt for the current index state.
func SystemPrompt(results []models.SearchResult, hasDocuments bool) string {
	switch {
	case !hasDocuments:
		return models.NoDocumentsSystemPrompt
	case len(results) == 0:
		return models.NoContextSystemPrompt
	default:
		return fmt.Sprintf(models.GroundedSystemPrompt, BuildContext(results))
	}
}

// Sources lists distinct source names in rank order.
func Sources(results []models.SearchResult) []string {
	seen := make(map[string]struct{}, len(results))
	var out []string
	for _, r := range results {
		if _, ok := seen[r.SourceName]; ok {
			continue
		}
		seen[r.SourceName] = struct{}{}
		out = append(out, r.SourceName)
	}
	return out
}

// Answer asks the model question with the retrieved context. When onToken
// is non-nil the reply is streamed to it as it arrives.
func (c *Client) Answer(ctx context.Context, question string, results []models.SearchResult, hasDocuments bool, onToken func(string)) (models.PromptResponse, error) {
	messages := []llms.MessageContent{
		llms.TextParts(schema.ChatMessageTypeSystem, SystemPrompt(results, hasDocuments)),
		llms.TextParts(schema.ChatMessageTypeHuman, question),
	}

	var opts []llms.CallOption
	if onToken != nil {
		opts = append(opts, llms.WithStreamingFunc(func(_ context.Context, chunk []byte) error {
			onToken(string(chunk))
			return nil
		}))
	}

	resp, err := c.llm.GenerateContent(ctx, messages, opts...)
	if err != nil {
		return models.PromptResponse{}, fmt.Errorf("generate answer: %w", err)
	}
	if len(resp.Choices) == 0 {
		return models.PromptResponse{}, fmt.Errorf("generate answer: empty response")
	}

	content := strings.TrimSpace(thinkRe.ReplaceAllString(resp.Choices[0].Content, ""))
	log.Debug().Int("context_chunks", len(results)).Int("answer_chars", len(content)).Msg("Answer generated")

	return models.PromptResponse{
		Query:   question,
		Source:  strings.Join(Sources(results), ", "),
		Content: content,
	}, nil
}
