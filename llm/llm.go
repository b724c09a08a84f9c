// Package llm holds the helpers the workflows use to talk to chat models:
// plain generation, JSON structured output with validation and retry, and the
// grader and router output types.
package llm

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
)

// ErrEmptyResponse is returned when a model response has no choices.
var ErrEmptyResponse = errors.New("llm: empty response")

// ModelConfig selects an OpenAI-compatible chat model.
type ModelConfig struct {
	APIKey  string
	Model   string
	BaseURL string
}

// NewModel builds a langchaingo OpenAI client. Empty fields fall back to the
// OPENAI_API_KEY, OPENAI_MODEL and OPENAI_API_BASE environment variables.
func NewModel(cfg ModelConfig) (*openai.LLM, error) {
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY not set")
	}
	if cfg.Model == "" {
		cfg.Model = os.Getenv("OPENAI_MODEL")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = os.Getenv("OPENAI_API_BASE")
	}

	opts := []openai.Option{openai.WithToken(cfg.APIKey)}
	if cfg.Model != "" {
		opts = append(opts, openai.WithModel(cfg.Model))
	}
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}
	return openai.New(opts...)
}

// TextOf returns the content of the first choice.
func TextOf(resp *llms.ContentResponse) (string, error) {
	if resp == nil || len(resp.Choices) == 0 {
		return "", ErrEmptyResponse
	}
	return resp.Choices[0].Content, nil
}

// Messages builds a system + human prompt.
func Messages(system, human string) []llms.MessageContent {
	msgs := make([]llms.MessageContent, 0, 2)
	if system != "" {
		msgs = append(msgs, llms.TextParts(llms.ChatMessageTypeSystem, system))
	}
	return append(msgs, llms.TextParts(llms.ChatMessageTypeHuman, human))
}

// Generate sends a system + human prompt and returns the reply text.
func Generate(ctx context.Context, model llms.Model, system, human string, opts ...llms.CallOption) (string, error) {
	resp, err := model.GenerateContent(ctx, Messages(system, human), opts...)
	if err != nil {
		return "", fmt.Errorf("generate: %w", err)
	}
	return TextOf(resp)
}
