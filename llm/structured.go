package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"
)

// ErrSchemaValidation is returned when a model never produced a valid reply.
var ErrSchemaValidation = errors.New("llm: structured output failed validation")

// DefaultMaxAttempts bounds the calls made by StructuredOutput.
const DefaultMaxAttempts = 3

// Validator is implemented by output types that check their own values.
type Validator interface {
	Validate() error
}

// StructuredOutput asks a model for JSON and decodes it into T. A reply that
// does not decode or fails validation is sent back to the model with the error
// and retried, up to MaxAttempts calls in total.
type StructuredOutput[T any] struct {
	Model       llms.Model
	MaxAttempts int
	// Validate runs after T's own Validate method, if any.
	Validate func(T) error
	Options  []llms.CallOption
}

// NewStructuredOutput creates a structured caller for model.
func NewStructuredOutput[T any](model llms.Model) *StructuredOutput[T] {
	return &StructuredOutput[T]{Model: model, MaxAttempts: DefaultMaxAttempts}
}

// WithValidator sets an extra validation function.
func (s *StructuredOutput[T]) WithValidator(fn func(T) error) *StructuredOutput[T] {
	s.Validate = fn
	return s
}

// Generate is Invoke with a system + human prompt.
func (s *StructuredOutput[T]) Generate(ctx context.Context, system, human string) (T, error) {
	return s.Invoke(ctx, Messages(system, human))
}

// Invoke calls the model until it returns a valid T. Model errors are returned
// immediately without retry.
func (s *StructuredOutput[T]) Invoke(ctx context.Context, messages []llms.MessageContent) (T, error) {
	var zero T
	attempts := s.MaxAttempts
	if attempts <= 0 {
		attempts = DefaultMaxAttempts
	}

	opts := append([]llms.CallOption{llms.WithJSONMode()}, s.Options...)
	history := append([]llms.MessageContent(nil), messages...)

	var lastErr error
	for range attempts {
		resp, err := s.Model.GenerateContent(ctx, history, opts...)
		if err != nil {
			return zero, fmt.Errorf("structured output: %w", err)
		}
		text, err := TextOf(resp)
		if err != nil {
			return zero, fmt.Errorf("structured output: %w", err)
		}

		out, err := s.parse(text)
		if err == nil {
			return out, nil
		}
		lastErr = err
		history = append(history,
			llms.TextParts(llms.ChatMessageTypeAI, text),
			llms.TextParts(llms.ChatMessageTypeHuman, fmt.Sprintf(
				"Your previous reply was invalid: %v. Reply again with only the corrected JSON object.", err)),
		)
	}
	return zero, fmt.Errorf("%w after %d attempts: %v", ErrSchemaValidation, attempts, lastErr)
}

func (s *StructuredOutput[T]) parse(text string) (T, error) {
	var out T
	if err := json.Unmarshal([]byte(stripFences(text)), &out); err != nil {
		return out, fmt.Errorf("invalid JSON: %w", err)
	}
	if v, ok := any(out).(Validator); ok {
		if err := v.Validate(); err != nil {
			return out, err
		}
	} else if v, ok := any(&out).(Validator); ok {
		if err := v.Validate(); err != nil {
			return out, err
		}
	}
	if s.Validate != nil {
		if err := s.Validate(out); err != nil {
			return out, err
		}
	}
	return out, nil
}

// stripFences removes a surrounding markdown code block.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}
