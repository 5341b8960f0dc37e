// Package llm provides chat-completion clients for the answer
// synthesis and intent classification paths.
package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	defaultAnthropicBaseURL = "https://api.anthropic.com"
	defaultAnthropicModel   = "claude-3-5-sonnet-20241022"
	defaultOpenAIBaseURL    = "https://api.openai.com"
	defaultOpenAIModel      = "gpt-4o-mini"
	defaultMaxTokens        = 2048
	defaultTemperature      = 0.2
	defaultTimeout          = 60 * time.Second
	defaultMaxRetries       = 3
	defaultBaseBackoff      = 1 * time.Second
)

// Rate limiter defaults: 50 requests per minute.
const (
	defaultRateLimit = 50.0 / 60.0
	defaultBurst     = 5
)

var (
	// ErrInvalidConfig indicates invalid configuration.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrMalformedResponse indicates the model's output could not be
	// parsed in the expected shape.
	ErrMalformedResponse = errors.New("malformed model response")
)

// Config holds configuration for creating a completion client.
type Config struct {
	// Provider is "anthropic" or "openai". Default: "anthropic".
	Provider string

	// Model is the model name. Defaults per provider.
	Model string

	// APIKey authenticates requests. Required.
	APIKey string

	// BaseURL overrides the provider endpoint, e.g. for proxies or
	// compatible servers.
	BaseURL string

	// Timeout is the per-request timeout in seconds. Default: 60.
	Timeout int
}

// Client generates chat completions.
type Client interface {
	// Complete sends a system and user prompt and returns the
	// generated text.
	Complete(ctx context.Context, system, prompt string) (string, error)
}

// NewClient creates a completion client based on the configuration.
func NewClient(cfg Config) (Client, error) {
	switch cfg.Provider {
	case "anthropic", "":
		return newAnthropicClient(cfg)
	case "openai":
		return newOpenAIClient(cfg)
	default:
		return nil, fmt.Errorf("%w: unknown provider %q", ErrInvalidConfig, cfg.Provider)
	}
}

// CompleteJSON runs a completion and unmarshals the output into v.
// Models often wrap JSON in markdown fences; those are stripped before
// parsing. A response that still fails to parse returns
// ErrMalformedResponse wrapping the parse error.
func CompleteJSON(ctx context.Context, client Client, system, prompt string, v any) error {
	text, err := client.Complete(ctx, system, prompt)
	if err != nil {
		return err
	}

	cleaned := stripJSONFences(text)
	if err := json.Unmarshal([]byte(cleaned), v); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	return nil
}

// stripJSONFences removes a surrounding markdown code fence if present.
func stripJSONFences(text string) string {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	trimmed = strings.TrimPrefix(trimmed, "```json")
	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimSuffix(strings.TrimSpace(trimmed), "```")
	return strings.TrimSpace(trimmed)
}

// retryableError marks errors worth retrying (timeouts, 429s, 5xx).
type retryableError struct {
	err error
}

func (e *retryableError) Error() string { return e.err.Error() }

func (e *retryableError) Unwrap() error { return e.err }

func isRetryableError(err error) bool {
	var re *retryableError
	return errors.As(err, &re)
}

// withRetries runs fn with exponential backoff until it succeeds, a
// non-retryable error occurs, or the retry budget is exhausted.
func withRetries(ctx context.Context, maxRetries int, fn func() (string, error)) (string, error) {
	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			backoff := defaultBaseBackoff * time.Duration(1<<(attempt-1))
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}

		text, err := fn()
		if err == nil {
			return text, nil
		}
		lastErr = err
		if !isRetryableError(err) {
			return "", err
		}
	}
	return "", fmt.Errorf("max retries exceeded: %w", lastErr)
}
