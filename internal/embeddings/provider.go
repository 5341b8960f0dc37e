// Package embeddings provides embedding generation via remote providers.
package embeddings

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/fyrsmithlabs/askd/internal/vectorstore"
)

var (
	// ErrEmptyInput indicates empty or nil input texts.
	ErrEmptyInput = errors.New("empty or nil input texts")

	// ErrInvalidConfig indicates invalid configuration.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrEmbeddingFailed indicates embedding generation failure.
	ErrEmbeddingFailed = errors.New("embedding generation failed")
)

// Provider is the interface for embedding providers.
type Provider interface {
	vectorstore.Embedder

	// Dimension returns the embedding dimension for the current model.
	Dimension() int

	// Close releases resources held by the provider.
	Close() error
}

// ProviderConfig holds configuration for creating an embedding provider.
type ProviderConfig struct {
	// Provider is the provider type: "tei" or "openai". Default: "tei".
	Provider string

	// Model is the embedding model name.
	Model string

	// BaseURL is the provider endpoint base URL.
	BaseURL string

	// APIKey authenticates requests. Optional for TEI.
	APIKey string

	// Dimension overrides dimension detection when set.
	Dimension int
}

// detectDimension returns the embedding dimension for a model name,
// falling back to 384 for unknown models.
func detectDimension(model string) int {
	switch {
	case strings.Contains(model, "text-embedding-3-large"):
		return 3072
	case strings.Contains(model, "text-embedding-3-small"), strings.Contains(model, "ada-002"):
		return 1536
	case strings.Contains(model, "large"):
		return 1024
	case strings.Contains(model, "base"):
		return 768
	default:
		return 384
	}
}

// NewProvider creates an embedding provider based on the configuration.
func NewProvider(cfg ProviderConfig) (Provider, error) {
	dim := cfg.Dimension
	if dim == 0 {
		dim = detectDimension(cfg.Model)
	}

	switch cfg.Provider {
	case "tei", "":
		svc, err := NewTEIService(TEIConfig{
			BaseURL: cfg.BaseURL,
			Model:   cfg.Model,
		})
		if err != nil {
			return nil, err
		}
		return &remoteProvider{embedder: svc, dimension: dim}, nil
	case "openai":
		svc, err := NewOpenAIService(OpenAIConfig{
			BaseURL: cfg.BaseURL,
			Model:   cfg.Model,
			APIKey:  cfg.APIKey,
		})
		if err != nil {
			return nil, err
		}
		return &remoteProvider{embedder: svc, dimension: dim}, nil
	default:
		return nil, fmt.Errorf("%w: unknown provider %q", ErrInvalidConfig, cfg.Provider)
	}
}

// remoteProvider wraps an HTTP-backed embedder to implement Provider.
type remoteProvider struct {
	embedder  vectorstore.Embedder
	dimension int
}

func (p *remoteProvider) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	return p.embedder.EmbedDocuments(ctx, texts)
}

func (p *remoteProvider) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return p.embedder.EmbedQuery(ctx, text)
}

// Dimension returns the embedding dimension for the configured model.
func (p *remoteProvider) Dimension() int {
	return p.dimension
}

// Close is a no-op for HTTP-backed providers.
func (p *remoteProvider) Close() error {
	return nil
}
