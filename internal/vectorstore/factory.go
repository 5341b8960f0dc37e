package vectorstore

import (
	"fmt"

	"go.uber.org/zap"
)

// Provider identifies a vector store backend.
type Provider string

const (
	// ProviderChromem is the embedded, file-backed store. Default.
	ProviderChromem Provider = "chromem"

	// ProviderQdrant is the external Qdrant server over gRPC.
	ProviderQdrant Provider = "qdrant"
)

// Config selects and configures a vector store backend.
type Config struct {
	Provider Provider
	Chromem  ChromemConfig
	Qdrant   QdrantConfig
}

// ApplyDefaults sets default values for unset fields.
func (c *Config) ApplyDefaults() {
	if c.Provider == "" {
		c.Provider = ProviderChromem
	}
	c.Chromem.ApplyDefaults()
	c.Qdrant.ApplyDefaults()
}

// NewStore creates the configured vector store backend.
func NewStore(config Config, embedder Embedder, logger *zap.Logger) (Store, error) {
	config.ApplyDefaults()

	switch config.Provider {
	case ProviderChromem:
		return NewChromemStore(config.Chromem, embedder, logger)
	case ProviderQdrant:
		return NewQdrantStore(config.Qdrant, embedder, logger)
	default:
		return nil, fmt.Errorf("%w: unknown provider %q", ErrInvalidConfig, config.Provider)
	}
}
