// Package config loads and validates the askd daemon configuration from
// a YAML file with environment variable overrides.
package config

import (
	"fmt"
	"time"
)

// Secret wraps sensitive string values so they never leak through
// fmt verbs or structured log fields.
type Secret string

// String implements fmt.Stringer and redacts the value.
func (s Secret) String() string {
	if s == "" {
		return ""
	}
	return "[REDACTED]"
}

// Value returns the underlying secret for use at the point of
// authentication. Callers must not log the result.
func (s Secret) Value() string {
	return string(s)
}

// MarshalJSON redacts the value when the config is serialized.
func (s Secret) MarshalJSON() ([]byte, error) {
	if s == "" {
		return []byte(`""`), nil
	}
	return []byte(`"[REDACTED]"`), nil
}

// Config is the root configuration for the askd daemon.
type Config struct {
	Server      ServerConfig      `koanf:"server"`
	Logging     LoggingConfig     `koanf:"logging"`
	VectorStore VectorStoreConfig `koanf:"vectorstore"`
	Embeddings  EmbeddingsConfig  `koanf:"embeddings"`
	LLM         LLMConfig         `koanf:"llm"`
	Agent       AgentConfig       `koanf:"agent"`
	Jira        JiraConfig        `koanf:"jira"`
	Confluence  ConfluenceConfig  `koanf:"confluence"`
	Refresh     RefreshConfig     `koanf:"refresh"`
}

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	HTTPPort        int           `koanf:"http_port"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// LoggingConfig controls the zap logger.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// VectorStoreConfig selects and configures the vector store backend.
type VectorStoreConfig struct {
	Provider string        `koanf:"provider"`
	Chromem  ChromemConfig `koanf:"chromem"`
	Qdrant   QdrantConfig  `koanf:"qdrant"`
}

// ChromemConfig configures the embedded chromem-go backend.
type ChromemConfig struct {
	Path       string `koanf:"path"`
	Compress   bool   `koanf:"compress"`
	Collection string `koanf:"collection"`
}

// QdrantConfig configures the remote qdrant backend.
type QdrantConfig struct {
	Host       string `koanf:"host"`
	Port       int    `koanf:"port"`
	Collection string `koanf:"collection"`
	VectorSize uint64 `koanf:"vector_size"`
	UseTLS     bool   `koanf:"use_tls"`
}

// EmbeddingsConfig configures the embedding provider.
type EmbeddingsConfig struct {
	Provider  string `koanf:"provider"`
	BaseURL   string `koanf:"base_url"`
	Model     string `koanf:"model"`
	APIKey    Secret `koanf:"api_key"`
	Dimension int    `koanf:"dimension"`
}

// LLMConfig configures the completion client used by the agent.
type LLMConfig struct {
	Provider string `koanf:"provider"`
	Model    string `koanf:"model"`
	APIKey   Secret `koanf:"api_key"`
	BaseURL  string `koanf:"base_url"`
	Timeout  int    `koanf:"timeout"`
}

// AgentConfig tunes query answering.
type AgentConfig struct {
	TopK int `koanf:"top_k"`
}

// JiraConfig configures the Jira source adapter. Leaving BaseURL empty
// disables the issue source.
type JiraConfig struct {
	BaseURL  string `koanf:"base_url"`
	Email    string `koanf:"email"`
	APIToken Secret `koanf:"api_token"`
	Project  string `koanf:"project"`
	DaysBack int    `koanf:"days_back"`
}

// ConfluenceConfig configures the Confluence source adapter. Leaving
// BaseURL empty disables the page source.
type ConfluenceConfig struct {
	BaseURL  string `koanf:"base_url"`
	Email    string `koanf:"email"`
	APIToken Secret `koanf:"api_token"`
	SpaceKey string `koanf:"space_key"`
}

// RefreshConfig controls the background re-ingestion loop.
type RefreshConfig struct {
	Enabled  bool          `koanf:"enabled"`
	Interval time.Duration `koanf:"interval"`
}

func (c *Config) applyDefaults() {
	if c.Server.HTTPPort == 0 {
		c.Server.HTTPPort = 8420
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = 10 * time.Second
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
	if c.VectorStore.Provider == "" {
		c.VectorStore.Provider = "chromem"
	}
	if c.VectorStore.Qdrant.Host == "" {
		c.VectorStore.Qdrant.Host = "localhost"
	}
	if c.VectorStore.Qdrant.Port == 0 {
		c.VectorStore.Qdrant.Port = 6334
	}
	if c.Embeddings.Provider == "" {
		c.Embeddings.Provider = "tei"
	}
	if c.LLM.Provider == "" {
		c.LLM.Provider = "anthropic"
	}
	if c.Agent.TopK == 0 {
		c.Agent.TopK = 5
	}
	if c.Jira.DaysBack == 0 {
		c.Jira.DaysBack = 30
	}
	if c.Refresh.Interval == 0 {
		c.Refresh.Interval = time.Hour
	}
}

// Validate checks the configuration for values that would fail at
// runtime. It is called by Load after defaults are applied.
func (c *Config) Validate() error {
	if c.Server.HTTPPort < 1 || c.Server.HTTPPort > 65535 {
		return fmt.Errorf("server.http_port must be between 1 and 65535, got %d", c.Server.HTTPPort)
	}
	if c.Server.ShutdownTimeout < 0 {
		return fmt.Errorf("server.shutdown_timeout must not be negative")
	}
	switch c.Logging.Format {
	case "json", "console":
	default:
		return fmt.Errorf("logging.format must be json or console, got %q", c.Logging.Format)
	}
	switch c.VectorStore.Provider {
	case "chromem", "qdrant":
	default:
		return fmt.Errorf("vectorstore.provider must be chromem or qdrant, got %q", c.VectorStore.Provider)
	}
	if c.VectorStore.Provider == "qdrant" && c.VectorStore.Qdrant.Port < 1 {
		return fmt.Errorf("vectorstore.qdrant.port must be positive, got %d", c.VectorStore.Qdrant.Port)
	}
	switch c.Embeddings.Provider {
	case "tei", "openai":
	default:
		return fmt.Errorf("embeddings.provider must be tei or openai, got %q", c.Embeddings.Provider)
	}
	switch c.LLM.Provider {
	case "anthropic", "openai":
	default:
		return fmt.Errorf("llm.provider must be anthropic or openai, got %q", c.LLM.Provider)
	}
	if c.Agent.TopK < 1 {
		return fmt.Errorf("agent.top_k must be positive, got %d", c.Agent.TopK)
	}
	if c.Jira.DaysBack < 1 {
		return fmt.Errorf("jira.days_back must be positive, got %d", c.Jira.DaysBack)
	}
	if c.Refresh.Enabled && c.Refresh.Interval < time.Minute {
		return fmt.Errorf("refresh.interval must be at least 1m, got %s", c.Refresh.Interval)
	}
	return nil
}
