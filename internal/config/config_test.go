package config

import (
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"time"
)

func validConfig() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:   "defaults are valid",
			mutate: func(*Config) {},
		},
		{
			name:    "port out of range",
			mutate:  func(c *Config) { c.Server.HTTPPort = 70000 },
			wantErr: "server.http_port",
		},
		{
			name:    "negative shutdown timeout",
			mutate:  func(c *Config) { c.Server.ShutdownTimeout = -time.Second },
			wantErr: "server.shutdown_timeout",
		},
		{
			name:    "bad log format",
			mutate:  func(c *Config) { c.Logging.Format = "xml" },
			wantErr: "logging.format",
		},
		{
			name:    "unknown vector store provider",
			mutate:  func(c *Config) { c.VectorStore.Provider = "pinecone" },
			wantErr: "vectorstore.provider",
		},
		{
			name:    "unknown embeddings provider",
			mutate:  func(c *Config) { c.Embeddings.Provider = "cohere" },
			wantErr: "embeddings.provider",
		},
		{
			name:    "unknown llm provider",
			mutate:  func(c *Config) { c.LLM.Provider = "ollama" },
			wantErr: "llm.provider",
		},
		{
			name:    "zero top_k",
			mutate:  func(c *Config) { c.Agent.TopK = -1 },
			wantErr: "agent.top_k",
		},
		{
			name: "refresh interval too short",
			mutate: func(c *Config) {
				c.Refresh.Enabled = true
				c.Refresh.Interval = time.Second
			},
			wantErr: "refresh.interval",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate() error = %v, want nil", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("Validate() error = nil, want %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want substring %q", err, tt.wantErr)
			}
		})
	}
}

func TestSecretRedaction(t *testing.T) {
	s := Secret("hunter2")

	if got := s.String(); got != "[REDACTED]" {
		t.Errorf("String() = %q, want [REDACTED]", got)
	}
	if got := fmt.Sprintf("token=%v", s); strings.Contains(got, "hunter2") {
		t.Errorf("fmt output leaked secret: %q", got)
	}
	if got := s.Value(); got != "hunter2" {
		t.Errorf("Value() = %q, want hunter2", got)
	}

	raw, err := json.Marshal(struct {
		Token Secret `json:"token"`
	}{Token: s})
	if err != nil {
		t.Fatalf("json.Marshal error = %v", err)
	}
	if strings.Contains(string(raw), "hunter2") {
		t.Errorf("JSON output leaked secret: %s", raw)
	}

	if got := Secret("").String(); got != "" {
		t.Errorf("empty Secret String() = %q, want empty", got)
	}
}
