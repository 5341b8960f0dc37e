package config

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"
)

// setupTestHome points HOME at a temp dir so tests never touch the
// real ~/.config/askd.
func setupTestHome(t *testing.T) string {
	t.Helper()
	tmpHome := t.TempDir()
	t.Setenv("HOME", tmpHome)
	return tmpHome
}

func writeTestConfig(t *testing.T, home, content string) string {
	t.Helper()
	configDir := filepath.Join(home, ".config", "askd")
	if err := os.MkdirAll(configDir, 0700); err != nil {
		t.Fatalf("Failed to create config dir: %v", err)
	}
	configPath := filepath.Join(configDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}
	return configPath
}

func TestLoad_ValidYAML(t *testing.T) {
	home := setupTestHome(t)

	configPath := writeTestConfig(t, home, `server:
  http_port: 9090

vectorstore:
  provider: qdrant
  qdrant:
    host: qdrant.internal
    collection: askd_prod

jira:
  base_url: https://example.atlassian.net
  email: bot@example.com
  api_token: s3cret
  project: PROJ
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v, want nil", err)
	}

	if cfg.Server.HTTPPort != 9090 {
		t.Errorf("Server.HTTPPort = %d, want 9090", cfg.Server.HTTPPort)
	}
	if cfg.VectorStore.Provider != "qdrant" {
		t.Errorf("VectorStore.Provider = %q, want qdrant", cfg.VectorStore.Provider)
	}
	if cfg.VectorStore.Qdrant.Host != "qdrant.internal" {
		t.Errorf("Qdrant.Host = %q, want qdrant.internal", cfg.VectorStore.Qdrant.Host)
	}
	if cfg.Jira.APIToken.Value() != "s3cret" {
		t.Errorf("Jira.APIToken.Value() = %q, want s3cret", cfg.Jira.APIToken.Value())
	}
}

func TestLoad_Defaults(t *testing.T) {
	setupTestHome(t)

	// No config file present; defaults apply.
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v, want nil", err)
	}

	if cfg.Server.HTTPPort != 8420 {
		t.Errorf("Server.HTTPPort = %d, want 8420", cfg.Server.HTTPPort)
	}
	if cfg.Server.ShutdownTimeout != 10*time.Second {
		t.Errorf("Server.ShutdownTimeout = %s, want 10s", cfg.Server.ShutdownTimeout)
	}
	if cfg.VectorStore.Provider != "chromem" {
		t.Errorf("VectorStore.Provider = %q, want chromem", cfg.VectorStore.Provider)
	}
	if cfg.Embeddings.Provider != "tei" {
		t.Errorf("Embeddings.Provider = %q, want tei", cfg.Embeddings.Provider)
	}
	if cfg.LLM.Provider != "anthropic" {
		t.Errorf("LLM.Provider = %q, want anthropic", cfg.LLM.Provider)
	}
	if cfg.Agent.TopK != 5 {
		t.Errorf("Agent.TopK = %d, want 5", cfg.Agent.TopK)
	}
	if cfg.Jira.DaysBack != 30 {
		t.Errorf("Jira.DaysBack = %d, want 30", cfg.Jira.DaysBack)
	}
	if cfg.Refresh.Interval != time.Hour {
		t.Errorf("Refresh.Interval = %s, want 1h", cfg.Refresh.Interval)
	}
}

func TestLoad_EnvironmentOverride(t *testing.T) {
	home := setupTestHome(t)

	configPath := writeTestConfig(t, home, `server:
  http_port: 9090

llm:
  provider: anthropic
`)

	t.Setenv("SERVER_HTTP_PORT", "7777")
	t.Setenv("LLM_API_KEY", "env-token")
	t.Setenv("REFRESH_INTERVAL", "30m")

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v, want nil", err)
	}

	if cfg.Server.HTTPPort != 7777 {
		t.Errorf("Server.HTTPPort = %d, want 7777 (env override)", cfg.Server.HTTPPort)
	}
	if cfg.LLM.APIKey.Value() != "env-token" {
		t.Errorf("LLM.APIKey.Value() = %q, want env-token", cfg.LLM.APIKey.Value())
	}
	if cfg.Refresh.Interval != 30*time.Minute {
		t.Errorf("Refresh.Interval = %s, want 30m", cfg.Refresh.Interval)
	}
}

func TestLoad_RejectsPathOutsideAllowedDirs(t *testing.T) {
	setupTestHome(t)

	outside := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(outside, []byte("server:\n  http_port: 9090\n"), 0600); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}

	_, err := Load(outside)
	if err == nil {
		t.Fatal("Load() error = nil, want path validation error")
	}
	if !strings.Contains(err.Error(), "config file must be in") {
		t.Errorf("error = %v, want allowed-directory message", err)
	}
}

func TestLoad_RejectsInsecurePermissions(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("permission checks are skipped on Windows")
	}
	home := setupTestHome(t)

	configPath := writeTestConfig(t, home, "server:\n  http_port: 9090\n")
	if err := os.Chmod(configPath, 0644); err != nil {
		t.Fatalf("Failed to chmod config: %v", err)
	}

	_, err := Load(configPath)
	if err == nil {
		t.Fatal("Load() error = nil, want permission error")
	}
	if !strings.Contains(err.Error(), "insecure config file permissions") {
		t.Errorf("error = %v, want insecure permissions message", err)
	}
}

func TestLoad_RejectsInvalidValues(t *testing.T) {
	home := setupTestHome(t)

	configPath := writeTestConfig(t, home, "vectorstore:\n  provider: pinecone\n")

	_, err := Load(configPath)
	if err == nil {
		t.Fatal("Load() error = nil, want validation error")
	}
	if !strings.Contains(err.Error(), "vectorstore.provider") {
		t.Errorf("error = %v, want vectorstore.provider message", err)
	}
}

func TestEnsureConfigDir(t *testing.T) {
	home := setupTestHome(t)

	if err := EnsureConfigDir(); err != nil {
		t.Fatalf("EnsureConfigDir() error = %v, want nil", err)
	}

	info, err := os.Stat(filepath.Join(home, ".config", "askd"))
	if err != nil {
		t.Fatalf("config dir not created: %v", err)
	}
	if !info.IsDir() {
		t.Error("config path is not a directory")
	}
	if runtime.GOOS != "windows" && info.Mode().Perm() != 0700 {
		t.Errorf("config dir permissions = %v, want 0700", info.Mode().Perm())
	}
}
