package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

const validYAML = `
server:
  addr: ":9090"
  log_level: "debug"
database:
  url: "postgres://bf:bf@localhost/bf"
redis:
  addr: "localhost:6379"
storage:
  endpoint: "localhost:9000"
  access_key: "minio"
  secret_key: "minio123"
auth:
  jwt_secret: "0123456789abcdef0123456789abcdef"
  session_ttl: "12h"
gemini:
  api_key: "test-key"
`

func TestLoadAppliesFileAndDefaults(t *testing.T) {
	path := writeConfigFile(t, validYAML)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Addr != ":9090" {
		t.Fatalf("addr not read from file: %q", cfg.Server.Addr)
	}
	if cfg.Auth.SessionTTL.Std() != 12*time.Hour {
		t.Fatalf("session ttl not parsed: %v", cfg.Auth.SessionTTL.Std())
	}
	if cfg.Storage.PicsBucket != "bot-pics" || cfg.Storage.DataBucket != "bot-data" {
		t.Fatalf("bucket defaults missing: %+v", cfg.Storage)
	}
	if cfg.Gemini.Model != "gemini-2.5-flash" {
		t.Fatalf("model default missing: %q", cfg.Gemini.Model)
	}
	if cfg.RateLimit.AuthLimit != 10 || cfg.RateLimit.AuthWindow.Std() != time.Minute {
		t.Fatalf("rate limit defaults missing: %+v", cfg.RateLimit)
	}
}

func TestLoadEnvOverridesFile(t *testing.T) {
	path := writeConfigFile(t, validYAML)
	t.Setenv("DATABASE_URL", "postgres://env:env@db/bf")
	t.Setenv("GEMINI_API_KEY", "env-key")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Database.URL != "postgres://env:env@db/bf" {
		t.Fatalf("env should override file: %q", cfg.Database.URL)
	}
	if cfg.Gemini.APIKey != "env-key" {
		t.Fatalf("env should override file: %q", cfg.Gemini.APIKey)
	}
}

func TestLoadReportsAllMissingFields(t *testing.T) {
	path := writeConfigFile(t, "server:\n  addr: \":8080\"\n")
	_, err := Load(path)
	if err == nil {
		t.Fatalf("expected validation error")
	}
	for _, want := range []string{"database.url", "jwt_secret", "gemini.api_key", "redis.addr"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("error should mention %s:\n%v", want, err)
		}
	}
}

func TestLoadRejectsShortJWTSecret(t *testing.T) {
	path := writeConfigFile(t, strings.Replace(validYAML,
		"0123456789abcdef0123456789abcdef", "short", 1))
	if _, err := Load(path); err == nil || !strings.Contains(err.Error(), "jwt_secret") {
		t.Fatalf("expected jwt_secret error, got %v", err)
	}
}

func TestLoadMissingFileUsesEnvOnly(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://env:env@db/bf")
	t.Setenv("REDIS_ADDR", "localhost:6379")
	t.Setenv("MINIO_ENDPOINT", "localhost:9000")
	t.Setenv("JWT_SECRET", strings.Repeat("s", 32))
	t.Setenv("GEMINI_API_KEY", "env-key")
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("load from env only: %v", err)
	}
	if cfg.Server.Addr != ":8080" {
		t.Fatalf("default addr missing: %q", cfg.Server.Addr)
	}
}
