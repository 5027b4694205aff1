package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("MONGODB_URI", "")
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("SESSION_LENGTH_REFRESH_ENABLED", "")
	t.Setenv("SESSION_LENGTH_REFRESH_MINUTES", "")

	cfg := Load()

	if cfg.Port != "8000" {
		t.Errorf("default port = %q, want 8000", cfg.Port)
	}
	if !cfg.RefreshEnabled {
		t.Error("refresh should default to enabled")
	}
	if cfg.RefreshInterval != 30*time.Minute {
		t.Errorf("default refresh interval = %v, want 30m", cfg.RefreshInterval)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("PORT", "9999")
	t.Setenv("MONGODB_URI", "mongodb://localhost:27017/test")
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("SESSION_LENGTH_REFRESH_ENABLED", "false")
	t.Setenv("SESSION_LENGTH_REFRESH_MINUTES", "5")

	cfg := Load()

	if cfg.Port != "9999" {
		t.Errorf("port = %q, want 9999", cfg.Port)
	}
	if cfg.MongoURI != "mongodb://localhost:27017/test" {
		t.Errorf("mongo uri = %q", cfg.MongoURI)
	}
	if cfg.RefreshEnabled {
		t.Error("refresh should be disabled")
	}
	if cfg.RefreshInterval != 5*time.Minute {
		t.Errorf("refresh interval = %v, want 5m", cfg.RefreshInterval)
	}
}

func TestLoad_YAMLOverlay(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := []byte("port: \"7070\"\nmongo_uri: mongodb://overlay:27017/db\n")
	if err := os.WriteFile(path, content, 0o600); err != nil {
		t.Fatalf("failed to write overlay file: %v", err)
	}

	t.Setenv("PORT", "9999")
	t.Setenv("MONGODB_URI", "mongodb://env:27017/db")
	t.Setenv("REDIS_URL", "redis://env:6379")
	t.Setenv("CONFIG_FILE", path)

	cfg := Load()

	// Overlay values win over the environment
	if cfg.Port != "7070" {
		t.Errorf("port = %q, want overlay value 7070", cfg.Port)
	}
	if cfg.MongoURI != "mongodb://overlay:27017/db" {
		t.Errorf("mongo uri = %q, want overlay value", cfg.MongoURI)
	}
	// Keys absent from the overlay keep the env-derived values
	if cfg.RedisURL != "redis://env:6379" {
		t.Errorf("redis url = %q, want env value", cfg.RedisURL)
	}
}

func TestGetBoolEnv(t *testing.T) {
	t.Setenv("TEST_BOOL", "not-a-bool")
	if got := getBoolEnv("TEST_BOOL", true); !got {
		t.Error("unparseable value should keep the default")
	}
	t.Setenv("TEST_BOOL", "false")
	if got := getBoolEnv("TEST_BOOL", true); got {
		t.Error("explicit false should override the default")
	}
}
