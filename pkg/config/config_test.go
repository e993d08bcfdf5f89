package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/user/alttext-service/internal/entity"
)

func writeEnvFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.env")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(writeEnvFile(t, "SERVER_PORT=9090\n"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.ServerPort != "9090" {
		t.Fatalf("expected port from file, got %q", cfg.ServerPort)
	}
	s, err := cfg.Settings()
	if err != nil {
		t.Fatalf("Settings failed: %v", err)
	}
	if !s.Enabled || s.AltSource != entity.AltSourceHeuristic || s.InjectionMethod != InjectServerBuffer {
		t.Fatalf("unexpected defaults %+v", s)
	}
	if s.MaxAltLength != 125 || s.BatchSize != 50 || s.LogRetentionDays != 30 {
		t.Fatalf("unexpected numeric defaults %+v", s)
	}
	if s.AICacheTTL != 90*24*time.Hour {
		t.Fatalf("unexpected cache ttl %s", s.AICacheTTL)
	}
	if s.AI.Method != "POST" || s.LogLevel != entity.SeverityInfo {
		t.Fatalf("unexpected ai defaults %+v", s.AI)
	}
}

func TestSettingsClampsRanges(t *testing.T) {
	cfg := &Config{MaxAltLength: 10, AICacheTTLDays: 1000, BatchSize: 5000, LogRetentionDays: 1}
	s, err := cfg.Settings()
	if err != nil {
		t.Fatalf("Settings failed: %v", err)
	}
	if s.MaxAltLength != 50 || s.AICacheTTL != 365*24*time.Hour || s.BatchSize != 500 || s.LogRetentionDays != 7 {
		t.Fatalf("unexpected clamping %+v", s)
	}
}

func TestSettingsRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{name: "alt source", cfg: Config{AltSource: "magic"}},
		{name: "injection method", cfg: Config{InjectionMethod: "inline"}},
		{name: "bulk scope", cfg: Config{BulkScope: "everything"}},
		{name: "log level", cfg: Config{LogLevel: "verbose"}},
		{name: "ai method", cfg: Config{AIMethod: "PUT"}},
		{name: "ai headers", cfg: Config{AIHeaders: "{not json"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := tt.cfg.Settings(); !errors.Is(err, ErrInvalidConfig) {
				t.Fatalf("expected ErrInvalidConfig, got %v", err)
			}
		})
	}
}

func TestAIKeyEnvironmentOverride(t *testing.T) {
	t.Setenv(AIKeyEnv, "from-env")
	t.Setenv("AI_HEADERS", `{"X-Org":"acme"}`)
	cfg, err := Load(writeEnvFile(t, "AI_KEY=stored\n"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	s, err := cfg.Settings()
	if err != nil {
		t.Fatalf("Settings failed: %v", err)
	}
	if s.AI.Key != "from-env" {
		t.Fatalf("expected env key to win, got %q", s.AI.Key)
	}
	if s.AI.Headers["X-Org"] != "acme" {
		t.Fatalf("headers not parsed: %v", s.AI.Headers)
	}
}

func TestLoadMissingExplicitFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.env")); err == nil {
		t.Fatal("expected error for missing config file")
	}
}
