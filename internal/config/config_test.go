package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	if cfg.Window.Lookahead != 4 || cfg.Window.RetentionDays != 120 {
		t.Fatalf("window defaults: %+v", cfg.Window)
	}
	if cfg.Interval() != 6*time.Hour {
		t.Fatalf("interval: got %v", cfg.Interval())
	}
	if cfg.Sonarr.RateLimit != 5 {
		t.Fatalf("sonarr rate limit: got %v", cfg.Sonarr.RateLimit)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv(ConfigPathEnvVar, "")
	t.Setenv("SONARR_URL", "http://sonarr:8989")
	t.Setenv("SONARR_API_KEY", "s-key")
	t.Setenv("TAUTULLI_URL", "http://tautulli:8181")
	t.Setenv("TAUTULLI_API_KEY", "t-key")
	t.Setenv("FUTURE_WINDOW", "6")
	t.Setenv("RETAIN_DAYS", "30")
	t.Setenv("ROLLING_INTERVAL_HOURS", "12")
	t.Setenv("DRY_RUN", "true")
	t.Setenv("LOG_FORMAT", "console")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Sonarr.URL != "http://sonarr:8989" || cfg.Sonarr.APIKey != "s-key" {
		t.Fatalf("sonarr: %+v", cfg.Sonarr)
	}
	if cfg.Tautulli.APIKey != "t-key" {
		t.Fatalf("tautulli: %+v", cfg.Tautulli)
	}
	if cfg.Window.Lookahead != 6 || cfg.Window.RetentionDays != 30 || cfg.Window.IntervalHours != 12 {
		t.Fatalf("window: %+v", cfg.Window)
	}
	if !cfg.Window.DryRun {
		t.Fatalf("dry run should be enabled")
	}
	if cfg.Logging.Format != "console" {
		t.Fatalf("format: got %q", cfg.Logging.Format)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	s := cfg.Settings()
	if s.Lookahead != 6 || s.RetentionDays != 30 || !s.DryRun {
		t.Fatalf("settings: %+v", s)
	}
}

func TestLoad_FileThenEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rollwin.yaml")
	body := `
addr: "0.0.0.0:9000"
sonarr:
  url: http://file-sonarr
  api_key: file-key
window:
  lookahead: 2
`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	t.Setenv("SONARR_URL", "http://env-sonarr")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Addr != "0.0.0.0:9000" {
		t.Fatalf("addr: got %q", cfg.Addr)
	}
	if cfg.Sonarr.URL != "http://env-sonarr" {
		t.Fatalf("env should override file, got %q", cfg.Sonarr.URL)
	}
	if cfg.Sonarr.APIKey != "file-key" {
		t.Fatalf("api key from file: got %q", cfg.Sonarr.APIKey)
	}
	if cfg.Window.Lookahead != 2 || cfg.Window.RetentionDays != 120 {
		t.Fatalf("window: %+v", cfg.Window)
	}
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatalf("want error for missing explicit config file")
	}
}

func TestValidate(t *testing.T) {
	cfg := Default()
	err := cfg.Validate()
	if err == nil {
		t.Fatalf("want error without api keys")
	}
	if !strings.Contains(err.Error(), "SONARR_URL") || !strings.Contains(err.Error(), "TAUTULLI_URL") {
		t.Fatalf("unexpected error: %v", err)
	}

	cfg.Sonarr = ServiceConfig{URL: "http://s", APIKey: "k"}
	cfg.Tautulli = ServiceConfig{URL: "http://t", APIKey: "k"}
	cfg.Window.Lookahead = 0
	if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), "lookahead") {
		t.Fatalf("want lookahead error, got %v", err)
	}
}
