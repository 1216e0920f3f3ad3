package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/Guilhem-Bonnet/Rolling-Window/internal/config"
)

func TestVersionCommand(t *testing.T) {
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"version"})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("version: %v", err)
	}
	if !strings.Contains(out.String(), `"version"`) {
		t.Fatalf("unexpected output: %s", out.String())
	}
}

func TestLoadConfig_FlagsOverride(t *testing.T) {
	t.Setenv(config.ConfigPathEnvVar, "")
	t.Setenv("SONARR_URL", "http://sonarr")
	t.Setenv("SONARR_API_KEY", "k")
	t.Setenv("TAUTULLI_URL", "http://tautulli")
	t.Setenv("TAUTULLI_API_KEY", "k")
	t.Setenv("ROLLWIN_ADDR", "0.0.0.0:1")

	cmd := newRootCommand()
	if err := cmd.ParseFlags([]string{"--addr", "127.0.0.1:9999", "--dry-run"}); err != nil {
		t.Fatalf("ParseFlags: %v", err)
	}
	flags := rootFlags{addr: "127.0.0.1:9999", dryRun: true}
	cfg, err := loadConfig(cmd, flags)
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if cfg.Addr != "127.0.0.1:9999" || !cfg.Window.DryRun {
		t.Fatalf("flags not applied: %+v", cfg)
	}
}

func TestLoadConfig_MissingKeys(t *testing.T) {
	t.Setenv(config.ConfigPathEnvVar, "")
	t.Setenv("SONARR_URL", "")
	t.Setenv("SONARR_API_KEY", "")
	cmd := newRootCommand()
	if _, err := loadConfig(cmd, rootFlags{}); err == nil {
		t.Fatalf("want validation error")
	}
}
