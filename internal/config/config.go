// Package config charge la configuration du démon : valeurs par défaut,
// fichier YAML optionnel, puis variables d'environnement.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"

	"github.com/Guilhem-Bonnet/Rolling-Window/internal/domain"
)

const ConfigPathEnvVar = "ROLLWIN_CONFIG"

var DefaultConfigPaths = []string{
	"rollwin.yaml",
	"rollwin.yml",
	"/etc/rollwin/config.yaml",
}

type Config struct {
	Addr   string `koanf:"addr"`
	DBPath string `koanf:"db_path"`

	Sonarr   ServiceConfig `koanf:"sonarr"`
	Tautulli ServiceConfig `koanf:"tautulli"`

	Window  WindowConfig  `koanf:"window"`
	Logging LoggingConfig `koanf:"logging"`
}

type ServiceConfig struct {
	URL     string        `koanf:"url"`
	APIKey  string        `koanf:"api_key"`
	Timeout time.Duration `koanf:"timeout"`
	// Sonarr uniquement : requêtes par seconde.
	RateLimit float64 `koanf:"rate_limit"`
}

type WindowConfig struct {
	Lookahead        int  `koanf:"lookahead"`
	RetentionDays    int  `koanf:"retention_days"`
	IntervalHours    int  `koanf:"interval_hours"`
	IncludeIdleShows bool `koanf:"include_idle_shows"`
	DryRun           bool `koanf:"dry_run"`
	RunOnStart       bool `koanf:"run_on_start"`
	// Conservation de l'historique des runs, en jours.
	RunsRetentionDays int `koanf:"runs_retention_days"`
}

type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	// Fichier optionnel, en plus de stdout, avec rotation.
	File       string `koanf:"file"`
	MaxSizeMB  int    `koanf:"max_size_mb"`
	MaxBackups int    `koanf:"max_backups"`
	MaxAgeDays int    `koanf:"max_age_days"`
}

func Default() Config {
	return Config{
		Addr:   "127.0.0.1:8686",
		DBPath: "rollwin.db",
		Sonarr: ServiceConfig{
			Timeout:   30 * time.Second,
			RateLimit: 5,
		},
		Tautulli: ServiceConfig{
			Timeout: 30 * time.Second,
		},
		Window: WindowConfig{
			Lookahead:         domain.DefaultLookahead,
			RetentionDays:     domain.DefaultRetentionDays,
			IntervalHours:     domain.DefaultIntervalHours,
			RunOnStart:        true,
			RunsRetentionDays: 30,
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "json",
			MaxSizeMB:  20,
			MaxBackups: 5,
			MaxAgeDays: 30,
		},
	}
}

// Load applique dans l'ordre : défauts, fichier (explicitPath, ROLLWIN_CONFIG
// ou chemins connus), environnement.
func Load(explicitPath string) (Config, error) {
	k := koanf.New(".")

	defaults := Default()
	if err := k.Load(structs.Provider(defaults, "koanf"), nil); err != nil {
		return Config{}, fmt.Errorf("load defaults: %w", err)
	}

	path, err := findConfigFile(explicitPath)
	if err != nil {
		return Config{}, err
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return Config{}, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider("", ".", envTransform), nil); err != nil {
		return Config{}, fmt.Errorf("load environment: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	return cfg, nil
}

func findConfigFile(explicitPath string) (string, error) {
	if explicitPath != "" {
		if _, err := os.Stat(explicitPath); err != nil {
			return "", fmt.Errorf("config file: %w", err)
		}
		return explicitPath, nil
	}
	if p := os.Getenv(ConfigPathEnvVar); p != "" {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}
	for _, p := range DefaultConfigPaths {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}
	return "", nil
}

// Noms historiques des variables conservés pour les déploiements existants.
var envMappings = map[string]string{
	"sonarr_url":             "sonarr.url",
	"sonarr_api_key":         "sonarr.api_key",
	"sonarr_timeout":         "sonarr.timeout",
	"sonarr_rate_limit":      "sonarr.rate_limit",
	"tautulli_url":           "tautulli.url",
	"tautulli_api_key":       "tautulli.api_key",
	"tautulli_timeout":       "tautulli.timeout",
	"future_window":          "window.lookahead",
	"retain_days":            "window.retention_days",
	"rolling_interval_hours": "window.interval_hours",
	"include_idle_shows":     "window.include_idle_shows",
	"dry_run":                "window.dry_run",
	"run_on_start":           "window.run_on_start",
	"runs_retention_days":    "window.runs_retention_days",
	"rollwin_addr":           "addr",
	"rollwin_db_path":        "db_path",
	"log_level":              "logging.level",
	"log_format":             "logging.format",
	"log_file":               "logging.file",
}

func envTransform(key string) string {
	if mapped, ok := envMappings[strings.ToLower(key)]; ok {
		return mapped
	}
	return ""
}

func (c Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Sonarr.URL) == "" || strings.TrimSpace(c.Sonarr.APIKey) == "" {
		errs = append(errs, errors.New("SONARR_URL and SONARR_API_KEY are required"))
	}
	if strings.TrimSpace(c.Tautulli.URL) == "" || strings.TrimSpace(c.Tautulli.APIKey) == "" {
		errs = append(errs, errors.New("TAUTULLI_URL and TAUTULLI_API_KEY are required"))
	}
	if c.Window.Lookahead <= 0 {
		errs = append(errs, fmt.Errorf("lookahead must be positive, got %d", c.Window.Lookahead))
	}
	if c.Window.RetentionDays <= 0 {
		errs = append(errs, fmt.Errorf("retention_days must be positive, got %d", c.Window.RetentionDays))
	}
	if c.Window.IntervalHours <= 0 {
		errs = append(errs, fmt.Errorf("interval_hours must be positive, got %d", c.Window.IntervalHours))
	}
	switch c.Logging.Format {
	case "json", "console":
	default:
		errs = append(errs, fmt.Errorf("logging.format must be json or console, got %q", c.Logging.Format))
	}
	return errors.Join(errs...)
}

// Settings renvoie les paramètres de fenêtre initiaux, avant surcharge en base.
func (c Config) Settings() domain.Settings {
	return domain.Settings{
		Lookahead:        c.Window.Lookahead,
		RetentionDays:    c.Window.RetentionDays,
		IncludeIdleShows: c.Window.IncludeIdleShows,
		DryRun:           c.Window.DryRun,
	}
}

func (c Config) Interval() time.Duration {
	return time.Duration(c.Window.IntervalHours) * time.Hour
}
