package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/Guilhem-Bonnet/Rolling-Window/internal/adapters/httpapi"
	"github.com/Guilhem-Bonnet/Rolling-Window/internal/adapters/memorybus"
	"github.com/Guilhem-Bonnet/Rolling-Window/internal/adapters/sonarr"
	"github.com/Guilhem-Bonnet/Rolling-Window/internal/adapters/sqlite"
	"github.com/Guilhem-Bonnet/Rolling-Window/internal/adapters/tautulli"
	"github.com/Guilhem-Bonnet/Rolling-Window/internal/app"
	"github.com/Guilhem-Bonnet/Rolling-Window/internal/buildinfo"
	"github.com/Guilhem-Bonnet/Rolling-Window/internal/config"
	"github.com/Guilhem-Bonnet/Rolling-Window/internal/domain"
)

func newLogger(cfg config.LoggingConfig) zerolog.Logger {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}
	var out io.Writer = os.Stdout
	if cfg.Format == "console" {
		out = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	}
	if cfg.File != "" {
		// Le fichier reste en JSON, quel que soit le format console.
		out = zerolog.MultiLevelWriter(out, &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   true,
		})
	}
	logger := zerolog.New(out).Level(level).With().Timestamp().Str("app", "rollwind").Logger()
	log.Logger = logger
	return logger
}

type services struct {
	db        *sqlite.DB
	bus       *memorybus.Bus
	sonarr    *sonarr.Client
	tautulli  *tautulli.Client
	settings  *app.SettingsService
	rolling   *app.RollingService
	scheduler *app.Scheduler
}

func (s *services) Close() {
	s.bus.Close()
	_ = s.db.Close()
}

func wire(ctx context.Context, cfg config.Config, logger zerolog.Logger) (*services, error) {
	db, err := sqlite.Open(ctx, cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	tautulliOpts := tautulli.DefaultOptions()
	tautulliOpts.BaseURL = cfg.Tautulli.URL
	tautulliOpts.APIKey = cfg.Tautulli.APIKey
	tautulliOpts.Timeout = cfg.Tautulli.Timeout
	history, err := tautulli.New(logger.With().Str("component", "tautulli").Logger(), tautulliOpts)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	sonarrOpts := sonarr.DefaultOptions()
	sonarrOpts.BaseURL = cfg.Sonarr.URL
	sonarrOpts.APIKey = cfg.Sonarr.APIKey
	sonarrOpts.Timeout = cfg.Sonarr.Timeout
	sonarrOpts.RequestsPerSecond = cfg.Sonarr.RateLimit
	catalog, err := sonarr.New(logger.With().Str("component", "sonarr").Logger(), sonarrOpts)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	bus := memorybus.New()
	// Les paramètres en base priment ; la configuration ne fournit que les valeurs initiales.
	settingsRepo := sqlite.NewSettingsRepository(db.SQL, cfg.Settings())
	runsRepo := sqlite.NewRunsRepository(db.SQL)

	window := app.NewHistoryWindow(logger.With().Str("component", "history").Logger(), history)
	rolling := app.NewRollingService(logger.With().Str("component", "rolling").Logger(), window, catalog, settingsRepo, runsRepo, bus)

	scheduler := app.NewScheduler(logger.With().Str("component", "scheduler").Logger(), rolling, runsRepo)
	scheduler.Interval = cfg.Interval()
	scheduler.RunOnStart = cfg.Window.RunOnStart
	scheduler.RunsRetention = domain.Days(cfg.Window.RunsRetentionDays)

	return &services{
		db:        db,
		bus:       bus,
		sonarr:    catalog,
		tautulli:  history,
		settings:  app.NewSettingsService(settingsRepo, bus),
		rolling:   rolling,
		scheduler: scheduler,
	}, nil
}

func serve(ctx context.Context, cfg config.Config) error {
	logger := newLogger(cfg.Logging)
	logger.Info().Interface("build", buildinfo.Current()).Str("db", cfg.DBPath).Msg("starting")

	svc, err := wire(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer svc.Close()

	if s, err := svc.settings.Get(ctx); err == nil {
		logger.Info().Int("lookahead", s.Lookahead).Int("retention_days", s.RetentionDays).Bool("dry_run", s.DryRun).Msg("window settings")
	}

	srv := httpapi.NewServer(logger, httpapi.Options{
		Runs:     svc.rolling,
		Trigger:  svc.scheduler,
		Settings: svc.settings,
		Bus:      svc.bus,
		Checks: map[string]httpapi.Pinger{
			"sonarr":   svc.sonarr,
			"tautulli": svc.tautulli,
		},
	})

	g, gctx := errgroup.WithContext(ctx)
	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 5 * time.Second,
		// Les flux SSE se terminent avec gctx.
		BaseContext: func(net.Listener) context.Context { return gctx },
	}

	g.Go(func() error {
		logger.Info().Dur("interval", cfg.Interval()).Msg("scheduler started")
		svc.scheduler.Run(gctx)
		return nil
	})
	g.Go(func() error {
		logger.Info().Str("addr", cfg.Addr).Msg("listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info().Msg("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	err = g.Wait()
	logger.Info().Msg("bye")
	return err
}

func runOnce(ctx context.Context, cfg config.Config) (app.RunDTO, error) {
	logger := newLogger(cfg.Logging)
	svc, err := wire(ctx, cfg, logger)
	if err != nil {
		return app.RunDTO{}, err
	}
	defer svc.Close()
	return svc.scheduler.RunNow(ctx)
}
