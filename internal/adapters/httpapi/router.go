package httpapi

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"

	"github.com/Guilhem-Bonnet/Rolling-Window/internal/app"
	"github.com/Guilhem-Bonnet/Rolling-Window/internal/domain"
	"github.com/Guilhem-Bonnet/Rolling-Window/internal/ports"
)

// RunService est la partie du service de cycle exposée par l'API.
type RunService interface {
	List(ctx context.Context, limit int) ([]app.RunDTO, error)
	Get(ctx context.Context, id string) (app.RunDTO, error)
	Preview(ctx context.Context) (app.RunDTO, error)
}

// Trigger lance un cycle en arrière-plan ou renvoie app.ErrCycleInProgress
// (app.ErrSchedulerStopped pendant l'arrêt).
type Trigger interface {
	Trigger() error
}

type SettingsService interface {
	Get(ctx context.Context) (domain.Settings, error)
	Put(ctx context.Context, settings domain.Settings) (domain.Settings, error)
}

// Pinger vérifie qu'une dépendance externe répond.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Options struct {
	Runs     RunService
	Trigger  Trigger
	Settings SettingsService
	Bus      ports.EventBus
	// Dépendances vérifiées par /health?deep=true, par nom.
	Checks map[string]Pinger
}

type Server struct {
	logger zerolog.Logger
	opts   Options
}

func NewServer(logger zerolog.Logger, opts Options) *Server {
	return &Server{logger: logger, opts: opts}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(hlog.NewHandler(s.logger))
	r.Use(hlog.RequestIDHandler("request_id", "Request-Id"))
	r.Use(hlog.RemoteAddrHandler("remote_ip"))
	r.Use(hlog.UserAgentHandler("user_agent"))
	r.Use(hlog.AccessHandler(accessLogFn))

	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		// Flux SSE : pas de timeout de requête.
		r.Get("/events", s.handleEvents)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(defaultRequestTimeout))

			r.Get("/health", s.handleHealth)
			r.Get("/version", s.handleVersion)
			r.Get("/openapi.json", s.handleOpenAPI)

			if s.opts.Runs != nil {
				NewRunsHandler(s.opts.Runs, s.opts.Trigger).Routes(r)
			}
			if s.opts.Settings != nil {
				NewSettingsHandler(s.opts.Settings).Routes(r)
			}
		})
	})

	return r
}
