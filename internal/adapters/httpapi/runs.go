package httpapi

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/Guilhem-Bonnet/Rolling-Window/internal/app"
	"github.com/Guilhem-Bonnet/Rolling-Window/internal/httpjson"
)

type RunsHandler struct {
	runs    RunService
	trigger Trigger
}

func NewRunsHandler(runs RunService, trigger Trigger) *RunsHandler {
	return &RunsHandler{runs: runs, trigger: trigger}
}

func (h *RunsHandler) Routes(r chi.Router) {
	r.Route("/runs", func(r chi.Router) {
		r.Get("/", h.list)
		r.Post("/", h.create)
		r.Get("/{id}", h.get)
	})
	r.Get("/plan", h.plan)
}

func (h *RunsHandler) list(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	runs, err := h.runs.List(r.Context(), limit)
	if err != nil {
		httpjson.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	httpjson.Write(w, http.StatusOK, runs)
}

func (h *RunsHandler) get(w http.ResponseWriter, r *http.Request) {
	run, err := h.runs.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, app.ErrNotFound) {
			httpjson.WriteError(w, http.StatusNotFound, "not found")
			return
		}
		httpjson.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	httpjson.Write(w, http.StatusOK, run)
}

// create lance un cycle ; le résultat arrive via /runs et /events.
func (h *RunsHandler) create(w http.ResponseWriter, r *http.Request) {
	if h.trigger == nil {
		httpjson.WriteError(w, http.StatusServiceUnavailable, "scheduler not running")
		return
	}
	if err := h.trigger.Trigger(); err != nil {
		if errors.Is(err, app.ErrCycleInProgress) {
			httpjson.WriteError(w, http.StatusConflict, err.Error())
			return
		}
		if errors.Is(err, app.ErrSchedulerStopped) {
			httpjson.WriteError(w, http.StatusServiceUnavailable, err.Error())
			return
		}
		httpjson.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	httpjson.Write(w, http.StatusAccepted, map[string]string{"status": "started"})
}

// plan renvoie les décisions d'un cycle sans écriture.
func (h *RunsHandler) plan(w http.ResponseWriter, r *http.Request) {
	run, err := h.runs.Preview(r.Context())
	if err != nil {
		status := http.StatusInternalServerError
		if app.ErrorCode(err) == app.CodeFetch {
			status = http.StatusBadGateway
		}
		httpjson.WriteError(w, status, err.Error())
		return
	}
	httpjson.Write(w, http.StatusOK, run)
}
