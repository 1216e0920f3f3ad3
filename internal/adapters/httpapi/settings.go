package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/Guilhem-Bonnet/Rolling-Window/internal/domain"
	"github.com/Guilhem-Bonnet/Rolling-Window/internal/httpjson"
)

var validate = validator.New()

// settingsRequest porte les bornes acceptées par PUT /settings ; 0 reprend la valeur par défaut.
type settingsRequest struct {
	Lookahead        int  `json:"lookahead" validate:"gte=0,lte=100"`
	RetentionDays    int  `json:"retentionDays" validate:"gte=0,lte=3650"`
	IncludeIdleShows bool `json:"includeIdleShows"`
	DryRun           bool `json:"dryRun"`
}

type SettingsHandler struct {
	settings SettingsService
}

func NewSettingsHandler(settings SettingsService) *SettingsHandler {
	return &SettingsHandler{settings: settings}
}

func (h *SettingsHandler) Routes(r chi.Router) {
	r.Get("/settings", h.get)
	r.Put("/settings", h.put)
	// Variante avec slash final (utile selon reverse-proxy / clients).
	r.Get("/settings/", h.get)
	r.Put("/settings/", h.put)
}

func (h *SettingsHandler) get(w http.ResponseWriter, r *http.Request) {
	s, err := h.settings.Get(r.Context())
	if err != nil {
		httpjson.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	httpjson.Write(w, http.StatusOK, s)
}

func (h *SettingsHandler) put(w http.ResponseWriter, r *http.Request) {
	var req settingsRequest
	if err := httpjson.Decode(r, &req); err != nil {
		httpjson.WriteError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if err := validate.Struct(req); err != nil {
		httpjson.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	updated, err := h.settings.Put(r.Context(), domain.Settings{
		Lookahead:        req.Lookahead,
		RetentionDays:    req.RetentionDays,
		IncludeIdleShows: req.IncludeIdleShows,
		DryRun:           req.DryRun,
	})
	if err != nil {
		httpjson.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	httpjson.Write(w, http.StatusOK, updated)
}
