package app

import (
	"context"

	"github.com/goccy/go-json"

	"github.com/Guilhem-Bonnet/Rolling-Window/internal/domain"
	"github.com/Guilhem-Bonnet/Rolling-Window/internal/ports"
)

type SettingsService struct {
	repo ports.SettingsRepository
	bus  ports.EventBus
}

func NewSettingsService(repo ports.SettingsRepository, bus ports.EventBus) *SettingsService {
	return &SettingsService{repo: repo, bus: bus}
}

func (s *SettingsService) Get(ctx context.Context) (domain.Settings, error) {
	return s.repo.Get(ctx)
}

// Put enregistre les paramètres ; une valeur de fenêtre nulle ou négative
// reprend la valeur par défaut.
func (s *SettingsService) Put(ctx context.Context, settings domain.Settings) (domain.Settings, error) {
	if settings.Lookahead <= 0 {
		settings.Lookahead = domain.DefaultLookahead
	}
	if settings.RetentionDays <= 0 {
		settings.RetentionDays = domain.DefaultRetentionDays
	}
	saved, err := s.repo.Put(ctx, settings)
	if err != nil {
		return domain.Settings{}, err
	}
	if s.bus != nil {
		if b, err := json.Marshal(saved); err == nil {
			s.bus.Publish("settings.updated", b)
		}
	}
	return saved, nil
}
