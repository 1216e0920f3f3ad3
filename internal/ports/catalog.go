package ports

import (
	"context"

	"github.com/Guilhem-Bonnet/Rolling-Window/internal/domain"
)

// Catalog est la frontière lecture/écriture vers le catalogue d'épisodes.
type Catalog interface {
	// ListShows renvoie titre -> identifiant interne.
	ListShows(ctx context.Context) (map[string]int64, error)
	ListEpisodes(ctx context.Context, showID int64) ([]domain.CatalogEpisode, error)
	SetMonitored(ctx context.Context, episodeIDs []int64, monitored bool) error
}
