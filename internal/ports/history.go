package ports

import (
	"context"
	"time"

	"github.com/Guilhem-Bonnet/Rolling-Window/internal/domain"
)

// HistoryFeed expose l'historique de lecture, page par page.
// Les pages sont triées par insertion : rien ne garantit un ordre strict par date.
type HistoryFeed interface {
	HistoryPage(ctx context.Context, since time.Time, start, length int) ([]domain.PlaybackEvent, error)
}
