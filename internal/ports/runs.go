package ports

import (
	"context"
	"time"

	"github.com/Guilhem-Bonnet/Rolling-Window/internal/domain"
)

type RunRepository interface {
	Create(ctx context.Context, run domain.Run) (domain.Run, error)
	Get(ctx context.Context, id string) (domain.Run, error)
	List(ctx context.Context, limit int) ([]domain.Run, error)
	// Finish passe un run "running" à l'état terminal avec son compte rendu.
	// Renvoie ErrConflict si le run n'est plus "running".
	Finish(ctx context.Context, run domain.Run) (domain.Run, error)
	// PruneBefore supprime les runs terminés avant la date donnée.
	PruneBefore(ctx context.Context, before time.Time) (int64, error)
}

type EventBus interface {
	Publish(topic string, payload []byte)
	Subscribe(prefixes ...string) (ch <-chan Event, cancel func())
}

type Event struct {
	Topic   string
	Payload []byte
}
