package app

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/Guilhem-Bonnet/Rolling-Window/internal/domain"
	"github.com/Guilhem-Bonnet/Rolling-Window/internal/metrics"
	"github.com/Guilhem-Bonnet/Rolling-Window/internal/ports"
)

const (
	DefaultHistoryPageSize = 100
	DefaultHistoryMaxPages = 500
)

// HistoryWindow récupère la tranche d'historique utile à un cycle.
type HistoryWindow struct {
	feed   ports.HistoryFeed
	logger zerolog.Logger

	PageSize int
	// Garde-fou contre un flux qui renverrait toujours des pages pleines.
	MaxPages int
}

func NewHistoryWindow(logger zerolog.Logger, feed ports.HistoryFeed) *HistoryWindow {
	return &HistoryWindow{
		feed:     feed,
		logger:   logger,
		PageSize: DefaultHistoryPageSize,
		MaxPages: DefaultHistoryMaxPages,
	}
}

// Fetch pagine le flux jusqu'à épuisement et garde les lectures récentes.
// La pagination (PageExhausted) et la rétention (WithinRetention) sont
// évaluées séparément : une page ancienne n'arrête pas la lecture.
func (h *HistoryWindow) Fetch(ctx context.Context, retentionDays int, now time.Time) ([]domain.PlaybackEvent, error) {
	pageSize := h.PageSize
	if pageSize <= 0 {
		pageSize = DefaultHistoryPageSize
	}
	maxPages := h.MaxPages
	if maxPages <= 0 {
		maxPages = DefaultHistoryMaxPages
	}

	cutoff := domain.RetentionCutoff(now, retentionDays)
	var out []domain.PlaybackEvent
	skipped := 0

	for page := 0; page < maxPages; page++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		events, err := h.feed.HistoryPage(ctx, cutoff, page*pageSize, pageSize)
		if err != nil {
			return nil, FetchError(fmt.Sprintf("history page %d", page), err)
		}
		for _, ev := range events {
			if !domain.WithinRetention(ev, cutoff) {
				continue
			}
			if !domain.HasShow(ev) || ev.Episode <= 0 {
				skipped++
				continue
			}
			out = append(out, ev)
		}
		if domain.PageExhausted(len(events), pageSize) {
			break
		}
		if page == maxPages-1 {
			h.logger.Warn().Int("pages", maxPages).Msg("history paging stopped at max pages")
		}
	}

	if skipped > 0 {
		metrics.SkippedRecords.WithLabelValues("history").Add(float64(skipped))
		h.logger.Debug().Int("skipped", skipped).Msg("history records skipped")
	}
	return out, nil
}
