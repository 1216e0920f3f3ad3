package domain

import (
	"strings"
	"time"
)

// RetentionCutoff renvoie la borne basse de l'historique à conserver.
func RetentionCutoff(now time.Time, retentionDays int) time.Time {
	return now.Add(-Days(retentionDays))
}

// Days convertit un nombre de jours en durée.
func Days(n int) time.Duration {
	return time.Duration(n) * 24 * time.Hour
}

// PageExhausted indique qu'il n'y a plus de page à demander au flux.
// Une page pleine implique toujours la suivante, quel que soit l'âge de ses événements.
func PageExhausted(got, pageSize int) bool {
	return got == 0 || got < pageSize
}

// WithinRetention filtre un événement par son horodatage, indépendamment de la pagination.
func WithinRetention(ev PlaybackEvent, cutoff time.Time) bool {
	return !ev.WatchedAt.Before(cutoff)
}

// HasShow écarte les lectures qui ne sont pas des épisodes (films, musique...).
func HasShow(ev PlaybackEvent) bool {
	return strings.TrimSpace(ev.Show) != ""
}
