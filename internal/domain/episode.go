package domain

import "time"

// PlaybackEvent est une lecture remontée par le flux d'historique.
type PlaybackEvent struct {
	Show      string
	Viewer    string
	Episode   int
	WatchedAt time.Time
}

// ViewerProgress est l'épisode le plus loin vu par un spectateur sur une série.
type ViewerProgress struct {
	Show      string
	Viewer    string
	Furthest  int
	WatchedAt time.Time
}

// CatalogEpisode est un instantané d'épisode côté catalogue.
// AirDate nil = date de diffusion inconnue.
type CatalogEpisode struct {
	ID        int64
	ShowID    int64
	Number    int
	AirDate   *time.Time
	HasFile   bool
	Monitored bool
}

// WindowDecision est le résultat d'une planification pour une série.
// Monitor et Unmonitor sont triés et disjoints.
type WindowDecision struct {
	Monitor   []int64
	Unmonitor []int64

	// Épisodes ignorés car mal formés (numéro manquant).
	Skipped int
}

// Empty indique qu'aucune écriture n'est nécessaire.
func (d WindowDecision) Empty() bool {
	return len(d.Monitor) == 0 && len(d.Unmonitor) == 0
}

// Pending retire de la décision les écritures sans effet au vu de l'état
// actuel du catalogue (déjà monitored / déjà unmonitored).
func (d WindowDecision) Pending(episodes []CatalogEpisode) WindowDecision {
	monitored := make(map[int64]bool, len(episodes))
	for _, ep := range episodes {
		monitored[ep.ID] = ep.Monitored
	}

	out := WindowDecision{Skipped: d.Skipped}
	for _, id := range d.Monitor {
		if on, ok := monitored[id]; ok && on {
			continue
		}
		out.Monitor = append(out.Monitor, id)
	}
	for _, id := range d.Unmonitor {
		if on, ok := monitored[id]; ok && !on {
			continue
		}
		out.Unmonitor = append(out.Unmonitor, id)
	}
	return out
}
