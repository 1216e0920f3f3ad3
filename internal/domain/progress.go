package domain

import "strings"

const unknownViewer = "unknown"

// Progress regroupe l'avancement par série puis par spectateur.
type Progress map[string]map[string]ViewerProgress

// Aggregate réduit l'historique en avancement par (série, spectateur).
//
// Le plus grand numéro d'épisode l'emporte. À numéro égal on garde la lecture
// la plus ancienne, ce qui rend le résultat indépendant de l'ordre d'arrivée.
func Aggregate(events []PlaybackEvent) Progress {
	out := Progress{}
	for _, ev := range events {
		if ev.Episode <= 0 || !HasShow(ev) {
			continue
		}
		viewer := strings.TrimSpace(ev.Viewer)
		if viewer == "" {
			viewer = unknownViewer
		}

		byViewer, ok := out[ev.Show]
		if !ok {
			byViewer = map[string]ViewerProgress{}
			out[ev.Show] = byViewer
		}

		cur, seen := byViewer[viewer]
		switch {
		case !seen, ev.Episode > cur.Furthest:
			byViewer[viewer] = ViewerProgress{Show: ev.Show, Viewer: viewer, Furthest: ev.Episode, WatchedAt: ev.WatchedAt}
		case ev.Episode == cur.Furthest && ev.WatchedAt.Before(cur.WatchedAt):
			cur.WatchedAt = ev.WatchedAt
			byViewer[viewer] = cur
		}
	}
	return out
}

// Viewers renvoie l'avancement d'une série sous forme de liste.
func (p Progress) Viewers(show string) []ViewerProgress {
	byViewer := p[show]
	out := make([]ViewerProgress, 0, len(byViewer))
	for _, vp := range byViewer {
		out = append(out, vp)
	}
	return out
}
