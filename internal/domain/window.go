package domain

import (
	"sort"
	"time"
)

// Window porte les paramètres de la fenêtre glissante.
type Window struct {
	Lookahead     int
	RetentionDays int
}

// Plan calcule, pour une série, les épisodes à (dé)monitorer.
//
// Chaque spectateur garde sa propre fenêtre (furthest, furthest+Lookahead];
// l'ensemble monitored de la série est l'union des fenêtres. Un épisode ne sort
// du monitoring que s'il a un fichier, est monitored, a une date de diffusion
// connue antérieure à keepCutoff, et n'appartient à aucune fenêtre.
//
// keepCutoff = dernier visionnage (tous spectateurs) - RetentionDays, ou
// now - RetentionDays quand la série n'a aucun avancement.
func Plan(episodes []CatalogEpisode, progress []ViewerProgress, w Window, now time.Time) WindowDecision {
	var d WindowDecision

	monitor := map[int64]struct{}{}
	valid := make([]CatalogEpisode, 0, len(episodes))
	for _, ep := range episodes {
		if ep.Number <= 0 {
			d.Skipped++
			continue
		}
		valid = append(valid, ep)
	}

	reference := now
	for i, vp := range progress {
		if i == 0 || vp.WatchedAt.After(reference) {
			reference = vp.WatchedAt
		}
		for _, ep := range valid {
			if ep.Number > vp.Furthest && ep.Number <= vp.Furthest+w.Lookahead {
				monitor[ep.ID] = struct{}{}
			}
		}
	}
	keepCutoff := reference.Add(-Days(w.RetentionDays))

	unmonitor := map[int64]struct{}{}
	for _, ep := range valid {
		if !ep.HasFile || !ep.Monitored || ep.AirDate == nil {
			continue
		}
		if !ep.AirDate.Before(keepCutoff) {
			continue
		}
		if _, keep := monitor[ep.ID]; keep {
			continue
		}
		unmonitor[ep.ID] = struct{}{}
	}

	d.Monitor = sortedIDs(monitor)
	d.Unmonitor = sortedIDs(unmonitor)
	return d
}

func sortedIDs(set map[int64]struct{}) []int64 {
	if len(set) == 0 {
		return nil
	}
	out := make([]int64, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
