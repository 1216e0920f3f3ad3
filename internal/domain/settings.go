package domain

// Settings regroupe les paramètres de fenêtre modifiables à chaud via l'API.
type Settings struct {
	// Nombre d'épisodes gardés "monitored" devant chaque spectateur.
	Lookahead int `json:"lookahead"`

	// Jours après le dernier visionnage avant qu'un épisode vu puisse sortir du monitoring.
	RetentionDays int `json:"retentionDays"`

	// Planifie aussi les séries du catalogue sans historique sur la période.
	IncludeIdleShows bool `json:"includeIdleShows"`

	// Calcule les décisions sans écrire dans le catalogue.
	DryRun bool `json:"dryRun"`
}

const (
	DefaultLookahead     = 4
	DefaultRetentionDays = 120
	DefaultIntervalHours = 6
)

func DefaultSettings() Settings {
	return Settings{
		Lookahead:     DefaultLookahead,
		RetentionDays: DefaultRetentionDays,
	}
}

// Window extrait les paramètres consommés par Plan.
func (s Settings) Window() Window {
	return Window{Lookahead: s.Lookahead, RetentionDays: s.RetentionDays}
}
