package app

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/xid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/Guilhem-Bonnet/Rolling-Window/internal/domain"
	"github.com/Guilhem-Bonnet/Rolling-Window/internal/metrics"
	"github.com/Guilhem-Bonnet/Rolling-Window/internal/ports"
)

// Topics publiés sur le bus pendant un cycle.
const (
	TopicRunStarted   = "run.started"
	TopicRunShow      = "run.show"
	TopicRunCompleted = "run.completed"
	TopicRunFailed    = "run.failed"
)

// RollingService exécute un cycle : historique -> avancement -> plan -> écritures.
type RollingService struct {
	logger   zerolog.Logger
	history  *HistoryWindow
	catalog  ports.Catalog
	settings ports.SettingsRepository
	runs     ports.RunRepository
	bus      ports.EventBus

	// Les aperçus simultanés partagent une seule évaluation.
	previews singleflight.Group

	now func() time.Time
}

func NewRollingService(logger zerolog.Logger, history *HistoryWindow, catalog ports.Catalog, settings ports.SettingsRepository, runs ports.RunRepository, bus ports.EventBus) *RollingService {
	return &RollingService{
		logger:   logger,
		history:  history,
		catalog:  catalog,
		settings: settings,
		runs:     runs,
		bus:      bus,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

type RunDTO struct {
	ID         string               `json:"id"`
	State      domain.RunState      `json:"state"`
	DryRun     bool                 `json:"dryRun"`
	StartedAt  time.Time            `json:"startedAt"`
	FinishedAt *time.Time           `json:"finishedAt,omitempty"`
	Events     int                  `json:"events"`
	Shows      []domain.ShowOutcome `json:"shows"`
	ErrorCode  string               `json:"errorCode,omitempty"`
	Error      string               `json:"error,omitempty"`
}

func ToRunDTO(r domain.Run) RunDTO {
	dto := RunDTO{
		ID:        r.ID,
		State:     r.State,
		DryRun:    r.DryRun,
		StartedAt: r.StartedAt,
		Events:    r.Events,
		Shows:     r.Shows,
		ErrorCode: r.ErrorCode,
		Error:     r.ErrorMessage,
	}
	if dto.Shows == nil {
		dto.Shows = []domain.ShowOutcome{}
	}
	if !r.FinishedAt.IsZero() {
		t := r.FinishedAt
		dto.FinishedAt = &t
	}
	return dto
}

func (s *RollingService) publish(topic string, v any) {
	if s.bus == nil {
		return
	}
	b, err := json.Marshal(v)
	if err != nil {
		return
	}
	s.bus.Publish(topic, b)
}

func (s *RollingService) Get(ctx context.Context, id string) (RunDTO, error) {
	run, err := s.runs.Get(ctx, id)
	if err != nil {
		return RunDTO{}, err
	}
	return ToRunDTO(run), nil
}

func (s *RollingService) List(ctx context.Context, limit int) ([]RunDTO, error) {
	runs, err := s.runs.List(ctx, limit)
	if err != nil {
		return nil, err
	}
	out := make([]RunDTO, 0, len(runs))
	for _, r := range runs {
		out = append(out, ToRunDTO(r))
	}
	return out, nil
}

// previewTimeout borne un calcul partagé qui ne dépend plus d'aucun appelant.
const previewTimeout = 2 * time.Minute

// Preview calcule les décisions du cycle sans rien écrire ni persister.
// Les appels concurrents partagent le même calcul ; l'annulation d'un
// appelant ne fait échouer que lui.
func (s *RollingService) Preview(ctx context.Context) (RunDTO, error) {
	ch := s.previews.DoChan("preview", func() (any, error) {
		shared, cancel := context.WithTimeout(context.WithoutCancel(ctx), previewTimeout)
		defer cancel()
		return s.preview(shared)
	})
	select {
	case <-ctx.Done():
		return RunDTO{}, ctx.Err()
	case res := <-ch:
		run, _ := res.Val.(RunDTO)
		return run, res.Err
	}
}

func (s *RollingService) preview(ctx context.Context) (RunDTO, error) {
	settings, err := s.settings.Get(ctx)
	if err != nil {
		return RunDTO{}, err
	}
	run := domain.Run{State: domain.RunRunning, DryRun: true, StartedAt: s.now()}
	err = s.evaluate(ctx, &run, settings, false)
	run.FinishedAt = s.now()
	run.State = domain.RunCompleted
	if err != nil {
		run.State = domain.RunFailed
		run.ErrorCode = ErrorCode(err)
		run.ErrorMessage = err.Error()
	}
	return ToRunDTO(run), err
}

// RunCycle exécute et persiste un cycle complet. Une erreur de flux
// d'historique termine le run en "failed" sans aucune écriture.
func (s *RollingService) RunCycle(ctx context.Context) (RunDTO, error) {
	settings, err := s.settings.Get(ctx)
	if err != nil {
		return RunDTO{}, err
	}

	run := domain.Run{
		ID:        xid.New().String(),
		State:     domain.RunRunning,
		DryRun:    settings.DryRun,
		StartedAt: s.now(),
	}
	run, err = s.runs.Create(ctx, run)
	if err != nil {
		return RunDTO{}, err
	}
	s.publish(TopicRunStarted, ToRunDTO(run))

	logger := s.logger.With().Str("run_id", run.ID).Bool("dry_run", run.DryRun).Logger()
	logger.Info().Int("lookahead", settings.Lookahead).Int("retention_days", settings.RetentionDays).Msg("rolling cycle started")

	cycleErr := s.evaluate(ctx, &run, settings, !settings.DryRun)

	run.FinishedAt = s.now()
	run.State = domain.RunCompleted
	if cycleErr != nil {
		run.State = domain.RunFailed
		run.ErrorCode = ErrorCode(cycleErr)
		run.ErrorMessage = cycleErr.Error()
	}

	// Le run doit être clôturé même si ctx a été annulé.
	finished, err := s.runs.Finish(context.WithoutCancel(ctx), run)
	if err != nil {
		logger.Error().Err(err).Msg("persist run failed")
		finished = run
	}
	metrics.RecordCycle(string(finished.State), finished.FinishedAt.Sub(finished.StartedAt), finished.Events)

	if cycleErr != nil {
		logger.Error().Err(cycleErr).Str("code", finished.ErrorCode).Msg("rolling cycle failed")
		s.publish(TopicRunFailed, ToRunDTO(finished))
		return ToRunDTO(finished), cycleErr
	}
	logger.Info().Int("events", finished.Events).Int("shows", len(finished.Shows)).Msg("rolling cycle completed")
	s.publish(TopicRunCompleted, ToRunDTO(finished))
	return ToRunDTO(finished), nil
}

// evaluate remplit run.Events et run.Shows. Seules les erreurs globales
// (historique, liste des séries, annulation) sont renvoyées ; une série en
// échec n'interrompt pas les autres.
func (s *RollingService) evaluate(ctx context.Context, run *domain.Run, settings domain.Settings, write bool) error {
	now := run.StartedAt

	events, err := s.history.Fetch(ctx, settings.RetentionDays, now)
	if err != nil {
		return err
	}
	run.Events = len(events)
	progress := domain.Aggregate(events)

	shows, err := s.catalog.ListShows(ctx)
	if err != nil {
		return FetchError("list shows", err)
	}
	index := newTitleIndex(shows)

	targets := make(map[string]int64, len(progress))
	for title := range progress {
		id, matched, ok := index.lookup(title)
		if !ok {
			s.logger.Debug().Str("show", title).Msg("show not in catalog")
			continue
		}
		targets[matched] = id
		if matched != title {
			// Le titre de l'historique diffère du catalogue par la casse ou les espaces.
			progress[matched] = mergeViewers(progress[matched], progress[title])
		}
	}
	if settings.IncludeIdleShows {
		for title, id := range shows {
			if _, ok := targets[title]; !ok {
				targets[title] = id
			}
		}
	}

	titles := make([]string, 0, len(targets))
	for title := range targets {
		titles = append(titles, title)
	}
	sort.Strings(titles)

	window := settings.Window()
	for _, title := range titles {
		if err := ctx.Err(); err != nil {
			return err
		}
		outcome := s.planShow(ctx, title, targets[title], progress.Viewers(title), window, now, write)
		run.Shows = append(run.Shows, outcome)
		if run.ID != "" {
			s.publish(TopicRunShow, struct {
				RunID string `json:"runId"`
				domain.ShowOutcome
			}{RunID: run.ID, ShowOutcome: outcome})
		}
	}
	return nil
}

func (s *RollingService) planShow(ctx context.Context, title string, showID int64, viewers []domain.ViewerProgress, window domain.Window, now time.Time, write bool) domain.ShowOutcome {
	outcome := domain.ShowOutcome{Title: title, ShowID: showID, Viewers: len(viewers)}
	logger := s.logger.With().Str("show", title).Int64("show_id", showID).Logger()

	episodes, err := s.catalog.ListEpisodes(ctx, showID)
	if err != nil {
		return failShow(logger, outcome, FetchError("list episodes", err))
	}

	decision := domain.Plan(episodes, viewers, window, now)
	if decision.Skipped > 0 {
		metrics.SkippedRecords.WithLabelValues("catalog").Add(float64(decision.Skipped))
	}
	pending := decision.Pending(episodes)
	outcome.Monitor = pending.Monitor
	outcome.Unmonitor = pending.Unmonitor
	outcome.Skipped = pending.Skipped

	if !write || pending.Empty() {
		logger.Debug().Int("monitor", len(pending.Monitor)).Int("unmonitor", len(pending.Unmonitor)).Bool("write", write).Msg("show planned")
		return outcome
	}

	// Aucune écriture si le cycle a été annulé avant cette étape.
	if err := ctx.Err(); err != nil {
		return failShow(logger, outcome, err)
	}
	if len(pending.Monitor) > 0 {
		if err := s.catalog.SetMonitored(ctx, pending.Monitor, true); err != nil {
			return failShow(logger, outcome, WriteError("monitor episodes", err))
		}
		metrics.EpisodesChanged.WithLabelValues("monitor").Add(float64(len(pending.Monitor)))
	}
	if len(pending.Unmonitor) > 0 {
		if err := s.catalog.SetMonitored(ctx, pending.Unmonitor, false); err != nil {
			return failShow(logger, outcome, WriteError("unmonitor episodes", err))
		}
		metrics.EpisodesChanged.WithLabelValues("unmonitor").Add(float64(len(pending.Unmonitor)))
	}
	logger.Info().Ints64("monitor", pending.Monitor).Ints64("unmonitor", pending.Unmonitor).Msg("show updated")
	return outcome
}

func failShow(logger zerolog.Logger, outcome domain.ShowOutcome, err error) domain.ShowOutcome {
	outcome.ErrorCode = ErrorCode(err)
	outcome.Error = err.Error()
	metrics.ShowErrors.WithLabelValues(outcome.ErrorCode).Inc()
	logger.Warn().Err(err).Str("code", outcome.ErrorCode).Msg("show skipped")
	return outcome
}

// titleIndex associe un titre d'historique à une série du catalogue :
// correspondance exacte, sinon insensible à la casse et aux espaces.
type titleIndex struct {
	exact  map[string]int64
	folded map[string]string
}

func newTitleIndex(shows map[string]int64) titleIndex {
	idx := titleIndex{exact: shows, folded: make(map[string]string, len(shows))}
	for title := range shows {
		key := foldTitle(title)
		// En cas de collision, le plus petit titre gagne pour rester déterministe.
		if prev, ok := idx.folded[key]; !ok || title < prev {
			idx.folded[key] = title
		}
	}
	return idx
}

func (idx titleIndex) lookup(title string) (int64, string, bool) {
	if id, ok := idx.exact[title]; ok {
		return id, title, true
	}
	matched, ok := idx.folded[foldTitle(title)]
	if !ok {
		return 0, "", false
	}
	return idx.exact[matched], matched, true
}

func foldTitle(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

// mergeViewers fusionne l'avancement de deux graphies d'une même série.
func mergeViewers(into, from map[string]domain.ViewerProgress) map[string]domain.ViewerProgress {
	if into == nil {
		into = map[string]domain.ViewerProgress{}
	}
	for viewer, vp := range from {
		cur, ok := into[viewer]
		switch {
		case !ok, vp.Furthest > cur.Furthest:
			into[viewer] = vp
		case vp.Furthest == cur.Furthest && vp.WatchedAt.Before(cur.WatchedAt):
			into[viewer] = vp
		}
	}
	return into
}
