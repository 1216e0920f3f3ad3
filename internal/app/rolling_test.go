package app

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/Guilhem-Bonnet/Rolling-Window/internal/domain"
)

var testNow = time.Date(2026, 6, 10, 12, 0, 0, 0, time.UTC)

func daysAgo(n int) time.Time { return testNow.Add(-time.Duration(n) * 24 * time.Hour) }

// showEpisodes: épisodes 1..count, id 100*show+n, diffusés il y a 300 jours,
// avec fichier ; monitored jusqu'à monitoredUpTo inclus.
func showEpisodes(showID int64, count, monitoredUpTo int) []domain.CatalogEpisode {
	aired := daysAgo(300)
	out := make([]domain.CatalogEpisode, 0, count)
	for n := 1; n <= count; n++ {
		a := aired
		out = append(out, domain.CatalogEpisode{
			ID:        showID*100 + int64(n),
			ShowID:    showID,
			Number:    n,
			AirDate:   &a,
			HasFile:   true,
			Monitored: n <= monitoredUpTo,
		})
	}
	return out
}

type rollingFixture struct {
	feed     *fakeFeed
	catalog  *fakeCatalog
	settings *memSettingsRepo
	runs     *memRunsRepo
	bus      *recordingBus
	svc      *RollingService
}

func newRollingFixture(events []domain.PlaybackEvent) *rollingFixture {
	f := &rollingFixture{
		feed: &fakeFeed{events: events},
		catalog: &fakeCatalog{
			shows:    map[string]int64{"Severance": 1},
			episodes: map[int64][]domain.CatalogEpisode{1: showEpisodes(1, 16, 10)},
		},
		settings: &memSettingsRepo{settings: domain.DefaultSettings()},
		runs:     newMemRunsRepo(),
		bus:      &recordingBus{},
	}
	f.svc = NewRollingService(zerolog.Nop(), NewHistoryWindow(zerolog.Nop(), f.feed), f.catalog, f.settings, f.runs, f.bus)
	f.svc.now = func() time.Time { return testNow }
	return f
}

func twoViewers() []domain.PlaybackEvent {
	return []domain.PlaybackEvent{
		{Show: "Severance", Viewer: "alice", Episode: 9, WatchedAt: daysAgo(6)},
		{Show: "Severance", Viewer: "alice", Episode: 10, WatchedAt: daysAgo(5)},
		{Show: "Severance", Viewer: "bob", Episode: 3, WatchedAt: daysAgo(1)},
	}
}

func TestRunCycle_TwoViewers(t *testing.T) {
	f := newRollingFixture(twoViewers())

	run, err := f.svc.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	if run.State != domain.RunCompleted || run.Events != 3 || len(run.Shows) != 1 {
		t.Fatalf("unexpected run: %+v", run)
	}

	out := run.Shows[0]
	// alice (10,14], bob (3,7] : 4..7 déjà monitored, seuls 11..14 sont à écrire.
	if want := []int64{111, 112, 113, 114}; !reflect.DeepEqual(out.Monitor, want) {
		t.Fatalf("monitor: want %v, got %v", want, out.Monitor)
	}
	if want := []int64{101, 102, 103, 108, 109, 110}; !reflect.DeepEqual(out.Unmonitor, want) {
		t.Fatalf("unmonitor: want %v, got %v", want, out.Unmonitor)
	}
	if out.Viewers != 2 {
		t.Fatalf("viewers: want 2, got %d", out.Viewers)
	}
	if f.catalog.writeCount() != 2 {
		t.Fatalf("want 2 writes, got %d", f.catalog.writeCount())
	}

	stored, err := f.svc.Get(context.Background(), run.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if stored.State != domain.RunCompleted || stored.FinishedAt == nil {
		t.Fatalf("stored run not finished: %+v", stored)
	}
	if f.bus.count(TopicRunStarted) != 1 || f.bus.count(TopicRunShow) != 1 || f.bus.count(TopicRunCompleted) != 1 {
		t.Fatalf("unexpected events: %v", f.bus.topics)
	}

	// Second cycle : rien ne doit bouger.
	again, err := f.svc.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("RunCycle again: %v", err)
	}
	if len(again.Shows[0].Monitor) != 0 || len(again.Shows[0].Unmonitor) != 0 {
		t.Fatalf("second cycle should be a no-op: %+v", again.Shows[0])
	}
	if f.catalog.writeCount() != 2 {
		t.Fatalf("second cycle wrote to catalog")
	}
}

func TestRunCycle_HistoryFailureWritesNothing(t *testing.T) {
	f := newRollingFixture(nil)
	f.feed.err = errors.New("tautulli down")

	run, err := f.svc.RunCycle(context.Background())
	if err == nil {
		t.Fatalf("want error")
	}
	if run.State != domain.RunFailed || run.ErrorCode != CodeFetch {
		t.Fatalf("unexpected run: %+v", run)
	}
	if f.catalog.writeCount() != 0 {
		t.Fatalf("no write expected after history failure")
	}
	if f.bus.count(TopicRunFailed) != 1 {
		t.Fatalf("want run.failed event, got %v", f.bus.topics)
	}
}

func TestRunCycle_ShowErrorsAreIsolated(t *testing.T) {
	events := append(twoViewers(), domain.PlaybackEvent{Show: "Andor", Viewer: "carol", Episode: 2, WatchedAt: daysAgo(3)})
	f := newRollingFixture(events)
	f.catalog.shows["Andor"] = 2
	f.catalog.episodes[2] = showEpisodes(2, 8, 0)
	f.catalog.listErr = map[int64]error{1: errors.New("timeout")}

	run, err := f.svc.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	if len(run.Shows) != 2 {
		t.Fatalf("want 2 outcomes, got %+v", run.Shows)
	}
	// Ordre alphabétique : Andor puis Severance.
	andor, severance := run.Shows[0], run.Shows[1]
	if andor.ErrorCode != "" || !reflect.DeepEqual(andor.Monitor, []int64{203, 204, 205, 206}) {
		t.Fatalf("andor: %+v", andor)
	}
	if severance.ErrorCode != CodeFetch {
		t.Fatalf("severance should fail with fetch_error: %+v", severance)
	}
}

func TestRunCycle_WriteError(t *testing.T) {
	f := newRollingFixture(twoViewers())
	f.catalog.setErr = errors.New("sonarr 500")

	run, err := f.svc.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	if run.State != domain.RunCompleted || run.Shows[0].ErrorCode != CodeWrite {
		t.Fatalf("unexpected run: %+v", run)
	}
}

func TestRunCycle_DryRun(t *testing.T) {
	f := newRollingFixture(twoViewers())
	f.settings.settings.DryRun = true

	run, err := f.svc.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	if !run.DryRun || len(run.Shows[0].Monitor) != 4 {
		t.Fatalf("unexpected run: %+v", run)
	}
	if f.catalog.writeCount() != 0 {
		t.Fatalf("dry run must not write")
	}
}

func TestRunCycle_TitleMatching(t *testing.T) {
	f := newRollingFixture([]domain.PlaybackEvent{
		{Show: "severance ", Viewer: "alice", Episode: 10, WatchedAt: daysAgo(5)},
		{Show: "Unknown Show", Viewer: "alice", Episode: 1, WatchedAt: daysAgo(5)},
	})

	run, err := f.svc.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	if len(run.Shows) != 1 || run.Shows[0].Title != "Severance" {
		t.Fatalf("unexpected outcomes: %+v", run.Shows)
	}
	if !reflect.DeepEqual(run.Shows[0].Monitor, []int64{111, 112, 113, 114}) {
		t.Fatalf("monitor: %v", run.Shows[0].Monitor)
	}
}

func TestRunCycle_IdleShows(t *testing.T) {
	f := newRollingFixture(nil)

	run, err := f.svc.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	if len(run.Shows) != 0 {
		t.Fatalf("idle shows are not planned by default: %+v", run.Shows)
	}

	f.settings.settings.IncludeIdleShows = true
	run, err = f.svc.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	// Sans avancement : rien à monitorer, tout ce qui a plus de 120 jours sort.
	if len(run.Shows) != 1 || len(run.Shows[0].Monitor) != 0 || len(run.Shows[0].Unmonitor) != 10 {
		t.Fatalf("unexpected idle outcome: %+v", run.Shows)
	}
}

func TestPreview_DoesNotPersistOrWrite(t *testing.T) {
	f := newRollingFixture(twoViewers())

	run, err := f.svc.Preview(context.Background())
	if err != nil {
		t.Fatalf("Preview: %v", err)
	}
	if !run.DryRun || run.ID != "" || len(run.Shows) != 1 {
		t.Fatalf("unexpected preview: %+v", run)
	}
	if f.catalog.writeCount() != 0 {
		t.Fatalf("preview must not write")
	}
	if runs, _ := f.runs.List(context.Background(), 0); len(runs) != 0 {
		t.Fatalf("preview must not persist a run")
	}
}

func TestPreview_CallerCancelDoesNotFailSharedFlight(t *testing.T) {
	f := newRollingFixture(twoViewers())
	f.catalog.entered = make(chan struct{}, 2)
	f.catalog.release = make(chan struct{})

	first, cancel := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := f.svc.Preview(first)
		firstErr <- err
	}()
	select {
	case <-f.catalog.entered:
	case <-time.After(2 * time.Second):
		t.Fatalf("preview did not start")
	}

	type result struct {
		run RunDTO
		err error
	}
	second := make(chan result, 1)
	go func() {
		run, err := f.svc.Preview(context.Background())
		second <- result{run, err}
	}()

	cancel()
	select {
	case err := <-firstErr:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("first caller: want context.Canceled, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("first caller not released by its own cancel")
	}

	// Laisse le second appelant rejoindre le calcul en cours.
	time.Sleep(20 * time.Millisecond)
	close(f.catalog.release)

	select {
	case res := <-second:
		if res.err != nil {
			t.Fatalf("second caller: %v", res.err)
		}
		if res.run.State != domain.RunCompleted || len(res.run.Shows) != 1 {
			t.Fatalf("unexpected preview: %+v", res.run)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("second caller never returned")
	}
}

func TestRunCycle_CanceledBeforeWrites(t *testing.T) {
	f := newRollingFixture(twoViewers())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	run, err := f.svc.RunCycle(ctx)
	if err == nil {
		t.Fatalf("want cancellation error")
	}
	if run.State != domain.RunFailed || run.ErrorCode != CodeCanceled {
		t.Fatalf("unexpected run: %+v", run)
	}
	if f.catalog.writeCount() != 0 {
		t.Fatalf("canceled cycle must not write")
	}
}

func TestErrorCode(t *testing.T) {
	if got := ErrorCode(nil); got != "" {
		t.Fatalf("nil: got %q", got)
	}
	if got := ErrorCode(WriteError("x", errors.New("y"))); got != CodeWrite {
		t.Fatalf("write: got %q", got)
	}
	if got := ErrorCode(errors.New("boom")); got != CodeInternal {
		t.Fatalf("plain: got %q", got)
	}
	if got := ErrorCode(context.Canceled); got != CodeCanceled {
		t.Fatalf("canceled: got %q", got)
	}
	err := FetchError("list shows", errors.New("eof"))
	if err.Error() != "list shows: eof" {
		t.Fatalf("message: got %q", err.Error())
	}
}
