package sqlite

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Guilhem-Bonnet/Rolling-Window/internal/domain"
	"github.com/Guilhem-Bonnet/Rolling-Window/internal/ports"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(context.Background(), ":memory:")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestRunsRepository_CreateFinishGet(t *testing.T) {
	ctx := context.Background()
	repo := NewRunsRepository(openTestDB(t).SQL)

	started := time.Date(2026, 5, 4, 3, 2, 1, 0, time.UTC)
	created, err := repo.Create(ctx, domain.Run{ID: "run1", State: domain.RunRunning, StartedAt: started, DryRun: true})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if created.State != domain.RunRunning || !created.DryRun {
		t.Fatalf("unexpected created run: %+v", created)
	}
	if !created.StartedAt.Equal(started) {
		t.Fatalf("StartedAt: want %v, got %v", started, created.StartedAt)
	}

	created.State = domain.RunCompleted
	created.FinishedAt = started.Add(3 * time.Second)
	created.Events = 42
	created.Shows = []domain.ShowOutcome{{Title: "X", ShowID: 7, Viewers: 2, Monitor: []int64{1, 2}, Unmonitor: []int64{9}}}

	finished, err := repo.Finish(ctx, created)
	if err != nil {
		t.Fatalf("Finish: %v", err)
	}
	if finished.State != domain.RunCompleted || finished.Events != 42 {
		t.Fatalf("unexpected finished run: %+v", finished)
	}
	if len(finished.Shows) != 1 || finished.Shows[0].Title != "X" || len(finished.Shows[0].Monitor) != 2 {
		t.Fatalf("shows not persisted: %+v", finished.Shows)
	}

	// Un run terminé ne peut pas être re-terminé.
	if _, err := repo.Finish(ctx, created); !errors.Is(err, ports.ErrConflict) {
		t.Fatalf("second Finish: want ErrConflict, got %v", err)
	}
}

func TestRunsRepository_NotFound(t *testing.T) {
	ctx := context.Background()
	repo := NewRunsRepository(openTestDB(t).SQL)

	if _, err := repo.Get(ctx, "nope"); !errors.Is(err, ports.ErrNotFound) {
		t.Fatalf("Get: want ErrNotFound, got %v", err)
	}
	if _, err := repo.Finish(ctx, domain.Run{ID: "nope", State: domain.RunFailed}); !errors.Is(err, ports.ErrNotFound) {
		t.Fatalf("Finish: want ErrNotFound, got %v", err)
	}
	if _, err := repo.Finish(ctx, domain.Run{ID: "nope", State: domain.RunRunning}); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("Finish(running): want ErrInvalidTransition, got %v", err)
	}
}

func TestRunsRepository_ListAndPrune(t *testing.T) {
	ctx := context.Background()
	repo := NewRunsRepository(openTestDB(t).SQL)

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, id := range []string{"a", "b", "c"} {
		run := domain.Run{ID: id, State: domain.RunRunning, StartedAt: base.Add(time.Duration(i) * time.Hour)}
		if _, err := repo.Create(ctx, run); err != nil {
			t.Fatalf("Create(%s): %v", id, err)
		}
		if id != "c" {
			run.State = domain.RunCompleted
			run.FinishedAt = run.StartedAt.Add(time.Minute)
			if _, err := repo.Finish(ctx, run); err != nil {
				t.Fatalf("Finish(%s): %v", id, err)
			}
		}
	}

	runs, err := repo.List(ctx, 10)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(runs) != 3 || runs[0].ID != "c" || runs[2].ID != "a" {
		t.Fatalf("List order: got %+v", runs)
	}

	// "c" est encore en cours : il n'est jamais purgé.
	n, err := repo.PruneBefore(ctx, base.Add(10*time.Hour))
	if err != nil {
		t.Fatalf("PruneBefore: %v", err)
	}
	if n != 2 {
		t.Fatalf("pruned: want 2, got %d", n)
	}
	runs, _ = repo.List(ctx, 10)
	if len(runs) != 1 || runs[0].ID != "c" {
		t.Fatalf("after prune: got %+v", runs)
	}
}
