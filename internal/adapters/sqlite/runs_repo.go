package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"

	"github.com/Guilhem-Bonnet/Rolling-Window/internal/domain"
	"github.com/Guilhem-Bonnet/Rolling-Window/internal/ports"
)

const runColumns = `id, state, dry_run, started_at, finished_at, events, shows_json, error_code, error_message`

type RunsRepository struct {
	db *sql.DB
}

func NewRunsRepository(db *sql.DB) *RunsRepository {
	return &RunsRepository{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (domain.Run, error) {
	var run domain.Run
	var state, startedAt, finishedAt string
	var dryRun int
	var showsJSON []byte
	if err := row.Scan(&run.ID, &state, &dryRun, &startedAt, &finishedAt, &run.Events, &showsJSON, &run.ErrorCode, &run.ErrorMessage); err != nil {
		return domain.Run{}, err
	}
	run.State = domain.RunState(state)
	run.DryRun = dryRun != 0
	run.StartedAt = parseTime(startedAt)
	run.FinishedAt = parseTime(finishedAt)
	if len(showsJSON) > 0 {
		if err := json.Unmarshal(showsJSON, &run.Shows); err != nil {
			return domain.Run{}, fmt.Errorf("run %s: decode shows: %w", run.ID, err)
		}
	}
	return run, nil
}

func encodeShows(shows []domain.ShowOutcome) ([]byte, error) {
	if len(shows) == 0 {
		return nil, nil
	}
	return json.Marshal(shows)
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func (r *RunsRepository) Create(ctx context.Context, run domain.Run) (domain.Run, error) {
	shows, err := encodeShows(run.Shows)
	if err != nil {
		return domain.Run{}, err
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO runs(`+runColumns+`)
		VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, run.ID, string(run.State), boolInt(run.DryRun), formatTime(run.StartedAt), formatTime(run.FinishedAt),
		run.Events, shows, run.ErrorCode, run.ErrorMessage)
	if err != nil {
		return domain.Run{}, err
	}
	return r.Get(ctx, run.ID)
}

func (r *RunsRepository) Get(ctx context.Context, id string) (domain.Run, error) {
	run, err := scanRun(r.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Run{}, ports.ErrNotFound
		}
		return domain.Run{}, err
	}
	return run, nil
}

func (r *RunsRepository) List(ctx context.Context, limit int) ([]domain.Run, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx, `SELECT `+runColumns+` FROM runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []domain.Run{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, run)
	}
	return out, rows.Err()
}

func (r *RunsRepository) Finish(ctx context.Context, run domain.Run) (domain.Run, error) {
	if !run.State.IsTerminal() {
		return domain.Run{}, domain.ErrInvalidTransition
	}
	shows, err := encodeShows(run.Shows)
	if err != nil {
		return domain.Run{}, err
	}
	res, err := r.db.ExecContext(ctx, `
		UPDATE runs
		SET state = ?, finished_at = ?, events = ?, shows_json = ?, error_code = ?, error_message = ?
		WHERE id = ? AND state = ?
	`, string(run.State), formatTime(run.FinishedAt), run.Events, shows, run.ErrorCode, run.ErrorMessage,
		run.ID, string(domain.RunRunning))
	if err != nil {
		return domain.Run{}, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return domain.Run{}, err
	}
	if n == 0 {
		// Inexistant ou déjà terminé.
		if _, err := r.Get(ctx, run.ID); err != nil {
			return domain.Run{}, err
		}
		return domain.Run{}, ports.ErrConflict
	}
	return r.Get(ctx, run.ID)
}

func (r *RunsRepository) PruneBefore(ctx context.Context, before time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM runs WHERE state != ? AND started_at < ?`, string(domain.RunRunning), formatTime(before))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
