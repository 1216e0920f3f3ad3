package app

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/Guilhem-Bonnet/Rolling-Window/internal/domain"
	"github.com/Guilhem-Bonnet/Rolling-Window/internal/ports"
)

type fakeFeed struct {
	mu     sync.Mutex
	events []domain.PlaybackEvent
	err    error
	starts []int
}

func (f *fakeFeed) HistoryPage(ctx context.Context, since time.Time, start, length int) ([]domain.PlaybackEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.starts = append(f.starts, start)
	if f.err != nil {
		return nil, f.err
	}
	if start >= len(f.events) {
		return nil, nil
	}
	end := start + length
	if end > len(f.events) {
		end = len(f.events)
	}
	return append([]domain.PlaybackEvent(nil), f.events[start:end]...), nil
}

type write struct {
	ids       []int64
	monitored bool
}

type fakeCatalog struct {
	mu       sync.Mutex
	shows    map[string]int64
	episodes map[int64][]domain.CatalogEpisode
	showsErr error
	listErr  map[int64]error
	setErr   error
	writes   []write

	// entered/release permettent de bloquer ListShows pendant un test.
	entered chan struct{}
	release chan struct{}
}

func (c *fakeCatalog) ListShows(ctx context.Context) (map[string]int64, error) {
	if c.entered != nil {
		c.entered <- struct{}{}
		<-c.release
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.showsErr != nil {
		return nil, c.showsErr
	}
	out := make(map[string]int64, len(c.shows))
	for k, v := range c.shows {
		out[k] = v
	}
	return out, nil
}

func (c *fakeCatalog) ListEpisodes(ctx context.Context, showID int64) ([]domain.CatalogEpisode, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.listErr[showID]; err != nil {
		return nil, err
	}
	return append([]domain.CatalogEpisode(nil), c.episodes[showID]...), nil
}

func (c *fakeCatalog) SetMonitored(ctx context.Context, ids []int64, monitored bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.setErr != nil {
		return c.setErr
	}
	c.writes = append(c.writes, write{ids: append([]int64(nil), ids...), monitored: monitored})
	set := make(map[int64]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	for showID, eps := range c.episodes {
		for i := range eps {
			if set[eps[i].ID] {
				eps[i].Monitored = monitored
			}
		}
		c.episodes[showID] = eps
	}
	return nil
}

func (c *fakeCatalog) writeCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.writes)
}

type memSettingsRepo struct {
	mu       sync.Mutex
	settings domain.Settings
}

func (r *memSettingsRepo) Get(ctx context.Context) (domain.Settings, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.settings, nil
}

func (r *memSettingsRepo) Put(ctx context.Context, s domain.Settings) (domain.Settings, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.settings = s
	return s, nil
}

type memRunsRepo struct {
	mu   sync.Mutex
	byID map[string]domain.Run
}

func newMemRunsRepo() *memRunsRepo {
	return &memRunsRepo{byID: map[string]domain.Run{}}
}

func (r *memRunsRepo) Create(ctx context.Context, run domain.Run) (domain.Run, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byID[run.ID] = run
	return run, nil
}

func (r *memRunsRepo) Get(ctx context.Context, id string) (domain.Run, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	run, ok := r.byID[id]
	if !ok {
		return domain.Run{}, ports.ErrNotFound
	}
	return run, nil
}

func (r *memRunsRepo) List(ctx context.Context, limit int) ([]domain.Run, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.Run, 0, len(r.byID))
	for _, run := range r.byID {
		out = append(out, run)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *memRunsRepo) Finish(ctx context.Context, run domain.Run) (domain.Run, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.byID[run.ID]
	if !ok {
		return domain.Run{}, ports.ErrNotFound
	}
	if cur.State != domain.RunRunning {
		return domain.Run{}, ports.ErrConflict
	}
	r.byID[run.ID] = run
	return run, nil
}

func (r *memRunsRepo) PruneBefore(ctx context.Context, before time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for id, run := range r.byID {
		if run.State.IsTerminal() && run.StartedAt.Before(before) {
			delete(r.byID, id)
			n++
		}
	}
	return n, nil
}

type recordingBus struct {
	mu     sync.Mutex
	topics []string
}

func (b *recordingBus) Publish(topic string, payload []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.topics = append(b.topics, topic)
}

func (b *recordingBus) Subscribe(prefixes ...string) (<-chan ports.Event, func()) {
	ch := make(chan ports.Event)
	return ch, func() {}
}

func (b *recordingBus) count(topic string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, t := range b.topics {
		if t == topic {
			n++
		}
	}
	return n
}
