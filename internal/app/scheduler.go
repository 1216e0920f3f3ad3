package app

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/Guilhem-Bonnet/Rolling-Window/internal/domain"
	"github.com/Guilhem-Bonnet/Rolling-Window/internal/ports"
)

// Scheduler déclenche un cycle à intervalle fixe et sérialise les cycles,
// déclenchements manuels compris.
type Scheduler struct {
	logger  zerolog.Logger
	rolling *RollingService
	runs    ports.RunRepository

	Interval   time.Duration
	RunOnStart bool
	// Durée de conservation des runs terminés ; 0 désactive la purge.
	RunsRetention time.Duration

	mu sync.Mutex
	wg sync.WaitGroup

	// baseMu protège base et stopping, et ordonne wg.Add avant le wg.Wait final.
	baseMu   sync.Mutex
	base     context.Context
	stopping bool
}

// DefaultInterval sépare deux cycles planifiés.
const DefaultInterval = domain.DefaultIntervalHours * time.Hour

func NewScheduler(logger zerolog.Logger, rolling *RollingService, runs ports.RunRepository) *Scheduler {
	return &Scheduler{
		logger:        logger,
		rolling:       rolling,
		runs:          runs,
		Interval:      DefaultInterval,
		RunOnStart:    true,
		RunsRetention: domain.Days(30),
	}
}

// Run bloque jusqu'à l'annulation de ctx puis attend le cycle en cours.
func (sch *Scheduler) Run(ctx context.Context) {
	interval := sch.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	defer sch.wg.Wait()
	defer func() {
		sch.baseMu.Lock()
		sch.stopping = true
		sch.baseMu.Unlock()
	}()

	sch.baseMu.Lock()
	sch.base = ctx
	sch.baseMu.Unlock()

	if sch.RunOnStart {
		sch.tick(ctx)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			sch.logger.Info().Msg("rolling scheduler stopped")
			return
		case <-ticker.C:
			sch.tick(ctx)
		}
	}
}

func (sch *Scheduler) tick(ctx context.Context) {
	if _, err := sch.RunNow(ctx); err != nil {
		if errors.Is(err, ErrCycleInProgress) {
			sch.logger.Info().Msg("scheduled cycle skipped, another cycle is running")
			return
		}
		sch.logger.Warn().Err(err).Msg("scheduled cycle failed")
	}
	sch.prune(ctx)
}

// RunNow exécute un cycle de façon synchrone, ou renvoie ErrCycleInProgress.
func (sch *Scheduler) RunNow(ctx context.Context) (RunDTO, error) {
	if !sch.mu.TryLock() {
		return RunDTO{}, ErrCycleInProgress
	}
	defer sch.mu.Unlock()
	return sch.rolling.RunCycle(ctx)
}

// Trigger lance un cycle en arrière-plan, borné par le contexte de Run.
// Après l'arrêt de Run, il renvoie ErrSchedulerStopped.
func (sch *Scheduler) Trigger() error {
	if !sch.mu.TryLock() {
		return ErrCycleInProgress
	}
	sch.baseMu.Lock()
	if sch.stopping || (sch.base != nil && sch.base.Err() != nil) {
		sch.baseMu.Unlock()
		sch.mu.Unlock()
		return ErrSchedulerStopped
	}
	ctx := sch.base
	if ctx == nil {
		ctx = context.Background()
	}
	sch.wg.Add(1)
	sch.baseMu.Unlock()
	go func() {
		defer sch.wg.Done()
		defer sch.mu.Unlock()
		if _, err := sch.rolling.RunCycle(ctx); err != nil {
			sch.logger.Warn().Err(err).Msg("manual cycle failed")
		}
	}()
	return nil
}

// Wait attend la fin d'un cycle lancé par Trigger.
func (sch *Scheduler) Wait() {
	sch.wg.Wait()
}

func (sch *Scheduler) prune(ctx context.Context) {
	if sch.runs == nil || sch.RunsRetention <= 0 {
		return
	}
	n, err := sch.runs.PruneBefore(ctx, time.Now().UTC().Add(-sch.RunsRetention))
	if err != nil {
		sch.logger.Warn().Err(err).Msg("prune runs failed")
		return
	}
	if n > 0 {
		sch.logger.Info().Int64("deleted", n).Msg("old runs pruned")
	}
}
