// Package resilience regroupe la protection des appels sortants (Tautulli, Sonarr).
package resilience

import (
	"errors"
	"time"

	"github.com/rs/zerolog"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/Guilhem-Bonnet/Rolling-Window/internal/metrics"
)

// ErrUnavailable est renvoyé quand le disjoncteur refuse l'appel.
var ErrUnavailable = errors.New("upstream unavailable (circuit open)")

type BreakerOptions struct {
	// Échecs consécutifs avant ouverture.
	MaxFailures uint32
	// Durée d'ouverture avant un essai en half-open.
	OpenTimeout time.Duration
}

func DefaultBreakerOptions() BreakerOptions {
	return BreakerOptions{MaxFailures: 3, OpenTimeout: time.Minute}
}

// Breaker protège un service distant unique.
type Breaker struct {
	name string
	cb   *gobreaker.CircuitBreaker[any]
}

func NewBreaker(name string, logger zerolog.Logger, opts BreakerOptions) *Breaker {
	if opts.MaxFailures == 0 {
		opts.MaxFailures = DefaultBreakerOptions().MaxFailures
	}
	if opts.OpenTimeout <= 0 {
		opts.OpenTimeout = DefaultBreakerOptions().OpenTimeout
	}
	metrics.CircuitBreakerState.WithLabelValues(name).Set(0)

	cb := gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Timeout:     opts.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= opts.MaxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker state change")
			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateToFloat(to))
			metrics.CircuitBreakerTransitions.WithLabelValues(name, from.String(), to.String()).Inc()
		},
	})
	return &Breaker{name: name, cb: cb}
}

// Do exécute fn sous protection du disjoncteur.
func (b *Breaker) Do(fn func() error) error {
	_, err := b.cb.Execute(func() (any, error) {
		return nil, fn()
	})
	switch {
	case err == nil:
		metrics.CircuitBreakerRequests.WithLabelValues(b.name, "success").Inc()
		return nil
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		metrics.CircuitBreakerRequests.WithLabelValues(b.name, "rejected").Inc()
		return ErrUnavailable
	default:
		metrics.CircuitBreakerRequests.WithLabelValues(b.name, "failure").Inc()
		return err
	}
}

func (b *Breaker) State() string {
	return b.cb.State().String()
}

func stateToFloat(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}
