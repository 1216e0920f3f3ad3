package domain

import (
	"errors"
	"time"
)

type RunState string

const (
	RunRunning   RunState = "running"
	RunCompleted RunState = "completed"
	RunFailed    RunState = "failed"
)

func (s RunState) IsTerminal() bool {
	return s == RunCompleted || s == RunFailed
}

// Run est le compte rendu persisté d'un cycle d'évaluation.
type Run struct {
	ID         string
	State      RunState
	DryRun     bool
	StartedAt  time.Time
	FinishedAt time.Time

	// Nombre d'événements d'historique retenus.
	Events int
	Shows  []ShowOutcome

	ErrorCode    string
	ErrorMessage string
}

// ShowOutcome résume le traitement d'une série pendant un cycle.
type ShowOutcome struct {
	Title     string  `json:"title"`
	ShowID    int64   `json:"showId"`
	Viewers   int     `json:"viewers"`
	Monitor   []int64 `json:"monitor,omitempty"`
	Unmonitor []int64 `json:"unmonitor,omitempty"`
	Skipped   int     `json:"skipped,omitempty"`
	ErrorCode string  `json:"errorCode,omitempty"`
	Error     string  `json:"error,omitempty"`
}

var ErrInvalidTransition = errors.New("invalid run state transition")

func CanTransition(from, to RunState) bool {
	if from == to {
		return true
	}
	switch from {
	case RunRunning:
		return to == RunCompleted || to == RunFailed
	default:
		return false
	}
}
