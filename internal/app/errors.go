package app

import (
	"context"
	"errors"

	"github.com/Guilhem-Bonnet/Rolling-Window/internal/ports"
)

var ErrNotFound = ports.ErrNotFound

// ErrCycleInProgress est renvoyée quand un cycle est demandé pendant qu'un autre tourne.
var ErrCycleInProgress = errors.New("a rolling cycle is already in progress")

// ErrSchedulerStopped est renvoyée par Trigger une fois le planificateur arrêté.
var ErrSchedulerStopped = errors.New("rolling scheduler is stopped")

const (
	CodeFetch    = "fetch_error"
	CodeWrite    = "write_error"
	CodeCanceled = "canceled"
	CodeInternal = "internal_error"
)

// CodedError porte un code d'erreur stable, persisté dans Run.ErrorCode
// et dans ShowOutcome.ErrorCode.
type CodedError struct {
	Code    string
	Message string
	Err     error
}

func (e *CodedError) Error() string {
	if e == nil {
		return ""
	}
	if e.Err == nil {
		return e.Message
	}
	if e.Message == "" {
		return e.Err.Error()
	}
	return e.Message + ": " + e.Err.Error()
}

func (e *CodedError) Unwrap() error { return e.Err }

// FetchError : historique ou catalogue injoignable, ou réponse illisible.
func FetchError(message string, err error) *CodedError {
	return &CodedError{Code: CodeFetch, Message: message, Err: err}
}

// WriteError : échec d'écriture du flag monitored. Jamais rejouée dans le cycle.
func WriteError(message string, err error) *CodedError {
	return &CodedError{Code: CodeWrite, Message: message, Err: err}
}

// ErrorCode extrait le code d'une erreur, internal_error à défaut.
func ErrorCode(err error) string {
	if err == nil {
		return ""
	}
	var coded *CodedError
	if errors.As(err, &coded) && coded.Code != "" {
		return coded.Code
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return CodeCanceled
	}
	return CodeInternal
}
