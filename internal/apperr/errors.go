// Package apperr defines the sentinel errors shared across Ansuz layers.
package apperr

import "errors"

var (
	ErrNotFound      = errors.New("not found")
	ErrConflict      = errors.New("conflict")
	ErrAlreadyExists = errors.New("already exists")

	// ErrChangeNotFound is returned when a changelog entry id is unknown.
	ErrChangeNotFound = errors.New("change not found")
	// ErrSessionNotFound is returned when a changelog session id is unknown.
	ErrSessionNotFound = errors.New("session not found")
	// ErrNotRollbackable is returned for changes recorded without a
	// before-content snapshot.
	ErrNotRollbackable = errors.New("change has no recoverable prior state")
	// ErrAnalysisInFlight is returned when a note is already being analyzed.
	ErrAnalysisInFlight = errors.New("analysis already in flight")
)
