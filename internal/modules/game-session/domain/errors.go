package domain

import (
	"errors"
	"net/http"

	"github.com/eskrenkovic/numbers-party/internal/modules/core"
)

var (
	ErrSessionFull      = errors.New("session is full")
	ErrSessionNotActive = errors.New("no active session to play in")
	ErrNotAParticipant  = errors.New("you are not a participant of the current session")
	ErrInvalidNumber    = errors.New("number must be between 1 and 9")
	ErrAlreadyActive    = errors.New("already playing in another session")
	ErrSessionNotFound  = errors.New("no open session")
)

// CommandError maps a game error onto the HTTP facing command error.
// Anything unknown is an internal error.
func CommandError(err error) error {
	if _, ok := core.AsCommandError(err); ok {
		return err
	}

	switch {
	case errors.Is(err, ErrInvalidNumber):
		return core.NewCommandError(http.StatusBadRequest, err)
	case errors.Is(err, ErrNotAParticipant), errors.Is(err, ErrSessionNotFound):
		return core.NewCommandError(http.StatusNotFound, err)
	case errors.Is(err, ErrSessionFull), errors.Is(err, ErrSessionNotActive), errors.Is(err, ErrAlreadyActive):
		return core.NewCommandError(http.StatusConflict, err)
	default:
		return core.NewCommandError(http.StatusInternalServerError, err)
	}
}
