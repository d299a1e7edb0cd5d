package core

import (
	"errors"
	"fmt"
)

type Unit struct{}

type CommandError struct {
	Payload    error
	StatusCode int
	Reason     *string
}

type CommandErrorOption func(*CommandError)

func WithReason(reason string) CommandErrorOption {
	return func(e *CommandError) {
		e.Reason = &reason
	}
}

func NewCommandError(statusCode int, payload error, opts ...CommandErrorOption) CommandError {
	e := CommandError{
		StatusCode: statusCode,
		Payload:    payload,
	}

	for _, opt := range opts {
		opt(&e)
	}

	return e
}

// Message is the text shown to the client. Internal errors never leak
// their payload, only the reason or the status text.
func (r CommandError) Message() string {
	if r.Reason != nil {
		return *r.Reason
	}

	if r.StatusCode >= 500 || r.Payload == nil {
		return "internal server error"
	}

	return r.Payload.Error()
}

func (r CommandError) Error() string {
	var values struct {
		Payload    string
		StatusCode int
		Reason     string
	}

	if r.Payload != nil {
		values.Payload = r.Payload.Error()
	}
	values.StatusCode = r.StatusCode

	if r.Reason != nil {
		values.Reason = *r.Reason
	}

	return fmt.Sprintf("%+v", values)
}

func (r CommandError) Unwrap() error {
	return r.Payload
}

// AsCommandError finds a CommandError in err's chain.
func AsCommandError(err error) (CommandError, bool) {
	var commandErr CommandError
	if errors.As(err, &commandErr) {
		return commandErr, true
	}

	return CommandError{}, false
}
