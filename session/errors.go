package session

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInvalidState is returned when an operation is attempted in an invalid state.
	ErrInvalidState = errors.New("invalid session state")
	// ErrNotCreated is returned when an operation needs a session that was never created.
	ErrNotCreated = errors.New("session not created")
	// ErrBusy is returned when a statement is already running on the session.
	ErrBusy = errors.New("session is busy")
	// ErrTerminated is returned when the session reached Error, Dead or Killed.
	ErrTerminated = errors.New("session terminated")
)

// StateError is returned when an operation is incompatible with the session state.
// No remote call is made when it is returned.
type StateError struct {
	Op        string
	SessionID int
	State     State
	Err       error
}

func (e *StateError) Error() string {
	return fmt.Sprintf("%s session %d: %v (state %s)", e.Op, e.SessionID, e.Err, e.State)
}

func (e *StateError) Unwrap() error {
	return e.Err
}

// CreationError is returned when the create request fails. The session stays
// NotStarted and Create may be called again.
type CreationError struct {
	Err error
}

func (e *CreationError) Error() string {
	return "create session: " + e.Err.Error()
}

func (e *CreationError) Unwrap() error {
	return e.Err
}

// ApplicationError is returned by AppID when the session terminates before the
// scheduler attaches an application. Log holds the diagnostics reported by the service.
type ApplicationError struct {
	SessionID int
	State     State
	Log       []string
}

func (e *ApplicationError) Error() string {
	msg := fmt.Sprintf("session %d ended in state %s before an application was attached", e.SessionID, e.State)
	if len(e.Log) > 0 {
		msg += ": " + strings.Join(e.Log, "\n")
	}
	return msg
}

func (e *ApplicationError) Unwrap() error {
	return ErrTerminated
}
