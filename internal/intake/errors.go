package intake

import (
	"errors"
	"fmt"
)

// ErrorKind classifies why a step did not advance.
type ErrorKind string

const (
	KindValidation   ErrorKind = "validation"
	KindAuth         ErrorKind = "auth"
	KindCooldown     ErrorKind = "cooldown"
	KindPersistence  ErrorKind = "persistence"
	KindStorage      ErrorKind = "storage"
	KindNotification ErrorKind = "notification"
	KindState        ErrorKind = "state"
)

var (
	ErrBusy       = errors.New("intake step already in progress")
	ErrFileLocked = errors.New("file cannot be removed in its current status")
)

// StepError is returned by a transition that leaves the session where it
// was. Message is user-facing; Err, when set, is the underlying cause.
type StepError struct {
	Kind       ErrorKind
	Message    string
	Fields     FieldErrors
	RetryAfter int
	Err        error
}

func (e *StepError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *StepError) Unwrap() error { return e.Err }

// KindOf returns the StepError kind of err, or "" if err is not one.
func KindOf(err error) ErrorKind {
	var se *StepError
	if errors.As(err, &se) {
		return se.Kind
	}
	return ""
}

func stateError(msg string) error {
	return &StepError{Kind: KindState, Message: msg}
}
