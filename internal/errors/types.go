// Package errors defines the failure taxonomy of workflow runs.
package errors

import (
	"context"
	"errors"
	"strings"
)

// Kind classifies failures surfaced to callers.
type Kind string

const (
	KindNone             Kind = ""
	KindValidation       Kind = "validation"
	KindExecution        Kind = "execution"
	KindIdleTimeout      Kind = "idle_timeout"
	KindCancelled        Kind = "cancelled"
	KindHistoryCorrupted Kind = "history_corrupted"
	KindNotFound         Kind = "not_found"
)

var (
	ErrValidation       = errors.New("validation failed")
	ErrConflict         = errors.New("conflict")
	ErrNotFound         = errors.New("not found")
	ErrIdleTimeout      = errors.New("idle timeout")
	ErrHistoryCorrupted = errors.New("chat history corrupted")
)

// UserError carries a message meant for the end user alongside its kind.
type UserError struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *UserError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return string(e.Kind)
}

func (e *UserError) Unwrap() error {
	return e.Err
}

// ValidationError rejects a request before any execution starts.
func ValidationError(msg string) error {
	return &UserError{Kind: KindValidation, Message: msg, Err: ErrValidation}
}

// ConflictError rejects a request that collides with work in flight. It is a
// validation failure.
func ConflictError(msg string) error {
	return &UserError{Kind: KindValidation, Message: msg, Err: ErrConflict}
}

// NotFoundError reports a missing resource.
func NotFoundError(msg string) error {
	return &UserError{Kind: KindNotFound, Message: msg, Err: ErrNotFound}
}

// IdleTimeoutError reports a run that stopped producing events.
func IdleTimeoutError(msg string) error {
	return &UserError{Kind: KindIdleTimeout, Message: msg, Err: ErrIdleTimeout}
}

// HistoryCorruptedError reports an invalid-history signal from the graph.
func HistoryCorruptedError(msg string, cause error) error {
	return &UserError{Kind: KindHistoryCorrupted, Message: msg, Err: errors.Join(ErrHistoryCorrupted, cause)}
}

// KindOf classifies err. Unclassified errors are execution errors.
func KindOf(err error) Kind {
	if err == nil {
		return KindNone
	}
	var userErr *UserError
	if errors.As(err, &userErr) && userErr.Kind != KindNone {
		return userErr.Kind
	}
	switch {
	case errors.Is(err, context.Canceled):
		return KindCancelled
	case errors.Is(err, ErrIdleTimeout):
		return KindIdleTimeout
	case errors.Is(err, ErrValidation), errors.Is(err, ErrConflict):
		return KindValidation
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrHistoryCorrupted):
		return KindHistoryCorrupted
	default:
		return KindExecution
	}
}

// IsValidation reports whether err is a validation failure.
func IsValidation(err error) bool {
	return KindOf(err) == KindValidation
}

// corruptionMarkers identify graph errors caused by an inconsistent stored
// message history.
var corruptionMarkers = []string{
	"INVALID_CHAT_HISTORY",
	"tool_calls that do not have a corresponding ToolMessage",
}

// IsHistoryCorruption reports whether text carries an invalid-history signal.
func IsHistoryCorruption(text string) bool {
	for _, marker := range corruptionMarkers {
		if strings.Contains(text, marker) {
			return true
		}
	}
	return false
}
