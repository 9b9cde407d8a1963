package reservation

import (
	"errors"
	"fmt"
	"strings"
)

// Kind is the stable error category reported to callers.
type Kind string

const (
	KindValidation          Kind = "ValidationError"
	KindNotFound            Kind = "NotFoundError"
	KindInvalidTransition   Kind = "InvalidStateTransition"
	KindTimeSlotConflict    Kind = "TimeSlotConflict"
	KindNoDeviceAvailable   Kind = "NoDeviceAvailable"
	KindPermissionDenied    Kind = "PermissionDenied"
	KindCancellationExpired Kind = "CancellationWindowExpired"
	KindCheckInWindow       Kind = "CheckInWindowError"
	KindInternal            Kind = "InternalError"
)

// Sentinels returned by Store implementations.
var (
	ErrNotFound  = errors.New("not found")
	ErrDuplicate = errors.New("already exists")
)

// Error is a domain error raised at a guard failure.
type Error struct {
	Kind    Kind
	Message string
	// Conflicts lists colliding reservation ids for KindTimeSlotConflict.
	Conflicts []string
	// Retryable marks conflicts detected by the pre-commit re-check.
	Retryable bool
}

func (e *Error) Error() string {
	if len(e.Conflicts) > 0 {
		return fmt.Sprintf("%s: %s [%s]", e.Kind, e.Message, strings.Join(e.Conflicts, ","))
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Is lets errors.Is match on kind alone: errors.Is(err, &Error{Kind: KindNotFound}).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Message == ""
}

func newError(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func validationError(format string, args ...any) *Error {
	return newError(KindValidation, format, args...)
}

func notFound(what, id string) *Error {
	return newError(KindNotFound, "%s %q not found", what, id)
}

func permissionDenied(format string, args ...any) *Error {
	return newError(KindPermissionDenied, format, args...)
}

func conflictError(retryable bool, ids []string) *Error {
	return &Error{
		Kind:      KindTimeSlotConflict,
		Message:   "time slot overlaps an existing reservation",
		Conflicts: ids,
		Retryable: retryable,
	}
}

// KindOf reports the domain kind of err, or KindInternal for anything else.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Message returns the caller-facing message for err. Internal errors are not leaked.
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) {
		if len(e.Conflicts) > 0 {
			return fmt.Sprintf("%s [%s]", e.Message, strings.Join(e.Conflicts, ","))
		}
		return e.Message
	}
	return "internal error"
}

// IsRetryable reports whether err is a late-detected conflict worth retrying.
func IsRetryable(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Retryable
}
