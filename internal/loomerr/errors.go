package loomerr

import (
	"errors"
	"fmt"
)

// Kind classifies the outcome of a workspace-engine operation.
type Kind int

const (
	// KindValidation marks an invariant violation at the API boundary.
	// Never retried; surfaced to the caller immediately.
	KindValidation Kind = iota
	// KindNotFound marks a missing reference, commit, stack, or head.
	KindNotFound
	// KindRejected marks a change spec the tree-builder could not apply.
	// Never surfaced alone — always alongside a partial-success value.
	KindRejected
	// KindConflict marks a conflict-carrying commit. Not a failure.
	KindConflict
	// KindHookFailure marks a non-zero hook exit.
	KindHookFailure
	// KindIOError marks an unreachable or failing storage backend.
	KindIOError
	// KindCorruptState marks an invariant violation detected on read.
	KindCorruptState
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindRejected:
		return "rejected"
	case KindConflict:
		return "conflict"
	case KindHookFailure:
		return "hook_failure"
	case KindIOError:
		return "io_error"
	case KindCorruptState:
		return "corrupt_state"
	default:
		return "unknown"
	}
}

// Error is the concrete error type carried by every taxonomy member.
// It wraps an optional underlying cause and supports errors.Is against
// the Kind-specific sentinels below, and errors.As against *Error.
type Error struct {
	Kind    Kind
	Subject string // e.g. a stack id, branch name, or ref name
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Subject != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Kind, e.Message, e.Subject)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// Is lets errors.Is(err, loomerr.ErrNotFound) match any *Error whose
// Kind is KindNotFound, regardless of Subject/Message/Cause.
func (e *Error) Is(target error) bool {
	sentinel, ok := target.(*sentinelKind)
	if !ok {
		return false
	}
	return e.Kind == sentinel.kind
}

// sentinelKind is a comparable marker used only for errors.Is matching.
type sentinelKind struct{ kind Kind }

func (s *sentinelKind) Error() string { return s.kind.String() }

// Sentinels for errors.Is(err, loomerr.ErrXxx) checks.
var (
	ErrValidation   error = &sentinelKind{KindValidation}
	ErrNotFound     error = &sentinelKind{KindNotFound}
	ErrRejected     error = &sentinelKind{KindRejected}
	ErrConflict     error = &sentinelKind{KindConflict}
	ErrHookFailure  error = &sentinelKind{KindHookFailure}
	ErrIOError      error = &sentinelKind{KindIOError}
	ErrCorruptState error = &sentinelKind{KindCorruptState}
)

// Validationf builds a KindValidation error.
func Validationf(subject, format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Subject: subject, Message: fmt.Sprintf(format, args...)}
}

// NotFoundf builds a KindNotFound error.
func NotFoundf(subject, format string, args ...any) *Error {
	return &Error{Kind: KindNotFound, Subject: subject, Message: fmt.Sprintf(format, args...)}
}

// IOErrorf builds a KindIOError error wrapping cause.
func IOErrorf(cause error, format string, args ...any) *Error {
	return &Error{Kind: KindIOError, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// CorruptStatef builds a KindCorruptState error.
func CorruptStatef(subject, format string, args ...any) *Error {
	return &Error{Kind: KindCorruptState, Subject: subject, Message: fmt.Sprintf(format, args...)}
}

// HookFailuref builds a KindHookFailure error carrying the combined
// stdout/stderr text of the failing hook.
func HookFailuref(subject, text string) *Error {
	return &Error{Kind: KindHookFailure, Subject: subject, Message: text}
}

// Is reports whether err has the given Kind.
func Is(err error, kind Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}
