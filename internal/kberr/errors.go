package kberr

import (
	"errors"
	"fmt"
)

// Kind classifies every error that crosses the core's boundary. Callers
// switch on the kind; they never see raw driver errors.
type Kind int

const (
	// KindInternal is the zero kind for unclassified failures.
	KindInternal Kind = iota
	// KindProviderUnavailable: no embedding provider could serve the call.
	// Recoverable — search degrades to keyword-only.
	KindProviderUnavailable
	// KindSchemaMismatch: a vector write did not match the table's declared
	// dimension. Recoverable — triggers a destructive table rebuild.
	KindSchemaMismatch
	// KindIndexCorruption: the full-text index is corrupted and repair was
	// exhausted. Fatal for the call.
	KindIndexCorruption
	// KindValidation: caller input was malformed; rejected before any side
	// effect.
	KindValidation
	// KindNotFound: the referenced entity does not exist. A normal negative
	// result, not a failure.
	KindNotFound
)

func (k Kind) String() string {
	switch k {
	case KindProviderUnavailable:
		return "provider_unavailable"
	case KindSchemaMismatch:
		return "schema_mismatch"
	case KindIndexCorruption:
		return "index_corruption"
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	default:
		return "internal"
	}
}

// Error is a kind-tagged error. It wraps the underlying cause so errors.Is
// and errors.As keep working through it.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		if e.Msg != "" {
			return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
		}
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

// New creates a kind-tagged error with a message.
func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

// Newf creates a kind-tagged error with a formatted message.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// Wrap tags an existing error with a kind. Returns nil if err is nil.
func Wrap(kind Kind, err error, msg string) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Msg: msg, Err: err}
}

// KindOf extracts the kind from an error chain, defaulting to KindInternal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Is reports whether the error chain carries the given kind.
func Is(err error, kind Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}
