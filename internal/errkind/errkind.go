// Package errkind defines the closed error taxonomy surfaced across the
// signal, scanning, and alerting core (spec §7).
package errkind

import (
	"errors"
	"fmt"
)

// Kind is one of the fixed error categories the core ever surfaces.
// Callers switch on Kind, never on error string contents.
type Kind string

const (
	ConfigInvalid        Kind = "CONFIG_INVALID"
	Network              Kind = "NETWORK"
	RateLimited          Kind = "RATE_LIMITED"
	RateCancelled        Kind = "RATE_CANCELLED"
	SymbolUnknown        Kind = "SYMBOL_UNKNOWN"
	Empty                Kind = "EMPTY"
	InvalidSeries        Kind = "INVALID_SERIES"
	InsufficientHistory  Kind = "INSUFFICIENT_HISTORY"
	Internal             Kind = "INTERNAL"
	ChannelUnconfigured  Kind = "CHANNEL_UNCONFIGURED"
	ChannelTransient     Kind = "CHANNEL_TRANSIENT"
	ChannelPermanent     Kind = "CHANNEL_PERMANENT"
	StoreUnavailable     Kind = "STORE_UNAVAILABLE"
	NotFound             Kind = "NOT_FOUND"
)

// Error wraps an underlying error with a taxonomy Kind and the operation
// that produced it, following the teacher's fmt.Errorf("...: %w") wrapping
// idiom while still letting callers recover the Kind via errors.As.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func New(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Is lets errors.Is(err, errkind.New(kind, "", nil)) match on Kind alone.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return t.Kind == e.Kind
	}
	return false
}

// KindOf extracts the Kind from err, defaulting to Internal when err does
// not carry one — every unexpected error is surfaced, never swallowed into
// a zero value.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Internal
}

// Sentinel returns a zero-payload *Error of the given kind, suitable for
// errors.Is comparisons: errors.Is(err, errkind.Sentinel(errkind.Empty)).
func Sentinel(kind Kind) *Error { return &Error{Kind: kind} }
