package device

import (
	"errors"
	"strings"
)

// Kind classifies a failure of a core operation.
type Kind string

const (
	AdapterUnavailable  Kind = "adapter_unavailable"
	PermissionDenied    Kind = "permission_denied"
	IOFailure           Kind = "io_failure"
	ParseFailure        Kind = "parse_failure"
	RegistrationFailure Kind = "registration_failure"
)

// Error carries the kind of failure, the operation that failed and the cause.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

// Error implements the error interface
func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	b.WriteString(string(e.Kind))
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is allows errors.Is to compare Error values by Kind
func (e *Error) Is(target error) bool {
	if e == nil {
		return false
	}
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// Predefined sentinel errors, one per kind
var (
	ErrAdapterUnavailable  = &Error{Kind: AdapterUnavailable}
	ErrPermissionDenied    = &Error{Kind: PermissionDenied}
	ErrIOFailure           = &Error{Kind: IOFailure}
	ErrParseFailure        = &Error{Kind: ParseFailure}
	ErrRegistrationFailure = &Error{Kind: RegistrationFailure}
)

// NewError wraps err with a kind and operation name.
func NewError(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf reports the kind of err. Errors that carry no kind are IO failures:
// every untyped failure from a stream or adapter is transient and recoverable
// by reconnecting.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var derr *Error
	if errors.As(err, &derr) {
		return derr.Kind
	}
	for _, sentinel := range sentinels {
		if errors.Is(err, sentinel) {
			return sentinel.Kind
		}
	}
	return IOFailure
}

var sentinels = []*Error{
	ErrAdapterUnavailable,
	ErrPermissionDenied,
	ErrParseFailure,
	ErrRegistrationFailure,
}

// IsKind reports whether err is an Error with the given kind
func IsKind(err error, kind Kind) bool {
	var derr *Error
	if errors.As(err, &derr) {
		return derr.Kind == kind
	}
	return false
}

// NormalizeError maps platform error messages to typed errors so callers can
// branch on kinds instead of strings. Unrecognised errors are returned as-is.
func NormalizeError(op string, err error) error {
	if err == nil {
		return nil
	}
	var derr *Error
	if errors.As(err, &derr) {
		return err
	}

	msg := err.Error()
	switch {
	case containsIgnoreCase(msg, "permission denied"),
		containsIgnoreCase(msg, "operation not permitted"),
		containsIgnoreCase(msg, "not authorized"):
		return NewError(PermissionDenied, op, err)
	case containsIgnoreCase(msg, "no such device"),
		containsIgnoreCase(msg, "not powered"),
		containsIgnoreCase(msg, "org.bluez.error.notready"),
		containsIgnoreCase(msg, "adapter not found"),
		containsIgnoreCase(msg, "is bluetooth turned on"),
		containsIgnoreCase(msg, "bluetooth is turned off"):
		return NewError(AdapterUnavailable, op, err)
	default:
		return err
	}
}

// containsIgnoreCase checks substring case-insensitively
func containsIgnoreCase(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}
