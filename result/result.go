package result

import (
	"errors"
	"strconv"
)

// Kind is the stable error taxonomy exposed to callers. The zero value KindNone
// means "no error".
type Kind string

const (
	// KindNone marks the absence of an error.
	KindNone Kind = ""
	// KindInvalidCredentials is returned when the backend rejects the credentials.
	KindInvalidCredentials Kind = "invalid_credentials"
	// KindWeakPassword is returned when the password fails the client-side policy
	// or the backend's password strength rules.
	KindWeakPassword Kind = "weak_password"
	// KindNoSessionInURL is returned when a redirect URI carries no session. It is a
	// normal outcome, not a system error.
	KindNoSessionInURL Kind = "no_session_in_url"
	// KindBusy is returned when another operation is already in flight.
	KindBusy Kind = "busy"
	// KindNetworkOrBackend is returned for errors the backend declared.
	KindNetworkOrBackend Kind = "network_or_backend"
	// KindUnexpected covers transport failures, parse failures, and recovered panics.
	KindUnexpected Kind = "unexpected"
)

var (
	// ErrInvalidCredentials matches failures of kind KindInvalidCredentials via errors.Is.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrWeakPassword matches failures of kind KindWeakPassword via errors.Is.
	ErrWeakPassword = errors.New("weak password")
	// ErrNoSessionInURL matches failures of kind KindNoSessionInURL via errors.Is.
	ErrNoSessionInURL = errors.New("no session in url")
	// ErrBusy matches failures of kind KindBusy via errors.Is.
	ErrBusy = errors.New("operation in progress")
	// ErrNetworkOrBackend matches failures of kind KindNetworkOrBackend via errors.Is.
	ErrNetworkOrBackend = errors.New("backend error")
	// ErrUnexpected matches failures of kind KindUnexpected via errors.Is.
	ErrUnexpected = errors.New("unexpected error")
)

var kindSentinels = map[Kind]error{
	KindInvalidCredentials: ErrInvalidCredentials,
	KindWeakPassword:       ErrWeakPassword,
	KindNoSessionInURL:     ErrNoSessionInURL,
	KindBusy:               ErrBusy,
	KindNetworkOrBackend:   ErrNetworkOrBackend,
	KindUnexpected:         ErrUnexpected,
}

// String returns the wire name of the kind, or "none".
func (k Kind) String() string {
	if k == KindNone {
		return "none"
	}
	return string(k)
}

// Failure is the error half of a Result.
type Failure struct {
	Kind    Kind
	Message string
	// Status is the backend-declared status code, or 0 when there is none.
	Status int

	cause error
}

// NewFailure builds a Failure without a status code.
func NewFailure(kind Kind, message string) *Failure {
	return &Failure{Kind: kind, Message: message}
}

// WithCause returns a copy of f that remembers the underlying error for logging.
func (f *Failure) WithCause(err error) *Failure {
	if f == nil {
		return nil
	}
	out := *f
	out.cause = err
	return &out
}

// Cause returns the underlying error, if any. It is meant for logs, never for
// presentation.
func (f *Failure) Cause() error {
	if f == nil {
		return nil
	}
	return f.cause
}

func (f *Failure) Error() string {
	if f == nil {
		return ""
	}
	if f.Status != 0 {
		return f.Kind.String() + " (" + strconv.Itoa(f.Status) + "): " + f.Message
	}
	return f.Kind.String() + ": " + f.Message
}

// Is matches the per-kind sentinel errors.
func (f *Failure) Is(target error) bool {
	if f == nil {
		return false
	}
	sentinel, ok := kindSentinels[f.Kind]
	return ok && sentinel == target
}

// Result holds exactly one of a value or a failure.
type Result[T any] struct {
	value   T
	failure *Failure
}

// Ok wraps a successful value.
func Ok[T any](v T) Result[T] {
	return Result[T]{value: v}
}

// Fail wraps a failure. A nil failure is normalized to an Unexpected one so that a
// Result is never ambiguous.
func Fail[T any](f *Failure) Result[T] {
	if f == nil {
		f = NewFailure(KindUnexpected, "An unexpected error occurred")
	}
	return Result[T]{failure: f}
}

// OK reports whether the result is a success.
func (r Result[T]) OK() bool {
	return r.failure == nil
}

// Value returns the success value, or the zero value on failure.
func (r Result[T]) Value() T {
	return r.value
}

// Failure returns the failure, or nil on success.
func (r Result[T]) Failure() *Failure {
	return r.failure
}

// Kind returns the failure kind, or KindNone on success.
func (r Result[T]) Kind() Kind {
	if r.failure == nil {
		return KindNone
	}
	return r.failure.Kind
}

// Unpack converts the result into Go's (value, error) convention.
func (r Result[T]) Unpack() (T, error) {
	if r.failure != nil {
		var zero T
		return zero, r.failure
	}
	return r.value, nil
}
