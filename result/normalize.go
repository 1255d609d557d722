package result

import (
	"errors"
	"fmt"
)

// Declared is implemented by errors that the identity backend returned on
// purpose, as opposed to transport or decoding failures.
type Declared interface {
	error
	StatusCode() int
}

// Coded is optionally implemented by declared errors that carry a machine
// readable error code.
type Coded interface {
	ErrorCode() string
}

// FromError normalizes err into a Failure. Declared backend errors keep their
// message and status verbatim; everything else becomes Unexpected with
// unexpectedMessage. A Failure passed in is returned unchanged.
func FromError(err error, unexpectedMessage string) *Failure {
	if err == nil {
		return NewFailure(KindUnexpected, unexpectedMessage)
	}

	var f *Failure
	if errors.As(err, &f) && f != nil {
		return f
	}

	var declared Declared
	if errors.As(err, &declared) {
		return &Failure{
			Kind:    KindNetworkOrBackend,
			Message: declared.Error(),
			Status:  declared.StatusCode(),
			cause:   err,
		}
	}

	return &Failure{
		Kind:    KindUnexpected,
		Message: unexpectedMessage,
		cause:   err,
	}
}

// FromPanic converts a recovered panic value into an Unexpected failure.
func FromPanic(recovered any, unexpectedMessage string) *Failure {
	var cause error
	switch v := recovered.(type) {
	case error:
		cause = v
	default:
		cause = fmt.Errorf("panic: %v", v)
	}
	return &Failure{
		Kind:    KindUnexpected,
		Message: unexpectedMessage,
		cause:   cause,
	}
}

// ErrorCode extracts the backend error code from err, or "".
func ErrorCode(err error) string {
	var coded Coded
	if errors.As(err, &coded) {
		return coded.ErrorCode()
	}
	return ""
}
