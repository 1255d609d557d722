package backend

import (
	"errors"
	"strconv"
)

// ErrSubscriptionClosed is returned by Hub.Subscribe after the hub is closed.
var ErrSubscriptionClosed = errors.New("auth event stream closed")

// Error is an error the identity backend declared on purpose.
type Error struct {
	Status  int
	Code    string
	Message string
}

// Error returns the backend message verbatim.
func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Message != "" {
		return e.Message
	}
	if e.Code != "" {
		return e.Code
	}
	return "backend returned status " + strconv.Itoa(e.Status)
}

// StatusCode implements result.Declared.
func (e *Error) StatusCode() int {
	if e == nil {
		return 0
	}
	return e.Status
}

// ErrorCode implements result.Coded.
func (e *Error) ErrorCode() string {
	if e == nil {
		return ""
	}
	return e.Code
}
