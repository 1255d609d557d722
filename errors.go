package authctl

import "errors"

var (
	// ErrBackendRequired is returned by Build when no backend client was provided.
	ErrBackendRequired = errors.New("backend client required")
	// ErrBuilderUsed is returned by a second Build on the same Builder.
	ErrBuilderUsed = errors.New("builder already used")
	// ErrControllerClosed is returned by Start after Close, and is the cause of
	// failures from operations invoked on a closed controller.
	ErrControllerClosed = errors.New("controller closed")
	// ErrControllerStarted is returned by a second Start.
	ErrControllerStarted = errors.New("controller already started")
	// ErrInvalidConfig wraps every Config validation failure.
	ErrInvalidConfig = errors.New("invalid config")
)
