package mailtriage

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
)

// Sentinel errors for common triage error conditions.
// These errors can be used with errors.Is() for error checking.
var (
	// ErrMessageNotFound indicates no message node exists for the requested id.
	ErrMessageNotFound = errors.New("message not found")

	// ErrSessionNotFound indicates the requested investigation session does not exist.
	ErrSessionNotFound = errors.New("session not found")

	// ErrUpstreamUnavailable indicates the graph store or LLM service is unreachable.
	ErrUpstreamUnavailable = errors.New("upstream unavailable")

	// ErrToolNotFound indicates the reasoning backend requested an unregistered tool.
	ErrToolNotFound = errors.New("tool not found")

	// ErrInvalidConfig indicates the provided configuration is invalid or incomplete.
	ErrInvalidConfig = errors.New("invalid configuration")
)

// Error kinds categorize errors by their type.
const (
	// KindNotFound represents errors where a message or session was not found.
	KindNotFound = "not_found"

	// KindUpstream represents errors where an external dependency
	// (graph store, LLM service) was unreachable or failed.
	KindUpstream = "upstream"

	// KindTimeout represents errors where an operation exceeded its bound.
	KindTimeout = "timeout"

	// KindPersistence represents errors from session transcript writes.
	// These are logged and swallowed at the investigation boundary.
	KindPersistence = "persistence"

	// KindValidation represents errors related to input validation.
	KindValidation = "validation"

	// KindInternal represents internal errors.
	KindInternal = "internal"
)

// Error is a structured error type that wraps underlying errors with
// the operation that failed and the category of failure.
//
// Error implements the error interface and supports error unwrapping,
// making it compatible with errors.Is() and errors.As().
type Error struct {
	// Op is the operation that failed (e.g., "Aggregator.Gather", "Loop.Run").
	Op string

	// Kind categorizes the error (e.g., KindNotFound, KindUpstream).
	Kind string

	// Err is the underlying error that caused this error.
	Err error

	// Context provides additional context about the error (optional),
	// such as the message id or session id involved.
	Context map[string]any
}

// Error implements the error interface, returning a formatted message
// that includes the operation, kind, and underlying error.
func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("mailtriage: %s: %s", e.Op, e.Kind)
	}

	if len(e.Context) > 0 {
		return fmt.Sprintf("mailtriage: %s (%s): %v [context: %+v]", e.Op, e.Kind, e.Err, e.Context)
	}

	return fmt.Sprintf("mailtriage: %s (%s): %v", e.Op, e.Kind, e.Err)
}

// Unwrap returns the underlying error, allowing errors.Is() and errors.As()
// to work correctly with wrapped errors.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is implements error matching for Error, allowing comparison based on
// the underlying error or on a target Error's Kind and Op.
func (e *Error) Is(target error) bool {
	if target == nil {
		return false
	}

	if t, ok := target.(*Error); ok {
		if t.Kind != "" && e.Kind == t.Kind {
			if t.Op == "" || e.Op == t.Op {
				return true
			}
		}
	}

	return errors.Is(e.Err, target)
}

// WithContext returns a copy of the error with the provided context added.
func (e *Error) WithContext(ctx map[string]any) *Error {
	newErr := *e
	if newErr.Context == nil {
		newErr.Context = make(map[string]any)
	}
	for k, v := range ctx {
		newErr.Context[k] = v
	}
	return &newErr
}

// IsKind reports whether err is (or wraps) an Error of the given kind.
func IsKind(err error, kind string) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// NewNotFoundError creates a new Error with KindNotFound.
func NewNotFoundError(op string, err error) *Error {
	return &Error{
		Op:   op,
		Kind: KindNotFound,
		Err:  err,
	}
}

// NewUpstreamError creates a new Error with KindUpstream.
func NewUpstreamError(op string, err error) *Error {
	return &Error{
		Op:   op,
		Kind: KindUpstream,
		Err:  err,
	}
}

// NewTimeoutError creates a new Error with KindTimeout.
func NewTimeoutError(op string, err error) *Error {
	return &Error{
		Op:   op,
		Kind: KindTimeout,
		Err:  err,
	}
}

// NewPersistenceError creates a new Error with KindPersistence.
func NewPersistenceError(op string, err error) *Error {
	return &Error{
		Op:   op,
		Kind: KindPersistence,
		Err:  err,
	}
}

// NewValidationError creates a new Error with KindValidation.
func NewValidationError(op string, err error) *Error {
	return &Error{
		Op:   op,
		Kind: KindValidation,
		Err:  err,
	}
}

// NewInternalError creates a new Error with KindInternal.
func NewInternalError(op string, err error) *Error {
	return &Error{
		Op:   op,
		Kind: KindInternal,
		Err:  err,
	}
}

// CloseWithLog attempts to close the provided resource and logs any error
// at warning level. This is intended for use in defer statements so cleanup
// errors are not silently ignored.
//
// The name parameter should describe the resource being closed (e.g.,
// "session store", "graph connection"). If logger is nil, slog.Default()
// is used.
func CloseWithLog(closer io.Closer, logger *slog.Logger, name string) {
	if closer == nil {
		return
	}

	if logger == nil {
		logger = slog.Default()
	}

	if err := closer.Close(); err != nil {
		logger.Warn("failed to close resource",
			"resource", name,
			"error", err)
	}
}
