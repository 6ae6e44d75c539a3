package recall

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/corvid-ai/recall/memory"
)

// Sentinel errors for common store error conditions.
// These errors can be used with errors.Is() for error checking.
var (
	// ErrInvalidConfig indicates the provided configuration is invalid or incomplete.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrEmptyQuery indicates a search was attempted with an empty query string.
	ErrEmptyQuery = errors.New("search query is empty")
)

// Error kinds categorize errors by their type.
const (
	// KindNotFound represents errors where an entry was not found.
	KindNotFound = "not_found"

	// KindValidation represents errors related to input validation.
	KindValidation = "validation"

	// KindStorage represents errors raised by the backing store, including
	// corrupted or undecodable data.
	KindStorage = "storage"

	// KindConfiguration represents errors related to configuration.
	KindConfiguration = "configuration"

	// KindUnavailable represents errors where the backend cannot be reached.
	KindUnavailable = "unavailable"

	// KindTimeout represents errors related to operation timeouts.
	KindTimeout = "timeout"

	// KindInternal represents internal store errors.
	KindInternal = "internal"
)

// Error is a structured error type that wraps underlying errors with
// additional context about the operation that failed and the category of error.
//
// Error implements the error interface and supports error unwrapping,
// making it compatible with errors.Is() and errors.As().
//
// Example usage:
//
//	err := &Error{
//		Op:   "Memory.Retrieve",
//		Kind: KindNotFound,
//		Err:  memory.ErrNotFound,
//	}
type Error struct {
	// Op is the operation that failed (e.g., "Memory.Store", "Memory.Search").
	Op string

	// Kind categorizes the error (e.g., KindNotFound, KindValidation).
	Kind string

	// Err is the underlying error that caused this error.
	Err error

	// Context provides additional context about the error (optional).
	// This can include scope names, keys, or other debugging information.
	Context map[string]any
}

// Error implements the error interface, returning a formatted error message
// that includes the operation, kind, and underlying error.
func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("recall: %s: %s", e.Op, e.Kind)
	}

	if len(e.Context) > 0 {
		return fmt.Sprintf("recall: %s (%s): %v [context: %+v]", e.Op, e.Kind, e.Err, e.Context)
	}

	return fmt.Sprintf("recall: %s (%s): %v", e.Op, e.Kind, e.Err)
}

// Unwrap returns the underlying error, allowing errors.Is() and errors.As()
// to work correctly with wrapped errors.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is implements error matching for Error, allowing comparison based on
// the underlying error or the Error itself.
func (e *Error) Is(target error) bool {
	if target == nil {
		return false
	}

	// Check if target is an Error with matching Kind
	if t, ok := target.(*Error); ok {
		// Match if both Op and Kind are the same, or if Kind matches and Op is empty in target
		if t.Kind != "" && e.Kind == t.Kind {
			if t.Op == "" || e.Op == t.Op {
				return true
			}
		}
	}

	// Delegate to underlying error
	return errors.Is(e.Err, target)
}

// WithContext returns a new Error with the provided context added.
// This is useful for adding debugging information to errors.
//
// Example:
//
//	err := &Error{
//		Op:   "Memory.Retrieve",
//		Kind: KindNotFound,
//		Err:  memory.ErrNotFound,
//	}
//	err = err.WithContext(map[string]any{
//		"scope": "session-1",
//		"key":   "goal",
//	})
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

// NewNotFoundError creates a new Error with KindNotFound.
func NewNotFoundError(op string, err error) *Error {
	return &Error{
		Op:   op,
		Kind: KindNotFound,
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

// NewStorageError creates a new Error with KindStorage.
func NewStorageError(op string, err error) *Error {
	return &Error{
		Op:   op,
		Kind: KindStorage,
		Err:  err,
	}
}

// NewConfigurationError creates a new Error with KindConfiguration.
func NewConfigurationError(op string, err error) *Error {
	return &Error{
		Op:   op,
		Kind: KindConfiguration,
		Err:  err,
	}
}

// NewUnavailableError creates a new Error with KindUnavailable.
func NewUnavailableError(op string, err error) *Error {
	return &Error{
		Op:   op,
		Kind: KindUnavailable,
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

// NewInternalError creates a new Error with KindInternal.
func NewInternalError(op string, err error) *Error {
	return &Error{
		Op:   op,
		Kind: KindInternal,
		Err:  err,
	}
}

// wrapOpError classifies an error coming out of a backend or validation
// step into the matching kind for the given operation. Errors that already
// carry a kind pass through unchanged.
func wrapOpError(op string, err error) error {
	if err == nil {
		return nil
	}

	var opErr *Error
	if errors.As(err, &opErr) {
		return err
	}

	switch {
	case errors.Is(err, memory.ErrNotFound):
		return NewNotFoundError(op, err)
	case errors.Is(err, memory.ErrInvalidScope),
		errors.Is(err, memory.ErrInvalidKey),
		errors.Is(err, memory.ErrInvalidValue),
		errors.Is(err, memory.ErrInvalidImportance),
		errors.Is(err, memory.ErrInvalidTTL),
		errors.Is(err, ErrEmptyQuery):
		return NewValidationError(op, err)
	case errors.Is(err, memory.ErrUnavailable):
		return NewUnavailableError(op, err)
	case errors.Is(err, context.DeadlineExceeded):
		return NewTimeoutError(op, err)
	case errors.Is(err, memory.ErrClosed), errors.Is(err, memory.ErrCorrupted):
		return NewStorageError(op, err)
	default:
		return NewStorageError(op, err)
	}
}

// CloseWithLog attempts to close the provided resource and logs any error
// at warning level. This is intended for use in defer statements to ensure
// cleanup errors are not silently ignored.
//
// The name parameter should describe the resource being closed (e.g., "file",
// "connection", "backend"). If logger is nil, slog.Default() is used.
//
// Example usage:
//
//	defer recall.CloseWithLog(file, logger, "config file")
//	defer recall.CloseWithLog(backend, logger, "memory backend")
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
