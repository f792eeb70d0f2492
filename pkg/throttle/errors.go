package throttle

import (
	"errors"
	"fmt"
	"strings"
)

// Common errors returned by the invoker.
var (
	// ErrRetryExhausted is returned when all attempts failed.
	ErrRetryExhausted = errors.New("retry attempts exhausted")

	// ErrContextCancelled is returned when the context ends between attempts.
	ErrContextCancelled = errors.New("context cancelled")
)

// ErrorClass classifies a failed attempt for logs and metrics.
type ErrorClass string

const (
	// ErrorClassOverload is a transient server overload (HTTP 429).
	ErrorClassOverload ErrorClass = "overload"

	// ErrorClassOther is any other failure.
	ErrorClassOther ErrorClass = "other"
)

// overloadStatusMarker is the status code that marks an overloaded API in
// error descriptions that carry no typed information.
const overloadStatusMarker = "429"

// ExhaustedError is the terminal failure of an operation whose attempt
// budget ran out.
type ExhaustedError struct {
	Label    string
	Attempts int
	Err      error
}

// Error implements the error interface.
func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("%s: %v after %d attempts: %v", e.Label, ErrRetryExhausted, e.Attempts, e.Err)
}

// Unwrap returns the last attempt's error.
func (e *ExhaustedError) Unwrap() error {
	return e.Err
}

// Is makes errors.Is(err, ErrRetryExhausted) succeed.
func (e *ExhaustedError) Is(target error) bool {
	return target == ErrRetryExhausted
}

// overloader is implemented by errors that know whether they signal an
// overloaded server, e.g. notion.APIError.
type overloader interface {
	Overloaded() bool
}

// Classify returns the error class of a failed attempt.
func Classify(err error) ErrorClass {
	if err == nil {
		return ""
	}

	var o overloader
	if errors.As(err, &o) {
		if o.Overloaded() {
			return ErrorClassOverload
		}
		return ErrorClassOther
	}

	if strings.Contains(err.Error(), overloadStatusMarker) {
		return ErrorClassOverload
	}
	return ErrorClassOther
}
