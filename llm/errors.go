package llm

import (
	"errors"
	"fmt"
	"net/http"
)

// errorBodyChars caps how much of an upstream error body is carried in
// the wrapped error message.
const errorBodyChars = 200

// Model call failures fall into two classes: transient ones worth
// retrying, and fatal ones where a retry would only repeat the failure.

// TransientError marks a failure that may clear on retry, such as a rate
// limit or an upstream 5xx.
type TransientError struct {
	err error
}

func (e *TransientError) Error() string {
	return e.err.Error()
}

func (e *TransientError) Unwrap() error {
	return e.err
}

// NewTransientError marks err as retryable.
func NewTransientError(err error) error {
	return &TransientError{err: err}
}

// FatalError marks a failure a retry cannot fix, such as a malformed
// request or rejected credentials.
type FatalError struct {
	err error
}

func (e *FatalError) Error() string {
	return e.err.Error()
}

func (e *FatalError) Unwrap() error {
	return e.err
}

// NewFatalError marks err as non-retryable.
func NewFatalError(err error) error {
	return &FatalError{err: err}
}

// IsTransient reports whether err should be retried.
func IsTransient(err error) bool {
	var transient *TransientError
	return errors.As(err, &transient)
}

// IsFatal reports whether err is permanent.
func IsFatal(err error) bool {
	var fatal *FatalError
	return errors.As(err, &fatal)
}

// classifyHTTPError assigns a non-200 model API response to the error
// taxonomy. Rate limiting and server errors are transient; auth errors,
// bad requests, and anything unrecognized are fatal.
func classifyHTTPError(statusCode int, body []byte) error {
	bodyStr := string(body)
	if len(bodyStr) > errorBodyChars {
		bodyStr = bodyStr[:errorBodyChars] + "..."
	}

	err := fmt.Errorf("LLM API error (status %d): %s", statusCode, bodyStr)

	switch {
	case statusCode == http.StatusTooManyRequests:
		return NewTransientError(err)
	case statusCode >= 500:
		return NewTransientError(err)
	default:
		return NewFatalError(err)
	}
}
