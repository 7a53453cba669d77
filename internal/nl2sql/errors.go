package nl2sql

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"

	"google.golang.org/genai"
)

// GenerationError reports that the model could not be reached or answered with
// an error after the allowed attempts.
type GenerationError struct {
	Provider string
	Attempts int
	Err      error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("sql generation failed provider=%s attempts=%d: %v", e.Provider, e.Attempts, e.Err)
}

func (e *GenerationError) Unwrap() error {
	return e.Err
}

// NoSQLFoundError carries the model output that held no SQL statement.
type NoSQLFoundError struct {
	Raw string
}

func (e *NoSQLFoundError) Error() string {
	return "model output contained no SQL statement"
}

// StatusError is a non-2xx answer from an HTTP model provider.
type StatusError struct {
	Provider   string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s request failed status=%d body=%s", e.Provider, e.StatusCode, e.Body)
}

func (e *StatusError) Transient() bool {
	return transientStatus(e.StatusCode)
}

func transientStatus(code int) bool {
	return code == http.StatusTooManyRequests || code >= 500
}

// isTransient reports whether another attempt could succeed. Deadline errors
// count only for the per-attempt timeout; the caller checks its own context
// before consulting this.
func isTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Transient()
	}
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return transientStatus(apiErr.Code)
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) {
		return transientStatus(apiErrPtr.Code)
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}
