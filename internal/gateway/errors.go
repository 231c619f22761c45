package gateway

import (
	"errors"
	"fmt"
	"net/http"
)

// APIError is a well-formed failure reported by the backend. Detail carries the
// backend's own reason, or the HTTP status text when the body had none.
type APIError struct {
	Op     string
	Status int
	Detail string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: server returned %d: %s", e.Op, e.Status, e.Detail)
}

// TransportError means the backend could not be reached or answered with a
// body that could not be decoded.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: backend not reachable: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// Reason returns the human-readable reason for err: the backend detail for an
// APIError, the underlying cause for a TransportError, err.Error() otherwise.
func Reason(err error) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Detail
	}
	var tErr *TransportError
	if errors.As(err, &tErr) {
		return tErr.Err.Error()
	}
	return err.Error()
}

// IsTransport reports whether err is a transport failure.
func IsTransport(err error) bool {
	var tErr *TransportError
	return errors.As(err, &tErr)
}

func statusDetail(status int) string {
	if text := http.StatusText(status); text != "" {
		return text
	}
	return "Unknown error"
}
