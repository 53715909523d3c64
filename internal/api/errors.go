package api

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a failed backend call
type ErrorKind int

const (
	// KindTransport means no response was received (connection, timeout, DNS)
	KindTransport ErrorKind = iota
	// KindHTTP means the backend answered with a non-success status
	KindHTTP
	// KindDecode means a success response carried a body that is not JSON
	KindDecode
)

// String returns a human-readable representation of the kind
func (k ErrorKind) String() string {
	switch k {
	case KindTransport:
		return "transport"
	case KindHTTP:
		return "http"
	case KindDecode:
		return "decode"
	default:
		return "unknown"
	}
}

// APIError is the failure variant of every gateway call.
// StatusCode is 0 for transport failures.
type APIError struct {
	Kind       ErrorKind
	StatusCode int
	Message    string
	Err        error
}

func (e *APIError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s error: status %d: %s", e.Kind, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s error: %s", e.Kind, e.Message)
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// StatusCode extracts the HTTP status of a gateway failure, if any
func StatusCode(err error) (int, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Kind == KindHTTP {
		return apiErr.StatusCode, true
	}
	return 0, false
}

// IsTransport reports whether err is a gateway failure without a response
func IsTransport(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Kind == KindTransport
}
