package commandapi

import (
	"errors"
	"fmt"
)

var (
	// ErrUnauthorized means the remote API rejected the caller's credentials (HTTP 401).
	ErrUnauthorized = errors.New("unauthorized")
	// ErrUnsupportedFormat is returned for export formats other than CSV and PDF.
	ErrUnsupportedFormat = errors.New("unsupported export format")
)

// StatusError is a non-2xx response other than 401.
type StatusError struct {
	Endpoint string
	Status   int
	Body     string
}

func (e *StatusError) Error() string {
	if e == nil {
		return "unexpected status"
	}
	return fmt.Sprintf("%s returned status %d: %s", e.Endpoint, e.Status, e.Body)
}

// TransportError wraps network failures and timeouts.
type TransportError struct {
	Endpoint string
	Err      error
}

func (e *TransportError) Error() string {
	if e == nil {
		return "transport failure"
	}
	return fmt.Sprintf("%s: %v", e.Endpoint, e.Err)
}

func (e *TransportError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}
