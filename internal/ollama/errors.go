package ollama

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"syscall"
)

// ErrorKind is the closed set of upstream failure categories.
type ErrorKind int

const (
	KindInternal ErrorKind = iota
	KindUnreachable
	KindTimeout
	KindUnauthorized
	KindForbidden
	KindStatus
)

// StreamError classifies a failure of the Ollama chat stream. The
// relay maps the Kind to the single user-facing text fragment, so
// callers never need to inspect the underlying error.
type StreamError struct {
	Kind   ErrorKind
	Status int
	Err    error
}

func (e *StreamError) Error() string {
	switch e.Kind {
	case KindUnreachable:
		return fmt.Sprintf("ollama unreachable: %v", e.Err)
	case KindTimeout:
		return fmt.Sprintf("ollama request timed out: %v", e.Err)
	case KindUnauthorized:
		return "ollama: unauthorized (401)"
	case KindForbidden:
		return "ollama: forbidden (403)"
	case KindStatus:
		return fmt.Sprintf("ollama: unexpected status %d", e.Status)
	default:
		return fmt.Sprintf("ollama: %v", e.Err)
	}
}

func (e *StreamError) Unwrap() error { return e.Err }

func classify(err error) *StreamError {
	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return &StreamError{Kind: KindTimeout, Err: err}
	case errors.As(err, &netErr) && netErr.Timeout():
		return &StreamError{Kind: KindTimeout, Err: err}
	case errors.Is(err, syscall.ECONNREFUSED):
		return &StreamError{Kind: KindUnreachable, Err: err}
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return &StreamError{Kind: KindUnreachable, Err: err}
	}
	return &StreamError{Kind: KindInternal, Err: err}
}

func classifyStatus(status int) *StreamError {
	switch status {
	case http.StatusUnauthorized:
		return &StreamError{Kind: KindUnauthorized, Status: status}
	case http.StatusForbidden:
		return &StreamError{Kind: KindForbidden, Status: status}
	default:
		return &StreamError{Kind: KindStatus, Status: status}
	}
}
