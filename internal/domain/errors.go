package domain

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

var (
	// ErrContextUnavailable is returned when a ticket-scoped operation runs
	// in a view that has no ticket context.
	ErrContextUnavailable = errors.New("ticket context unavailable")
	ErrNotFound           = errors.New("not found")
)

// TransportError is a network failure or non-2xx response.
type TransportError struct {
	Endpoint string
	Status   int
	Body     string
	Err      error
}

func (e *TransportError) Error() string {
	switch {
	case e.Err != nil:
		return fmt.Sprintf("transport %s: %v", e.Endpoint, e.Err)
	case e.Body != "":
		return fmt.Sprintf("transport %s: status %d: %s", e.Endpoint, e.Status, e.Body)
	default:
		return fmt.Sprintf("transport %s: status %d", e.Endpoint, e.Status)
	}
}

func (e *TransportError) Unwrap() error {
	if e.Status == http.StatusNotFound {
		return ErrNotFound
	}
	return e.Err
}

// Transient reports whether retrying the same request may succeed.
func (e *TransportError) Transient() bool {
	if e.Err != nil {
		return true
	}
	return e.Status == http.StatusTooManyRequests || e.Status >= 500
}

// DataShapeError means a response was missing expected fields. Never retried.
type DataShapeError struct {
	Source string
	Reason string
	Raw    string
}

func (e *DataShapeError) Error() string {
	return fmt.Sprintf("unexpected %s payload: %s", e.Source, e.Reason)
}

// ContextUnavailableError names the operation that needed a ticket context.
type ContextUnavailableError struct {
	Op string
}

func (e *ContextUnavailableError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, ErrContextUnavailable)
}

func (e *ContextUnavailableError) Unwrap() error {
	return ErrContextUnavailable
}

// ScoringServiceError is a backend failure during scoring submission or fetch.
type ScoringServiceError struct {
	Op        string
	TicketIDs []string
	Err       error
}

func (e *ScoringServiceError) Error() string {
	if len(e.TicketIDs) == 0 {
		return fmt.Sprintf("scoring %s failed: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("scoring %s failed for tickets [%s]: %v", e.Op, strings.Join(e.TicketIDs, ","), e.Err)
}

func (e *ScoringServiceError) Unwrap() error {
	return e.Err
}

// IsTransient reports whether err wraps a retriable transport failure.
func IsTransient(err error) bool {
	var te *TransportError
	if errors.As(err, &te) {
		return te.Transient()
	}
	return false
}
