package internal

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrProtocol covers malformed wire bytes and upgrade requests without
	// a registered handler. It is fatal for the connection.
	ErrProtocol = errors.New("evhttp: protocol error")

	// ErrTooManyRedirects fires at the hop where the redirect count would
	// exceed the request's maximum.
	ErrTooManyRedirects = errors.New("evhttp: too many redirects")

	// ErrStreamConsumed is returned when iterating a stream whose
	// connection was never attached, or reusing an exhausted one.
	ErrStreamConsumed = errors.New("evhttp: stream consumed")
)

// StatusError is returned by RaiseForStatus for non-2xx outcomes. The
// engine itself resolves error statuses as data so callers can inspect
// their bodies; this error only exists on explicit request.
type StatusError struct {
	URL        string
	StatusCode int
	Status     string
	Header     http.Header
	Body       []byte
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("evhttp: %s returned %s", e.URL, e.Status)
}
