package transport

import (
	"fmt"
	"net/http"
)

// StatusError is returned when the chat endpoint answers with a non-success
// status. Details is only filled in by endpoints running in development.
type StatusError struct {
	StatusCode int
	Message    string
	Details    string
}

func (e *StatusError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = http.StatusText(e.StatusCode)
	}
	if e.Details != "" {
		return fmt.Sprintf("chat endpoint returned %d: %s (%s)", e.StatusCode, msg, e.Details)
	}
	return fmt.Sprintf("chat endpoint returned %d: %s", e.StatusCode, msg)
}

// StreamError carries an error part received in the middle of a stream.
type StreamError struct {
	Message string
}

func (e *StreamError) Error() string {
	return "chat stream failed: " + e.Message
}
