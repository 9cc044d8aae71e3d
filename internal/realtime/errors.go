package realtime

import (
	"errors"
	"fmt"
)

var (
	// ErrClosed is returned by send operations after Close.
	ErrClosed = errors.New("realtime: client closed")

	// ErrQueueFull is returned when the outbound queue cannot take another
	// message. The message is dropped.
	ErrQueueFull = errors.New("realtime: send queue full")

	ErrMissingAPIKey = errors.New("realtime: API key is required")
)

// APIError is the payload of a server "error" event.
type APIError struct {
	Type    string `json:"type"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
	Param   string `json:"param,omitempty"`
	EventID string `json:"event_id,omitempty"`
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("realtime: %s [%s]: %s", e.Type, e.Code, e.Message)
	}
	return fmt.Sprintf("realtime: %s: %s", e.Type, e.Message)
}
