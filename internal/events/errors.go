package events

import "errors"

var (
	// ErrMalformedFrame is returned when an inbound frame is not valid JSON
	// or lacks required fields.
	ErrMalformedFrame = errors.New("events: malformed frame")

	// ErrUnknownFrame is returned for a frame type the router does not handle.
	ErrUnknownFrame = errors.New("events: unknown frame type")
)
