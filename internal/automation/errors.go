package automation

import "errors"

var (
	// ErrUnknownService is returned for a command topic naming no service.
	ErrUnknownService = errors.New("automation: unknown service")

	// ErrAlreadyStarted is returned by a second Start.
	ErrAlreadyStarted = errors.New("automation: bridge already started")
)
