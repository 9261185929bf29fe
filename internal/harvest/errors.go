package harvest

import "errors"

var (
	// ErrInvalidWebsite marks a missing or unparsable website value.
	ErrInvalidWebsite = errors.New("invalid website")
	// ErrSessionLost marks a rendering session that can no longer be used.
	ErrSessionLost = errors.New("rendering session lost")
	// ErrRenderingDisabled is returned by sessions that cannot execute scripts.
	ErrRenderingDisabled = errors.New("rendering disabled")
	// ErrNotHTML is returned when a response is not an HTML document.
	ErrNotHTML = errors.New("response is not html")
	// ErrNotFound is returned when a record id does not exist.
	ErrNotFound = errors.New("record not found")
)
