package chat

import "errors"

// Sentinel errors for the chat boundary. Handlers map these to HTTP statuses
// with errors.Is; wrapped variants carry the specific message.
var (
	ErrUnauthenticated = errors.New("unauthenticated")
	ErrForbidden       = errors.New("forbidden")
	ErrNotFound        = errors.New("not found")
	ErrInvalidRole     = errors.New("invalid role")
	ErrValidation      = errors.New("validation failed")
)
