package domain

import "errors"

var (
	ErrStreamNotFound       = errors.New("stream not found")
	ErrStreamModified       = errors.New("stream modified concurrently")
	ErrSessionNotFound      = errors.New("session not found")
	ErrPermissionDenied     = errors.New("permission denied")
	ErrInvalidState         = errors.New("operation not allowed in current stream state")
	ErrPasswordRequired     = errors.New("password required or incorrect")
	ErrPrivateAccess        = errors.New("stream is private")
	ErrPremiumRequired      = errors.New("premium entitlement required")
	ErrCapacityExceeded     = errors.New("viewer capacity exceeded")
	ErrTooManyActiveStreams = errors.New("concurrent stream limit reached")
)
