package session

import "errors"

var (
	// ErrHostNotReady is returned when a session is requested for a host
	// process whose integration surface has not been validated.
	ErrHostNotReady = errors.New("host process not ready")

	// ErrSessionInvalid is returned when a surface handle does not resolve
	// to a live session. Callers treat it as a skip, never a failure.
	ErrSessionInvalid = errors.New("no session for surface handle")
)
