package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors. Gateways and stores return these (optionally wrapped) so
// callers can branch with errors.Is.
var (
	ErrNotFound       = errors.New("not found")
	ErrConflict       = errors.New("conflict")
	ErrRejected       = errors.New("rejected")
	ErrUnavailable    = errors.New("unavailable")
	ErrValidation     = errors.New("validation failed")
	ErrBusy           = errors.New("another change is still in progress")
	ErrTabUnavailable = errors.New("tab unavailable")
)

// GatewayError is a failed call to the backend: a transport error or a
// non-2xx response. Its message is what the error banner shows.
type GatewayError struct {
	Op         string
	StatusCode int
	Err        error
}

func (e *GatewayError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: status %d", e.Op, e.StatusCode)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *GatewayError) Unwrap() error { return e.Err }

// IsGatewayError reports whether err carries a *GatewayError.
func IsGatewayError(err error) bool {
	var gwErr *GatewayError
	return errors.As(err, &gwErr)
}
