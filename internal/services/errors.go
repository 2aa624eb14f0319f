package services

import (
	"errors"
	"fmt"

	"github.com/diewo77/go-tasks/gate"
)

var (
	// ErrNotFound is returned when a record is absent or not visible to the principal.
	ErrNotFound = errors.New("not_found")
	// ErrForbidden is returned when the principal may not perform the action.
	ErrForbidden = errors.New("forbidden")
	// ErrUnauthenticated is returned for anonymous principals.
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrInvalidCredentials is returned by Login for unknown users, inactive
	// users and wrong passwords alike.
	ErrInvalidCredentials = errors.New("invalid_credentials")
)

// gateErr maps gate errors onto service errors.
func gateErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gate.ErrUnauthenticated):
		return ErrUnauthenticated
	case errors.Is(err, gate.ErrForbidden):
		return ErrForbidden
	default:
		return fmt.Errorf("authorize: %w", err)
	}
}
