package service

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrEmailAlreadyExists is returned when registering with an email the
	// store already holds.
	ErrEmailAlreadyExists = errors.New("email already exists")
	// ErrUsernameAlreadyExists is returned when registering with a taken
	// username.
	ErrUsernameAlreadyExists = errors.New("username already exists")
	// ErrInvalidCredentials covers both an unknown email and a password
	// mismatch so responses never reveal which one failed.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrEmailNotVerified is returned when credentials check out but the
	// user has not confirmed their email.
	ErrEmailNotVerified = errors.New("email not verified")
	// ErrUserNotFound is returned when a token references a user that no
	// longer resolves.
	ErrUserNotFound = errors.New("user not found")
	// ErrUnavailable is returned when a collaborator (store, mail relay)
	// times out or is unreachable.
	ErrUnavailable = errors.New("service unavailable")
)

// storeErr maps collaborator timeouts to ErrUnavailable so callers can tell
// an outage from a policy failure. Other errors pass through wrapped.
func storeErr(op string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w", op, ErrUnavailable)
	}
	return fmt.Errorf("%s: %w", op, err)
}
