package services

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation marks missing or malformed input.
	ErrValidation = errors.New("validation failed")
	// ErrNotFound marks an id that does not resolve.
	ErrNotFound = errors.New("not found")
	// ErrGeocode marks an address the geocoder could not resolve.
	ErrGeocode = errors.New("geocode failed")
	// ErrUpstream marks a distance, geocoding or mail provider failure.
	ErrUpstream = errors.New("upstream provider failed")
	// ErrDuplicateParticipation marks a second join by the same user.
	ErrDuplicateParticipation = errors.New("already participating")
	// ErrForbidden marks an operation by someone other than the owner.
	ErrForbidden = errors.New("forbidden")
	// ErrNoRecipients marks a broadcast with no resolvable participant emails.
	ErrNoRecipients = errors.New("no recipients")
	// ErrInvalidCredentials marks a failed login.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrEmailTaken marks a registration with an existing email.
	ErrEmailTaken = errors.New("email already registered")
)

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}
