package store

import "errors"

// ErrNotFound is returned when no document matches the given id.
var ErrNotFound = errors.New("document not found")

// ErrAlreadyParticipant is returned by AddParticipant when the user is
// already on the roster.
var ErrAlreadyParticipant = errors.New("already participating")

// ErrDuplicateEmail is returned when a user with the same email exists.
var ErrDuplicateEmail = errors.New("email already registered")
