package repositories

import "errors"

var (
	// ErrNotFound indicates the requested record does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrUnknownUser is returned when a write references a user that was never
	// created. Users are never created implicitly by favorite or history writes.
	ErrUnknownUser = errors.New("unknown user")
)
