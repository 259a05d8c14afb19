package search

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidQuery is returned when a query normalizes to nothing.
	ErrInvalidQuery = errors.New("invalid search query")
	// ErrSearchUnavailable is matched by every *UnavailableError.
	ErrSearchUnavailable = errors.New("search unavailable")
)

// UnavailableError reports that candidates could not be obtained. Err keeps
// the provider cause so callers can tell a rate limit from an outage.
type UnavailableError struct {
	Query string
	Err   error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("search %q unavailable: %v", e.Query, e.Err)
}

func (e *UnavailableError) Unwrap() []error {
	return []error{ErrSearchUnavailable, e.Err}
}
