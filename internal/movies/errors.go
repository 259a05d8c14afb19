package movies

import "errors"

var (
	// ErrProviderUnavailable indicates the metadata provider is not configured,
	// unreachable, timed out, or answered with something unusable.
	ErrProviderUnavailable = errors.New("movie metadata provider unavailable")
	// ErrProviderRateLimited indicates the provider or the local request budget
	// refused the call.
	ErrProviderRateLimited = errors.New("movie metadata provider rate limited")
	// ErrEmptyQuery is returned before any outbound call is made.
	ErrEmptyQuery = errors.New("movie lookup query is empty")
)
