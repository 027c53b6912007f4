package airquality

import "errors"

var (
	// ErrFetchFailure covers network errors, timeouts and malformed payloads
	// from a station endpoint.
	ErrFetchFailure = errors.New("station fetch failed")

	// ErrStorageContention is returned when the store is busy or locked.
	ErrStorageContention = errors.New("storage contention")

	// ErrStorageUnavailable is returned when the store cannot be reached.
	ErrStorageUnavailable = errors.New("storage unavailable")

	// ErrUpstreamUnavailable is returned by satellite and weather collaborators.
	ErrUpstreamUnavailable = errors.New("upstream unavailable")

	// ErrNotConfigured is returned by optional collaborators without credentials.
	ErrNotConfigured = errors.New("collaborator not configured")
)
