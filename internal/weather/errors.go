package weather

import (
	"context"
	"errors"
)

var (
	// ErrLocationNotFound is returned when geocoding yields no match.
	ErrLocationNotFound = errors.New("Location not found")

	// ErrPermissionDenied is returned when the user refuses to share their position.
	ErrPermissionDenied = errors.New("geolocation permission denied")

	// ErrCancelled marks a request abandoned because its chain was superseded.
	// It is never shown to the user.
	ErrCancelled = errors.New("request cancelled")

	// ErrMalformedForecast is returned when the daily sequences do not line up.
	ErrMalformedForecast = errors.New("malformed forecast series")
)

// TransportError is a failed upstream call. Message is user facing; the
// wrapped error and status code are kept for logs.
type TransportError struct {
	Message    string
	StatusCode int
	Err        error
}

func (e *TransportError) Error() string {
	return e.Message
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// IsCancelled reports whether err stems from cancellation rather than failure.
func IsCancelled(err error) bool {
	return errors.Is(err, ErrCancelled) || errors.Is(err, context.Canceled)
}
