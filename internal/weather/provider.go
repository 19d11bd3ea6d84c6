package weather

import (
	"context"
)

// GeoResolver resolves a free-text place name to its best matching location.
type GeoResolver interface {
	Resolve(ctx context.Context, name string) (ResolvedLocation, error)
}

// ForecastFetcher fetches the daily forecast series for a coordinate.
type ForecastFetcher interface {
	Fetch(ctx context.Context, lat, lng float64, timezone string) (ForecastSeries, error)
}

// TimezoneInfo is the result of a timezone-by-coordinate lookup.
type TimezoneInfo struct {
	TimezoneID  string
	CountryCode string
}

// TimezoneLookup finds the timezone of a coordinate.
type TimezoneLookup interface {
	Timezone(ctx context.Context, lat, lng float64) (TimezoneInfo, error)
}

// Address is the subset of a reverse geocoding address we care about.
type Address struct {
	Town    string
	County  string
	City    string
	Village string
}

// ReverseGeocoder finds the address of a coordinate.
type ReverseGeocoder interface {
	Reverse(ctx context.Context, lat, lng float64) (Address, error)
}

// PositionSource yields the device position. Implementations return
// ErrPermissionDenied when the user refuses.
type PositionSource interface {
	CurrentPosition(ctx context.Context) (Coordinates, error)
}

// QueryStore is the key-value collaborator holding the last query.
// Get returns ok=false when nothing is stored under key.
type QueryStore interface {
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Set(ctx context.Context, key, value string) error
}

// StaticPosition is a position the browser has already reported.
type StaticPosition Coordinates

func (p StaticPosition) CurrentPosition(ctx context.Context) (Coordinates, error) {
	if err := ctx.Err(); err != nil {
		return Coordinates{}, ErrCancelled
	}
	return Coordinates(p), nil
}

// DeniedPosition is the outcome of a refused geolocation prompt.
type DeniedPosition struct{}

func (DeniedPosition) CurrentPosition(context.Context) (Coordinates, error) {
	return Coordinates{}, ErrPermissionDenied
}
