package weather

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// PositionResolver turns device coordinates into a ResolvedLocation using a
// timezone lookup followed by a reverse geocode.
type PositionResolver struct {
	timezones TimezoneLookup
	places    ReverseGeocoder
}

// NewPositionResolver creates a new PositionResolver.
func NewPositionResolver(timezones TimezoneLookup, places ReverseGeocoder) *PositionResolver {
	return &PositionResolver{
		timezones: timezones,
		places:    places,
	}
}

// ResolveFromCoordinates runs both lookups in order. Either failing fails the
// whole resolution with a lookup-specific TransportError.
func (r *PositionResolver) ResolveFromCoordinates(ctx context.Context, lat, lng float64) (ResolvedLocation, error) {
	tz, err := r.timezones.Timezone(ctx, lat, lng)
	if err != nil {
		return ResolvedLocation{}, lookupError("fetching timezone failed", err)
	}

	addr, err := r.places.Reverse(ctx, lat, lng)
	if err != nil {
		return ResolvedLocation{}, lookupError("fetching place name failed", err)
	}

	return ResolvedLocation{
		Latitude:    lat,
		Longitude:   lng,
		Timezone:    tz.TimezoneID,
		DisplayName: displayName(addr.placeName(), tz.CountryCode),
		CountryCode: strings.ToUpper(tz.CountryCode),
	}, nil
}

// placeName prefers the town, then the county.
func (a Address) placeName() string {
	for _, name := range []string{a.Town, a.County, a.City, a.Village} {
		if name != "" {
			return name
		}
	}
	return ""
}

func lookupError(msg string, err error) error {
	if IsCancelled(err) {
		return err
	}
	var te *TransportError
	if errors.As(err, &te) && te.Message == msg {
		return err
	}
	return &TransportError{Message: msg, Err: fmt.Errorf("position lookup: %w", err)}
}
