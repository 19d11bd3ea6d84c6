package providers

import (
	"context"
	"fmt"

	"github.com/a-kowalenko/classy-weather/internal/weather"
	"golang.org/x/time/rate"
)

// RateLimitedReverseGeocoder wraps a ReverseGeocoder with rate limiting.
type RateLimitedReverseGeocoder struct {
	geocoder weather.ReverseGeocoder
	limiter  *rate.Limiter
}

// NewRateLimitedReverseGeocoder creates a new rate limited reverse geocoder.
// rps is the maximum requests per second allowed (can be fractional)
// burst is the maximum burst size allowed
func NewRateLimitedReverseGeocoder(geocoder weather.ReverseGeocoder, rps float64, burst int) *RateLimitedReverseGeocoder {
	return &RateLimitedReverseGeocoder{
		geocoder: geocoder,
		limiter:  rate.NewLimiter(rate.Limit(rps), burst),
	}
}

// Reverse waits for limiter permission and forwards to the wrapped geocoder.
func (r *RateLimitedReverseGeocoder) Reverse(ctx context.Context, lat, lng float64) (weather.Address, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		if ctx.Err() != nil {
			return weather.Address{}, cancelled(ctx)
		}
		return weather.Address{}, transportError(reverseFailed, fmt.Errorf("rate limit wait: %w", err))
	}
	return r.geocoder.Reverse(ctx, lat, lng)
}

var _ weather.ReverseGeocoder = (*RateLimitedReverseGeocoder)(nil)
