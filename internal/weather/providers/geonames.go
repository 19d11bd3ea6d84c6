package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/a-kowalenko/classy-weather/internal/weather"
	"github.com/sony/gobreaker"
)

// DefaultGeoNamesURL is the GeoNames timezone-by-coordinate endpoint.
const DefaultGeoNamesURL = "http://api.geonames.org/timezoneJSON"

const timezoneFailed = "fetching timezone failed"

// GeoNamesClient implements weather.TimezoneLookup.
type GeoNamesClient struct {
	baseURL  string
	username string
	httpCfg  HTTPClientConfig
	circuit  *gobreaker.CircuitBreaker
}

func NewGeoNamesClient(httpCfg HTTPClientConfig, baseURL, username string) *GeoNamesClient {
	if baseURL == "" {
		baseURL = DefaultGeoNamesURL
	}
	return &GeoNamesClient{
		baseURL:  baseURL,
		username: username,
		httpCfg:  httpCfg,
		circuit:  newBreaker("geonames"),
	}
}

// Timezone looks up the IANA timezone and country of a coordinate.
func (c *GeoNamesClient) Timezone(ctx context.Context, lat, lng float64) (weather.TimezoneInfo, error) {
	buildRequest := func(ctx context.Context) (*http.Request, error) {
		values := url.Values{}
		values.Set("lat", formatCoord(lat))
		values.Set("lng", formatCoord(lng))
		values.Set("username", c.username)

		u := fmt.Sprintf("%s?%s", c.baseURL, values.Encode())
		return http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	}

	resp, err := doRequestWithResilience(ctx, c.httpCfg, c.circuit, timezoneFailed, buildRequest)
	if err != nil {
		return weather.TimezoneInfo{}, err
	}
	defer resp.Body.Close()

	// GeoNames reports account and quota problems with a 200 and a status object.
	var payload struct {
		TimezoneID  string `json:"timezoneId"`
		CountryCode string `json:"countryCode"`
		Status      *struct {
			Message string `json:"message"`
			Value   int    `json:"value"`
		} `json:"status"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		if ctx.Err() != nil {
			return weather.TimezoneInfo{}, cancelled(ctx)
		}
		return weather.TimezoneInfo{}, transportError(timezoneFailed, err)
	}
	if payload.Status != nil {
		return weather.TimezoneInfo{}, transportError(timezoneFailed,
			fmt.Errorf("geonames status %d: %s", payload.Status.Value, payload.Status.Message))
	}
	if payload.TimezoneID == "" {
		return weather.TimezoneInfo{}, transportError(timezoneFailed, errors.New("geonames returned no timezone"))
	}

	return weather.TimezoneInfo{
		TimezoneID:  payload.TimezoneID,
		CountryCode: payload.CountryCode,
	}, nil
}
