package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/a-kowalenko/classy-weather/internal/weather"
	"github.com/sony/gobreaker"
)

// DefaultGeocodingURL is the Open-Meteo geocoding search endpoint.
const DefaultGeocodingURL = "https://geocoding-api.open-meteo.com/v1/search"

const geocodingFailed = "fetching geolocation failed"

// GeocodingClient implements weather.GeoResolver with the Open-Meteo geocoding API.
type GeocodingClient struct {
	baseURL string
	httpCfg HTTPClientConfig
	circuit *gobreaker.CircuitBreaker
}

func NewGeocodingClient(httpCfg HTTPClientConfig, baseURL string) *GeocodingClient {
	if baseURL == "" {
		baseURL = DefaultGeocodingURL
	}
	return &GeocodingClient{
		baseURL: baseURL,
		httpCfg: httpCfg,
		circuit: newBreaker("geocoding"),
	}
}

// Resolve returns the first result in provider order.
func (c *GeocodingClient) Resolve(ctx context.Context, name string) (weather.ResolvedLocation, error) {
	buildRequest := func(ctx context.Context) (*http.Request, error) {
		values := url.Values{}
		values.Set("name", name)
		values.Set("count", "1")
		values.Set("language", "en")
		values.Set("format", "json")

		u := fmt.Sprintf("%s?%s", c.baseURL, values.Encode())
		return http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	}

	resp, err := doRequestWithResilience(ctx, c.httpCfg, c.circuit, geocodingFailed, buildRequest)
	if err != nil {
		return weather.ResolvedLocation{}, err
	}
	defer resp.Body.Close()

	var payload struct {
		Results []struct {
			Name        string  `json:"name"`
			Latitude    float64 `json:"latitude"`
			Longitude   float64 `json:"longitude"`
			Timezone    string  `json:"timezone"`
			CountryCode string  `json:"country_code"`
		} `json:"results"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		if ctx.Err() != nil {
			return weather.ResolvedLocation{}, cancelled(ctx)
		}
		return weather.ResolvedLocation{}, transportError(geocodingFailed, err)
	}

	if len(payload.Results) == 0 {
		return weather.ResolvedLocation{}, weather.ErrLocationNotFound
	}

	first := payload.Results[0]
	return weather.NewSearchLocation(first.Name, first.Latitude, first.Longitude, first.Timezone, first.CountryCode), nil
}
