package providers

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"

	"github.com/a-kowalenko/classy-weather/internal/weather"
	"github.com/go-resty/resty/v2"
	"github.com/sony/gobreaker"
)

// DefaultNominatimURL is the OpenStreetMap Nominatim base URL.
const DefaultNominatimURL = "https://nominatim.openstreetmap.org"

const reverseFailed = "fetching place name failed"

// NominatimClient implements weather.ReverseGeocoder. Nominatim rejects
// requests without an identifying User-Agent.
type NominatimClient struct {
	client  *resty.Client
	circuit *gobreaker.CircuitBreaker
}

func NewNominatimClient(httpClient *http.Client, baseURL, userAgent string) *NominatimClient {
	if baseURL == "" {
		baseURL = DefaultNominatimURL
	}
	if httpClient == nil {
		httpClient = &http.Client{}
	}

	client := resty.NewWithClient(httpClient).
		SetBaseURL(baseURL).
		SetHeader("User-Agent", userAgent).
		SetHeader("Accept", "application/json")

	client.OnAfterResponse(func(c *resty.Client, resp *resty.Response) error {
		log.Printf("DEBUG: nominatim %s %s -> %d in %s",
			resp.Request.Method, resp.Request.URL, resp.StatusCode(), resp.Time())
		return nil
	})

	return &NominatimClient{
		client:  client,
		circuit: newBreaker("nominatim"),
	}
}

type nominatimReverse struct {
	Error   string `json:"error"`
	Address struct {
		Town    string `json:"town"`
		County  string `json:"county"`
		City    string `json:"city"`
		Village string `json:"village"`
	} `json:"address"`
}

// Reverse looks up the address of a coordinate.
func (c *NominatimClient) Reverse(ctx context.Context, lat, lng float64) (weather.Address, error) {
	if ctx.Err() != nil {
		return weather.Address{}, cancelled(ctx)
	}

	var payload nominatimReverse
	_, err := c.circuit.Execute(func() (interface{}, error) {
		resp, err := c.client.R().
			SetContext(ctx).
			SetQueryParams(map[string]string{
				"format": "jsonv2",
				"lat":    formatCoord(lat),
				"lon":    formatCoord(lng),
			}).
			SetResult(&payload).
			Get("/reverse")
		if err != nil {
			return nil, err
		}
		if resp.IsError() {
			return nil, &statusError{code: resp.StatusCode(), kind: errUnexpected}
		}
		return resp, nil
	})

	if err != nil {
		if ctx.Err() != nil {
			return weather.Address{}, cancelled(ctx)
		}
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			err = fmt.Errorf("%w: %v", errCircuitOpen, err)
		}
		return weather.Address{}, transportError(reverseFailed, err)
	}
	if payload.Error != "" {
		return weather.Address{}, transportError(reverseFailed, fmt.Errorf("nominatim: %s", payload.Error))
	}

	return weather.Address{
		Town:    payload.Address.Town,
		County:  payload.Address.County,
		City:    payload.Address.City,
		Village: payload.Address.Village,
	}, nil
}
