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

// DefaultForecastURL is the Open-Meteo forecast endpoint.
const DefaultForecastURL = "https://api.open-meteo.com/v1/forecast"

const forecastFailed = "fetching weather failed"

// OpenMeteoForecaster implements weather.ForecastFetcher for Open-Meteo.
type OpenMeteoForecaster struct {
	name    string
	baseURL string
	httpCfg HTTPClientConfig
	circuit *gobreaker.CircuitBreaker
}

func NewOpenMeteoForecaster(httpCfg HTTPClientConfig, baseURL string) *OpenMeteoForecaster {
	if baseURL == "" {
		baseURL = DefaultForecastURL
	}
	return &OpenMeteoForecaster{
		name:    "openmeteo",
		baseURL: baseURL,
		httpCfg: httpCfg,
		circuit: newBreaker("openmeteo"),
	}
}

func (p *OpenMeteoForecaster) Name() string {
	return p.name
}

// Fetch requests the daily weather code and min/max temperature series.
func (p *OpenMeteoForecaster) Fetch(ctx context.Context, lat, lng float64, timezone string) (weather.ForecastSeries, error) {
	buildRequest := func(ctx context.Context) (*http.Request, error) {
		values := url.Values{}
		values.Set("latitude", formatCoord(lat))
		values.Set("longitude", formatCoord(lng))
		values.Set("timezone", timezone)
		values.Set("daily", "weathercode,temperature_2m_max,temperature_2m_min")

		u := fmt.Sprintf("%s?%s", p.baseURL, values.Encode())
		return http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	}

	resp, err := doRequestWithResilience(ctx, p.httpCfg, p.circuit, forecastFailed, buildRequest)
	if err != nil {
		return weather.ForecastSeries{}, err
	}
	defer resp.Body.Close()

	var payload struct {
		Daily struct {
			Time        []string  `json:"time"`
			WeatherCode []int     `json:"weathercode"`
			TempMax     []float64 `json:"temperature_2m_max"`
			TempMin     []float64 `json:"temperature_2m_min"`
		} `json:"daily"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		if ctx.Err() != nil {
			return weather.ForecastSeries{}, cancelled(ctx)
		}
		return weather.ForecastSeries{}, transportError(forecastFailed, err)
	}

	series := weather.ForecastSeries{
		Dates:    payload.Daily.Time,
		MinTemps: payload.Daily.TempMin,
		MaxTemps: payload.Daily.TempMax,
		Codes:    payload.Daily.WeatherCode,
	}
	if !series.Valid() {
		return weather.ForecastSeries{}, transportError(forecastFailed, fmt.Errorf("%w: %d dates, %d min, %d max, %d codes",
			weather.ErrMalformedForecast, len(series.Dates), len(series.MinTemps), len(series.MaxTemps), len(series.Codes)))
	}
	return series, nil
}
