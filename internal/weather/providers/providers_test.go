package providers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/a-kowalenko/classy-weather/internal/weather"
)

func testHTTPConfig(retries int) HTTPClientConfig {
	cfg := NewHTTPClientConfig(&http.Client{Timeout: 5 * time.Second}, retries)
	cfg.Backoff.InitialInterval = time.Millisecond
	cfg.Backoff.MaxInterval = 5 * time.Millisecond
	return cfg
}

func jsonServer(t *testing.T, status int, body string, check func(r *http.Request)) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if check != nil {
			check(r)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func expectTransportError(t *testing.T, err error, msg string) *weather.TransportError {
	t.Helper()
	var te *weather.TransportError
	if !errors.As(err, &te) {
		t.Fatalf("expected *weather.TransportError, got %T: %v", err, err)
	}
	if te.Message != msg {
		t.Fatalf("expected message %q, got %q", msg, te.Message)
	}
	return te
}

func TestGeocodingFirstResult(t *testing.T) {
	srv := jsonServer(t, http.StatusOK, `{"results":[
		{"name":"Paris","latitude":48.8566,"longitude":2.3522,"timezone":"Europe/Paris","country_code":"FR"},
		{"name":"Paris","latitude":33.66,"longitude":-95.55,"timezone":"America/Chicago","country_code":"US"}
	]}`, func(r *http.Request) {
		if got := r.URL.Query().Get("name"); got != "Paris" {
			t.Errorf("unexpected name parameter %q", got)
		}
	})

	c := NewGeocodingClient(testHTTPConfig(0), srv.URL)
	loc, err := c.Resolve(context.Background(), "Paris")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if loc.Latitude != 48.8566 || loc.Longitude != 2.3522 || loc.Timezone != "Europe/Paris" || loc.CountryCode != "FR" {
		t.Fatalf("unexpected location %+v", loc)
	}
	if loc.DisplayName != "Paris 🇫🇷" {
		t.Fatalf("unexpected display name %q", loc.DisplayName)
	}
}

func TestGeocodingNotFound(t *testing.T) {
	for _, body := range []string{`{}`, `{"results":[]}`, `{"generationtime_ms":0.5}`} {
		srv := jsonServer(t, http.StatusOK, body, nil)
		c := NewGeocodingClient(testHTTPConfig(0), srv.URL)

		_, err := c.Resolve(context.Background(), "Atlantis")
		if !errors.Is(err, weather.ErrLocationNotFound) {
			t.Fatalf("body %s: expected not found, got %v", body, err)
		}
	}
}

func TestGeocodingFailedStatus(t *testing.T) {
	srv := jsonServer(t, http.StatusBadRequest, `{"error":true}`, nil)
	c := NewGeocodingClient(testHTTPConfig(0), srv.URL)

	_, err := c.Resolve(context.Background(), "Paris")
	te := expectTransportError(t, err, "fetching geolocation failed")
	if te.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", te.StatusCode)
	}
}

func TestGeocodingCancelled(t *testing.T) {
	entered := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		close(entered)
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-entered
		cancel()
	}()

	c := NewGeocodingClient(testHTTPConfig(0), srv.URL)
	_, err := c.Resolve(ctx, "Paris")
	if !weather.IsCancelled(err) {
		t.Fatalf("expected cancellation, got %v", err)
	}
	var te *weather.TransportError
	if errors.As(err, &te) {
		t.Fatal("cancellation must not be a transport error")
	}
}

func TestForecastSeries(t *testing.T) {
	srv := jsonServer(t, http.StatusOK, `{"daily":{
		"time":["2024-01-01","2024-01-02"],
		"weathercode":[0,3],
		"temperature_2m_max":[10.4,8.1],
		"temperature_2m_min":[2.2,-1.9]
	}}`, func(r *http.Request) {
		q := r.URL.Query()
		if q.Get("latitude") != "48.8566" || q.Get("longitude") != "2.3522" {
			t.Errorf("unexpected coordinates %s,%s", q.Get("latitude"), q.Get("longitude"))
		}
		if q.Get("timezone") != "Europe/Paris" {
			t.Errorf("unexpected timezone %q", q.Get("timezone"))
		}
		if q.Get("daily") != "weathercode,temperature_2m_max,temperature_2m_min" {
			t.Errorf("unexpected daily variables %q", q.Get("daily"))
		}
	})

	p := NewOpenMeteoForecaster(testHTTPConfig(0), srv.URL)
	series, err := p.Fetch(context.Background(), 48.8566, 2.3522, "Europe/Paris")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if series.Len() != 2 || series.Dates[0] != "2024-01-01" || series.Codes[1] != 3 ||
		series.MaxTemps[0] != 10.4 || series.MinTemps[1] != -1.9 {
		t.Fatalf("unexpected series %+v", series)
	}
}

func TestForecastMalformed(t *testing.T) {
	srv := jsonServer(t, http.StatusOK, `{"daily":{
		"time":["2024-01-01","2024-01-02"],
		"weathercode":[0],
		"temperature_2m_max":[10.4,8.1],
		"temperature_2m_min":[2.2,-1.9]
	}}`, nil)

	p := NewOpenMeteoForecaster(testHTTPConfig(0), srv.URL)
	_, err := p.Fetch(context.Background(), 1, 2, "UTC")
	expectTransportError(t, err, "fetching weather failed")
	if !errors.Is(err, weather.ErrMalformedForecast) {
		t.Fatalf("expected malformed forecast cause, got %v", err)
	}
}

func TestForecastFailedStatusRetries(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	p := NewOpenMeteoForecaster(testHTTPConfig(2), srv.URL)
	_, err := p.Fetch(context.Background(), 1, 2, "UTC")
	te := expectTransportError(t, err, "fetching weather failed")
	if te.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("expected status 503, got %d", te.StatusCode)
	}
	if got := hits.Load(); got != 3 {
		t.Fatalf("expected 3 attempts, got %d", got)
	}
}

func TestClientErrorsAreNotRetried(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	p := NewOpenMeteoForecaster(testHTTPConfig(3), srv.URL)
	_, err := p.Fetch(context.Background(), 1, 2, "UTC")
	expectTransportError(t, err, "fetching weather failed")
	if got := hits.Load(); got != 1 {
		t.Fatalf("expected a single attempt, got %d", got)
	}
}

func TestGeoNamesTimezone(t *testing.T) {
	srv := jsonServer(t, http.StatusOK, `{"timezoneId":"Europe/Berlin","countryCode":"DE","countryName":"Germany"}`,
		func(r *http.Request) {
			q := r.URL.Query()
			if q.Get("lat") != "52.5200" || q.Get("lng") != "13.4050" || q.Get("username") != "demo" {
				t.Errorf("unexpected query %s", r.URL.RawQuery)
			}
		})

	c := NewGeoNamesClient(testHTTPConfig(0), srv.URL, "demo")
	tz, err := c.Timezone(context.Background(), 52.52, 13.405)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tz.TimezoneID != "Europe/Berlin" || tz.CountryCode != "DE" {
		t.Fatalf("unexpected timezone %+v", tz)
	}
}

func TestGeoNamesStatusPayload(t *testing.T) {
	srv := jsonServer(t, http.StatusOK, `{"status":{"message":"user does not exist.","value":10}}`, nil)

	c := NewGeoNamesClient(testHTTPConfig(0), srv.URL, "nobody")
	_, err := c.Timezone(context.Background(), 1, 2)
	expectTransportError(t, err, "fetching timezone failed")
}

func TestNominatimReverse(t *testing.T) {
	srv := jsonServer(t, http.StatusOK, `{"address":{"county":"Landkreis Havelland","state":"Brandenburg"}}`,
		func(r *http.Request) {
			if r.URL.Path != "/reverse" {
				t.Errorf("unexpected path %s", r.URL.Path)
			}
			if r.Header.Get("User-Agent") != "classy-weather-test" {
				t.Errorf("missing user agent, got %q", r.Header.Get("User-Agent"))
			}
			if r.URL.Query().Get("lon") != "12.9000" {
				t.Errorf("unexpected lon %q", r.URL.Query().Get("lon"))
			}
		})

	c := NewNominatimClient(&http.Client{Timeout: 5 * time.Second}, srv.URL, "classy-weather-test")
	addr, err := c.Reverse(context.Background(), 52.6, 12.9)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if addr.County != "Landkreis Havelland" || addr.Town != "" {
		t.Fatalf("unexpected address %+v", addr)
	}
}

func TestNominatimFailures(t *testing.T) {
	t.Run("status", func(t *testing.T) {
		srv := jsonServer(t, http.StatusForbidden, `{}`, nil)
		c := NewNominatimClient(nil, srv.URL, "test")
		_, err := c.Reverse(context.Background(), 1, 2)
		te := expectTransportError(t, err, "fetching place name failed")
		if te.StatusCode != http.StatusForbidden {
			t.Fatalf("expected 403, got %d", te.StatusCode)
		}
	})

	t.Run("error payload", func(t *testing.T) {
		srv := jsonServer(t, http.StatusOK, `{"error":"Unable to geocode"}`, nil)
		c := NewNominatimClient(nil, srv.URL, "test")
		_, err := c.Reverse(context.Background(), 0, -30)
		expectTransportError(t, err, "fetching place name failed")
	})

	t.Run("cancelled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		c := NewNominatimClient(nil, "http://127.0.0.1:1", "test")
		_, err := c.Reverse(ctx, 1, 2)
		if !weather.IsCancelled(err) {
			t.Fatalf("expected cancellation, got %v", err)
		}
	})
}

type countingGeo struct {
	calls atomic.Int32
	err   error
}

func (g *countingGeo) Resolve(context.Context, string) (weather.ResolvedLocation, error) {
	g.calls.Add(1)
	if g.err != nil {
		return weather.ResolvedLocation{}, g.err
	}
	return weather.NewSearchLocation("Paris", 48.8566, 2.3522, "Europe/Paris", "FR"), nil
}

func TestCachedGeoResolver(t *testing.T) {
	inner := &countingGeo{}
	c := NewCachedGeoResolver(inner, time.Minute)

	for _, name := range []string{"Paris", " paris ", "PARIS"} {
		loc, err := c.Resolve(context.Background(), name)
		if err != nil || loc.Timezone != "Europe/Paris" {
			t.Fatalf("unexpected result %+v, %v", loc, err)
		}
	}
	if got := inner.calls.Load(); got != 1 {
		t.Fatalf("expected one upstream call, got %d", got)
	}
	if hits, misses := c.CacheStats(); hits != 2 || misses != 1 {
		t.Fatalf("unexpected stats hits=%d misses=%d", hits, misses)
	}
}

func TestCachedGeoResolverSkipsFailures(t *testing.T) {
	inner := &countingGeo{err: weather.ErrLocationNotFound}
	c := NewCachedGeoResolver(inner, time.Minute)

	for i := 0; i < 2; i++ {
		if _, err := c.Resolve(context.Background(), "Atlantis"); !errors.Is(err, weather.ErrLocationNotFound) {
			t.Fatalf("unexpected error %v", err)
		}
	}
	if got := inner.calls.Load(); got != 2 {
		t.Fatalf("failures must not be cached, got %d upstream calls", got)
	}
}

type stubPlaces struct{ calls atomic.Int32 }

func (s *stubPlaces) Reverse(context.Context, float64, float64) (weather.Address, error) {
	s.calls.Add(1)
	return weather.Address{Town: "Potsdam"}, nil
}

func TestRateLimitedReverseGeocoderHonorsCancellation(t *testing.T) {
	inner := &stubPlaces{}
	r := NewRateLimitedReverseGeocoder(inner, 0.001, 1)

	if _, err := r.Reverse(context.Background(), 1, 2); err != nil {
		t.Fatalf("first call should use the burst: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	_, err := r.Reverse(ctx, 1, 2)
	if err == nil {
		t.Fatal("expected the second call to be limited")
	}
	if inner.calls.Load() != 1 {
		t.Fatal("limited call must not reach the upstream")
	}
}
