package providers

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"time"

	"github.com/a-kowalenko/classy-weather/internal/weather"
	"github.com/sony/gobreaker"
)

// BackoffConfig controls exponential backoff behaviour.
type BackoffConfig struct {
	MaxRetries      int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// HTTPClientConfig bundles HTTP client and resilience settings.
type HTTPClientConfig struct {
	Client  *http.Client
	Backoff BackoffConfig
}

// NewHTTPClientConfig returns a config with the default backoff curve and
// maxRetries transport-level retries.
func NewHTTPClientConfig(client *http.Client, maxRetries int) HTTPClientConfig {
	return HTTPClientConfig{
		Client: client,
		Backoff: BackoffConfig{
			MaxRetries:      maxRetries,
			InitialInterval: 500 * time.Millisecond,
			MaxInterval:     5 * time.Second,
		},
	}
}

var (
	errRateLimited   = errors.New("rate limited")
	errServerError   = errors.New("server error")
	errUnexpected    = errors.New("unexpected status code")
	errCircuitOpen   = errors.New("circuit breaker open")
	errNoHTTPClient  = errors.New("http client not configured")
	errInvalidConfig = errors.New("invalid backoff configuration")
)

// statusError carries the upstream status through the circuit breaker.
type statusError struct {
	code int
	kind error
}

func (e *statusError) Error() string {
	return fmt.Sprintf("%v: %d", e.kind, e.code)
}

func (e *statusError) Unwrap() error {
	return e.kind
}

// newBreaker builds the per-upstream circuit breaker. Cancelled requests do
// not count as failures.
func newBreaker(name string) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 5,
		Interval:    1 * time.Minute,
		Timeout:     2 * time.Minute,
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
	})
}

// doRequestWithResilience executes the HTTP request with retries, exponential backoff,
// and a circuit breaker. Failures come back as *weather.TransportError carrying
// failMsg; cancellation comes back as weather.ErrCancelled.
func doRequestWithResilience(
	ctx context.Context,
	cfg HTTPClientConfig,
	cb *gobreaker.CircuitBreaker,
	failMsg string,
	buildRequest func(ctx context.Context) (*http.Request, error),
) (*http.Response, error) {
	if cfg.Client == nil {
		return nil, transportError(failMsg, errNoHTTPClient)
	}
	if cfg.Backoff.MaxRetries < 0 || (cfg.Backoff.MaxRetries > 0 && cfg.Backoff.InitialInterval <= 0) {
		return nil, transportError(failMsg, errInvalidConfig)
	}

	var attempt int

	for {
		if ctx.Err() != nil {
			return nil, cancelled(ctx)
		}

		req, err := buildRequest(ctx)
		if err != nil {
			return nil, transportError(failMsg, err)
		}

		result, err := cb.Execute(func() (interface{}, error) {
			resp, execErr := cfg.Client.Do(req)
			if execErr != nil {
				return nil, execErr
			}

			// Handle rate limiting and server errors explicitly.
			switch {
			case resp.StatusCode == http.StatusTooManyRequests:
				resp.Body.Close()
				return nil, &statusError{code: resp.StatusCode, kind: errRateLimited}
			case resp.StatusCode >= 500:
				resp.Body.Close()
				return nil, &statusError{code: resp.StatusCode, kind: errServerError}
			case resp.StatusCode < 200 || resp.StatusCode >= 300:
				resp.Body.Close()
				return nil, &statusError{code: resp.StatusCode, kind: errUnexpected}
			}

			return resp, nil
		})

		if err == nil {
			resp, ok := result.(*http.Response)
			if !ok {
				return nil, transportError(failMsg, fmt.Errorf("unexpected result type from circuit breaker"))
			}
			return resp, nil
		}

		// A response racing the abort is still a cancellation.
		if ctx.Err() != nil {
			return nil, cancelled(ctx)
		}

		// If circuit is open, propagate immediately.
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, transportError(failMsg, fmt.Errorf("%w: %v", errCircuitOpen, err))
		}

		if attempt >= cfg.Backoff.MaxRetries || !retryable(err) {
			return nil, transportError(failMsg, err)
		}

		// Backoff with exponential delay.
		delay := cfg.Backoff.InitialInterval * time.Duration(math.Pow(2, float64(attempt)))
		if delay > cfg.Backoff.MaxInterval && cfg.Backoff.MaxInterval > 0 {
			delay = cfg.Backoff.MaxInterval
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, cancelled(ctx)
		case <-timer.C:
		}

		attempt++
	}
}

// retryable is true for network errors, 429 and 5xx.
func retryable(err error) bool {
	var se *statusError
	if errors.As(err, &se) {
		return !errors.Is(se, errUnexpected)
	}
	return true
}

func transportError(msg string, err error) *weather.TransportError {
	te := &weather.TransportError{Message: msg, Err: err}
	var se *statusError
	if errors.As(err, &se) {
		te.StatusCode = se.code
	}
	return te
}

func cancelled(ctx context.Context) error {
	return fmt.Errorf("%w: %v", weather.ErrCancelled, ctx.Err())
}

func formatCoord(f float64) string {
	return fmt.Sprintf("%.4f", f)
}
