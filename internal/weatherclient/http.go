package weatherclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"net"
	"net/http"
	"strconv"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/weathersync/weathersync/internal/domain"
	"github.com/weathersync/weathersync/internal/metrics"
)

const (
	upstreamURL = "https://api.open-meteo.com/v1/forecast"

	maxAttempts    = 5
	baseDelay      = time.Second
	maxDelay       = 32 * time.Second
	requestTimeout = 10 * time.Second
)

// currentWeatherResponse mirrors the subset of Open-Meteo's response this
// client depends on. Any other field is ignored.
type currentWeatherResponse struct {
	CurrentWeather *struct {
		Temperature float64 `json:"temperature"`
		WeatherCode int     `json:"weathercode"`
		Time        int64   `json:"time"`
	} `json:"current_weather"`
}

// HTTPClient fetches live observations from Open-Meteo. Consecutive-failure
// circuit breaking is layered on top of, not instead of, the retry policy:
// the breaker only ever sees the outcome after retries are exhausted.
type HTTPClient struct {
	httpClient *http.Client
	cb         *gobreaker.CircuitBreaker[domain.Observation]
	baseURL    string
}

// NewHTTPClient builds an HTTPClient with a bounded, IPv4-forced, keep-alive
// transport sized to expected worker concurrency.
func NewHTTPClient(workerConcurrency int) *HTTPClient {
	if workerConcurrency <= 0 {
		workerConcurrency = 50
	}

	dialer := &net.Dialer{Timeout: 5 * time.Second, KeepAlive: 30 * time.Second}
	transport := &http.Transport{
		DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			// Force IPv4 to avoid IPv6 DNS stalls seen on some deployments.
			return dialer.DialContext(ctx, "tcp4", addr)
		},
		MaxIdleConns:        workerConcurrency,
		MaxIdleConnsPerHost: workerConcurrency,
		MaxConnsPerHost:     workerConcurrency,
		IdleConnTimeout:     90 * time.Second,
	}

	cb := gobreaker.NewCircuitBreaker[domain.Observation](gobreaker.Settings{
		Name:        "open-meteo",
		MaxRequests: 1,
		Interval:    0,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			metrics.CircuitBreakerState.Set(float64(to))
		},
	})

	return &HTTPClient{
		httpClient: &http.Client{Timeout: requestTimeout, Transport: transport},
		cb:         cb,
		baseURL:    upstreamURL,
	}
}

// Fetch implements Client. It retries transient failures internally and
// reports to the breaker only the final outcome of the whole attempt.
func (c *HTTPClient) Fetch(ctx context.Context, loc domain.Location) (domain.Observation, error) {
	return c.cb.Execute(func() (domain.Observation, error) {
		return c.fetchWithRetry(ctx, loc)
	})
}

func (c *HTTPClient) fetchWithRetry(ctx context.Context, loc domain.Location) (domain.Observation, error) {
	var lastErr error

	for attempt := 0; attempt < maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return domain.Observation{}, err
		}

		obs, retryAfter, err := c.doFetch(ctx, loc)
		if err == nil {
			return obs, nil
		}
		lastErr = err

		if !isRetryable(err) || attempt == maxAttempts-1 {
			break
		}

		delay := backoffDelay(attempt)
		if retryAfter >= 0 {
			delay = retryAfter
		}
		if err := sleep(ctx, delay); err != nil {
			return domain.Observation{}, err
		}
	}

	return domain.Observation{}, lastErr
}

// doFetch performs a single attempt, returning a non-negative retryAfter
// when the response carried a Retry-After header.
func (c *HTTPClient) doFetch(ctx context.Context, loc domain.Location) (domain.Observation, time.Duration, error) {
	url := fmt.Sprintf("%s?latitude=%g&longitude=%g&current_weather=true&timeformat=unixtime",
		c.baseURL, loc.Latitude, loc.Longitude)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return domain.Observation{}, -1, fmt.Errorf("weatherclient: build request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if isTimeout(err) {
			return domain.Observation{}, -1, fmt.Errorf("%w: %v", ErrUpstreamTimeout, err)
		}
		return domain.Observation{}, -1, fmt.Errorf("weatherclient: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return domain.Observation{}, retryAfterDuration(resp.Header.Get("Retry-After")), ErrThrottled
	}
	if resp.StatusCode >= 500 {
		return domain.Observation{}, retryAfterDuration(resp.Header.Get("Retry-After")), fmt.Errorf("%w: upstream status %d", errRetryableUpstream, resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return domain.Observation{}, -1, fmt.Errorf("weatherclient: upstream status %d", resp.StatusCode)
	}

	var body currentWeatherResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return domain.Observation{}, -1, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if body.CurrentWeather == nil {
		return domain.Observation{}, -1, fmt.Errorf("%w: missing current_weather", ErrMalformedPayload)
	}

	return domain.Observation{
		City:        loc.City,
		Latitude:    loc.Latitude,
		Longitude:   loc.Longitude,
		Temperature: body.CurrentWeather.Temperature,
		Condition:   conditionForCode(body.CurrentWeather.WeatherCode),
		RecordedAt:  time.Unix(body.CurrentWeather.Time, 0).UTC(),
	}, -1, nil
}

// errRetryableUpstream marks a 5xx response as eligible for retry without
// being a public sentinel callers classify against (only throttled, timeout,
// and generic failure are exposed for that purpose).
var errRetryableUpstream = errors.New("weatherclient: retryable upstream error")

// isTimeout reports whether err represents the overall request deadline or
// the caller's own context deadline expiring mid-request, as opposed to a
// connection-refused/DNS-class network error.
func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrThrottled) || errors.Is(err, errRetryableUpstream) || errors.Is(err, ErrUpstreamTimeout) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

// backoffDelay computes full-jitter exponential backoff capped at maxDelay,
// randomized across the full window rather than a fixed doubling sequence so
// concurrent retries from many workers don't synchronize into bursts against
// the upstream.
func backoffDelay(attempt int) time.Duration {
	capped := baseDelay << uint(attempt)
	if capped <= 0 || capped > maxDelay {
		capped = maxDelay
	}
	return time.Duration(rand.Int63n(int64(capped)))
}

// retryAfterDuration returns -1 when the header is absent or unparseable,
// meaning "no override, use computed backoff".
func retryAfterDuration(header string) time.Duration {
	if header == "" {
		return -1
	}
	if secs, err := strconv.Atoi(header); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second
	}
	return -1
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
