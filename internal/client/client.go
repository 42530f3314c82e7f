package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/kjstillabower/weather-dashboard/internal/models"
	"github.com/kjstillabower/weather-dashboard/internal/observability"
)

// Geocoder resolves a city name to coordinates.
type Geocoder interface {
	Geocode(ctx context.Context, city string) (models.Coordinates, error)
}

// ForecastFetcher retrieves and normalizes the multi-day forecast for a position.
type ForecastFetcher interface {
	Forecast(ctx context.Context, coords models.Coordinates, city string) (models.ForecastTable, error)
}

var (
	ErrInvalidAPIKey       = errors.New("invalid API key")
	ErrCityNotFound        = errors.New("city not found")
	ErrForecastUnavailable = errors.New("forecast unavailable")
	ErrUpstreamFailure     = errors.New("upstream failure")
	ErrRateLimited         = errors.New("rate limited")
)

const (
	endpointGeocode  = "geocode"
	endpointForecast = "forecast"

	// maxBodyBytes caps response reads; a 5-day forecast is well under 100KB.
	maxBodyBytes = 4 << 20
)

// OpenWeatherClient talks to the OpenWeather geocoding and 5 day / 3 hour forecast endpoints.
// It implements both Geocoder and ForecastFetcher. No retries: the first response is authoritative.
type OpenWeatherClient struct {
	apiKey      string
	geocodeURL  string
	forecastURL string
	client      *http.Client
}

// NewOpenWeatherClient validates the key shape and returns a client whose every call is bounded by timeout.
func NewOpenWeatherClient(apiKey, geocodeURL, forecastURL string, timeout time.Duration) (*OpenWeatherClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("%w: API key is required", ErrInvalidAPIKey)
	}
	if len(apiKey) < 10 {
		return nil, fmt.Errorf("%w: API key appears invalid (too short)", ErrInvalidAPIKey)
	}
	if _, err := url.Parse(geocodeURL); err != nil {
		return nil, fmt.Errorf("invalid geocode URL: %w", err)
	}
	if _, err := url.Parse(forecastURL); err != nil {
		return nil, fmt.Errorf("invalid forecast URL: %w", err)
	}

	return &OpenWeatherClient{
		apiKey:      apiKey,
		geocodeURL:  geocodeURL,
		forecastURL: forecastURL,
		client: &http.Client{
			Timeout: timeout,
		},
	}, nil
}

// get issues one GET and returns the status code and body. Transport failures and
// 401/429/5xx statuses are returned as errors; other statuses are left to the caller's decoder.
func (c *OpenWeatherClient) get(ctx context.Context, endpoint, rawURL string, params url.Values) (int, []byte, error) {
	start := time.Now()

	req, err := c.buildRequest(ctx, rawURL, params)
	if err != nil {
		observability.UpstreamCallsTotal.WithLabelValues(endpoint, "error").Inc()
		return 0, nil, fmt.Errorf("build request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		duration := time.Since(start).Seconds()
		observability.UpstreamCallsTotal.WithLabelValues(endpoint, "error").Inc()
		observability.UpstreamDuration.WithLabelValues(endpoint, "error").Observe(duration)

		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return 0, nil, fmt.Errorf("%w: request timeout: %w", ErrUpstreamFailure, err)
		}
		return 0, nil, fmt.Errorf("%w: http request failed: %w", ErrUpstreamFailure, err)
	}
	defer resp.Body.Close()

	status := statusLabel(resp.StatusCode)
	observability.UpstreamCallsTotal.WithLabelValues(endpoint, status).Inc()
	observability.UpstreamDuration.WithLabelValues(endpoint, status).Observe(time.Since(start).Seconds())

	if err := handleErrorResponse(resp); err != nil {
		return resp.StatusCode, nil, err
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("%w: read response body: %w", ErrUpstreamFailure, err)
	}
	return resp.StatusCode, body, nil
}

func (c *OpenWeatherClient) buildRequest(ctx context.Context, rawURL string, params url.Values) (*http.Request, error) {
	baseURL, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid API URL: %w", err)
	}
	params.Set("appid", c.apiKey)
	baseURL.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	if corrID := CorrelationIDFromContext(ctx); corrID != "" {
		req.Header.Set("X-Correlation-ID", corrID)
	}
	return req, nil
}

func handleErrorResponse(resp *http.Response) error {
	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return fmt.Errorf("%w: HTTP 401", ErrInvalidAPIKey)
	case resp.StatusCode == http.StatusTooManyRequests:
		return fmt.Errorf("%w: HTTP 429", ErrRateLimited)
	case resp.StatusCode >= 500:
		return fmt.Errorf("%w: HTTP %d", ErrUpstreamFailure, resp.StatusCode)
	}
	return nil
}

// ValidateAPIKey issues a single geocode lookup and reports whether the key is accepted.
func (c *OpenWeatherClient) ValidateAPIKey(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	_, err := c.Geocode(ctx, "London")
	if errors.Is(err, ErrInvalidAPIKey) {
		return fmt.Errorf("%w: API key is invalid or not activated", ErrInvalidAPIKey)
	}
	if err != nil && !errors.Is(err, ErrCityNotFound) {
		return fmt.Errorf("validation request failed: %w", err)
	}
	return nil
}

type correlationIDKey struct{}

// WithCorrelationID returns a context whose outbound requests carry the X-Correlation-ID header.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationIDKey{}, id)
}

// CorrelationIDFromContext returns the ID set by WithCorrelationID, or "".
func CorrelationIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(correlationIDKey{}).(string); ok {
		return id
	}
	return ""
}

func statusLabel(statusCode int) string {
	if statusCode >= 200 && statusCode < 300 {
		return "success"
	}
	if statusCode == 429 {
		return "rate_limited"
	}
	if statusCode >= 400 && statusCode < 500 {
		return "client_error"
	}
	if statusCode >= 500 {
		return "server_error"
	}
	return "error"
}
