package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/kjstillabower/weather-dashboard/internal/models"
)

const (
	testAPIKey = "test-api-key-12345"

	lahoreGeocode  = `[{"name":"Lahore","country":"PK","lat":31.5,"lon":74.3}]`
	lahoreForecast = `{"cod":"200","message":0,"cnt":1,"list":[{"dt":1704067200,"dt_txt":"2024-01-01 00:00:00","main":{"temp":10.5,"humidity":60},"wind":{"speed":5.2},"weather":[{"icon":"01d","description":"clear sky"}]}]}`
)

// newUpstream starts a server answering /geo with geo and /forecast with forecast, and a client pointed at it.
func newUpstream(t *testing.T, geo, forecast http.HandlerFunc) *OpenWeatherClient {
	t.Helper()
	mux := http.NewServeMux()
	if geo != nil {
		mux.HandleFunc("/geo", geo)
	}
	if forecast != nil {
		mux.HandleFunc("/forecast", forecast)
	}
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	c, err := NewOpenWeatherClient(testAPIKey, server.URL+"/geo", server.URL+"/forecast", 2*time.Second)
	if err != nil {
		t.Fatalf("NewOpenWeatherClient() error = %v", err)
	}
	return c
}

func respond(status int, body string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}
}

func TestNewOpenWeatherClient_InvalidAPIKey(t *testing.T) {
	tests := []struct {
		name    string
		apiKey  string
		wantErr error
	}{
		{name: "empty API key", apiKey: "", wantErr: ErrInvalidAPIKey},
		{name: "too short API key", apiKey: "short", wantErr: ErrInvalidAPIKey},
		{name: "valid API key", apiKey: testAPIKey, wantErr: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, err := NewOpenWeatherClient(tt.apiKey, "https://api.test.com/geo", "https://api.test.com/forecast", 2*time.Second)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("NewOpenWeatherClient() error = %v, want %v", err, tt.wantErr)
				}
				if client != nil {
					t.Errorf("NewOpenWeatherClient() expected nil client on error")
				}
				return
			}
			if err != nil {
				t.Fatalf("NewOpenWeatherClient() unexpected error: %v", err)
			}
		})
	}
}

func TestOpenWeatherClient_Geocode_Success(t *testing.T) {
	c := newUpstream(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if r.Method != http.MethodGet {
			t.Errorf("expected GET, got %s", r.Method)
		}
		if got := q.Get("q"); got != "Lahore" {
			t.Errorf("q = %q, want trimmed %q", got, "Lahore")
		}
		if got := q.Get("limit"); got != "1" {
			t.Errorf("limit = %q, want 1", got)
		}
		if got := q.Get("appid"); got != testAPIKey {
			t.Errorf("appid = %q, want API key", got)
		}
		respond(http.StatusOK, lahoreGeocode)(w, r)
	}, nil)

	got, err := c.Geocode(context.Background(), "  Lahore ")
	if err != nil {
		t.Fatalf("Geocode() error = %v", err)
	}
	want := models.Coordinates{Lat: 31.5, Lon: 74.3}
	if got != want {
		t.Errorf("Geocode() = %+v, want %+v", got, want)
	}
}

// TestOpenWeatherClient_Geocode_NotFound verifies that every unusable payload resolves to ErrCityNotFound.
func TestOpenWeatherClient_Geocode_NotFound(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{"empty list", http.StatusOK, `[]`},
		{"null", http.StatusOK, `null`},
		{"non-list object", http.StatusOK, `{"lat":31.5,"lon":74.3}`},
		{"malformed json", http.StatusOK, `[{"lat":`},
		{"missing lat", http.StatusOK, `[{"name":"Nowhere","lon":74.3}]`},
		{"missing lon", http.StatusOK, `[{"name":"Nowhere","lat":31.5}]`},
		{"string coordinates", http.StatusOK, `[{"lat":"31.5","lon":"74.3"}]`},
		{"404 error object", http.StatusNotFound, `{"cod":"404","message":"not found"}`},
		{"400 error object", http.StatusBadRequest, `{"cod":"400","message":"Nothing to geocode"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newUpstream(t, respond(tt.status, tt.body), nil)
			_, err := c.Geocode(context.Background(), "Atlantis")
			if !errors.Is(err, ErrCityNotFound) {
				t.Fatalf("Geocode() error = %v, want ErrCityNotFound", err)
			}
		})
	}
}

func TestOpenWeatherClient_Geocode_TransportErrors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		wantErr error
	}{
		{"401 unauthorized", http.StatusUnauthorized, ErrInvalidAPIKey},
		{"429 rate limited", http.StatusTooManyRequests, ErrRateLimited},
		{"500 server error", http.StatusInternalServerError, ErrUpstreamFailure},
		{"503 unavailable", http.StatusServiceUnavailable, ErrUpstreamFailure},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newUpstream(t, respond(tt.status, `{"cod":0}`), nil)
			_, err := c.Geocode(context.Background(), "Lahore")
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Geocode() error = %v, want %v", err, tt.wantErr)
			}
			if errors.Is(err, ErrCityNotFound) {
				t.Errorf("Geocode() error = %v, must not be ErrCityNotFound", err)
			}
		})
	}
}

// TestOpenWeatherClient_Forecast_SingleSlice covers the one-slice Lahore scenario end to end.
func TestOpenWeatherClient_Forecast_SingleSlice(t *testing.T) {
	c := newUpstream(t, nil, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("lat") != "31.5" || q.Get("lon") != "74.3" {
			t.Errorf("lat/lon = %q/%q, want 31.5/74.3", q.Get("lat"), q.Get("lon"))
		}
		if q.Get("units") != "metric" {
			t.Errorf("units = %q, want metric", q.Get("units"))
		}
		if q.Get("appid") == "" {
			t.Error("expected API key in query")
		}
		respond(http.StatusOK, lahoreForecast)(w, r)
	})

	table, err := c.Forecast(context.Background(), models.Coordinates{Lat: 31.5, Lon: 74.3}, "Lahore")
	if err != nil {
		t.Fatalf("Forecast() error = %v", err)
	}
	if len(table) != 1 {
		t.Fatalf("len(table) = %d, want 1", len(table))
	}
	got := table[0]
	wantDate := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	if !got.Date.Equal(wantDate) {
		t.Errorf("Date = %v, want %v", got.Date, wantDate)
	}
	if got.Temp != 10.5 {
		t.Errorf("Temp = %v, want 10.5", got.Temp)
	}
	if got.Humidity != 60 {
		t.Errorf("Humidity = %v, want 60", got.Humidity)
	}
	if got.Wind != 5.2 {
		t.Errorf("Wind = %v, want 5.2", got.Wind)
	}
	if got.City != "Lahore" {
		t.Errorf("City = %q, want Lahore", got.City)
	}
	wantWeather := []models.WeatherCondition{{Icon: "01d", Description: "clear sky"}}
	if !reflect.DeepEqual(got.Weather, wantWeather) {
		t.Errorf("Weather = %+v, want %+v", got.Weather, wantWeather)
	}
}

// TestOpenWeatherClient_Forecast_PreservesOrder verifies K slices become K rows in upstream order.
func TestOpenWeatherClient_Forecast_PreservesOrder(t *testing.T) {
	// Deliberately not chronological: the fetcher must not re-sort.
	stamps := []string{"2024-01-01 06:00:00", "2024-01-01 03:00:00", "2024-01-01 09:00:00", "2024-01-01 00:00:00"}
	var slices []string
	for i, s := range stamps {
		slices = append(slices, fmt.Sprintf(`{"dt_txt":%q,"main":{"temp":%d.5,"humidity":%d},"wind":{"speed":%d.1},"weather":[]}`, s, i, 50+i, i))
	}
	body := `{"cod":"200","list":[` + strings.Join(slices, ",") + `]}`

	c := newUpstream(t, nil, respond(http.StatusOK, body))
	table, err := c.Forecast(context.Background(), models.Coordinates{}, " Karachi ")
	if err != nil {
		t.Fatalf("Forecast() error = %v", err)
	}
	if len(table) != len(stamps) {
		t.Fatalf("len(table) = %d, want %d", len(table), len(stamps))
	}
	for i, rec := range table {
		if got := rec.Date.Format(dtTxtLayout); got != stamps[i] {
			t.Errorf("row %d date = %s, want %s", i, got, stamps[i])
		}
		if rec.Temp != float64(i)+0.5 || rec.Humidity != float64(50+i) || rec.Wind != float64(i)+0.1 {
			t.Errorf("row %d = %+v, values do not match source slice", i, rec)
		}
		if rec.City != "Karachi" {
			t.Errorf("row %d city = %q, want trimmed Karachi", i, rec.City)
		}
	}
}

func TestOpenWeatherClient_Forecast_NumericStatusAccepted(t *testing.T) {
	body := `{"cod":200,"list":[{"dt_txt":"2024-01-01 00:00:00","main":{"temp":1,"humidity":2},"wind":{"speed":3}}]}`
	c := newUpstream(t, nil, respond(http.StatusOK, body))

	table, err := c.Forecast(context.Background(), models.Coordinates{}, "Multan")
	if err != nil {
		t.Fatalf("Forecast() error = %v", err)
	}
	if len(table) != 1 {
		t.Errorf("len(table) = %d, want 1", len(table))
	}
	if table[0].Weather != nil {
		t.Errorf("Weather = %+v, want nil for missing list", table[0].Weather)
	}
}

// TestOpenWeatherClient_Forecast_Unavailable verifies non-success markers and malformed payloads.
func TestOpenWeatherClient_Forecast_Unavailable(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{"string 404 marker", http.StatusOK, `{"cod":"404","message":"city not found"}`},
		{"numeric 401 marker", http.StatusOK, `{"cod":401,"message":"Invalid API key"}`},
		{"missing marker", http.StatusOK, `{"list":[]}`},
		{"400 with body", http.StatusBadRequest, `{"cod":"400","message":"wrong latitude"}`},
		{"malformed json", http.StatusOK, `{"cod":"200","list":[`},
		{"bad dt_txt", http.StatusOK, `{"cod":"200","list":[{"dt_txt":"yesterday","main":{"temp":1,"humidity":2},"wind":{"speed":3}}]}`},
		{"missing main", http.StatusOK, `{"cod":"200","list":[{"dt_txt":"2024-01-01 00:00:00","wind":{"speed":3}}]}`},
		{"missing wind", http.StatusOK, `{"cod":"200","list":[{"dt_txt":"2024-01-01 00:00:00","main":{"temp":1,"humidity":2}}]}`},
		{"empty main", http.StatusOK, `{"cod":"200","list":[{"dt_txt":"2024-01-01 00:00:00","main":{},"wind":{"speed":3}}]}`},
		{"missing humidity", http.StatusOK, `{"cod":"200","list":[{"dt_txt":"2024-01-01 00:00:00","main":{"temp":1},"wind":{"speed":3}}]}`},
		{"null temp", http.StatusOK, `{"cod":"200","list":[{"dt_txt":"2024-01-01 00:00:00","main":{"temp":null,"humidity":2},"wind":{"speed":3}}]}`},
		{"empty wind", http.StatusOK, `{"cod":"200","list":[{"dt_txt":"2024-01-01 00:00:00","main":{"temp":1,"humidity":2},"wind":{}}]}`},
		{"bad row after good row", http.StatusOK, `{"cod":"200","list":[{"dt_txt":"2024-01-01 00:00:00","main":{"temp":1,"humidity":2},"wind":{"speed":3}},{"dt_txt":"2024-01-01 03:00:00","main":{"humidity":2},"wind":{"speed":3}}]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newUpstream(t, nil, respond(tt.status, tt.body))
			table, err := c.Forecast(context.Background(), models.Coordinates{}, "Lahore")
			if !errors.Is(err, ErrForecastUnavailable) {
				t.Fatalf("Forecast() error = %v, want ErrForecastUnavailable", err)
			}
			if len(table) != 0 {
				t.Errorf("Forecast() returned %d rows on failure, want 0", len(table))
			}
		})
	}
}

func TestOpenWeatherClient_Forecast_Timeout(t *testing.T) {
	release := make(chan struct{})
	mux := http.NewServeMux()
	mux.HandleFunc("/forecast", func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	})
	server := httptest.NewServer(mux)
	defer server.Close()
	defer close(release)

	c, err := NewOpenWeatherClient(testAPIKey, server.URL+"/geo", server.URL+"/forecast", 50*time.Millisecond)
	if err != nil {
		t.Fatalf("NewOpenWeatherClient() error = %v", err)
	}

	_, err = c.Forecast(context.Background(), models.Coordinates{}, "Lahore")
	if !errors.Is(err, ErrUpstreamFailure) {
		t.Fatalf("Forecast() error = %v, want ErrUpstreamFailure", err)
	}
	if got := CategorizeError(err); got != ErrorCategoryTimeout {
		t.Errorf("CategorizeError() = %v, want %v", got, ErrorCategoryTimeout)
	}
}

func TestOpenWeatherClient_PropagatesCorrelationID(t *testing.T) {
	c := newUpstream(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("X-Correlation-ID"); got != "corr-123" {
			t.Errorf("X-Correlation-ID = %q, want corr-123", got)
		}
		respond(http.StatusOK, lahoreGeocode)(w, r)
	}, nil)

	ctx := WithCorrelationID(context.Background(), "corr-123")
	if _, err := c.Geocode(ctx, "Lahore"); err != nil {
		t.Fatalf("Geocode() error = %v", err)
	}
}

func TestOpenWeatherClient_ValidateAPIKey(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		wantErr error
	}{
		{"accepted", respond(http.StatusOK, lahoreGeocode), nil},
		{"accepted with empty result", respond(http.StatusOK, `[]`), nil},
		{"rejected", respond(http.StatusUnauthorized, `{"cod":401}`), ErrInvalidAPIKey},
		{"upstream down", respond(http.StatusBadGateway, ``), ErrUpstreamFailure},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newUpstream(t, tt.handler, nil)
			err := c.ValidateAPIKey(context.Background())
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("ValidateAPIKey() error = %v, want nil", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("ValidateAPIKey() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}
