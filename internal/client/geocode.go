package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/kjstillabower/weather-dashboard/internal/models"
	"github.com/kjstillabower/weather-dashboard/internal/observability"
)

// geocodeResult is one entry of the direct geocoding response. Pointers distinguish missing from zero.
type geocodeResult struct {
	Name    string   `json:"name"`
	Country string   `json:"country"`
	Lat     *float64 `json:"lat"`
	Lon     *float64 `json:"lon"`
}

// Geocode resolves city (trimmed) with limit=1. An empty list, a non-list, a malformed payload
// or an entry without lat/lon all resolve to ErrCityNotFound. Coordinate ranges are not checked.
func (c *OpenWeatherClient) Geocode(ctx context.Context, city string) (models.Coordinates, error) {
	city = strings.TrimSpace(city)

	params := url.Values{}
	params.Set("q", city)
	params.Set("limit", "1")

	_, body, err := c.get(ctx, endpointGeocode, c.geocodeURL, params)
	if err != nil {
		observability.UpstreamErrorsTotal.WithLabelValues(endpointGeocode, string(CategorizeError(err))).Inc()
		return models.Coordinates{}, fmt.Errorf("geocode %q: %w", city, err)
	}

	coords, err := decodeGeocode(body)
	if err != nil {
		observability.UpstreamErrorsTotal.WithLabelValues(endpointGeocode, string(ErrorCategoryCityNotFound)).Inc()
		return models.Coordinates{}, fmt.Errorf("geocode %q: %w", city, err)
	}
	return coords, nil
}

func decodeGeocode(body []byte) (models.Coordinates, error) {
	var results []geocodeResult
	if err := json.Unmarshal(body, &results); err != nil {
		return models.Coordinates{}, fmt.Errorf("%w: unexpected payload: %v", ErrCityNotFound, err)
	}
	if len(results) == 0 {
		return models.Coordinates{}, fmt.Errorf("%w: no results", ErrCityNotFound)
	}
	first := results[0]
	if first.Lat == nil || first.Lon == nil {
		return models.Coordinates{}, fmt.Errorf("%w: result has no coordinates", ErrCityNotFound)
	}
	return models.Coordinates{Lat: *first.Lat, Lon: *first.Lon}, nil
}
