package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/kjstillabower/weather-dashboard/internal/models"
	"github.com/kjstillabower/weather-dashboard/internal/observability"
)

const (
	// statusOK is the success marker carried in the forecast payload's "cod" field.
	statusOK = "200"

	dtTxtLayout = "2006-01-02 15:04:05"
)

// statusMarker decodes "cod", which OpenWeather sends as a string on success and sometimes as a number on error.
type statusMarker string

func (s *statusMarker) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		var str string
		if err := json.Unmarshal(b, &str); err != nil {
			return err
		}
		*s = statusMarker(str)
		return nil
	}
	*s = statusMarker(b)
	return nil
}

type forecastResponse struct {
	Cod     statusMarker    `json:"cod"`
	Message json.RawMessage `json:"message"`
	List    []forecastSlice `json:"list"`
}

type forecastSlice struct {
	DtTxt string `json:"dt_txt"`
	Main  *struct {
		Temp     *float64 `json:"temp"`
		Humidity *float64 `json:"humidity"`
	} `json:"main"`
	Wind *struct {
		Speed *float64 `json:"speed"`
	} `json:"wind"`
	Weather []models.WeatherCondition `json:"weather"`
}

// Forecast fetches the metric forecast for coords and normalizes every time-slice into a record
// labelled with city. A non-"200" status marker or a malformed payload resolves to ErrForecastUnavailable.
func (c *OpenWeatherClient) Forecast(ctx context.Context, coords models.Coordinates, city string) (models.ForecastTable, error) {
	city = strings.TrimSpace(city)

	params := url.Values{}
	params.Set("lat", strconv.FormatFloat(coords.Lat, 'f', -1, 64))
	params.Set("lon", strconv.FormatFloat(coords.Lon, 'f', -1, 64))
	params.Set("units", "metric")

	_, body, err := c.get(ctx, endpointForecast, c.forecastURL, params)
	if err != nil {
		observability.UpstreamErrorsTotal.WithLabelValues(endpointForecast, string(CategorizeError(err))).Inc()
		return nil, fmt.Errorf("forecast %q: %w", city, err)
	}

	table, err := decodeForecast(body, city)
	if err != nil {
		observability.UpstreamErrorsTotal.WithLabelValues(endpointForecast, string(ErrorCategoryForecastUnavailable)).Inc()
		return nil, fmt.Errorf("forecast %q: %w", city, err)
	}
	return table, nil
}

// decodeForecast validates the payload once and maps it to a table, preserving upstream order.
func decodeForecast(body []byte, city string) (models.ForecastTable, error) {
	var resp forecastResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("%w: parse response: %v", ErrForecastUnavailable, err)
	}
	if string(resp.Cod) != statusOK {
		return nil, fmt.Errorf("%w: status %q", ErrForecastUnavailable, string(resp.Cod))
	}

	table := make(models.ForecastTable, 0, len(resp.List))
	for i, slice := range resp.List {
		rec, err := slice.record(city)
		if err != nil {
			return nil, fmt.Errorf("%w: slice %d: %v", ErrForecastUnavailable, i, err)
		}
		table = append(table, rec)
	}
	return table, nil
}

func (s forecastSlice) record(city string) (models.ForecastRecord, error) {
	date, err := time.ParseInLocation(dtTxtLayout, s.DtTxt, time.UTC)
	if err != nil {
		return models.ForecastRecord{}, fmt.Errorf("dt_txt: %w", err)
	}
	if s.Main == nil {
		return models.ForecastRecord{}, fmt.Errorf("missing main")
	}
	if s.Main.Temp == nil {
		return models.ForecastRecord{}, fmt.Errorf("missing main.temp")
	}
	if s.Main.Humidity == nil {
		return models.ForecastRecord{}, fmt.Errorf("missing main.humidity")
	}
	if s.Wind == nil || s.Wind.Speed == nil {
		return models.ForecastRecord{}, fmt.Errorf("missing wind.speed")
	}
	return models.ForecastRecord{
		Date:     date,
		Temp:     *s.Main.Temp,
		Humidity: *s.Main.Humidity,
		Wind:     *s.Wind.Speed,
		City:     city,
		Weather:  s.Weather,
	}, nil
}
