// Package dashboard turns an assembled dataset into the cards and chart series drawn by the page.
package dashboard

import (
	"fmt"
	"math"
	"math/rand/v2"
	"time"

	"github.com/kjstillabower/weather-dashboard/internal/models"
)

const (
	defaultIcon        = "01d"
	defaultDescription = "N/A"
	iconURLFormat      = "http://openweathermap.org/img/wn/%s@2x.png"
)

// Card summarizes one city from its first record. Available is false when the city
// contributed no rows; Outcome then says why.
type Card struct {
	City        string         `json:"city"`
	Outcome     models.Outcome `json:"outcome"`
	Available   bool           `json:"available"`
	Date        time.Time      `json:"date"`
	Temp        float64        `json:"temp"`
	Humidity    float64        `json:"humidity"`
	Icon        string         `json:"icon,omitempty"`
	IconURL     string         `json:"iconUrl,omitempty"`
	Description string         `json:"description,omitempty"`
	Message     string         `json:"message,omitempty"`
}

// Point is one (date, value) sample of a time series.
type Point struct {
	Date  time.Time `json:"x"`
	Value float64   `json:"y"`
}

// Series is one city's line in a time-series chart.
type Series struct {
	City   string  `json:"city"`
	Points []Point `json:"points"`
}

// Slice is one city's share in an aggregate chart.
type Slice struct {
	City  string  `json:"city"`
	Value float64 `json:"value"`
}

// ScatterPoint plots temperature against humidity, sized by wind.
type ScatterPoint struct {
	Temp     float64   `json:"x"`
	Humidity float64   `json:"y"`
	Wind     float64   `json:"r"`
	Date     time.Time `json:"date"`
}

// ScatterSeries groups one city's scatter points.
type ScatterSeries struct {
	City   string         `json:"city"`
	Points []ScatterPoint `json:"points"`
}

// PolarPoint is a wind sample at a compass direction. X and Y are its cartesian projection
// (north up) so the page can draw it on a plain scatter axis.
type PolarPoint struct {
	Direction int     `json:"direction"`
	Speed     float64 `json:"speed"`
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
}

// PolarSeries groups one city's wind samples.
type PolarSeries struct {
	City   string       `json:"city"`
	Points []PolarPoint `json:"points"`
}

// Charts holds every chart the page draws.
type Charts struct {
	Temperature  []Series        `json:"temperature"`
	Humidity     []Series        `json:"humidity"`
	Wind         []Series        `json:"wind"`
	AvgTemp      []Slice         `json:"avgTemp"`
	AvgHumidity  []Slice         `json:"avgHumidity"`
	TempHumidity []ScatterSeries `json:"tempHumidity"`
	StackedTemp  []Series        `json:"stackedTemp"`
	WindPolar    []PolarSeries   `json:"windPolar"`
}

// View is everything the dashboard page renders.
type View struct {
	Cities      []string  `json:"cities"`
	Columns     []string  `json:"columns"`
	Rows        int       `json:"rows"`
	Cards       []Card    `json:"cards"`
	Charts      Charts    `json:"charts"`
	GeneratedAt time.Time `json:"generatedAt"`
}

// Build derives the view from ds for cities in order. Cities without rows get a card tagged
// with their outcome and are left out of every chart. Wind directions are simulated from rng
// (0..359), one per record in dataset order; a nil rng is seeded from the clock.
func Build(ds models.Dataset, cities []string, rng *rand.Rand) View {
	if rng == nil {
		rng = rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0))
	}
	v := View{
		Cities:      cities,
		Columns:     ds.Columns(),
		Rows:        len(ds.Records),
		Cards:       make([]Card, 0, len(cities)),
		GeneratedAt: time.Now().UTC(),
		Charts: Charts{
			Temperature:  []Series{},
			Humidity:     []Series{},
			Wind:         []Series{},
			AvgTemp:      []Slice{},
			AvgHumidity:  []Slice{},
			TempHumidity: []ScatterSeries{},
			StackedTemp:  []Series{},
			WindPolar:    []PolarSeries{},
		},
	}

	for _, city := range cities {
		v.Cards = append(v.Cards, buildCard(ds, city))

		rows := ds.ForCity(city)
		if len(rows) == 0 {
			continue
		}
		c := &v.Charts
		c.Temperature = append(c.Temperature, series(city, rows, func(r models.ForecastRecord) float64 { return r.Temp }))
		c.Humidity = append(c.Humidity, series(city, rows, func(r models.ForecastRecord) float64 { return r.Humidity }))
		c.Wind = append(c.Wind, series(city, rows, func(r models.ForecastRecord) float64 { return r.Wind }))
		c.StackedTemp = append(c.StackedTemp, series(city, rows, func(r models.ForecastRecord) float64 { return r.Temp }))
		c.AvgTemp = append(c.AvgTemp, Slice{City: city, Value: mean(rows, func(r models.ForecastRecord) float64 { return r.Temp })})
		c.AvgHumidity = append(c.AvgHumidity, Slice{City: city, Value: mean(rows, func(r models.ForecastRecord) float64 { return r.Humidity })})
		c.TempHumidity = append(c.TempHumidity, scatter(city, rows))
		c.WindPolar = append(c.WindPolar, polar(city, rows, rng))
	}
	return v
}

func buildCard(ds models.Dataset, city string) Card {
	outcome, known := ds.Outcome(city)
	latest, ok := ds.Latest(city)
	if !ok {
		if !known {
			outcome = models.OutcomeFetchFailed
		}
		return Card{City: city, Outcome: outcome, Message: unavailableMessage(city, outcome)}
	}
	if !known {
		outcome = models.OutcomeSuccess
	}

	icon, description := defaultIcon, defaultDescription
	if len(latest.Weather) > 0 {
		if w := latest.Weather[0]; w.Icon != "" {
			icon = w.Icon
		}
		if w := latest.Weather[0]; w.Description != "" {
			description = w.Description
		}
	}
	return Card{
		City:        city,
		Outcome:     outcome,
		Available:   true,
		Date:        latest.Date,
		Temp:        latest.Temp,
		Humidity:    latest.Humidity,
		Icon:        icon,
		IconURL:     fmt.Sprintf(iconURLFormat, icon),
		Description: description,
	}
}

func unavailableMessage(city string, o models.Outcome) string {
	switch o {
	case models.OutcomeCityNotFound:
		return fmt.Sprintf("City %q not found or API returned empty data.", city)
	case models.OutcomeForecastUnavailable:
		return fmt.Sprintf("Forecast API error for %s.", city)
	default:
		return fmt.Sprintf("Could not reach the weather service for %s.", city)
	}
}

func series(city string, rows models.ForecastTable, value func(models.ForecastRecord) float64) Series {
	s := Series{City: city, Points: make([]Point, len(rows))}
	for i, r := range rows {
		s.Points[i] = Point{Date: r.Date, Value: value(r)}
	}
	return s
}

func mean(rows models.ForecastTable, value func(models.ForecastRecord) float64) float64 {
	var sum float64
	for _, r := range rows {
		sum += value(r)
	}
	return sum / float64(len(rows))
}

func scatter(city string, rows models.ForecastTable) ScatterSeries {
	s := ScatterSeries{City: city, Points: make([]ScatterPoint, len(rows))}
	for i, r := range rows {
		s.Points[i] = ScatterPoint{Temp: r.Temp, Humidity: r.Humidity, Wind: r.Wind, Date: r.Date}
	}
	return s
}

func polar(city string, rows models.ForecastTable, rng *rand.Rand) PolarSeries {
	s := PolarSeries{City: city, Points: make([]PolarPoint, len(rows))}
	for i, r := range rows {
		dir := rng.IntN(360)
		rad := float64(dir) * math.Pi / 180
		s.Points[i] = PolarPoint{
			Direction: dir,
			Speed:     r.Wind,
			X:         round2(r.Wind * math.Sin(rad)),
			Y:         round2(r.Wind * math.Cos(rad)),
		}
	}
	return s
}

func round2(f float64) float64 {
	return math.Round(f*100) / 100
}
