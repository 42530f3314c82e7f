package models

import "time"

// Columns is the fixed column set of a normalized forecast table, in order.
var Columns = []string{"date", "temp", "humidity", "wind", "city", "weather"}

// Coordinates is a resolved geographic position.
type Coordinates struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// WeatherCondition is one condition descriptor of a forecast slice, passed through as received.
type WeatherCondition struct {
	ID          int    `json:"id,omitempty"`
	Main        string `json:"main,omitempty"`
	Description string `json:"description"`
	Icon        string `json:"icon"`
}

// ForecastRecord is one forecast timestamp for one city.
type ForecastRecord struct {
	Date     time.Time          `json:"date"`
	Temp     float64            `json:"temp"`
	Humidity float64            `json:"humidity"`
	Wind     float64            `json:"wind"`
	City     string             `json:"city"`
	Weather  []WeatherCondition `json:"weather"`
}

// ForecastTable is the ordered sequence of records for one city. Never mutated after construction.
type ForecastTable []ForecastRecord

// Columns returns the table schema. Identical for empty and non-empty tables.
func (t ForecastTable) Columns() []string {
	out := make([]string, len(Columns))
	copy(out, Columns)
	return out
}

// Empty reports whether the table has no rows.
func (t ForecastTable) Empty() bool {
	return len(t) == 0
}
