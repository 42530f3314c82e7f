package models

import "time"

// Outcome tags how a city's forecast fetch ended.
type Outcome string

const (
	OutcomeSuccess             Outcome = "success"
	OutcomeCityNotFound        Outcome = "city_not_found"
	OutcomeForecastUnavailable Outcome = "forecast_unavailable"
	OutcomeFetchFailed         Outcome = "fetch_failed"
)

// CityForecast is the tagged result of fetching one city. Failure outcomes always carry an empty table.
// It is also the unit stored in the cache: FetchedAt is the fetch timestamp of the entry.
type CityForecast struct {
	City      string        `json:"city"`
	Outcome   Outcome       `json:"outcome"`
	Table     ForecastTable `json:"table"`
	FetchedAt time.Time     `json:"fetchedAt"`
	Err       string        `json:"error,omitempty"`
}

// OK reports whether the fetch succeeded.
func (f CityForecast) OK() bool {
	return f.Outcome == OutcomeSuccess
}

// Dataset is the combined table of one render pass plus per-city outcomes, in configured order.
type Dataset struct {
	Records []ForecastRecord `json:"records"`
	Cities  []CityForecast   `json:"cities"`
}

// Columns returns the fixed column set of the combined table.
func (d Dataset) Columns() []string {
	return ForecastTable(nil).Columns()
}

// ForCity returns the rows of the combined table belonging to city, in order.
func (d Dataset) ForCity(city string) ForecastTable {
	var out ForecastTable
	for _, r := range d.Records {
		if r.City == city {
			out = append(out, r)
		}
	}
	return out
}

// Latest returns the first row for city. ok is false when the city contributed no rows.
func (d Dataset) Latest(city string) (ForecastRecord, bool) {
	for _, r := range d.Records {
		if r.City == city {
			return r, true
		}
	}
	return ForecastRecord{}, false
}

// Outcome returns the recorded outcome for city.
func (d Dataset) Outcome(city string) (Outcome, bool) {
	for _, c := range d.Cities {
		if c.City == city {
			return c.Outcome, true
		}
	}
	return "", false
}
