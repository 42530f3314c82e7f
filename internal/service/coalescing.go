package service

import (
	"golang.org/x/sync/singleflight"

	"github.com/kjstillabower/weather-dashboard/internal/models"
)

// fetchGroup collapses concurrent fetches for the same city into one call.
type fetchGroup struct {
	g singleflight.Group
}

// Do runs fn once per key among concurrent callers. shared reports whether the result was
// delivered to more than one caller.
func (f *fetchGroup) Do(key string, fn func() models.CityForecast) (res models.CityForecast, shared bool) {
	v, _, shared := f.g.Do(key, func() (interface{}, error) {
		return fn(), nil
	})
	return v.(models.CityForecast), shared
}
