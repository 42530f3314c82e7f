package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/weather-dashboard/internal/cache"
	"github.com/kjstillabower/weather-dashboard/internal/client"
	"github.com/kjstillabower/weather-dashboard/internal/models"
	"github.com/kjstillabower/weather-dashboard/internal/observability"
	"github.com/kjstillabower/weather-dashboard/internal/traffic"
)

// ForecastService runs the cache-wrapped geocode + forecast pipeline for one city and
// assembles the combined dataset for a render pass.
type ForecastService struct {
	geocoder   client.Geocoder
	fetcher    client.ForecastFetcher
	cache      cache.Cache
	ttl        time.Duration
	failureTTL time.Duration
	flights    fetchGroup
	logger     *zap.Logger
	now        func() time.Time
}

// NewForecastService wires the pipeline. ttl applies to successful fetches; failureTTL to
// CityNotFound and ForecastUnavailable results and is capped at ttl. Transport failures are
// never cached.
func NewForecastService(
	geocoder client.Geocoder,
	fetcher client.ForecastFetcher,
	c cache.Cache,
	ttl, failureTTL time.Duration,
	logger *zap.Logger,
) *ForecastService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ForecastService{
		geocoder:   geocoder,
		fetcher:    fetcher,
		cache:      c,
		ttl:        ttl,
		failureTTL: failureTTL,
		logger:     logger,
		now:        time.Now,
	}
}

// GetForecast returns the city's forecast, from cache while fresh. The city is trimmed and
// used verbatim as the cache key. It never returns an error: failures are tagged on the result.
// Concurrent callers for one key share a single fetch, which is not cancelled when one of
// them goes away.
func (s *ForecastService) GetForecast(ctx context.Context, city string) models.CityForecast {
	key := strings.TrimSpace(city)
	logger := observability.LoggerFromContext(ctx, s.logger)
	if key == "" {
		return models.CityForecast{
			City:    key,
			Outcome: models.OutcomeCityNotFound,
			Table:   models.ForecastTable{},
			Err:     client.ErrCityNotFound.Error(),
		}
	}

	res, shared := s.flights.Do(key, func() models.CityForecast {
		fetchCtx := context.WithoutCancel(ctx)
		v, hit, err := cache.GetOrCompute(fetchCtx, s.cache, key, s.ttlFor, func(ctx context.Context) models.CityForecast {
			return s.fetch(ctx, key)
		})
		if err != nil {
			logger.Warn("cache backend error", zap.String("city", key), zap.Error(err))
		}
		logger.Debug("forecast served", zap.String("city", key), zap.Bool("cached", hit), zap.String("outcome", string(v.Outcome)))
		return v
	})
	if shared {
		observability.CoalescedFetchesTotal.Inc()
	}
	return res
}

// fetch runs geocode then forecast once. Failures resolve to a tagged result with an empty table.
// FetchedAt is stamped once both upstream calls have returned; cache expiry counts from it.
func (s *ForecastService) fetch(ctx context.Context, city string) models.CityForecast {
	logger := observability.LoggerFromContext(ctx, s.logger)
	res := models.CityForecast{City: city}

	coords, err := s.geocoder.Geocode(ctx, city)
	if err == nil {
		res.Table, err = s.fetcher.Forecast(ctx, coords, city)
	}
	res.FetchedAt = s.now().UTC()
	res.Outcome = outcomeFor(err)

	switch res.Outcome {
	case models.OutcomeSuccess:
		logger.Debug("forecast fetched", zap.String("city", city), zap.Int("rows", len(res.Table)))
	case models.OutcomeCityNotFound, models.OutcomeForecastUnavailable:
		logger.Warn("forecast not available for city",
			zap.String("city", city),
			zap.String("outcome", string(res.Outcome)),
			zap.Error(err))
	default:
		logger.Error("forecast fetch failed",
			zap.String("city", city),
			zap.String("category", string(client.CategorizeError(err))),
			zap.Error(err))
	}
	if err != nil {
		res.Table = models.ForecastTable{}
		res.Err = err.Error()
	} else if res.Table == nil {
		res.Table = models.ForecastTable{}
	}

	observability.RecordForecastOutcome(city, string(res.Outcome))
	traffic.RecordOutcome(res.Outcome)
	return res
}

func outcomeFor(err error) models.Outcome {
	switch {
	case err == nil:
		return models.OutcomeSuccess
	case errors.Is(err, client.ErrCityNotFound):
		return models.OutcomeCityNotFound
	case errors.Is(err, client.ErrForecastUnavailable):
		return models.OutcomeForecastUnavailable
	default:
		return models.OutcomeFetchFailed
	}
}

// ttlFor picks how long a result stays cached. Zero means not cached.
func (s *ForecastService) ttlFor(res models.CityForecast) time.Duration {
	switch res.Outcome {
	case models.OutcomeSuccess:
		return s.ttl
	case models.OutcomeCityNotFound, models.OutcomeForecastUnavailable:
		return min(s.failureTTL, s.ttl)
	default:
		return 0
	}
}

// Assemble fetches each city in order, one after another, and concatenates their tables.
// Cities with an empty table contribute no rows; their outcome is still listed in Cities.
func (s *ForecastService) Assemble(ctx context.Context, cities []string) models.Dataset {
	start := time.Now()
	ds := models.Dataset{
		Records: []models.ForecastRecord{},
		Cities:  make([]models.CityForecast, 0, len(cities)),
	}
	for _, city := range cities {
		res := s.GetForecast(ctx, city)
		ds.Records = append(ds.Records, res.Table...)
		ds.Cities = append(ds.Cities, res)
	}
	observability.DatasetRows.Set(float64(len(ds.Records)))
	observability.DatasetAssembleDurationSeconds.Observe(time.Since(start).Seconds())
	return ds
}
