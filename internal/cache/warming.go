package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-co-op/gocron/v2"
	"go.uber.org/zap"

	"github.com/kjstillabower/weather-dashboard/internal/models"
	"github.com/kjstillabower/weather-dashboard/internal/observability"
)

// ForecastFetcher is implemented by the service layer to fetch a city through the cache.
// Declared here to avoid a circular dependency on the service package.
type ForecastFetcher interface {
	GetForecast(ctx context.Context, city string) models.CityForecast
}

// CacheWarmer prefetches the configured cities so the first render pass is served from cache.
type CacheWarmer struct {
	fetcher ForecastFetcher
	logger  *zap.Logger
}

// NewCacheWarmer creates a CacheWarmer that uses the given fetcher and logger.
func NewCacheWarmer(fetcher ForecastFetcher, logger *zap.Logger) *CacheWarmer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CacheWarmer{fetcher: fetcher, logger: logger}
}

// Warm fetches the cities one after another in the given order. Cities whose outcome is not
// success are reported in the joined error; the others are cached regardless. It stops early
// when ctx is done.
func (w *CacheWarmer) Warm(ctx context.Context, cities []string) error {
	start := time.Now()
	observability.CacheWarmingTotal.Inc()
	w.logger.Info("warming cache", zap.Int("cities", len(cities)))

	var errs []error
	for _, city := range cities {
		if err := ctx.Err(); err != nil {
			errs = append(errs, fmt.Errorf("warm %s: %w", city, err))
			break
		}
		if res := w.fetcher.GetForecast(ctx, city); !res.OK() {
			errs = append(errs, fmt.Errorf("warm %s: %s", city, res.Outcome))
		}
	}

	duration := time.Since(start).Seconds()
	observability.CacheWarmingDurationSeconds.Observe(duration)
	w.logger.Info("cache warming complete",
		zap.Int("cities", len(cities)),
		zap.Int("errors", len(errs)),
		zap.Float64("duration_seconds", duration))
	if len(errs) > 0 {
		observability.CacheWarmingErrorsTotal.Inc()
		return fmt.Errorf("cache warming: %w", errors.Join(errs...))
	}
	return nil
}

// WarmScheduler re-warms the cache on a fixed interval.
type WarmScheduler struct {
	scheduler gocron.Scheduler
}

// StartPeriodic schedules Warm every interval, starting after the first interval elapses.
// Overlapping runs are skipped. Call Stop on shutdown.
func (w *CacheWarmer) StartPeriodic(cities []string, interval time.Duration) (*WarmScheduler, error) {
	if interval <= 0 {
		return nil, fmt.Errorf("warm interval must be positive, got %s", interval)
	}
	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("create scheduler: %w", err)
	}
	_, err = s.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func(ctx context.Context) {
			if err := w.Warm(ctx, cities); err != nil {
				w.logger.Warn("periodic cache warm failed", zap.Error(err))
			}
		}),
		gocron.WithName("forecast-cache-warm"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		_ = s.Shutdown()
		return nil, fmt.Errorf("schedule warm job: %w", err)
	}
	s.Start()
	return &WarmScheduler{scheduler: s}, nil
}

// Stop shuts the scheduler down, waiting for a running warm to finish.
func (s *WarmScheduler) Stop() error {
	return s.scheduler.Shutdown()
}
