package http

import (
	"context"
	"encoding/json"
	"errors"
	"math/rand/v2"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/kjstillabower/weather-dashboard/internal/client"
	"github.com/kjstillabower/weather-dashboard/internal/dashboard"
	"github.com/kjstillabower/weather-dashboard/internal/lifecycle"
	"github.com/kjstillabower/weather-dashboard/internal/models"
	"github.com/kjstillabower/weather-dashboard/internal/observability"
	"github.com/kjstillabower/weather-dashboard/internal/traffic"
	"github.com/kjstillabower/weather-dashboard/internal/validation"
)

// ForecastProvider is the service surface the handlers need.
type ForecastProvider interface {
	GetForecast(ctx context.Context, city string) models.CityForecast
	Assemble(ctx context.Context, cities []string) models.Dataset
}

// HealthConfig holds thresholds for the health handler.
type HealthConfig struct {
	Degraded lifecycle.DegradedPolicy
	// CachePing, when set, checks the remote cache backend.
	CachePing func(ctx context.Context) error
}

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	forecasts        ForecastProvider
	cities           []string
	renderer         *dashboard.Renderer
	healthConfig     *HealthConfig
	logger           *zap.Logger
	newRand          func() *rand.Rand
	healthStatusMu   sync.Mutex
	healthStatusPrev lifecycle.Status
}

// NewHandler returns a new Handler serving cities in the given order.
func NewHandler(
	forecasts ForecastProvider,
	cities []string,
	renderer *dashboard.Renderer,
	healthConfig *HealthConfig,
	logger *zap.Logger,
) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		forecasts:    forecasts,
		cities:       cities,
		renderer:     renderer,
		healthConfig: healthConfig,
		logger:       logger,
		newRand: func() *rand.Rand {
			return rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0))
		},
	}
}

// GetDashboard handles GET /. One render pass: assemble, build the view, render HTML.
func (h *Handler) GetDashboard(w http.ResponseWriter, r *http.Request) {
	ds := h.forecasts.Assemble(r.Context(), h.cities)
	if errors.Is(r.Context().Err(), context.DeadlineExceeded) {
		writeError(w, r, http.StatusServiceUnavailable, "TIMEOUT", "Dashboard render timed out")
		return
	}
	view := dashboard.Build(ds, h.cities, h.newRand())

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := h.renderer.Render(w, view); err != nil {
		observability.LoggerFromContext(r.Context(), h.logger).Error("render dashboard", zap.Error(err))
		writeError(w, r, http.StatusInternalServerError, "RENDER_FAILED", "Unable to render dashboard")
	}
}

// GetDashboardData handles GET /api/dashboard: the card and chart view model as JSON.
func (h *Handler) GetDashboardData(w http.ResponseWriter, r *http.Request) {
	ds := h.forecasts.Assemble(r.Context(), h.cities)
	if errors.Is(r.Context().Err(), context.DeadlineExceeded) {
		writeError(w, r, http.StatusServiceUnavailable, "TIMEOUT", "Dashboard render timed out")
		return
	}
	writeJSON(w, http.StatusOK, dashboard.Build(ds, h.cities, h.newRand()))
}

// cityStatus is one city's outcome in the combined dataset response.
type cityStatus struct {
	City      string         `json:"city"`
	Outcome   models.Outcome `json:"outcome"`
	Rows      int            `json:"rows"`
	FetchedAt time.Time      `json:"fetchedAt"`
	Error     string         `json:"error,omitempty"`
}

type datasetResponse struct {
	Columns []string                `json:"columns"`
	Records []models.ForecastRecord `json:"records"`
	Cities  []cityStatus            `json:"cities"`
}

// GetForecasts handles GET /api/forecast: the combined table plus per-city outcomes.
func (h *Handler) GetForecasts(w http.ResponseWriter, r *http.Request) {
	ds := h.forecasts.Assemble(r.Context(), h.cities)
	if errors.Is(r.Context().Err(), context.DeadlineExceeded) {
		writeError(w, r, http.StatusServiceUnavailable, "TIMEOUT", "Forecast request timed out")
		return
	}
	resp := datasetResponse{
		Columns: ds.Columns(),
		Records: ds.Records,
		Cities:  make([]cityStatus, 0, len(ds.Cities)),
	}
	for _, c := range ds.Cities {
		resp.Cities = append(resp.Cities, cityStatus{
			City:      c.City,
			Outcome:   c.Outcome,
			Rows:      len(c.Table),
			FetchedAt: c.FetchedAt,
			Error:     c.Err,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetCityForecast handles GET /api/forecast/{city}. CityNotFound and ForecastUnavailable are
// data and return 200 with the tag; a transport failure returns 503.
func (h *Handler) GetCityForecast(w http.ResponseWriter, r *http.Request) {
	city, err := validation.ValidateCity(mux.Vars(r)["city"], h.cities)
	switch {
	case errors.Is(err, validation.ErrCityUnknown):
		writeError(w, r, http.StatusNotFound, "UNKNOWN_CITY", "City is not on the dashboard")
		return
	case err != nil:
		writeError(w, r, http.StatusBadRequest, "INVALID_CITY", err.Error())
		return
	}

	res := h.forecasts.GetForecast(r.Context(), city)
	if res.Outcome == models.OutcomeFetchFailed {
		writeServiceError(w, r, res)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// GetHealth handles GET /health.
func (h *Handler) GetHealth(w http.ResponseWriter, r *http.Request) {
	var policy lifecycle.DegradedPolicy
	if h.healthConfig != nil {
		policy = h.healthConfig.Degraded
	}
	status := lifecycle.Current(policy)

	h.healthStatusMu.Lock()
	prev := h.healthStatusPrev
	if prev != "" && prev != status {
		h.logger.Info("health status transition",
			zap.String("previous_status", string(prev)),
			zap.String("current_status", string(status)))
	}
	h.healthStatusPrev = status
	h.healthStatusMu.Unlock()

	checks := map[string]string{"weatherApi": "healthy"}
	if status == lifecycle.StatusDegraded {
		checks["weatherApi"] = "unhealthy"
	}
	if h.healthConfig != nil && h.healthConfig.CachePing != nil {
		if err := h.healthConfig.CachePing(r.Context()); err != nil {
			checks["cache"] = "unhealthy"
		} else {
			checks["cache"] = "healthy"
		}
	}

	code := http.StatusOK
	if status != lifecycle.StatusHealthy {
		code = http.StatusServiceUnavailable
	}
	body := map[string]interface{}{
		"status":    status,
		"service":   "weather-dashboard",
		"version":   "dev",
		"cities":    h.cities,
		"checks":    checks,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	if policy.Window > 0 {
		body["rateLimitDenials"] = traffic.DenialCount(policy.Window)
	}
	writeJSON(w, code, body)
}

// writeJSON writes v as JSON with the given status code.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes the standard error envelope with the request's correlation ID.
func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	writeJSON(w, status, map[string]interface{}{
		"error": map[string]string{
			"code":      code,
			"message":   message,
			"requestId": client.CorrelationIDFromContext(r.Context()),
		},
	})
}

func writeServiceError(w http.ResponseWriter, r *http.Request, res models.CityForecast) {
	writeError(w, r, http.StatusServiceUnavailable, "UPSTREAM_UNAVAILABLE", "Unable to fetch forecast data")
	observability.LoggerFromContext(r.Context(), nil).Debug("upstream error",
		zap.String("city", res.City),
		zap.String("error", res.Err))
}
