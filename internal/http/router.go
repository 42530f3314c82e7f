package http

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kjstillabower/weather-dashboard/internal/observability"
)

// NewRouter wires every route. Page and API routes share the rate limiter and request timeout;
// /health and /metrics are exempt so probes keep working under load.
func NewRouter(h *Handler, logger *zap.Logger, limiter *rate.Limiter, requestTimeout time.Duration) *mux.Router {
	router := mux.NewRouter()
	router.Use(CorrelationIDMiddleware(logger))
	router.Use(MetricsMiddleware)

	router.HandleFunc("/health", h.GetHealth).Methods(http.MethodGet)
	router.Handle("/metrics", observability.MetricsHandler()).Methods(http.MethodGet)

	limited := router.NewRoute().Subrouter()
	limited.Use(RateLimitMiddleware(limiter))
	limited.Use(TimeoutMiddleware(requestTimeout))
	limited.HandleFunc("/", h.GetDashboard).Methods(http.MethodGet)
	limited.HandleFunc("/api/dashboard", h.GetDashboardData).Methods(http.MethodGet)
	limited.HandleFunc("/api/forecast", h.GetForecasts).Methods(http.MethodGet)
	limited.HandleFunc("/api/forecast/{city}", h.GetCityForecast).Methods(http.MethodGet)

	return router
}
