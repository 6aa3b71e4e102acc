package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"cropcast/internal/analytics"
	"cropcast/internal/models"
	"cropcast/internal/repository"
	"cropcast/internal/views"
	"cropcast/pkg/logging"
	"cropcast/pkg/metrics"
)

// ReportService produces analytics reports for a parameter selection
type ReportService interface {
	Analyze(ctx context.Context, p models.Parameters) (*analytics.Report, error)
	Bounds() analytics.Bounds
	Defaults() models.Parameters
}

// HealthChecker reports whether a backing store is reachable
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// AnalyticsHandler handles analytics API endpoints
type AnalyticsHandler struct {
	service ReportService
	health  HealthChecker
	logger  *logging.StructuredLogger
	metrics *metrics.Collector
	docs    DocsPage
}

// NewAnalyticsHandler creates a new analytics handler. health may be nil when
// the survey is served from a workbook.
func NewAnalyticsHandler(
	service ReportService,
	health HealthChecker,
	logger *logging.StructuredLogger,
	metricsCollector *metrics.Collector,
) *AnalyticsHandler {
	return &AnalyticsHandler{
		service: service,
		health:  health,
		logger:  logger,
		metrics: metricsCollector,
		docs:    DefaultDocsPage,
	}
}

// SetDocsPage replaces the Swagger UI settings; call before RegisterRoutes
func (h *AnalyticsHandler) SetDocsPage(page DocsPage) {
	h.docs = page
}

// ErrorResponse represents an API error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    int    `json:"code"`
}

// ForecastResponse pairs the observed history with its projection
type ForecastResponse struct {
	History  views.Series    `json:"history"`
	Forecast *views.Forecast `json:"forecast"`
}

// GetParameters handles GET /api/v1/parameters
func (h *AnalyticsHandler) GetParameters(w http.ResponseWriter, r *http.Request) {
	h.sendJSON(w, views.NewBounds(h.service.Bounds(), h.service.Defaults()), http.StatusOK)
}

// GetAnalytics handles GET /api/v1/analytics
func (h *AnalyticsHandler) GetAnalytics(w http.ResponseWriter, r *http.Request) {
	report, ok := h.report(w, r)
	if !ok {
		return
	}
	h.sendJSON(w, views.NewReport(report), http.StatusOK)
}

// component serves one slice of the report. A component that recorded an
// issue for this selection answers with that issue as an error.
func (h *AnalyticsHandler) component(name string, extract func(*analytics.Report) interface{}) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		report, ok := h.report(w, r)
		if !ok {
			return
		}
		if issue, found := report.Issue(name); found {
			h.sendAnalyticsError(w, r, issue.Err)
			return
		}
		h.sendJSON(w, extract(report), http.StatusOK)
	}
}

func (h *AnalyticsHandler) report(w http.ResponseWriter, r *http.Request) (*analytics.Report, bool) {
	ctx := r.Context()

	params, err := ParseParameters(r, h.service.Defaults())
	if err != nil {
		h.sendAnalyticsError(w, r, err)
		return nil, false
	}

	report, err := h.service.Analyze(ctx, params)
	if err != nil {
		h.sendAnalyticsError(w, r, err)
		return nil, false
	}
	return report, true
}

// ParseParameters reads the selection from the query string. Absent
// parameters take the values in defaults; malformed ones are rejected.
func ParseParameters(r *http.Request, defaults models.Parameters) (models.Parameters, error) {
	q := r.URL.Query()
	p := defaults

	if v := q.Get("crop"); v != "" {
		p.Crop = v
	}
	if v := q.Get("metric"); v != "" {
		p.YieldMetric = v
	}

	ints := []struct {
		name string
		dest *int
	}{
		{"year_min", &p.YearMin},
		{"year_max", &p.YearMax},
		{"window", &p.MAWindow},
		{"horizon", &p.Horizon},
	}
	for _, in := range ints {
		v := q.Get(in.name)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return p, &models.InvalidParameterError{Parameter: in.name, Value: v, Message: "expected an integer"}
		}
		*in.dest = n
	}

	if v := q.Get("delta"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return p, &models.InvalidParameterError{Parameter: "delta", Value: v, Message: "expected a finite number"}
		}
		p.TemperatureDelta = f
	}
	return p, nil
}

// HealthCheck handles GET /health
func (h *AnalyticsHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	status := map[string]string{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}

	if h.health != nil {
		if err := h.health.HealthCheck(ctx); err != nil {
			h.logger.Warn(ctx, "[HEALTH_CHECK] Store unreachable", logging.Fields{
				"error": err.Error(),
			})
			status["status"] = "unhealthy"
			h.sendJSON(w, status, http.StatusServiceUnavailable)
			return
		}
	}

	h.logger.Debug(ctx, "[HEALTH_CHECK] Health check requested", logging.Fields{})
	h.sendJSON(w, status, http.StatusOK)
}

// StatusCode maps an error to its HTTP status
func StatusCode(err error) int {
	var notFound *repository.NotFoundError
	switch {
	case errors.Is(err, models.ErrInvalidParameter):
		return http.StatusBadRequest
	case errors.Is(err, models.ErrInsufficientData):
		return http.StatusUnprocessableEntity
	case errors.As(err, &notFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func (h *AnalyticsHandler) sendAnalyticsError(w http.ResponseWriter, r *http.Request, err error) {
	code := StatusCode(err)
	endpoint := routeTemplate(r)
	message := err.Error()

	if code == http.StatusInternalServerError {
		h.logger.Error(r.Context(), "[API_ANALYTICS_ERROR] Failed to compute analytics", logging.Fields{
			"endpoint": endpoint,
		}, err)
		message = "failed to compute analytics"
	}
	h.metrics.RecordAPIError(views.ErrorKind(err), endpoint)
	h.sendError(w, message, code)
}

// sendJSON sends a JSON response
func (h *AnalyticsHandler) sendJSON(w http.ResponseWriter, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error(context.Background(), "[API_ENCODE_ERROR] Failed to write response", nil, err)
	}
}

// sendError sends an error response
func (h *AnalyticsHandler) sendError(w http.ResponseWriter, message string, statusCode int) {
	response := ErrorResponse{
		Error:   http.StatusText(statusCode),
		Message: message,
		Code:    statusCode,
	}

	h.sendJSON(w, response, statusCode)
}

// RegisterRoutes registers all analytics API routes
func (h *AnalyticsHandler) RegisterRoutes(router *mux.Router) {
	api := router.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/parameters", h.GetParameters).Methods("GET")
	api.HandleFunc("/analytics", h.GetAnalytics).Methods("GET")

	api.HandleFunc("/filtered", h.component(analytics.ComponentFilter, func(r *analytics.Report) interface{} {
		return views.NewDataset(r.Filtered)
	})).Methods("GET")
	api.HandleFunc("/correlation", h.component(analytics.ComponentCorrelation, func(r *analytics.Report) interface{} {
		return views.NewMatrix(r.Correlation)
	})).Methods("GET")
	api.HandleFunc("/pivot", h.component(analytics.ComponentPivot, func(r *analytics.Report) interface{} {
		return views.NewMatrix(r.Pivot)
	})).Methods("GET")
	api.HandleFunc("/impact", h.component(analytics.ComponentImpact, func(r *analytics.Report) interface{} {
		return views.NewSeries(r.Impact)
	})).Methods("GET")
	api.HandleFunc("/forecast", h.component(analytics.ComponentForecast, func(r *analytics.Report) interface{} {
		return ForecastResponse{History: views.NewSeries(r.History), Forecast: views.NewForecast(r.Forecast)}
	})).Methods("GET")
	api.HandleFunc("/moving-average", h.component(analytics.ComponentMovingAverage, func(r *analytics.Report) interface{} {
		return views.NewSeries(r.MovingAverage)
	})).Methods("GET")
	api.HandleFunc("/recommendation", h.component(analytics.ComponentRecommendation, func(r *analytics.Report) interface{} {
		return views.NewRecommendation(r.Recommendation)
	})).Methods("GET")
	api.HandleFunc("/yield-trends", h.component(analytics.ComponentYieldTrends, func(r *analytics.Report) interface{} {
		return views.NewSeriesList(r.YieldTrends)
	})).Methods("GET")
	api.HandleFunc("/zone-trends", h.component(analytics.ComponentZoneTrends, func(r *analytics.Report) interface{} {
		return views.NewSeriesList(r.ZoneTrends)
	})).Methods("GET")
	api.HandleFunc("/water-productivity", h.component(analytics.ComponentWaterProductivity, func(r *analytics.Report) interface{} {
		return views.NewWaterProductivity(r.WaterProductivity)
	})).Methods("GET")

	router.HandleFunc("/health", h.HealthCheck).Methods("GET")
	router.HandleFunc("/api/docs", SwaggerUI(h.docs)).Methods("GET")
	router.HandleFunc("/api/docs/openapi.json", OpenAPISpec).Methods("GET")
}
