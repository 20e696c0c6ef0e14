package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/coursemetrics/pkg/analytics"
	"github.com/platinummonkey/coursemetrics/pkg/cache"
	"github.com/platinummonkey/coursemetrics/pkg/httputil"
	"github.com/platinummonkey/coursemetrics/pkg/observability"
)

// Dashboards is the analytics facade served by AnalyticsHandlers.
// *analytics.Service implements it.
type Dashboards interface {
	GetPlatformMetrics(ctx context.Context, r *analytics.DateRange) (*analytics.PlatformMetrics, error)
	GetInstructorMetrics(ctx context.Context, instructorID string, r *analytics.DateRange) (*analytics.InstructorMetrics, error)
	GetStudentMetrics(ctx context.Context, studentID string) (*analytics.StudentMetrics, error)
	GetCourseMetrics(ctx context.Context, courseID string, r *analytics.DateRange) (*analytics.CourseMetrics, error)
}

var _ Dashboards = (*analytics.Service)(nil)

// AnalyticsHandlers provides the dashboard endpoints
type AnalyticsHandlers struct {
	dashboards Dashboards
	log        logrus.FieldLogger
}

// NewAnalyticsHandlers creates a new analytics handlers instance
func NewAnalyticsHandlers(dashboards Dashboards, log logrus.FieldLogger) *AnalyticsHandlers {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &AnalyticsHandlers{dashboards: dashboards, log: log}
}

// RegisterRoutes registers analytics API routes
func (h *AnalyticsHandlers) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/api/v1/analytics/platform", h.getPlatform).Methods(http.MethodGet)
	r.HandleFunc("/api/v1/analytics/instructors/{id}", h.getInstructor).Methods(http.MethodGet)
	r.HandleFunc("/api/v1/analytics/students/{id}", h.getStudent).Methods(http.MethodGet)
	r.HandleFunc("/api/v1/analytics/courses/{id}", h.getCourse).Methods(http.MethodGet)
}

// dateRange parses the optional from/to query parameters
func dateRange(w http.ResponseWriter, r *http.Request) (*analytics.DateRange, bool) {
	rng, err := analytics.ParseDateRange(
		httputil.ParseQueryString(r, "from", ""),
		httputil.ParseQueryString(r, "to", ""),
	)
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return nil, false
	}
	return rng, true
}

// getPlatform handles GET /api/v1/analytics/platform?from=&to=
func (h *AnalyticsHandlers) getPlatform(w http.ResponseWriter, r *http.Request) {
	rng, ok := dateRange(w, r)
	if !ok {
		return
	}
	metrics, err := h.dashboards.GetPlatformMetrics(r.Context(), rng)
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}
	httputil.WriteSuccess(w, metrics)
}

// getInstructor handles GET /api/v1/analytics/instructors/{id}?from=&to=
func (h *AnalyticsHandlers) getInstructor(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}
	rng, ok := dateRange(w, r)
	if !ok {
		return
	}
	metrics, err := h.dashboards.GetInstructorMetrics(r.Context(), id, rng)
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}
	httputil.WriteSuccess(w, metrics)
}

// getStudent handles GET /api/v1/analytics/students/{id}
func (h *AnalyticsHandlers) getStudent(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}
	metrics, err := h.dashboards.GetStudentMetrics(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}
	httputil.WriteSuccess(w, metrics)
}

// getCourse handles GET /api/v1/analytics/courses/{id}?from=&to=
func (h *AnalyticsHandlers) getCourse(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}
	rng, ok := dateRange(w, r)
	if !ok {
		return
	}
	metrics, err := h.dashboards.GetCourseMetrics(r.Context(), id, rng)
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}
	httputil.WriteSuccess(w, metrics)
}

// writeServiceError maps service errors to status codes. Unexpected errors
// are logged and answered without their message.
func writeServiceError(w http.ResponseWriter, r *http.Request, log logrus.FieldLogger, err error) {
	switch {
	case errors.Is(err, analytics.ErrNotFound):
		httputil.WriteNotFoundError(w, err.Error())
	case errors.Is(err, analytics.ErrInvalidArgument),
		errors.Is(err, analytics.ErrInvalidRange),
		errors.Is(err, cache.ErrUnknownEntity):
		httputil.WriteBadRequest(w, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		httputil.WriteErrorMessage(w, http.StatusGatewayTimeout, "request timed out")
	case errors.Is(err, context.Canceled):
		httputil.WriteServiceUnavailable(w, "request canceled")
	default:
		observability.WithContextFields(r.Context(), log).WithError(err).
			WithField("path", r.URL.Path).Error("Analytics request failed")
		httputil.WriteErrorMessage(w, http.StatusInternalServerError, "internal server error")
	}
}
