package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/upb/firmauth/utils"
	"go.uber.org/zap"
)

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string            `json:"status"`
	Timestamp string            `json:"timestamp"`
	Checks    map[string]string `json:"checks,omitempty"`
}

// HealthChecker reports whether a dependency is reachable
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// HealthHandler handles health-related HTTP requests
type HealthHandler struct {
	db       HealthChecker
	store    HealthChecker
	activity HealthChecker
	logger   *zap.Logger
}

// NewHealthHandler creates a new HealthHandler. A nil dependency is skipped.
func NewHealthHandler(db, store, activity HealthChecker, logger *zap.Logger) *HealthHandler {
	return &HealthHandler{
		db:       db,
		store:    store,
		activity: activity,
		logger:   logger,
	}
}

// HandleHealth handles GET /healthz
// Basic health check - always returns 200 if service is running
func (h *HealthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	response := HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}

	_ = utils.WriteOK(w, response)
}

// HandleReadiness handles GET /readyz
// Readiness check - the database, the quota store and the activity recorder must answer
func (h *HealthHandler) HandleReadiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	checks := make(map[string]string)
	allHealthy := true

	for _, dep := range []struct {
		name    string
		checker HealthChecker
	}{
		{"database", h.db},
		{"redis", h.store},
		{"activity", h.activity},
	} {
		if dep.checker == nil {
			continue
		}
		if err := dep.checker.HealthCheck(ctx); err != nil {
			h.logger.Warn("health check failed", zap.String("check", dep.name), zap.Error(err))
			checks[dep.name] = "unhealthy"
			allHealthy = false
			continue
		}
		checks[dep.name] = "healthy"
	}

	status := "healthy"
	httpStatus := http.StatusOK
	if !allHealthy {
		status = "unhealthy"
		httpStatus = http.StatusServiceUnavailable
	}

	response := HealthResponse{
		Status:    status,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Checks:    checks,
	}

	if err := utils.WriteJSON(w, httpStatus, utils.SuccessResponse{Data: response}); err != nil {
		h.logger.Error("failed to write readiness response", zap.Error(err))
	}
}
