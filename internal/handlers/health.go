package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-redis/redis/v8"

	"site-mass-upload/internal/database"
	"site-mass-upload/internal/models"
	"site-mass-upload/internal/registry"
	"site-mass-upload/internal/services"
)

// HealthHandler handles health check endpoints
type HealthHandler struct {
	monitoringService services.MonitoringService
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(monitoringService services.MonitoringService) *HealthHandler {
	return &HealthHandler{
		monitoringService: monitoringService,
	}
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status     string                         `json:"status"`
	Timestamp  time.Time                      `json:"timestamp"`
	Components map[string]*models.HealthCheck `json:"components"`
}

// HandleHealthCheck handles the main health check endpoint
func (h *HealthHandler) HandleHealthCheck(w http.ResponseWriter, r *http.Request) {
	components, err := h.monitoringService.GetHealthStatus(r.Context())
	if err != nil {
		http.Error(w, "Failed to get health status", http.StatusInternalServerError)
		return
	}

	overallStatus := "healthy"
	for _, component := range components {
		if !component.IsHealthy() {
			overallStatus = "unhealthy"
			break
		}
	}

	w.Header().Set("Content-Type", "application/json")
	if overallStatus != "healthy" {
		w.WriteHeader(http.StatusServiceUnavailable)
	}

	_ = json.NewEncoder(w).Encode(HealthResponse{
		Status:     overallStatus,
		Timestamp:  time.Now(),
		Components: components,
	})
}

// HandleLiveness reports that the process is up
func (h *HealthHandler) HandleLiveness(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// HandleReadiness reports ready only when every critical component is healthy
func (h *HealthHandler) HandleReadiness(w http.ResponseWriter, r *http.Request) {
	if !h.monitoringService.IsReady(r.Context()) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("Service Unavailable"))
		return
	}

	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("Ready"))
}

// PingCheck turns a ping function into a health check
func PingCheck(ping func(ctx context.Context) error) services.HealthCheckFunc {
	return func(ctx context.Context) (*models.HealthCheck, error) {
		if err := ping(ctx); err != nil {
			return nil, err
		}
		return &models.HealthCheck{Status: models.HealthStatusHealthy, Message: "reachable"}, nil
	}
}

// RegisterDefaultHealthChecks registers the database, cache and registry checks.
// A nil redis client means the in-memory cache is in use and is not checked.
func (h *HealthHandler) RegisterDefaultHealthChecks(db *database.Connection, rdb *redis.Client, reg *registry.Registry) {
	if db != nil {
		h.monitoringService.RegisterHealthCheck("database", func(ctx context.Context) (*models.HealthCheck, error) {
			if err := db.Ping(ctx); err != nil {
				return nil, err
			}
			check := &models.HealthCheck{Status: models.HealthStatusHealthy, Message: "reachable"}
			if stats, err := db.GetConnectionStats(); err == nil {
				check.Details = stats.Details()
			}
			return check, nil
		}, true)
	}
	if rdb != nil {
		h.monitoringService.RegisterHealthCheck("cache", PingCheck(func(ctx context.Context) error {
			return database.PingRedis(ctx, rdb)
		}), false)
	}
	h.monitoringService.RegisterHealthCheck("registry", func(ctx context.Context) (*models.HealthCheck, error) {
		entities := reg.ListImportable()
		status := models.HealthStatusHealthy
		if len(entities) == 0 {
			status = models.HealthStatusDegraded
		}
		return &models.HealthCheck{
			Status:  status,
			Message: "entity registry loaded",
			Details: map[string]interface{}{"entities": len(entities)},
		}, nil
	}, false)
}
