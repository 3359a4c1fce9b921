package models

import "time"

// HealthStatus represents the health status of a system component
type HealthStatus string

const (
	HealthStatusHealthy   HealthStatus = "healthy"
	HealthStatusUnhealthy HealthStatus = "unhealthy"
	HealthStatusDegraded  HealthStatus = "degraded"
	HealthStatusUnknown   HealthStatus = "unknown"
)

// HealthCheck represents a health check result
type HealthCheck struct {
	Component string                 `json:"component"`
	Status    HealthStatus           `json:"status"`
	Message   string                 `json:"message,omitempty"`
	Details   map[string]interface{} `json:"details,omitempty"`
	Duration  int64                  `json:"duration"` // in milliseconds
	Timestamp time.Time              `json:"timestamp"`
}

// IsHealthy returns true if the health check status is healthy
func (h *HealthCheck) IsHealthy() bool {
	return h.Status == HealthStatusHealthy
}
