package services

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"site-mass-upload/internal/logger"
	"site-mass-upload/internal/models"
)

// HealthCheckFunc checks one component
type HealthCheckFunc func(ctx context.Context) (*models.HealthCheck, error)

// MonitoringService runs registered component health checks
type MonitoringService interface {
	RegisterHealthCheck(component string, check HealthCheckFunc, critical bool)
	PerformHealthCheck(ctx context.Context, component string) (*models.HealthCheck, error)
	GetHealthStatus(ctx context.Context) (map[string]*models.HealthCheck, error)
	IsReady(ctx context.Context) bool
}

type registeredCheck struct {
	fn       HealthCheckFunc
	critical bool
}

// monitoringService implements MonitoringService
type monitoringService struct {
	logger  *logger.Logger
	timeout time.Duration

	healthChecks map[string]registeredCheck
	healthMutex  sync.RWMutex
}

// NewMonitoringService creates a new monitoring service
func NewMonitoringService(logger *logger.Logger) MonitoringService {
	return &monitoringService{
		logger:       logger,
		timeout:      3 * time.Second,
		healthChecks: make(map[string]registeredCheck),
	}
}

// RegisterHealthCheck registers a health check function for a component
func (s *monitoringService) RegisterHealthCheck(component string, check HealthCheckFunc, critical bool) {
	s.healthMutex.Lock()
	defer s.healthMutex.Unlock()
	s.healthChecks[component] = registeredCheck{fn: check, critical: critical}
}

// PerformHealthCheck performs a health check for a specific component
func (s *monitoringService) PerformHealthCheck(ctx context.Context, component string) (*models.HealthCheck, error) {
	s.healthMutex.RLock()
	registered, exists := s.healthChecks[component]
	s.healthMutex.RUnlock()

	if !exists {
		return &models.HealthCheck{
			Component: component,
			Status:    models.HealthStatusUnknown,
			Message:   "No health check registered for component",
			Timestamp: time.Now(),
		}, nil
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	startTime := time.Now()
	check, err := registered.fn(ctx)
	duration := time.Since(startTime).Milliseconds()

	if err != nil {
		s.logger.WithError(err).WithField("component", component).Warn("Health check failed")
		check = &models.HealthCheck{
			Component: component,
			Status:    models.HealthStatusUnhealthy,
			Message:   fmt.Sprintf("Health check failed: %v", err),
		}
	}
	if check == nil {
		check = &models.HealthCheck{Component: component, Status: models.HealthStatusHealthy}
	}
	check.Component = component
	check.Duration = duration
	check.Timestamp = time.Now()

	return check, nil
}

// GetHealthStatus runs every registered check
func (s *monitoringService) GetHealthStatus(ctx context.Context) (map[string]*models.HealthCheck, error) {
	status := make(map[string]*models.HealthCheck)
	for _, component := range s.components() {
		check, err := s.PerformHealthCheck(ctx, component)
		if err != nil {
			return nil, fmt.Errorf("failed to check %s: %w", component, err)
		}
		status[component] = check
	}
	return status, nil
}

// IsReady reports whether every critical component is healthy
func (s *monitoringService) IsReady(ctx context.Context) bool {
	s.healthMutex.RLock()
	var critical []string
	for name, c := range s.healthChecks {
		if c.critical {
			critical = append(critical, name)
		}
	}
	s.healthMutex.RUnlock()

	for _, component := range critical {
		check, err := s.PerformHealthCheck(ctx, component)
		if err != nil || !check.IsHealthy() {
			return false
		}
	}
	return true
}

func (s *monitoringService) components() []string {
	s.healthMutex.RLock()
	defer s.healthMutex.RUnlock()

	names := make([]string, 0, len(s.healthChecks))
	for name := range s.healthChecks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
