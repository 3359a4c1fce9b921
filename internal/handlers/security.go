package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"site-mass-upload/internal/logger"
	"site-mass-upload/internal/middleware"
	"site-mass-upload/internal/security"
	"site-mass-upload/internal/services"
)

// SecurityHandler exposes operational state: rate limiting, configuration
// problems, recent alerts and circuit breakers
type SecurityHandler struct {
	logger          *logger.Logger
	securityManager *security.SecurityManager
	notifications   *services.NotificationService
	errorHandler    *services.ErrorHandler
}

// NewSecurityHandler creates a new security handler
func NewSecurityHandler(
	logger *logger.Logger,
	securityManager *security.SecurityManager,
	notifications *services.NotificationService,
	errorHandler *services.ErrorHandler,
) *SecurityHandler {
	return &SecurityHandler{
		logger:          logger,
		securityManager: securityManager,
		notifications:   notifications,
		errorHandler:    errorHandler,
	}
}

// RegisterRoutes mounts the operational endpoints under /api/v1/ops
func (h *SecurityHandler) RegisterRoutes(router *mux.Router, auth *middleware.AuthenticationMiddleware) {
	ops := router.PathPrefix("/api/v1/ops").Subrouter()
	if auth != nil {
		ops.Use(auth.RequireJWT)
	}

	ops.HandleFunc("/rate-limits", h.GetRateLimitStats).Methods(http.MethodGet)
	ops.HandleFunc("/config", h.GetConfigProblems).Methods(http.MethodGet)
	ops.HandleFunc("/alerts", h.GetAlerts).Methods(http.MethodGet)
	ops.HandleFunc("/circuit-breakers", h.GetCircuitBreakers).Methods(http.MethodGet)
}

// GetRateLimitStats retrieves rate limiting statistics
func (h *SecurityHandler) GetRateLimitStats(w http.ResponseWriter, r *http.Request) {
	h.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"rate_limit_stats": h.securityManager.GetRateLimitStats(),
		"timestamp":        time.Now().UTC(),
	})
}

// GetConfigProblems reports weak or invalid security settings
func (h *SecurityHandler) GetConfigProblems(w http.ResponseWriter, r *http.Request) {
	problems := []string{}
	for _, err := range h.securityManager.ValidateConfig() {
		problems = append(problems, err.Error())
	}

	h.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"valid":    len(problems) == 0,
		"problems": problems,
	})
}

// GetAlerts lists the most recent alerts raised from classified errors
func (h *SecurityHandler) GetAlerts(w http.ResponseWriter, r *http.Request) {
	alerts := h.notifications.Recent()
	h.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"alerts": alerts,
		"count":  len(alerts),
	})
}

// GetCircuitBreakers reports the state of every circuit breaker
func (h *SecurityHandler) GetCircuitBreakers(w http.ResponseWriter, r *http.Request) {
	h.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"circuit_breakers": h.errorHandler.GetCircuitBreakerStatus(),
	})
}

func (h *SecurityHandler) writeJSONResponse(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.WithError(err).Error("Failed to encode response")
	}
}
