// Package security carries the HTTP hardening layer in front of the
// mass-upload API: response headers, CORS for the browser wizard and
// per-client rate limiting.
package security

import (
	"net/http"
	"time"

	"site-mass-upload/internal/config"
	"site-mass-upload/internal/logger"
)

// SecurityManager manages all security-related functionality
type SecurityManager struct {
	middleware      *SecurityMiddleware
	configValidator *SecurityConfigValidator
	rateLimiter     *RateLimiter
	cfg             *config.Config
	logger          *logger.Logger
}

// NewSecurityManager creates a new security manager
func NewSecurityManager(logger *logger.Logger, cfg *config.Config) *SecurityManager {
	rateLimiter := NewRateLimiter(cfg.Security.RateLimitRequests,
		time.Duration(cfg.Security.RateLimitWindow)*time.Second)

	cors := CORSConfig{
		AllowedOrigins: cfg.Security.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type", "Authorization"},
		MaxAge:         86400,
	}

	return &SecurityManager{
		middleware:      NewSecurityMiddleware(cors, rateLimiter),
		configValidator: NewSecurityConfigValidator(),
		rateLimiter:     rateLimiter,
		cfg:             cfg,
		logger:          logger,
	}
}

// GetSecurityMiddleware returns the security middleware stack
func (sm *SecurityManager) GetSecurityMiddleware() []func(http.Handler) http.Handler {
	return []func(http.Handler) http.Handler{
		sm.middleware.SecurityHeaders,
		sm.middleware.CORS,
		sm.middleware.RateLimit,
	}
}

// ValidateConfig checks the security-relevant configuration and returns every problem found
func (sm *SecurityManager) ValidateConfig() []error {
	var problems []error

	if err := sm.configValidator.ValidateJWTConfig(JWTConfig{
		Secret:     sm.cfg.Auth.JWTSecret,
		Expiration: sm.cfg.Auth.TokenTTL,
		Algorithm:  "HS256",
	}); err != nil {
		problems = append(problems, err)
	}
	if err := sm.configValidator.ValidateCORSConfig(sm.middleware.corsConfig); err != nil {
		problems = append(problems, err)
	}
	if err := sm.configValidator.ValidateRateLimitConfig(sm.cfg.Security.RateLimitRequests, sm.cfg.Security.RateLimitWindow); err != nil {
		problems = append(problems, err)
	}

	return problems
}

// LogConfigProblems logs each configuration problem as a warning
func (sm *SecurityManager) LogConfigProblems() {
	for _, err := range sm.ValidateConfig() {
		sm.logger.WithError(err).Warn("Insecure configuration")
	}
}

// StartCleanup runs idle-bucket cleanup until stop is closed
func (sm *SecurityManager) StartCleanup(stop <-chan struct{}) {
	go sm.rateLimiter.Run(5*time.Minute, stop)
}

// GetRateLimitStats returns rate limiting statistics
func (sm *SecurityManager) GetRateLimitStats() map[string]interface{} {
	return sm.rateLimiter.GetStats()
}
