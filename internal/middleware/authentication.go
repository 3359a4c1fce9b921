package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"site-mass-upload/internal/logger"
	"site-mass-upload/internal/models"
	"site-mass-upload/internal/services"
)

// ContextKey is a type for context keys to avoid collisions
type ContextKey string

const (
	// CallerContextKey is the context key for the authenticated caller
	CallerContextKey ContextKey = "caller"
)

// AuthenticationMiddleware resolves bearer tokens into caller context
type AuthenticationMiddleware struct {
	logger  *logger.Logger
	authSvc services.AuthenticationService
}

// NewAuthenticationMiddleware creates a new authentication middleware
func NewAuthenticationMiddleware(logger *logger.Logger, authSvc services.AuthenticationService) *AuthenticationMiddleware {
	return &AuthenticationMiddleware{
		logger:  logger,
		authSvc: authSvc,
	}
}

// RequireJWT middleware that requires JWT authentication
func (m *AuthenticationMiddleware) RequireJWT(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			unauthorized(w, "Authorization header required")
			return
		}

		const bearerPrefix = "Bearer "
		if len(authHeader) <= len(bearerPrefix) || !strings.EqualFold(authHeader[:len(bearerPrefix)], bearerPrefix) {
			unauthorized(w, "Bearer token required")
			return
		}

		caller, err := m.authSvc.ValidateToken(r.Context(), strings.TrimSpace(authHeader[len(bearerPrefix):]))
		if err != nil {
			m.logger.WithError(err).
				WithField("path", r.URL.Path).
				Warn("JWT validation failed")
			unauthorized(w, err.Error())
			return
		}

		next.ServeHTTP(w, r.WithContext(WithCaller(r.Context(), caller)))
	})
}

// WithCaller stores the caller in a context
func WithCaller(ctx context.Context, caller *models.CallerContext) context.Context {
	return context.WithValue(ctx, CallerContextKey, caller)
}

// CallerFromContext returns the authenticated caller, if any
func CallerFromContext(ctx context.Context) (*models.CallerContext, bool) {
	caller, ok := ctx.Value(CallerContextKey).(*models.CallerContext)
	return caller, ok && caller != nil
}

func unauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("WWW-Authenticate", `Bearer realm="mass-upload"`)
	w.WriteHeader(http.StatusUnauthorized)
	json.NewEncoder(w).Encode(map[string]string{"error": "unauthorized", "message": message})
}
