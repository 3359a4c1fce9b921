package security

import (
	"fmt"
	"strings"
)

// JWTConfig holds JWT configuration
type JWTConfig struct {
	Secret     string `json:"secret"`
	Expiration int    `json:"expiration"` // in seconds
	Algorithm  string `json:"algorithm"`
}

// SecurityConfigValidator validates security configurations
type SecurityConfigValidator struct {
	allowedJWTAlgorithms []string
}

// NewSecurityConfigValidator creates a new security config validator
func NewSecurityConfigValidator() *SecurityConfigValidator {
	return &SecurityConfigValidator{
		allowedJWTAlgorithms: []string{"HS256", "HS384", "HS512"},
	}
}

// ValidateJWTConfig validates JWT configuration for security
func (v *SecurityConfigValidator) ValidateJWTConfig(config JWTConfig) error {
	if len(config.Secret) < 32 {
		return fmt.Errorf("JWT secret must be at least 32 characters long")
	}

	weakSecrets := []string{"secret", "change-me", "change-this", "default", "password", "123456", "testing"}
	lowerSecret := strings.ToLower(config.Secret)
	for _, weak := range weakSecrets {
		if strings.Contains(lowerSecret, weak) {
			return fmt.Errorf("JWT secret appears to contain weak or default values")
		}
	}

	if !contains(v.allowedJWTAlgorithms, config.Algorithm) {
		return fmt.Errorf("JWT algorithm '%s' is not allowed. Allowed algorithms: %s",
			config.Algorithm, strings.Join(v.allowedJWTAlgorithms, ", "))
	}

	if config.Expiration <= 0 {
		return fmt.Errorf("JWT expiration must be greater than 0")
	}
	// a site shift is the longest useful session
	if config.Expiration > 86400 {
		return fmt.Errorf("JWT expiration should not exceed 24 hours")
	}

	return nil
}

// ValidateCORSConfig validates CORS configuration for security
func (v *SecurityConfigValidator) ValidateCORSConfig(config CORSConfig) error {
	for _, origin := range config.AllowedOrigins {
		if origin == "*" {
			return fmt.Errorf("wildcard origin '*' is not allowed with credentials")
		}
		if !strings.HasPrefix(origin, "http://") && !strings.HasPrefix(origin, "https://") {
			return fmt.Errorf("origin '%s' must include protocol (http:// or https://)", origin)
		}
		if strings.HasPrefix(origin, "http://") && !strings.Contains(origin, "localhost") {
			return fmt.Errorf("HTTP origins are not recommended for production. Use HTTPS instead: %s", origin)
		}
	}

	allowedMethods := map[string]bool{
		"GET": true, "POST": true, "PUT": true, "DELETE": true,
		"PATCH": true, "HEAD": true, "OPTIONS": true,
	}
	for _, method := range config.AllowedMethods {
		if !allowedMethods[strings.ToUpper(method)] {
			return fmt.Errorf("HTTP method '%s' is not allowed", method)
		}
	}

	return nil
}

// ValidateRateLimitConfig validates rate limiting configuration
func (v *SecurityConfigValidator) ValidateRateLimitConfig(maxRequests int, windowSeconds int) error {
	if maxRequests <= 0 {
		return fmt.Errorf("max requests must be greater than 0")
	}
	if maxRequests > 10000 {
		return fmt.Errorf("max requests should not exceed 10000 for performance reasons")
	}
	if windowSeconds <= 0 {
		return fmt.Errorf("window seconds must be greater than 0")
	}
	if windowSeconds > 3600 {
		return fmt.Errorf("window should not exceed 1 hour")
	}
	return nil
}

// contains checks if a slice contains a string
func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}
