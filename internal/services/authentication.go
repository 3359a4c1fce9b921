package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"site-mass-upload/internal/config"
	"site-mass-upload/internal/logger"
	"site-mass-upload/internal/models"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")
)

// JWTClaims represents the JWT token claims
type JWTClaims struct {
	CallerName string `json:"caller_name,omitempty"`
	SiteID     string `json:"site_id,omitempty"`
	jwt.RegisteredClaims
}

// authenticationService implements AuthenticationService
type authenticationService struct {
	logger    *logger.Logger
	jwtSecret []byte
	issuer    string
	ttl       time.Duration
	now       func() time.Time
}

// NewAuthenticationService creates a new authentication service
func NewAuthenticationService(logger *logger.Logger, cfg *config.Config) AuthenticationService {
	ttl := time.Duration(cfg.Auth.TokenTTL) * time.Second
	if ttl <= 0 {
		ttl = 8 * time.Hour
	}

	return &authenticationService{
		logger:    logger,
		jwtSecret: []byte(cfg.Auth.JWTSecret),
		issuer:    cfg.Auth.Issuer,
		ttl:       ttl,
		now:       time.Now,
	}
}

// GenerateToken generates a JWT token carrying the caller context
func (s *authenticationService) GenerateToken(ctx context.Context, caller *models.CallerContext) (string, error) {
	if caller == nil || caller.CallerID == "" {
		return "", fmt.Errorf("%w: caller id", ErrMissingContext)
	}

	s.logger.WithCaller(caller.CallerID).
		WithField("site_id", caller.SiteID).
		Info("Generating caller token")

	now := s.now()
	claims := JWTClaims{
		CallerName: caller.CallerName,
		SiteID:     caller.SiteID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    s.issuer,
			Subject:   caller.CallerID,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(s.jwtSecret)
	if err != nil {
		s.logger.WithCaller(caller.CallerID).
			WithError(err).Error("Failed to sign JWT token")
		return "", fmt.Errorf("failed to sign token: %w", err)
	}

	return tokenString, nil
}

// ValidateToken validates a JWT token and returns the caller it was issued to
func (s *authenticationService) ValidateToken(ctx context.Context, tokenString string) (*models.CallerContext, error) {
	if tokenString == "" {
		return nil, ErrInvalidToken
	}

	token, err := jwt.ParseWithClaims(tokenString, &JWTClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.jwtSecret, nil
	}, jwt.WithTimeFunc(s.now), jwt.WithIssuer(s.issuer))

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		s.logger.WithError(err).Warn("Failed to parse JWT token")
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*JWTClaims)
	if !ok || !token.Valid || claims.Subject == "" {
		return nil, ErrInvalidToken
	}

	return &models.CallerContext{
		CallerID:   claims.Subject,
		CallerName: claims.CallerName,
		SiteID:     claims.SiteID,
	}, nil
}
