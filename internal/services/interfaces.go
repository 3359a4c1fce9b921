package services

import (
	"context"
	"errors"
	"time"

	"site-mass-upload/internal/models"
)

var (
	// ErrReferenceNotFound is returned when a lookup name matches no record
	ErrReferenceNotFound = errors.New("reference not found")
	// ErrMissingContext is returned when an entity needs caller context that was not supplied
	ErrMissingContext = errors.New("missing required context")
	// ErrInvalidRequest wraps request bodies that fail struct validation
	ErrInvalidRequest = errors.New("invalid request")
)

// KeyValueStore is the storage behind the reference cache
type KeyValueStore interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	Delete(ctx context.Context, key string) error
	DeletePattern(ctx context.Context, pattern string) error
}

// ReferenceResolver maps lookup names to record identifiers
type ReferenceResolver interface {
	Resolve(ctx context.Context, table, column, name string) (string, error)
	Refresh(ctx context.Context, table string) error
}

// AuthenticationService issues and validates caller tokens
type AuthenticationService interface {
	GenerateToken(ctx context.Context, caller *models.CallerContext) (string, error)
	ValidateToken(ctx context.Context, token string) (*models.CallerContext, error)
}

// RevalidationService re-runs validation against live reference data
type RevalidationService interface {
	Revalidate(ctx context.Context, req *models.RevalidateRequest) (*models.RevalidateResponse, error)
}

// ImportService persists materialized rows and keeps a record of each run
type ImportService interface {
	Import(ctx context.Context, req *models.ImportRequest) (*models.ImportResponse, error)
	GetRun(ctx context.Context, id string) (*models.ImportRun, error)
	ListRuns(ctx context.Context, entity string, limit int) ([]*models.ImportRun, error)
}
