package repositories

import (
	"context"
	"errors"

	"site-mass-upload/internal/models"
)

var (
	// ErrUnknownTable is returned for tables the registry does not declare
	ErrUnknownTable = errors.New("table is not importable")
	// ErrAmbiguousReference is returned when a name matches more than one record
	ErrAmbiguousReference = errors.New("name matches more than one record")
)

// ReferenceRepository resolves human readable names to record identifiers
type ReferenceRepository interface {
	FindIDByName(ctx context.Context, table, column, name string) (string, error)
}

// RecordRepository writes materialized rows into destination tables
type RecordRepository interface {
	FindIDByKey(ctx context.Context, table string, key map[string]interface{}) (string, bool, error)
	Insert(ctx context.Context, table string, record models.Record) (string, error)
	Update(ctx context.Context, table, id string, record models.Record) error
}

// ImportRunRepository defines the interface for import run audit records
type ImportRunRepository interface {
	Create(ctx context.Context, run *models.ImportRun) error
	GetByID(ctx context.Context, id string) (*models.ImportRun, error)
	ListRecent(ctx context.Context, entity string, limit int) ([]*models.ImportRun, error)
}
