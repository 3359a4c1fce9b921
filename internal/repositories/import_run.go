package repositories

import (
	"context"

	"site-mass-upload/internal/database"
	"site-mass-upload/internal/models"
)

// importRunRepository implements ImportRunRepository
type importRunRepository struct {
	db *database.Connection
}

// NewImportRunRepository creates a new import run repository
func NewImportRunRepository(db *database.Connection) ImportRunRepository {
	return &importRunRepository{db: db}
}

// Create stores an import run
func (r *importRunRepository) Create(ctx context.Context, run *models.ImportRun) error {
	return r.db.WithContext(ctx).Create(run).Error
}

// GetByID retrieves an import run by ID
func (r *importRunRepository) GetByID(ctx context.Context, id string) (*models.ImportRun, error) {
	var run models.ImportRun
	if err := r.db.WithContext(ctx).First(&run, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &run, nil
}

// ListRecent retrieves the latest runs, optionally for one entity
func (r *importRunRepository) ListRecent(ctx context.Context, entity string, limit int) ([]*models.ImportRun, error) {
	var runs []*models.ImportRun
	query := r.db.WithContext(ctx).Order("created_at DESC").Limit(limit)
	if entity != "" {
		query = query.Where("entity = ?", entity)
	}
	err := query.Find(&runs).Error
	return runs, err
}
