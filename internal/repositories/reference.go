package repositories

import (
	"context"
	"fmt"

	"site-mass-upload/internal/database"
	"site-mass-upload/internal/models"
	"site-mass-upload/internal/registry"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// referenceRepository implements ReferenceRepository
type referenceRepository struct {
	db      *database.Connection
	columns map[string]map[string]bool
}

// NewReferenceRepository creates a repository that only queries lookup targets declared in reg
func NewReferenceRepository(db *database.Connection, reg *registry.Registry) ReferenceRepository {
	columns := make(map[string]map[string]bool)
	for _, table := range reg.ListImportable() {
		for _, f := range table.Fields {
			if f.Type != models.FieldTypeLookup {
				continue
			}
			column := f.LookupColumn
			if column == "" {
				column = "name"
			}
			if columns[f.LookupTable] == nil {
				columns[f.LookupTable] = map[string]bool{}
			}
			columns[f.LookupTable][column] = true
		}
	}
	return &referenceRepository{db: db, columns: columns}
}

// FindIDByName resolves a name case-insensitively. It returns gorm.ErrRecordNotFound
// when nothing matches and ErrAmbiguousReference when several records do.
func (r *referenceRepository) FindIDByName(ctx context.Context, table, column, name string) (string, error) {
	if !r.columns[table][column] {
		return "", fmt.Errorf("%w: %s.%s", ErrUnknownTable, table, column)
	}

	var ids []string
	err := r.db.WithContext(ctx).
		Table(table).
		Where("deleted_at IS NULL").
		Where(clause.Expr{SQL: "LOWER(?) = LOWER(?)", Vars: []interface{}{clause.Column{Name: column}, name}}).
		Limit(2).
		Pluck("id", &ids).Error
	if err != nil {
		return "", err
	}

	switch len(ids) {
	case 0:
		return "", gorm.ErrRecordNotFound
	case 1:
		return ids[0], nil
	default:
		return "", ErrAmbiguousReference
	}
}
