package repositories

import (
	"context"
	"fmt"
	"sort"
	"time"

	"site-mass-upload/internal/database"
	"site-mass-upload/internal/models"
	"site-mass-upload/internal/registry"

	"github.com/google/uuid"
	"gorm.io/gorm/clause"
)

// recordRepository implements RecordRepository over the registry's tables.
// tables maps each importable table to its free-text columns.
type recordRepository struct {
	db     *database.Connection
	tables map[string]map[string]bool
}

// NewRecordRepository creates a new record repository
func NewRecordRepository(db *database.Connection, reg *registry.Registry) RecordRepository {
	tables := make(map[string]map[string]bool)
	for _, t := range reg.ListImportable() {
		text := make(map[string]bool)
		for _, f := range t.Fields {
			if f.Type == models.FieldTypeString {
				text[f.Name] = true
			}
		}
		tables[t.Name] = text
	}
	return &recordRepository{db: db, tables: tables}
}

func (r *recordRepository) checkTable(table string) error {
	if _, ok := r.tables[table]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownTable, table)
	}
	return nil
}

// FindIDByKey returns the id of the live record matching every key column.
// Free-text columns compare case-insensitively; nil matches NULL.
func (r *recordRepository) FindIDByKey(ctx context.Context, table string, key map[string]interface{}) (string, bool, error) {
	if err := r.checkTable(table); err != nil {
		return "", false, err
	}

	columns := make([]string, 0, len(key))
	for column := range key {
		columns = append(columns, column)
	}
	sort.Strings(columns)

	query := r.db.WithContext(ctx).Table(table).Where("deleted_at IS NULL")
	text := r.tables[table]
	for _, column := range columns {
		value := key[column]
		if text[column] && value != nil {
			query = query.Where(clause.Expr{SQL: "LOWER(?) = LOWER(?)", Vars: []interface{}{clause.Column{Name: column}, value}})
			continue
		}
		query = query.Where(clause.Eq{Column: clause.Column{Name: column}, Value: value})
	}

	var ids []string
	if err := query.Limit(1).Pluck("id", &ids).Error; err != nil {
		return "", false, err
	}
	if len(ids) == 0 {
		return "", false, nil
	}
	return ids[0], true, nil
}

// Insert creates a record under a freshly generated id. Any id in the record
// is replaced.
func (r *recordRepository) Insert(ctx context.Context, table string, record models.Record) (string, error) {
	if err := r.checkTable(table); err != nil {
		return "", err
	}

	values := make(map[string]interface{}, len(record)+2)
	for k, v := range record {
		values[k] = v
	}
	id := uuid.NewString()
	values["id"] = id
	delete(values, "deleted_at")
	if _, ok := values["updated_at"]; !ok {
		if createdAt, ok := values["created_at"]; ok {
			values["updated_at"] = createdAt
		} else {
			values["updated_at"] = time.Now().UTC()
		}
	}

	if err := r.db.WithContext(ctx).Table(table).Create(values).Error; err != nil {
		return "", err
	}
	return id, nil
}

// Update overwrites the supplied columns of an existing record. Identity and
// creation audit columns are never overwritten.
func (r *recordRepository) Update(ctx context.Context, table, id string, record models.Record) error {
	if err := r.checkTable(table); err != nil {
		return err
	}

	values := make(map[string]interface{}, len(record))
	for k, v := range record {
		switch k {
		case "id", "created_at", "created_by", "created_by_name", "deleted_at":
			continue
		}
		values[k] = v
	}
	values["updated_at"] = time.Now().UTC()

	return r.db.WithContext(ctx).Table(table).Where("id = ?", id).Updates(values).Error
}
