package database

import (
	"fmt"

	"site-mass-upload/internal/models"

	"gorm.io/gorm"
)

// Migrator handles database migrations
type Migrator struct {
	db *Connection
}

// NewMigrator creates a new migrator instance
func NewMigrator(db *Connection) *Migrator {
	return &Migrator{db: db}
}

// destinationModels lists every table the importer writes to, parents first
func destinationModels() []interface{} {
	return []interface{}{
		&models.Site{},
		&models.Laborer{},
		&models.Attendance{},
		&models.Expense{},
		&models.Payment{},
		&models.Advance{},
		&models.MaterialPurchase{},
		&models.ImportRun{},
	}
}

// Up runs all pending migrations
func (m *Migrator) Up() error {
	return m.db.AutoMigrate(destinationModels()...)
}

// TableStatus reports whether one destination table exists
type TableStatus struct {
	Table  string
	Exists bool
}

// Status checks every destination table in migration order
func (m *Migrator) Status() ([]TableStatus, error) {
	var out []TableStatus
	for _, model := range destinationModels() {
		stmt := &gorm.Statement{DB: m.db.DB}
		if err := stmt.Parse(model); err != nil {
			return nil, fmt.Errorf("failed to parse model: %w", err)
		}
		out = append(out, TableStatus{
			Table:  stmt.Schema.Table,
			Exists: m.db.Migrator().HasTable(model),
		})
	}
	return out, nil
}

// Down rolls back all migrations (for testing purposes)
func (m *Migrator) Down() error {
	tables := destinationModels()
	for i, j := 0, len(tables)-1; i < j; i, j = i+1, j-1 {
		tables[i], tables[j] = tables[j], tables[i]
	}
	return m.db.Migrator().DropTable(tables...)
}
