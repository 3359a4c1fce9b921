package services

import (
	"context"

	"github.com/stretchr/testify/mock"

	"site-mass-upload/internal/models"
)

// MockReferenceRepository is a mock implementation of ReferenceRepository for testing
type MockReferenceRepository struct {
	mock.Mock
}

func (m *MockReferenceRepository) FindIDByName(ctx context.Context, table, column, name string) (string, error) {
	args := m.Called(ctx, table, column, name)
	return args.String(0), args.Error(1)
}

// MockRecordRepository is a mock implementation of RecordRepository for testing
type MockRecordRepository struct {
	mock.Mock
}

func (m *MockRecordRepository) FindIDByKey(ctx context.Context, table string, key map[string]interface{}) (string, bool, error) {
	args := m.Called(ctx, table, key)
	return args.String(0), args.Bool(1), args.Error(2)
}

func (m *MockRecordRepository) Insert(ctx context.Context, table string, record models.Record) (string, error) {
	args := m.Called(ctx, table, record)
	return args.String(0), args.Error(1)
}

func (m *MockRecordRepository) Update(ctx context.Context, table, id string, record models.Record) error {
	args := m.Called(ctx, table, id, record)
	return args.Error(0)
}

// MockImportRunRepository is a mock implementation of ImportRunRepository for testing
type MockImportRunRepository struct {
	mock.Mock
}

func (m *MockImportRunRepository) Create(ctx context.Context, run *models.ImportRun) error {
	args := m.Called(ctx, run)
	return args.Error(0)
}

func (m *MockImportRunRepository) GetByID(ctx context.Context, id string) (*models.ImportRun, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.ImportRun), args.Error(1)
}

func (m *MockImportRunRepository) ListRecent(ctx context.Context, entity string, limit int) ([]*models.ImportRun, error) {
	args := m.Called(ctx, entity, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.ImportRun), args.Error(1)
}

// fixtureResolver resolves names from a fixed table, the way tests substitute
// live reference data
type fixtureResolver struct {
	ids       map[string]string
	err       error
	refreshed []string
}

func (f *fixtureResolver) Resolve(ctx context.Context, table, column, name string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	if id, ok := f.ids[table+":"+normalizeName(name)]; ok {
		return id, nil
	}
	return "", ErrReferenceNotFound
}

func (f *fixtureResolver) Refresh(ctx context.Context, table string) error {
	f.refreshed = append(f.refreshed, table)
	return nil
}
