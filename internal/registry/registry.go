package registry

import (
	_ "embed"
	"errors"
	"fmt"
	"regexp"
	"sync"

	"site-mass-upload/internal/models"

	"gopkg.in/yaml.v2"
)

//go:embed tables.yaml
var defaultTables []byte

// ErrUnknownEntity is returned when no table config exists for an entity name
var ErrUnknownEntity = errors.New("unknown entity")

// Registry holds the immutable set of importable table configs
type Registry struct {
	order  []string
	tables map[string]*models.TableConfig
}

type document struct {
	Tables []models.TableConfig `yaml:"tables"`
}

// New builds a registry from YAML table definitions
func New(data []byte) (*Registry, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse table definitions: %w", err)
	}

	validator := models.NewValidationService()
	r := &Registry{tables: make(map[string]*models.TableConfig, len(doc.Tables))}

	for i := range doc.Tables {
		table := doc.Tables[i]
		if err := validator.ValidateStruct(&table); err != nil {
			return nil, fmt.Errorf("invalid table %q: %w", table.Name, err)
		}
		if _, exists := r.tables[table.Name]; exists {
			return nil, fmt.Errorf("duplicate table %q", table.Name)
		}
		if err := checkFields(&table); err != nil {
			return nil, fmt.Errorf("invalid table %q: %w", table.Name, err)
		}
		r.tables[table.Name] = &table
		r.order = append(r.order, table.Name)
	}

	for _, name := range r.order {
		for _, f := range r.tables[name].Fields {
			if f.Type != models.FieldTypeLookup {
				continue
			}
			if _, ok := r.tables[f.LookupTable]; !ok {
				return nil, fmt.Errorf("table %q field %q: lookup target %q is not registered", name, f.Name, f.LookupTable)
			}
		}
	}

	return r, nil
}

func checkFields(t *models.TableConfig) error {
	names := make(map[string]bool, len(t.Fields))
	headers := make(map[string]bool, len(t.Fields))
	for _, f := range t.Fields {
		if names[f.Name] {
			return fmt.Errorf("duplicate field %q", f.Name)
		}
		if headers[f.Header] {
			return fmt.Errorf("duplicate header %q", f.Header)
		}
		if f.Pattern != "" {
			if _, err := regexp.Compile(f.Pattern); err != nil {
				return fmt.Errorf("field %q has an invalid pattern: %w", f.Name, err)
			}
		}
		names[f.Name] = true
		headers[f.Header] = true
	}
	for _, key := range t.UpsertKey {
		if !names[key] {
			return fmt.Errorf("upsert key %q is not a field", key)
		}
	}
	return nil
}

var (
	defaultOnce     sync.Once
	defaultRegistry *Registry
	defaultErr      error
)

// Default returns the registry built from the embedded table definitions
func Default() (*Registry, error) {
	defaultOnce.Do(func() {
		defaultRegistry, defaultErr = New(defaultTables)
	})
	return defaultRegistry, defaultErr
}

// MustDefault is Default for callers that cannot continue without the registry
func MustDefault() *Registry {
	r, err := Default()
	if err != nil {
		panic(err)
	}
	return r
}

// Get returns a copy of the config for an entity
func (r *Registry) Get(entity string) (*models.TableConfig, bool) {
	t, ok := r.tables[entity]
	if !ok {
		return nil, false
	}
	return t.Clone(), true
}

// Lookup is Get with an error suitable for wrapping
func (r *Registry) Lookup(entity string) (*models.TableConfig, error) {
	t, ok := r.Get(entity)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownEntity, entity)
	}
	return t, nil
}

// ListImportable returns every entity that defines at least one field, in declaration order
func (r *Registry) ListImportable() []*models.TableConfig {
	var list []*models.TableConfig
	for _, name := range r.order {
		t := r.tables[name]
		if len(t.Fields) == 0 {
			continue
		}
		list = append(list, t.Clone())
	}
	return list
}
