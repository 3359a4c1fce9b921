package models

import "strings"

// FieldType is the primitive type tag of an importable column
type FieldType string

const (
	FieldTypeString  FieldType = "string"
	FieldTypeNumber  FieldType = "number"
	FieldTypeDate    FieldType = "date"
	FieldTypeTime    FieldType = "time"
	FieldTypeBoolean FieldType = "boolean"
	FieldTypeEnum    FieldType = "enum"
	FieldTypeLookup  FieldType = "lookup"
)

// ContextRequirement names ambient context an entity needs before upload
type ContextRequirement string

const (
	ContextSite ContextRequirement = "site"
	ContextUser ContextRequirement = "user"
)

// FieldConfig describes one column of an importable entity
type FieldConfig struct {
	Name         string    `json:"name" yaml:"name" validate:"required"`
	Header       string    `json:"header" yaml:"header" validate:"required"`
	Required     bool      `json:"required" yaml:"required"`
	Type         FieldType `json:"type" yaml:"type" validate:"required,oneof=string number date time boolean enum lookup"`
	EnumValues   []string  `json:"enum_values,omitempty" yaml:"enum_values" validate:"required_if=Type enum"`
	LookupTable  string    `json:"lookup_table,omitempty" yaml:"lookup_table" validate:"required_if=Type lookup"`
	LookupColumn string    `json:"lookup_column,omitempty" yaml:"lookup_column"`
	Default      *string   `json:"default,omitempty" yaml:"default"`
	Pattern      string    `json:"pattern,omitempty" yaml:"pattern"`
	MaxLength    int       `json:"max_length,omitempty" yaml:"max_length" validate:"gte=0"`
	Description  string    `json:"description,omitempty" yaml:"description"`
}

// TableConfig is the declarative description of one importable entity
type TableConfig struct {
	Name            string               `json:"name" yaml:"name" validate:"required"`
	DisplayName     string               `json:"display_name" yaml:"display_name" validate:"required"`
	Description     string               `json:"description,omitempty" yaml:"description"`
	RequiredContext []ContextRequirement `json:"required_context,omitempty" yaml:"required_context" validate:"dive,oneof=site user"`
	UpsertKey       []string             `json:"upsert_key,omitempty" yaml:"upsert_key"`
	Fields          []FieldConfig        `json:"fields" yaml:"fields" validate:"dive"`
	ExampleRow      map[string]string    `json:"example_row,omitempty" yaml:"example_row"`
}

// Requires reports whether the entity needs the given ambient context
func (t *TableConfig) Requires(req ContextRequirement) bool {
	for _, r := range t.RequiredContext {
		if r == req {
			return true
		}
	}
	return false
}

// HasUpsertKey reports whether rows of this entity are upserted rather than inserted
func (t *TableConfig) HasUpsertKey() bool {
	return len(t.UpsertKey) > 0
}

// GetField returns the field with the given destination name
func (t *TableConfig) GetField(name string) *FieldConfig {
	for i := range t.Fields {
		if t.Fields[i].Name == name {
			return &t.Fields[i]
		}
	}
	return nil
}

// FieldByHeader resolves a source column to a field. Matching is case-insensitive on
// the configured header first, then on the destination name.
func (t *TableConfig) FieldByHeader(header string) *FieldConfig {
	h := strings.TrimSpace(header)
	for i := range t.Fields {
		if strings.EqualFold(t.Fields[i].Header, h) {
			return &t.Fields[i]
		}
	}
	for i := range t.Fields {
		if strings.EqualFold(t.Fields[i].Name, h) {
			return &t.Fields[i]
		}
	}
	return nil
}

// Headers returns the source headers in declaration order
func (t *TableConfig) Headers() []string {
	headers := make([]string, len(t.Fields))
	for i, f := range t.Fields {
		headers[i] = f.Header
	}
	return headers
}

// Clone returns a deep copy so callers cannot mutate registry state
func (t *TableConfig) Clone() *TableConfig {
	if t == nil {
		return nil
	}
	c := *t
	c.RequiredContext = append([]ContextRequirement(nil), t.RequiredContext...)
	c.UpsertKey = append([]string(nil), t.UpsertKey...)
	c.Fields = make([]FieldConfig, len(t.Fields))
	for i, f := range t.Fields {
		f.EnumValues = append([]string(nil), f.EnumValues...)
		if f.Default != nil {
			d := *f.Default
			f.Default = &d
		}
		c.Fields[i] = f
	}
	if t.ExampleRow != nil {
		c.ExampleRow = make(map[string]string, len(t.ExampleRow))
		for k, v := range t.ExampleRow {
			c.ExampleRow[k] = v
		}
	}
	return &c
}
