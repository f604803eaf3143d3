package metadata

import (
	"sort"
	"time"
)

// FormConfig is the logical definition of a data-entry form and its
// backing table. Ownership (CreatedBy) is permanent; TableName is
// immutable once the physical table has been created.
type FormConfig struct {
	ID               int64       `json:"id"`
	Name             string      `json:"name"`
	Title            string      `json:"title"`
	Description      string      `json:"description"`
	TableName        string      `json:"table_name"`
	IsActive         bool        `json:"is_active"`
	AllowEdit        bool        `json:"allow_edit"`
	AllowDelete      bool        `json:"allow_delete"`
	CreatedBy        string      `json:"created_by"`
	AllowedRoleNames []string    `json:"allowed_role_names"`
	LocationID       *string     `json:"location_id"`
	CreatedAt        time.Time   `json:"created_at"`
	UpdatedAt        time.Time   `json:"updated_at"`
	Fields           []FormField `json:"fields,omitempty"`
}

// FormField is one column specification within a form. FieldName becomes
// a physical column name and must satisfy ValidIdentifier.
type FormField struct {
	ID           int64     `json:"id"`
	FormID       int64     `json:"form_id"`
	FieldName    string    `json:"field_name"`
	FieldLabel   string    `json:"field_label"`
	FieldType    FieldType `json:"field_type"`
	FieldOrder   int       `json:"field_order"`
	IsRequired   bool      `json:"is_required"`
	DefaultValue string    `json:"default_value,omitempty"`
	Placeholder  string    `json:"placeholder,omitempty"`
	HelpText     string    `json:"help_text,omitempty"`
	Rules        Rules     `json:"validation_rules"`
	Options      []Option  `json:"options"`
}

// Option is one entry of a select field's declared option set.
type Option struct {
	Value string `json:"value"`
	Label string `json:"label"`
}

// OrderedFields returns the fields sorted by FieldOrder. The receiver's
// slice is not modified.
func (f *FormConfig) OrderedFields() []FormField {
	fields := make([]FormField, len(f.Fields))
	copy(fields, f.Fields)
	sort.SliceStable(fields, func(i, j int) bool {
		return fields[i].FieldOrder < fields[j].FieldOrder
	})
	return fields
}

// GetField returns a pointer to the field with the given name, or nil.
func (f *FormConfig) GetField(name string) *FormField {
	for i := range f.Fields {
		if f.Fields[i].FieldName == name {
			return &f.Fields[i]
		}
	}
	return nil
}

// HasField returns true if the form declares a field with the given name.
func (f *FormConfig) HasField(name string) bool {
	return f.GetField(name) != nil
}

// FieldNames returns all declared field names in declaration order.
func (f *FormConfig) FieldNames() []string {
	names := make([]string, len(f.Fields))
	for i, fld := range f.Fields {
		names[i] = fld.FieldName
	}
	return names
}

// OptionValues returns the declared option values of a select field.
func (f *FormField) OptionValues() []string {
	values := make([]string, 0, len(f.Options))
	for _, o := range f.Options {
		values = append(values, o.Value)
	}
	return values
}
