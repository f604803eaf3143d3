package metadata

import (
	"fmt"
	"strings"
)

// FieldType enumerates the logical field types a form may declare.
type FieldType string

const (
	TypeText     FieldType = "text"
	TypeTextarea FieldType = "textarea"
	TypeNumber   FieldType = "number"
	TypeInteger  FieldType = "integer"
	TypeDecimal  FieldType = "decimal"
	TypeDate     FieldType = "date"
	TypeDatetime FieldType = "datetime"
	TypeTime     FieldType = "time"
	TypeBoolean  FieldType = "boolean"
	TypeSelect   FieldType = "select"
	TypeCheckbox FieldType = "checkbox"
)

// Valid reports whether the field type is a known enumeration member.
func (t FieldType) Valid() bool {
	switch t {
	case TypeText, TypeTextarea, TypeNumber, TypeInteger, TypeDecimal,
		TypeDate, TypeDatetime, TypeTime, TypeBoolean, TypeSelect, TypeCheckbox:
		return true
	}
	return false
}

// IsString reports whether values of the type are textual.
func (t FieldType) IsString() bool {
	return t == TypeText || t == TypeTextarea
}

// IsNumeric reports whether values of the type are numbers.
func (t FieldType) IsNumeric() bool {
	return t == TypeNumber || t == TypeInteger || t == TypeDecimal
}

// IsBoolean reports whether values of the type are booleans.
func (t FieldType) IsBoolean() bool {
	return t == TypeBoolean || t == TypeCheckbox
}

// ColumnType returns the PostgreSQL DDL type for this field type.
func (t FieldType) ColumnType() string {
	switch t {
	case TypeText:
		return "VARCHAR(255)"
	case TypeTextarea:
		return "TEXT"
	case TypeNumber, TypeDecimal:
		return "NUMERIC(10, 2)"
	case TypeInteger:
		return "INTEGER"
	case TypeDate:
		return "DATE"
	case TypeDatetime:
		return "TIMESTAMP"
	case TypeTime:
		return "TIME"
	case TypeBoolean, TypeCheckbox:
		return "BOOLEAN"
	case TypeSelect:
		return "VARCHAR(100)"
	default:
		return "VARCHAR(255)"
	}
}

// DefaultLiteral renders a textual default value as a DDL literal for the
// field's type: quoted for text/select, uppercased for booleans, bare for
// numerics. Returns "" when no DEFAULT clause should be emitted.
func (f *FormField) DefaultLiteral() string {
	if f.DefaultValue == "" {
		return ""
	}
	switch {
	case f.FieldType.IsString() || f.FieldType == TypeSelect:
		return "'" + strings.ReplaceAll(f.DefaultValue, "'", "''") + "'"
	case f.FieldType.IsBoolean():
		return strings.ToUpper(f.DefaultValue)
	case f.FieldType.IsNumeric():
		return f.DefaultValue
	default:
		return ""
	}
}

// maxIdentifierLen matches the PostgreSQL identifier limit.
const maxIdentifierLen = 63

// ValidIdentifier reports whether s is acceptable as a physical table or
// column name: letters, digits and underscores, not starting with a
// digit, bounded length. Identifiers are re-validated at every point of
// use before being interpolated into SQL.
func ValidIdentifier(s string) bool {
	if s == "" || len(s) > maxIdentifierLen {
		return false
	}
	for i, r := range s {
		switch {
		case r == '_',
			r >= 'a' && r <= 'z',
			r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9':
			if i == 0 {
				return false
			}
		default:
			return false
		}
	}
	return true
}

// CheckIdentifier returns a descriptive error for invalid identifiers.
func CheckIdentifier(s string) error {
	if !ValidIdentifier(s) {
		return fmt.Errorf("invalid identifier %q: must be letters, digits or underscores, not start with a digit, and be at most %d characters", s, maxIdentifierLen)
	}
	return nil
}
