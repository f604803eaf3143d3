package metadata

import (
	"strings"
	"testing"
)

func TestValidIdentifier(t *testing.T) {
	valid := []string{"a", "shift_log", "Table2", "_hidden", "a1_b2"}
	for _, s := range valid {
		if !ValidIdentifier(s) {
			t.Fatalf("expected %q to be valid", s)
		}
	}

	invalid := []string{
		"",
		"1table",
		"shift-log",
		"shift log",
		"drop;table",
		`x"y`,
		"café",
		strings.Repeat("a", 64),
	}
	for _, s := range invalid {
		if ValidIdentifier(s) {
			t.Fatalf("expected %q to be invalid", s)
		}
	}

	// 63 chars is the boundary.
	if !ValidIdentifier(strings.Repeat("a", 63)) {
		t.Fatal("expected 63-char identifier to be valid")
	}
}

func TestColumnType(t *testing.T) {
	cases := map[FieldType]string{
		TypeText:     "VARCHAR(255)",
		TypeTextarea: "TEXT",
		TypeNumber:   "NUMERIC(10, 2)",
		TypeDecimal:  "NUMERIC(10, 2)",
		TypeInteger:  "INTEGER",
		TypeDate:     "DATE",
		TypeDatetime: "TIMESTAMP",
		TypeTime:     "TIME",
		TypeBoolean:  "BOOLEAN",
		TypeCheckbox: "BOOLEAN",
		TypeSelect:   "VARCHAR(100)",
	}
	for ft, want := range cases {
		if got := ft.ColumnType(); got != want {
			t.Fatalf("%s: expected %s, got %s", ft, want, got)
		}
	}
}

func TestDefaultLiteral(t *testing.T) {
	cases := []struct {
		fieldType FieldType
		value     string
		want      string
	}{
		{TypeText, "draft", "'draft'"},
		{TypeText, "o'brien", "'o''brien'"},
		{TypeSelect, "open", "'open'"},
		{TypeBoolean, "true", "TRUE"},
		{TypeInteger, "42", "42"},
		{TypeNumber, "3.5", "3.5"},
		{TypeDate, "2024-01-01", ""},
		{TypeText, "", ""},
	}
	for _, tc := range cases {
		f := FormField{FieldType: tc.fieldType, DefaultValue: tc.value}
		if got := f.DefaultLiteral(); got != tc.want {
			t.Fatalf("%s %q: expected %q, got %q", tc.fieldType, tc.value, tc.want, got)
		}
	}
}

func TestOrderedFields(t *testing.T) {
	form := FormConfig{
		Fields: []FormField{
			{FieldName: "c", FieldOrder: 3},
			{FieldName: "a", FieldOrder: 1},
			{FieldName: "b", FieldOrder: 2},
		},
	}
	ordered := form.OrderedFields()
	if ordered[0].FieldName != "a" || ordered[1].FieldName != "b" || ordered[2].FieldName != "c" {
		t.Fatalf("unexpected order: %v", ordered)
	}
	// The original slice is untouched.
	if form.Fields[0].FieldName != "c" {
		t.Fatal("OrderedFields mutated the receiver")
	}
}
