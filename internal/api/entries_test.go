package api

import (
	"testing"

	"github.com/stretchr/testify/require"

	"dataentry-backend/internal/metadata"
	"dataentry-backend/internal/validation"
)

func numericForm() *metadata.FormConfig {
	return &metadata.FormConfig{
		ID: 7, Name: "expenses", TableName: "fd_expenses",
		Fields: []metadata.FormField{
			{FieldName: "amount", FieldLabel: "Amount", FieldType: metadata.TypeNumber, IsRequired: true},
			{FieldName: "note", FieldLabel: "Note", FieldType: metadata.TypeText},
		},
	}
}

// Stored NUMERIC columns come back from the database as strings. A
// partial update that leaves them untouched must still validate.
func TestMergeEntry_StoredNumericStringRevalidates(t *testing.T) {
	form := numericForm()
	current := map[string]any{"amount": "30.00", "note": "old"}
	values := map[string]any{"note": "new"}

	merged := mergeEntry(form, current, values)
	require.Equal(t, 30.0, merged["amount"])
	require.Equal(t, "new", merged["note"])

	engine := validation.NewEngine(nil)
	require.Empty(t, engine.ValidateForm(form, merged))
}

func TestMergeEntry_RequestValuesWinOverStored(t *testing.T) {
	form := numericForm()
	current := map[string]any{"amount": "30.00"}
	values := map[string]any{"amount": 12.5}

	merged := mergeEntry(form, current, values)
	require.Equal(t, 12.5, merged["amount"])
}

func TestStoredValue_LeavesNonNumericsAlone(t *testing.T) {
	text := metadata.FormField{FieldName: "note", FieldType: metadata.TypeText}
	require.Equal(t, "30.00", storedValue(text, "30.00"))

	num := metadata.FormField{FieldName: "amount", FieldType: metadata.TypeDecimal}
	require.Equal(t, 4.5, storedValue(num, "4.50"))
	// Unparseable stored values pass through and fail type check later.
	require.Equal(t, "n/a", storedValue(num, "n/a"))
	require.Equal(t, 3.0, storedValue(num, 3.0))
}
