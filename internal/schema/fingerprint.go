package schema

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"dataentry-backend/internal/metadata"
)

// Fingerprint computes a deterministic hash over a form's structural
// schema: table name plus, per field in field_order, its name, type,
// required flag and order. Used by callers for change detection; never
// enforced internally. Stable across runs because the canonical JSON has
// sorted keys and stable field ordering.
func Fingerprint(form *metadata.FormConfig) string {
	type fieldSchema struct {
		Name     string `json:"name"`
		Order    int    `json:"order"`
		Required bool   `json:"required"`
		Type     string `json:"type"`
	}
	type formSchema struct {
		Fields    []fieldSchema `json:"fields"`
		TableName string        `json:"table_name"`
	}

	s := formSchema{TableName: form.TableName}
	for _, f := range form.OrderedFields() {
		s.Fields = append(s.Fields, fieldSchema{
			Name:     f.FieldName,
			Order:    f.FieldOrder,
			Required: f.IsRequired,
			Type:     string(f.FieldType),
		})
	}

	// encoding/json marshals struct fields in declaration order and map
	// keys sorted, so the byte stream is canonical.
	raw, _ := json.Marshal(s)
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}
