package schema

import (
	"testing"

	"dataentry-backend/internal/metadata"
)

func TestFingerprint_Deterministic(t *testing.T) {
	form := shiftForm()

	first := Fingerprint(form)
	second := Fingerprint(form)
	if first != second {
		t.Fatalf("fingerprint not stable: %s vs %s", first, second)
	}
	if len(first) != 64 {
		t.Fatalf("expected sha256 hex digest, got %q", first)
	}
}

func TestFingerprint_IgnoresFieldDeclarationOrder(t *testing.T) {
	a := shiftForm()
	b := shiftForm()
	b.Fields[0], b.Fields[1] = b.Fields[1], b.Fields[0]

	if Fingerprint(a) != Fingerprint(b) {
		t.Fatal("fingerprint should depend on field_order, not slice order")
	}
}

func TestFingerprint_ChangesWithSchema(t *testing.T) {
	base := Fingerprint(shiftForm())

	renamed := shiftForm()
	renamed.Fields[0].FieldName = "duration"
	if Fingerprint(renamed) == base {
		t.Fatal("expected rename to change fingerprint")
	}

	retyped := shiftForm()
	retyped.Fields[0].FieldType = metadata.TypeDecimal
	if Fingerprint(retyped) == base {
		t.Fatal("expected type change to change fingerprint")
	}

	// Label changes are cosmetic and must not move the fingerprint.
	relabeled := shiftForm()
	relabeled.Fields[0].FieldLabel = "Hours Worked"
	if Fingerprint(relabeled) != base {
		t.Fatal("expected label change to keep fingerprint")
	}
}
