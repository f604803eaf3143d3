package metadata

import "testing"

func rintp(n int) *int           { return &n }
func rfloatp(f float64) *float64 { return &f }

func TestRulesValidate_Coherence(t *testing.T) {
	known := func(name string) bool { return name == "validate_shift_duration" }

	// Well-formed rules produce no issues.
	ok := Rules{MinLength: rintp(1), MaxLength: rintp(10), Pattern: "[a-z]+"}
	if issues := ok.Validate(TypeText, known); len(issues) != 0 {
		t.Fatalf("expected no issues, got %v", issues)
	}

	// Inverted bounds.
	bad := Rules{MinLength: rintp(10), MaxLength: rintp(1)}
	if issues := bad.Validate(TypeText, known); len(issues) != 1 {
		t.Fatalf("expected inverted length issue, got %v", issues)
	}
	bad = Rules{MinValue: rfloatp(10), MaxValue: rfloatp(1)}
	if issues := bad.Validate(TypeNumber, known); len(issues) != 1 {
		t.Fatalf("expected inverted value issue, got %v", issues)
	}

	// Rules on inapplicable types.
	bad = Rules{MinLength: rintp(1)}
	if issues := bad.Validate(TypeNumber, known); len(issues) != 1 {
		t.Fatalf("expected length-on-number issue, got %v", issues)
	}
	bad = Rules{MinValue: rfloatp(1)}
	if issues := bad.Validate(TypeText, known); len(issues) != 1 {
		t.Fatalf("expected value-on-text issue, got %v", issues)
	}
	bad = Rules{NoFutureDates: true}
	if issues := bad.Validate(TypeText, known); len(issues) != 1 {
		t.Fatalf("expected date-rule-on-text issue, got %v", issues)
	}
}

func TestRulesValidate_PatternAndValidator(t *testing.T) {
	known := func(name string) bool { return name == "validate_shift_duration" }

	bad := Rules{Pattern: "("}
	if issues := bad.Validate(TypeText, known); len(issues) != 1 {
		t.Fatalf("expected pattern compile issue, got %v", issues)
	}

	bad = Rules{CustomValidator: "validate_ghost"}
	if issues := bad.Validate(TypeNumber, known); len(issues) != 1 {
		t.Fatalf("expected unregistered validator issue, got %v", issues)
	}
	ok := Rules{CustomValidator: "validate_shift_duration"}
	if issues := ok.Validate(TypeNumber, known); len(issues) != 0 {
		t.Fatalf("expected registered validator to pass, got %v", issues)
	}
}

func TestRulesMessage(t *testing.T) {
	r := Rules{ErrorMessages: map[string]string{"min_length": "Too short"}}
	if got := r.Message("min_length", "fallback"); got != "Too short" {
		t.Fatalf("expected override, got %s", got)
	}
	if got := r.Message("max_length", "fallback"); got != "fallback" {
		t.Fatalf("expected fallback, got %s", got)
	}
}
