package metadata

import (
	"fmt"
	"regexp"
)

// Rules is the typed representation of a field's validation_rules map.
// Optional bounds use pointers so "absent" and "zero" stay distinct.
// Malformed rules are rejected at form-save time via Validate, so the
// submit path never has to second-guess them.
type Rules struct {
	MinLength       *int              `json:"min_length,omitempty"`
	MaxLength       *int              `json:"max_length,omitempty"`
	MinValue        *float64          `json:"min_value,omitempty"`
	MaxValue        *float64          `json:"max_value,omitempty"`
	Pattern         string            `json:"pattern,omitempty"`
	NoFutureDates   bool              `json:"no_future_dates,omitempty"`
	NoPastDates     bool              `json:"no_past_dates,omitempty"`
	CustomValidator string            `json:"custom_validator,omitempty"`
	ErrorMessages   map[string]string `json:"error_messages,omitempty"`
}

// Message returns the custom error message registered for the rule key,
// or the fallback when none is configured.
func (r Rules) Message(key, fallback string) string {
	if msg, ok := r.ErrorMessages[key]; ok && msg != "" {
		return msg
	}
	return fallback
}

// Empty reports whether no rule at all is configured.
func (r Rules) Empty() bool {
	return r.MinLength == nil && r.MaxLength == nil &&
		r.MinValue == nil && r.MaxValue == nil &&
		r.Pattern == "" && !r.NoFutureDates && !r.NoPastDates &&
		r.CustomValidator == "" && len(r.ErrorMessages) == 0
}

// Validate checks the rule set for internal coherence against the field
// type. validatorKnown reports whether a named custom validator is
// registered; unknown names are rejected here so they fail at
// configuration time rather than at submit time.
func (r Rules) Validate(fieldType FieldType, validatorKnown func(string) bool) []string {
	var issues []string

	if r.MinLength != nil && *r.MinLength < 0 {
		issues = append(issues, "min_length must not be negative")
	}
	if r.MaxLength != nil && *r.MaxLength < 0 {
		issues = append(issues, "max_length must not be negative")
	}
	if r.MinLength != nil && r.MaxLength != nil && *r.MinLength > *r.MaxLength {
		issues = append(issues, "min_length must not exceed max_length")
	}
	if (r.MinLength != nil || r.MaxLength != nil) && !fieldType.IsString() {
		issues = append(issues, fmt.Sprintf("length rules do not apply to %s fields", fieldType))
	}

	if r.MinValue != nil && r.MaxValue != nil && *r.MinValue > *r.MaxValue {
		issues = append(issues, "min_value must not exceed max_value")
	}
	if (r.MinValue != nil || r.MaxValue != nil) && !fieldType.IsNumeric() {
		issues = append(issues, fmt.Sprintf("value rules do not apply to %s fields", fieldType))
	}

	if (r.NoFutureDates || r.NoPastDates) && fieldType != TypeDate {
		issues = append(issues, fmt.Sprintf("date rules do not apply to %s fields", fieldType))
	}

	if r.Pattern != "" {
		if _, err := regexp.Compile(r.Pattern); err != nil {
			issues = append(issues, fmt.Sprintf("pattern does not compile: %v", err))
		}
	}

	if r.CustomValidator != "" && validatorKnown != nil && !validatorKnown(r.CustomValidator) {
		issues = append(issues, fmt.Sprintf("custom validator %q is not registered", r.CustomValidator))
	}

	return issues
}
