package validation

import (
	"fmt"
	"log"
	"math"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"dataentry-backend/internal/metadata"
)

// compilePattern anchors the configured expression so the whole value
// must match, not just a prefix.
func compilePattern(pattern string) (*regexp.Regexp, error) {
	return regexp.Compile(`\A(?:` + pattern + `)\z`)
}

// Engine validates submitted value maps against form definitions. It is
// stateless apart from the injected validator registry.
type Engine struct {
	registry *Registry
}

func NewEngine(registry *Registry) *Engine {
	if registry == nil {
		registry = NewRegistry()
	}
	return &Engine{registry: registry}
}

// Registry exposes the injected registry, e.g. for form-save-time rule
// validation.
func (e *Engine) Registry() *Registry {
	return e.registry
}

// ValidateForm validates a whole submission and returns a map of field
// name to error messages. An empty map means the submission is valid.
func (e *Engine) ValidateForm(form *metadata.FormConfig, values map[string]any) map[string][]string {
	errs := make(map[string][]string)
	for i := range form.Fields {
		f := &form.Fields[i]
		if fieldErrs := e.ValidateField(values[f.FieldName], f); len(fieldErrs) > 0 {
			errs[f.FieldName] = fieldErrs
		}
	}
	return errs
}

// ValidateField validates one value against its field configuration.
// Rules are applied in order, short-circuiting on required and type
// failures so later rules only ever see type-valid values.
func (e *Engine) ValidateField(value any, f *metadata.FormField) []string {
	var errs []string
	label := f.FieldLabel
	rules := f.Rules

	if f.IsRequired && isBlank(value) {
		return []string{fmt.Sprintf("%s is required", label)}
	}

	// Optional and empty: nothing further to check.
	if isEmpty(value) {
		return nil
	}

	if !typeMatches(value, f.FieldType) {
		return []string{fmt.Sprintf("%s must be a valid %s", label, f.FieldType)}
	}

	switch {
	case f.FieldType.IsString():
		errs = append(errs, validateString(value.(string), rules, label)...)
	case f.FieldType.IsNumeric():
		n, _ := toFloat64(value)
		errs = append(errs, validateNumeric(n, rules, label)...)
	case f.FieldType == metadata.TypeDate:
		errs = append(errs, validateDate(value, rules, label)...)
	case f.FieldType == metadata.TypeSelect:
		errs = append(errs, validateSelect(value, f.OptionValues(), label)...)
	}

	if rules.Pattern != "" {
		if s, ok := value.(string); ok {
			errs = append(errs, validatePattern(s, rules, label)...)
		}
	}

	if rules.CustomValidator != "" {
		errs = append(errs, e.runCustomValidator(value, rules, label)...)
	}

	return errs
}

// runCustomValidator applies a registered predicate. Both an unregistered
// name and an evaluation failure are treated as validation errors: the
// engine fails closed rather than silently admitting unchecked values.
func (e *Engine) runCustomValidator(value any, rules metadata.Rules, label string) []string {
	name := rules.CustomValidator
	ok, err := e.registry.run(name, value)
	if err != nil {
		log.Printf("WARN: custom validator %s failed: %v", name, err)
		return []string{fmt.Sprintf("%s validation error", label)}
	}
	if !ok {
		return []string{rules.Message("custom",
			fmt.Sprintf("%s failed validation: %s", label, name))}
	}
	return nil
}

func validateString(s string, rules metadata.Rules, label string) []string {
	var errs []string
	length := utf8.RuneCountInString(s)

	if rules.MinLength != nil && length < *rules.MinLength {
		errs = append(errs, rules.Message("min_length",
			fmt.Sprintf("%s must be at least %d characters", label, *rules.MinLength)))
	}
	if rules.MaxLength != nil && length > *rules.MaxLength {
		errs = append(errs, rules.Message("max_length",
			fmt.Sprintf("%s must be at most %d characters", label, *rules.MaxLength)))
	}
	return errs
}

func validateNumeric(n float64, rules metadata.Rules, label string) []string {
	var errs []string

	if rules.MinValue != nil && n < *rules.MinValue {
		errs = append(errs, rules.Message("min_value",
			fmt.Sprintf("%s must be at least %v", label, *rules.MinValue)))
	}
	if rules.MaxValue != nil && n > *rules.MaxValue {
		errs = append(errs, rules.Message("max_value",
			fmt.Sprintf("%s must be at most %v", label, *rules.MaxValue)))
	}
	return errs
}

func validateDate(value any, rules metadata.Rules, label string) []string {
	day, ok := toDate(value)
	if !ok {
		return []string{fmt.Sprintf("%s must be a valid date", label)}
	}

	var errs []string
	today := truncateToDay(time.Now())

	if rules.NoFutureDates && day.After(today) {
		errs = append(errs, rules.Message("no_future_dates",
			fmt.Sprintf("%s cannot be in the future", label)))
	}
	if rules.NoPastDates && day.Before(today) {
		errs = append(errs, rules.Message("no_past_dates",
			fmt.Sprintf("%s cannot be in the past", label)))
	}
	return errs
}

// validateSelect checks membership in the declared option values.
// Fields without declared options accept anything. Option values are
// strings, so non-string values never match.
func validateSelect(value any, optionValues []string, label string) []string {
	if len(optionValues) == 0 {
		return nil
	}
	if s, ok := value.(string); ok {
		for _, opt := range optionValues {
			if s == opt {
				return nil
			}
		}
	}
	return []string{fmt.Sprintf("%s must be one of the available options", label)}
}

func validatePattern(s string, rules metadata.Rules, label string) []string {
	re, err := compilePattern(rules.Pattern)
	if err != nil {
		// Rejected at form save; a stored bad pattern still fails closed.
		log.Printf("WARN: pattern %q does not compile: %v", rules.Pattern, err)
		return []string{rules.Message("pattern", fmt.Sprintf("%s has invalid format", label))}
	}
	if !re.MatchString(s) {
		return []string{rules.Message("pattern", fmt.Sprintf("%s has invalid format", label))}
	}
	return nil
}

// --- value classification helpers ---

// isBlank reports whether a value is missing for required-check purposes:
// nil, empty string, or whitespace-only string.
func isBlank(value any) bool {
	if value == nil {
		return true
	}
	if s, ok := value.(string); ok {
		return strings.TrimSpace(s) == ""
	}
	return false
}

// isEmpty reports whether an optional value should skip all further
// checks: nil or the empty string (whitespace-only strings still get
// validated for optional fields).
func isEmpty(value any) bool {
	if value == nil {
		return true
	}
	s, ok := value.(string)
	return ok && s == ""
}

// typeMatches checks a value against the logical type's native
// representation. JSON decoding yields float64 for all numbers, so an
// integer field accepts any integral float.
func typeMatches(value any, t metadata.FieldType) bool {
	switch t {
	case metadata.TypeText, metadata.TypeTextarea:
		_, ok := value.(string)
		return ok
	case metadata.TypeNumber, metadata.TypeDecimal:
		_, ok := toFloat64(value)
		return ok
	case metadata.TypeInteger:
		n, ok := toFloat64(value)
		return ok && n == math.Trunc(n)
	case metadata.TypeBoolean, metadata.TypeCheckbox:
		_, ok := value.(bool)
		return ok
	case metadata.TypeDate:
		_, ok := toDate(value)
		return ok
	case metadata.TypeDatetime:
		return isTemporal(value, datetimeLayouts)
	case metadata.TypeTime:
		return isTemporal(value, timeLayouts)
	case metadata.TypeSelect:
		return true
	default:
		return true
	}
}

// toFloat64 converts numeric Go types to float64. Booleans and strings
// are not numbers.
func toFloat64(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	}
	return 0, false
}

var dateLayouts = []string{"2006-01-02", time.RFC3339, "2006-01-02T15:04:05"}
var datetimeLayouts = []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02 15:04:05", "2006-01-02"}
var timeLayouts = []string{"15:04:05", "15:04"}

// toDate parses a native time.Time or an ISO-8601 string down to a day.
func toDate(value any) (time.Time, bool) {
	switch v := value.(type) {
	case time.Time:
		return truncateToDay(v), true
	case string:
		s := strings.ReplaceAll(v, "Z", "+00:00")
		for _, layout := range dateLayouts {
			if t, err := time.Parse(layout, v); err == nil {
				return truncateToDay(t), true
			}
			if t, err := time.Parse(layout, s); err == nil {
				return truncateToDay(t), true
			}
		}
	}
	return time.Time{}, false
}

func isTemporal(value any, layouts []string) bool {
	switch v := value.(type) {
	case time.Time:
		return true
	case string:
		for _, layout := range layouts {
			if _, err := time.Parse(layout, v); err == nil {
				return true
			}
		}
	}
	return false
}

func truncateToDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
