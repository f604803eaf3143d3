package validation

import (
	"fmt"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// ValidatorFunc is a pluggable predicate over a raw submitted value.
// It returns false when the value is invalid; a non-nil error marks the
// evaluation itself as failed (which the engine treats as invalid).
type ValidatorFunc func(value any) (bool, error)

// Registry maps validator names to predicates. It is populated once at
// startup and injected into the Engine; it is not safe for concurrent
// mutation after initialization.
type Registry struct {
	validators map[string]ValidatorFunc
}

func NewRegistry() *Registry {
	return &Registry{validators: make(map[string]ValidatorFunc)}
}

// Register adds a named predicate, replacing any previous registration.
func (r *Registry) Register(name string, fn ValidatorFunc) {
	r.validators[name] = fn
}

// RegisterExpression compiles an expr predicate over the environment
// {"value": <raw value>} and registers it under the given name.
func (r *Registry) RegisterExpression(name, expression string) error {
	prog, err := expr.Compile(expression, expr.AsBool())
	if err != nil {
		return fmt.Errorf("compile validator %s: %w", name, err)
	}
	r.Register(name, exprValidator(prog))
	return nil
}

// Has reports whether a validator is registered under the name.
func (r *Registry) Has(name string) bool {
	_, ok := r.validators[name]
	return ok
}

// Names is the Has predicate in function form, for rule validation.
func (r *Registry) Names() func(string) bool {
	return r.Has
}

func (r *Registry) run(name string, value any) (bool, error) {
	fn, ok := r.validators[name]
	if !ok {
		return false, fmt.Errorf("validator %s is not registered", name)
	}
	return fn(value)
}

func exprValidator(prog *vm.Program) ValidatorFunc {
	return func(value any) (bool, error) {
		out, err := expr.Run(prog, map[string]any{"value": value})
		if err != nil {
			return false, err
		}
		ok, _ := out.(bool)
		return ok, nil
	}
}

// DefaultRegistry returns a registry with the two built-in validators
// pre-registered: a shift-duration range check (1-24 hours inclusive) and
// a grace-period range check (0-60 minutes inclusive). They exist to
// exercise the registry, not as domain-generic defaults.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	// Expressions are compiled at startup; panics here mean a programming
	// error, not bad user input.
	mustRegister(r, "validate_shift_duration", "value >= 1 && value <= 24")
	mustRegister(r, "validate_grace_period", "value >= 0 && value <= 60")
	return r
}

func mustRegister(r *Registry, name, expression string) {
	if err := r.RegisterExpression(name, expression); err != nil {
		panic(err)
	}
}
