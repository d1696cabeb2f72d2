// Package policy compiles and evaluates admission guardrails for
// lifecycle operations. Rules are CEL expressions over a typed `input`
// map; they compile once at load time and anything that cannot be
// proven boolean is rejected there. Evaluation fails closed: a rule
// that errors denies the operation.
package policy

import (
	"context"
	"errors"
	"fmt"
	"reflect"

	"github.com/google/cel-go/cel"
)

// ErrDenied is the sentinel behind every policy denial.
var ErrDenied = errors.New("policy: denied")

// ViolationError is a policy denial. The operation was not admitted and
// no event was emitted.
type ViolationError struct {
	Rule   string
	Reason string
}

func (e *ViolationError) Error() string {
	return fmt.Sprintf("policy: rule %q denied operation: %s", e.Rule, e.Reason)
}

func (e *ViolationError) Is(target error) bool { return target == ErrDenied }

// Rule is one named guardrail expression.
type Rule struct {
	Name string `json:"name" yaml:"name"`
	Expr string `json:"expr" yaml:"expr"`
}

type compiledRule struct {
	name string
	prg  cel.Program
}

// Engine evaluates compiled guardrails over an operation input map. It
// satisfies the lifecycle Gate interface.
type Engine struct {
	rules []compiledRule
}

// NewEngine compiles the rule set. A rule that fails to compile, or
// whose result type is not provably bool, rejects the whole set.
func NewEngine(rules []Rule) (*Engine, error) {
	env, err := cel.NewEnv(
		cel.Variable("input", cel.MapType(cel.StringType, cel.DynType)),
	)
	if err != nil {
		return nil, fmt.Errorf("policy: environment: %w", err)
	}

	compiled := make([]compiledRule, 0, len(rules))
	for _, r := range rules {
		if r.Name == "" {
			return nil, errors.New("policy: rule without a name")
		}
		ast, issues := env.Compile(r.Expr)
		if issues != nil && issues.Err() != nil {
			return nil, fmt.Errorf("policy: compile %q: %w", r.Name, issues.Err())
		}
		if !reflect.DeepEqual(ast.OutputType(), cel.BoolType) {
			return nil, fmt.Errorf("policy: rule %q must evaluate to bool, got %v", r.Name, ast.OutputType())
		}
		prg, err := env.Program(ast,
			cel.InterruptCheckFrequency(100),
			cel.CostLimit(10000),
		)
		if err != nil {
			return nil, fmt.Errorf("policy: program %q: %w", r.Name, err)
		}
		compiled = append(compiled, compiledRule{name: r.Name, prg: prg})
	}
	return &Engine{rules: compiled}, nil
}

// Admit evaluates every rule against the operation input. The first
// rule that evaluates false, errors or yields a non-bool denies.
func (e *Engine) Admit(ctx context.Context, input map[string]any) error {
	if e == nil || len(e.rules) == 0 {
		return nil
	}
	activation := map[string]any{"input": input}
	for _, r := range e.rules {
		out, _, err := r.prg.ContextEval(ctx, activation)
		if err != nil {
			return &ViolationError{Rule: r.name, Reason: fmt.Sprintf("evaluation failed: %v", err)}
		}
		allowed, ok := out.Value().(bool)
		if !ok {
			return &ViolationError{Rule: r.name, Reason: fmt.Sprintf("result %T is not bool", out.Value())}
		}
		if !allowed {
			return &ViolationError{Rule: r.name, Reason: "rule evaluated to false"}
		}
	}
	return nil
}

// Len reports the number of compiled rules.
func (e *Engine) Len() int {
	if e == nil {
		return 0
	}
	return len(e.rules)
}
