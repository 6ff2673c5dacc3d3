package globalmap

import (
	"fmt"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"
)

// FilterAction is the outcome of evaluating a declarative filter rule
// against a candidate global.
type FilterAction int

const (
	// ActionForward means the global should be forwarded to the
	// client as-is.
	ActionForward FilterAction = iota
	// ActionHide means the global should be ignored (suppressed).
	ActionHide
)

// FilterRule is one compiled CEL rule: a boolean expression over
// (name, interface, version) and the action to take when it evaluates
// true. Rules are evaluated in order; the first match wins.
type FilterRule struct {
	Name    string
	Action  FilterAction
	program cel.Program
}

// Filter evaluates an ordered list of declarative rules against each
// global the server advertises, deciding whether the mapper should
// forward or hide it. It supplements, rather than replaces, the
// programmatic Mapper API: a caller can still call IgnoreGlobal or
// ForwardGlobal directly for cases the declarative rules don't cover.
type Filter struct {
	env   *cel.Env
	rules []*FilterRule
}

// NewFilter compiles rules (name, CEL expression, action string
// "hide"/"forward") into a Filter. Compilation errors are returned
// immediately rather than surfacing at evaluation time, since the
// config loader's validator tag already rejects malformed expressions
// before this is ever called with untrusted input.
func NewFilter(rules []ConfiguredRule) (*Filter, error) {
	env, err := cel.NewEnv(
		cel.Variable("name", cel.UintType),
		cel.Variable("interface", cel.StringType),
		cel.Variable("version", cel.UintType),
	)
	if err != nil {
		return nil, fmt.Errorf("globalmap: build CEL environment: %w", err)
	}

	f := &Filter{env: env}
	for _, r := range rules {
		ast, issues := env.Compile(r.Condition)
		if issues != nil && issues.Err() != nil {
			return nil, fmt.Errorf("globalmap: compile rule %q: %w", r.Name, issues.Err())
		}
		program, err := env.Program(ast)
		if err != nil {
			return nil, fmt.Errorf("globalmap: build program for rule %q: %w", r.Name, err)
		}

		action := ActionForward
		if r.Action == "hide" {
			action = ActionHide
		}
		f.rules = append(f.rules, &FilterRule{Name: r.Name, Action: action, program: program})
	}
	return f, nil
}

// ConfiguredRule is the plain-data shape NewFilter compiles from,
// mirroring internal/config.GlobalFilterRule without importing the
// config package; the caller converts one into the other.
type ConfiguredRule struct {
	Name      string
	Condition string
	Action    string
}

// Evaluate runs the rule set against one candidate global in order,
// returning the first matching rule's action. With no matching rule,
// the default is ActionForward: declarative filtering only narrows
// what's visible, it never changes the default-forward behavior of an
// unfiltered deployment.
func (f *Filter) Evaluate(name uint32, iface string, version uint32) (FilterAction, *FilterRule, error) {
	vars := map[string]any{
		"name":      types.Uint(name),
		"interface": types.String(iface),
		"version":   types.Uint(version),
	}
	for _, rule := range f.rules {
		out, _, err := rule.program.Eval(vars)
		if err != nil {
			return ActionForward, nil, fmt.Errorf("globalmap: evaluate rule %q: %w", rule.Name, err)
		}
		if matched, ok := out.(ref.Val); ok {
			if b, ok := matched.Value().(bool); ok && b {
				return rule.Action, rule, nil
			}
		}
	}
	return ActionForward, nil, nil
}
