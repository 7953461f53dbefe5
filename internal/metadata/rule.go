package metadata

import (
	"fmt"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

const (
	RuleField      = "field"
	RuleExpression = "expression"
	RuleComputed   = "computed"
)

// RuleDefinition describes a validation or computed rule.
type RuleDefinition struct {
	// Field rules
	Field    string `json:"field,omitempty"`
	Operator string `json:"operator,omitempty"` // min, max, min_length, max_length, pattern
	Value    any    `json:"value,omitempty"`

	// Expression / computed rules
	Expression string `json:"expression,omitempty"`

	// Shared
	Message    string `json:"message,omitempty"`
	StopOnFail bool   `json:"stop_on_fail,omitempty"`
}

// Rule is a write-time rule attached to an entity. Expression rules report
// a violation when the expression evaluates to true.
type Rule struct {
	Type       string         `json:"type"`
	Definition RuleDefinition `json:"definition"`
	Priority   int            `json:"priority"`

	// Program holds the compiled expression; set by Compile, not serialized.
	Program *vm.Program `json:"-"`
}

// Compile prepares expression and computed rules. Field rules need no
// compilation.
func (r *Rule) Compile() error {
	var (
		prog *vm.Program
		err  error
	)
	switch r.Type {
	case RuleExpression:
		prog, err = expr.Compile(r.Definition.Expression, expr.AsBool())
	case RuleComputed:
		prog, err = expr.Compile(r.Definition.Expression)
	default:
		return nil
	}
	if err != nil {
		return fmt.Errorf("compile %s rule %q: %w", r.Type, r.Definition.Expression, err)
	}
	r.Program = prog
	return nil
}

func fieldRule(field, op string, value any, msg string) *Rule {
	return &Rule{Type: RuleField, Definition: RuleDefinition{Field: field, Operator: op, Value: value, Message: msg}}
}

func expressionRule(expression, msg string) *Rule {
	return &Rule{Type: RuleExpression, Definition: RuleDefinition{Expression: expression, Message: msg}}
}

func computedRule(field, expression string) *Rule {
	return &Rule{Type: RuleComputed, Definition: RuleDefinition{Field: field, Expression: expression}}
}
