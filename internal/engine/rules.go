package engine

import (
	"context"
	"fmt"
	"regexp"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"commerce-backend/internal/instrument"
	"commerce-backend/internal/metadata"
	"commerce-backend/internal/store"
)

// EvaluateRules runs the entity's rules against a pending write. Field and
// expression rules produce validation errors; computed rules rewrite
// fields present in the write, and only run when validation passed.
func EvaluateRules(ctx context.Context, entity *metadata.Entity, fields map[string]any, old map[string]any, isCreate bool) []ErrorDetail {
	_, span := instrument.GetInstrumenter(ctx).StartSpan(ctx, "engine", "rules", "rules.evaluate")
	defer span.End()
	span.SetEntity(entity.Name, "")

	if len(entity.Rules) == 0 {
		span.SetStatus("ok")
		return nil
	}

	action := "update"
	if isCreate {
		action = "create"
	}
	if old == nil {
		old = map[string]any{}
	}
	env := map[string]any{
		"record": fields,
		"old":    old,
		"action": action,
	}

	var errs []ErrorDetail
	for _, kind := range []string{metadata.RuleField, metadata.RuleExpression} {
		for _, r := range entity.Rules {
			if r.Type != kind {
				continue
			}
			var detail *ErrorDetail
			if kind == metadata.RuleField {
				detail = EvaluateFieldRule(r, fields)
			} else {
				detail = EvaluateExpressionRule(r, env)
			}
			if detail == nil {
				continue
			}
			errs = append(errs, *detail)
			if r.Definition.StopOnFail {
				span.SetStatus("error")
				return errs
			}
		}
	}

	if len(errs) > 0 {
		span.SetStatus("error")
		return errs
	}

	for _, r := range entity.Rules {
		if r.Type != metadata.RuleComputed {
			continue
		}
		if _, present := fields[r.Definition.Field]; !present {
			continue
		}
		val, err := EvaluateComputedField(r, env)
		if err != nil {
			errs = append(errs, ErrorDetail{Field: r.Definition.Field, Rule: "computed", Message: err.Error()})
			continue
		}
		fields[r.Definition.Field] = val
	}

	if len(errs) > 0 {
		span.SetStatus("error")
	} else {
		span.SetStatus("ok")
	}
	return errs
}

// EvaluateFieldRule evaluates a single field rule against a record.
// Returns nil if the rule passes, or an ErrorDetail if it fails.
func EvaluateFieldRule(rule *metadata.Rule, record map[string]any) *ErrorDetail {
	fieldName := rule.Definition.Field
	val, exists := record[fieldName]
	if !exists || val == nil {
		return nil // absent fields are not checked by field rules (use "required" for that)
	}

	op := rule.Definition.Operator
	msg := rule.Definition.Message
	if msg == "" {
		msg = fmt.Sprintf("field %s failed %s validation", fieldName, op)
	}
	fail := &ErrorDetail{Field: fieldName, Rule: op, Message: msg}

	switch op {
	case "min", "max":
		num, ok := store.AsFloat64(val)
		threshold, ok2 := store.AsFloat64(rule.Definition.Value)
		if !ok || !ok2 {
			return nil
		}
		if (op == "min" && num < threshold) || (op == "max" && num > threshold) {
			return fail
		}

	case "min_length", "max_length":
		s, ok := val.(string)
		threshold, ok2 := store.AsInt64(rule.Definition.Value)
		if !ok || !ok2 {
			return nil
		}
		n := int64(len([]rune(s)))
		if (op == "min_length" && n < threshold) || (op == "max_length" && n > threshold) {
			return fail
		}

	case "pattern":
		s, ok := val.(string)
		pattern, ok2 := rule.Definition.Value.(string)
		if !ok || !ok2 {
			return nil
		}
		matched, err := regexp.MatchString(pattern, s)
		if err != nil || !matched {
			return fail
		}
	}

	return nil
}

// EvaluateExpressionRule runs an expression rule. The rule is violated when
// the expression evaluates to true.
func EvaluateExpressionRule(rule *metadata.Rule, env map[string]any) *ErrorDetail {
	prog, err := program(rule)
	if err != nil {
		return &ErrorDetail{Rule: "expression", Message: fmt.Sprintf("compile error: %v", err)}
	}

	result, err := expr.Run(prog, env)
	if err != nil {
		return &ErrorDetail{Rule: "expression", Message: fmt.Sprintf("rule evaluation error: %v", err)}
	}

	if violated, ok := result.(bool); ok && violated {
		msg := rule.Definition.Message
		if msg == "" {
			msg = "Expression rule violated"
		}
		return &ErrorDetail{Field: rule.Definition.Field, Rule: "expression", Message: msg}
	}
	return nil
}

// EvaluateComputedField evaluates a computed field rule and returns the computed value.
func EvaluateComputedField(rule *metadata.Rule, env map[string]any) (any, error) {
	prog, err := program(rule)
	if err != nil {
		return nil, err
	}
	result, err := expr.Run(prog, env)
	if err != nil {
		return nil, fmt.Errorf("evaluate computed field %s: %w", rule.Definition.Field, err)
	}
	return result, nil
}

// program returns the rule's compiled program. Rules built outside a
// registry are compiled on the fly and not cached.
func program(rule *metadata.Rule) (*vm.Program, error) {
	if rule.Program != nil {
		return rule.Program, nil
	}
	r := *rule
	if err := r.Compile(); err != nil {
		return nil, err
	}
	return r.Program, nil
}
