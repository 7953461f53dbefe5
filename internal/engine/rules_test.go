package engine

import (
	"context"
	"testing"

	"commerce-backend/internal/metadata"
)

func fieldRule(field, op string, value any, msg string) *metadata.Rule {
	return &metadata.Rule{
		Type:       metadata.RuleField,
		Definition: metadata.RuleDefinition{Field: field, Operator: op, Value: value, Message: msg},
	}
}

func TestEvaluateFieldRule_MinPrice(t *testing.T) {
	rule := fieldRule("price", "min", float64(0), "price cannot be negative")

	detail := EvaluateFieldRule(rule, map[string]any{"price": float64(-0.5)})
	if detail == nil {
		t.Fatal("expected error for price=-0.5")
	}
	if detail.Field != "price" || detail.Rule != "min" {
		t.Fatalf("expected price/min, got %s/%s", detail.Field, detail.Rule)
	}
	if detail.Message != "price cannot be negative" {
		t.Fatalf("unexpected message: %s", detail.Message)
	}

	if d := EvaluateFieldRule(rule, map[string]any{"price": float64(0)}); d != nil {
		t.Fatalf("expected pass for price=0, got %v", d)
	}
	// absent fields are left to required checks
	if d := EvaluateFieldRule(rule, map[string]any{}); d != nil {
		t.Fatalf("expected pass for absent field, got %v", d)
	}
}

func TestEvaluateFieldRule_DiscountRange(t *testing.T) {
	lo := fieldRule("percentage_discount", "min", float64(1), "")
	hi := fieldRule("percentage_discount", "max", float64(100), "")

	for _, tc := range []struct {
		value  any
		loFail bool
		hiFail bool
	}{
		{int64(0), true, false},
		{int64(1), false, false},
		{int64(100), false, false},
		{int64(101), false, true},
		{150, false, true},
	} {
		rec := map[string]any{"percentage_discount": tc.value}
		if got := EvaluateFieldRule(lo, rec) != nil; got != tc.loFail {
			t.Fatalf("min rule on %v: got fail=%v", tc.value, got)
		}
		if got := EvaluateFieldRule(hi, rec) != nil; got != tc.hiFail {
			t.Fatalf("max rule on %v: got fail=%v", tc.value, got)
		}
	}
}

func TestEvaluateFieldRule_Length(t *testing.T) {
	minLen := fieldRule("code", "min_length", float64(2), "")
	maxLen := fieldRule("name", "max_length", float64(20), "brand name too long")

	if d := EvaluateFieldRule(minLen, map[string]any{"code": "D"}); d == nil {
		t.Fatal("expected error for one-letter code")
	} else if d.Message != "field code failed min_length validation" {
		t.Fatalf("unexpected default message: %s", d.Message)
	}
	if d := EvaluateFieldRule(minLen, map[string]any{"code": "DE"}); d != nil {
		t.Fatalf("expected pass, got %v", d)
	}

	if d := EvaluateFieldRule(maxLen, map[string]any{"name": "A brand name well over twenty"}); d == nil {
		t.Fatal("expected error for long name")
	}
	// counts runes, not bytes
	if d := EvaluateFieldRule(maxLen, map[string]any{"name": "ÄÖÜäöüßÄÖÜäöüßÄÖÜäöü"}); d != nil {
		t.Fatalf("expected pass for 20 runes, got %v", d)
	}
}

func TestEvaluateFieldRule_Pattern(t *testing.T) {
	rule := fieldRule("gtin", "pattern", `^[0-9]{8,14}$`, "gtin must be 8 to 14 digits")

	if d := EvaluateFieldRule(rule, map[string]any{"gtin": "12ab"}); d == nil {
		t.Fatal("expected error for non-numeric gtin")
	}
	if d := EvaluateFieldRule(rule, map[string]any{"gtin": "4006381333931"}); d != nil {
		t.Fatalf("expected pass for valid gtin, got %v", d)
	}
}

func TestRuleCompile_Expression(t *testing.T) {
	rule := &metadata.Rule{
		Type:       metadata.RuleExpression,
		Definition: metadata.RuleDefinition{Expression: "record.percentage_discount > 50 && record.upper_limit == nil"},
	}
	if err := rule.Compile(); err != nil {
		t.Fatalf("compile expression: %v", err)
	}
	if rule.Program == nil {
		t.Fatal("expected non-nil program")
	}
}

func TestEvaluateExpressionRule_SelfParent(t *testing.T) {
	rule := &metadata.Rule{
		Type: metadata.RuleExpression,
		Definition: metadata.RuleDefinition{
			Field:      "parent_id",
			Expression: "action == 'update' && record.parent_id != nil && record.parent_id == old.id",
			Message:    "a category cannot be its own parent",
		},
	}
	if err := rule.Compile(); err != nil {
		t.Fatalf("compile: %v", err)
	}

	env := map[string]any{
		"record": map[string]any{"parent_id": int64(4)},
		"old":    map[string]any{"id": int64(4)},
		"action": "update",
	}
	detail := EvaluateExpressionRule(rule, env)
	if detail == nil {
		t.Fatal("expected violation for self parent")
	}
	if detail.Field != "parent_id" || detail.Message != "a category cannot be its own parent" {
		t.Fatalf("unexpected detail: %+v", detail)
	}

	env["record"] = map[string]any{"parent_id": int64(2)}
	if d := EvaluateExpressionRule(rule, env); d != nil {
		t.Fatalf("expected pass for other parent, got %v", d)
	}
}

func TestEvaluateExpressionRule_CompilesOnTheFly(t *testing.T) {
	rule := &metadata.Rule{
		Type:       metadata.RuleExpression,
		Definition: metadata.RuleDefinition{Expression: "record.quantity <= 0"},
	}
	env := map[string]any{"record": map[string]any{"quantity": 0}, "old": map[string]any{}, "action": "create"}
	if d := EvaluateExpressionRule(rule, env); d == nil || d.Message != "Expression rule violated" {
		t.Fatalf("expected default violation message, got %v", d)
	}
	if rule.Program != nil {
		t.Fatal("on-the-fly compile must not mutate the rule")
	}
}

func TestEvaluateExpressionRule_CompileError(t *testing.T) {
	rule := &metadata.Rule{
		Type:       metadata.RuleExpression,
		Definition: metadata.RuleDefinition{Expression: "record.quantity <="},
	}
	d := EvaluateExpressionRule(rule, map[string]any{"record": map[string]any{}})
	if d == nil || d.Rule != "expression" {
		t.Fatalf("expected compile error detail, got %v", d)
	}
}

func TestEvaluateComputedField_Uppercase(t *testing.T) {
	rule := &metadata.Rule{
		Type:       metadata.RuleComputed,
		Definition: metadata.RuleDefinition{Field: "sku", Expression: "upper(trim(record.sku))"},
	}
	if err := rule.Compile(); err != nil {
		t.Fatalf("compile: %v", err)
	}
	val, err := EvaluateComputedField(rule, map[string]any{"record": map[string]any{"sku": "  tee-red-m "}})
	if err != nil {
		t.Fatalf("evaluate computed: %v", err)
	}
	if val != "TEE-RED-M" {
		t.Fatalf("expected TEE-RED-M, got %v", val)
	}
}

func TestEvaluateRules_Voucher(t *testing.T) {
	reg, err := metadata.Load()
	if err != nil {
		t.Fatalf("load registry: %v", err)
	}
	voucher := reg.GetEntity("voucher")
	if voucher == nil {
		t.Fatal("voucher entity missing")
	}

	fields := map[string]any{"code": "spring", "percentage_discount": int64(150), "upper_limit": float64(10)}
	errs := EvaluateRules(context.Background(), voucher, fields, nil, true)
	if len(errs) != 1 || errs[0].Field != "percentage_discount" {
		t.Fatalf("expected one percentage_discount error, got %v", errs)
	}
	if fields["code"] != "spring" {
		t.Fatal("computed rules must not run when validation fails")
	}

	fields["percentage_discount"] = int64(20)
	if errs := EvaluateRules(context.Background(), voucher, fields, nil, true); len(errs) != 0 {
		t.Fatalf("expected no errors, got %v", errs)
	}
	if fields["code"] != "SPRING" {
		t.Fatalf("expected computed code SPRING, got %v", fields["code"])
	}

	// computed rules skip fields the write does not touch
	partial := map[string]any{"upper_limit": float64(5)}
	if errs := EvaluateRules(context.Background(), voucher, partial, map[string]any{"code": "SPRING"}, false); len(errs) != 0 {
		t.Fatalf("expected no errors, got %v", errs)
	}
	if _, ok := partial["code"]; ok {
		t.Fatal("code should not be added to a partial update")
	}
}
