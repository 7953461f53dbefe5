package ability

import (
	"fmt"
	"reflect"
)

// Operator is a predicate operator inside a rule condition.
type Operator string

const (
	OpEq  Operator = "eq"
	OpIn  Operator = "in"
	OpNot Operator = "not"
)

// Predicate constrains one attribute of an entity instance.
type Predicate struct {
	Field    string   `json:"field"`
	Operator Operator `json:"operator"`
	Value    any      `json:"value"`
}

// Condition is a conjunction of predicates.
type Condition []Predicate

// Attributes is the attribute map of a concrete entity instance.
type Attributes map[string]any

// Eq, In and Not build predicates.
func Eq(field string, value any) Predicate  { return Predicate{Field: field, Operator: OpEq, Value: value} }
func In(field string, values ...any) Predicate {
	return Predicate{Field: field, Operator: OpIn, Value: values}
}
func Not(field string, value any) Predicate { return Predicate{Field: field, Operator: OpNot, Value: value} }

// Matches reports whether every predicate holds for attrs. A missing
// attribute fails its predicate.
func (c Condition) Matches(attrs Attributes) bool {
	for _, p := range c {
		if !p.matches(attrs) {
			return false
		}
	}
	return true
}

func (p Predicate) matches(attrs Attributes) bool {
	v := deref(attrs[p.Field])
	if v == nil {
		return false
	}
	switch p.Operator {
	case OpEq:
		return sameValue(v, p.Value)
	case OpNot:
		return !sameValue(v, p.Value)
	case OpIn:
		list, ok := p.Value.([]any)
		if !ok {
			return false
		}
		for _, item := range list {
			if sameValue(v, item) {
				return true
			}
		}
		return false
	default:
		return false
	}
}

// sameValue compares by formatted value so that an int64 id read from
// storage equals an int parsed from a path parameter.
func sameValue(a, b any) bool {
	a, b = deref(a), deref(b)
	if a == nil || b == nil {
		return a == b
	}
	return fmt.Sprintf("%v", a) == fmt.Sprintf("%v", b)
}

// deref unwraps pointers so a typed nil counts as an absent attribute.
func deref(v any) any {
	if s, ok := v.(fmt.Stringer); ok {
		if rv := reflect.ValueOf(v); rv.Kind() == reflect.Pointer && rv.IsNil() {
			return nil
		}
		return s.String()
	}
	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Pointer || rv.Kind() == reflect.Interface {
		if rv.IsNil() {
			return nil
		}
		rv = rv.Elem()
	}
	if !rv.IsValid() {
		return nil
	}
	return rv.Interface()
}
