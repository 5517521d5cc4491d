package workflow

import (
	"reflect"
)

// Facts is a read-only snapshot of named application values that conditions
// are evaluated against.
type Facts map[string]any

// Condition is a named predicate over one application fact. With Equals set
// the fact must equal it; otherwise the fact must be boolean true.
type Condition struct {
	Name   string `json:"name" yaml:"name"`
	Fact   string `json:"fact,omitempty" yaml:"fact,omitempty"`
	Equals any    `json:"equals,omitempty" yaml:"equals,omitempty"`
}

// FactKey returns the fact name the condition reads
func (c Condition) FactKey() string {
	if c.Fact != "" {
		return c.Fact
	}
	return c.Name
}

// Normalized returns c with a numeric Equals widened to float64, the form it
// takes after a JSON round trip through storage.
func (c Condition) Normalized() Condition {
	if f, ok := toFloat(c.Equals); ok {
		c.Equals = f
	}
	return c
}

// Holds reports whether the condition is satisfied by facts. A missing fact
// never holds.
func (c Condition) Holds(facts Facts) bool {
	v, ok := facts[c.FactKey()]
	if !ok || v == nil {
		return false
	}
	if c.Equals == nil {
		b, isBool := v.(bool)
		return isBool && b
	}
	return valuesEqual(v, c.Equals)
}

// Equal reports whether two conditions test the same fact for the same value
func (c Condition) Equal(other Condition) bool {
	if c.Name != other.Name || c.FactKey() != other.FactKey() {
		return false
	}
	if c.Equals == nil || other.Equals == nil {
		return c.Equals == nil && other.Equals == nil
	}
	return valuesEqual(c.Equals, other.Equals)
}

// FailingConditions returns the names of conditions that do not hold
func FailingConditions(conditions []Condition, facts Facts) []string {
	var failed []string
	for _, c := range conditions {
		if !c.Holds(facts) {
			failed = append(failed, c.Name)
		}
	}
	return failed
}

// ConditionsSubset reports whether every condition in next also appears in
// prev, i.e. next is the same as or wider than prev.
func ConditionsSubset(next, prev []Condition) bool {
	for _, n := range next {
		found := false
		for _, p := range prev {
			if n.Equal(p) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// valuesEqual compares fact values decoded from JSON, YAML or SQLite, where
// the same number may arrive as int, int64 or float64.
func valuesEqual(a, b any) bool {
	if fa, ok := toFloat(a); ok {
		fb, ok := toFloat(b)
		return ok && fa == fb
	}
	return reflect.DeepEqual(a, b)
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}
