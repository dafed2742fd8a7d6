package predicate

import (
	"fmt"
	"time"
)

// Filter is the wire shape of a single filter condition as it arrives in
// widget queries and segment definitions.
type Filter struct {
	Field    string      `json:"field" yaml:"field"`
	Operator Operator    `json:"operator" yaml:"operator"`
	Value    interface{} `json:"value,omitempty" yaml:"value,omitempty"`
}

// Sentinel values allowed inside filter values. They are resolved exactly
// once, at compile time.
const (
	SentinelNow    = "$now"
	SentinelUserID = "$userId"
)

// Resolution carries the concrete values sentinels resolve to.
type Resolution struct {
	Now    time.Time
	UserID string
}

// ResolveValue rewrites sentinel strings into concrete values. Slices are
// resolved element-wise; all other values pass through untouched.
func ResolveValue(v interface{}, r Resolution) interface{} {
	switch val := v.(type) {
	case string:
		switch val {
		case SentinelNow:
			return r.Now
		case SentinelUserID:
			return r.UserID
		}
		return val
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, item := range val {
			out[i] = ResolveValue(item, r)
		}
		return out
	default:
		return v
	}
}

// Expr converts the filter to a predicate node, resolving sentinels.
// has_some/has_none filters stay as Field nodes here; the compiler rewrites
// them into Relation nodes using registry metadata.
func (f Filter) Expr(r Resolution) (Expr, error) {
	if f.Field == "" {
		return nil, fmt.Errorf("filter field must not be empty")
	}
	if !f.Operator.Valid() {
		return nil, fmt.Errorf("unknown filter operator %q", f.Operator)
	}
	return Field{
		Name:  f.Field,
		Op:    f.Operator,
		Value: ResolveValue(f.Value, r),
	}, nil
}

// ExprList converts an ANDed filter list.
func ExprList(filters []Filter, r Resolution) (Expr, error) {
	exprs := make([]Expr, 0, len(filters))
	for _, f := range filters {
		e, err := f.Expr(r)
		if err != nil {
			return nil, err
		}
		exprs = append(exprs, e)
	}
	return AndOf(exprs...), nil
}
