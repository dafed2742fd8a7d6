// Package predicate models filter conditions as a closed, exhaustively
// matchable tree. The compiler builds these trees and the store translates
// them to parameterized SQL; no other representation exists between the two.
package predicate

// Operator is the fixed set of comparison operators accepted in filters.
type Operator string

const (
	OpEq          Operator = "eq"
	OpNeq         Operator = "neq"
	OpGt          Operator = "gt"
	OpGte         Operator = "gte"
	OpLt          Operator = "lt"
	OpLte         Operator = "lte"
	OpIn          Operator = "in"
	OpNotIn       Operator = "not_in"
	OpContains    Operator = "contains"
	OpNotContains Operator = "not_contains"
	OpStartsWith  Operator = "starts_with"
	OpEndsWith    Operator = "ends_with"
	OpIsEmpty     Operator = "is_empty"
	OpIsNotEmpty  Operator = "is_not_empty"
	OpBetween     Operator = "between"
	OpContainsAny Operator = "contains_any"
	OpContainsAll Operator = "contains_all"
	OpHasSome     Operator = "has_some"
	OpHasNone     Operator = "has_none"
)

var validOperators = map[Operator]bool{
	OpEq: true, OpNeq: true, OpGt: true, OpGte: true, OpLt: true, OpLte: true,
	OpIn: true, OpNotIn: true, OpContains: true, OpNotContains: true,
	OpStartsWith: true, OpEndsWith: true, OpIsEmpty: true, OpIsNotEmpty: true,
	OpBetween: true, OpContainsAny: true, OpContainsAll: true,
	OpHasSome: true, OpHasNone: true,
}

// Valid reports whether op is a member of the operator set.
func (op Operator) Valid() bool {
	return validOperators[op]
}

// Expr represents one node of a predicate tree.
//
// This is a sealed interface: only types in this package implement it,
// which keeps type switches in the SQL generator exhaustive.
type Expr interface {
	exprNode()
}

// And is a conjunction. An empty Exprs slice is vacuously true.
type And struct {
	Exprs []Expr
}

// Or is a disjunction. An empty Exprs slice is vacuously false.
type Or struct {
	Exprs []Expr
}

// Not negates its child expression.
type Not struct {
	Expr Expr
}

// Field compares a scalar column against a value with the given operator.
type Field struct {
	Name  string
	Op    Operator
	Value interface{}
}

// Quantifier selects EXISTS vs NOT EXISTS semantics for Relation.
type Quantifier string

const (
	// QuantSome requires at least one related row matching Expr.
	QuantSome Quantifier = "some"
	// QuantNone requires no related row matching Expr.
	QuantNone Quantifier = "none"
)

// Relation quantifies over rows of a named relation of the current entity.
// Expr (optional) filters the related rows.
type Relation struct {
	Name       string
	Quantifier Quantifier
	Expr       Expr
}

// IsNull matches rows where the column is NULL.
type IsNull struct {
	Name string
}

func (And) exprNode()      {}
func (Or) exprNode()       {}
func (Not) exprNode()      {}
func (Field) exprNode()    {}
func (Relation) exprNode() {}
func (IsNull) exprNode()   {}

// AndOf combines the non-nil expressions into a single conjunction.
// Returns nil when nothing remains, and unwraps a single survivor.
func AndOf(exprs ...Expr) Expr {
	kept := make([]Expr, 0, len(exprs))
	for _, e := range exprs {
		if e == nil {
			continue
		}
		if a, ok := e.(And); ok && len(a.Exprs) == 0 {
			continue
		}
		kept = append(kept, e)
	}
	switch len(kept) {
	case 0:
		return nil
	case 1:
		return kept[0]
	}
	return And{Exprs: kept}
}

// OrOf combines the non-nil expressions into a single disjunction.
func OrOf(exprs ...Expr) Expr {
	kept := make([]Expr, 0, len(exprs))
	for _, e := range exprs {
		if e != nil {
			kept = append(kept, e)
		}
	}
	switch len(kept) {
	case 0:
		return nil
	case 1:
		return kept[0]
	}
	return Or{Exprs: kept}
}

// Eq builds a field equality comparison.
func Eq(name string, value interface{}) Field {
	return Field{Name: name, Op: OpEq, Value: value}
}

// In builds a field membership comparison.
func In(name string, values []interface{}) Field {
	return Field{Name: name, Op: OpIn, Value: values}
}

// Strings converts a string slice to the []interface{} shape used by
// in/not_in values.
func Strings(values []string) []interface{} {
	out := make([]interface{}, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}
