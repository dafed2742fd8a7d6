package store

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"propsift/internal/predicate"
	"propsift/internal/registry"
)

// TableMeta is the per-delegate table registration: table name and
// primary-key column.
type TableMeta struct {
	Name string
	ID   string
}

// defaultTables maps every catalog delegate to its table. Delegates and
// table names coincide today; the indirection keeps renames cheap.
func defaultTables() map[string]TableMeta {
	meta := func(name string) TableMeta { return TableMeta{Name: name, ID: "id"} }
	return map[string]TableMeta{
		"records":            meta("records"),
		"tasks":              meta("tasks"),
		"phones":             meta("phones"),
		"emails":             meta("emails"),
		"record_tags":        meta("record_tags"),
		"record_motivations": meta("record_motivations"),
		"tags":               meta("tags"),
		"motivations":        meta("motivations"),
		"boards":             meta("boards"),
	}
}

// SQLGen translates predicate trees into parameterized SQL. Values are
// never interpolated; identifiers are validated against a fixed pattern
// before use.
type SQLGen struct {
	catalog *registry.Catalog
	tables  map[string]TableMeta
}

// NewSQLGen builds a generator over the catalog with the default table
// registrations.
func NewSQLGen(catalog *registry.Catalog) *SQLGen {
	return &SQLGen{catalog: catalog, tables: defaultTables()}
}

// Table resolves a delegate to its table metadata.
func (g *SQLGen) Table(delegate string) (TableMeta, bool) {
	t, ok := g.tables[delegate]
	return t, ok
}

// CompileExpr compiles a predicate tree for the given entity into a WHERE
// fragment referencing alias t0. A nil expr compiles to a tautology.
func (g *SQLGen) CompileExpr(entityKey string, e predicate.Expr) (string, []interface{}, error) {
	return g.compile(entityKey, "t0", 0, e)
}

func (g *SQLGen) compile(entityKey, alias string, depth int, e predicate.Expr) (string, []interface{}, error) {
	if e == nil {
		return "1 = 1", nil, nil
	}

	switch node := e.(type) {
	case predicate.And:
		return g.compileList(entityKey, alias, depth, node.Exprs, " AND ", "1 = 1")
	case predicate.Or:
		return g.compileList(entityKey, alias, depth, node.Exprs, " OR ", "1 = 0")
	case predicate.Not:
		inner, params, err := g.compile(entityKey, alias, depth, node.Expr)
		if err != nil {
			return "", nil, err
		}
		return fmt.Sprintf("NOT (%s)", inner), params, nil
	case predicate.Field:
		return g.compileField(alias, node)
	case predicate.Relation:
		return g.compileRelation(entityKey, alias, depth, node)
	case predicate.IsNull:
		col, err := qualify(alias, node.Name)
		if err != nil {
			return "", nil, err
		}
		return fmt.Sprintf("%s IS NULL", col), nil, nil
	default:
		return "", nil, fmt.Errorf("unsupported predicate node: %T", e)
	}
}

func (g *SQLGen) compileList(entityKey, alias string, depth int, exprs []predicate.Expr, sep, empty string) (string, []interface{}, error) {
	if len(exprs) == 0 {
		return empty, nil, nil
	}
	parts := make([]string, 0, len(exprs))
	var params []interface{}
	for _, e := range exprs {
		sql, p, err := g.compile(entityKey, alias, depth, e)
		if err != nil {
			return "", nil, err
		}
		parts = append(parts, sql)
		params = append(params, p...)
	}
	if len(parts) == 1 {
		return parts[0], params, nil
	}
	return "(" + strings.Join(parts, sep) + ")", params, nil
}

// compileRelation emits an EXISTS / NOT EXISTS correlated subquery over
// the related table, with the inner predicate compiled against the
// related entity at the next alias depth.
func (g *SQLGen) compileRelation(entityKey, alias string, depth int, rel predicate.Relation) (string, []interface{}, error) {
	entity, ok := g.catalog.Entity(entityKey)
	if !ok {
		return "", nil, fmt.Errorf("unknown entity %q", entityKey)
	}
	def, ok := entity.Relations[rel.Name]
	if !ok {
		return "", nil, fmt.Errorf("entity %q has no relation %q", entityKey, rel.Name)
	}
	related, ok := g.catalog.Entity(def.Entity)
	if !ok {
		return "", nil, fmt.Errorf("relation %q targets unknown entity %q", rel.Name, def.Entity)
	}
	table, ok := g.tables[related.Delegate]
	if !ok {
		return "", nil, fmt.Errorf("no table registered for delegate %q", related.Delegate)
	}

	childAlias := fmt.Sprintf("t%d", depth+1)
	toCol, err := qualify(childAlias, def.ToField)
	if err != nil {
		return "", nil, err
	}
	fromCol, err := qualify(alias, def.FromField)
	if err != nil {
		return "", nil, err
	}

	inner, params, err := g.compile(def.Entity, childAlias, depth+1, rel.Expr)
	if err != nil {
		return "", nil, err
	}

	op := "EXISTS"
	if rel.Quantifier == predicate.QuantNone {
		op = "NOT EXISTS"
	}
	sql := fmt.Sprintf("%s (SELECT 1 FROM %s AS %s WHERE %s = %s AND %s)",
		op, table.Name, childAlias, toCol, fromCol, inner)
	return sql, params, nil
}

func (g *SQLGen) compileField(alias string, f predicate.Field) (string, []interface{}, error) {
	col, err := qualify(alias, f.Name)
	if err != nil {
		return "", nil, err
	}

	switch f.Op {
	case predicate.OpEq:
		if f.Value == nil {
			return fmt.Sprintf("%s IS NULL", col), nil, nil
		}
		return fmt.Sprintf("%s = ?", col), []interface{}{bindValue(f.Value)}, nil
	case predicate.OpNeq:
		if f.Value == nil {
			return fmt.Sprintf("%s IS NOT NULL", col), nil, nil
		}
		return fmt.Sprintf("%s <> ?", col), []interface{}{bindValue(f.Value)}, nil
	case predicate.OpGt:
		return fmt.Sprintf("%s > ?", col), []interface{}{bindValue(f.Value)}, nil
	case predicate.OpGte:
		return fmt.Sprintf("%s >= ?", col), []interface{}{bindValue(f.Value)}, nil
	case predicate.OpLt:
		return fmt.Sprintf("%s < ?", col), []interface{}{bindValue(f.Value)}, nil
	case predicate.OpLte:
		return fmt.Sprintf("%s <= ?", col), []interface{}{bindValue(f.Value)}, nil

	case predicate.OpIn, predicate.OpNotIn:
		values, err := valueList(f.Value)
		if err != nil {
			return "", nil, fmt.Errorf("%s on %s: %w", f.Op, f.Name, err)
		}
		if len(values) == 0 {
			// in () matches nothing; not_in () matches everything.
			if f.Op == predicate.OpIn {
				return "1 = 0", nil, nil
			}
			return "1 = 1", nil, nil
		}
		placeholders := strings.Repeat("?, ", len(values)-1) + "?"
		kw := "IN"
		if f.Op == predicate.OpNotIn {
			kw = "NOT IN"
		}
		return fmt.Sprintf("%s %s (%s)", col, kw, placeholders), values, nil

	case predicate.OpContains:
		return likeClause(col, f.Value, "%%%s%%", false)
	case predicate.OpNotContains:
		return likeClause(col, f.Value, "%%%s%%", true)
	case predicate.OpStartsWith:
		return likeClause(col, f.Value, "%s%%", false)
	case predicate.OpEndsWith:
		return likeClause(col, f.Value, "%%%s", false)

	case predicate.OpIsEmpty:
		return fmt.Sprintf("(%s IS NULL OR %s = '')", col, col), nil, nil
	case predicate.OpIsNotEmpty:
		return fmt.Sprintf("(%s IS NOT NULL AND %s <> '')", col, col), nil, nil

	case predicate.OpBetween:
		bounds, err := valueList(f.Value)
		if err != nil || len(bounds) != 2 {
			return "", nil, fmt.Errorf("between on %s needs exactly two bounds", f.Name)
		}
		return fmt.Sprintf("(%s >= ? AND %s <= ?)", col, col), bounds, nil

	case predicate.OpContainsAny, predicate.OpContainsAll:
		terms, err := valueList(f.Value)
		if err != nil || len(terms) == 0 {
			return "", nil, fmt.Errorf("%s on %s needs a non-empty term list", f.Op, f.Name)
		}
		sep := " OR "
		if f.Op == predicate.OpContainsAll {
			sep = " AND "
		}
		parts := make([]string, 0, len(terms))
		var params []interface{}
		for _, term := range terms {
			clause, p, err := likeClause(col, term, "%%%s%%", false)
			if err != nil {
				return "", nil, err
			}
			parts = append(parts, clause)
			params = append(params, p...)
		}
		return "(" + strings.Join(parts, sep) + ")", params, nil

	case predicate.OpHasSome, predicate.OpHasNone:
		// Relation operators must be rewritten upstream.
		return "", nil, fmt.Errorf("operator %s on %s reached SQL generation unrewritten", f.Op, f.Name)

	default:
		return "", nil, fmt.Errorf("unsupported operator %q", f.Op)
	}
}

var identPattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

func qualify(alias, column string) (string, error) {
	if !identPattern.MatchString(column) {
		return "", fmt.Errorf("invalid column name %q", column)
	}
	return alias + "." + column, nil
}

func likeClause(col string, value interface{}, pattern string, negate bool) (string, []interface{}, error) {
	s, ok := value.(string)
	if !ok {
		return "", nil, fmt.Errorf("LIKE operator needs a string value, got %T", value)
	}
	kw := "LIKE"
	if negate {
		kw = "NOT LIKE"
	}
	term := fmt.Sprintf(pattern, escapeLike(s))
	return fmt.Sprintf("%s %s ? ESCAPE '\\'", col, kw), []interface{}{term}, nil
}

// escapeLike neutralizes LIKE wildcards inside user-supplied terms.
func escapeLike(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, "%", `\%`)
	s = strings.ReplaceAll(s, "_", `\_`)
	return s
}

func valueList(v interface{}) ([]interface{}, error) {
	switch list := v.(type) {
	case []interface{}:
		out := make([]interface{}, len(list))
		for i, item := range list {
			out[i] = bindValue(item)
		}
		return out, nil
	case []string:
		out := make([]interface{}, len(list))
		for i, item := range list {
			out[i] = item
		}
		return out, nil
	default:
		return nil, fmt.Errorf("expected a list value, got %T", v)
	}
}

// bindValue converts predicate values to driver-friendly parameters.
// Timestamps are stored as RFC3339 UTC text, so comparisons stay
// lexicographic.
func bindValue(v interface{}) interface{} {
	if t, ok := v.(time.Time); ok {
		return t.UTC().Format(time.RFC3339)
	}
	return v
}
