package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"propsift/internal/predicate"
)

// GroupRow is one bucket of a grouped count. A NULL group key surfaces as
// an empty string.
type GroupRow struct {
	Key   string
	Count int64
}

// LabelRow is a name/color pair read from a label table.
type LabelRow struct {
	ID    string
	Name  string
	Color string
}

// Querier runs the generic analytics operations for one entity delegate.
type Querier struct {
	db     *DB
	entity string
	table  TableMeta
}

// Querier returns the query interface for an entity key.
func (db *DB) Querier(entityKey string) (*Querier, error) {
	entity, ok := db.gen.catalog.Entity(entityKey)
	if !ok {
		return nil, fmt.Errorf("unknown entity %q", entityKey)
	}
	table, ok := db.gen.Table(entity.Delegate)
	if !ok {
		return nil, fmt.Errorf("no table registered for delegate %q", entity.Delegate)
	}
	return &Querier{db: db, entity: entityKey, table: table}, nil
}

// Count returns the number of rows matching the predicate.
func (q *Querier) Count(ctx context.Context, where predicate.Expr) (int64, error) {
	cond, params, err := q.db.gen.CompileExpr(q.entity, where)
	if err != nil {
		return 0, err
	}
	query := fmt.Sprintf("SELECT COUNT(*) FROM %s AS t0 WHERE %s", q.table.Name, cond)
	var n int64
	if err := q.db.conn.QueryRowContext(ctx, query, params...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count %s: %w", q.entity, err)
	}
	return n, nil
}

// Aggregate computes sum or avg over a field. NULL (no rows) reads as 0.
func (q *Querier) Aggregate(ctx context.Context, fn, field string, where predicate.Expr) (float64, error) {
	if fn != "sum" && fn != "avg" {
		return 0, fmt.Errorf("unsupported aggregate %q", fn)
	}
	col, err := qualify("t0", field)
	if err != nil {
		return 0, err
	}
	cond, params, err := q.db.gen.CompileExpr(q.entity, where)
	if err != nil {
		return 0, err
	}
	query := fmt.Sprintf("SELECT COALESCE(%s(%s), 0) FROM %s AS t0 WHERE %s",
		strings.ToUpper(fn), col, q.table.Name, cond)
	var v float64
	if err := q.db.conn.QueryRowContext(ctx, query, params...).Scan(&v); err != nil {
		return 0, fmt.Errorf("aggregate %s(%s) on %s: %w", fn, field, q.entity, err)
	}
	return v, nil
}

// DistinctCount counts distinct non-NULL values of a field.
func (q *Querier) DistinctCount(ctx context.Context, field string, where predicate.Expr) (int64, error) {
	col, err := qualify("t0", field)
	if err != nil {
		return 0, err
	}
	cond, params, err := q.db.gen.CompileExpr(q.entity, where)
	if err != nil {
		return 0, err
	}
	query := fmt.Sprintf("SELECT COUNT(DISTINCT %s) FROM %s AS t0 WHERE %s", col, q.table.Name, cond)
	var n int64
	if err := q.db.conn.QueryRowContext(ctx, query, params...).Scan(&n); err != nil {
		return 0, fmt.Errorf("distinct count %s on %s: %w", field, q.entity, err)
	}
	return n, nil
}

// GroupCount groups matching rows by a field (optionally bucketed by a
// date granularity) and counts each group, largest first with a
// deterministic key tiebreak.
func (q *Querier) GroupCount(ctx context.Context, field, granularity string, where predicate.Expr) ([]GroupRow, error) {
	col, err := qualify("t0", field)
	if err != nil {
		return nil, err
	}
	expr := col
	if granularity != "" {
		expr, err = BucketExpr(col, granularity)
		if err != nil {
			return nil, err
		}
	}
	cond, params, err := q.db.gen.CompileExpr(q.entity, where)
	if err != nil {
		return nil, err
	}

	order := "n DESC, grp ASC"
	if granularity != "" {
		// Time buckets read chronologically.
		order = "grp ASC"
	}
	query := fmt.Sprintf(
		"SELECT %s AS grp, COUNT(*) AS n FROM %s AS t0 WHERE %s GROUP BY grp ORDER BY %s",
		expr, q.table.Name, cond, order)

	rows, err := q.db.conn.QueryContext(ctx, query, params...)
	if err != nil {
		return nil, fmt.Errorf("group count %s on %s: %w", field, q.entity, err)
	}
	defer rows.Close()

	var out []GroupRow
	for rows.Next() {
		var key sql.NullString
		var n int64
		if err := rows.Scan(&key, &n); err != nil {
			return nil, err
		}
		out = append(out, GroupRow{Key: key.String, Count: n})
	}
	return out, rows.Err()
}

// FindPage returns a page of matching rows as generic maps, ordered by
// the given column (id when empty) with an id tiebreak for stability.
func (q *Querier) FindPage(ctx context.Context, where predicate.Expr, orderField, orderDir string, offset, limit int) ([]map[string]interface{}, error) {
	cond, params, err := q.db.gen.CompileExpr(q.entity, where)
	if err != nil {
		return nil, err
	}

	if orderField == "" {
		orderField = q.table.ID
	}
	orderCol, err := qualify("t0", orderField)
	if err != nil {
		return nil, err
	}
	dir := "ASC"
	if strings.EqualFold(orderDir, "desc") {
		dir = "DESC"
	}
	idCol, err := qualify("t0", q.table.ID)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf(
		"SELECT t0.* FROM %s AS t0 WHERE %s ORDER BY %s %s, %s ASC LIMIT ? OFFSET ?",
		q.table.Name, cond, orderCol, dir, idCol)
	params = append(params, limit, offset)

	rows, err := q.db.conn.QueryContext(ctx, query, params...)
	if err != nil {
		return nil, fmt.Errorf("find page on %s: %w", q.entity, err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var out []map[string]interface{}
	for rows.Next() {
		values := make([]interface{}, len(cols))
		ptrs := make([]interface{}, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		row := make(map[string]interface{}, len(cols))
		for i, col := range cols {
			v := values[i]
			if b, ok := v.([]byte); ok {
				v = string(b)
			}
			row[col] = v
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// Labels reads id/name/color rows for the given ids. Only meaningful for
// the label tables (tags, motivations, boards).
func (q *Querier) Labels(ctx context.Context, ids []string) ([]LabelRow, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	placeholders := strings.Repeat("?, ", len(ids)-1) + "?"
	query := fmt.Sprintf("SELECT id, name, COALESCE(color, '') FROM %s WHERE id IN (%s)", q.table.Name, placeholders)
	params := make([]interface{}, len(ids))
	for i, id := range ids {
		params[i] = id
	}

	rows, err := q.db.conn.QueryContext(ctx, query, params...)
	if err != nil {
		return nil, fmt.Errorf("labels on %s: %w", q.entity, err)
	}
	defer rows.Close()

	var out []LabelRow
	for rows.Next() {
		var l LabelRow
		if err := rows.Scan(&l.ID, &l.Name, &l.Color); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// AllLabels reads every label row for a tenant.
func (q *Querier) AllLabels(ctx context.Context, tenantID string) ([]LabelRow, error) {
	query := fmt.Sprintf("SELECT id, name, COALESCE(color, '') FROM %s WHERE tenant_id = ?", q.table.Name)
	rows, err := q.db.conn.QueryContext(ctx, query, tenantID)
	if err != nil {
		return nil, fmt.Errorf("all labels on %s: %w", q.entity, err)
	}
	defer rows.Close()

	var out []LabelRow
	for rows.Next() {
		var l LabelRow
		if err := rows.Scan(&l.ID, &l.Name, &l.Color); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// BucketExpr wraps a timestamp column in the strftime expression for a
// granularity. Weeks start on Sunday, matching date range presets.
func BucketExpr(col, granularity string) (string, error) {
	switch granularity {
	case "day":
		return fmt.Sprintf("strftime('%%Y-%%m-%%d', %s)", col), nil
	case "week":
		return fmt.Sprintf("date(%s, '-' || strftime('%%w', %s) || ' days')", col, col), nil
	case "month":
		return fmt.Sprintf("strftime('%%Y-%%m', %s)", col), nil
	default:
		return "", fmt.Errorf("unsupported granularity %q", granularity)
	}
}
