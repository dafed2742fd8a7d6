package compiler

import (
	"propsift/internal/errors"
	"propsift/internal/predicate"
	"propsift/internal/registry"
)

// compileFilters compiles an ANDed filter list, rewriting has_some and
// has_none filters into quantified relation predicates.
func (c *Compiler) compileFilters(entity registry.EntityDefinition, filters []predicate.Filter, res predicate.Resolution) (predicate.Expr, error) {
	exprs := make([]predicate.Expr, 0, len(filters))
	for _, f := range filters {
		e, err := f.Expr(res)
		if err != nil {
			return nil, errors.Wrap(errors.InvalidRequest, err, "invalid filter")
		}
		if field, ok := e.(predicate.Field); ok && (field.Op == predicate.OpHasSome || field.Op == predicate.OpHasNone) {
			rel, err := c.relationFilter(entity, field)
			if err != nil {
				return nil, err
			}
			exprs = append(exprs, rel)
			continue
		}
		exprs = append(exprs, e)
	}
	return predicate.AndOf(exprs...), nil
}

// relationFilter turns a has_some/has_none field comparison into a
// Relation predicate. The field names a relation of the entity; the value,
// when present, is a list of ids matched against the relation's value
// column.
func (c *Compiler) relationFilter(entity registry.EntityDefinition, f predicate.Field) (predicate.Expr, error) {
	rel, ok := entity.Relations[f.Name]
	if !ok {
		return nil, errors.New(errors.InvalidRequest,
			"operator %s requires a relation, but %q is not a relation of %q", f.Op, f.Name, entity.Key)
	}

	quant := predicate.QuantSome
	if f.Op == predicate.OpHasNone {
		quant = predicate.QuantNone
	}

	var inner predicate.Expr
	if ids, ok := f.Value.([]interface{}); ok && len(ids) > 0 {
		if rel.ValueField == "" {
			return nil, errors.New(errors.InvalidRequest,
				"relation %q of %q does not support id matching", f.Name, entity.Key)
		}
		inner = predicate.In(rel.ValueField, ids)
	}

	return predicate.Relation{Name: f.Name, Quantifier: quant, Expr: inner}, nil
}

// Entities that carry these record-level fields directly. Anything else
// reaches them through the record relation.
var directStatusEntities = map[string]bool{"records": true, "tasks": true}
var directAssigneeEntities = map[string]bool{"records": true, "tasks": true}

// compileGlobalFilters compiles every populated global filter except the
// date range, which is handled as its own pipeline stage.
func (c *Compiler) compileGlobalFilters(entity registry.EntityDefinition, g *GlobalFilters, res predicate.Resolution) (predicate.Expr, error) {
	var exprs []predicate.Expr

	if len(g.Assignees) > 0 {
		e := c.onRecordField(entity, predicate.In("assignee_id", predicate.Strings(g.Assignees)), directAssigneeEntities)
		exprs = append(exprs, e)
	}
	if len(g.Status) > 0 {
		e := c.onRecordField(entity, predicate.In("status", predicate.Strings(g.Status)), directStatusEntities)
		exprs = append(exprs, e)
	}
	if len(g.Temperature) > 0 {
		e := c.onRecords(entity, predicate.In("temperature", predicate.Strings(g.Temperature)))
		exprs = append(exprs, e)
	}

	if g.Tags != nil {
		if e := c.junctionFilter(entity, "tags", g.Tags); e != nil {
			exprs = append(exprs, e)
		}
	}
	if g.Motivations != nil {
		if e := c.junctionFilter(entity, "motivations", g.Motivations); e != nil {
			exprs = append(exprs, e)
		}
	}

	if g.Market != nil {
		if len(g.Market.States) > 0 {
			exprs = append(exprs, c.onRecords(entity, predicate.In("state", predicate.Strings(g.Market.States))))
		}
		if len(g.Market.Cities) > 0 {
			exprs = append(exprs, c.onRecords(entity, predicate.In("city", predicate.Strings(g.Market.Cities))))
		}
	}

	if g.Board != nil {
		if g.Board.ColumnID != "" {
			exprs = append(exprs, c.onRecords(entity, predicate.Eq("column_id", g.Board.ColumnID)))
		} else if g.Board.BoardID != "" {
			exprs = append(exprs, c.onRecords(entity, predicate.Eq("board_id", g.Board.BoardID)))
		}
	}

	// callReady is tri-state: true and false are both real filters over the
	// denormalized phone count. Only a nil pointer means "no constraint".
	if g.CallReady != nil {
		var e predicate.Expr
		if *g.CallReady {
			e = predicate.Field{Name: "phone_count", Op: predicate.OpGt, Value: 0}
		} else {
			e = predicate.Eq("phone_count", 0)
		}
		exprs = append(exprs, c.onRecords(entity, e))
	}

	return predicate.AndOf(exprs...), nil
}

// onRecords applies a record-level predicate either directly (when the
// query target is records) or through the record relation. Entities with
// no path to records ignore the filter.
func (c *Compiler) onRecords(entity registry.EntityDefinition, e predicate.Expr) predicate.Expr {
	if entity.Key == "records" {
		return e
	}
	if _, ok := entity.Relations["record"]; ok {
		return predicate.Relation{Name: "record", Quantifier: predicate.QuantSome, Expr: e}
	}
	return nil
}

// onRecordField is like onRecords but for fields some entities carry
// themselves (status, assignee).
func (c *Compiler) onRecordField(entity registry.EntityDefinition, e predicate.Expr, direct map[string]bool) predicate.Expr {
	if direct[entity.Key] {
		return e
	}
	return c.onRecords(entity, e)
}

// junctionFilter applies include ("some of these") and exclude ("none of
// these") id lists through a junction relation of records.
func (c *Compiler) junctionFilter(entity registry.EntityDefinition, relation string, ie *IncludeExclude) predicate.Expr {
	records, ok := c.catalog.Entity("records")
	if !ok {
		return nil
	}
	rel, ok := records.Relations[relation]
	if !ok || rel.ValueField == "" {
		return nil
	}

	var parts []predicate.Expr
	if len(ie.Include) > 0 {
		parts = append(parts, c.onRecords(entity, predicate.Relation{
			Name:       relation,
			Quantifier: predicate.QuantSome,
			Expr:       predicate.In(rel.ValueField, predicate.Strings(ie.Include)),
		}))
	}
	if len(ie.Exclude) > 0 {
		parts = append(parts, c.onRecords(entity, predicate.Relation{
			Name:       relation,
			Quantifier: predicate.QuantNone,
			Expr:       predicate.In(rel.ValueField, predicate.Strings(ie.Exclude)),
		}))
	}
	return predicate.AndOf(parts...)
}
