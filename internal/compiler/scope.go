package compiler

import (
	"strings"

	"propsift/internal/errors"
	"propsift/internal/predicate"
	"propsift/internal/registry"
)

// tenantScope builds the mandatory tenant predicate. It is always the
// first fragment ANDed into the compiled query.
func (c *Compiler) tenantScope(entity registry.EntityDefinition, ctx *CompileCtx) (predicate.Expr, error) {
	return c.tenantScopeFor(entity, ctx, 0)
}

func (c *Compiler) tenantScopeFor(entity registry.EntityDefinition, ctx *CompileCtx, depth int) (predicate.Expr, error) {
	// A via_join chain longer than one hop would mean a registry bug.
	if depth > 2 {
		return nil, errors.New(errors.InternalError, "tenant scope join chain too deep for %q", entity.Key)
	}

	switch entity.TenantScope.Mode {
	case registry.ScopeDirect:
		eq := predicate.Eq(entity.TenantScope.Field, ctx.TenantID)
		if entity.TenantScope.AllowLegacyRows {
			// Legacy rows predate tenancy and carry a NULL tenant id.
			return predicate.OrOf(eq, predicate.IsNull{Name: entity.TenantScope.Field}), nil
		}
		return eq, nil

	case registry.ScopeViaJoin:
		relName := entity.TenantScope.Relation
		rel, ok := entity.Relations[relName]
		if !ok {
			return nil, errors.New(errors.InternalError,
				"entity %q scope relation %q is not defined", entity.Key, relName)
		}
		joined, ok := c.catalog.Entity(rel.Entity)
		if !ok {
			return nil, errors.New(errors.InternalError,
				"entity %q scope joins unknown entity %q", entity.Key, rel.Entity)
		}
		inner, err := c.tenantScopeFor(joined, ctx, depth+1)
		if err != nil {
			return nil, err
		}
		return predicate.Relation{Name: relName, Quantifier: predicate.QuantSome, Expr: inner}, nil

	default:
		return nil, errors.New(errors.InternalError,
			"entity %q has unknown tenant scope mode %q", entity.Key, entity.TenantScope.Mode)
	}
}

// permissionScope applies the caller's per-entity permissions. No entry
// means allow; CanRead=false is a hard failure; a row filter narrows the
// query; a restricted role without a row filter falls back to "assigned to
// me" on the primary record entity.
func (c *Compiler) permissionScope(entity registry.EntityDefinition, ctx *CompileCtx, res predicate.Resolution) (predicate.Expr, error) {
	perm, ok := ctx.Permissions[entity.Key]
	if !ok {
		return nil, nil
	}
	if !perm.CanRead {
		return nil, errors.New(errors.PermissionDenied,
			"role %q cannot read entity %q", ctx.Role, entity.Key)
	}
	if len(perm.RowFilter) > 0 {
		exprs := make([]predicate.Expr, 0, len(perm.RowFilter))
		for _, f := range perm.RowFilter {
			e, err := f.Expr(res)
			if err != nil {
				return nil, errors.Wrap(errors.InvalidRequest, err, "invalid row filter")
			}
			rewritten, err := c.rewriteDotted(entity, e)
			if err != nil {
				return nil, err
			}
			exprs = append(exprs, rewritten)
		}
		return predicate.AndOf(exprs...), nil
	}
	if ctx.Role == "member" && entity.Key == "records" {
		return predicate.Eq("assignee_id", ctx.UserID), nil
	}
	return nil, nil
}

// rewriteDotted turns "relation.field" comparisons into quantified
// relation predicates so row filters can reach across joins.
func (c *Compiler) rewriteDotted(entity registry.EntityDefinition, e predicate.Expr) (predicate.Expr, error) {
	f, ok := e.(predicate.Field)
	if !ok || !strings.Contains(f.Name, ".") {
		return e, nil
	}
	parts := strings.SplitN(f.Name, ".", 2)
	relName, field := parts[0], parts[1]
	if _, ok := entity.Relations[relName]; !ok {
		return nil, errors.New(errors.InvalidRequest,
			"row filter references unknown relation %q of entity %q", relName, entity.Key)
	}
	inner := predicate.Field{Name: field, Op: f.Op, Value: f.Value}
	return predicate.Relation{Name: relName, Quantifier: predicate.QuantSome, Expr: inner}, nil
}
