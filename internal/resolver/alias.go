// Package resolver walks a parsed statement establishing lexical scopes
// for FROM/JOIN/CTE/set-operation/subquery constructs and resolves
// identifiers against them (§4.4).
package resolver

import "github.com/cloudshield/eqlproxy/internal/sqlast"

// EffectiveAlias computes the name PostgreSQL would assign to a
// projection column that carries no subquery/CTE context of its own:
// explicit alias > bare column identifier > last path component of a
// compound identifier > function name > none. Shared between the
// resolver (to name the columns a subquery or CTE exposes to its outer
// scope) and the rewriter's PreserveEffectiveAliases rule (§4.6 rule 4),
// since both need PostgreSQL's exact naming rule.
func EffectiveAlias(item sqlast.SelectItem) string {
	if item.Alias != "" {
		return item.Alias
	}
	if item.Wildcard != nil {
		return ""
	}
	return effectiveAliasForExpr(item.Expr)
}

func effectiveAliasForExpr(e sqlast.Expr) string {
	switch v := e.(type) {
	case *sqlast.ColumnRef:
		return v.Name
	case *sqlast.FuncCall:
		return v.Name
	case *sqlast.Cast:
		return effectiveAliasForExpr(v.Expr)
	default:
		return ""
	}
}
