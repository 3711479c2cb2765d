package resolver

import (
	"fmt"
	"strings"

	"github.com/cloudshield/eqlproxy/internal/schema"
	"github.com/cloudshield/eqlproxy/internal/sqlast"
)

// ScopeError is raised when an identifier can't be resolved uniquely —
// unknown, or ambiguous across more than one relation in scope.
type ScopeError struct {
	Ident string
	Msg   string
}

func (e *ScopeError) Error() string { return fmt.Sprintf("%s: %s", e.Ident, e.Msg) }

// Relation is one named source of columns visible in a scope: a base
// table, a subquery, or a CTE reference.
type Relation struct {
	// Binding is the name this relation is visible under in the current
	// scope (alias if given, else the table/CTE name).
	Binding string
	// Table is set when this relation is a real schema table, letting
	// the inferencer resolve column specs directly.
	Table *schema.Table
	// Columns lists, in order, the column names this relation exposes —
	// Table.Order for a base table, or the projection's effective
	// aliases for a subquery/CTE.
	Columns []string
	// ColumnTypes parallels Columns for subquery/CTE relations, carrying
	// each projected column's inferred type (opaque to this package —
	// typeinfer casts it back to its own Type). Nil for base tables,
	// whose column types come from the schema registry instead.
	ColumnTypes []ColumnType
}

// ColumnType is an opaque handle to a typeinfer.Type. Kept as `any` here
// so the lower-level resolver package need not import the inferencer.
type ColumnType = any

func (r Relation) hasColumn(name string) bool {
	for _, c := range r.Columns {
		if strings.EqualFold(c, name) {
			return true
		}
	}
	return false
}

// ColumnTypeOf returns the ColumnType bound to name for a subquery/CTE
// relation, or nil if unavailable (base table — look up via schema
// instead).
func (r Relation) ColumnTypeOf(name string) ColumnType {
	for i, c := range r.Columns {
		if strings.EqualFold(c, name) && i < len(r.ColumnTypes) {
			return r.ColumnTypes[i]
		}
	}
	return nil
}

// Scope is a lexical name-resolution scope: the relations visible via a
// FROM/JOIN list, plus an optional parent scope for correlated
// subqueries (a column reference this scope cannot resolve — an
// unqualified name no relation here has, or a qualifier naming no
// relation here — is looked up in the parent; see ResolveColumn).
type Scope struct {
	Relations []Relation
	Parent    *Scope
	CTEs      map[string]Relation
}

// NewRootScope creates an empty top-level scope, optionally with CTEs in
// scope from an enclosing WITH clause.
func NewRootScope(ctes map[string]Relation) *Scope {
	return &Scope{CTEs: ctes}
}

// Sub creates a nested scope (e.g. for a subquery) with this scope as
// parent, inheriting visible CTEs.
func (s *Scope) Sub() *Scope {
	return &Scope{Parent: s, CTEs: s.CTEs}
}

// AddRelation registers a relation as visible in this scope.
func (s *Scope) AddRelation(r Relation) {
	s.Relations = append(s.Relations, r)
}

// ResolveQualified finds the relation the given qualifier names. Exactly
// one relation in this scope (not the parent) may be bound to Qualifier.
func (s *Scope) ResolveQualified(qualifier string) (Relation, error) {
	for _, r := range s.Relations {
		if strings.EqualFold(r.Binding, qualifier) {
			return r, nil
		}
	}
	if cte, ok := s.CTEs[strings.ToLower(qualifier)]; ok {
		return cte, nil
	}
	return Relation{}, &ScopeError{Ident: qualifier, Msg: "no such relation in scope"}
}

// ResolveColumn resolves `ref` against this scope, returning the owning
// relation and plain column name. A qualified reference
// (`qual.ident`/`qual1.qual2.ident`) looks up its qualifier directly; an
// unqualified reference must match exactly one relation's column set —
// matching more than one is a ScopeError (ambiguity), matching zero
// falls through to the parent scope (correlated reference) before
// failing.
func (s *Scope) ResolveColumn(ref *sqlast.ColumnRef) (Relation, string, error) {
	if len(ref.Qualifiers) > 0 {
		qualifier := ref.Qualifiers[len(ref.Qualifiers)-1]
		rel, err := s.ResolveQualified(qualifier)
		if err != nil {
			if s.Parent != nil {
				return s.Parent.ResolveColumn(ref)
			}
			return Relation{}, "", err
		}
		if !rel.hasColumn(ref.Name) {
			return Relation{}, "", &ScopeError{Ident: ref.Name, Msg: fmt.Sprintf("no such column in relation %q", qualifier)}
		}
		return rel, ref.Name, nil
	}

	var matches []Relation
	for _, r := range s.Relations {
		if r.hasColumn(ref.Name) {
			matches = append(matches, r)
		}
	}
	switch len(matches) {
	case 1:
		return matches[0], ref.Name, nil
	case 0:
		if s.Parent != nil {
			return s.Parent.ResolveColumn(ref)
		}
		return Relation{}, "", &ScopeError{Ident: ref.Name, Msg: "no such column in scope"}
	default:
		return Relation{}, "", &ScopeError{Ident: ref.Name, Msg: "ambiguous column reference"}
	}
}

// ExpandWildcard expands `*` or `qual.*` into an ordered list of
// (relation, column) pairs, for projection flattening (§4.4).
func (s *Scope) ExpandWildcard(w *sqlast.Wildcard) ([]ResolvedColumn, error) {
	if w.Qualifier != "" {
		rel, err := s.ResolveQualified(w.Qualifier)
		if err != nil {
			return nil, err
		}
		return columnsOf(rel), nil
	}
	var out []ResolvedColumn
	for _, r := range s.Relations {
		out = append(out, columnsOf(r)...)
	}
	return out, nil
}

// ResolvedColumn is one column produced by wildcard expansion.
type ResolvedColumn struct {
	Relation Relation
	Column   string
}

func columnsOf(r Relation) []ResolvedColumn {
	out := make([]ResolvedColumn, 0, len(r.Columns))
	for _, c := range r.Columns {
		out = append(out, ResolvedColumn{Relation: r, Column: c})
	}
	return out
}

// BuildFromScope builds a Scope for a single Select's FROM clause,
// recursively resolving joins and subqueries. exposeSubquery computes the
// column list a subquery or CTE exposes to the outer scope (the caller
// passes in the inferencer's own logic so resolver stays independent of
// type inference).
func BuildFromScope(
	view *schema.SessionView,
	parent *Scope,
	from []sqlast.TableExpr,
	ctes map[string]Relation,
	exposeSubquery func(q *sqlast.Query) (names []string, types []ColumnType, err error),
) (*Scope, error) {
	scope := &Scope{Parent: parent, CTEs: ctes}
	for _, te := range from {
		if err := addTableExpr(view, scope, te, ctes, exposeSubquery); err != nil {
			return nil, err
		}
	}
	return scope, nil
}

func addTableExpr(
	view *schema.SessionView,
	scope *Scope,
	te sqlast.TableExpr,
	ctes map[string]Relation,
	exposeSubquery func(q *sqlast.Query) (names []string, types []ColumnType, err error),
) error {
	switch v := te.(type) {
	case *sqlast.TableRef:
		binding := v.Alias
		if binding == "" {
			binding = v.Table
		}
		if cte, ok := ctes[strings.ToLower(v.Table)]; ok && v.Schema == "" {
			cte.Binding = binding
			scope.AddRelation(cte)
			return nil
		}
		t, err := view.ResolveTable(v.Table, v.Quoted)
		if err != nil {
			return err
		}
		scope.AddRelation(Relation{Binding: binding, Table: t, Columns: t.Order})
		return nil
	case *sqlast.SubqueryTableExpr:
		cols, types, err := exposeSubquery(v.Query)
		if err != nil {
			return err
		}
		scope.AddRelation(Relation{Binding: v.Alias, Columns: cols, ColumnTypes: types})
		return nil
	case *sqlast.Join:
		if err := addTableExpr(view, scope, v.Left, ctes, exposeSubquery); err != nil {
			return err
		}
		return addTableExpr(view, scope, v.Right, ctes, exposeSubquery)
	default:
		return fmt.Errorf("unsupported table expression in FROM")
	}
}
