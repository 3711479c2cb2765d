package typeinfer

import (
	"strings"

	"github.com/cloudshield/eqlproxy/internal/resolver"
	"github.com/cloudshield/eqlproxy/internal/schema"
	"github.com/cloudshield/eqlproxy/internal/sqlast"
)

// inferer carries the mutable state of one InferStatement run: the
// unifier, the node->type map keyed by AST node identity (§9), and the
// collected parameter types.
type inferer struct {
	view   *schema.SessionView
	u      *Unifier
	funcs  *FuncRegistry
	binops *BinOpRegistry

	nodeTypes map[any]*Type
	params    map[int]*Type
}

// InferStatement runs the EQL mapper over stmt, producing a resolved
// type for every node it visits (§4.5). view resolves column/table
// lookups against the schema registry, including any DDL this
// connection has already observed.
func InferStatement(stmt sqlast.Statement, view *schema.SessionView) (*Result, error) {
	inf := &inferer{
		view:      view,
		u:         NewUnifier(),
		funcs:     NewFuncRegistry(),
		binops:    NewBinOpRegistry(),
		nodeTypes: make(map[any]*Type),
		params:    make(map[int]*Type),
	}

	var projType *Type
	var err error
	switch v := stmt.(type) {
	case *sqlast.Query:
		projType, err = inf.inferQuery(v, nil)
	case *sqlast.InsertStatement:
		projType, err = inf.inferInsertStatement(v)
	case *sqlast.UpdateStatement:
		projType, err = inf.inferUpdateStatement(v)
	case *sqlast.DeleteStatement:
		projType, err = inf.inferDeleteStatement(v)
	case *sqlast.CreateTableStatement:
		projType = NewProjection(nil)
	case *sqlast.SetStatement:
		projType = NewProjection(nil)
	case *sqlast.OtherStatement:
		projType = NewProjection(nil)
	default:
		return nil, newUnsupported("unsupported statement type %T", stmt)
	}
	if err != nil {
		return nil, err
	}

	inf.defaultUnboundLeaves()

	all := make([]*Type, 0, len(inf.nodeTypes)+len(inf.params))
	for _, t := range inf.nodeTypes {
		all = append(all, t)
	}
	for _, t := range inf.params {
		all = append(all, t)
	}
	if err := inf.u.CheckComplete(all); err != nil {
		return nil, err
	}

	return &Result{
		u:           inf.u,
		NodeTypes:   inf.nodeTypes,
		Params:      inf.params,
		EqlLiterals: inf.collectEqlLiterals(),
		Projection:  inf.projectionColumns(projType),
	}, nil
}

// defaultUnboundLeaves binds any literal or placeholder whose type
// stayed an unconstrained variable to Native. A literal or parameter
// only ever becomes Eql by unifying against a schema column or another
// Eql value; one that unified with nothing (e.g. `SELECT 'x'`) has no
// basis to be anything but Native.
func (inf *inferer) defaultUnboundLeaves() {
	for k, t := range inf.nodeTypes {
		switch k.(type) {
		case *sqlast.Literal, *sqlast.ParamRef:
			if inf.u.Resolve(t).Tag == TagVar {
				inf.u.Unify(t, NewNative(nil))
			}
		}
	}
	for _, t := range inf.params {
		if inf.u.Resolve(t).Tag == TagVar {
			inf.u.Unify(t, NewNative(nil))
		}
	}
}

func (inf *inferer) collectEqlLiterals() []EqlLiteral {
	var out []EqlLiteral
	for k, t := range inf.nodeTypes {
		lit, ok := k.(*sqlast.Literal)
		if !ok {
			continue
		}
		if col, ok := inf.u.Resolve(t).EqlColumn(); ok {
			out = append(out, EqlLiteral{Lit: lit, Table: col.Table, Column: col.Column})
		}
	}
	return out
}

func (inf *inferer) projectionColumns(t *Type) []ProjectionColumn {
	rt := inf.u.Resolve(t)
	if rt == nil || rt.Tag != TagValue || rt.Value.Kind != KindProjection {
		return nil
	}
	return rt.Value.Columns
}

func (inf *inferer) projectionShape(t *Type) ([]string, []resolver.ColumnType) {
	rt := inf.u.Resolve(t)
	if rt == nil || rt.Tag != TagValue || rt.Value.Kind != KindProjection {
		return nil, nil
	}
	names := make([]string, len(rt.Value.Columns))
	types := make([]resolver.ColumnType, len(rt.Value.Columns))
	for i, c := range rt.Value.Columns {
		names[i] = c.Alias
		types[i] = c.Type
	}
	return names, types
}

func aliasRelation(cols []ProjectionColumn) resolver.Relation {
	var names []string
	var types []resolver.ColumnType
	for _, c := range cols {
		if c.Alias == "" {
			continue
		}
		names = append(names, c.Alias)
		types = append(types, c.Type)
	}
	return resolver.Relation{Columns: names, ColumnTypes: types}
}

// exposeSubqueryInFrom is the resolver's hook for typing a derived
// table (`FROM (SELECT ...) AS alias`). FROM-positioned subqueries are
// treated as uncorrelated, matching standard (non-LATERAL) SQL scoping.
func (inf *inferer) exposeSubqueryInFrom(q *sqlast.Query) ([]string, []resolver.ColumnType, error) {
	t, err := inf.inferQuery(q, nil)
	if err != nil {
		return nil, nil, err
	}
	names, types := inf.projectionShape(t)
	return names, types, nil
}

// inferQuery types a Query (CTEs, body, trailing ORDER BY/LIMIT/OFFSET).
// parent is the enclosing scope for a correlated subquery, or nil at the
// statement root and for uncorrelated FROM-list subqueries.
func (inf *inferer) inferQuery(q *sqlast.Query, parent *resolver.Scope) (*Type, error) {
	ctes := map[string]resolver.Relation{}
	if parent != nil {
		for k, v := range parent.CTEs {
			ctes[k] = v
		}
	}
	if q.With != nil {
		cteParent := resolver.NewRootScope(ctes)
		for _, cte := range q.With.CTEs {
			t, err := inf.inferQuery(cte.Query, cteParent)
			if err != nil {
				return nil, err
			}
			names, types := inf.projectionShape(t)
			ctes[strings.ToLower(cte.Name)] = resolver.Relation{Binding: cte.Name, Columns: names, ColumnTypes: types}
			cteParent = resolver.NewRootScope(ctes)
		}
	}

	bodyType, outScope, err := inf.inferSetExpr(q.Body, parent, ctes)
	if err != nil {
		return nil, err
	}

	if len(q.OrderBy) > 0 {
		orderScope := outScope
		if orderScope == nil {
			orderScope = resolver.NewRootScope(ctes)
		}
		cols := inf.projectionColumns(bodyType)
		if rel := aliasRelation(cols); len(rel.Columns) > 0 {
			orderScope = &resolver.Scope{Relations: []resolver.Relation{rel}, Parent: orderScope, CTEs: ctes}
		}
		for _, item := range q.OrderBy {
			if _, err := inf.inferExpr(item.Expr, orderScope); err != nil {
				return nil, err
			}
		}
	}
	if q.Limit != nil {
		if _, err := inf.inferExpr(q.Limit, resolver.NewRootScope(ctes)); err != nil {
			return nil, err
		}
	}
	if q.Offset != nil {
		if _, err := inf.inferExpr(q.Offset, resolver.NewRootScope(ctes)); err != nil {
			return nil, err
		}
	}

	inf.nodeTypes[q] = bodyType
	return bodyType, nil
}

// inferSetExpr types a Select or a set operation combining two SetExprs.
// It additionally returns the scope whose FROM-list columns remain
// reachable from a trailing ORDER BY (nil for set operations and bare
// VALUES, where only output aliases are reachable).
func (inf *inferer) inferSetExpr(se sqlast.SetExpr, parent *resolver.Scope, ctes map[string]resolver.Relation) (*Type, *resolver.Scope, error) {
	switch v := se.(type) {
	case *sqlast.Select:
		return inf.inferSelect(v, parent, ctes)
	case *sqlast.SetOp:
		lt, _, err := inf.inferSetExpr(v.Left, parent, ctes)
		if err != nil {
			return nil, nil, err
		}
		rt, _, err := inf.inferSetExpr(v.Right, parent, ctes)
		if err != nil {
			return nil, nil, err
		}
		if err := inf.u.Unify(lt, rt); err != nil {
			return nil, nil, err
		}
		inf.nodeTypes[v] = lt
		return lt, nil, nil
	case *sqlast.Values:
		t, err := inf.inferValues(v, nil)
		return t, nil, err
	default:
		return nil, nil, newUnsupported("unsupported set expression %T", se)
	}
}

func (inf *inferer) inferSelect(sel *sqlast.Select, parent *resolver.Scope, ctes map[string]resolver.Relation) (*Type, *resolver.Scope, error) {
	scope, err := resolver.BuildFromScope(inf.view, parent, sel.From, ctes, inf.exposeSubqueryInFrom)
	if err != nil {
		return nil, nil, err
	}

	cols, err := inf.inferProjectionList(sel.Projection, scope)
	if err != nil {
		return nil, nil, err
	}

	// GROUP BY/HAVING may reference an output alias; make it reachable
	// without shadowing a same-named FROM column — the alias relation
	// sits in a child scope so an unqualified match there wins only when
	// unique, otherwise falling through to the real FROM columns rather
	// than colliding with them (matches against two Relations with the
	// same column name would otherwise read as ScopeError ambiguity).
	groupScope := scope
	if rel := aliasRelation(cols); len(rel.Columns) > 0 {
		groupScope = &resolver.Scope{Relations: []resolver.Relation{rel}, Parent: scope, CTEs: scope.CTEs}
	}

	if sel.Where != nil {
		if _, err := inf.inferExpr(sel.Where, scope); err != nil {
			return nil, nil, err
		}
	}
	for _, g := range sel.GroupBy {
		if _, err := inf.inferExpr(g, groupScope); err != nil {
			return nil, nil, err
		}
	}
	if sel.Having != nil {
		if _, err := inf.inferExpr(sel.Having, groupScope); err != nil {
			return nil, nil, err
		}
	}

	projType := NewProjection(cols)
	inf.nodeTypes[sel] = projType
	return projType, scope, nil
}

func (inf *inferer) inferProjectionList(items []sqlast.SelectItem, scope *resolver.Scope) ([]ProjectionColumn, error) {
	var out []ProjectionColumn
	for _, item := range items {
		cols, err := inf.inferSelectItem(item, scope)
		if err != nil {
			return nil, err
		}
		out = append(out, cols...)
	}
	return out, nil
}

func (inf *inferer) inferSelectItem(item sqlast.SelectItem, scope *resolver.Scope) ([]ProjectionColumn, error) {
	if item.Wildcard != nil {
		resolved, err := scope.ExpandWildcard(item.Wildcard)
		if err != nil {
			return nil, err
		}
		out := make([]ProjectionColumn, 0, len(resolved))
		for _, rc := range resolved {
			t, err := inf.typeOfRelationColumn(rc.Relation, rc.Column)
			if err != nil {
				return nil, err
			}
			out = append(out, ProjectionColumn{Type: t, Alias: rc.Column})
		}
		return out, nil
	}
	t, err := inf.inferExpr(item.Expr, scope)
	if err != nil {
		return nil, err
	}
	return []ProjectionColumn{{Type: t, Alias: resolver.EffectiveAlias(item)}}, nil
}

func (inf *inferer) typeOfRelationColumn(rel resolver.Relation, column string) (*Type, error) {
	if rel.Table != nil {
		spec, ok := rel.Table.Columns[strings.ToLower(column)]
		if !ok {
			return nil, &schema.ErrUnknownColumn{Table: rel.Table.Name, Column: column}
		}
		if spec.Native() {
			return NewNative(&TableColumn{Table: rel.Table.Name, Column: column}), nil
		}
		return NewEql(rel.Table.Name, column), nil
	}
	if ct := rel.ColumnTypeOf(column); ct != nil {
		if t, ok := ct.(*Type); ok {
			return t, nil
		}
	}
	return inf.u.Fresh(), nil
}

func (inf *inferer) inferValues(v *sqlast.Values, targetCols []*Type) (*Type, error) {
	if len(v.Rows) == 0 {
		res := NewProjection(nil)
		inf.nodeTypes[v] = res
		return res, nil
	}
	arity := len(v.Rows[0])
	colTypes := make([]*Type, arity)
	for i := range colTypes {
		if i < len(targetCols) {
			colTypes[i] = targetCols[i]
		} else {
			colTypes[i] = inf.u.Fresh()
		}
	}
	for _, row := range v.Rows {
		if len(row) != arity {
			return nil, newArity("VALUES rows must all have the same number of columns")
		}
		for i, e := range row {
			t, err := inf.inferExpr(e, nil)
			if err != nil {
				return nil, err
			}
			if err := inf.u.Unify(colTypes[i], t); err != nil {
				return nil, err
			}
		}
	}
	cols := make([]ProjectionColumn, arity)
	for i, t := range colTypes {
		cols[i] = ProjectionColumn{Type: t}
	}
	res := NewProjection(cols)
	inf.nodeTypes[v] = res
	return res, nil
}

func (inf *inferer) inferExpr(e sqlast.Expr, scope *resolver.Scope) (*Type, error) {
	switch v := e.(type) {
	case *sqlast.ColumnRef:
		if scope == nil {
			return nil, newUnsupported("column reference %q not valid in this context", v.Name)
		}
		rel, name, err := scope.ResolveColumn(v)
		if err != nil {
			return nil, err
		}
		t, err := inf.typeOfRelationColumn(rel, name)
		if err != nil {
			return nil, err
		}
		inf.nodeTypes[v] = t
		return t, nil

	case *sqlast.ParamRef:
		t, ok := inf.params[v.Index]
		if !ok {
			t = inf.u.Fresh()
			inf.params[v.Index] = t
		}
		inf.nodeTypes[v] = t
		return t, nil

	case *sqlast.Literal:
		t := inf.u.Fresh()
		inf.nodeTypes[v] = t
		return t, nil

	case *sqlast.BinaryOp:
		return inf.inferBinaryOp(v, scope)

	case *sqlast.UnaryOp:
		if _, err := inf.inferExpr(v.Expr, scope); err != nil {
			return nil, err
		}
		res := NewNative(nil)
		inf.nodeTypes[v] = res
		return res, nil

	case *sqlast.FuncCall:
		return inf.inferFuncCall(v, scope)

	case *sqlast.Cast:
		inner, err := inf.inferExpr(v.Expr, scope)
		if err != nil {
			return nil, err
		}
		inf.nodeTypes[v] = inner
		return inner, nil

	case *sqlast.InList:
		t, err := inf.inferExpr(v.Expr, scope)
		if err != nil {
			return nil, err
		}
		for _, item := range v.Items {
			it, err := inf.inferExpr(item, scope)
			if err != nil {
				return nil, err
			}
			if err := inf.u.Unify(t, it); err != nil {
				return nil, err
			}
		}
		res := NewNative(nil)
		inf.nodeTypes[v] = res
		return res, nil

	case *sqlast.SubqueryExpr:
		t, err := inf.inferQuery(v.Query, scope)
		if err != nil {
			return nil, err
		}
		if v.Exists {
			res := NewNative(nil)
			inf.nodeTypes[v] = res
			return res, nil
		}
		rt := inf.u.Resolve(t)
		chosen := inf.u.Fresh()
		if rt.Tag == TagValue && rt.Value.Kind == KindProjection && len(rt.Value.Columns) > 0 {
			chosen = rt.Value.Columns[0].Type
		}
		inf.nodeTypes[v] = chosen
		return chosen, nil

	default:
		return nil, newUnsupported("unsupported expression %T", e)
	}
}

func (inf *inferer) inferBinaryOp(v *sqlast.BinaryOp, scope *resolver.Scope) (*Type, error) {
	left, err := inf.inferExpr(v.Left, scope)
	if err != nil {
		return nil, err
	}
	right, err := inf.inferExpr(v.Right, scope)
	if err != nil {
		return nil, err
	}

	sig := inf.binops.Lookup(v.Op)
	var result *Type
	switch sig.kind {
	case opJSONPath:
		result = left
	case opJSONContainment:
		if err := inf.u.Unify(left, right); err != nil {
			return nil, err
		}
		result = NewNative(nil)
	case opCompare:
		if err := inf.u.Unify(left, right); err != nil {
			return nil, err
		}
		result = NewNative(nil)
	default: // opUnknownFallback
		if err := inf.u.Unify(left, NewNative(nil)); err != nil {
			return nil, err
		}
		if err := inf.u.Unify(right, NewNative(nil)); err != nil {
			return nil, err
		}
		result = NewNative(nil)
	}
	inf.nodeTypes[v] = result
	return result, nil
}

func (inf *inferer) inferFuncCall(v *sqlast.FuncCall, scope *resolver.Scope) (*Type, error) {
	if v.Star {
		res := NewNative(nil)
		inf.nodeTypes[v] = res
		return res, nil
	}

	args := make([]*Type, 0, len(v.Args))
	for _, a := range v.Args {
		t, err := inf.inferExpr(a, scope)
		if err != nil {
			return nil, err
		}
		args = append(args, t)
	}

	sig, ok := inf.funcs.Lookup(v.Name, len(args))
	if !ok {
		for _, a := range args {
			if err := inf.u.Unify(a, NewNative(nil)); err != nil {
				return nil, err
			}
		}
		res := NewNative(nil)
		inf.nodeTypes[v] = res
		return res, nil
	}

	generics := map[string]*Type{}
	for i, ak := range sig.args {
		if i >= len(args) {
			break
		}
		if ak.native {
			if err := inf.u.Unify(args[i], NewNative(nil)); err != nil {
				return nil, err
			}
			continue
		}
		if g, ok := generics[ak.generic]; ok {
			if err := inf.u.Unify(args[i], g); err != nil {
				return nil, err
			}
		} else {
			generics[ak.generic] = args[i]
		}
	}

	var ret *Type
	switch {
	case sig.ret.native:
		ret = NewNative(nil)
	default:
		if g, ok := generics[sig.ret.generic]; ok {
			ret = g
		} else {
			ret = inf.u.Fresh()
		}
	}
	inf.nodeTypes[v] = ret
	return ret, nil
}

func (inf *inferer) inferInsertStatement(ins *sqlast.InsertStatement) (*Type, error) {
	t, err := inf.view.ResolveTable(ins.Table.Table, ins.Table.Quoted)
	if err != nil {
		return nil, err
	}
	cols := ins.Columns
	if len(cols) == 0 {
		cols = append([]string(nil), t.Order...)
	}
	targetTypes := make([]*Type, len(cols))
	for i, c := range cols {
		spec, ok := t.Columns[strings.ToLower(c)]
		if !ok {
			return nil, &schema.ErrUnknownColumn{Table: t.Name, Column: c}
		}
		if spec.Native() {
			targetTypes[i] = NewNative(&TableColumn{Table: t.Name, Column: c})
		} else {
			targetTypes[i] = NewEql(t.Name, c)
		}
	}

	var srcType *Type
	if values, ok := ins.Source.Body.(*sqlast.Values); ok && ins.Source.With == nil {
		srcType, err = inf.inferValues(values, targetTypes)
	} else {
		srcType, err = inf.inferQuery(ins.Source, nil)
	}
	if err != nil {
		return nil, err
	}
	target := NewProjection(colsFromTypes(targetTypes))
	if err := inf.u.Unify(srcType, target); err != nil {
		return nil, err
	}

	if len(ins.Returning) == 0 {
		return NewProjection(nil), nil
	}
	scope := resolver.NewRootScope(nil)
	binding := ins.Table.Alias
	if binding == "" {
		binding = t.Name
	}
	scope.AddRelation(resolver.Relation{Binding: binding, Table: t, Columns: t.Order})
	cols2, err := inf.inferProjectionList(ins.Returning, scope)
	if err != nil {
		return nil, err
	}
	return NewProjection(cols2), nil
}

func colsFromTypes(ts []*Type) []ProjectionColumn {
	out := make([]ProjectionColumn, len(ts))
	for i, t := range ts {
		out[i] = ProjectionColumn{Type: t}
	}
	return out
}

func (inf *inferer) inferUpdateStatement(upd *sqlast.UpdateStatement) (*Type, error) {
	t, err := inf.view.ResolveTable(upd.Table.Table, upd.Table.Quoted)
	if err != nil {
		return nil, err
	}
	scope, err := resolver.BuildFromScope(inf.view, nil, upd.From, nil, inf.exposeSubqueryInFrom)
	if err != nil {
		return nil, err
	}
	binding := upd.Table.Alias
	if binding == "" {
		binding = t.Name
	}
	scope.AddRelation(resolver.Relation{Binding: binding, Table: t, Columns: t.Order})

	for _, asg := range upd.Assignments {
		spec, ok := t.Columns[strings.ToLower(asg.Column)]
		if !ok {
			return nil, &schema.ErrUnknownColumn{Table: t.Name, Column: asg.Column}
		}
		var target *Type
		if spec.Native() {
			target = NewNative(&TableColumn{Table: t.Name, Column: asg.Column})
		} else {
			target = NewEql(t.Name, asg.Column)
		}
		val, err := inf.inferExpr(asg.Value, scope)
		if err != nil {
			return nil, err
		}
		if err := inf.u.Unify(val, target); err != nil {
			return nil, err
		}
	}
	if upd.Where != nil {
		if _, err := inf.inferExpr(upd.Where, scope); err != nil {
			return nil, err
		}
	}
	if len(upd.Returning) == 0 {
		return NewProjection(nil), nil
	}
	cols, err := inf.inferProjectionList(upd.Returning, scope)
	if err != nil {
		return nil, err
	}
	return NewProjection(cols), nil
}

func (inf *inferer) inferDeleteStatement(del *sqlast.DeleteStatement) (*Type, error) {
	t, err := inf.view.ResolveTable(del.Table.Table, del.Table.Quoted)
	if err != nil {
		return nil, err
	}
	scope, err := resolver.BuildFromScope(inf.view, nil, del.Using, nil, inf.exposeSubqueryInFrom)
	if err != nil {
		return nil, err
	}
	binding := del.Table.Alias
	if binding == "" {
		binding = t.Name
	}
	scope.AddRelation(resolver.Relation{Binding: binding, Table: t, Columns: t.Order})

	if del.Where != nil {
		if _, err := inf.inferExpr(del.Where, scope); err != nil {
			return nil, err
		}
	}
	if len(del.Returning) == 0 {
		return NewProjection(nil), nil
	}
	cols, err := inf.inferProjectionList(del.Returning, scope)
	if err != nil {
		return nil, err
	}
	return NewProjection(cols), nil
}
