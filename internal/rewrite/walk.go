package rewrite

import "github.com/cloudshield/eqlproxy/internal/sqlast"

// Walk traverses every Query, Select, and Expr node reachable from stmt
// — including CTEs, derived tables, and scalar/EXISTS subqueries — and
// invokes the corresponding non-nil callback for each. Any callback may
// be nil.
func Walk(stmt sqlast.Statement, onQuery func(*sqlast.Query), onSelect func(*sqlast.Select), onExpr func(sqlast.Expr)) {
	w := &walker{onQuery: onQuery, onSelect: onSelect, onExpr: onExpr}
	w.walkStatement(stmt)
}

type walker struct {
	onQuery  func(*sqlast.Query)
	onSelect func(*sqlast.Select)
	onExpr   func(sqlast.Expr)
}

func (w *walker) walkStatement(stmt sqlast.Statement) {
	switch s := stmt.(type) {
	case *sqlast.Query:
		w.walkQuery(s)
	case *sqlast.InsertStatement:
		if s.Source != nil {
			w.walkQuery(s.Source)
		}
		w.walkSelectItems(s.Returning)
	case *sqlast.UpdateStatement:
		for _, a := range s.Assignments {
			w.walkExpr(a.Value)
		}
		for _, f := range s.From {
			w.walkTableExpr(f)
		}
		if s.Where != nil {
			w.walkExpr(s.Where)
		}
		w.walkSelectItems(s.Returning)
	case *sqlast.DeleteStatement:
		for _, u := range s.Using {
			w.walkTableExpr(u)
		}
		if s.Where != nil {
			w.walkExpr(s.Where)
		}
		w.walkSelectItems(s.Returning)
	}
}

func (w *walker) walkQuery(q *sqlast.Query) {
	if q == nil {
		return
	}
	if w.onQuery != nil {
		w.onQuery(q)
	}
	if q.With != nil {
		for _, cte := range q.With.CTEs {
			w.walkQuery(cte.Query)
		}
	}
	w.walkSetExpr(q.Body)
	for _, item := range q.OrderBy {
		w.walkExpr(item.Expr)
	}
	if q.Limit != nil {
		w.walkExpr(q.Limit)
	}
	if q.Offset != nil {
		w.walkExpr(q.Offset)
	}
}

func (w *walker) walkSetExpr(se sqlast.SetExpr) {
	switch v := se.(type) {
	case *sqlast.Select:
		if w.onSelect != nil {
			w.onSelect(v)
		}
		w.walkSelectItems(v.Projection)
		for _, f := range v.From {
			w.walkTableExpr(f)
		}
		if v.Where != nil {
			w.walkExpr(v.Where)
		}
		for _, g := range v.GroupBy {
			w.walkExpr(g)
		}
		if v.Having != nil {
			w.walkExpr(v.Having)
		}
	case *sqlast.SetOp:
		w.walkSetExpr(v.Left)
		w.walkSetExpr(v.Right)
	case *sqlast.Values:
		for _, row := range v.Rows {
			for _, e := range row {
				w.walkExpr(e)
			}
		}
	}
}

func (w *walker) walkSelectItems(items []sqlast.SelectItem) {
	for _, item := range items {
		if item.Expr != nil {
			w.walkExpr(item.Expr)
		}
	}
}

func (w *walker) walkTableExpr(t sqlast.TableExpr) {
	switch v := t.(type) {
	case *sqlast.SubqueryTableExpr:
		w.walkQuery(v.Query)
	case *sqlast.Join:
		w.walkTableExpr(v.Left)
		w.walkTableExpr(v.Right)
		if v.On != nil {
			w.walkExpr(v.On)
		}
	}
}

func (w *walker) walkExpr(e sqlast.Expr) {
	if e == nil {
		return
	}
	if w.onExpr != nil {
		w.onExpr(e)
	}
	switch v := e.(type) {
	case *sqlast.BinaryOp:
		w.walkExpr(v.Left)
		w.walkExpr(v.Right)
	case *sqlast.UnaryOp:
		w.walkExpr(v.Expr)
	case *sqlast.FuncCall:
		for _, a := range v.Args {
			w.walkExpr(a)
		}
	case *sqlast.Cast:
		w.walkExpr(v.Expr)
	case *sqlast.InList:
		w.walkExpr(v.Expr)
		for _, item := range v.Items {
			w.walkExpr(item)
		}
	case *sqlast.SubqueryExpr:
		w.walkQuery(v.Query)
	}
}

// collectSelects returns every Select node reachable from stmt.
func collectSelects(stmt sqlast.Statement) []*sqlast.Select {
	var out []*sqlast.Select
	Walk(stmt, nil, func(s *sqlast.Select) { out = append(out, s) }, nil)
	return out
}

// collectQueries returns every Query node reachable from stmt.
func collectQueries(stmt sqlast.Statement) []*sqlast.Query {
	var out []*sqlast.Query
	Walk(stmt, func(q *sqlast.Query) { out = append(out, q) }, nil, nil)
	return out
}

// collectFuncCalls returns every FuncCall node reachable from stmt.
func collectFuncCalls(stmt sqlast.Statement) []*sqlast.FuncCall {
	var out []*sqlast.FuncCall
	Walk(stmt, nil, nil, func(e sqlast.Expr) {
		if fc, ok := e.(*sqlast.FuncCall); ok {
			out = append(out, fc)
		}
	})
	return out
}

// collectParamRefs returns the set of placeholder nodes reachable from
// stmt, keyed by identity — used by FailOnPlaceholderChange to confirm
// no placeholder was silently replaced by a literal during rewriting.
func collectParamRefs(stmt sqlast.Statement) map[*sqlast.ParamRef]bool {
	out := map[*sqlast.ParamRef]bool{}
	Walk(stmt, nil, nil, func(e sqlast.Expr) {
		if p, ok := e.(*sqlast.ParamRef); ok {
			out[p] = true
		}
	})
	return out
}
