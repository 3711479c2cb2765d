package sqlast

import (
	"fmt"
	"strings"

	pg_query "github.com/pganalyze/pg_query_go/v6"
)

// Parse parses sql (which may contain several semicolon-separated
// statements, per the Simple Query sub-protocol) into our own AST,
// keeping each statement's original text alongside it so a statement the
// mapper can't understand can still be forwarded byte-for-byte
// (OtherStatement).
func Parse(sql string) ([]Statement, error) {
	result, err := pg_query.Parse(sql)
	if err != nil {
		return nil, fmt.Errorf("parsing statement: %w", err)
	}

	stmts := make([]Statement, 0, len(result.Stmts))
	for _, raw := range result.Stmts {
		stmt, err := fromRawStmt(sql, raw)
		if err != nil {
			return nil, err
		}
		stmts = append(stmts, stmt)
	}
	return stmts, nil
}

func stmtText(sql string, raw *pg_query.RawStmt) string {
	start := int(raw.StmtLocation)
	end := len(sql)
	if raw.StmtLen > 0 {
		end = start + int(raw.StmtLen)
	}
	if start < 0 || start > len(sql) || end > len(sql) || end < start {
		return strings.TrimSpace(sql)
	}
	return strings.TrimSpace(sql[start:end])
}

func fromRawStmt(sql string, raw *pg_query.RawStmt) (Statement, error) {
	node := raw.Stmt
	text := stmtText(sql, raw)

	switch {
	case node.GetSelectStmt() != nil:
		q, err := fromSelectStmtAsQuery(node.GetSelectStmt())
		if err != nil {
			return nil, err
		}
		return q, nil
	case node.GetInsertStmt() != nil:
		return fromInsertStmt(node.GetInsertStmt())
	case node.GetUpdateStmt() != nil:
		return fromUpdateStmt(node.GetUpdateStmt())
	case node.GetDeleteStmt() != nil:
		return fromDeleteStmt(node.GetDeleteStmt())
	case node.GetCreateStmt() != nil:
		return fromCreateStmt(node.GetCreateStmt())
	case node.GetVariableSetStmt() != nil:
		return fromVariableSetStmt(node.GetVariableSetStmt())
	default:
		return &OtherStatement{RawSQL: text}, nil
	}
}

func fromSelectStmtAsQuery(s *pg_query.SelectStmt) (*Query, error) {
	body, with, err := fromSelectStmt(s)
	if err != nil {
		return nil, err
	}
	q := &Query{With: with, Body: body}
	for _, sc := range s.GetSortClause() {
		item, err := fromSortBy(sc.GetSortBy())
		if err != nil {
			return nil, err
		}
		q.OrderBy = append(q.OrderBy, item)
	}
	if lc := s.GetLimitCount(); lc != nil {
		e, err := fromExprNode(lc)
		if err != nil {
			return nil, err
		}
		q.Limit = e
	}
	if lo := s.GetLimitOffset(); lo != nil {
		e, err := fromExprNode(lo)
		if err != nil {
			return nil, err
		}
		q.Offset = e
	}
	return q, nil
}

// fromSelectStmt converts a SelectStmt into a SetExpr, recursing through
// set operations (UNION/INTERSECT/EXCEPT represented via Op/Larg/Rarg).
func fromSelectStmt(s *pg_query.SelectStmt) (SetExpr, *WithClause, error) {
	if s.GetOp() != pg_query.SetOperation_SETOP_NONE && (s.GetLarg() != nil || s.GetRarg() != nil) {
		left, _, err := fromSelectStmt(s.GetLarg())
		if err != nil {
			return nil, nil, err
		}
		right, _, err := fromSelectStmt(s.GetRarg())
		if err != nil {
			return nil, nil, err
		}
		var kind SetOpKind
		switch s.GetOp() {
		case pg_query.SetOperation_SETOP_INTERSECT:
			kind = SetOpIntersect
		case pg_query.SetOperation_SETOP_EXCEPT:
			kind = SetOpExcept
		default:
			kind = SetOpUnion
		}
		return &SetOp{Kind: kind, All: s.GetAll(), Left: left, Right: right}, nil, nil
	}

	if len(s.GetValuesLists()) > 0 {
		v := &Values{}
		for _, row := range s.GetValuesLists() {
			var rowExprs []Expr
			for _, item := range row.GetList().GetItems() {
				e, err := fromExprNode(item)
				if err != nil {
					return nil, nil, err
				}
				rowExprs = append(rowExprs, e)
			}
			v.Rows = append(v.Rows, rowExprs)
		}
		return v, nil, nil
	}

	sel := &Select{Distinct: len(s.GetDistinctClause()) > 0}

	for _, t := range s.GetTargetList() {
		item, err := fromResTarget(t.GetResTarget())
		if err != nil {
			return nil, nil, err
		}
		sel.Projection = append(sel.Projection, item)
	}

	for _, f := range s.GetFromClause() {
		te, err := fromTableExprNode(f)
		if err != nil {
			return nil, nil, err
		}
		sel.From = append(sel.From, te)
	}

	if w := s.GetWhereClause(); w != nil {
		e, err := fromExprNode(w)
		if err != nil {
			return nil, nil, err
		}
		sel.Where = e
	}

	for _, g := range s.GetGroupClause() {
		e, err := fromExprNode(g)
		if err != nil {
			return nil, nil, err
		}
		sel.GroupBy = append(sel.GroupBy, e)
	}

	if h := s.GetHavingClause(); h != nil {
		e, err := fromExprNode(h)
		if err != nil {
			return nil, nil, err
		}
		sel.Having = e
	}

	var with *WithClause
	if wc := s.GetWithClause(); wc != nil {
		with = &WithClause{Recursive: wc.GetRecursive()}
		for _, c := range wc.GetCtes() {
			cte := c.GetCommonTableExpr()
			if cte == nil {
				continue
			}
			subq, err := fromExprNode(cte.GetCtequery())
			if err != nil {
				return nil, nil, err
			}
			q, ok := subq.(*querySubexpr)
			if !ok {
				continue
			}
			with.CTEs = append(with.CTEs, &CTE{Name: cte.GetCtename(), Query: q.q})
		}
	}

	return sel, with, nil
}

func fromResTarget(rt *pg_query.ResTarget) (SelectItem, error) {
	if rt == nil {
		return SelectItem{}, fmt.Errorf("nil ResTarget")
	}
	val := rt.GetVal()
	if cref := val.GetColumnRef(); cref != nil && isStarRef(cref) {
		return SelectItem{Wildcard: wildcardFromColumnRef(cref)}, nil
	}
	e, err := fromExprNode(val)
	if err != nil {
		return SelectItem{}, err
	}
	return SelectItem{Expr: e, Alias: rt.GetName()}, nil
}

func isStarRef(cref *pg_query.ColumnRef) bool {
	fields := cref.GetFields()
	if len(fields) == 0 {
		return false
	}
	return fields[len(fields)-1].GetAStar() != nil
}

func wildcardFromColumnRef(cref *pg_query.ColumnRef) *Wildcard {
	fields := cref.GetFields()
	if len(fields) <= 1 {
		return &Wildcard{}
	}
	qualifier := fields[0].GetString_().GetSval()
	return &Wildcard{Qualifier: qualifier}
}

func fromSortBy(sb *pg_query.SortBy) (OrderByItem, error) {
	e, err := fromExprNode(sb.GetNode())
	if err != nil {
		return OrderByItem{}, err
	}
	return OrderByItem{Expr: e, Desc: sb.GetSortbyDir() == pg_query.SortByDir_SORTBY_DESC}, nil
}

func fromTableExprNode(n *pg_query.Node) (TableExpr, error) {
	switch {
	case n.GetRangeVar() != nil:
		return fromRangeVar(n.GetRangeVar()), nil
	case n.GetJoinExpr() != nil:
		return fromJoinExpr(n.GetJoinExpr())
	case n.GetRangeSubselect() != nil:
		return fromRangeSubselect(n.GetRangeSubselect())
	default:
		return nil, fmt.Errorf("unsupported FROM item")
	}
}

func fromRangeVar(rv *pg_query.RangeVar) *TableRef {
	tr := &TableRef{
		Schema: rv.GetSchemaname(),
		Table:  rv.GetRelname(),
	}
	if a := rv.GetAlias(); a != nil {
		tr.Alias = a.GetAliasname()
	}
	return tr
}

func fromJoinExpr(je *pg_query.JoinExpr) (*Join, error) {
	left, err := fromTableExprNode(je.GetLarg())
	if err != nil {
		return nil, err
	}
	right, err := fromTableExprNode(je.GetRarg())
	if err != nil {
		return nil, err
	}
	j := &Join{Left: left, Right: right}
	switch je.GetJointype() {
	case pg_query.JoinType_JOIN_LEFT:
		j.Kind = JoinLeft
	case pg_query.JoinType_JOIN_RIGHT:
		j.Kind = JoinRight
	case pg_query.JoinType_JOIN_FULL:
		j.Kind = JoinFull
	default:
		j.Kind = JoinInner
	}
	if je.GetIsNatural() {
		j.Kind = JoinInner
	}
	if q := je.GetQuals(); q != nil {
		on, err := fromExprNode(q)
		if err != nil {
			return nil, err
		}
		j.On = on
	}
	for _, u := range je.GetUsingClause() {
		if s := u.GetString_(); s != nil {
			j.Using = append(j.Using, s.GetSval())
		}
	}
	return j, nil
}

func fromRangeSubselect(rs *pg_query.RangeSubselect) (*SubqueryTableExpr, error) {
	sub := rs.GetSubquery().GetSelectStmt()
	if sub == nil {
		return nil, fmt.Errorf("unsupported subquery shape")
	}
	q, err := fromSelectStmtAsQuery(sub)
	if err != nil {
		return nil, err
	}
	alias := ""
	if a := rs.GetAlias(); a != nil {
		alias = a.GetAliasname()
	}
	return &SubqueryTableExpr{Query: q, Alias: alias}, nil
}

// querySubexpr is an internal-only Expr wrapper used to thread a *Query
// out of fromExprNode for SubLink/CTE conversion without adding a public
// AST variant for it (CTEs and scalar subqueries both need the inner
// Query, but only SubqueryExpr is part of the public AST surface).
type querySubexpr struct{ q *Query }

func (*querySubexpr) expr() {}

func fromExprNode(n *pg_query.Node) (Expr, error) {
	if n == nil {
		return nil, nil
	}
	switch {
	case n.GetColumnRef() != nil:
		return fromColumnRef(n.GetColumnRef())
	case n.GetParamRef() != nil:
		return &ParamRef{Index: int(n.GetParamRef().GetNumber())}, nil
	case n.GetAConst() != nil:
		return fromAConst(n.GetAConst()), nil
	case n.GetAExpr() != nil:
		return fromAExpr(n.GetAExpr())
	case n.GetBoolExpr() != nil:
		return fromBoolExpr(n.GetBoolExpr())
	case n.GetFuncCall() != nil:
		return fromFuncCall(n.GetFuncCall())
	case n.GetTypeCast() != nil:
		return fromTypeCast(n.GetTypeCast())
	case n.GetNullTest() != nil:
		return fromNullTest(n.GetNullTest())
	case n.GetAIndirection() != nil:
		// Field/array indirection (e.g. row expr subscripting); not
		// meaningfully typed here, fall back to the underlying expr.
		return fromExprNode(n.GetAIndirection().GetArg())
	case n.GetSubLink() != nil:
		return fromSubLink(n.GetSubLink())
	case n.GetSelectStmt() != nil:
		q, err := fromSelectStmtAsQuery(n.GetSelectStmt())
		if err != nil {
			return nil, err
		}
		return &querySubexpr{q: q}, nil
	case n.GetList() != nil:
		// used transiently by IN-list handling in fromAExpr
		return nil, fmt.Errorf("bare list node outside IN")
	default:
		return nil, fmt.Errorf("unsupported expression shape")
	}
}

func fromColumnRef(cref *pg_query.ColumnRef) (Expr, error) {
	fields := cref.GetFields()
	var parts []string
	for _, f := range fields {
		if s := f.GetString_(); s != nil {
			parts = append(parts, s.GetSval())
		}
	}
	if len(parts) == 0 {
		return nil, fmt.Errorf("empty column reference")
	}
	name := parts[len(parts)-1]
	quals := parts[:len(parts)-1]
	return &ColumnRef{Qualifiers: quals, Name: name}, nil
}

func fromAConst(c *pg_query.A_Const) Expr {
	if c.GetIsnull() {
		return &Literal{Kind: LitNull, Text: "NULL"}
	}
	switch {
	case c.GetIval() != nil:
		return &Literal{Kind: LitInt, Text: fmt.Sprintf("%d", c.GetIval().GetIval())}
	case c.GetFval() != nil:
		return &Literal{Kind: LitFloat, Text: c.GetFval().GetFval()}
	case c.GetBoolval() != nil:
		if c.GetBoolval().GetBoolval() {
			return &Literal{Kind: LitBool, Text: "true"}
		}
		return &Literal{Kind: LitBool, Text: "false"}
	case c.GetSval() != nil:
		return &Literal{Kind: LitString, Text: c.GetSval().GetSval()}
	default:
		return &Literal{Kind: LitNull, Text: "NULL"}
	}
}

func operatorName(names []*pg_query.Node) string {
	var parts []string
	for _, n := range names {
		if s := n.GetString_(); s != nil {
			parts = append(parts, s.GetSval())
		}
	}
	return strings.Join(parts, ".")
}

func fromAExpr(a *pg_query.A_Expr) (Expr, error) {
	op := operatorName(a.GetName())

	if a.GetKind() == pg_query.A_Expr_Kind_AEXPR_IN {
		left, err := fromExprNode(a.GetLexpr())
		if err != nil {
			return nil, err
		}
		items, err := fromExprList(a.GetRexpr())
		if err != nil {
			return nil, err
		}
		return &InList{Expr: left, Items: items, Negated: op == "<>"}, nil
	}

	var left Expr
	var err error
	if a.GetLexpr() != nil {
		left, err = fromExprNode(a.GetLexpr())
		if err != nil {
			return nil, err
		}
	}
	right, err := fromExprNode(a.GetRexpr())
	if err != nil {
		return nil, err
	}
	if left == nil {
		return &UnaryOp{Op: op, Expr: right}, nil
	}
	return &BinaryOp{Op: op, Left: left, Right: right}, nil
}

func fromExprList(n *pg_query.Node) ([]Expr, error) {
	list := n.GetList()
	if list == nil {
		e, err := fromExprNode(n)
		if err != nil {
			return nil, err
		}
		return []Expr{e}, nil
	}
	var out []Expr
	for _, item := range list.GetItems() {
		e, err := fromExprNode(item)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

func fromBoolExpr(b *pg_query.BoolExpr) (Expr, error) {
	args := b.GetArgs()
	exprs := make([]Expr, 0, len(args))
	for _, a := range args {
		e, err := fromExprNode(a)
		if err != nil {
			return nil, err
		}
		exprs = append(exprs, e)
	}
	op := "AND"
	switch b.GetBoolop() {
	case pg_query.BoolExprType_OR_EXPR:
		op = "OR"
	case pg_query.BoolExprType_NOT_EXPR:
		return &UnaryOp{Op: "NOT", Expr: exprs[0]}, nil
	}
	// Fold a flat N-ary AND/OR chain into a right-leaning binary tree.
	result := exprs[len(exprs)-1]
	for i := len(exprs) - 2; i >= 0; i-- {
		result = &BinaryOp{Op: op, Left: exprs[i], Right: result}
	}
	return result, nil
}

func fromFuncCall(fc *pg_query.FuncCall) (Expr, error) {
	var schema, name string
	parts := operatorName(fc.GetFuncname())
	if idx := strings.LastIndex(parts, "."); idx >= 0 {
		schema, name = parts[:idx], parts[idx+1:]
	} else {
		name = parts
	}

	f := &FuncCall{Schema: schema, Name: name, Star: fc.GetAggStar(), Distinct: fc.GetAggDistinct()}
	for _, a := range fc.GetArgs() {
		e, err := fromExprNode(a)
		if err != nil {
			return nil, err
		}
		f.Args = append(f.Args, e)
	}
	return f, nil
}

func fromTypeCast(tc *pg_query.TypeCast) (Expr, error) {
	e, err := fromExprNode(tc.GetArg())
	if err != nil {
		return nil, err
	}
	typeName := ""
	if tn := tc.GetTypeName(); tn != nil {
		typeName = operatorName(tn.GetNames())
	}
	return &Cast{Expr: e, TypeName: typeName}, nil
}

func fromNullTest(nt *pg_query.NullTest) (Expr, error) {
	e, err := fromExprNode(nt.GetArg())
	if err != nil {
		return nil, err
	}
	if nt.GetNulltesttype() == pg_query.NullTestType_IS_NOT_NULL {
		return &UnaryOp{Op: "IS NOT NULL", Expr: e}, nil
	}
	return &UnaryOp{Op: "IS NULL", Expr: e}, nil
}

func fromSubLink(sl *pg_query.SubLink) (Expr, error) {
	sub := sl.GetSubselect().GetSelectStmt()
	if sub == nil {
		return nil, fmt.Errorf("unsupported sublink shape")
	}
	q, err := fromSelectStmtAsQuery(sub)
	if err != nil {
		return nil, err
	}
	return &SubqueryExpr{Query: q, Exists: sl.GetSubLinkType() == pg_query.SubLinkType_EXISTS_SUBLINK}, nil
}

func fromInsertStmt(s *pg_query.InsertStmt) (*InsertStatement, error) {
	ins := &InsertStatement{Table: fromRangeVar(s.GetRelation())}
	for _, c := range s.GetCols() {
		if rt := c.GetResTarget(); rt != nil {
			ins.Columns = append(ins.Columns, rt.GetName())
		}
	}
	if sel := s.GetSelectStmt().GetSelectStmt(); sel != nil {
		q, err := fromSelectStmtAsQuery(sel)
		if err != nil {
			return nil, err
		}
		ins.Source = q
	}
	for _, r := range s.GetReturningList() {
		item, err := fromResTarget(r.GetResTarget())
		if err != nil {
			return nil, err
		}
		ins.Returning = append(ins.Returning, item)
	}
	return ins, nil
}

func fromUpdateStmt(s *pg_query.UpdateStmt) (*UpdateStatement, error) {
	upd := &UpdateStatement{Table: fromRangeVar(s.GetRelation())}
	for _, t := range s.GetTargetList() {
		rt := t.GetResTarget()
		if rt == nil {
			continue
		}
		e, err := fromExprNode(rt.GetVal())
		if err != nil {
			return nil, err
		}
		upd.Assignments = append(upd.Assignments, Assignment{Column: rt.GetName(), Value: e})
	}
	for _, f := range s.GetFromClause() {
		te, err := fromTableExprNode(f)
		if err != nil {
			return nil, err
		}
		upd.From = append(upd.From, te)
	}
	if w := s.GetWhereClause(); w != nil {
		e, err := fromExprNode(w)
		if err != nil {
			return nil, err
		}
		upd.Where = e
	}
	for _, r := range s.GetReturningList() {
		item, err := fromResTarget(r.GetResTarget())
		if err != nil {
			return nil, err
		}
		upd.Returning = append(upd.Returning, item)
	}
	return upd, nil
}

func fromDeleteStmt(s *pg_query.DeleteStmt) (*DeleteStatement, error) {
	del := &DeleteStatement{Table: fromRangeVar(s.GetRelation())}
	for _, u := range s.GetUsingClause() {
		te, err := fromTableExprNode(u)
		if err != nil {
			return nil, err
		}
		del.Using = append(del.Using, te)
	}
	if w := s.GetWhereClause(); w != nil {
		e, err := fromExprNode(w)
		if err != nil {
			return nil, err
		}
		del.Where = e
	}
	for _, r := range s.GetReturningList() {
		item, err := fromResTarget(r.GetResTarget())
		if err != nil {
			return nil, err
		}
		del.Returning = append(del.Returning, item)
	}
	return del, nil
}

func fromCreateStmt(s *pg_query.CreateStmt) (*CreateTableStatement, error) {
	ct := &CreateTableStatement{Table: s.GetRelation().GetRelname()}
	for _, el := range s.GetTableElts() {
		cd := el.GetColumnDef()
		if cd == nil {
			continue
		}
		typeName := ""
		if tn := cd.GetTypeName(); tn != nil {
			typeName = operatorName(tn.GetNames())
		}
		ct.Columns = append(ct.Columns, CreateTableColumn{Name: cd.GetColname(), TypeName: typeName})
	}
	return ct, nil
}

func fromVariableSetStmt(s *pg_query.VariableSetStmt) (*SetStatement, error) {
	val := ""
	if args := s.GetArgs(); len(args) > 0 {
		if c := args[0].GetAConst(); c != nil {
			if lit := fromAConst(c); lit != nil {
				if l, ok := lit.(*Literal); ok {
					val = l.Text
				}
			}
		}
	}
	return &SetStatement{Name: s.GetName(), Value: val}, nil
}
