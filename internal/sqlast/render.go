package sqlast

import (
	"fmt"
	"strings"
)

// Render serializes a Query back into SQL text. This is what the
// rewriter's output actually gets forwarded to the server as — the
// pg_query_go parse tree is never mutated in place and re-deparsed;
// instead the simplified AST here is rewritten and printed directly,
// keeping the one library dependency that carries real format risk
// (an upstream protobuf deparser) out of the hot rewrite path.
func Render(q *Query) string {
	var b strings.Builder
	renderQuery(&b, q)
	return b.String()
}

// RenderStatement serializes any top-level Statement.
func RenderStatement(s Statement) string {
	var b strings.Builder
	switch st := s.(type) {
	case *Query:
		renderQuery(&b, st)
	case *InsertStatement:
		renderInsert(&b, st)
	case *UpdateStatement:
		renderUpdate(&b, st)
	case *DeleteStatement:
		renderDelete(&b, st)
	case *OtherStatement:
		b.WriteString(st.RawSQL)
	case *SetStatement:
		fmt.Fprintf(&b, "SET %s = %s", st.Name, st.Value)
	case *CreateTableStatement:
		renderCreateTable(&b, st)
	default:
		b.WriteString("/* unrenderable statement */")
	}
	return b.String()
}

func renderQuery(b *strings.Builder, q *Query) {
	if q.With != nil && len(q.With.CTEs) > 0 {
		b.WriteString("WITH ")
		if q.With.Recursive {
			b.WriteString("RECURSIVE ")
		}
		for i, cte := range q.With.CTEs {
			if i > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(b, "%s AS (", quoteIdentIfNeeded(cte.Name))
			renderQuery(b, cte.Query)
			b.WriteString(")")
		}
		b.WriteString(" ")
	}
	renderSetExpr(b, q.Body)
	if len(q.OrderBy) > 0 {
		b.WriteString(" ORDER BY ")
		for i, item := range q.OrderBy {
			if i > 0 {
				b.WriteString(", ")
			}
			renderExpr(b, item.Expr)
			if item.Desc {
				b.WriteString(" DESC")
			}
		}
	}
	if q.Limit != nil {
		b.WriteString(" LIMIT ")
		renderExpr(b, q.Limit)
	}
	if q.Offset != nil {
		b.WriteString(" OFFSET ")
		renderExpr(b, q.Offset)
	}
}

func renderSetExpr(b *strings.Builder, s SetExpr) {
	switch v := s.(type) {
	case *Select:
		renderSelect(b, v)
	case *SetOp:
		b.WriteString("(")
		renderSetExpr(b, v.Left)
		b.WriteString(") ")
		switch v.Kind {
		case SetOpIntersect:
			b.WriteString("INTERSECT ")
		case SetOpExcept:
			b.WriteString("EXCEPT ")
		default:
			b.WriteString("UNION ")
		}
		if v.All {
			b.WriteString("ALL ")
		}
		b.WriteString("(")
		renderSetExpr(b, v.Right)
		b.WriteString(")")
	case *Values:
		renderValues(b, v)
	}
}

func renderValues(b *strings.Builder, v *Values) {
	b.WriteString("VALUES ")
	for i, row := range v.Rows {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString("(")
		for j, e := range row {
			if j > 0 {
				b.WriteString(", ")
			}
			renderExpr(b, e)
		}
		b.WriteString(")")
	}
}

func renderSelect(b *strings.Builder, s *Select) {
	b.WriteString("SELECT ")
	if s.Distinct {
		b.WriteString("DISTINCT ")
	}
	for i, item := range s.Projection {
		if i > 0 {
			b.WriteString(", ")
		}
		renderSelectItem(b, item)
	}
	if len(s.From) > 0 {
		b.WriteString(" FROM ")
		for i, f := range s.From {
			if i > 0 {
				b.WriteString(", ")
			}
			renderTableExpr(b, f)
		}
	}
	if s.Where != nil {
		b.WriteString(" WHERE ")
		renderExpr(b, s.Where)
	}
	if len(s.GroupBy) > 0 {
		b.WriteString(" GROUP BY ")
		for i, g := range s.GroupBy {
			if i > 0 {
				b.WriteString(", ")
			}
			renderExpr(b, g)
		}
	}
	if s.Having != nil {
		b.WriteString(" HAVING ")
		renderExpr(b, s.Having)
	}
}

func renderSelectItem(b *strings.Builder, item SelectItem) {
	if item.Wildcard != nil {
		if item.Wildcard.Qualifier != "" {
			fmt.Fprintf(b, "%s.*", quoteIdentIfNeeded(item.Wildcard.Qualifier))
		} else {
			b.WriteString("*")
		}
		return
	}
	renderExpr(b, item.Expr)
	if item.Alias != "" {
		fmt.Fprintf(b, " AS %s", quoteIdentIfNeeded(item.Alias))
	}
}

func renderTableExpr(b *strings.Builder, t TableExpr) {
	switch v := t.(type) {
	case *TableRef:
		if v.Schema != "" {
			fmt.Fprintf(b, "%s.", quoteIdentIfNeeded(v.Schema))
		}
		b.WriteString(quoteIdentIfNeeded(v.Table))
		if v.Alias != "" {
			fmt.Fprintf(b, " AS %s", quoteIdentIfNeeded(v.Alias))
		}
	case *SubqueryTableExpr:
		b.WriteString("(")
		renderQuery(b, v.Query)
		b.WriteString(")")
		if v.Alias != "" {
			fmt.Fprintf(b, " AS %s", quoteIdentIfNeeded(v.Alias))
		}
	case *Join:
		renderTableExpr(b, v.Left)
		switch v.Kind {
		case JoinLeft:
			b.WriteString(" LEFT JOIN ")
		case JoinRight:
			b.WriteString(" RIGHT JOIN ")
		case JoinFull:
			b.WriteString(" FULL JOIN ")
		case JoinCross:
			b.WriteString(" CROSS JOIN ")
		default:
			b.WriteString(" JOIN ")
		}
		renderTableExpr(b, v.Right)
		if len(v.Using) > 0 {
			fmt.Fprintf(b, " USING (%s)", strings.Join(v.Using, ", "))
		} else if v.On != nil {
			b.WriteString(" ON ")
			renderExpr(b, v.On)
		}
	}
}

func renderExpr(b *strings.Builder, e Expr) {
	if e == nil {
		b.WriteString("NULL")
		return
	}
	switch v := e.(type) {
	case *ColumnRef:
		for _, q := range v.Qualifiers {
			fmt.Fprintf(b, "%s.", quoteIdentIfNeeded(q))
		}
		b.WriteString(quoteIdentIfNeeded(v.Name))
	case *ParamRef:
		fmt.Fprintf(b, "$%d", v.Index)
	case *Literal:
		renderLiteral(b, v)
	case *BinaryOp:
		b.WriteString("(")
		renderExpr(b, v.Left)
		fmt.Fprintf(b, " %s ", v.Op)
		renderExpr(b, v.Right)
		b.WriteString(")")
	case *UnaryOp:
		switch v.Op {
		case "IS NULL", "IS NOT NULL":
			b.WriteString("(")
			renderExpr(b, v.Expr)
			fmt.Fprintf(b, " %s)", v.Op)
		default:
			fmt.Fprintf(b, "(%s ", v.Op)
			renderExpr(b, v.Expr)
			b.WriteString(")")
		}
	case *FuncCall:
		renderFuncCall(b, v)
	case *Cast:
		b.WriteString("(")
		renderExpr(b, v.Expr)
		fmt.Fprintf(b, ")::%s", v.TypeName)
	case *InList:
		renderExpr(b, v.Expr)
		if v.Negated {
			b.WriteString(" NOT IN (")
		} else {
			b.WriteString(" IN (")
		}
		for i, item := range v.Items {
			if i > 0 {
				b.WriteString(", ")
			}
			renderExpr(b, item)
		}
		b.WriteString(")")
	case *SubqueryExpr:
		if v.Exists {
			b.WriteString("EXISTS ")
		}
		b.WriteString("(")
		renderQuery(b, v.Query)
		b.WriteString(")")
	default:
		b.WriteString("NULL")
	}
}

func renderFuncCall(b *strings.Builder, f *FuncCall) {
	if f.Schema != "" {
		fmt.Fprintf(b, "%s.", f.Schema)
	}
	fmt.Fprintf(b, "%s(", f.Name)
	if f.Distinct {
		b.WriteString("DISTINCT ")
	}
	if f.Star {
		b.WriteString("*")
	}
	for i, a := range f.Args {
		if i > 0 || f.Star {
			b.WriteString(", ")
		}
		renderExpr(b, a)
	}
	b.WriteString(")")
}

func renderLiteral(b *strings.Builder, l *Literal) {
	switch l.Kind {
	case LitNull:
		b.WriteString("NULL")
	case LitString:
		fmt.Fprintf(b, "'%s'", strings.ReplaceAll(l.Text, "'", "''"))
	case LitJSONB:
		fmt.Fprintf(b, "'%s'::jsonb", strings.ReplaceAll(l.Text, "'", "''"))
	default:
		b.WriteString(l.Text)
	}
}

func renderInsert(b *strings.Builder, s *InsertStatement) {
	fmt.Fprintf(b, "INSERT INTO %s", quoteIdentIfNeeded(s.Table.Table))
	if len(s.Columns) > 0 {
		quoted := make([]string, len(s.Columns))
		for i, c := range s.Columns {
			quoted[i] = quoteIdentIfNeeded(c)
		}
		fmt.Fprintf(b, "(%s)", strings.Join(quoted, ", "))
	}
	b.WriteString(" ")
	if s.Source != nil {
		renderQuery(b, s.Source)
	} else {
		b.WriteString("DEFAULT VALUES")
	}
	renderReturning(b, s.Returning)
}

func renderUpdate(b *strings.Builder, s *UpdateStatement) {
	fmt.Fprintf(b, "UPDATE %s SET ", quoteIdentIfNeeded(s.Table.Table))
	for i, a := range s.Assignments {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(b, "%s = ", quoteIdentIfNeeded(a.Column))
		renderExpr(b, a.Value)
	}
	if len(s.From) > 0 {
		b.WriteString(" FROM ")
		for i, f := range s.From {
			if i > 0 {
				b.WriteString(", ")
			}
			renderTableExpr(b, f)
		}
	}
	if s.Where != nil {
		b.WriteString(" WHERE ")
		renderExpr(b, s.Where)
	}
	renderReturning(b, s.Returning)
}

func renderDelete(b *strings.Builder, s *DeleteStatement) {
	fmt.Fprintf(b, "DELETE FROM %s", quoteIdentIfNeeded(s.Table.Table))
	if len(s.Using) > 0 {
		b.WriteString(" USING ")
		for i, u := range s.Using {
			if i > 0 {
				b.WriteString(", ")
			}
			renderTableExpr(b, u)
		}
	}
	if s.Where != nil {
		b.WriteString(" WHERE ")
		renderExpr(b, s.Where)
	}
	renderReturning(b, s.Returning)
}

func renderReturning(b *strings.Builder, items []SelectItem) {
	if len(items) == 0 {
		return
	}
	b.WriteString(" RETURNING ")
	for i, item := range items {
		if i > 0 {
			b.WriteString(", ")
		}
		renderSelectItem(b, item)
	}
}

func renderCreateTable(b *strings.Builder, s *CreateTableStatement) {
	fmt.Fprintf(b, "CREATE TABLE %s (", quoteIdentIfNeeded(s.Table))
	for i, c := range s.Columns {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(b, "%s %s", quoteIdentIfNeeded(c.Name), c.TypeName)
	}
	b.WriteString(")")
}

// quoteIdentIfNeeded double-quotes an identifier only when it isn't a
// plain lower-case SQL identifier, so the common case renders cleanly.
func quoteIdentIfNeeded(ident string) string {
	if ident == "" {
		return ident
	}
	plain := true
	for i, r := range ident {
		if r >= 'a' && r <= 'z' || r == '_' || (i > 0 && r >= '0' && r <= '9') {
			continue
		}
		plain = false
		break
	}
	if plain {
		return ident
	}
	return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"`
}
