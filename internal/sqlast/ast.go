// Package sqlast defines the simplified SQL AST that the resolver, type
// inferencer and rewriter operate over, plus an adapter that builds it
// from a real PostgreSQL parse tree (github.com/pganalyze/pg_query_go)
// and a renderer that serializes it back to SQL text.
//
// Node identity for the "everything has a type" map (§3, §9) is the Go
// interface value itself: every concrete Expr/TableExpr implementation is
// a distinct pointer type, so (pointer, dynamic-type) — Go's own
// definition of interface equality — already is the (address, type-tag)
// key the spec describes. See typeinfer.Result.NodeTypes.
package sqlast

// Statement is any top-level SQL statement the mapper understands.
type Statement interface{ stmt() }

// Query wraps a SetExpr with optional CTEs and a trailing ORDER BY/LIMIT,
// corresponding to a parenthesizable `WITH ... (SELECT ... UNION ...)
// ORDER BY ... LIMIT ...` unit.
type Query struct {
	With    *WithClause
	Body    SetExpr
	OrderBy []OrderByItem
	Limit   Expr
	Offset  Expr
}

func (*Query) stmt() {}

// WithClause holds one or more CTEs, optionally RECURSIVE.
type WithClause struct {
	Recursive bool
	CTEs      []*CTE
}

// CTE is one `name AS (query)` entry of a WITH clause.
type CTE struct {
	Name  string
	Query *Query
}

// SetExpr is either a bare Select or a set operation (UNION/INTERSECT/
// EXCEPT) combining two SetExprs.
type SetExpr interface{ setExpr() }

// SetOpKind names a set operation.
type SetOpKind int

const (
	SetOpUnion SetOpKind = iota
	SetOpIntersect
	SetOpExcept
)

type SetOp struct {
	Kind  SetOpKind
	All   bool
	Left  SetExpr
	Right SetExpr
}

func (*SetOp) setExpr() {}

// Select is a single `SELECT ... FROM ... WHERE ...` block.
type Select struct {
	Distinct   bool
	Projection []SelectItem
	From       []TableExpr
	Where      Expr
	GroupBy    []Expr
	Having     Expr
}

func (*Select) setExpr() {}

// Values is a `VALUES (...), (...)` row constructor, usable as a SetExpr
// (bare `VALUES` statement) or as an INSERT source.
type Values struct {
	Rows [][]Expr
}

func (*Values) setExpr() {}

// SelectItem is one entry of a SELECT projection list.
type SelectItem struct {
	Expr     Expr // nil when Wildcard is set
	Alias    string
	Wildcard *Wildcard
}

// Wildcard is `*` or `qualifier.*`.
type Wildcard struct {
	Qualifier string // "" for unqualified `*`
}

// OrderByItem is one ORDER BY key.
type OrderByItem struct {
	Expr Expr
	Desc bool
}

// TableExpr is anything that can appear in a FROM clause.
type TableExpr interface{ tableExpr() }

// TableRef names a base table, optionally schema-qualified and aliased.
type TableRef struct {
	Schema string
	Table  string
	Alias  string
	// Quoted records whether the source identifier was
	// double-quoted, so the schema registry folds case correctly.
	Quoted bool
}

func (*TableRef) tableExpr() {}

// SubqueryTableExpr is a derived table: `(SELECT ...) AS alias`.
type SubqueryTableExpr struct {
	Query *Query
	Alias string
}

func (*SubqueryTableExpr) tableExpr() {}

// JoinKind names the kind of JOIN.
type JoinKind int

const (
	JoinInner JoinKind = iota
	JoinLeft
	JoinRight
	JoinFull
	JoinCross
)

// Join combines two table expressions.
type Join struct {
	Kind  JoinKind
	Left  TableExpr
	Right TableExpr
	On    Expr // nil for CROSS JOIN / NATURAL JOIN
	Using []string
}

func (*Join) tableExpr() {}

// Expr is any scalar SQL expression.
type Expr interface{ expr() }

// ColumnRef is `ident`, `qual.ident`, or `qual1.qual2.ident`.
type ColumnRef struct {
	Qualifiers []string
	Name       string
	Quoted     bool
}

func (*ColumnRef) expr() {}

// ParamRef is `$n`, 1-indexed.
type ParamRef struct {
	Index int
}

func (*ParamRef) expr() {}

// LiteralKind tags the shape of a constant.
type LiteralKind int

const (
	LitInt LiteralKind = iota
	LitFloat
	LitString
	LitBool
	LitNull
	// LitJSONB is a string literal rendered with an explicit ::jsonb
	// cast — used by the rewriter to splice in an EQL ciphertext
	// envelope in place of a plaintext literal (§4.6 rule 5).
	LitJSONB
)

// Literal is any constant appearing in the statement.
type Literal struct {
	Kind LiteralKind
	Text string // original textual form, reused verbatim when re-rendered
}

func (*Literal) expr() {}

// BinaryOp is any infix operator expression, including PostgreSQL's JSONB
// operators (`->`, `->>`, `@>`, `<@`, ...) which the parser treats as
// ordinary operators.
type BinaryOp struct {
	Op    string
	Left  Expr
	Right Expr
}

func (*BinaryOp) expr() {}

// UnaryOp is a prefix operator (`NOT x`, `-x`).
type UnaryOp struct {
	Op   string
	Expr Expr
}

func (*UnaryOp) expr() {}

// FuncCall is `name(args...)`, including aggregates.
type FuncCall struct {
	Schema   string
	Name     string
	Args     []Expr
	Star     bool // COUNT(*)
	Distinct bool
}

func (*FuncCall) expr() {}

// Cast is `expr::typename` or `CAST(expr AS typename)`.
type Cast struct {
	Expr     Expr
	TypeName string
}

func (*Cast) expr() {}

// InList is `expr IN (item, item, ...)`.
type InList struct {
	Expr    Expr
	Items   []Expr
	Negated bool
}

func (*InList) expr() {}

// SubqueryExpr is a scalar or EXISTS subquery used as an expression.
type SubqueryExpr struct {
	Query  *Query
	Exists bool
}

func (*SubqueryExpr) expr() {}

// InsertStatement is `INSERT INTO t(cols) VALUES|SELECT ... RETURNING`.
type InsertStatement struct {
	Table      *TableRef
	Columns    []string
	Source     *Query
	Returning  []SelectItem
}

func (*InsertStatement) stmt() {}

// Assignment is one `col = expr` of an UPDATE SET list.
type Assignment struct {
	Column string
	Value  Expr
}

// UpdateStatement is `UPDATE t SET ... FROM ... WHERE ... RETURNING`.
type UpdateStatement struct {
	Table       *TableRef
	Assignments []Assignment
	From        []TableExpr
	Where       Expr
	Returning   []SelectItem
}

func (*UpdateStatement) stmt() {}

// DeleteStatement is `DELETE FROM t USING ... WHERE ... RETURNING`.
type DeleteStatement struct {
	Table     *TableRef
	Using     []TableExpr
	Where     Expr
	Returning []SelectItem
}

func (*DeleteStatement) stmt() {}

// CreateTableColumn is one column definition of a CREATE TABLE, used only
// to feed the schema registry's DDL overlay (§4.3).
type CreateTableColumn struct {
	Name     string
	TypeName string
}

// CreateTableStatement is observed (not rewritten) to update the
// connection-local schema overlay.
type CreateTableStatement struct {
	Table   string
	Columns []CreateTableColumn
}

func (*CreateTableStatement) stmt() {}

// SetStatement is `SET name = value`, relevant only for detecting
// `SET CIPHERSTASH.KEYSET_...` policy violations (§7).
type SetStatement struct {
	Name  string
	Value string
}

func (*SetStatement) stmt() {}

// OtherStatement is any statement shape the mapper doesn't need to
// understand (DDL we don't track, transaction control, etc). It carries
// the original SQL text through to the server byte-for-byte.
type OtherStatement struct {
	RawSQL string
}

func (*OtherStatement) stmt() {}
