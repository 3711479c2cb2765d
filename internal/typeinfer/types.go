// Package typeinfer is the EQL mapper: a constraint-generating visitor
// over a parsed statement, paired with a union-find unifier, that decides
// which AST nodes carry an encrypted (Eql) value versus an ordinary
// (Native) one (§3, §4.5). Its output feeds the rewriter (internal/rewrite)
// and the literal/param encryption step in the message pipeline.
package typeinfer

import "fmt"

// TableColumn names the schema column a Native or Eql value is anchored
// to. Native values carry it optionally (many expressions are native but
// untethered to any single column); Eql values always carry one, since
// encryption needs to know which column's keyset and indexes apply.
type TableColumn struct {
	Table  string
	Column string
}

// ValueKind tags the shape of a resolved Value.
type ValueKind int

const (
	KindNative ValueKind = iota
	KindEql
	KindArray
	KindSetOf
	KindProjection
)

func (k ValueKind) String() string {
	switch k {
	case KindNative:
		return "native"
	case KindEql:
		return "eql"
	case KindArray:
		return "array"
	case KindSetOf:
		return "set_of"
	case KindProjection:
		return "projection"
	default:
		return "unknown"
	}
}

// ProjectionColumn is one column of a SELECT/RETURNING projection or a
// derived table's exposed shape: a type plus the effective output alias
// that PostgreSQL would assign it.
type ProjectionColumn struct {
	Type  *Type
	Alias string
}

// Value is a fully resolved (non-variable) type constructor.
type Value struct {
	Kind ValueKind

	// Native's anchor, when known (e.g. "this native expression reads
	// column t.c"); nil when the expression has no single column origin
	// (a computed expression, a Native literal, ...).
	Native *TableColumn
	// Eql's anchor; always set when Kind == KindEql.
	Eql *TableColumn

	// Elem is the element type for Array/SetOf.
	Elem *Type

	// Columns is the column list for Projection.
	Columns []ProjectionColumn
}

func nativeValue(col *TableColumn) *Value  { return &Value{Kind: KindNative, Native: col} }
func eqlValue(col TableColumn) *Value      { return &Value{Kind: KindEql, Eql: &col} }
func arrayValue(elem *Type) *Value         { return &Value{Kind: KindArray, Elem: elem} }
func setOfValue(elem *Type) *Value         { return &Value{Kind: KindSetOf, Elem: elem} }
func projectionValue(cols []ProjectionColumn) *Value {
	return &Value{Kind: KindProjection, Columns: cols}
}

// TypeVar is a unification variable, unique within one Unifier.
type TypeVar int

// TypeTag discriminates the three Type constructors of §3.
type TypeTag int

const (
	TagValue TypeTag = iota
	TagVar
	TagAssociated
)

// Associated is a deferred lookup — e.g. a subquery's projection column
// referenced by alias from the outer scope — resolved once its target
// becomes known, rather than via a mutable back-pointer into the parse
// tree (§9).
type Associated struct {
	Selector string
	Target   *Type // nil while pending
}

// Type is one of Value(v) | Var(n) | Associated(selector) (§3). Every
// Type value used during inference is a pointer, so that binding a
// variable (subst[v] = t) or resolving an Associated's target (mutating
// Target in place) is visible everywhere the Type pointer was shared.
type Type struct {
	Tag   TypeTag
	Value *Value
	Var   TypeVar
	Assoc *Associated
}

// NewNative builds a Native value type, optionally anchored to a column.
func NewNative(col *TableColumn) *Type { return &Type{Tag: TagValue, Value: nativeValue(col)} }

// NewEql builds an Eql value type anchored to table.column.
func NewEql(table, column string) *Type {
	return &Type{Tag: TagValue, Value: eqlValue(TableColumn{Table: table, Column: column})}
}

// NewArray wraps elem in an Array constructor.
func NewArray(elem *Type) *Type { return &Type{Tag: TagValue, Value: arrayValue(elem)} }

// NewSetOf wraps elem in a SetOf constructor.
func NewSetOf(elem *Type) *Type { return &Type{Tag: TagValue, Value: setOfValue(elem)} }

// NewProjection builds a Projection value type over cols.
func NewProjection(cols []ProjectionColumn) *Type {
	return &Type{Tag: TagValue, Value: projectionValue(cols)}
}

// NewAssociated builds a pending Associated selector.
func NewAssociated(selector string) *Type {
	return &Type{Tag: TagAssociated, Assoc: &Associated{Selector: selector}}
}

// IsEql reports whether a *resolved* type (post-unification) is Eql.
// Callers should resolve via Unifier.Resolve first; an unresolved Var or
// pending Associated is never Eql.
func (t *Type) IsEql() bool {
	return t != nil && t.Tag == TagValue && t.Value != nil && t.Value.Kind == KindEql
}

// EqlColumn returns the anchor column of an Eql type, or false otherwise.
func (t *Type) EqlColumn() (TableColumn, bool) {
	if !t.IsEql() {
		return TableColumn{}, false
	}
	return *t.Value.Eql, true
}

func (t *Type) String() string {
	if t == nil {
		return "<nil>"
	}
	switch t.Tag {
	case TagVar:
		return fmt.Sprintf("?%d", t.Var)
	case TagAssociated:
		if t.Assoc.Target != nil {
			return t.Assoc.Target.String()
		}
		return fmt.Sprintf("associated(%s)", t.Assoc.Selector)
	case TagValue:
		v := t.Value
		switch v.Kind {
		case KindNative:
			if v.Native != nil {
				return fmt.Sprintf("native(%s.%s)", v.Native.Table, v.Native.Column)
			}
			return "native"
		case KindEql:
			return fmt.Sprintf("eql(%s.%s)", v.Eql.Table, v.Eql.Column)
		case KindArray:
			return fmt.Sprintf("array(%s)", v.Elem)
		case KindSetOf:
			return fmt.Sprintf("set_of(%s)", v.Elem)
		case KindProjection:
			return fmt.Sprintf("projection(%d cols)", len(v.Columns))
		}
	}
	return "<invalid>"
}
