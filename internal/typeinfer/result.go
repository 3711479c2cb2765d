package typeinfer

import "github.com/cloudshield/eqlproxy/internal/sqlast"

// EqlLiteral is one literal the visitor found sitting in a position the
// schema types as Eql (§4.5) — a candidate for
// internal/rewrite's ReplacePlaintextEqlLiterals stage once the Cryptor
// has produced its ciphertext.
type EqlLiteral struct {
	Lit    *sqlast.Literal
	Table  string
	Column string
}

// Result is everything InferStatement produces: a resolved type for
// every AST node the visitor touched, the resolved type of each
// parameter placeholder, literals needing encryption, and the
// statement's own output projection (empty for statements with no
// RETURNING/result set).
type Result struct {
	u *Unifier

	NodeTypes   map[any]*Type
	Params      map[int]*Type
	EqlLiterals []EqlLiteral
	Projection  []ProjectionColumn
}

// NodeType returns the fully resolved type recorded for node key, or nil
// if the visitor never touched it.
func (r *Result) NodeType(key any) *Type {
	t, ok := r.NodeTypes[key]
	if !ok {
		return nil
	}
	return r.u.Resolve(t)
}

// ParamType returns the resolved type of placeholder $n (1-indexed), or
// nil if the statement has no such parameter.
func (r *Result) ParamType(n int) *Type {
	t, ok := r.Params[n]
	if !ok {
		return nil
	}
	return r.u.Resolve(t)
}

// ParamCount returns how many distinct placeholders occurred in the
// statement (P3 — Param-type coherence).
func (r *Result) ParamCount() int { return len(r.Params) }
