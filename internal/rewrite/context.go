// Package rewrite implements the ordered statement-rewrite pipeline
// (§4.6): given a parsed statement and the type map produced by
// internal/typeinfer, it mutates the AST in place so that encrypted
// columns round-trip through PostgreSQL's native aggregate/ordering/
// comparison machinery via their EQL envelope representation, and
// splices ciphertext in place of plaintext literals bound to encrypted
// columns.
package rewrite

import (
	"github.com/cloudshield/eqlproxy/internal/resolver"
	"github.com/cloudshield/eqlproxy/internal/sqlast"
	"github.com/cloudshield/eqlproxy/internal/typeinfer"
)

// Context carries everything a Rule needs: the statement being
// rewritten, the type-inference result computed against its
// pre-rewrite form, and the ciphertext for each encrypted literal
// (produced by the caller's cryptor before Rule 5 runs). It also
// captures the pre-rewrite effective alias of every projection item so
// Rule 4 can restore any alias Rule 1 disturbs by wrapping an
// expression in a function call.
type Context struct {
	Stmt        sqlast.Statement
	Res         *typeinfer.Result
	Ciphertexts map[*sqlast.Literal]string

	origAliases map[*sqlast.Select][]string
	origParams  map[*sqlast.ParamRef]bool
}

// NewContext builds a rewrite Context for stmt. res must have been
// computed against stmt before any rule runs. ciphertexts maps each
// literal named in res.EqlLiterals to its encrypted replacement text;
// a literal absent from the map is left untouched by Rule 5 (the
// caller decides what, if anything, that means — e.g. a column with no
// registered cryptor).
func NewContext(stmt sqlast.Statement, res *typeinfer.Result, ciphertexts map[*sqlast.Literal]string) *Context {
	ctx := &Context{
		Stmt:        stmt,
		Res:         res,
		Ciphertexts: ciphertexts,
		origAliases: make(map[*sqlast.Select][]string),
		origParams:  collectParamRefs(stmt),
	}
	for _, sel := range collectSelects(stmt) {
		aliases := make([]string, len(sel.Projection))
		for i, item := range sel.Projection {
			aliases[i] = resolver.EffectiveAlias(item)
		}
		ctx.origAliases[sel] = aliases
	}
	return ctx
}
