package rewrite

import (
	"fmt"
	"strings"

	"github.com/cloudshield/eqlproxy/internal/resolver"
	"github.com/cloudshield/eqlproxy/internal/sqlast"
)

// eqlGroupedValue and eqlOreBlockU64 name the EQL-side helper functions
// that rules 1-3 wrap expressions in. eqlSchema prefixes every rewrite
// target so a rewritten call is trivially recognizable (and so Apply
// can tell whether a node is already wrapped, keeping every rule
// idempotent).
const (
	eqlSchema        = "eql_v1"
	eqlGroupedValue  = "grouped_value"
	eqlOreBlockU64   = "ore_block_u64_8_256"
)

func isEql(t interface{ IsEql() bool }) bool {
	return t != nil && t.IsEql()
}

func isWrappedAs(e sqlast.Expr, name string) bool {
	fc, ok := e.(*sqlast.FuncCall)
	return ok && fc.Schema == eqlSchema && fc.Name == name
}

func wrap(e sqlast.Expr, name string) sqlast.Expr {
	return &sqlast.FuncCall{Schema: eqlSchema, Name: name, Args: []sqlast.Expr{e}}
}

// columnKey returns a comparable key for a bare or qualified column
// reference, used to spot a SELECT-list item that names the same
// column as a GROUP BY entry even though the two are distinct AST
// nodes produced by the parser.
func columnKey(e sqlast.Expr) (string, bool) {
	cr, ok := e.(*sqlast.ColumnRef)
	if !ok {
		return "", false
	}
	qual := ""
	if len(cr.Qualifiers) > 0 {
		qual = strings.ToLower(cr.Qualifiers[len(cr.Qualifiers)-1])
	}
	return qual + "." + strings.ToLower(cr.Name), true
}

func sameColumn(a, b sqlast.Expr) bool {
	ka, oka := columnKey(a)
	kb, okb := columnKey(b)
	return oka && okb && ka == kb
}

// wrapGroupedEqlColInAggregateFn is rule 1 (§4.6): an encrypted column
// that appears in both the SELECT list and its query's GROUP BY must
// be wrapped in eql_v1.grouped_value(...) in the SELECT list, since an
// encrypted value can't be compared for equality by the server the way
// a plain GROUP BY key is.
type wrapGroupedEqlColInAggregateFn struct{}

func (wrapGroupedEqlColInAggregateFn) Name() string { return "WrapGroupedEqlColInAggregateFn" }

func (r wrapGroupedEqlColInAggregateFn) selectsToWrap(ctx *Context) []*sqlast.Select {
	var out []*sqlast.Select
	for _, sel := range collectSelects(ctx.Stmt) {
		if len(sel.GroupBy) == 0 {
			continue
		}
		for _, item := range sel.Projection {
			if item.Expr == nil || isWrappedAs(item.Expr, eqlGroupedValue) {
				continue
			}
			if !isEql(ctx.Res.NodeType(item.Expr)) {
				continue
			}
			for _, g := range sel.GroupBy {
				if sameColumn(item.Expr, g) {
					out = append(out, sel)
					break
				}
			}
		}
	}
	return out
}

func (r wrapGroupedEqlColInAggregateFn) WouldEdit(ctx *Context) bool {
	return len(r.selectsToWrap(ctx)) > 0
}

func (r wrapGroupedEqlColInAggregateFn) Apply(ctx *Context) error {
	for _, sel := range r.selectsToWrap(ctx) {
		for i := range sel.Projection {
			item := &sel.Projection[i]
			if item.Expr == nil || isWrappedAs(item.Expr, eqlGroupedValue) {
				continue
			}
			if !isEql(ctx.Res.NodeType(item.Expr)) {
				continue
			}
			grouped := false
			for _, g := range sel.GroupBy {
				if sameColumn(item.Expr, g) {
					grouped = true
					break
				}
			}
			if grouped {
				item.Expr = wrap(item.Expr, eqlGroupedValue)
			}
		}
	}
	return nil
}

func (wrapGroupedEqlColInAggregateFn) CheckPostcondition(ctx *Context) error {
	return nil
}

// groupByEqlCol is rule 2 (§4.6): a GROUP BY key that is itself
// encrypted must be wrapped in eql_v1.ore_block_u64_8_256(...) so the
// server groups on the order-revealing-encryption block instead of the
// opaque ciphertext envelope.
type groupByEqlCol struct{}

func (groupByEqlCol) Name() string { return "GroupByEqlCol" }

func (groupByEqlCol) targets(ctx *Context) []*sqlast.Select {
	var out []*sqlast.Select
	for _, sel := range collectSelects(ctx.Stmt) {
		for _, g := range sel.GroupBy {
			if !isWrappedAs(g, eqlOreBlockU64) && isEql(ctx.Res.NodeType(g)) {
				out = append(out, sel)
				break
			}
		}
	}
	return out
}

func (r groupByEqlCol) WouldEdit(ctx *Context) bool { return len(r.targets(ctx)) > 0 }

func (groupByEqlCol) Apply(ctx *Context) error {
	for _, sel := range collectSelects(ctx.Stmt) {
		for i := range sel.GroupBy {
			g := sel.GroupBy[i]
			if isWrappedAs(g, eqlOreBlockU64) {
				continue
			}
			if isEql(ctx.Res.NodeType(g)) {
				sel.GroupBy[i] = wrap(g, eqlOreBlockU64)
			}
		}
	}
	return nil
}

func (groupByEqlCol) CheckPostcondition(ctx *Context) error { return nil }

// wrapEqlColsInOrderByWithOreFn is rule 3 (§4.6): the same ORE
// wrapping as rule 2, applied to ORDER BY keys (which live on Query,
// not Select).
type wrapEqlColsInOrderByWithOreFn struct{}

func (wrapEqlColsInOrderByWithOreFn) Name() string { return "WrapEqlColsInOrderByWithOreFn" }

func (wrapEqlColsInOrderByWithOreFn) targets(ctx *Context) []*sqlast.Query {
	var out []*sqlast.Query
	for _, q := range collectQueries(ctx.Stmt) {
		for _, item := range q.OrderBy {
			if !isWrappedAs(item.Expr, eqlOreBlockU64) && isEql(ctx.Res.NodeType(item.Expr)) {
				out = append(out, q)
				break
			}
		}
	}
	return out
}

func (r wrapEqlColsInOrderByWithOreFn) WouldEdit(ctx *Context) bool { return len(r.targets(ctx)) > 0 }

func (wrapEqlColsInOrderByWithOreFn) Apply(ctx *Context) error {
	for _, q := range collectQueries(ctx.Stmt) {
		for i := range q.OrderBy {
			e := q.OrderBy[i].Expr
			if isWrappedAs(e, eqlOreBlockU64) {
				continue
			}
			if isEql(ctx.Res.NodeType(e)) {
				q.OrderBy[i].Expr = wrap(e, eqlOreBlockU64)
			}
		}
	}
	return nil
}

func (wrapEqlColsInOrderByWithOreFn) CheckPostcondition(ctx *Context) error { return nil }

// preserveEffectiveAliases is rule 4 (§4.6): wrapping a bare column
// reference in a function call (rules 1-3) changes its effective
// output name from the column's own name to the function's — so any
// projection item left without an explicit alias gets one restored
// from what its effective alias was before wrapping.
type preserveEffectiveAliases struct{}

func (preserveEffectiveAliases) Name() string { return "PreserveEffectiveAliases" }

func (preserveEffectiveAliases) disturbed(ctx *Context) map[*sqlast.Select][]int {
	out := map[*sqlast.Select][]int{}
	for sel, origs := range ctx.origAliases {
		for i, item := range sel.Projection {
			if item.Alias != "" || i >= len(origs) {
				continue
			}
			if resolver.EffectiveAlias(item) != origs[i] {
				out[sel] = append(out[sel], i)
			}
		}
	}
	return out
}

func (r preserveEffectiveAliases) WouldEdit(ctx *Context) bool {
	return len(r.disturbed(ctx)) > 0
}

func (r preserveEffectiveAliases) Apply(ctx *Context) error {
	for sel, idxs := range r.disturbed(ctx) {
		origs := ctx.origAliases[sel]
		for _, i := range idxs {
			sel.Projection[i].Alias = origs[i]
		}
	}
	return nil
}

func (preserveEffectiveAliases) CheckPostcondition(ctx *Context) error {
	for sel, origs := range ctx.origAliases {
		for i, item := range sel.Projection {
			if i >= len(origs) {
				continue
			}
			if resolver.EffectiveAlias(item) != origs[i] {
				return fmt.Errorf("rewrite: projection item %d lost its effective alias %q", i, origs[i])
			}
		}
	}
	return nil
}

// replacePlaintextEqlLiterals is rule 5 (§4.6): splice the encrypted
// envelope text in place of each plaintext literal bound to an
// encrypted column, so the statement sent upstream never carries
// plaintext for an encrypted column.
type replacePlaintextEqlLiterals struct{}

func (replacePlaintextEqlLiterals) Name() string { return "ReplacePlaintextEqlLiterals" }

func (replacePlaintextEqlLiterals) pending(ctx *Context) []int {
	var idxs []int
	for i, el := range ctx.Res.EqlLiterals {
		if el.Lit.Kind == sqlast.LitJSONB {
			continue
		}
		if _, ok := ctx.Ciphertexts[el.Lit]; ok {
			idxs = append(idxs, i)
		}
	}
	return idxs
}

func (r replacePlaintextEqlLiterals) WouldEdit(ctx *Context) bool { return len(r.pending(ctx)) > 0 }

func (r replacePlaintextEqlLiterals) Apply(ctx *Context) error {
	for _, i := range r.pending(ctx) {
		el := ctx.Res.EqlLiterals[i]
		el.Lit.Kind = sqlast.LitJSONB
		el.Lit.Text = ctx.Ciphertexts[el.Lit]
	}
	return nil
}

func (replacePlaintextEqlLiterals) CheckPostcondition(ctx *Context) error {
	for _, el := range ctx.Res.EqlLiterals {
		if _, ok := ctx.Ciphertexts[el.Lit]; ok && el.Lit.Kind != sqlast.LitJSONB {
			return fmt.Errorf("rewrite: literal for %s.%s was not replaced with its ciphertext", el.Table, el.Column)
		}
	}
	return nil
}

// eqlAwareFuncs names the functions rule 6 knows an EQL-schema
// counterpart for, by lower-cased name. Each is rewritten only when
// its first argument is encrypted.
var eqlAwareFuncs = map[string]bool{
	"min":                    true,
	"max":                    true,
	"jsonb_path_query":       true,
	"jsonb_path_query_first": true,
	"jsonb_path_exists":      true,
	"jsonb_array_elements":   true,
	"jsonb_array_length":     true,
}

// useEquivalentSqlFuncForEqlTypes is rule 6 (§4.6): a standard SQL
// function applied to an encrypted argument is rewritten to call its
// eql_v1-schema counterpart of the same name, which knows how to
// operate on the envelope representation server-side.
type useEquivalentSqlFuncForEqlTypes struct{}

func (useEquivalentSqlFuncForEqlTypes) Name() string { return "UseEquivalentSqlFuncForEqlTypes" }

func (useEquivalentSqlFuncForEqlTypes) targets(ctx *Context) []*sqlast.FuncCall {
	var out []*sqlast.FuncCall
	for _, fc := range collectFuncCalls(ctx.Stmt) {
		if fc.Schema != "" || len(fc.Args) == 0 {
			continue
		}
		if !eqlAwareFuncs[strings.ToLower(fc.Name)] {
			continue
		}
		if isEql(ctx.Res.NodeType(fc.Args[0])) {
			out = append(out, fc)
		}
	}
	return out
}

func (r useEquivalentSqlFuncForEqlTypes) WouldEdit(ctx *Context) bool { return len(r.targets(ctx)) > 0 }

func (r useEquivalentSqlFuncForEqlTypes) Apply(ctx *Context) error {
	for _, fc := range r.targets(ctx) {
		fc.Schema = eqlSchema
	}
	return nil
}

func (useEquivalentSqlFuncForEqlTypes) CheckPostcondition(ctx *Context) error { return nil }

// failOnPlaceholderChange is rule 7 (§4.6): a guard, not a
// transformation. No rule in this pipeline ever replaces a `$n`
// placeholder with a literal — doing so would silently change what a
// later Bind message's parameter binds to — so this checks that every
// placeholder node present before the pipeline ran is still present,
// unchanged, afterward.
type failOnPlaceholderChange struct{}

func (failOnPlaceholderChange) Name() string { return "FailOnPlaceholderChange" }

func (failOnPlaceholderChange) WouldEdit(ctx *Context) bool { return false }

func (failOnPlaceholderChange) Apply(ctx *Context) error { return nil }

func (failOnPlaceholderChange) CheckPostcondition(ctx *Context) error {
	current := collectParamRefs(ctx.Stmt)
	for p := range ctx.origParams {
		if !current[p] {
			return fmt.Errorf("rewrite: placeholder $%d was removed or replaced during rewriting", p.Index)
		}
	}
	return nil
}
