package typeinfer

import "strings"

// RewriteRule tags how the rewriter (internal/rewrite) should treat a
// call once its argument types are known — informational metadata
// carried alongside the signature, not acted on by this package.
type RewriteRule int

const (
	RuleIgnore RewriteRule = iota
	RuleAsEqlFunction
)

// argKind is one argument or return slot of a function signature. A
// Generic tag links slots that must share a single type (e.g. MIN's
// single argument and its return); Native pins a slot to Native
// regardless of what's passed (e.g. COUNT's return).
type argKind struct {
	native  bool
	generic string
}

func nativeArg() argKind        { return argKind{native: true} }
func genericArg(tag string) argKind { return argKind{generic: tag} }

// funcSig is one (name, arity) entry of the function registry (§4.5).
// variadic signatures (arity == -1) match any argument count.
type funcSig struct {
	arity   int
	args    []argKind
	ret     argKind
	rewrite RewriteRule
}

// FuncRegistry maps a lower-cased function name to its known
// signature(s), keyed secondarily by arity.
type FuncRegistry struct {
	sigs map[string][]funcSig
}

// NewFuncRegistry builds the registry described in §4.5: aggregate
// functions whose return mirrors their argument type, COUNT (always
// Native), and the JSONB path functions, all as a declarative table
// rather than bespoke per-function code.
func NewFuncRegistry() *FuncRegistry {
	r := &FuncRegistry{sigs: make(map[string][]funcSig)}

	mirror := func(names ...string) {
		for _, n := range names {
			r.add(n, funcSig{arity: 1, args: []argKind{genericArg("t")}, ret: genericArg("t"), rewrite: RuleAsEqlFunction})
		}
	}
	mirror("min", "max")

	r.add("count", funcSig{arity: 1, args: []argKind{genericArg("ignored")}, ret: nativeArg(), rewrite: RuleIgnore})
	r.add("count", funcSig{arity: 0, args: nil, ret: nativeArg(), rewrite: RuleIgnore})

	r.add("sum", funcSig{arity: 1, args: []argKind{nativeArg()}, ret: nativeArg(), rewrite: RuleIgnore})
	r.add("avg", funcSig{arity: 1, args: []argKind{nativeArg()}, ret: nativeArg(), rewrite: RuleIgnore})

	r.add("jsonb_path_query", funcSig{arity: 2, args: []argKind{genericArg("j"), nativeArg()}, ret: genericArg("j"), rewrite: RuleAsEqlFunction})
	r.add("jsonb_path_query_first", funcSig{arity: 2, args: []argKind{genericArg("j"), nativeArg()}, ret: genericArg("j"), rewrite: RuleAsEqlFunction})
	r.add("jsonb_path_exists", funcSig{arity: 2, args: []argKind{genericArg("j"), nativeArg()}, ret: nativeArg(), rewrite: RuleAsEqlFunction})
	r.add("jsonb_array_elements", funcSig{arity: 1, args: []argKind{genericArg("j")}, ret: genericArg("j"), rewrite: RuleAsEqlFunction})
	r.add("jsonb_array_length", funcSig{arity: 1, args: []argKind{genericArg("j")}, ret: nativeArg(), rewrite: RuleAsEqlFunction})

	return r
}

func (r *FuncRegistry) add(name string, sig funcSig) {
	name = strings.ToLower(name)
	r.sigs[name] = append(r.sigs[name], sig)
}

// Lookup finds the signature for name at the given arity. ok is false for
// any function this registry doesn't know, which callers treat as the
// "all args and result Native" fallback (§4.5) — the effect of which is
// to reject calls on Eql columns with a clear mismatch once the caller
// tries to unify an Eql argument against a forced-Native slot.
func (r *FuncRegistry) Lookup(name string, arity int) (funcSig, bool) {
	for _, s := range r.sigs[strings.ToLower(name)] {
		if s.arity == arity || s.arity == -1 {
			return s, true
		}
	}
	return funcSig{}, false
}

// Rewrite exposes the signature's rewrite tag. internal/rewrite rule 6
// (UseEquivalentSqlFuncForEqlTypes) does not read it: that rule picks
// calls by its own list of EQL-aware function names.
func (s funcSig) Rewrite() RewriteRule { return s.rewrite }

// binOpKind names how a binary operator's operands and result relate,
// per the registry described in §4.5.
type binOpKind int

const (
	// opCompare: both operands must unify with each other; result is
	// always Native (bool) — equality/ordering/pattern operators.
	opCompare binOpKind = iota
	// opJSONPath: result mirrors the left operand's type (-> / ->>).
	opJSONPath
	// opJSONContainment: both operands unify with each other (so an Eql
	// left side requires a matching Eql literal on the right); result is
	// always Native (bool) — @> / <@.
	opJSONContainment
	// opUnknownFallback: neither operand is known to this registry;
	// force both operands and the result to Native (§4.5 "fallback
	// forces both operands and the result to Native").
	opUnknownFallback
)

// binOpSig is a binary-operator registry entry.
type binOpSig struct {
	kind binOpKind
}

// BinOpRegistry maps an operator token to its unification behavior.
type BinOpRegistry struct {
	ops map[string]binOpSig
}

// NewBinOpRegistry builds the table described in §4.5: comparison
// operators force both operands to a shared type and yield Native
// (bool); the JSONB accessor/containment operators get bespoke handling;
// anything else falls back to forcing both operands and the result to
// Native.
func NewBinOpRegistry() *BinOpRegistry {
	b := &BinOpRegistry{ops: make(map[string]binOpSig)}
	for _, op := range []string{"=", "<>", "!=", "<", "<=", ">", ">=", "like", "ilike", "~~", "!~~", "~~*", "!~~*"} {
		b.ops[op] = binOpSig{kind: opCompare}
	}
	b.ops["->"] = binOpSig{kind: opJSONPath}
	b.ops["->>"] = binOpSig{kind: opJSONPath}
	b.ops["@>"] = binOpSig{kind: opJSONContainment}
	b.ops["<@"] = binOpSig{kind: opJSONContainment}
	return b
}

// Lookup returns the operator's signature, defaulting to the
// all-Native fallback when op is unrecognized.
func (b *BinOpRegistry) Lookup(op string) binOpSig {
	if sig, ok := b.ops[strings.ToLower(op)]; ok {
		return sig
	}
	return binOpSig{kind: opUnknownFallback}
}
