package rewrite

// Rule is one ordered transformation of the rewrite pipeline (§4.6).
// WouldEdit is a pure precondition check used for logging/metrics
// without mutating anything; Apply performs the mutation;
// CheckPostcondition runs right after that rule (whether or not Apply
// ran), verifying the invariant the rule exists to protect still holds.
type Rule interface {
	Name() string
	WouldEdit(ctx *Context) bool
	Apply(ctx *Context) error
	CheckPostcondition(ctx *Context) error
}

// Pipeline is an ordered, idempotent sequence of rules. Running the
// same statement through the same Pipeline twice produces no further
// change the second time, since every rule's Apply is itself
// idempotent (each checks its own precondition before mutating).
type Pipeline struct {
	rules []Rule
}

// DefaultPipeline returns the seven rules in the order §4.6 specifies.
// Grouping/ordering fixups (1-3) run before alias repair (4), which
// must see the post-wrap AST; literal substitution (5) and function
// rewriting (6) are independent of 1-4 and of each other; the
// placeholder-identity guard (7) runs last so it sees the final tree.
func DefaultPipeline() *Pipeline {
	return &Pipeline{rules: []Rule{
		wrapGroupedEqlColInAggregateFn{},
		groupByEqlCol{},
		wrapEqlColsInOrderByWithOreFn{},
		preserveEffectiveAliases{},
		replacePlaintextEqlLiterals{},
		useEquivalentSqlFuncForEqlTypes{},
		failOnPlaceholderChange{},
	}}
}

// Run applies every rule in order against ctx, stopping at the first
// error (either from Apply or from the rule's own postcondition
// check).
func (p *Pipeline) Run(ctx *Context) error {
	for _, rule := range p.rules {
		if rule.WouldEdit(ctx) {
			if err := rule.Apply(ctx); err != nil {
				return err
			}
		}
		if err := rule.CheckPostcondition(ctx); err != nil {
			return err
		}
	}
	return nil
}
