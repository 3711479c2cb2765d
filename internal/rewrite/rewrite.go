package rewrite

// Rewrite runs the default pipeline against ctx.Stmt using ctx.Res (the
// type-inference result computed for the statement before any
// rewriting) and ctx.Ciphertexts (the encrypted replacement for each
// literal in Res.EqlLiterals the caller chose to encrypt). It mutates the AST
// in place and returns the first error any rule's Apply or
// CheckPostcondition reports.
func Rewrite(ctx *Context) error {
	return DefaultPipeline().Run(ctx)
}
