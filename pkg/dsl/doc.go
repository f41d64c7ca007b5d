/*
Package dsl builds Node types and document content in Go code.

It is the programmatic counterpart of schema type tables: a fluent builder that is handy for
tests, fixtures and generated documents, with compile-time checked wiring between Nodes.

Example usage:

	reg := registry.NewRegistry()
	dsl.Type("Box").
		Real("height").
		Real("width").Expressible().
		Function("keep_width").
		MustRegister(reg)
	expr.Register(reg)

	b := dsl.New(reg, dsl.WithDocumentOptions(document.WithExecutor(runtime.NewEngine())))
	box := b.Add("Box").Name("lid").Set("height", domain.RealValue(2))
	box.Expr("keep_width", "width", "height * 2", dsl.Var("height", box.P("height")))

	doc, report, err := b.Build(ctx, "crate")
*/
package dsl
