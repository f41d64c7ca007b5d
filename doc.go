/*
Package actdata keeps parametric design data consistent. A document is a set of typed
Nodes whose Parameters are linked by Tree Functions: computations bound to input and
output Parameters. Every committed change re-runs exactly the functions it affects, in
dependency order, and the document can be undone, redone, stored and converted to
newer type layouts.

# Concept

A Registry declares the Node types (their Parameter layout), the Tree Functions and the
conversion routines of a document family. The Engine wraps the dependency runtime and a
document store. Changes happen inside a named transaction; Commit builds the dependency
graph, runs the impacted functions and returns an ExecutionReport.

# Key Features

  - Incremental execution: only functions downstream of a touched Parameter run.
  - Atomic commits: a cycle or failed pass restores the state before the transaction.
  - Undo and redo of whole transactions.
  - Versioned storage with registered conversion routines and provenance of moved Parameters.
  - Pluggable stores (memory, file, Badger, SQLite, Redis) behind one DocumentStore port.

# Usage

	reg := registry.NewRegistry()
	reg.MustRegisterType(registry.NodeType{ID: "Box", Params: []registry.ParamDecl{
		{Index: 0, Name: "width", Kind: domain.KindReal},
		{Index: 1, Name: "area", Kind: domain.KindReal, Expressible: true},
		{Index: 2, Name: "fn", Kind: domain.KindTreeFunction},
	}})

	eng, err := actdata.New(reg, actdata.WithExpressions())
	if err != nil {
		log.Fatal(err)
	}

	ctx := context.Background()
	if _, err := eng.Create(ctx, "boxes"); err != nil {
		log.Fatal(err)
	}
	report, err := eng.Update(ctx, "boxes", "add box", func(doc *document.Document) error {
		part, _ := doc.Partition("Box")
		node, err := part.AddNode()
		if err != nil {
			return err
		}
		width, _ := node.ParameterByName("width")
		return width.SetValue(domain.RealValue(3))
	})
*/
package actdata
