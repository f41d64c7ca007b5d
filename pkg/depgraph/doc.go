/*
Package depgraph builds the dependency graph of Tree Functions from their bindings.

An edge A -> B exists whenever an output Parameter of A is an input Parameter of B.
The graph is derived data: it is rebuilt from the bindings stored in a document and
never persisted itself.

The package answers three questions for the execution engine:

  - Is the graph acyclic? (Build returns a *domain.CycleError otherwise.)
  - Which functions are impacted by a set of touched Parameters? (Impacted)
  - In which order must they run? (Schedule: producers first, then High priority,
    then insertion order.)
*/
package depgraph
