/*
Package domain contains the core data model of an Active Data document.

It defines the addressing scheme, the value union stored in Parameters, the
Tree Function binding that turns Parameters into a dependency graph, and the
persisted Snapshot form shared by stores and conversions. This package is kept
pure and free of I/O, following Hexagonal Architecture principles.

# Key Entities

  - NodeID / GID: Stable addresses of Nodes (type, ordinal) and Parameters (node, index).
  - Value: The tagged union held by a Parameter, selected by ValueKind.
  - FunctionBinding: A Tree Function bound to input and output Parameters.
  - Snapshot: The serializable form of a whole document, stamped with a format version.
  - ExecutionReport: Per-function outcome of one commit.
*/
package domain
