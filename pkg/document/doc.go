/*
Package document implements the Active Data document: an arena of typed Nodes and
Parameters addressed by stable IDs, grouped into one Partition per Node type.

All mutations happen inside a Transaction. The transaction records a journal (used for
Abort, Undo and Redo) and a ModificationSet (the touched Parameters that drive the
execution engine on Commit). Nodes reference each other only through Reference and
ReferenceList Parameters, never through pointers, so removing a Node is refused while
anything still points at it.

A Document is not safe for concurrent use. Callers serialize access through
session.Manager or by owning the document exclusively.
*/
package document
