package document

import (
	"fmt"
	"slices"

	"github.com/aretw0/actdata/pkg/domain"
	"github.com/aretw0/actdata/pkg/registry"
)

// Node is a handle on a typed aggregate of Parameters.
// Handles stay cheap to copy; every call resolves the Node in the arena.
type Node struct {
	doc *Document
	id  domain.NodeID
	typ registry.NodeType
}

// ID returns the stable address of the Node.
func (n *Node) ID() domain.NodeID { return n.id }

// Type returns the Node's type.
func (n *Node) Type() domain.TypeID { return n.id.Type }

// IsAlive reports whether the Node is still part of the document.
func (n *Node) IsAlive() bool {
	_, ok := n.doc.nodes[n.id]
	return ok
}

func (n *Node) rec() (*nodeRec, error) {
	rec, ok := n.doc.nodes[n.id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrOutOfRange, n.id)
	}
	return rec, nil
}

// Name returns the human-readable name, or "" for removed Nodes.
func (n *Node) Name() string {
	rec, err := n.rec()
	if err != nil {
		return ""
	}
	return rec.name
}

// SetName renames the Node. Names are not touched Parameters and never trigger execution.
func (n *Node) SetName(name string) error {
	if n.doc.tx == nil {
		return domain.ErrNoActiveTransaction
	}
	rec, err := n.rec()
	if err != nil {
		return err
	}
	if rec.name == name {
		return nil
	}
	n.doc.record(nameChange{id: n.id, before: rec.name, after: name})
	rec.name = name
	return nil
}

// Parameter returns the Parameter declared at idx.
func (n *Node) Parameter(idx domain.ParamIndex) (*Parameter, error) {
	if _, err := n.rec(); err != nil {
		return nil, err
	}
	decl, ok := n.typ.Param(idx)
	if !ok {
		return nil, &domain.ParameterError{GID: n.id.Param(idx), Err: domain.ErrUnknownParameterID}
	}
	return &Parameter{doc: n.doc, gid: n.id.Param(idx), decl: decl}, nil
}

// ParameterByName returns the Parameter declared with name.
func (n *Node) ParameterByName(name string) (*Parameter, error) {
	decl, ok := n.typ.ParamByName(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s has no parameter %q", domain.ErrUnknownParameterID, n.id, name)
	}
	return n.Parameter(decl.Index)
}

// Parameters returns every Parameter in declaration order.
func (n *Node) Parameters() []*Parameter {
	out := make([]*Parameter, len(n.typ.Params))
	for i, decl := range n.typ.Params {
		out[i] = &Parameter{doc: n.doc, gid: n.id.Param(decl.Index), decl: decl}
	}
	return out
}

// Value returns the value of the Parameter at idx when it is set.
func (n *Node) Value(idx domain.ParamIndex) (domain.Value, bool) {
	rec, err := n.rec()
	if err != nil || idx < 0 || int(idx) >= len(rec.params) {
		return domain.Value{}, false
	}
	p := rec.params[idx]
	if !p.set {
		return domain.Value{}, false
	}
	return p.value.Clone(), true
}

// Children returns the child links in insertion order.
func (n *Node) Children() []domain.NodeID {
	rec, err := n.rec()
	if err != nil {
		return nil
	}
	return slices.Clone(rec.children)
}

// Child returns the child at the 1-based ordinal among this Node's children.
func (n *Node) Child(ordinal int) (*Node, error) {
	rec, err := n.rec()
	if err != nil {
		return nil, err
	}
	if ordinal < 1 || ordinal > len(rec.children) {
		return nil, fmt.Errorf("%w: %s has %d children, asked for %d", domain.ErrOutOfRange, n.id, len(rec.children), ordinal)
	}
	return n.doc.Node(rec.children[ordinal-1])
}

// AddChild links an existing Node as the last child.
func (n *Node) AddChild(child domain.NodeID) error {
	if n.doc.tx == nil {
		return domain.ErrNoActiveTransaction
	}
	rec, err := n.rec()
	if err != nil {
		return err
	}
	if _, err := n.doc.Node(child); err != nil {
		return err
	}
	if child == n.id {
		return fmt.Errorf("node %s cannot be its own child", n.id)
	}
	before := slices.Clone(rec.children)
	rec.children = append(rec.children, child)
	n.doc.record(childrenChange{id: n.id, before: before, after: slices.Clone(rec.children)})
	return nil
}

// RemoveChild unlinks child. Unlinking does not remove the child Node.
func (n *Node) RemoveChild(child domain.NodeID) error {
	if n.doc.tx == nil {
		return domain.ErrNoActiveTransaction
	}
	rec, err := n.rec()
	if err != nil {
		return err
	}
	i := slices.Index(rec.children, child)
	if i < 0 {
		return fmt.Errorf("%w: %s is not a child of %s", domain.ErrOutOfRange, child, n.id)
	}
	before := slices.Clone(rec.children)
	rec.children = slices.Delete(rec.children, i, i+1)
	n.doc.record(childrenChange{id: n.id, before: before, after: slices.Clone(rec.children)})
	return nil
}
