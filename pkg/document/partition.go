package document

import (
	"fmt"
	"slices"

	"github.com/aretw0/actdata/pkg/domain"
	"github.com/aretw0/actdata/pkg/registry"
)

// Partition manages the lifecycle of the Nodes of one type.
// Nodes are addressed by 1-based ordinals that are never reused.
type Partition struct {
	doc *Document
	rec *partitionRec
}

// GetNodeType returns the type of every Node in the partition.
func (p *Partition) GetNodeType() domain.TypeID {
	return p.rec.typ.ID
}

// Type returns the registered layout of the partition's Nodes.
func (p *Partition) Type() registry.NodeType {
	return p.rec.typ
}

// Len returns the number of live Nodes.
func (p *Partition) Len() int {
	return len(p.rec.live)
}

// AddNode appends a Node with every Parameter unset. Its ordinal is one past the
// highest ordinal ever committed in this partition.
func (p *Partition) AddNode() (*Node, error) {
	d := p.doc
	if d.tx == nil {
		return nil, domain.ErrNoActiveTransaction
	}

	prevNext := p.rec.next
	id := domain.NodeID{Type: p.rec.typ.ID, Ordinal: prevNext}
	rec := &nodeRec{id: id, params: make([]paramRec, len(p.rec.typ.Params))}
	d.nodes[id] = rec
	p.rec.insert(id.Ordinal)

	d.record(nodeAdded{rec: rec.clone(), prevNext: prevNext})
	d.tx.mods.created = append(d.tx.mods.created, id)
	return &Node{doc: d, id: id, typ: p.rec.typ}, nil
}

// GetNode returns the live Node at ordinal.
func (p *Partition) GetNode(ordinal int) (*Node, error) {
	id := domain.NodeID{Type: p.rec.typ.ID, Ordinal: ordinal}
	if _, ok := p.doc.nodes[id]; !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrOutOfRange, id)
	}
	return &Node{doc: p.doc, id: id, typ: p.rec.typ}, nil
}

// Nodes returns the live Nodes in ordinal order.
func (p *Partition) Nodes() []*Node {
	out := make([]*Node, 0, len(p.rec.live))
	for _, ord := range p.rec.live {
		out = append(out, &Node{doc: p.doc, id: domain.NodeID{Type: p.rec.typ.ID, Ordinal: ord}, typ: p.rec.typ})
	}
	return out
}

// RemoveNode deletes the Node at ordinal. It fails with ErrDanglingReference while any other
// Node still points at it through a reference, a reference list, a child link or a function binding.
func (p *Partition) RemoveNode(ordinal int) error {
	d := p.doc
	if d.tx == nil {
		return domain.ErrNoActiveTransaction
	}
	id := domain.NodeID{Type: p.rec.typ.ID, Ordinal: ordinal}
	rec, ok := d.nodes[id]
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrOutOfRange, id)
	}
	if by, found := d.referrer(id); found {
		return fmt.Errorf("%w: %s is referenced by %s", domain.ErrDanglingReference, id, by)
	}

	d.record(nodeRemoved{rec: rec.clone()})
	d.detachNode(id)
	d.tx.mods.removed = append(d.tx.mods.removed, id)
	return nil
}

// referrer finds a Parameter or child link of another Node pointing at target.
func (d *Document) referrer(target domain.NodeID) (string, bool) {
	for _, t := range d.partitionOrder() {
		part := d.parts[t]
		for _, ord := range part.live {
			n := d.nodes[domain.NodeID{Type: t, Ordinal: ord}]
			if n.id == target {
				continue
			}
			if slices.Contains(n.children, target) {
				return n.id.String() + " (child link)", true
			}
			for i, p := range n.params {
				if !p.set {
					continue
				}
				gid := n.id.Param(domain.ParamIndex(i))
				if slices.Contains(p.value.NodeRefs(), target) {
					return gid.String(), true
				}
				if p.value.Binding != nil {
					for _, bound := range p.value.Binding.GIDs() {
						if bound.Node == target {
							return gid.String(), true
						}
					}
				}
			}
		}
	}
	return "", false
}
