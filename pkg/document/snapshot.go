package document

import (
	"fmt"
	"maps"
	"slices"

	"github.com/aretw0/actdata/pkg/domain"
	"github.com/aretw0/actdata/pkg/registry"
)

// Snapshot returns the persisted form of the committed state.
// Changes of an open transaction are included; callers snapshot after Commit.
func (d *Document) Snapshot() *domain.Snapshot {
	snap := &domain.Snapshot{
		ID:      d.id,
		Version: d.version,
		Meta:    maps.Clone(d.meta),
	}
	for _, t := range d.partitionOrder() {
		part := d.parts[t]
		if len(part.live) == 0 && part.next <= 1 {
			continue
		}
		ps := domain.PartitionSnapshot{Type: t, Next: part.next, Nodes: make([]domain.NodeSnapshot, 0, len(part.live))}
		for _, ord := range part.live {
			n := d.nodes[domain.NodeID{Type: t, Ordinal: ord}]
			ns := domain.NodeSnapshot{
				Ordinal:  ord,
				Name:     n.name,
				Children: slices.Clone(n.children),
				Params:   make([]domain.ParamSnapshot, len(part.typ.Params)),
			}
			for i, decl := range part.typ.Params {
				rec := n.params[i].clone()
				p := domain.ParamSnapshot{
					Index:      decl.Index,
					Name:       decl.Name,
					Kind:       decl.Kind,
					Evaluation: rec.eval,
					Stale:      rec.stale,
				}
				if rec.set {
					v := rec.value
					p.Value = &v
				}
				ns.Params[i] = p
			}
			ps.Nodes = append(ps.Nodes, ns)
		}
		snap.Partitions = append(snap.Partitions, ps)
	}
	return snap
}

// FromSnapshot rebuilds a document from its persisted form. The snapshot must already be at
// the registry's current version and match the registered layouts exactly.
func FromSnapshot(reg *registry.Registry, snap *domain.Snapshot, opts ...Option) (*Document, error) {
	if snap.Version != reg.CurrentVersion() {
		return nil, fmt.Errorf("%w: document %s is at version %d, registry expects %d",
			domain.ErrLayoutMismatch, snap.ID, snap.Version, reg.CurrentVersion())
	}

	d := New(snap.ID, reg, opts...)
	maps.Copy(d.meta, snap.Meta)

	for _, ps := range snap.Partitions {
		part := d.partitionRec(ps.Type)
		if part == nil {
			return nil, fmt.Errorf("%w: %s", domain.ErrUnknownType, ps.Type)
		}
		for _, ns := range ps.Nodes {
			id := domain.NodeID{Type: ps.Type, Ordinal: ns.Ordinal}
			if ns.Ordinal < 1 {
				return nil, fmt.Errorf("%w: invalid ordinal %s", domain.ErrLayoutMismatch, id)
			}
			if _, dup := d.nodes[id]; dup {
				return nil, fmt.Errorf("%w: duplicate node %s", domain.ErrLayoutMismatch, id)
			}
			rec := &nodeRec{
				id:       id,
				name:     ns.Name,
				children: slices.Clone(ns.Children),
				params:   make([]paramRec, len(part.typ.Params)),
			}
			loaded := make(map[domain.ParamIndex]bool, len(ns.Params))
			for _, p := range ns.Params {
				if loaded[p.Index] {
					return nil, fmt.Errorf("%w: %s stores parameter %d twice", domain.ErrLayoutMismatch, id, p.Index)
				}
				if err := loadParam(part.typ, rec, p); err != nil {
					return nil, err
				}
				loaded[p.Index] = true
			}
			if len(loaded) != len(part.typ.Params) {
				return nil, fmt.Errorf("%w: %s stores %d parameters, %s declares %d",
					domain.ErrLayoutMismatch, id, len(loaded), ps.Type, len(part.typ.Params))
			}
			d.attachNode(rec)
		}
		if ps.Next > part.next {
			part.next = ps.Next
		}
	}
	return d, nil
}

func loadParam(typ registry.NodeType, rec *nodeRec, p domain.ParamSnapshot) error {
	gid := rec.id.Param(p.Index)
	decl, ok := typ.Param(p.Index)
	if !ok {
		return &domain.ParameterError{GID: gid, Err: fmt.Errorf("%w: %w", domain.ErrLayoutMismatch, domain.ErrUnknownParameterID)}
	}
	if decl.Name != p.Name || decl.Kind != p.Kind {
		return &domain.ParameterError{GID: gid, Err: fmt.Errorf("%w: stored %s %q, declared %s %q",
			domain.ErrLayoutMismatch, p.Kind, p.Name, decl.Kind, decl.Name)}
	}
	if p.Evaluation != nil && !decl.Expressible {
		return &domain.ParameterError{GID: gid, Err: fmt.Errorf("%w: evaluation on non-expressible parameter", domain.ErrLayoutMismatch)}
	}

	slot := paramRec{stale: p.Stale}
	if p.Evaluation != nil {
		e := p.Evaluation.Clone()
		slot.eval = &e
	}
	if p.Value != nil {
		if decl.Kind == domain.KindGroup || p.Value.Kind != decl.Kind {
			return &domain.ParameterError{GID: gid, Err: domain.ErrTypeMismatch}
		}
		slot.value = p.Value.Clone()
		slot.set = true
	}
	rec.params[p.Index] = slot
	return nil
}
