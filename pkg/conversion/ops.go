package conversion

import (
	"fmt"
	"slices"

	"github.com/aretw0/actdata/pkg/domain"
)

// ParamSpec describes a Parameter added by InsertParameter.
type ParamSpec struct {
	Name string
	Kind domain.ValueKind
	// Default is stored in every existing Node. Nil leaves the Parameter unset.
	Default *domain.Value
}

// InsertParameter adds a Parameter at index `at` of every Node of type t. Parameters at `at`
// and above shift up by one; references to them follow.
func InsertParameter(snap *domain.Snapshot, prov *domain.Provenance, t domain.TypeID, at domain.ParamIndex, spec ParamSpec) error {
	if spec.Kind == domain.KindInvalid {
		return fmt.Errorf("insert %s.%s: invalid kind", t, spec.Name)
	}
	if spec.Default != nil && (spec.Kind == domain.KindGroup || spec.Default.Kind != spec.Kind) {
		return fmt.Errorf("insert %s.%s: %w", t, spec.Name, domain.ErrTypeMismatch)
	}
	return reshape(snap, prov, t, func(params []domain.ParamSnapshot) ([]domain.ParamSnapshot, error) {
		if at < 0 || int(at) > len(params) {
			return nil, fmt.Errorf("insert %s.%s at %d: %w", t, spec.Name, at, domain.ErrUnknownParameterID)
		}
		if hasName(params, spec.Name) {
			return nil, fmt.Errorf("insert %s: parameter %q already exists", t, spec.Name)
		}
		p := domain.ParamSnapshot{Index: -1, Name: spec.Name, Kind: spec.Kind}
		if spec.Default != nil {
			v := spec.Default.Clone()
			p.Value = &v
		}
		return slices.Insert(params, int(at), p), nil
	})
}

// AppendParameter adds a Parameter after the last one of type t. Nothing is renumbered.
func AppendParameter(snap *domain.Snapshot, prov *domain.Provenance, t domain.TypeID, spec ParamSpec) error {
	part := snap.Partition(t)
	if part == nil || len(part.Nodes) == 0 {
		return nil
	}
	return InsertParameter(snap, prov, t, domain.ParamIndex(len(part.Nodes[0].Params)), spec)
}

// RemoveParameter deletes the Parameter at idx from every Node of type t. Later Parameters
// shift down. Fails with ErrDanglingReference while any binding or expression still uses it.
func RemoveParameter(snap *domain.Snapshot, prov *domain.Provenance, t domain.TypeID, idx domain.ParamIndex) error {
	return reshape(snap, prov, t, func(params []domain.ParamSnapshot) ([]domain.ParamSnapshot, error) {
		if idx < 0 || int(idx) >= len(params) {
			return nil, fmt.Errorf("remove %s#%d: %w", t, idx, domain.ErrUnknownParameterID)
		}
		return slices.Delete(params, int(idx), int(idx)+1), nil
	})
}

// MoveParameter moves the Parameter at from to position to, shifting those in between.
func MoveParameter(snap *domain.Snapshot, prov *domain.Provenance, t domain.TypeID, from, to domain.ParamIndex) error {
	return reshape(snap, prov, t, func(params []domain.ParamSnapshot) ([]domain.ParamSnapshot, error) {
		n := domain.ParamIndex(len(params))
		if from < 0 || from >= n || to < 0 || to >= n {
			return nil, fmt.Errorf("move %s#%d to #%d: %w", t, from, to, domain.ErrUnknownParameterID)
		}
		p := params[from]
		params = slices.Delete(params, int(from), int(from)+1)
		return slices.Insert(params, int(to), p), nil
	})
}

// RenameParameter changes the declared name of a Parameter. Addresses are unaffected.
func RenameParameter(snap *domain.Snapshot, t domain.TypeID, idx domain.ParamIndex, name string) error {
	part := snap.Partition(t)
	if part == nil {
		return nil
	}
	for ni := range part.Nodes {
		params := part.Nodes[ni].Params
		if idx < 0 || int(idx) >= len(params) {
			return fmt.Errorf("rename %s#%d: %w", t, idx, domain.ErrUnknownParameterID)
		}
		params[idx].Name = name
	}
	return nil
}

// RenameType moves the partition of type from to type to and rewrites every NodeID and GID
// that addressed it.
func RenameType(snap *domain.Snapshot, prov *domain.Provenance, from, to domain.TypeID) error {
	part := snap.Partition(from)
	if part == nil || from == to {
		return nil
	}
	if snap.Partition(to) != nil {
		return fmt.Errorf("rename %s to %s: partition already exists", from, to)
	}
	part.Type = to

	moves := make(map[domain.GID]domain.GID)
	for _, node := range part.Nodes {
		for _, p := range node.Params {
			old := domain.NodeID{Type: from, Ordinal: node.Ordinal}.Param(p.Index)
			moves[old] = domain.NodeID{Type: to, Ordinal: node.Ordinal}.Param(p.Index)
		}
	}
	prov.Remap(moves)

	node := func(id domain.NodeID) domain.NodeID {
		if id.Type == from {
			id.Type = to
		}
		return id
	}
	return rewrite(snap, node, func(g domain.GID) (domain.GID, error) {
		g.Node = node(g.Node)
		return g, nil
	})
}

// reshape rebuilds the parameter list of every Node of type t with fn, then renumbers the
// Parameters and redirects references. fn keeps the old Index on surviving entries and -1
// on new ones.
func reshape(snap *domain.Snapshot, prov *domain.Provenance, t domain.TypeID, fn func([]domain.ParamSnapshot) ([]domain.ParamSnapshot, error)) error {
	part := snap.Partition(t)
	if part == nil {
		return nil
	}

	var mapping map[domain.ParamIndex]domain.ParamIndex
	moves := make(map[domain.GID]domain.GID)
	for ni := range part.Nodes {
		node := &part.Nodes[ni]
		next, err := fn(slices.Clone(node.Params))
		if err != nil {
			return err
		}
		mapping = make(map[domain.ParamIndex]domain.ParamIndex, len(next))
		for pos := range next {
			if next[pos].Index >= 0 {
				mapping[next[pos].Index] = domain.ParamIndex(pos)
			}
			next[pos].Index = domain.ParamIndex(pos)
		}
		node.Params = next

		id := domain.NodeID{Type: t, Ordinal: node.Ordinal}
		for old, now := range mapping {
			if old != now {
				moves[id.Param(old)] = id.Param(now)
			}
		}
	}
	if mapping == nil {
		return nil
	}

	err := rewrite(snap, nil, func(g domain.GID) (domain.GID, error) {
		if g.Node.Type != t {
			return g, nil
		}
		now, ok := mapping[g.Param]
		if !ok {
			return g, fmt.Errorf("%w: %s was removed", domain.ErrDanglingReference, g)
		}
		g.Param = now
		return g, nil
	})
	if err != nil {
		return err
	}
	prov.Remap(moves)
	return nil
}

// rewrite applies node to every stored NodeID and gid to every stored GID. Either may be nil.
func rewrite(snap *domain.Snapshot, node func(domain.NodeID) domain.NodeID, gid func(domain.GID) (domain.GID, error)) error {
	var failed error
	mapGIDs := func(gids []domain.GID) {
		for i := range gids {
			g, err := gid(gids[i])
			if err != nil && failed == nil {
				failed = err
			}
			gids[i] = g
		}
	}

	for pi := range snap.Partitions {
		part := &snap.Partitions[pi]
		for ni := range part.Nodes {
			n := &part.Nodes[ni]
			if node != nil {
				for i := range n.Children {
					n.Children[i] = node(n.Children[i])
				}
			}
			for i := range n.Params {
				p := &n.Params[i]
				if p.Value != nil {
					if node != nil {
						if p.Value.Kind == domain.KindReference {
							p.Value.Ref = node(p.Value.Ref)
						}
						for j := range p.Value.Refs {
							p.Value.Refs[j] = node(p.Value.Refs[j])
						}
					}
					if gid != nil && p.Value.Binding != nil {
						mapGIDs(p.Value.Binding.Inputs)
						mapGIDs(p.Value.Binding.Outputs)
					}
				}
				if gid != nil && p.Evaluation != nil {
					for j := range p.Evaluation.Variables {
						g, err := gid(p.Evaluation.Variables[j].Source)
						if err != nil && failed == nil {
							failed = err
						}
						p.Evaluation.Variables[j].Source = g
					}
				}
			}
		}
	}
	return failed
}

func hasName(params []domain.ParamSnapshot, name string) bool {
	return slices.ContainsFunc(params, func(p domain.ParamSnapshot) bool { return p.Name == name })
}
