package domain

import (
	"maps"
	"slices"
)

// MetaVersionString is the Snapshot.Meta key carrying the writer's version string.
// It is informational only; Snapshot.Version is authoritative.
const MetaVersionString = "act_version"

// Snapshot is the persisted form of a document: what stores save and conversions rewrite.
type Snapshot struct {
	ID         string              `json:"id" yaml:"id"`
	Version    int                 `json:"version" yaml:"version"`
	Meta       map[string]string   `json:"meta,omitempty" yaml:"meta,omitempty"`
	Partitions []PartitionSnapshot `json:"partitions" yaml:"partitions"`
}

// PartitionSnapshot holds the Nodes of one type. Next is the next ordinal to allocate.
type PartitionSnapshot struct {
	Type  TypeID         `json:"type" yaml:"type"`
	Next  int            `json:"next" yaml:"next"`
	Nodes []NodeSnapshot `json:"nodes" yaml:"nodes"`
}

// NodeSnapshot is one live Node.
type NodeSnapshot struct {
	Ordinal  int             `json:"ordinal" yaml:"ordinal"`
	Name     string          `json:"name,omitempty" yaml:"name,omitempty"`
	Children []NodeID        `json:"children,omitempty" yaml:"children,omitempty"`
	Params   []ParamSnapshot `json:"params" yaml:"params"`
}

// ParamSnapshot is one Parameter. A nil Value means the Parameter was never set.
type ParamSnapshot struct {
	Index      ParamIndex  `json:"index" yaml:"index"`
	Name       string      `json:"name" yaml:"name"`
	Kind       ValueKind   `json:"kind" yaml:"kind"`
	Value      *Value      `json:"value,omitempty" yaml:"value,omitempty"`
	Evaluation *Evaluation `json:"evaluation,omitempty" yaml:"evaluation,omitempty"`
	Stale      bool        `json:"stale,omitempty" yaml:"stale,omitempty"`
}

// Clone returns a deep copy of the snapshot.
func (s *Snapshot) Clone() *Snapshot {
	if s == nil {
		return nil
	}
	out := &Snapshot{
		ID:         s.ID,
		Version:    s.Version,
		Meta:       maps.Clone(s.Meta),
		Partitions: make([]PartitionSnapshot, len(s.Partitions)),
	}
	for i, p := range s.Partitions {
		cp := PartitionSnapshot{Type: p.Type, Next: p.Next, Nodes: make([]NodeSnapshot, len(p.Nodes))}
		for j, n := range p.Nodes {
			cp.Nodes[j] = n.Clone()
		}
		out.Partitions[i] = cp
	}
	return out
}

// Clone returns a deep copy of the node.
func (n NodeSnapshot) Clone() NodeSnapshot {
	out := NodeSnapshot{
		Ordinal:  n.Ordinal,
		Name:     n.Name,
		Children: slices.Clone(n.Children),
		Params:   make([]ParamSnapshot, len(n.Params)),
	}
	for i, p := range n.Params {
		out.Params[i] = p.Clone()
	}
	return out
}

// Clone returns a deep copy of the parameter.
func (p ParamSnapshot) Clone() ParamSnapshot {
	out := p
	if p.Value != nil {
		v := p.Value.Clone()
		out.Value = &v
	}
	if p.Evaluation != nil {
		e := p.Evaluation.Clone()
		out.Evaluation = &e
	}
	return out
}

// Partition returns the partition snapshot of the given type, or nil.
func (s *Snapshot) Partition(t TypeID) *PartitionSnapshot {
	for i := range s.Partitions {
		if s.Partitions[i].Type == t {
			return &s.Partitions[i]
		}
	}
	return nil
}

// Node returns the node snapshot addressed by id, or nil.
func (s *Snapshot) Node(id NodeID) *NodeSnapshot {
	p := s.Partition(id.Type)
	if p == nil {
		return nil
	}
	for i := range p.Nodes {
		if p.Nodes[i].Ordinal == id.Ordinal {
			return &p.Nodes[i]
		}
	}
	return nil
}

// Param returns the parameter snapshot addressed by gid, or nil.
func (s *Snapshot) Param(gid GID) *ParamSnapshot {
	n := s.Node(gid.Node)
	if n == nil {
		return nil
	}
	for i := range n.Params {
		if n.Params[i].Index == gid.Param {
			return &n.Params[i]
		}
	}
	return nil
}

// Walk calls fn for every parameter in partition, ordinal and index order.
func (s *Snapshot) Walk(fn func(gid GID, p *ParamSnapshot)) {
	for pi := range s.Partitions {
		part := &s.Partitions[pi]
		for ni := range part.Nodes {
			node := &part.Nodes[ni]
			id := NodeID{Type: part.Type, Ordinal: node.Ordinal}
			for i := range node.Params {
				fn(id.Param(node.Params[i].Index), &node.Params[i])
			}
		}
	}
}

// Provenance records where moved or renamed Parameters came from during conversion.
type Provenance struct {
	moves map[GID]GID
	order []GID
}

// NewProvenance returns an empty provenance record.
func NewProvenance() *Provenance {
	return &Provenance{moves: make(map[GID]GID)}
}

// Record notes that the Parameter formerly at from now lives at to.
// Chains collapse: recording a->b then b->c leaves a->c.
func (p *Provenance) Record(from, to GID) {
	for _, orig := range p.order {
		if p.moves[orig] == from {
			p.moves[orig] = to
			return
		}
	}
	p.moves[from] = to
	p.order = append(p.order, from)
}

// Remap records a set of moves that happen at once, such as every index shifting after an
// insertion. Existing chains are followed so each original address still resolves to its
// latest location.
func (p *Provenance) Remap(moves map[GID]GID) {
	current := make(map[GID]bool, len(p.order))
	for _, orig := range p.order {
		cur := p.moves[orig]
		current[cur] = true
		if to, ok := moves[cur]; ok {
			p.moves[orig] = to
		}
	}
	from := slices.Collect(maps.Keys(moves))
	slices.SortFunc(from, func(a, b GID) int {
		switch {
		case a.Less(b):
			return -1
		case b.Less(a):
			return 1
		}
		return 0
	})
	for _, g := range from {
		if current[g] || moves[g] == g {
			continue
		}
		if _, ok := p.moves[g]; ok {
			continue
		}
		p.moves[g] = moves[g]
		p.order = append(p.order, g)
	}
}

// Resolve returns the current address of a Parameter originally at gid.
func (p *Provenance) Resolve(gid GID) (GID, bool) {
	to, ok := p.moves[gid]
	return to, ok
}

// Len returns the number of recorded moves.
func (p *Provenance) Len() int {
	return len(p.order)
}

// Moves returns the recorded (original, current) pairs in recording order.
func (p *Provenance) Moves() [][2]GID {
	out := make([][2]GID, 0, len(p.order))
	for _, from := range p.order {
		out = append(out, [2]GID{from, p.moves[from]})
	}
	return out
}
