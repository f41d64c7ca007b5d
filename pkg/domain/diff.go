package domain

import "sort"

// SnapshotDiff represents the changes between two document snapshots.
// It is designed to be serialized to JSON for review of conversions and commits.
type SnapshotDiff struct {
	// Document is always present to identify the target.
	Document string `json:"document"`

	// Version changed?
	FromVersion *int `json:"from_version,omitempty"`
	ToVersion   *int `json:"to_version,omitempty"`

	// NodesAdded and NodesRemoved list whole Nodes that appeared or disappeared.
	NodesAdded   []NodeID `json:"nodes_added,omitempty"`
	NodesRemoved []NodeID `json:"nodes_removed,omitempty"`

	// Params contains only changed, added or deleted parameters of Nodes present on both sides.
	// For deletions, the entry has a nil New.
	Params []ParamDelta `json:"params,omitempty"`
}

// ParamDelta is one parameter-level change.
type ParamDelta struct {
	GID GID    `json:"gid"`
	Old *Value `json:"old,omitempty"`
	New *Value `json:"new,omitempty"`
}

// Diff calculates the difference between oldSnap and newSnap.
// If oldSnap is nil, every node of newSnap is reported as added (initial load).
// Returns nil when nothing changed.
func Diff(oldSnap, newSnap *Snapshot) *SnapshotDiff {
	if newSnap == nil {
		return nil
	}

	diff := &SnapshotDiff{Document: newSnap.ID}

	// 1. Version
	if oldSnap == nil || oldSnap.Version != newSnap.Version {
		if oldSnap != nil {
			from := oldSnap.Version
			diff.FromVersion = &from
		}
		to := newSnap.Version
		diff.ToVersion = &to
	}

	oldNodes := indexNodes(oldSnap)
	newNodes := indexNodes(newSnap)

	// 2. Node set
	for id := range newNodes {
		if _, ok := oldNodes[id]; !ok {
			diff.NodesAdded = append(diff.NodesAdded, id)
		}
	}
	for id := range oldNodes {
		if _, ok := newNodes[id]; !ok {
			diff.NodesRemoved = append(diff.NodesRemoved, id)
		}
	}
	sortNodeIDs(diff.NodesAdded)
	sortNodeIDs(diff.NodesRemoved)

	// 3. Parameters of surviving nodes
	for id, newNode := range newNodes {
		oldNode, ok := oldNodes[id]
		if !ok {
			continue
		}
		diff.Params = append(diff.Params, diffParams(id, oldNode, newNode)...)
	}
	sort.Slice(diff.Params, func(i, j int) bool {
		return diff.Params[i].GID.Less(diff.Params[j].GID)
	})

	if diff.IsEmpty() {
		return nil
	}
	return diff
}

func indexNodes(s *Snapshot) map[NodeID]*NodeSnapshot {
	out := make(map[NodeID]*NodeSnapshot)
	if s == nil {
		return out
	}
	for pi := range s.Partitions {
		part := &s.Partitions[pi]
		for ni := range part.Nodes {
			out[NodeID{Type: part.Type, Ordinal: part.Nodes[ni].Ordinal}] = &part.Nodes[ni]
		}
	}
	return out
}

func diffParams(id NodeID, oldNode, newNode *NodeSnapshot) []ParamDelta {
	var deltas []ParamDelta
	oldParams := make(map[ParamIndex]*ParamSnapshot, len(oldNode.Params))
	for i := range oldNode.Params {
		oldParams[oldNode.Params[i].Index] = &oldNode.Params[i]
	}

	// Added or modified
	seen := make(map[ParamIndex]bool, len(newNode.Params))
	for i := range newNode.Params {
		np := &newNode.Params[i]
		seen[np.Index] = true
		op, exists := oldParams[np.Index]
		if !exists || !sameValue(op.Value, np.Value) {
			d := ParamDelta{GID: id.Param(np.Index), New: np.Value}
			if exists {
				d.Old = op.Value
			}
			deltas = append(deltas, d)
		}
	}

	// Deleted
	for idx, op := range oldParams {
		if !seen[idx] {
			deltas = append(deltas, ParamDelta{GID: id.Param(idx), Old: op.Value})
		}
	}
	return deltas
}

func sameValue(a, b *Value) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}

func sortNodeIDs(ids []NodeID) {
	sort.Slice(ids, func(i, j int) bool {
		return ids[i].Param(0).Less(ids[j].Param(0))
	})
}

// IsEmpty checks if the diff contains any actionable changes.
func (d *SnapshotDiff) IsEmpty() bool {
	return d.FromVersion == nil &&
		d.ToVersion == nil &&
		len(d.NodesAdded) == 0 &&
		len(d.NodesRemoved) == 0 &&
		len(d.Params) == 0
}
