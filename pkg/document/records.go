package document

import (
	"maps"
	"slices"
	"sort"

	"github.com/aretw0/actdata/pkg/domain"
	"github.com/aretw0/actdata/pkg/registry"
)

// paramRec is the arena slot of one Parameter.
type paramRec struct {
	value domain.Value
	set   bool
	eval  *domain.Evaluation
	stale bool
}

func (p paramRec) clone() paramRec {
	out := p
	out.value = p.value.Clone()
	if p.eval != nil {
		e := p.eval.Clone()
		out.eval = &e
	}
	return out
}

// nodeRec is the arena slot of one Node.
type nodeRec struct {
	id       domain.NodeID
	name     string
	children []domain.NodeID
	params   []paramRec
}

func (n *nodeRec) clone() *nodeRec {
	out := &nodeRec{
		id:       n.id,
		name:     n.name,
		children: slices.Clone(n.children),
		params:   make([]paramRec, len(n.params)),
	}
	for i, p := range n.params {
		out.params[i] = p.clone()
	}
	return out
}

// partitionRec tracks the ordinals of one Node type.
type partitionRec struct {
	typ  registry.NodeType
	next int
	live []int
}

func (p *partitionRec) insert(ordinal int) {
	i := sort.SearchInts(p.live, ordinal)
	if i < len(p.live) && p.live[i] == ordinal {
		return
	}
	p.live = slices.Insert(p.live, i, ordinal)
	if ordinal >= p.next {
		p.next = ordinal + 1
	}
}

func (p *partitionRec) remove(ordinal int) {
	i := sort.SearchInts(p.live, ordinal)
	if i < len(p.live) && p.live[i] == ordinal {
		p.live = slices.Delete(p.live, i, i+1)
	}
}

// change is one journal entry. undo and redo must be exact inverses.
type change interface {
	undo(d *Document)
	redo(d *Document)
}

type paramChange struct {
	gid           domain.GID
	before, after paramRec
}

func (c paramChange) undo(d *Document) { d.restoreParam(c.gid, c.before) }
func (c paramChange) redo(d *Document) { d.restoreParam(c.gid, c.after) }

type nameChange struct {
	id            domain.NodeID
	before, after string
}

func (c nameChange) undo(d *Document) {
	if n := d.nodes[c.id]; n != nil {
		n.name = c.before
	}
}

func (c nameChange) redo(d *Document) {
	if n := d.nodes[c.id]; n != nil {
		n.name = c.after
	}
}

type childrenChange struct {
	id            domain.NodeID
	before, after []domain.NodeID
}

func (c childrenChange) undo(d *Document) {
	if n := d.nodes[c.id]; n != nil {
		n.children = slices.Clone(c.before)
	}
}

func (c childrenChange) redo(d *Document) {
	if n := d.nodes[c.id]; n != nil {
		n.children = slices.Clone(c.after)
	}
}

// nodeAdded restores the ordinal counter on undo so an aborted AddNode leaves no trace.
type nodeAdded struct {
	rec      *nodeRec
	prevNext int
}

func (c nodeAdded) undo(d *Document) {
	d.detachNode(c.rec.id)
	if part := d.parts[c.rec.id.Type]; part != nil {
		part.next = c.prevNext
	}
}

func (c nodeAdded) redo(d *Document) { d.attachNode(c.rec.clone()) }

type nodeRemoved struct {
	rec *nodeRec
}

func (c nodeRemoved) undo(d *Document) { d.attachNode(c.rec.clone()) }
func (c nodeRemoved) redo(d *Document) { d.detachNode(c.rec.id) }

// reportChange keeps function statuses in step with the outputs of the pass that produced them.
type reportChange struct {
	before, after      *domain.ExecutionReport
	prevRuns, nextRuns map[domain.GID]domain.FunctionStatus
}

func (c reportChange) undo(d *Document) {
	d.lastReport = c.before
	d.status = maps.Clone(c.prevRuns)
}

func (c reportChange) redo(d *Document) {
	d.lastReport = c.after
	d.status = maps.Clone(c.nextRuns)
}

func (d *Document) restoreParam(gid domain.GID, rec paramRec) {
	n := d.nodes[gid.Node]
	if n == nil || int(gid.Param) >= len(n.params) {
		return
	}
	n.params[gid.Param] = rec.clone()
}

func (d *Document) attachNode(n *nodeRec) {
	part := d.partitionRec(n.id.Type)
	if part == nil {
		return
	}
	d.nodes[n.id] = n
	part.insert(n.id.Ordinal)
}

func (d *Document) detachNode(id domain.NodeID) {
	delete(d.nodes, id)
	if part := d.parts[id.Type]; part != nil {
		part.remove(id.Ordinal)
	}
}
