package document

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"sort"

	"github.com/aretw0/actdata/internal/logging"
	"github.com/aretw0/actdata/pkg/depgraph"
	"github.com/aretw0/actdata/pkg/domain"
	"github.com/aretw0/actdata/pkg/ports"
	"github.com/aretw0/actdata/pkg/registry"
	"github.com/google/uuid"
)

// Executor runs the dependency engine over the open transaction of a document.
// It is invoked by Commit, before the transaction is finalized.
type Executor interface {
	Execute(ctx context.Context, doc *Document, progress ports.Progress) (*domain.ExecutionReport, error)
}

// Document is an arena of Nodes and Parameters keyed by NodeID.
type Document struct {
	id      string
	reg     *registry.Registry
	version int
	meta    map[string]string

	parts map[domain.TypeID]*partitionRec
	nodes map[domain.NodeID]*nodeRec

	tx        *Transaction
	undo      []*Transaction
	redo      []*Transaction
	undoLimit int

	status     map[domain.GID]domain.FunctionStatus
	lastReport *domain.ExecutionReport

	executor Executor
	hooks    domain.LifecycleHooks
	logger   *slog.Logger
}

// Option configures a Document.
type Option func(*Document)

// WithExecutor sets the engine run on Commit. Without one, Commit only records changes.
func WithExecutor(e Executor) Option {
	return func(d *Document) {
		d.executor = e
	}
}

// WithLogger configures a logger for the Document.
func WithLogger(logger *slog.Logger) Option {
	return func(d *Document) {
		d.logger = logger
	}
}

// WithHooks registers commit and abort callbacks.
func WithHooks(hooks domain.LifecycleHooks) Option {
	return func(d *Document) {
		d.hooks = hooks
	}
}

// WithUndoLimit bounds the undo stack. Zero means unbounded.
func WithUndoLimit(n int) Option {
	return func(d *Document) {
		d.undoLimit = n
	}
}

// WithMeta sets a metadata entry carried into snapshots.
func WithMeta(key, value string) Option {
	return func(d *Document) {
		d.meta[key] = value
	}
}

// New creates an empty document at the registry's current version.
// An empty id is replaced by a random UUID.
func New(id string, reg *registry.Registry, opts ...Option) *Document {
	if id == "" {
		id = uuid.NewString()
	}
	d := &Document{
		id:        id,
		reg:       reg,
		version:   reg.CurrentVersion(),
		meta:      make(map[string]string),
		parts:     make(map[domain.TypeID]*partitionRec),
		nodes:     make(map[domain.NodeID]*nodeRec),
		status:    make(map[domain.GID]domain.FunctionStatus),
		undoLimit: 100,
		logger:    logging.NewNop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// ID returns the document ID.
func (d *Document) ID() string { return d.id }

// Version returns the document format version.
func (d *Document) Version() int { return d.version }

// Registry returns the registry the document was built against.
func (d *Document) Registry() *registry.Registry { return d.reg }

// Logger returns the document logger.
func (d *Document) Logger() *slog.Logger { return d.logger }

// Meta returns a copy of the document metadata.
func (d *Document) Meta() map[string]string { return maps.Clone(d.meta) }

// Partition returns the partition holding Nodes of type t.
func (d *Document) Partition(t domain.TypeID) (*Partition, error) {
	rec := d.partitionRec(t)
	if rec == nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnknownType, t)
	}
	return &Partition{doc: d, rec: rec}, nil
}

// Partitions returns every partition holding at least one Node, in type registration order.
func (d *Document) Partitions() []*Partition {
	var out []*Partition
	for _, t := range d.partitionOrder() {
		if rec := d.parts[t]; len(rec.live) > 0 {
			out = append(out, &Partition{doc: d, rec: rec})
		}
	}
	return out
}

// Node returns the live Node addressed by id.
func (d *Document) Node(id domain.NodeID) (*Node, error) {
	part := d.partitionRec(id.Type)
	if part == nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnknownType, id.Type)
	}
	if _, ok := d.nodes[id]; !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrOutOfRange, id)
	}
	return &Node{doc: d, id: id, typ: part.typ}, nil
}

// Parameter returns the Parameter addressed by gid.
func (d *Document) Parameter(gid domain.GID) (*Parameter, error) {
	n, err := d.Node(gid.Node)
	if err != nil {
		return nil, err
	}
	return n.Parameter(gid.Param)
}

func (d *Document) partitionRec(t domain.TypeID) *partitionRec {
	if rec, ok := d.parts[t]; ok {
		return rec
	}
	typ, err := d.reg.Type(t)
	if err != nil {
		return nil
	}
	rec := &partitionRec{typ: typ, next: 1}
	d.parts[t] = rec
	return rec
}

// partitionOrder lists instantiated partitions by type registration rank, then name.
func (d *Document) partitionOrder() []domain.TypeID {
	out := make([]domain.TypeID, 0, len(d.parts))
	for t := range d.parts {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool {
		ri, rj := d.reg.TypeRank(out[i]), d.reg.TypeRank(out[j])
		if ri != rj {
			return ri < rj
		}
		return out[i] < out[j]
	})
	return out
}

// lookup resolves gid to its arena slots.
func (d *Document) lookup(gid domain.GID) (*nodeRec, registry.ParamDecl, error) {
	part := d.partitionRec(gid.Node.Type)
	if part == nil {
		return nil, registry.ParamDecl{}, fmt.Errorf("%w: %s", domain.ErrUnknownType, gid.Node.Type)
	}
	n, ok := d.nodes[gid.Node]
	if !ok {
		return nil, registry.ParamDecl{}, fmt.Errorf("%w: %s", domain.ErrOutOfRange, gid.Node)
	}
	decl, ok := part.typ.Param(gid.Param)
	if !ok {
		return nil, registry.ParamDecl{}, &domain.ParameterError{GID: gid, Err: domain.ErrUnknownParameterID}
	}
	return n, decl, nil
}

// resolves reports whether gid addresses a Parameter of a live Node.
func (d *Document) resolves(gid domain.GID) bool {
	_, _, err := d.lookup(gid)
	return err == nil
}

// Functions returns every live Tree Function binding in stable insertion order:
// partition registration order, then ordinal, then parameter index.
func (d *Document) Functions() []depgraph.Function {
	var out []depgraph.Function
	for _, t := range d.partitionOrder() {
		part := d.parts[t]
		for _, ord := range part.live {
			n := d.nodes[domain.NodeID{Type: t, Ordinal: ord}]
			for i, decl := range part.typ.Params {
				p := n.params[i]
				if decl.Kind != domain.KindTreeFunction || !p.set || p.value.Binding == nil {
					continue
				}
				out = append(out, depgraph.Function{
					Host:    n.id.Param(decl.Index),
					Binding: p.value.Binding.Clone(),
					Order:   len(out),
				})
			}
		}
	}
	return out
}

// Graph builds the dependency graph of the live bindings.
func (d *Document) Graph() (*depgraph.Graph, error) {
	return depgraph.Build(d.Functions())
}

// checkBinding verifies that hosting b at host keeps the graph acyclic.
func (d *Document) checkBinding(host domain.GID, b domain.FunctionBinding) error {
	funcs := d.Functions()
	replaced := false
	for i := range funcs {
		if funcs[i].Host == host {
			funcs[i].Binding = b
			replaced = true
		}
	}
	if !replaced {
		funcs = append(funcs, depgraph.Function{Host: host, Binding: b, Order: len(funcs)})
	}
	_, err := depgraph.Build(funcs)
	return err
}

// SetStale sets the stale flag of gid inside the open transaction.
// The execution engine uses it to mark outputs pending recomputation.
func (d *Document) SetStale(gid domain.GID, stale bool) error {
	if d.tx == nil {
		return domain.ErrNoActiveTransaction
	}
	n, _, err := d.lookup(gid)
	if err != nil {
		return err
	}
	rec := &n.params[gid.Param]
	if rec.stale == stale {
		return nil
	}
	before := rec.clone()
	rec.stale = stale
	d.record(paramChange{gid: gid, before: before, after: rec.clone()})
	return nil
}

// FunctionStatus returns the status of the function hosted at host after the last pass that scheduled it.
// Undo and Redo move it together with the Parameters that pass wrote.
func (d *Document) FunctionStatus(host domain.GID) (domain.FunctionStatus, bool) {
	s, ok := d.status[host]
	return s, ok
}

// LastReport returns the report of the last committed execution pass still applied, or nil.
func (d *Document) LastReport() *domain.ExecutionReport {
	return d.lastReport
}

// recordReport journals the statuses of r with the open transaction.
// A report without runs changes nothing.
func (d *Document) recordReport(r *domain.ExecutionReport) {
	if r == nil || len(r.Runs) == 0 {
		return
	}
	c := reportChange{
		before:   d.lastReport,
		after:    r,
		prevRuns: maps.Clone(d.status),
		nextRuns: maps.Clone(d.status),
	}
	for _, run := range r.Runs {
		c.nextRuns[run.Host] = run.Status
	}
	c.redo(d)
	d.record(c)
}

// Validate checks every set Parameter for well-formedness, runs the type validators
// and verifies the dependency graph is acyclic. All problems are joined.
func (d *Document) Validate() error {
	var errs []error
	for _, t := range d.partitionOrder() {
		part := d.parts[t]
		for _, ord := range part.live {
			node := &Node{doc: d, id: domain.NodeID{Type: t, Ordinal: ord}, typ: part.typ}
			for _, p := range node.Parameters() {
				if p.isSet() && !p.IsWellFormed() {
					errs = append(errs, &domain.ParameterError{GID: p.GID(), Err: domain.ErrNotWellFormed})
				}
			}
			if part.typ.Validate != nil {
				if err := part.typ.Validate(node); err != nil {
					errs = append(errs, fmt.Errorf("node %s: %w", node.ID(), err))
				}
			}
		}
	}
	if _, err := d.Graph(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
