package dsl

import (
	"context"
	"fmt"

	"github.com/aretw0/actdata/pkg/document"
	"github.com/aretw0/actdata/pkg/domain"
	"github.com/aretw0/actdata/pkg/expr"
	"github.com/aretw0/actdata/pkg/registry"
)

// Builder manages document construction.
type Builder struct {
	reg      *registry.Registry
	nodes    []*NodeBuilder
	counts   map[domain.TypeID]int
	defaults map[domain.TypeID]map[domain.ParamIndex]domain.Value
	docOpts  []document.Option
}

// Option configures the Builder.
type Option func(*Builder)

// WithDefaults sets values assigned to every new Node of a type before its own values,
// as returned by schema.Table.Defaults.
func WithDefaults(defaults map[domain.TypeID]map[domain.ParamIndex]domain.Value) Option {
	return func(b *Builder) {
		b.defaults = defaults
	}
}

// WithDocumentOptions sets the options of the built Document.
func WithDocumentOptions(opts ...document.Option) Option {
	return func(b *Builder) {
		b.docOpts = append(b.docOpts, opts...)
	}
}

// New creates a new document builder over reg.
func New(reg *registry.Registry, opts ...Option) *Builder {
	b := &Builder{
		reg:    reg,
		counts: make(map[domain.TypeID]int),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Add declares a new Node of type typ. Nodes receive ordinals in the order they are added.
func (b *Builder) Add(typ domain.TypeID) *NodeBuilder {
	b.counts[typ]++
	nb := &NodeBuilder{typ: typ, ordinal: b.counts[typ]}
	b.nodes = append(b.nodes, nb)
	return nb
}

// Build creates the document and commits its content in a single transaction named
// "build". With an executor configured, bound functions run as part of that commit.
func (b *Builder) Build(ctx context.Context, id string) (*document.Document, *domain.ExecutionReport, error) {
	doc := document.New(id, b.reg, b.docOpts...)
	if err := doc.Open("build"); err != nil {
		return nil, nil, err
	}
	if err := b.populate(doc); err != nil {
		_ = doc.Abort()
		return nil, nil, fmt.Errorf("dsl: %w", err)
	}
	report, err := doc.Commit(ctx)
	if err != nil {
		return nil, report, fmt.Errorf("dsl: %w", err)
	}
	return doc, report, nil
}

func (b *Builder) populate(doc *document.Document) error {
	for _, nb := range b.nodes {
		part, err := doc.Partition(nb.typ)
		if err != nil {
			return err
		}
		node, err := part.AddNode()
		if err != nil {
			return err
		}
		if node.ID() != nb.ID() {
			return fmt.Errorf("node %s was allocated as %s", nb.ID(), node.ID())
		}
	}

	for _, nb := range b.nodes {
		if err := b.fill(doc, nb); err != nil {
			return fmt.Errorf("node %s: %w", nb.ID(), err)
		}
	}
	return nil
}

func (b *Builder) fill(doc *document.Document, nb *NodeBuilder) error {
	node, err := doc.Node(nb.ID())
	if err != nil {
		return err
	}
	if nb.name != "" {
		if err := node.SetName(nb.name); err != nil {
			return err
		}
	}
	for idx, v := range b.defaults[nb.typ] {
		if err := b.set(doc, nb.ID().Param(idx), v); err != nil {
			return err
		}
	}
	for _, a := range nb.values {
		gid, err := b.resolve(nb.P(a.param))
		if err != nil {
			return err
		}
		if err := b.set(doc, gid, a.value); err != nil {
			return err
		}
	}
	for _, r := range nb.refs {
		gid, err := b.resolve(nb.P(r.param))
		if err != nil {
			return err
		}
		v := domain.ReferenceValue(r.targets[0].ID())
		if r.list {
			ids := make([]domain.NodeID, len(r.targets))
			for i, t := range r.targets {
				ids[i] = t.ID()
			}
			v = domain.ReferenceListValue(ids...)
		}
		if err := b.set(doc, gid, v); err != nil {
			return err
		}
	}
	for _, c := range nb.children {
		if err := node.AddChild(c.ID()); err != nil {
			return err
		}
	}
	for _, e := range nb.evals {
		if err := b.evaluate(doc, nb, e); err != nil {
			return err
		}
	}
	for _, bd := range nb.bindings {
		fb := domain.FunctionBinding{Function: bd.function, Priority: bd.priority}
		if fb.Inputs, err = b.resolveAll(bd.inputs); err != nil {
			return err
		}
		if fb.Outputs, err = b.resolveAll(bd.outputs); err != nil {
			return err
		}
		host, err := b.resolve(nb.P(bd.host))
		if err != nil {
			return err
		}
		if err := b.set(doc, host, domain.FunctionValue(fb)); err != nil {
			return err
		}
	}
	return nil
}

func (b *Builder) evaluate(doc *document.Document, nb *NodeBuilder, e evaluation) error {
	target, err := b.resolve(nb.P(e.target))
	if err != nil {
		return err
	}
	host, err := b.resolve(nb.P(e.host))
	if err != nil {
		return err
	}
	eval := domain.Evaluation{Expression: e.expression}
	for _, v := range e.vars {
		src, err := b.resolve(v.From)
		if err != nil {
			return err
		}
		eval.Variables = append(eval.Variables, domain.Variable{Name: v.Name, Source: src})
	}
	p, err := doc.Parameter(target)
	if err != nil {
		return err
	}
	if err := p.SetEvaluation(eval.Expression, eval.Variables...); err != nil {
		return err
	}
	return b.set(doc, host, domain.FunctionValue(expr.Binding(target, eval)))
}

func (b *Builder) set(doc *document.Document, gid domain.GID, v domain.Value) error {
	p, err := doc.Parameter(gid)
	if err != nil {
		return err
	}
	return p.SetValue(v)
}

func (b *Builder) resolve(port Port) (domain.GID, error) {
	typ, err := b.reg.Type(port.node.typ)
	if err != nil {
		return domain.GID{}, err
	}
	decl, ok := typ.ParamByName(port.param)
	if !ok {
		return domain.GID{}, &domain.ParameterError{
			GID: port.node.ID().Param(-1),
			Err: fmt.Errorf("%w: no parameter named %q", domain.ErrUnknownParameterID, port.param),
		}
	}
	return port.node.ID().Param(decl.Index), nil
}

func (b *Builder) resolveAll(ports []Port) ([]domain.GID, error) {
	out := make([]domain.GID, 0, len(ports))
	for _, p := range ports {
		g, err := b.resolve(p)
		if err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, nil
}
