package registry

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sort"
	"sync"

	"github.com/aretw0/actdata/pkg/domain"
)

// ParamDecl declares one Parameter slot of a Node type.
type ParamDecl struct {
	Index       domain.ParamIndex
	Name        string
	Kind        domain.ValueKind
	Expressible bool
}

// NodeView is the read-only view of a Node handed to type validators.
type NodeView interface {
	ID() domain.NodeID
	Name() string
	Value(idx domain.ParamIndex) (domain.Value, bool)
}

// NodeType is the registered layout of a Node type. Every instance shares it.
type NodeType struct {
	ID     domain.TypeID
	Params []ParamDecl
	// Validate is an optional semantic check run by Document.Validate.
	Validate func(NodeView) error
}

// Param returns the declaration at idx.
func (t NodeType) Param(idx domain.ParamIndex) (ParamDecl, bool) {
	if idx < 0 || int(idx) >= len(t.Params) {
		return ParamDecl{}, false
	}
	return t.Params[idx], true
}

// ParamByName returns the declaration with the given name.
func (t NodeType) ParamByName(name string) (ParamDecl, bool) {
	for _, p := range t.Params {
		if p.Name == name {
			return p, true
		}
	}
	return ParamDecl{}, false
}

// FunctionContext is the view of the document a Tree Function body runs against.
// Writes go through the normal Parameter mutation path of the open transaction.
type FunctionContext interface {
	Host() domain.GID
	Binding() domain.FunctionBinding
	// Input returns the value of the i-th declared input.
	Input(i int) (domain.Value, error)
	// Output returns the current value of the i-th declared output.
	Output(i int) (domain.Value, error)
	OutputKind(i int) (domain.ValueKind, error)
	// OutputEvaluation returns the evaluation record of the i-th output, or nil.
	OutputEvaluation(i int) (*domain.Evaluation, error)
	SetOutput(i int, v domain.Value) error
	// Parameter reads any Parameter of the document.
	Parameter(gid domain.GID) (domain.Value, error)
	// SetParameter writes a Parameter that is not a declared output.
	SetParameter(gid domain.GID, v domain.Value) error
	Logger() *slog.Logger
}

// TreeFunction is a computation bound to input and output Parameters.
type TreeFunction interface {
	Execute(ctx context.Context, fc FunctionContext) error
}

// TreeFunctionFunc adapts a plain function into a TreeFunction.
type TreeFunctionFunc func(ctx context.Context, fc FunctionContext) error

func (f TreeFunctionFunc) Execute(ctx context.Context, fc FunctionContext) error {
	return f(ctx, fc)
}

// ConversionFunc upgrades a snapshot in place from one version to the next,
// recording moved Parameters in the provenance.
type ConversionFunc func(ctx context.Context, snap *domain.Snapshot, prov *domain.Provenance) error

// Conversion is a registered (from, from+1, routine) tuple.
type Conversion struct {
	From        int
	To          int
	Description string
	Apply       ConversionFunc
}

// Registry holds Node types, Tree Functions and conversion routines for one document family.
// It is an explicit object; nothing is registered process-wide.
type Registry struct {
	mu          sync.RWMutex
	types       map[domain.TypeID]NodeType
	order       []domain.TypeID
	functions   map[domain.FunctionID]TreeFunction
	conversions map[int]Conversion
	version     int
}

// Option configures a Registry.
type Option func(*Registry)

// WithVersion sets the current document format version. Defaults to 1.
func WithVersion(v int) Option {
	return func(r *Registry) {
		r.version = v
	}
}

// NewRegistry creates a new empty registry.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		types:       make(map[domain.TypeID]NodeType),
		functions:   make(map[domain.FunctionID]TreeFunction),
		conversions: make(map[int]Conversion),
		version:     1,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// RegisterType adds a Node type. Declarations must be indexed 0..n-1 in order with unique names.
// A type can be registered once.
func (r *Registry) RegisterType(t NodeType) error {
	if t.ID == "" {
		return fmt.Errorf("node type id is required")
	}
	names := make(map[string]bool, len(t.Params))
	for i, p := range t.Params {
		if int(p.Index) != i {
			return fmt.Errorf("type %s: parameter %q declared at index %d, expected %d", t.ID, p.Name, p.Index, i)
		}
		if p.Name == "" {
			return fmt.Errorf("type %s: parameter %d has no name", t.ID, i)
		}
		if names[p.Name] {
			return fmt.Errorf("type %s: duplicate parameter name %q", t.ID, p.Name)
		}
		names[p.Name] = true
		if _, err := domain.ParseKind(p.Kind.String()); err != nil {
			return fmt.Errorf("type %s: parameter %q has invalid kind %s", t.ID, p.Name, p.Kind)
		}
		if p.Expressible && p.Kind == domain.KindGroup {
			return fmt.Errorf("type %s: group parameter %q cannot be expressible", t.ID, p.Name)
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.types[t.ID]; exists {
		return fmt.Errorf("node type %s already registered", t.ID)
	}
	t.Params = slices.Clone(t.Params)
	r.types[t.ID] = t
	r.order = append(r.order, t.ID)
	return nil
}

// MustRegisterType is RegisterType that panics on error. Meant for static type tables.
func (r *Registry) MustRegisterType(t NodeType) {
	if err := r.RegisterType(t); err != nil {
		panic(err)
	}
}

// Type returns the registered layout of id.
func (r *Registry) Type(id domain.TypeID) (NodeType, error) {
	r.mu.RLock()
	t, ok := r.types[id]
	r.mu.RUnlock()

	if !ok {
		return NodeType{}, fmt.Errorf("%w: %s", domain.ErrUnknownType, id)
	}
	return t, nil
}

// Types returns the registered type IDs in registration order.
func (r *Registry) Types() []domain.TypeID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.order)
}

// TypeRank returns the registration position of id, or -1 when unknown.
// It is the first key of the stable insertion order used to break scheduling ties.
func (r *Registry) TypeRank(id domain.TypeID) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Index(r.order, id)
}

// RegisterFunction adds a Tree Function implementation.
// If a function with the same ID exists, it is overwritten.
func (r *Registry) RegisterFunction(id domain.FunctionID, fn TreeFunction) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.functions[id] = fn
}

// Function looks up a Tree Function by ID.
func (r *Registry) Function(id domain.FunctionID) (TreeFunction, error) {
	r.mu.RLock()
	fn, ok := r.functions[id]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnknownFunction, id)
	}
	return fn, nil
}

// HasFunction reports whether id is registered.
func (r *Registry) HasFunction(id domain.FunctionID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.functions[id]
	return ok
}

// Functions returns the registered function IDs, sorted.
func (r *Registry) Functions() []domain.FunctionID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.FunctionID, 0, len(r.functions))
	for id := range r.functions {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// RegisterConversion registers the routine upgrading documents from version `from` to from+1.
func (r *Registry) RegisterConversion(from int, description string, fn ConversionFunc) error {
	if fn == nil {
		return fmt.Errorf("conversion %d: routine is nil", from)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if from < 1 || from >= r.version {
		return fmt.Errorf("conversion %d -> %d outside supported versions 1..%d", from, from+1, r.version)
	}
	if _, exists := r.conversions[from]; exists {
		return fmt.Errorf("conversion from version %d already registered", from)
	}
	r.conversions[from] = Conversion{From: from, To: from + 1, Description: description, Apply: fn}
	return nil
}

// Conversion returns the routine registered for version `from`.
func (r *Registry) Conversion(from int) (Conversion, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.conversions[from]
	return c, ok
}

// CurrentVersion returns the document format version this registry produces.
func (r *Registry) CurrentVersion() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.version
}
