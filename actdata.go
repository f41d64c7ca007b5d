package actdata

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aretw0/actdata/internal/logging"
	"github.com/aretw0/actdata/internal/runtime"
	"github.com/aretw0/actdata/pkg/adapters/memory"
	"github.com/aretw0/actdata/pkg/conversion"
	"github.com/aretw0/actdata/pkg/document"
	"github.com/aretw0/actdata/pkg/domain"
	"github.com/aretw0/actdata/pkg/expr"
	"github.com/aretw0/actdata/pkg/ports"
	"github.com/aretw0/actdata/pkg/registry"
	"github.com/aretw0/actdata/pkg/session"
	"github.com/prometheus/client_golang/prometheus"
)

// RetouchPolicy decides what a commit does when a Tree Function rewrites an input
// that another function already consumed.
type RetouchPolicy = runtime.RetouchPolicy

const (
	RetouchError   = runtime.RetouchError
	RetouchIterate = runtime.RetouchIterate
)

// Engine is the high-level entry point for the actdata library.
// It wires a registry, the dependency engine and a document store behind a small API.
type Engine struct {
	runtime  *runtime.Engine
	sessions *session.Manager
	registry *registry.Registry

	store       ports.DocumentStore
	locker      ports.DistributedLocker
	hooks       domain.LifecycleHooks
	logger      *slog.Logger
	policy      runtime.RetouchPolicy
	maxPasses   int
	undoLimit   int
	metrics     prometheus.Registerer
	expressions bool
	persist     bool
}

// Option defines a functional option for configuring the Engine.
type Option func(*Engine)

// WithStore persists documents in s. The default is an in-memory store.
func WithStore(s ports.DocumentStore) Option {
	return func(e *Engine) {
		e.store = s
	}
}

// WithLocker serializes document updates across processes.
func WithLocker(l ports.DistributedLocker) Option {
	return func(e *Engine) {
		e.locker = l
	}
}

// WithLifecycleHooks registers observability hooks.
func WithLifecycleHooks(hooks domain.LifecycleHooks) Option {
	return func(e *Engine) {
		e.hooks = hooks
	}
}

// WithLogger sets a custom structured logger for the engine.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithRetouchPolicy selects how the engine reacts to a function rewriting a consumed input.
func WithRetouchPolicy(p RetouchPolicy) Option {
	return func(e *Engine) {
		e.policy = p
	}
}

// WithMaxPasses bounds the passes of one commit under the iterate policy.
func WithMaxPasses(n int) Option {
	return func(e *Engine) {
		e.maxPasses = n
	}
}

// WithUndoLimit bounds the undo history kept by each document.
func WithUndoLimit(n int) Option {
	return func(e *Engine) {
		e.undoLimit = n
	}
}

// WithMetricsRegisterer exports execution metrics to reg.
func WithMetricsRegisterer(reg prometheus.Registerer) Option {
	return func(e *Engine) {
		e.metrics = reg
	}
}

// WithExpressions registers the expression Tree Function on the registry.
func WithExpressions() Option {
	return func(e *Engine) {
		e.expressions = true
	}
}

// WithPersistConversions rewrites converted documents to the store when they are opened.
func WithPersistConversions() Option {
	return func(e *Engine) {
		e.persist = true
	}
}

// New initializes an Engine over reg. The registry must hold every Node type,
// Tree Function and conversion routine the documents need.
func New(reg *registry.Registry, opts ...Option) (*Engine, error) {
	if reg == nil {
		return nil, fmt.Errorf("registry is required")
	}
	eng := &Engine{registry: reg}
	for _, opt := range opts {
		opt(eng)
	}

	if eng.logger == nil {
		eng.logger = logging.NewNop()
	}
	if eng.store == nil {
		eng.store = memory.NewStore()
	}
	if eng.expressions && !reg.HasFunction(expr.FunctionID) {
		expr.Register(reg, expr.WithLogger(eng.logger))
	}

	runtimeOpts := []runtime.Option{
		runtime.WithLogger(eng.logger),
		runtime.WithLifecycleHooks(eng.hooks),
		runtime.WithRetouchPolicy(eng.policy),
	}
	if eng.maxPasses > 0 {
		runtimeOpts = append(runtimeOpts, runtime.WithMaxPasses(eng.maxPasses))
	}
	if eng.metrics != nil {
		runtimeOpts = append(runtimeOpts, runtime.WithMetricsRegisterer(eng.metrics))
	}
	eng.runtime = runtime.NewEngine(runtimeOpts...)

	sessionOpts := []session.Option{
		session.WithLogger(eng.logger),
		session.WithDocumentOptions(eng.documentOptions()...),
		session.WithPersistConversions(eng.persist),
	}
	if eng.locker != nil {
		sessionOpts = append(sessionOpts, session.WithLocker(eng.locker))
	}
	eng.sessions = session.NewManager(eng.store, reg, sessionOpts...)

	return eng, nil
}

func (e *Engine) documentOptions() []document.Option {
	opts := []document.Option{
		document.WithExecutor(e.runtime),
		document.WithLogger(e.logger),
		document.WithHooks(e.hooks),
	}
	if e.undoLimit > 0 {
		opts = append(opts, document.WithUndoLimit(e.undoLimit))
	}
	return opts
}

// NewDocument returns an unsaved document bound to the engine. Commits run the
// dependency engine; persisting it is up to the caller (see Save).
func (e *Engine) NewDocument(id string, opts ...document.Option) *document.Document {
	return document.New(id, e.registry, append(e.documentOptions(), opts...)...)
}

// Create stores a new empty document. An empty id gets a random one.
func (e *Engine) Create(ctx context.Context, id string) (*document.Document, error) {
	return e.sessions.Create(ctx, id)
}

// Open loads a stored document, converting it to the current version first.
func (e *Engine) Open(ctx context.Context, id string) (*document.Document, error) {
	return e.sessions.Open(ctx, id)
}

// Save stores the committed state of doc.
func (e *Engine) Save(ctx context.Context, doc *document.Document) error {
	return e.sessions.Save(ctx, doc)
}

// Update runs fn in one transaction on the stored document and saves the result.
func (e *Engine) Update(ctx context.Context, id, name string, fn func(*document.Document) error) (*domain.ExecutionReport, error) {
	return e.sessions.Update(ctx, id, name, fn)
}

// Conversion is the outcome of converting one stored document.
type Conversion struct {
	*conversion.Result
	Diff    *domain.SnapshotDiff
	Written bool
}

// Convert upgrades the stored document id to the registry's current version and reports
// what changed. With write set, a converted snapshot replaces the stored one.
func (e *Engine) Convert(ctx context.Context, id string, write bool) (*Conversion, error) {
	var out *Conversion
	err := e.sessions.WithLock(ctx, id, func(ctx context.Context) error {
		snap, err := e.store.Load(ctx, id)
		if err != nil {
			return err
		}
		res, err := conversion.NewPipeline(e.registry, conversion.WithLogger(e.logger)).Apply(ctx, snap)
		if err != nil {
			return err
		}
		// The converted snapshot must hydrate before it may replace the stored one.
		if _, err := document.FromSnapshot(e.registry, res.Snapshot); err != nil {
			return fmt.Errorf("hydrate converted %s: %w", id, err)
		}
		out = &Conversion{Result: res, Diff: domain.Diff(snap, res.Snapshot)}
		if write && res.Converted() {
			if err := e.store.Save(ctx, res.Snapshot); err != nil {
				return fmt.Errorf("store converted %s: %w", id, err)
			}
			out.Written = true
			e.logger.Info("converted document stored", "document", id, "from", res.From, "to", res.To)
		}
		return nil
	})
	return out, err
}

// Registry returns the registry documents are built against.
func (e *Engine) Registry() *registry.Registry {
	return e.registry
}

// Sessions returns the session manager that serializes document access.
func (e *Engine) Sessions() *session.Manager {
	return e.sessions
}

// Runtime returns the dependency engine.
func (e *Engine) Runtime() *runtime.Engine {
	return e.runtime
}

// Store returns the document store.
func (e *Engine) Store() ports.DocumentStore {
	return e.store
}
