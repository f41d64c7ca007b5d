package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aretw0/actdata/internal/logging"
	"github.com/aretw0/actdata/pkg/depgraph"
	"github.com/aretw0/actdata/pkg/document"
	"github.com/aretw0/actdata/pkg/domain"
	"github.com/aretw0/actdata/pkg/ports"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("actdata.runtime")

// Engine executes the Tree Functions impacted by a transaction. It implements document.Executor.
// A pass over one document is single threaded; Submit offloads it to a goroutine.
type Engine struct {
	policy    RetouchPolicy
	maxPasses int
	hooks     domain.LifecycleHooks
	logger    *slog.Logger
	metrics   *metrics
	registry  prometheus.Registerer

	mu    sync.Mutex
	slots map[string]*passSlot
}

// Option configures the Engine.
type Option func(*Engine)

// WithRetouchPolicy selects how re-touched inputs are handled. Defaults to RetouchError.
func WithRetouchPolicy(p RetouchPolicy) Option {
	return func(e *Engine) {
		e.policy = p
	}
}

// WithMaxPasses bounds the number of passes per commit. Zero means number of functions + 1.
func WithMaxPasses(n int) Option {
	return func(e *Engine) {
		e.maxPasses = n
	}
}

// WithLifecycleHooks registers function start and end callbacks.
func WithLifecycleHooks(hooks domain.LifecycleHooks) Option {
	return func(e *Engine) {
		e.hooks = hooks
	}
}

// WithLogger configures a logger for the Engine.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithMetricsRegisterer exports the engine's Prometheus collectors to reg.
func WithMetricsRegisterer(reg prometheus.Registerer) Option {
	return func(e *Engine) {
		e.registry = reg
	}
}

// NewEngine creates a new engine.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		logger: logging.NewNop(),
		slots:  make(map[string]*passSlot),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.metrics = newMetrics(e.registry)
	return e
}

// Policy returns the configured retouch policy.
func (e *Engine) Policy() RetouchPolicy { return e.policy }

// Execute runs passes over doc's open transaction until no touched Parameter impacts a function.
//
// Each pass rebuilds the graph, computes the forward closure of the touched Parameters,
// marks the outputs of every scheduled function stale and runs the schedule. A failed
// function blocks its downstream functions in this and every later pass; independent
// branches continue. Writes to Parameters that are not declared outputs seed the next pass.
//
// The returned error is non-nil only for conditions that must abort the commit:
// a cycle, a re-touch under RetouchError, or exceeding the pass bound.
func (e *Engine) Execute(ctx context.Context, doc *document.Document, progress ports.Progress) (*domain.ExecutionReport, error) {
	tx := doc.Transaction()
	if tx == nil {
		return nil, domain.ErrNoActiveTransaction
	}
	if progress == nil {
		progress = ports.NopProgress{}
	}

	start := time.Now()
	ctx, span := tracer.Start(ctx, "actdata.Execute",
		trace.WithAttributes(attribute.String("document", doc.ID())),
	)
	defer span.End()

	logger := e.logger.With("document", doc.ID(), "transaction", tx.ID())
	report := &domain.ExecutionReport{Document: doc.ID()}
	defer func() { report.Duration = time.Since(start) }()

	mods := tx.Modifications()
	seeds := mods.LogSince(0)
	if evaluated := mods.Evaluated(); len(evaluated) > 0 {
		// A new expression reruns whatever produces the Parameter.
		g, err := doc.Graph()
		if err != nil {
			return report, e.abort(span, "cycle", err)
		}
		for _, gid := range evaluated {
			for _, f := range g.Producers(gid) {
				seeds = append(seeds, f.Host)
			}
		}
	}
	consumed := make(map[domain.GID]bool)
	// Functions downstream of a failure stay blocked for the rest of the commit.
	blocked := make(map[domain.GID]bool)

	for len(seeds) > 0 {
		g, err := doc.Graph()
		if err != nil {
			return report, e.abort(span, "cycle", err)
		}
		impacted := g.Impacted(seeds)
		if len(impacted) == 0 {
			break
		}

		limit := e.maxPasses
		if limit <= 0 {
			limit = g.Len() + 1
		}
		if report.Passes >= limit {
			err := fmt.Errorf("%w after %d passes", domain.ErrNotConverged, report.Passes)
			return report, e.abort(span, "not_converged", err)
		}
		report.Passes++
		e.metrics.passes.Inc()

		schedule := g.Schedule(impacted)
		logger.Debug("execution pass", "pass", report.Passes, "scheduled", len(schedule))

		next, cancelled, err := e.runPass(ctx, doc, g, schedule, report, progress, consumed, blocked, logger)
		if err != nil {
			return report, e.abort(span, "retouch", err)
		}
		if cancelled {
			report.Cancelled = true
			span.SetStatus(codes.Error, "cancelled")
			logger.Info("execution cancelled", "pass", report.Passes)
			return report, nil
		}
		seeds = next
	}

	span.SetAttributes(attribute.Int("passes", report.Passes), attribute.Int("runs", len(report.Runs)))
	span.SetStatus(codes.Ok, "")
	if report.Failed() {
		logger.Warn("execution finished with failures", "passes", report.Passes)
	}
	return report, nil
}

func (e *Engine) abort(span trace.Span, reason string, err error) error {
	e.metrics.aborts.WithLabelValues(reason).Inc()
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}

// runPass executes one schedule. It returns the Parameters seeding the next pass.
func (e *Engine) runPass(
	ctx context.Context,
	doc *document.Document,
	g *depgraph.Graph,
	schedule []depgraph.Function,
	report *domain.ExecutionReport,
	progress ports.Progress,
	consumed map[domain.GID]bool,
	blocked map[domain.GID]bool,
	logger *slog.Logger,
) ([]domain.GID, bool, error) {
	pass := report.Passes
	for _, f := range schedule {
		for _, out := range f.Binding.Outputs {
			if err := doc.SetStale(out, true); err != nil {
				logger.Debug("output not resolvable", "host", f.Host.String(), "output", out.String(), "err", err)
			}
		}
	}

	mods := doc.Transaction().Modifications()
	var next []domain.GID

	for i, f := range schedule {
		if ctx.Err() != nil || progress.IsCancelled() {
			for _, rest := range schedule[i:] {
				report.Runs = append(report.Runs, domain.FunctionRun{
					Host: rest.Host, Function: rest.Binding.Function, Pass: pass, Status: domain.StatusCancelled,
				})
				e.metrics.runs.WithLabelValues(string(rest.Binding.Function), string(domain.StatusCancelled)).Inc()
			}
			return nil, true, nil
		}

		progress.Report(domain.Progress{
			Document: doc.ID(),
			Pass:     pass,
			Done:     i,
			Total:    len(schedule),
			Host:     f.Host,
			Function: f.Binding.Function,
		})

		run := domain.FunctionRun{Host: f.Host, Function: f.Binding.Function, Pass: pass}
		if blocked[f.Host] {
			run.Status = domain.StatusBlocked
			report.Runs = append(report.Runs, run)
			e.metrics.runs.WithLabelValues(string(f.Binding.Function), string(run.Status)).Inc()
			continue
		}

		before := mods.LogLen()
		started := time.Now()
		err := e.run(ctx, doc, f, logger)
		run.Duration = time.Since(started)
		e.metrics.duration.WithLabelValues(string(f.Binding.Function)).Observe(run.Duration.Seconds())

		for _, in := range f.Binding.Inputs {
			consumed[in] = true
		}

		if err != nil {
			run.Status = domain.StatusFailed
			run.Error = err.Error()
			for _, host := range g.Downstream(f.Host) {
				blocked[host] = true
			}
			logger.Warn("function failed", "host", f.Host.String(), "function", f.Binding.Function, "err", err)
		} else {
			run.Status = domain.StatusSucceeded
			for _, out := range f.Binding.Outputs {
				_ = doc.SetStale(out, false)
			}
		}
		report.Runs = append(report.Runs, run)
		e.metrics.runs.WithLabelValues(string(f.Binding.Function), string(run.Status)).Inc()

		outputs := make(map[domain.GID]bool, len(f.Binding.Outputs))
		for _, out := range f.Binding.Outputs {
			outputs[out] = true
		}
		for _, w := range mods.LogSince(before) {
			if consumed[w] && e.policy == RetouchError {
				return nil, false, fmt.Errorf("%w: %s wrote %s", domain.ErrRetouchedInput, f.Host, w)
			}
			if !outputs[w] {
				next = append(next, w)
			}
		}
	}
	return next, false, nil
}

// run executes one function body, converting errors and panics into ErrFunctionExecutionFailed.
func (e *Engine) run(ctx context.Context, doc *document.Document, f depgraph.Function, logger *slog.Logger) (err error) {
	ctx, span := tracer.Start(ctx, string(f.Binding.Function),
		trace.WithAttributes(attribute.String("host", f.Host.String())),
	)
	defer span.End()

	e.emit(ctx, e.hooks.OnFunctionStart, doc, f, "", nil)
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
		if err != nil {
			err = fmt.Errorf("%w: %s at %s: %w", domain.ErrFunctionExecutionFailed, f.Binding.Function, f.Host, err)
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			e.emit(ctx, e.hooks.OnFunctionEnd, doc, f, domain.StatusFailed, err)
			return
		}
		span.SetStatus(codes.Ok, "")
		e.emit(ctx, e.hooks.OnFunctionEnd, doc, f, domain.StatusSucceeded, nil)
	}()

	impl, err := doc.Registry().Function(f.Binding.Function)
	if err != nil {
		return err
	}
	fc := &functionContext{
		doc:    doc,
		fn:     f,
		logger: logger.With("function", string(f.Binding.Function), "host", f.Host.String()),
	}
	return impl.Execute(ctx, fc)
}

func (e *Engine) emit(ctx context.Context, hook func(context.Context, *domain.FunctionEvent), doc *document.Document, f depgraph.Function, status domain.FunctionStatus, err error) {
	if hook == nil {
		return
	}
	t := domain.EventFunctionStart
	if status != "" {
		t = domain.EventFunctionEnd
	}
	hook(ctx, &domain.FunctionEvent{
		EventBase: domain.EventBase{Timestamp: time.Now(), Type: t, Document: doc.ID()},
		Host:      f.Host,
		Function:  f.Binding.Function,
		Status:    status,
		Err:       err,
	})
}

// IsAbort reports whether err is one of the engine errors that roll a commit back.
func IsAbort(err error) bool {
	return errors.Is(err, domain.ErrCyclicDependency) ||
		errors.Is(err, domain.ErrRetouchedInput) ||
		errors.Is(err, domain.ErrNotConverged)
}
