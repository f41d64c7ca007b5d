// Package conversion upgrades persisted documents to the version the Registry produces.
//
// Each registered routine lifts a snapshot by exactly one version. The Pipeline chains them in
// ascending order on a private clone, so a failure never leaves the caller's snapshot half
// converted. The helpers in this package are the building blocks of those routines: they
// change a Node type's parameter layout and rewrite every reference that pointed at the old
// addresses.
package conversion

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aretw0/actdata/internal/logging"
	"github.com/aretw0/actdata/pkg/domain"
	"github.com/aretw0/actdata/pkg/registry"
)

// Pipeline applies the Registry's conversion routines.
type Pipeline struct {
	reg    *registry.Registry
	logger *slog.Logger
}

// Option configures the Pipeline.
type Option func(*Pipeline)

// WithLogger configures a logger for the Pipeline.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) {
		p.logger = logger
	}
}

// NewPipeline creates a pipeline over reg's registered conversions.
func NewPipeline(reg *registry.Registry, opts ...Option) *Pipeline {
	p := &Pipeline{reg: reg, logger: logging.NewNop()}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Result describes a finished conversion.
type Result struct {
	Snapshot   *domain.Snapshot
	From       int
	To         int
	Steps      []registry.Conversion
	Provenance *domain.Provenance
}

// Converted reports whether any routine ran.
func (r *Result) Converted() bool {
	return len(r.Steps) > 0
}

// NeedsConversion reports whether snap is older than the registry's current version.
func (p *Pipeline) NeedsConversion(snap *domain.Snapshot) bool {
	return snap.Version < p.reg.CurrentVersion()
}

// Apply converts snap to the current version and returns the converted copy.
// A snapshot already at the current version is returned as a clone with no steps.
func (p *Pipeline) Apply(ctx context.Context, snap *domain.Snapshot) (*Result, error) {
	if snap == nil {
		return nil, fmt.Errorf("%w: nil snapshot", domain.ErrConversionFailed)
	}
	current := p.reg.CurrentVersion()
	res := &Result{
		Snapshot:   snap.Clone(),
		From:       snap.Version,
		To:         current,
		Provenance: domain.NewProvenance(),
	}
	if snap.Version > current {
		return nil, &domain.ConversionError{
			From: snap.Version,
			To:   current,
			Err:  fmt.Errorf("document is newer than this build supports"),
		}
	}
	if snap.Version < 1 {
		return nil, &domain.ConversionError{From: snap.Version, To: current, Err: fmt.Errorf("invalid version")}
	}

	work := res.Snapshot
	for work.Version < current {
		if err := ctx.Err(); err != nil {
			return nil, &domain.ConversionError{From: work.Version, To: work.Version + 1, Err: err}
		}
		step, ok := p.reg.Conversion(work.Version)
		if !ok {
			return nil, &domain.ConversionError{
				From: work.Version,
				To:   work.Version + 1,
				Err:  fmt.Errorf("no routine registered"),
			}
		}
		if err := step.Apply(ctx, work, res.Provenance); err != nil {
			return nil, &domain.ConversionError{From: step.From, To: step.To, Err: err}
		}
		work.Version = step.To
		res.Steps = append(res.Steps, step)
		p.logger.Debug("conversion step applied", "document", work.ID, "from", step.From, "to", step.To,
			"description", step.Description)
	}

	if res.Converted() {
		p.logger.Info("document converted", "document", work.ID, "from", res.From, "to", res.To,
			"moves", res.Provenance.Len())
	}
	return res, nil
}
