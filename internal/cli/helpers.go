package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/aretw0/actdata/pkg/domain"
	"github.com/muesli/termenv"
)

// logOutput receives the application logs, keeping Stdout for command output.
var logOutput io.Writer = os.Stderr

// SignalContext wraps a context and captures the signal that cancelled it.
type SignalContext struct {
	context.Context
	Cancel func()
	start  sync.Once
	stop   sync.Once
	sigCh  chan os.Signal
	sigVal os.Signal
	mu     sync.Mutex
}

// NewSignalContext creates a context that is cancelled on SIGINT or SIGTERM.
// It acts as a drop-in replacement for signal.NotifyContext but allows retrieving the signal.
func NewSignalContext(parent context.Context) *SignalContext {
	ctx, cancel := context.WithCancel(parent)
	sc := &SignalContext{
		Context: ctx,
		Cancel:  cancel,
		sigCh:   make(chan os.Signal, 1),
	}

	sc.start.Do(func() {
		signal.Notify(sc.sigCh, os.Interrupt, syscall.SIGTERM)
		go func() {
			select {
			case sig := <-sc.sigCh:
				sc.mu.Lock()
				sc.sigVal = sig
				sc.mu.Unlock()
				sc.Cancel()
			case <-sc.Context.Done():
				// Context cancelled elsewhere
			}
			sc.stop.Do(func() {
				signal.Stop(sc.sigCh)
			})
		}()
	})

	return sc
}

// Signal returns the signal that caused the context to be cancelled, or nil.
func (sc *SignalContext) Signal() os.Signal {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	return sc.sigVal
}

// Printer writes command output, coloured when the terminal supports it.
type Printer struct {
	w       io.Writer
	profile termenv.Profile
}

// NewPrinter detects the colour profile of w. Non-terminals get plain text.
func NewPrinter(w io.Writer) *Printer {
	profile := termenv.Ascii
	if f, ok := w.(*os.File); ok {
		profile = termenv.NewOutput(f).EnvColorProfile()
	}
	return &Printer{w: w, profile: profile}
}

func (p *Printer) paint(s, hex string) string {
	return termenv.String(s).Foreground(p.profile.Color(hex)).String()
}

// System prints a standardized system message.
func (p *Printer) System(format string, args ...any) {
	fmt.Fprintf(p.w, "%s %s\n", p.paint(">>>", "#818cf8"), fmt.Sprintf(format, args...))
}

// Success prints a confirmation line.
func (p *Printer) Success(format string, args ...any) {
	fmt.Fprintln(p.w, p.paint(fmt.Sprintf(format, args...), "#22c55e"))
}

// Failure prints an error line.
func (p *Printer) Failure(format string, args ...any) {
	fmt.Fprintln(p.w, p.paint(fmt.Sprintf(format, args...), "#ef4444"))
}

var statusColors = map[domain.FunctionStatus]string{
	domain.StatusSucceeded: "#22c55e",
	domain.StatusFailed:    "#ef4444",
	domain.StatusBlocked:   "#f59e0b",
	domain.StatusCancelled: "#a1a1aa",
	domain.StatusPending:   "#a1a1aa",
}

// Report prints one line per function run of an execution report.
func (p *Printer) Report(r *domain.ExecutionReport) {
	if r == nil {
		return
	}
	p.System("%s: %d pass(es), %d run(s) in %s", r.Document, r.Passes, len(r.Runs), r.Duration)
	for _, run := range r.Runs {
		line := fmt.Sprintf("  [%d] %-24s %-16s %s", run.Pass, run.Host, run.Function, p.paint(string(run.Status), statusColors[run.Status]))
		if run.Error != "" {
			line += "  " + run.Error
		}
		fmt.Fprintln(p.w, line)
	}
	if r.Cancelled {
		p.Failure("  execution cancelled")
	}
}

// Diff prints a snapshot diff as +/-/~ lines.
func (p *Printer) Diff(d *domain.SnapshotDiff) {
	if d == nil || d.IsEmpty() {
		p.System("no changes")
		return
	}
	if d.FromVersion != nil && d.ToVersion != nil {
		p.System("%s: version %d -> %d", d.Document, *d.FromVersion, *d.ToVersion)
	} else {
		p.System("%s", d.Document)
	}
	for _, id := range d.NodesAdded {
		fmt.Fprintln(p.w, p.paint("+ "+id.String(), "#22c55e"))
	}
	for _, id := range d.NodesRemoved {
		fmt.Fprintln(p.w, p.paint("- "+id.String(), "#ef4444"))
	}
	for _, delta := range d.Params {
		switch {
		case delta.Old == nil:
			fmt.Fprintln(p.w, p.paint(fmt.Sprintf("+ %s = %s", delta.GID, delta.New), "#22c55e"))
		case delta.New == nil:
			fmt.Fprintln(p.w, p.paint(fmt.Sprintf("- %s (was %s)", delta.GID, delta.Old), "#ef4444"))
		default:
			fmt.Fprintln(p.w, p.paint(fmt.Sprintf("~ %s: %s -> %s", delta.GID, delta.Old, delta.New), "#f59e0b"))
		}
	}
}

// IsInterrupted reports whether err stems from a cancelled context.
func IsInterrupted(err error) bool {
	return errors.Is(err, context.Canceled)
}
