package runtime

import (
	"context"
	"fmt"

	"github.com/aretw0/actdata/pkg/document"
	"github.com/aretw0/actdata/pkg/domain"
	"github.com/aretw0/actdata/pkg/ports"
	"golang.org/x/sync/semaphore"
)

// PassRequest asks for one execution pass over a document, seeded by Touched.
// The document is owned by the worker until the Future resolves; callers must not mutate it meanwhile.
type PassRequest struct {
	Document *document.Document
	Touched  []domain.GID
	Progress ports.Progress
	// Name labels the transaction opened for the pass.
	Name string
}

// Future resolves to the report of a submitted pass.
type Future struct {
	done   chan struct{}
	report *domain.ExecutionReport
	err    error
}

func newFuture() *Future {
	return &Future{done: make(chan struct{})}
}

func (f *Future) resolve(report *domain.ExecutionReport, err error) {
	f.report = report
	f.err = err
	close(f.done)
}

// Done is closed when the pass has finished.
func (f *Future) Done() <-chan struct{} {
	return f.done
}

// Wait blocks until the pass finishes or ctx is done. Cancelling ctx does not stop the pass;
// pass cancellation goes through the request's Progress or the Submit context.
func (f *Future) Wait(ctx context.Context) (*domain.ExecutionReport, error) {
	select {
	case <-f.done:
		return f.report, f.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Submit runs an execution pass on a separate goroutine. At most one pass per document runs at
// a time; a second Submit for a busy document resolves immediately with ErrPassInProgress.
func (e *Engine) Submit(ctx context.Context, req PassRequest) *Future {
	fut := newFuture()
	if req.Document == nil {
		fut.resolve(nil, fmt.Errorf("pass request without document"))
		return fut
	}

	id := req.Document.ID()
	slot := e.acquireSlot(id)
	if !slot.sem.TryAcquire(1) {
		e.releaseSlot(id)
		fut.resolve(nil, fmt.Errorf("%w: %s", domain.ErrPassInProgress, id))
		return fut
	}

	go func() {
		report, err := e.pass(ctx, req)
		slot.sem.Release(1)
		e.releaseSlot(id)
		fut.resolve(report, err)
	}()
	return fut
}

// Busy reports whether a submitted pass is running over document id.
func (e *Engine) Busy(id string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.slots[id]
	return ok
}

func (e *Engine) pass(ctx context.Context, req PassRequest) (*domain.ExecutionReport, error) {
	doc := req.Document
	name := req.Name
	if name == "" {
		name = "execution pass"
	}
	if err := doc.Open(name); err != nil {
		return nil, err
	}
	for _, gid := range req.Touched {
		p, err := doc.Parameter(gid)
		if err == nil {
			err = p.Touch()
		}
		if err != nil {
			_ = doc.Abort()
			return nil, fmt.Errorf("touch %s: %w", gid, err)
		}
	}
	return doc.Commit(ctx, document.WithCommitExecutor(e), document.WithProgress(req.Progress))
}

// passSlot serialises the passes of one document. Entries live only while referenced.
type passSlot struct {
	sem  *semaphore.Weighted
	refs int
}

func (e *Engine) acquireSlot(id string) *passSlot {
	e.mu.Lock()
	defer e.mu.Unlock()
	slot, ok := e.slots[id]
	if !ok {
		slot = &passSlot{sem: semaphore.NewWeighted(1)}
		e.slots[id] = slot
	}
	slot.refs++
	return slot
}

func (e *Engine) releaseSlot(id string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	slot, ok := e.slots[id]
	if !ok {
		return
	}
	slot.refs--
	if slot.refs <= 0 {
		delete(e.slots, id)
	}
}
