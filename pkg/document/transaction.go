package document

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/aretw0/actdata/pkg/domain"
	"github.com/aretw0/actdata/pkg/ports"
	"github.com/google/uuid"
)

// ModificationSet records what the open transaction changed.
// Only non-silent touches enter the log that drives execution.
type ModificationSet struct {
	log     []domain.GID
	touched map[domain.GID]bool
	order   []domain.GID
	silent  map[domain.GID]bool
	evals   []domain.GID
	created []domain.NodeID
	removed []domain.NodeID
}

func newModificationSet() *ModificationSet {
	return &ModificationSet{
		touched: make(map[domain.GID]bool),
		silent:  make(map[domain.GID]bool),
	}
}

func (m *ModificationSet) touch(gid domain.GID) {
	m.log = append(m.log, gid)
	if !m.touched[gid] {
		m.touched[gid] = true
		m.order = append(m.order, gid)
	}
}

func (m *ModificationSet) touchSilently(gid domain.GID) {
	m.silent[gid] = true
}

func (m *ModificationSet) evaluate(gid domain.GID) {
	if !slices.Contains(m.evals, gid) {
		m.evals = append(m.evals, gid)
	}
}

// Evaluated returns the Parameters whose Evaluation changed, in first-change order.
func (m *ModificationSet) Evaluated() []domain.GID {
	return slices.Clone(m.evals)
}

// Touched returns the touched Parameters in first-touch order.
func (m *ModificationSet) Touched() []domain.GID {
	return slices.Clone(m.order)
}

// IsTouched reports whether gid was touched (non-silently).
func (m *ModificationSet) IsTouched(gid domain.GID) bool {
	return m.touched[gid]
}

// IsSilent reports whether gid was written silently.
func (m *ModificationSet) IsSilent(gid domain.GID) bool {
	return m.silent[gid]
}

// Created returns the Nodes added in this transaction.
func (m *ModificationSet) Created() []domain.NodeID {
	return slices.Clone(m.created)
}

// Removed returns the Nodes removed in this transaction.
func (m *ModificationSet) Removed() []domain.NodeID {
	return slices.Clone(m.removed)
}

// LogLen returns the number of touch events so far, repeats included.
func (m *ModificationSet) LogLen() int {
	return len(m.log)
}

// LogSince returns the touch events recorded after position i.
func (m *ModificationSet) LogSince(i int) []domain.GID {
	if i >= len(m.log) {
		return nil
	}
	return slices.Clone(m.log[i:])
}

// Len returns the number of distinct touched Parameters.
func (m *ModificationSet) Len() int {
	return len(m.order)
}

// Transaction is the unit of change of a Document.
type Transaction struct {
	id      string
	name    string
	opened  time.Time
	journal []change
	mods    *ModificationSet
}

// ID returns the transaction's unique ID.
func (t *Transaction) ID() string { return t.id }

// Name returns the label given at Open.
func (t *Transaction) Name() string { return t.name }

// Opened returns when the transaction was opened.
func (t *Transaction) Opened() time.Time { return t.opened }

// Modifications returns the live ModificationSet of the transaction.
func (t *Transaction) Modifications() *ModificationSet { return t.mods }

// CommitOption configures a single Commit.
type CommitOption func(*commitConfig)

type commitConfig struct {
	progress ports.Progress
	executor Executor
}

// WithProgress sets the progress and cancellation service polled by the execution pass.
func WithProgress(p ports.Progress) CommitOption {
	return func(c *commitConfig) {
		if p != nil {
			c.progress = p
		}
	}
}

// WithCommitExecutor runs e instead of the document's executor for this commit.
func WithCommitExecutor(e Executor) CommitOption {
	return func(c *commitConfig) {
		c.executor = e
	}
}

// Open starts a transaction. Only one may be open at a time.
func (d *Document) Open(name string) error {
	if d.tx != nil {
		return fmt.Errorf("%w: %s", domain.ErrTransactionActive, d.tx.name)
	}
	d.tx = &Transaction{
		id:     uuid.NewString(),
		name:   name,
		opened: time.Now(),
		mods:   newModificationSet(),
	}
	d.logger.Debug("transaction opened", "document", d.id, "transaction", d.tx.id, "name", name)
	return nil
}

// InTransaction reports whether a transaction is open.
func (d *Document) InTransaction() bool {
	return d.tx != nil
}

// Transaction returns the open transaction, or nil.
func (d *Document) Transaction() *Transaction {
	return d.tx
}

// Commit runs the execution engine over the touched Parameters and finalizes the transaction.
// Function failures are reported per function and do not fail the commit. Any error returned
// by the engine (cycle, re-touch, non-convergence) rolls the whole transaction back.
func (d *Document) Commit(ctx context.Context, opts ...CommitOption) (*domain.ExecutionReport, error) {
	if d.tx == nil {
		return nil, domain.ErrNoActiveTransaction
	}
	cfg := commitConfig{progress: ports.NopProgress{}, executor: d.executor}
	for _, opt := range opts {
		opt(&cfg)
	}

	var report *domain.ExecutionReport
	if cfg.executor != nil {
		r, err := cfg.executor.Execute(ctx, d, cfg.progress)
		if err != nil {
			d.logger.Warn("commit rolled back", "document", d.id, "transaction", d.tx.id, "err", err)
			d.abort(ctx)
			return r, fmt.Errorf("commit aborted: %w", err)
		}
		report = r
		d.recordReport(r)
	}

	tx := d.tx
	d.tx = nil
	if len(tx.journal) > 0 {
		d.undo = append(d.undo, tx)
		if d.undoLimit > 0 && len(d.undo) > d.undoLimit {
			d.undo = d.undo[len(d.undo)-d.undoLimit:]
		}
		d.redo = nil
	}

	d.logger.Debug("transaction committed", "document", d.id, "transaction", tx.id,
		"touched", tx.mods.Len(), "changes", len(tx.journal))
	if d.hooks.OnCommit != nil {
		d.hooks.OnCommit(ctx, d.transactionEvent(domain.EventCommit, tx))
	}
	return report, nil
}

// Abort rolls back every change of the open transaction.
func (d *Document) Abort() error {
	if d.tx == nil {
		return domain.ErrNoActiveTransaction
	}
	d.abort(context.Background())
	return nil
}

func (d *Document) abort(ctx context.Context) {
	tx := d.tx
	revert(d, tx.journal)
	d.tx = nil

	d.logger.Debug("transaction aborted", "document", d.id, "transaction", tx.id)
	if d.hooks.OnAbort != nil {
		d.hooks.OnAbort(ctx, d.transactionEvent(domain.EventAbort, tx))
	}
}

// Undo reverts the last committed transaction. Undo does not run the engine: the journal
// already holds the function outputs of that commit.
func (d *Document) Undo() error {
	if d.tx != nil {
		return domain.ErrTransactionActive
	}
	if len(d.undo) == 0 {
		return domain.ErrNothingToUndo
	}
	tx := d.undo[len(d.undo)-1]
	d.undo = d.undo[:len(d.undo)-1]
	revert(d, tx.journal)
	d.redo = append(d.redo, tx)
	d.logger.Debug("transaction undone", "document", d.id, "transaction", tx.id)
	return nil
}

// Redo re-applies the last undone transaction.
func (d *Document) Redo() error {
	if d.tx != nil {
		return domain.ErrTransactionActive
	}
	if len(d.redo) == 0 {
		return domain.ErrNothingToUndo
	}
	tx := d.redo[len(d.redo)-1]
	d.redo = d.redo[:len(d.redo)-1]
	for _, c := range tx.journal {
		c.redo(d)
	}
	d.undo = append(d.undo, tx)
	d.logger.Debug("transaction redone", "document", d.id, "transaction", tx.id)
	return nil
}

// CanUndo reports whether Undo has a transaction to revert.
func (d *Document) CanUndo() bool { return len(d.undo) > 0 }

// CanRedo reports whether Redo has a transaction to re-apply.
func (d *Document) CanRedo() bool { return len(d.redo) > 0 }

func revert(d *Document, journal []change) {
	for i := len(journal) - 1; i >= 0; i-- {
		journal[i].undo(d)
	}
}

func (d *Document) record(c change) {
	d.tx.journal = append(d.tx.journal, c)
}

func (d *Document) transactionEvent(t domain.EventType, tx *Transaction) *domain.TransactionEvent {
	return &domain.TransactionEvent{
		EventBase: domain.EventBase{
			Timestamp: time.Now(),
			Type:      t,
			Document:  d.id,
		},
		Transaction: tx.id,
		Name:        tx.name,
		Touched:     tx.mods.Len(),
	}
}
