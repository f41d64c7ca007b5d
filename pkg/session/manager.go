package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aretw0/actdata/internal/logging"
	"github.com/aretw0/actdata/pkg/conversion"
	"github.com/aretw0/actdata/pkg/document"
	"github.com/aretw0/actdata/pkg/domain"
	"github.com/aretw0/actdata/pkg/ports"
	"github.com/aretw0/actdata/pkg/registry"
	"github.com/google/uuid"
)

// ErrDocumentExists is returned by Create when the ID is already stored.
var ErrDocumentExists = errors.New("document already exists")

// DefaultLockTTL bounds how long a distributed lock outlives a crashed holder.
const DefaultLockTTL = 30 * time.Second

// lockEntry holds the mutex and the reference count.
type lockEntry struct {
	mu   sync.Mutex
	refs int
}

// Manager is the single writer of the documents in a store. Every operation on a document
// ID runs under that ID's lock: a local mutex, plus the distributed lock when configured.
// Locks are reference counted and dropped once no caller holds them.
type Manager struct {
	store    ports.DocumentStore
	reg      *registry.Registry
	pipeline *conversion.Pipeline

	mu    sync.Mutex
	locks map[string]*lockEntry

	locker  ports.DistributedLocker
	lockTTL time.Duration
	docOpts []document.Option
	persist bool
	logger  *slog.Logger
}

// Option configures the Manager.
type Option func(*Manager)

// WithLocker enables distributed locking.
func WithLocker(locker ports.DistributedLocker) Option {
	return func(m *Manager) {
		m.locker = locker
	}
}

// WithLockTTL overrides DefaultLockTTL.
func WithLockTTL(ttl time.Duration) Option {
	return func(m *Manager) {
		m.lockTTL = ttl
	}
}

// WithLogger configures a logger for the Manager.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

// WithDocumentOptions sets the options every opened or created Document receives,
// typically document.WithExecutor.
func WithDocumentOptions(opts ...document.Option) Option {
	return func(m *Manager) {
		m.docOpts = append(m.docOpts, opts...)
	}
}

// WithPersistConversions makes Open write converted documents back to the store.
func WithPersistConversions(enabled bool) Option {
	return func(m *Manager) {
		m.persist = enabled
	}
}

// NewManager creates a Manager over store. Documents are hydrated against reg and upgraded
// with reg's conversion routines on Open.
func NewManager(store ports.DocumentStore, reg *registry.Registry, opts ...Option) *Manager {
	m := &Manager{
		store:   store,
		reg:     reg,
		locks:   make(map[string]*lockEntry),
		lockTTL: DefaultLockTTL,
		logger:  logging.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.pipeline = conversion.NewPipeline(reg, conversion.WithLogger(m.logger))
	return m
}

// acquire gets or creates a lock entry and increments its reference count.
// The caller must lock entry.mu and call release(id) after unlocking.
func (m *Manager) acquire(id string) *lockEntry {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, exists := m.locks[id]
	if !exists {
		entry = &lockEntry{}
		m.locks[id] = entry
	}
	entry.refs++
	return entry
}

// release decrements the reference count and deletes the entry if it reaches zero.
func (m *Manager) release(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, exists := m.locks[id]
	if !exists {
		return
	}
	entry.refs--
	if entry.refs <= 0 {
		delete(m.locks, id)
	}
}

// Create initialises an empty document at the registry's current version and stores it.
// An empty id is replaced by a random UUID.
func (m *Manager) Create(ctx context.Context, id string) (*document.Document, error) {
	if id == "" {
		id = uuid.NewString()
	}
	var doc *document.Document
	err := m.WithLock(ctx, id, func(ctx context.Context) error {
		_, err := m.store.Load(ctx, id)
		if err == nil {
			return fmt.Errorf("%w: %s", ErrDocumentExists, id)
		}
		if !errors.Is(err, domain.ErrDocumentNotFound) {
			return fmt.Errorf("failed to check document existence: %w", err)
		}
		doc = document.New(id, m.reg, m.docOpts...)
		if err := m.store.Save(ctx, doc.Snapshot()); err != nil {
			return fmt.Errorf("failed to initialize document: %w", err)
		}
		return nil
	})
	return doc, err
}

// Open loads, converts and hydrates a document.
func (m *Manager) Open(ctx context.Context, id string) (*document.Document, error) {
	var doc *document.Document
	err := m.WithLock(ctx, id, func(ctx context.Context) error {
		var err error
		doc, err = m.open(ctx, id)
		return err
	})
	return doc, err
}

func (m *Manager) open(ctx context.Context, id string) (*document.Document, error) {
	snap, err := m.store.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	res, err := m.pipeline.Apply(ctx, snap)
	if err != nil {
		return nil, err
	}
	doc, err := document.FromSnapshot(m.reg, res.Snapshot, m.docOpts...)
	if err != nil {
		return nil, fmt.Errorf("hydrate %s: %w", id, err)
	}
	if res.Converted() && m.persist {
		if err := m.store.Save(ctx, doc.Snapshot()); err != nil {
			return nil, fmt.Errorf("persist conversion of %s: %w", id, err)
		}
		m.logger.Info("converted document persisted", "document", id, "from", res.From, "to", res.To)
	}
	return doc, nil
}

// Update opens the document, runs fn inside a transaction named name, commits and saves.
// If fn fails the transaction is aborted and nothing is stored. If the commit aborts the
// store keeps the previous version.
func (m *Manager) Update(ctx context.Context, id, name string, fn func(*document.Document) error) (*domain.ExecutionReport, error) {
	var report *domain.ExecutionReport
	err := m.WithLock(ctx, id, func(ctx context.Context) error {
		doc, err := m.open(ctx, id)
		if err != nil {
			return err
		}
		if err := doc.Open(name); err != nil {
			return err
		}
		if err := fn(doc); err != nil {
			_ = doc.Abort()
			return err
		}
		report, err = doc.Commit(ctx)
		if err != nil {
			return err
		}
		return m.store.Save(ctx, doc.Snapshot())
	})
	return report, err
}

// Save persists the document's current state.
func (m *Manager) Save(ctx context.Context, doc *document.Document) error {
	if doc.InTransaction() {
		return fmt.Errorf("save %s: %w", doc.ID(), domain.ErrTransactionActive)
	}
	return m.WithLock(ctx, doc.ID(), func(ctx context.Context) error {
		return m.store.Save(ctx, doc.Snapshot())
	})
}

// Delete removes the document from the store.
func (m *Manager) Delete(ctx context.Context, id string) error {
	return m.WithLock(ctx, id, func(ctx context.Context) error {
		return m.store.Delete(ctx, id)
	})
}

// List delegates to the store.
func (m *Manager) List(ctx context.Context) ([]string, error) {
	return m.store.List(ctx)
}

// Store returns the underlying document store.
func (m *Manager) Store() ports.DocumentStore {
	return m.store
}

// Registry returns the registry documents are hydrated against.
func (m *Manager) Registry() *registry.Registry {
	return m.reg
}

// WithLock executes fn while holding the lock for the document.
func (m *Manager) WithLock(ctx context.Context, id string, fn func(context.Context) error) error {
	entry := m.acquire(id)
	entry.mu.Lock()
	defer func() {
		entry.mu.Unlock()
		m.release(id)
	}()

	if m.locker != nil {
		unlock, err := m.locker.Lock(ctx, id, m.lockTTL)
		if err != nil {
			return fmt.Errorf("failed to acquire distributed lock: %w", err)
		}
		defer func() {
			if err := unlock(ctx); err != nil {
				m.logger.Warn("failed to release distributed lock (will expire via TTL)",
					"document", id,
					"err", err,
				)
			}
		}()
	}

	return fn(ctx)
}
