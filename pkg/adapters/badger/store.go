// Package badger stores documents attribute by attribute in BadgerDB.
//
// Key layout:
//
//	m/<document>                                  JSON header: version, meta, partitions, nodes
//	p/<document>\x00<type>\x00<ordinal>\x00<index>   one codec parameter record
//
// Ordinals and indices are zero padded so a prefix scan yields Parameters in layout order.
// Single Parameters can be read and replaced without loading the whole document.
package badger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/aretw0/actdata/internal/logging"
	"github.com/aretw0/actdata/pkg/codec"
	"github.com/aretw0/actdata/pkg/domain"
	"github.com/dgraph-io/badger/v4"
)

const sep = "\x00"

// Config configures the database.
type Config struct {
	// Path is the directory for BadgerDB files. Ignored when InMemory is true.
	Path string

	// InMemory enables in-memory mode (no disk persistence). Useful for testing.
	InMemory bool

	// SyncWrites enables synchronous writes for durability.
	SyncWrites bool

	// Logger receives BadgerDB's internal logs. If nil, they are discarded.
	Logger *slog.Logger

	// GCInterval is how often to run value log garbage collection. Zero disables it.
	GCInterval time.Duration

	// GCDiscardRatio is the minimum ratio of discardable data before GC.
	GCDiscardRatio float64
}

// DefaultConfig returns production defaults for a database at path.
func DefaultConfig(path string) Config {
	return Config{
		Path:           path,
		SyncWrites:     true,
		GCInterval:     5 * time.Minute,
		GCDiscardRatio: 0.5,
	}
}

// InMemoryConfig returns a configuration suitable for tests.
func InMemoryConfig() Config {
	return Config{InMemory: true}
}

type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Info(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

// Store implements ports.DocumentStore on BadgerDB.
type Store struct {
	db     *badger.DB
	table  *codec.Table
	logger *slog.Logger
	stopGC chan struct{}
	doneGC chan struct{}
}

// Option configures the Store.
type Option func(*Store)

// WithCodec replaces the default driver table.
func WithCodec(t *codec.Table) Option {
	return func(s *Store) {
		s.table = t
	}
}

// Open opens (or creates) the database described by cfg.
func Open(cfg Config, opts ...Option) (*Store, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("path is required for persistent database")
	}

	var bopts badger.Options
	if cfg.InMemory {
		bopts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0750); err != nil {
			return nil, fmt.Errorf("create database directory %s: %w", cfg.Path, err)
		}
		bopts = badger.DefaultOptions(cfg.Path)
	}
	bopts = bopts.WithSyncWrites(cfg.SyncWrites).WithNumVersionsToKeep(1)
	if cfg.Logger != nil {
		bopts = bopts.WithLogger(&badgerLogger{logger: cfg.Logger})
	} else {
		bopts = bopts.WithLogger(nil)
	}

	db, err := badger.Open(bopts)
	if err != nil {
		return nil, fmt.Errorf("open badger database: %w", err)
	}

	s := &Store{db: db, table: codec.Default(), logger: cfg.Logger}
	if s.logger == nil {
		s.logger = logging.NewNop()
	}
	for _, opt := range opts {
		opt(s)
	}
	if cfg.GCInterval > 0 && !cfg.InMemory {
		s.startGC(cfg.GCInterval, cfg.GCDiscardRatio)
	}
	return s, nil
}

// OpenInMemory opens a throwaway in-memory store.
func OpenInMemory(opts ...Option) (*Store, error) {
	return Open(InMemoryConfig(), opts...)
}

// Close stops the GC loop and closes the database.
func (s *Store) Close() error {
	if s.stopGC != nil {
		close(s.stopGC)
		<-s.doneGC
	}
	return s.db.Close()
}

func (s *Store) startGC(interval time.Duration, ratio float64) {
	s.stopGC = make(chan struct{})
	s.doneGC = make(chan struct{})
	go func() {
		defer close(s.doneGC)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-s.stopGC:
				return
			case <-ticker.C:
				err := s.db.RunValueLogGC(ratio)
				if err != nil && !errors.Is(err, badger.ErrNoRewrite) {
					s.logger.Warn("badger value log GC error", "err", err)
				}
			}
		}
	}()
}

type header struct {
	Version    int               `json:"version"`
	Meta       map[string]string `json:"meta,omitempty"`
	Partitions []partHeader      `json:"partitions"`
}

type partHeader struct {
	Type  domain.TypeID `json:"type"`
	Next  int           `json:"next"`
	Nodes []nodeHeader  `json:"nodes"`
}

type nodeHeader struct {
	Ordinal  int             `json:"ordinal"`
	Name     string          `json:"name,omitempty"`
	Children []domain.NodeID `json:"children,omitempty"`
}

func metaKey(id string) []byte {
	return []byte("m/" + id)
}

func paramPrefix(id string) []byte {
	return []byte("p/" + id + sep)
}

func paramKey(id string, gid domain.GID) []byte {
	return fmt.Appendf(paramPrefix(id), "%s%s%010d%s%06d", gid.Node.Type, sep, gid.Node.Ordinal, sep, gid.Param)
}

func checkID(id string) error {
	if id == "" || strings.Contains(id, sep) {
		return fmt.Errorf("invalid document id %q", id)
	}
	return nil
}

// Save replaces every key of the document in a single transaction.
func (s *Store) Save(ctx context.Context, snap *domain.Snapshot) error {
	if snap == nil {
		return fmt.Errorf("snapshot cannot be nil")
	}
	if err := checkID(snap.ID); err != nil {
		return err
	}

	h := header{Version: snap.Version, Meta: snap.Meta}
	type record struct {
		key, val []byte
	}
	var records []record
	for _, part := range snap.Partitions {
		ph := partHeader{Type: part.Type, Next: part.Next}
		for _, node := range part.Nodes {
			ph.Nodes = append(ph.Nodes, nodeHeader{Ordinal: node.Ordinal, Name: node.Name, Children: node.Children})
			nid := domain.NodeID{Type: part.Type, Ordinal: node.Ordinal}
			for _, p := range node.Params {
				b, err := s.table.EncodeParameter(p)
				if err != nil {
					return fmt.Errorf("encode %s: %w", nid.Param(p.Index), err)
				}
				records = append(records, record{paramKey(snap.ID, nid.Param(p.Index)), b})
			}
		}
		h.Partitions = append(h.Partitions, ph)
	}
	hb, err := json.Marshal(h)
	if err != nil {
		return fmt.Errorf("failed to marshal header: %w", err)
	}

	return s.db.Update(func(txn *badger.Txn) error {
		if err := deletePrefix(txn, paramPrefix(snap.ID)); err != nil {
			return err
		}
		if err := txn.Set(metaKey(snap.ID), hb); err != nil {
			return err
		}
		for _, r := range records {
			if err := txn.Set(r.key, r.val); err != nil {
				return fmt.Errorf("write %q: %w", r.key, err)
			}
		}
		return nil
	})
}

// Load reassembles the snapshot from its header and parameter records.
func (s *Store) Load(ctx context.Context, id string) (*domain.Snapshot, error) {
	if err := checkID(id); err != nil {
		return nil, err
	}
	var snap *domain.Snapshot
	err := s.db.View(func(txn *badger.Txn) error {
		var h header
		if err := getJSON(txn, metaKey(id), &h); err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return fmt.Errorf("%w: %s", domain.ErrDocumentNotFound, id)
			}
			return err
		}

		snap = &domain.Snapshot{ID: id, Version: h.Version, Meta: h.Meta}
		nodes := make(map[domain.NodeID]*domain.NodeSnapshot)
		for _, ph := range h.Partitions {
			ps := domain.PartitionSnapshot{Type: ph.Type, Next: ph.Next, Nodes: make([]domain.NodeSnapshot, len(ph.Nodes))}
			for i, nh := range ph.Nodes {
				ps.Nodes[i] = domain.NodeSnapshot{Ordinal: nh.Ordinal, Name: nh.Name, Children: nh.Children}
			}
			snap.Partitions = append(snap.Partitions, ps)
		}
		for pi := range snap.Partitions {
			part := &snap.Partitions[pi]
			for ni := range part.Nodes {
				nodes[domain.NodeID{Type: part.Type, Ordinal: part.Nodes[ni].Ordinal}] = &part.Nodes[ni]
			}
		}

		prefix := paramPrefix(id)
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			nid, err := parseNodeKey(bytes.TrimPrefix(item.Key(), prefix))
			if err != nil {
				return err
			}
			node, ok := nodes[nid]
			if !ok {
				return fmt.Errorf("parameter record for unknown node %s", nid)
			}
			var p domain.ParamSnapshot
			err = item.Value(func(val []byte) error {
				var derr error
				p, derr = s.table.DecodeParameter(val)
				return derr
			})
			if err != nil {
				return fmt.Errorf("decode %s: %w", nid, err)
			}
			node.Params = append(node.Params, p)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return snap, nil
}

// ReadParameter loads a single Parameter without reading the rest of the document.
func (s *Store) ReadParameter(ctx context.Context, id string, gid domain.GID) (domain.ParamSnapshot, error) {
	var p domain.ParamSnapshot
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(paramKey(id, gid))
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return &domain.ParameterError{GID: gid, Err: domain.ErrUnknownParameterID}
			}
			return err
		}
		return item.Value(func(val []byte) error {
			var derr error
			p, derr = s.table.DecodeParameter(val)
			return derr
		})
	})
	return p, err
}

// WriteParameter replaces a single stored Parameter. The record must already exist:
// layout changes go through Save.
func (s *Store) WriteParameter(ctx context.Context, id string, gid domain.GID, p domain.ParamSnapshot) error {
	if p.Index != gid.Param {
		return &domain.ParameterError{GID: gid, Err: domain.ErrLayoutMismatch}
	}
	b, err := s.table.EncodeParameter(p)
	if err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		key := paramKey(id, gid)
		item, err := txn.Get(key)
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return &domain.ParameterError{GID: gid, Err: domain.ErrUnknownParameterID}
			}
			return err
		}
		err = item.Value(func(val []byte) error {
			old, derr := s.table.DecodeParameter(val)
			if derr != nil {
				return derr
			}
			if old.Kind != p.Kind || old.Name != p.Name {
				return &domain.ParameterError{GID: gid, Err: domain.ErrLayoutMismatch}
			}
			return nil
		})
		if err != nil {
			return err
		}
		return txn.Set(key, b)
	})
}

// Delete removes the document header and all of its parameter records.
func (s *Store) Delete(ctx context.Context, id string) error {
	if err := checkID(id); err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Delete(metaKey(id)); err != nil {
			return err
		}
		return deletePrefix(txn, paramPrefix(id))
	})
}

// List returns the stored document IDs in key order.
func (s *Store) List(ctx context.Context) ([]string, error) {
	var ids []string
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		prefix := []byte("m/")
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			ids = append(ids, string(bytes.TrimPrefix(it.Item().Key(), prefix)))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	return ids, nil
}

func deletePrefix(txn *badger.Txn, prefix []byte) error {
	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = false
	it := txn.NewIterator(opts)
	var keys [][]byte
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		keys = append(keys, it.Item().KeyCopy(nil))
	}
	it.Close()
	for _, k := range keys {
		if err := txn.Delete(k); err != nil {
			return err
		}
	}
	return nil
}

func getJSON(txn *badger.Txn, key []byte, v any) error {
	item, err := txn.Get(key)
	if err != nil {
		return err
	}
	return item.Value(func(val []byte) error {
		return json.Unmarshal(val, v)
	})
}

// parseNodeKey parses "<type>\x00<ordinal>\x00<index>".
func parseNodeKey(k []byte) (domain.NodeID, error) {
	parts := strings.Split(string(k), sep)
	if len(parts) != 3 {
		return domain.NodeID{}, fmt.Errorf("malformed parameter key %q", k)
	}
	ord, err := strconv.Atoi(parts[1])
	if err != nil {
		return domain.NodeID{}, fmt.Errorf("malformed parameter key %q: %w", k, err)
	}
	return domain.NodeID{Type: domain.TypeID(parts[0]), Ordinal: ord}, nil
}
