// Package sqlite stores documents in relational tables, one row per Parameter.
//
// Values are encoded by the codec driver of their kind, so a Parameter can be queried or
// updated with plain SQL while the rest of the document stays on disk.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/aretw0/actdata/pkg/codec"
	"github.com/aretw0/actdata/pkg/domain"
	_ "github.com/mattn/go-sqlite3"
)

// Store implements ports.DocumentStore on SQLite.
type Store struct {
	db    *sql.DB
	table *codec.Table
}

// Option configures the Store.
type Option func(*Store)

// WithCodec replaces the default driver table.
func WithCodec(t *codec.Table) Option {
	return func(s *Store) {
		s.table = t
	}
}

// NewStore opens a SQLite database at dbPath with WAL mode enabled and applies the schema.
func NewStore(dbPath string, opts ...Option) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=30000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	s := &Store{db: db, table: codec.Default()}
	for _, opt := range opts {
		opt(s)
	}
	if err := s.Migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying *sql.DB.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Migrate creates the tables and indexes. Idempotent.
func (s *Store) Migrate() error {
	if _, err := s.db.Exec(schemaDDL); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

const schemaDDL = `
CREATE TABLE IF NOT EXISTS documents (
  id          TEXT PRIMARY KEY,
  version     INTEGER NOT NULL,
  meta        TEXT,
  updated_at  TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS partitions (
  doc_id      TEXT NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
  type        TEXT NOT NULL,
  next        INTEGER NOT NULL,
  position    INTEGER NOT NULL,
  PRIMARY KEY (doc_id, type)
);

CREATE TABLE IF NOT EXISTS nodes (
  doc_id      TEXT NOT NULL,
  type        TEXT NOT NULL,
  ordinal     INTEGER NOT NULL,
  name        TEXT,
  children    TEXT,
  PRIMARY KEY (doc_id, type, ordinal),
  FOREIGN KEY (doc_id, type) REFERENCES partitions(doc_id, type) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS parameters (
  doc_id      TEXT NOT NULL,
  type        TEXT NOT NULL,
  ordinal     INTEGER NOT NULL,
  idx         INTEGER NOT NULL,
  name        TEXT NOT NULL,
  kind        TEXT NOT NULL,
  has_value   BOOLEAN NOT NULL DEFAULT FALSE,
  value       BLOB,
  stale       BOOLEAN NOT NULL DEFAULT FALSE,
  evaluation  TEXT,
  PRIMARY KEY (doc_id, type, ordinal, idx),
  FOREIGN KEY (doc_id, type, ordinal) REFERENCES nodes(doc_id, type, ordinal) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_parameters_kind ON parameters(doc_id, kind);
`

// Save replaces the document's rows in a single transaction.
func (s *Store) Save(ctx context.Context, snap *domain.Snapshot) error {
	if snap == nil || snap.ID == "" {
		return fmt.Errorf("snapshot id cannot be empty")
	}
	meta, err := json.Marshal(snap.Meta)
	if err != nil {
		return fmt.Errorf("save %s: meta: %w", snap.ID, err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("save %s: begin: %w", snap.ID, err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM documents WHERE id = ?`, snap.ID); err != nil {
		return fmt.Errorf("save %s: clear: %w", snap.ID, err)
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO documents (id, version, meta, updated_at) VALUES (?, ?, ?, ?)`,
		snap.ID, snap.Version, string(meta), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("save %s: document: %w", snap.ID, err)
	}

	partStmt, err := tx.PrepareContext(ctx, `INSERT INTO partitions (doc_id, type, next, position) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer partStmt.Close()
	nodeStmt, err := tx.PrepareContext(ctx, `INSERT INTO nodes (doc_id, type, ordinal, name, children) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer nodeStmt.Close()
	paramStmt, err := tx.PrepareContext(ctx, `INSERT INTO parameters
		(doc_id, type, ordinal, idx, name, kind, has_value, value, stale, evaluation)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer paramStmt.Close()

	for pos, part := range snap.Partitions {
		if _, err := partStmt.ExecContext(ctx, snap.ID, string(part.Type), part.Next, pos); err != nil {
			return fmt.Errorf("save %s: partition %s: %w", snap.ID, part.Type, err)
		}
		for _, node := range part.Nodes {
			children, err := nullJSON(node.Children, len(node.Children) == 0)
			if err != nil {
				return err
			}
			if _, err := nodeStmt.ExecContext(ctx, snap.ID, string(part.Type), node.Ordinal, node.Name, children); err != nil {
				return fmt.Errorf("save %s: node %s:%d: %w", snap.ID, part.Type, node.Ordinal, err)
			}
			for _, p := range node.Params {
				gid := domain.NodeID{Type: part.Type, Ordinal: node.Ordinal}.Param(p.Index)
				value, err := s.encodeValue(p)
				if err != nil {
					return fmt.Errorf("save %s: %s: %w", snap.ID, gid, err)
				}
				eval, err := nullJSON(p.Evaluation, p.Evaluation == nil)
				if err != nil {
					return err
				}
				_, err = paramStmt.ExecContext(ctx, snap.ID, string(part.Type), node.Ordinal, int(p.Index),
					p.Name, p.Kind.String(), p.Value != nil, value, p.Stale, eval)
				if err != nil {
					return fmt.Errorf("save %s: %s: %w", snap.ID, gid, err)
				}
			}
		}
	}
	return tx.Commit()
}

// Load reassembles the snapshot from its rows.
func (s *Store) Load(ctx context.Context, id string) (*domain.Snapshot, error) {
	snap := &domain.Snapshot{ID: id}
	var meta sql.NullString
	err := s.db.QueryRowContext(ctx, `SELECT version, meta FROM documents WHERE id = ?`, id).
		Scan(&snap.Version, &meta)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", domain.ErrDocumentNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", id, err)
	}
	if meta.Valid && meta.String != "null" {
		if err := json.Unmarshal([]byte(meta.String), &snap.Meta); err != nil {
			return nil, fmt.Errorf("load %s: meta: %w", id, err)
		}
	}

	parts := make(map[domain.TypeID]int)
	rows, err := s.db.QueryContext(ctx, `SELECT type, next FROM partitions WHERE doc_id = ? ORDER BY position`, id)
	if err != nil {
		return nil, fmt.Errorf("load %s: partitions: %w", id, err)
	}
	for rows.Next() {
		var ps domain.PartitionSnapshot
		var typ string
		if err := rows.Scan(&typ, &ps.Next); err != nil {
			rows.Close()
			return nil, err
		}
		ps.Type = domain.TypeID(typ)
		parts[ps.Type] = len(snap.Partitions)
		snap.Partitions = append(snap.Partitions, ps)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	type nodeKey struct {
		typ     domain.TypeID
		ordinal int
	}
	nodes := make(map[nodeKey][2]int)
	rows, err = s.db.QueryContext(ctx, `SELECT type, ordinal, name, children FROM nodes WHERE doc_id = ? ORDER BY type, ordinal`, id)
	if err != nil {
		return nil, fmt.Errorf("load %s: nodes: %w", id, err)
	}
	for rows.Next() {
		var typ string
		var ns domain.NodeSnapshot
		var name, children sql.NullString
		if err := rows.Scan(&typ, &ns.Ordinal, &name, &children); err != nil {
			rows.Close()
			return nil, err
		}
		ns.Name = name.String
		if children.Valid {
			if err := json.Unmarshal([]byte(children.String), &ns.Children); err != nil {
				rows.Close()
				return nil, fmt.Errorf("load %s: children of %s:%d: %w", id, typ, ns.Ordinal, err)
			}
		}
		pi := parts[domain.TypeID(typ)]
		part := &snap.Partitions[pi]
		nodes[nodeKey{part.Type, ns.Ordinal}] = [2]int{pi, len(part.Nodes)}
		part.Nodes = append(part.Nodes, ns)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	rows, err = s.db.QueryContext(ctx, `SELECT type, ordinal, idx, name, kind, has_value, value, stale, evaluation
		FROM parameters WHERE doc_id = ? ORDER BY type, ordinal, idx`, id)
	if err != nil {
		return nil, fmt.Errorf("load %s: parameters: %w", id, err)
	}
	defer rows.Close()
	for rows.Next() {
		var typ string
		var ordinal int
		p, err := s.scanParam(rows, &typ, &ordinal)
		if err != nil {
			return nil, fmt.Errorf("load %s: %w", id, err)
		}
		at, ok := nodes[nodeKey{domain.TypeID(typ), ordinal}]
		if !ok {
			return nil, fmt.Errorf("load %s: parameter row for unknown node %s:%d", id, typ, ordinal)
		}
		node := &snap.Partitions[at[0]].Nodes[at[1]]
		node.Params = append(node.Params, p)
	}
	return snap, rows.Err()
}

// ReadValue loads a single Parameter.
func (s *Store) ReadValue(ctx context.Context, id string, gid domain.GID) (domain.ParamSnapshot, error) {
	row := s.db.QueryRowContext(ctx, `SELECT type, ordinal, idx, name, kind, has_value, value, stale, evaluation
		FROM parameters WHERE doc_id = ? AND type = ? AND ordinal = ? AND idx = ?`,
		id, string(gid.Node.Type), gid.Node.Ordinal, int(gid.Param))
	var typ string
	var ordinal int
	p, err := s.scanParam(row, &typ, &ordinal)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ParamSnapshot{}, &domain.ParameterError{GID: gid, Err: domain.ErrUnknownParameterID}
	}
	return p, err
}

// WriteValue replaces the value of a single stored Parameter and clears its stale flag.
// v must match the stored kind.
func (s *Store) WriteValue(ctx context.Context, id string, gid domain.GID, v domain.Value) error {
	b, err := s.table.Encode(v)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `UPDATE parameters SET has_value = TRUE, value = ?, stale = FALSE
		WHERE doc_id = ? AND type = ? AND ordinal = ? AND idx = ? AND kind = ?`,
		b, id, string(gid.Node.Type), gid.Node.Ordinal, int(gid.Param), v.Kind.String())
	if err != nil {
		return fmt.Errorf("write %s: %w", gid, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		if _, rerr := s.ReadValue(ctx, id, gid); rerr != nil {
			return rerr
		}
		return &domain.ParameterError{GID: gid, Err: domain.ErrTypeMismatch}
	}
	return nil
}

// CountByKind reports how many Parameters of each kind the document stores.
func (s *Store) CountByKind(ctx context.Context, id string) (map[domain.ValueKind]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT kind, COUNT(*) FROM parameters WHERE doc_id = ? GROUP BY kind`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[domain.ValueKind]int)
	for rows.Next() {
		var name string
		var n int
		if err := rows.Scan(&name, &n); err != nil {
			return nil, err
		}
		k, err := domain.ParseKind(name)
		if err != nil {
			return nil, err
		}
		out[k] = n
	}
	return out, rows.Err()
}

// Delete removes the document; rows of dependent tables cascade.
func (s *Store) Delete(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete %s: %w", id, err)
	}
	return nil
}

// List returns the stored document IDs in lexical order.
func (s *Store) List(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM documents ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func (s *Store) scanParam(row scanner, typ *string, ordinal *int) (domain.ParamSnapshot, error) {
	var (
		p     domain.ParamSnapshot
		idx   int
		kind  string
		set   bool
		value []byte
		eval  sql.NullString
	)
	if err := row.Scan(typ, ordinal, &idx, &p.Name, &kind, &set, &value, &p.Stale, &eval); err != nil {
		return p, err
	}
	p.Index = domain.ParamIndex(idx)
	k, err := domain.ParseKind(kind)
	if err != nil {
		return p, err
	}
	p.Kind = k
	if set {
		v, err := s.table.Decode(k, value)
		if err != nil {
			return p, fmt.Errorf("%s:%d#%d: %w", *typ, *ordinal, idx, err)
		}
		p.Value = &v
	}
	if eval.Valid {
		p.Evaluation = &domain.Evaluation{}
		if err := json.Unmarshal([]byte(eval.String), p.Evaluation); err != nil {
			return p, err
		}
	}
	return p, nil
}

// encodeValue returns nil for unset Parameters.
func (s *Store) encodeValue(p domain.ParamSnapshot) ([]byte, error) {
	if p.Value == nil {
		return nil, nil
	}
	if p.Value.Kind != p.Kind {
		return nil, fmt.Errorf("%w: %s holds %s", domain.ErrTypeMismatch, p.Kind, p.Value.Kind)
	}
	return s.table.Encode(*p.Value)
}

func nullJSON(v any, null bool) (sql.NullString, error) {
	if null {
		return sql.NullString{}, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}
