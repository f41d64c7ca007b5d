// Package codec holds the binary drivers that persist Parameter values one attribute at a time.
//
// A Table maps every ValueKind to the Driver that encodes it. Stores that keep whole documents
// as JSON do not need it; the attribute-level stores (badger, sqlite) write each Parameter
// through Table.EncodeParameter so that a single value can be read or replaced on its own.
package codec

import (
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/aretw0/actdata/pkg/domain"
)

// Driver converts the values of one kind to and from bytes.
type Driver interface {
	Kind() domain.ValueKind
	Encode(v domain.Value) ([]byte, error)
	Decode(b []byte) (domain.Value, error)
}

// Table is the driver table. It is safe for concurrent use.
type Table struct {
	mu      sync.RWMutex
	drivers map[domain.ValueKind]Driver
}

// NewTable returns a table populated with the built-in driver of every storable kind.
func NewTable() *Table {
	t := &Table{drivers: make(map[domain.ValueKind]Driver)}
	for _, d := range builtin() {
		t.drivers[d.Kind()] = d
	}
	return t
}

var (
	defaultOnce  sync.Once
	defaultTable *Table
)

// Default returns the shared table of built-in drivers.
func Default() *Table {
	defaultOnce.Do(func() {
		defaultTable = NewTable()
	})
	return defaultTable
}

// Register installs d for its kind, replacing the previous driver.
func (t *Table) Register(d Driver) error {
	k := d.Kind()
	if k == domain.KindInvalid || k == domain.KindGroup {
		return fmt.Errorf("register driver: %w: kind %s holds no value", domain.ErrTypeMismatch, k)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.drivers[k] = d
	return nil
}

// Driver returns the driver for kind k.
func (t *Table) Driver(k domain.ValueKind) (Driver, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	d, ok := t.drivers[k]
	if !ok {
		return nil, fmt.Errorf("%w: no driver for kind %s", domain.ErrTypeMismatch, k)
	}
	return d, nil
}

// Kinds lists the kinds with a registered driver.
func (t *Table) Kinds() []domain.ValueKind {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return slices.Sorted(maps.Keys(t.drivers))
}

// Encode encodes v with the driver of its kind.
func (t *Table) Encode(v domain.Value) ([]byte, error) {
	d, err := t.Driver(v.Kind)
	if err != nil {
		return nil, err
	}
	return d.Encode(v)
}

// Decode decodes b as a value of kind k.
func (t *Table) Decode(k domain.ValueKind, b []byte) (domain.Value, error) {
	d, err := t.Driver(k)
	if err != nil {
		return domain.Value{}, err
	}
	v, err := d.Decode(b)
	if err != nil {
		return domain.Value{}, fmt.Errorf("decode %s: %w", k, err)
	}
	return v, nil
}
