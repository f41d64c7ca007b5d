package sqlite_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/aretw0/actdata/pkg/adapters/sqlite"
	"github.com/aretw0/actdata/pkg/domain"
	"github.com/aretw0/actdata/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var _ ports.DocumentStore = (*sqlite.Store)(nil)

func newStore(t *testing.T) (*sqlite.Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "actdata.db")
	s, err := sqlite.NewStore(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s, path
}

func TestSQLiteStore_Contract(t *testing.T) {
	s, _ := newStore(t)
	ports.RunDocumentStoreContract(t, s)
}

func TestSQLiteStore_ReopenAndMigrateTwice(t *testing.T) {
	ctx := context.Background()
	s, path := newStore(t)
	want := ports.ContractSnapshot("durable")
	require.NoError(t, s.Save(ctx, want))
	require.NoError(t, s.Migrate())
	require.NoError(t, s.Close())

	s, err := sqlite.NewStore(path)
	require.NoError(t, err)
	defer s.Close()
	got, err := s.Load(ctx, "durable")
	require.NoError(t, err)
	ports.AssertSnapshotsEqual(t, want, got)
	assert.Equal(t, want.Meta, got.Meta)
}

func TestSQLiteStore_SingleValueAccess(t *testing.T) {
	ctx := context.Background()
	s, _ := newStore(t)
	require.NoError(t, s.Save(ctx, ports.ContractSnapshot("attrs")))
	box1 := domain.NodeID{Type: "Box", Ordinal: 1}

	p, err := s.ReadValue(ctx, "attrs", box1.Param(4))
	require.NoError(t, err)
	assert.Equal(t, "height", p.Name)
	assert.True(t, p.Stale)

	require.NoError(t, s.WriteValue(ctx, "attrs", box1.Param(4), domain.RealValue(7)))
	p, err = s.ReadValue(ctx, "attrs", box1.Param(4))
	require.NoError(t, err)
	assert.Equal(t, 7.0, p.Value.Real)
	assert.False(t, p.Stale, "writing a value clears the stale flag")

	require.NoError(t, s.WriteValue(ctx, "attrs", box1.Param(14), domain.RealValue(3)))
	p, err = s.ReadValue(ctx, "attrs", box1.Param(14))
	require.NoError(t, err)
	require.NotNil(t, p.Value, "an unset parameter becomes set")

	err = s.WriteValue(ctx, "attrs", box1.Param(4), domain.IntValue(1))
	require.ErrorIs(t, err, domain.ErrTypeMismatch)

	_, err = s.ReadValue(ctx, "attrs", box1.Param(40))
	require.ErrorIs(t, err, domain.ErrUnknownParameterID)
	err = s.WriteValue(ctx, "attrs", box1.Param(40), domain.IntValue(1))
	require.ErrorIs(t, err, domain.ErrUnknownParameterID)
}

func TestSQLiteStore_EmptyArraysStaySet(t *testing.T) {
	ctx := context.Background()
	s, _ := newStore(t)
	snap := ports.ContractSnapshot("empty")
	empty := domain.IntArrayValue()
	snap.Partitions[0].Nodes[0].Params[6].Value = &empty
	require.NoError(t, s.Save(ctx, snap))

	got, err := s.Load(ctx, "empty")
	require.NoError(t, err)
	p := got.Param(domain.NodeID{Type: "Box", Ordinal: 1}.Param(6))
	require.NotNil(t, p.Value)
	assert.Empty(t, p.Value.Ints)
}

func TestSQLiteStore_CountByKindAndCascade(t *testing.T) {
	ctx := context.Background()
	s, _ := newStore(t)
	require.NoError(t, s.Save(ctx, ports.ContractSnapshot("kinds")))

	counts, err := s.CountByKind(ctx, "kinds")
	require.NoError(t, err)
	assert.Equal(t, 2, counts[domain.KindGroup])
	assert.Equal(t, 2, counts[domain.KindInt])
	assert.Equal(t, 3, counts[domain.KindReal])

	require.NoError(t, s.Delete(ctx, "kinds"))
	counts, err = s.CountByKind(ctx, "kinds")
	require.NoError(t, err)
	assert.Empty(t, counts, "parameter rows cascade with the document")

	_, err = s.Load(ctx, "kinds")
	require.ErrorIs(t, err, domain.ErrDocumentNotFound)
}
