package badger_test

import (
	"context"
	"testing"

	"github.com/aretw0/actdata/pkg/adapters/badger"
	"github.com/aretw0/actdata/pkg/domain"
	"github.com/aretw0/actdata/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var _ ports.DocumentStore = (*badger.Store)(nil)

func newStore(t *testing.T) *badger.Store {
	t.Helper()
	s, err := badger.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestBadgerStore_Contract(t *testing.T) {
	ports.RunDocumentStoreContract(t, newStore(t))
}

func TestBadgerStore_PersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	s, err := badger.Open(badger.Config{Path: dir, SyncWrites: true})
	require.NoError(t, err)
	want := ports.ContractSnapshot("durable")
	require.NoError(t, s.Save(ctx, want))
	require.NoError(t, s.Close())

	s, err = badger.Open(badger.DefaultConfig(dir))
	require.NoError(t, err)
	defer s.Close()
	got, err := s.Load(ctx, "durable")
	require.NoError(t, err)
	ports.AssertSnapshotsEqual(t, want, got)
	assert.Equal(t, want.Meta, got.Meta)
}

func TestBadgerStore_SingleParameterAccess(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	require.NoError(t, s.Save(ctx, ports.ContractSnapshot("attrs")))
	box1 := domain.NodeID{Type: "Box", Ordinal: 1}

	p, err := s.ReadParameter(ctx, "attrs", box1.Param(2))
	require.NoError(t, err)
	assert.Equal(t, "count", p.Name)
	assert.Equal(t, int64(-42), p.Value.Int)

	v := domain.IntValue(99)
	p.Value = &v
	require.NoError(t, s.WriteParameter(ctx, "attrs", box1.Param(2), p))

	snap, err := s.Load(ctx, "attrs")
	require.NoError(t, err)
	assert.Equal(t, int64(99), snap.Param(box1.Param(2)).Value.Int)
	assert.Equal(t, 2.5, snap.Param(box1.Param(3)).Value.Real, "neighbours are untouched")

	t.Run("Layout changes are refused", func(t *testing.T) {
		wrong := p
		wrong.Kind = domain.KindReal
		r := domain.RealValue(1)
		wrong.Value = &r
		err := s.WriteParameter(ctx, "attrs", box1.Param(2), wrong)
		require.ErrorIs(t, err, domain.ErrLayoutMismatch)

		err = s.WriteParameter(ctx, "attrs", box1.Param(3), p)
		require.ErrorIs(t, err, domain.ErrLayoutMismatch)
	})

	t.Run("Missing parameter", func(t *testing.T) {
		_, err := s.ReadParameter(ctx, "attrs", box1.Param(40))
		require.ErrorIs(t, err, domain.ErrUnknownParameterID)

		missing := domain.ParamSnapshot{Index: 1, Name: "flag", Kind: domain.KindBool}
		err = s.WriteParameter(ctx, "attrs", domain.NodeID{Type: "Box", Ordinal: 2}.Param(1), missing)
		require.ErrorIs(t, err, domain.ErrUnknownParameterID)
	})
}

func TestBadgerStore_SaveDropsStaleRecords(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	require.NoError(t, s.Save(ctx, ports.ContractSnapshot("shrink")))

	smaller := ports.ContractSnapshot("shrink")
	smaller.Partitions[0].Nodes = smaller.Partitions[0].Nodes[1:]
	smaller.Partitions[0].Nodes[0].Params = smaller.Partitions[0].Nodes[0].Params[:1]
	require.NoError(t, s.Save(ctx, smaller))

	_, err := s.ReadParameter(ctx, "shrink", domain.NodeID{Type: "Box", Ordinal: 1}.Param(2))
	require.ErrorIs(t, err, domain.ErrUnknownParameterID)

	got, err := s.Load(ctx, "shrink")
	require.NoError(t, err)
	ports.AssertSnapshotsEqual(t, smaller, got)
}

func TestBadgerStore_IDs(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	require.NoError(t, s.Save(ctx, ports.ContractSnapshot("a")))
	require.NoError(t, s.Save(ctx, ports.ContractSnapshot("ab")))
	require.NoError(t, s.Delete(ctx, "a"))

	ids, err := s.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"ab"}, ids)

	got, err := s.Load(ctx, "ab")
	require.NoError(t, err)
	assert.Len(t, got.Partitions[0].Nodes[0].Params, 15, "deleting a prefix-sharing id keeps the other")

	require.Error(t, s.Save(ctx, ports.ContractSnapshot("bad\x00id")))
	require.Error(t, s.Save(ctx, ports.ContractSnapshot("")))
}
