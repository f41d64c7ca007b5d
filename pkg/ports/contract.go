package ports

import (
	"context"
	"testing"
	"time"

	"github.com/aretw0/actdata/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ContractSnapshot builds a snapshot holding one parameter of every value kind,
// an evaluation, a stale flag and a child link. Store tests use it for round trips.
func ContractSnapshot(id string) *domain.Snapshot {
	box1 := domain.NodeID{Type: "Box", Ordinal: 1}
	box2 := domain.NodeID{Type: "Box", Ordinal: 2}
	ptr := func(v domain.Value) *domain.Value { return &v }

	params := []domain.ParamSnapshot{
		{Index: 0, Name: "general", Kind: domain.KindGroup},
		{Index: 1, Name: "flag", Kind: domain.KindBool, Value: ptr(domain.BoolValue(true))},
		{Index: 2, Name: "count", Kind: domain.KindInt, Value: ptr(domain.IntValue(-42))},
		{Index: 3, Name: "width", Kind: domain.KindReal, Value: ptr(domain.RealValue(2.5)),
			Evaluation: &domain.Evaluation{
				Expression: "height * 2",
				Variables:  []domain.Variable{{Name: "height", Source: box1.Param(4)}},
			}},
		{Index: 4, Name: "height", Kind: domain.KindReal, Value: ptr(domain.RealValue(1.25)), Stale: true},
		{Index: 5, Name: "label", Kind: domain.KindString, Value: ptr(domain.StringValue("héllo"))},
		{Index: 6, Name: "ids", Kind: domain.KindIntArray, Value: ptr(domain.IntArrayValue(1, 2, 3))},
		{Index: 7, Name: "weights", Kind: domain.KindRealArray, Value: ptr(domain.RealArrayValue(0.5, -1))},
		{Index: 8, Name: "tags", Kind: domain.KindStringArray, Value: ptr(domain.StringArrayValue("a", "b"))},
		{Index: 9, Name: "created", Kind: domain.KindTimestamp,
			Value: ptr(domain.TimestampValue(time.Date(2024, 2, 29, 10, 30, 0, 123, time.UTC)))},
		{Index: 10, Name: "peer", Kind: domain.KindReference, Value: ptr(domain.ReferenceValue(box2))},
		{Index: 11, Name: "peers", Kind: domain.KindReferenceList, Value: ptr(domain.ReferenceListValue(box2))},
		{Index: 12, Name: "shape", Kind: domain.KindShape, Value: ptr(domain.ShapeValue([]byte{0, 1, 0xff}))},
		{Index: 13, Name: "fn", Kind: domain.KindTreeFunction, Value: ptr(domain.FunctionValue(domain.FunctionBinding{
			Function: "double",
			Inputs:   []domain.GID{box1.Param(4)},
			Outputs:  []domain.GID{box1.Param(3)},
			Priority: domain.PriorityHigh,
		}))},
		{Index: 14, Name: "unset", Kind: domain.KindReal},
	}

	return &domain.Snapshot{
		ID:      id,
		Version: 3,
		Meta:    map[string]string{domain.MetaVersionString: "1.0.0"},
		Partitions: []domain.PartitionSnapshot{{
			Type: "Box",
			Next: 4,
			Nodes: []domain.NodeSnapshot{
				{Ordinal: 1, Name: "first", Children: []domain.NodeID{box2}, Params: params},
				{Ordinal: 2, Name: "second", Params: []domain.ParamSnapshot{
					{Index: 0, Name: "general", Kind: domain.KindGroup},
					{Index: 2, Name: "count", Kind: domain.KindInt, Value: ptr(domain.IntValue(0))},
				}},
			},
		}},
	}
}

// RunDocumentStoreContract runs a suite of tests to verify that a DocumentStore implementation
// adheres to the defined interface contract.
func RunDocumentStoreContract(t *testing.T, store DocumentStore) {
	ctx := context.Background()
	docID := "contract-test-doc-" + time.Now().Format("20060102150405")

	t.Run("Save and Load", func(t *testing.T) {
		snap := ContractSnapshot(docID)

		err := store.Save(ctx, snap)
		require.NoError(t, err, "Save should not return error")

		loaded, err := store.Load(ctx, docID)
		require.NoError(t, err, "Load should not return error")
		AssertSnapshotsEqual(t, snap, loaded)
	})

	t.Run("Save Overwrites", func(t *testing.T) {
		snap := ContractSnapshot(docID)
		snap.Version = 4
		snap.Partitions[0].Nodes = snap.Partitions[0].Nodes[1:]
		require.NoError(t, store.Save(ctx, snap))

		loaded, err := store.Load(ctx, docID)
		require.NoError(t, err)
		assert.Equal(t, 4, loaded.Version)
		require.Len(t, loaded.Partitions, 1)
		assert.Len(t, loaded.Partitions[0].Nodes, 1)
	})

	t.Run("Load Non-Existent", func(t *testing.T) {
		_, err := store.Load(ctx, "non-existent-"+docID)
		assert.ErrorIs(t, err, domain.ErrDocumentNotFound)
	})

	t.Run("Delete", func(t *testing.T) {
		err := store.Save(ctx, ContractSnapshot(docID))
		require.NoError(t, err)

		err = store.Delete(ctx, docID)
		require.NoError(t, err, "Delete should not return error")

		_, err = store.Load(ctx, docID)
		assert.ErrorIs(t, err, domain.ErrDocumentNotFound, "Load after Delete should return ErrDocumentNotFound")
	})

	t.Run("List", func(t *testing.T) {
		id1 := docID + "-1"
		id2 := docID + "-2"
		_ = store.Save(ctx, ContractSnapshot(id1))
		_ = store.Save(ctx, ContractSnapshot(id2))

		defer func() {
			_ = store.Delete(ctx, id1)
			_ = store.Delete(ctx, id2)
		}()

		docs, err := store.List(ctx)
		require.NoError(t, err)
		assert.Contains(t, docs, id1)
		assert.Contains(t, docs, id2)
	})
}

// AssertSnapshotsEqual compares two snapshots value by value, using Value.Equal for payloads.
func AssertSnapshotsEqual(t *testing.T, want, got *domain.Snapshot) {
	t.Helper()
	require.NotNil(t, got)
	assert.Equal(t, want.ID, got.ID)
	assert.Equal(t, want.Version, got.Version)
	require.Len(t, got.Partitions, len(want.Partitions))

	for pi, wp := range want.Partitions {
		gp := got.Partitions[pi]
		assert.Equal(t, wp.Type, gp.Type)
		assert.Equal(t, wp.Next, gp.Next)
		require.Len(t, gp.Nodes, len(wp.Nodes))
		for ni, wn := range wp.Nodes {
			gn := gp.Nodes[ni]
			assert.Equal(t, wn.Ordinal, gn.Ordinal)
			assert.Equal(t, wn.Name, gn.Name)
			assert.Equal(t, len(wn.Children), len(gn.Children))
			for i := range wn.Children {
				assert.Equal(t, wn.Children[i], gn.Children[i])
			}
			require.Len(t, gn.Params, len(wn.Params))
			for i, wparam := range wn.Params {
				gparam := gn.Params[i]
				assert.Equal(t, wparam.Index, gparam.Index)
				assert.Equal(t, wparam.Name, gparam.Name)
				assert.Equal(t, wparam.Kind, gparam.Kind)
				assert.Equal(t, wparam.Stale, gparam.Stale, "stale flag of %s", wparam.Name)
				assert.Equal(t, wparam.Evaluation, gparam.Evaluation, "evaluation of %s", wparam.Name)
				if wparam.Value == nil {
					assert.Nil(t, gparam.Value, "value of %s should be unset", wparam.Name)
					continue
				}
				require.NotNil(t, gparam.Value, "value of %s should be set", wparam.Name)
				assert.True(t, wparam.Value.Equal(*gparam.Value),
					"value of %s: want %s, got %s", wparam.Name, wparam.Value, gparam.Value)
			}
		}
	}
}
