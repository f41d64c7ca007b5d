package conversion_test

import (
	"context"
	"errors"
	"testing"

	"github.com/aretw0/actdata/pkg/conversion"
	"github.com/aretw0/actdata/pkg/document"
	"github.com/aretw0/actdata/pkg/domain"
	"github.com/aretw0/actdata/pkg/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr(v domain.Value) *domain.Value { return &v }

var box1 = domain.NodeID{Type: "Box", Ordinal: 1}

// v1Snapshot has Box{width, height, scale} where scale binds width -> height.
func v1Snapshot() *domain.Snapshot {
	scale := domain.FunctionValue(domain.FunctionBinding{
		Function: "scale",
		Inputs:   []domain.GID{box1.Param(0)},
		Outputs:  []domain.GID{box1.Param(1)},
	})
	return &domain.Snapshot{
		ID:      "legacy",
		Version: 1,
		Partitions: []domain.PartitionSnapshot{{
			Type: "Box",
			Next: 2,
			Nodes: []domain.NodeSnapshot{{
				Ordinal: 1,
				Params: []domain.ParamSnapshot{
					{Index: 0, Name: "width", Kind: domain.KindReal, Value: ptr(domain.RealValue(2))},
					{Index: 1, Name: "height", Kind: domain.KindReal, Value: ptr(domain.RealValue(4))},
					{Index: 2, Name: "scale", Kind: domain.KindTreeFunction, Value: &scale},
				},
			}},
		}},
	}
}

// newRegistry is at version 3: v1->v2 inserts depth at index 1, v2->v3 renames Box to Cuboid.
func newRegistry(t *testing.T) *registry.Registry {
	t.Helper()
	reg := registry.NewRegistry(registry.WithVersion(3))
	reg.MustRegisterType(registry.NodeType{
		ID: "Cuboid",
		Params: []registry.ParamDecl{
			{Index: 0, Name: "width", Kind: domain.KindReal},
			{Index: 1, Name: "depth", Kind: domain.KindReal},
			{Index: 2, Name: "height", Kind: domain.KindReal},
			{Index: 3, Name: "scale", Kind: domain.KindTreeFunction},
		},
	})
	reg.RegisterFunction("scale", registry.TreeFunctionFunc(func(ctx context.Context, fc registry.FunctionContext) error {
		return nil
	}))
	require.NoError(t, reg.RegisterConversion(1, "add depth", func(ctx context.Context, snap *domain.Snapshot, prov *domain.Provenance) error {
		return conversion.InsertParameter(snap, prov, "Box", 1, conversion.ParamSpec{
			Name: "depth", Kind: domain.KindReal, Default: ptr(domain.RealValue(1)),
		})
	}))
	require.NoError(t, reg.RegisterConversion(2, "rename Box", func(ctx context.Context, snap *domain.Snapshot, prov *domain.Provenance) error {
		return conversion.RenameType(snap, prov, "Box", "Cuboid")
	}))
	return reg
}

func TestPipeline_UpgradesInOrder(t *testing.T) {
	reg := newRegistry(t)
	legacy := v1Snapshot()

	res, err := conversion.NewPipeline(reg).Apply(context.Background(), legacy)
	require.NoError(t, err)

	assert.True(t, res.Converted())
	assert.Equal(t, 1, res.From)
	assert.Equal(t, 3, res.To)
	require.Len(t, res.Steps, 2)
	assert.Equal(t, "add depth", res.Steps[0].Description)

	out := res.Snapshot
	assert.Equal(t, 3, out.Version)
	require.Nil(t, out.Partition("Box"))
	cuboid := domain.NodeID{Type: "Cuboid", Ordinal: 1}

	depth := out.Param(cuboid.Param(1))
	require.NotNil(t, depth)
	assert.Equal(t, "depth", depth.Name)
	assert.Equal(t, 1.0, depth.Value.Real)

	scale := out.Param(cuboid.Param(3))
	require.NotNil(t, scale)
	assert.Equal(t, []domain.GID{cuboid.Param(0)}, scale.Value.Binding.Inputs)
	assert.Equal(t, []domain.GID{cuboid.Param(2)}, scale.Value.Binding.Outputs)

	now, ok := res.Provenance.Resolve(box1.Param(1))
	require.True(t, ok)
	assert.Equal(t, cuboid.Param(2), now, "height moved twice")
	now, ok = res.Provenance.Resolve(box1.Param(0))
	require.True(t, ok)
	assert.Equal(t, cuboid.Param(0), now)

	assert.Equal(t, v1Snapshot(), legacy, "the input snapshot is untouched")

	doc, err := document.FromSnapshot(reg, out)
	require.NoError(t, err)
	p, err := doc.Parameter(cuboid.Param(2))
	require.NoError(t, err)
	v, err := p.GetValue()
	require.NoError(t, err)
	assert.Equal(t, 4.0, v.Real)
}

func TestPipeline_IsIdempotent(t *testing.T) {
	pipe := conversion.NewPipeline(newRegistry(t))
	first, err := pipe.Apply(context.Background(), v1Snapshot())
	require.NoError(t, err)
	assert.False(t, pipe.NeedsConversion(first.Snapshot))

	second, err := pipe.Apply(context.Background(), first.Snapshot)
	require.NoError(t, err)
	assert.False(t, second.Converted())
	assert.Equal(t, first.Snapshot, second.Snapshot)
	assert.NotSame(t, first.Snapshot, second.Snapshot)
}

func TestPipeline_Failures(t *testing.T) {
	t.Run("Newer than supported", func(t *testing.T) {
		snap := v1Snapshot()
		snap.Version = 9
		_, err := conversion.NewPipeline(newRegistry(t)).Apply(context.Background(), snap)
		require.ErrorIs(t, err, domain.ErrConversionFailed)
		var convErr *domain.ConversionError
		require.ErrorAs(t, err, &convErr)
		assert.Equal(t, 9, convErr.From)
	})

	t.Run("Missing routine", func(t *testing.T) {
		reg := registry.NewRegistry(registry.WithVersion(3))
		require.NoError(t, reg.RegisterConversion(1, "noop", func(context.Context, *domain.Snapshot, *domain.Provenance) error { return nil }))
		_, err := conversion.NewPipeline(reg).Apply(context.Background(), v1Snapshot())
		var convErr *domain.ConversionError
		require.ErrorAs(t, err, &convErr)
		assert.Equal(t, 2, convErr.From)
	})

	t.Run("Routine error leaves input intact", func(t *testing.T) {
		boom := errors.New("boom")
		reg := registry.NewRegistry(registry.WithVersion(2))
		require.NoError(t, reg.RegisterConversion(1, "half done", func(ctx context.Context, snap *domain.Snapshot, prov *domain.Provenance) error {
			snap.Partitions[0].Nodes[0].Name = "mutated"
			return boom
		}))
		legacy := v1Snapshot()
		_, err := conversion.NewPipeline(reg).Apply(context.Background(), legacy)
		require.ErrorIs(t, err, domain.ErrConversionFailed)
		require.ErrorIs(t, err, boom)
		assert.Equal(t, v1Snapshot(), legacy)
	})

	t.Run("Cancelled context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := conversion.NewPipeline(newRegistry(t)).Apply(ctx, v1Snapshot())
		require.ErrorIs(t, err, context.Canceled)
	})
}

func TestRemoveParameter(t *testing.T) {
	t.Run("Refuses a referenced parameter", func(t *testing.T) {
		snap := v1Snapshot()
		err := conversion.RemoveParameter(snap, domain.NewProvenance(), "Box", 0)
		require.ErrorIs(t, err, domain.ErrDanglingReference)
	})

	t.Run("Shifts later parameters down", func(t *testing.T) {
		snap := v1Snapshot()
		prov := domain.NewProvenance()
		require.NoError(t, conversion.RemoveParameter(snap, prov, "Box", 2))
		require.NoError(t, conversion.RemoveParameter(snap, prov, "Box", 0))

		params := snap.Node(box1).Params
		require.Len(t, params, 1)
		assert.Equal(t, "height", params[0].Name)
		assert.Equal(t, domain.ParamIndex(0), params[0].Index)
		now, ok := prov.Resolve(box1.Param(1))
		require.True(t, ok)
		assert.Equal(t, box1.Param(0), now)
	})
}

func TestMoveParameter(t *testing.T) {
	snap := v1Snapshot()
	prov := domain.NewProvenance()
	require.NoError(t, conversion.MoveParameter(snap, prov, "Box", 2, 0))

	params := snap.Node(box1).Params
	assert.Equal(t, []string{"scale", "width", "height"}, []string{params[0].Name, params[1].Name, params[2].Name})
	binding := params[0].Value.Binding
	assert.Equal(t, []domain.GID{box1.Param(1)}, binding.Inputs)
	assert.Equal(t, []domain.GID{box1.Param(2)}, binding.Outputs)
	assert.Equal(t, 3, prov.Len())

	require.Error(t, conversion.MoveParameter(snap, prov, "Box", 0, 3))
}

func TestInsertParameter_Validation(t *testing.T) {
	snap := v1Snapshot()
	prov := domain.NewProvenance()

	err := conversion.InsertParameter(snap, prov, "Box", 0, conversion.ParamSpec{
		Name: "depth", Kind: domain.KindReal, Default: ptr(domain.IntValue(1)),
	})
	require.ErrorIs(t, err, domain.ErrTypeMismatch)

	err = conversion.InsertParameter(snap, prov, "Box", 0, conversion.ParamSpec{Name: "width", Kind: domain.KindReal})
	require.Error(t, err)

	err = conversion.InsertParameter(snap, prov, "Box", 7, conversion.ParamSpec{Name: "x", Kind: domain.KindReal})
	require.ErrorIs(t, err, domain.ErrUnknownParameterID)

	require.NoError(t, conversion.AppendParameter(snap, prov, "Box", conversion.ParamSpec{Name: "label", Kind: domain.KindString}))
	label := snap.Param(box1.Param(3))
	require.NotNil(t, label)
	assert.Nil(t, label.Value)
	assert.Zero(t, prov.Len())

	require.NoError(t, conversion.InsertParameter(snap, prov, "Missing", 0, conversion.ParamSpec{Name: "x", Kind: domain.KindReal}))
}

func TestRenameType_RewritesReferences(t *testing.T) {
	snap := v1Snapshot()
	snap.Partitions = append(snap.Partitions, domain.PartitionSnapshot{
		Type: "Link",
		Next: 2,
		Nodes: []domain.NodeSnapshot{{
			Ordinal:  1,
			Children: []domain.NodeID{box1},
			Params: []domain.ParamSnapshot{
				{Index: 0, Name: "target", Kind: domain.KindReference, Value: ptr(domain.ReferenceValue(box1))},
				{Index: 1, Name: "all", Kind: domain.KindReferenceList, Value: ptr(domain.ReferenceListValue(box1))},
			},
		}},
	})

	require.NoError(t, conversion.RenameType(snap, domain.NewProvenance(), "Box", "Crate"))
	crate := domain.NodeID{Type: "Crate", Ordinal: 1}
	link := snap.Node(domain.NodeID{Type: "Link", Ordinal: 1})
	require.NotNil(t, link)
	assert.Equal(t, []domain.NodeID{crate}, link.Children)
	assert.Equal(t, crate, link.Params[0].Value.Ref)
	assert.Equal(t, []domain.NodeID{crate}, link.Params[1].Value.Refs)

	err := conversion.RenameType(snap, domain.NewProvenance(), "Crate", "Link")
	require.Error(t, err)
}
