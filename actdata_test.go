package actdata_test

import (
	"context"
	"testing"

	"github.com/aretw0/actdata"
	"github.com/aretw0/actdata/pkg/adapters/memory"
	"github.com/aretw0/actdata/pkg/conversion"
	"github.com/aretw0/actdata/pkg/document"
	"github.com/aretw0/actdata/pkg/domain"
	"github.com/aretw0/actdata/pkg/registry"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var box1 = domain.NodeID{Type: "Box", Ordinal: 1}

// legacyBox is a Box stored before depth was added.
func legacyBox(id string) *domain.Snapshot {
	width := domain.RealValue(3)
	return &domain.Snapshot{
		ID:      id,
		Version: 1,
		Partitions: []domain.PartitionSnapshot{{
			Type: "Box",
			Next: 2,
			Nodes: []domain.NodeSnapshot{{
				Ordinal: 1,
				Params:  []domain.ParamSnapshot{{Index: 0, Name: "width", Kind: domain.KindReal, Value: &width}},
			}},
		}},
	}
}

func depthRegistry(t *testing.T) *registry.Registry {
	t.Helper()
	reg := registry.NewRegistry(registry.WithVersion(2))
	reg.MustRegisterType(registry.NodeType{ID: "Box", Params: []registry.ParamDecl{
		{Index: 0, Name: "width", Kind: domain.KindReal},
		{Index: 1, Name: "depth", Kind: domain.KindReal},
	}})
	depth := domain.RealValue(0.5)
	require.NoError(t, reg.RegisterConversion(1, "add depth", func(ctx context.Context, snap *domain.Snapshot, prov *domain.Provenance) error {
		return conversion.AppendParameter(snap, prov, "Box", conversion.ParamSpec{Name: "depth", Kind: domain.KindReal, Default: &depth})
	}))
	return reg
}

func TestNew_RequiresRegistry(t *testing.T) {
	_, err := actdata.New(nil)
	require.Error(t, err)
}

func TestEngine_Convert(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	require.NoError(t, store.Save(ctx, legacyBox("old")))

	eng, err := actdata.New(depthRegistry(t), actdata.WithStore(store))
	require.NoError(t, err)

	t.Run("Dry run", func(t *testing.T) {
		res, err := eng.Convert(ctx, "old", false)
		require.NoError(t, err)
		assert.True(t, res.Converted())
		assert.False(t, res.Written)
		assert.Equal(t, 1, res.From)
		assert.Equal(t, 2, res.To)
		require.NotNil(t, res.Diff)
		require.Len(t, res.Diff.Params, 1)
		assert.Equal(t, box1.Param(1), res.Diff.Params[0].GID)

		stored, err := store.Load(ctx, "old")
		require.NoError(t, err)
		assert.Equal(t, 1, stored.Version, "a dry run leaves the store alone")
	})

	t.Run("Write", func(t *testing.T) {
		res, err := eng.Convert(ctx, "old", true)
		require.NoError(t, err)
		assert.True(t, res.Written)

		stored, err := store.Load(ctx, "old")
		require.NoError(t, err)
		assert.Equal(t, 2, stored.Version)

		again, err := eng.Convert(ctx, "old", true)
		require.NoError(t, err)
		assert.False(t, again.Converted())
		assert.False(t, again.Written)
	})

	t.Run("Missing document", func(t *testing.T) {
		_, err := eng.Convert(ctx, "nope", false)
		require.ErrorIs(t, err, domain.ErrDocumentNotFound)
	})
}

func TestEngine_OpenConverts(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	require.NoError(t, store.Save(ctx, legacyBox("old")))

	eng, err := actdata.New(depthRegistry(t), actdata.WithStore(store), actdata.WithPersistConversions())
	require.NoError(t, err)

	doc, err := eng.Open(ctx, "old")
	require.NoError(t, err)
	assert.Equal(t, 2, doc.Version())
	node, err := doc.Node(box1)
	require.NoError(t, err)
	v, ok := node.Value(1)
	require.True(t, ok)
	assert.Equal(t, 0.5, v.Real)

	stored, err := store.Load(ctx, "old")
	require.NoError(t, err)
	assert.Equal(t, 2, stored.Version, "opening persists the conversion")
}

func TestEngine_UpdateReportsAndMetrics(t *testing.T) {
	ctx := context.Background()
	metrics := prometheus.NewRegistry()
	var commits []string
	eng, err := actdata.New(boxRegistry(),
		actdata.WithExpressions(),
		actdata.WithMetricsRegisterer(metrics),
		actdata.WithUndoLimit(4),
		actdata.WithLifecycleHooks(domain.LifecycleHooks{
			OnCommit: func(_ context.Context, ev *domain.TransactionEvent) {
				commits = append(commits, ev.Name)
			},
		}),
	)
	require.NoError(t, err)

	_, err = eng.Create(ctx, "boxes")
	require.NoError(t, err)
	report, err := eng.Update(ctx, "boxes", "add box", func(doc *document.Document) error {
		_, err := addSquare(doc, 3)
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, []domain.GID{box1.Param(2)}, report.Executed())
	assert.Equal(t, []string{"add box"}, commits)

	n, err := testutil.GatherAndCount(metrics, "actdata_function_runs_total")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = eng.Update(ctx, "boxes", "loop", func(doc *document.Document) error {
		fn, err := doc.Parameter(box1.Param(2))
		if err != nil {
			return err
		}
		return fn.SetValue(domain.FunctionValue(domain.FunctionBinding{
			Function: "expr",
			Inputs:   []domain.GID{box1.Param(1)},
			Outputs:  []domain.GID{box1.Param(1)},
		}))
	})
	require.ErrorIs(t, err, domain.ErrCyclicDependency)

	doc, err := eng.Open(ctx, "boxes")
	require.NoError(t, err)
	assert.Equal(t, 9.0, readReal(doc, box1.Param(1)), "a rejected commit stores nothing")
	assert.Equal(t, eng.Registry(), doc.Registry())
}
