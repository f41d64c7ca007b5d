package registry_test

import (
	"context"
	"testing"

	"github.com/aretw0/actdata/pkg/domain"
	"github.com/aretw0/actdata/pkg/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func boxType() registry.NodeType {
	return registry.NodeType{
		ID: "Box",
		Params: []registry.ParamDecl{
			{Index: 0, Name: "width", Kind: domain.KindReal, Expressible: true},
			{Index: 1, Name: "height", Kind: domain.KindReal},
		},
	}
}

func TestRegisterType(t *testing.T) {
	reg := registry.NewRegistry()
	require.NoError(t, reg.RegisterType(boxType()))

	got, err := reg.Type("Box")
	require.NoError(t, err)
	decl, ok := got.ParamByName("height")
	require.True(t, ok)
	assert.Equal(t, domain.ParamIndex(1), decl.Index)

	_, ok = got.Param(5)
	assert.False(t, ok)

	assert.Error(t, reg.RegisterType(boxType()), "types register once")

	_, err = reg.Type("Missing")
	assert.ErrorIs(t, err, domain.ErrUnknownType)
}

func TestRegisterType_RejectsBadLayouts(t *testing.T) {
	tests := []struct {
		name string
		typ  registry.NodeType
	}{
		{"Missing ID", registry.NodeType{}},
		{"Index Gap", registry.NodeType{ID: "T", Params: []registry.ParamDecl{{Index: 1, Name: "a", Kind: domain.KindInt}}}},
		{"Duplicate Name", registry.NodeType{ID: "T", Params: []registry.ParamDecl{
			{Index: 0, Name: "a", Kind: domain.KindInt},
			{Index: 1, Name: "a", Kind: domain.KindInt},
		}}},
		{"Invalid Kind", registry.NodeType{ID: "T", Params: []registry.ParamDecl{{Index: 0, Name: "a"}}}},
		{"Expressible Group", registry.NodeType{ID: "T", Params: []registry.ParamDecl{
			{Index: 0, Name: "a", Kind: domain.KindGroup, Expressible: true},
		}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, registry.NewRegistry().RegisterType(tt.typ))
		})
	}
}

func TestTypeRank_FollowsRegistrationOrder(t *testing.T) {
	reg := registry.NewRegistry()
	reg.MustRegisterType(registry.NodeType{ID: "Zeta"})
	reg.MustRegisterType(registry.NodeType{ID: "Alpha"})

	assert.Equal(t, 0, reg.TypeRank("Zeta"))
	assert.Equal(t, 1, reg.TypeRank("Alpha"))
	assert.Equal(t, -1, reg.TypeRank("Nope"))
	assert.Equal(t, []domain.TypeID{"Zeta", "Alpha"}, reg.Types())
}

func TestFunctions(t *testing.T) {
	reg := registry.NewRegistry()
	called := false
	reg.RegisterFunction("noop", registry.TreeFunctionFunc(func(ctx context.Context, fc registry.FunctionContext) error {
		called = true
		return nil
	}))

	fn, err := reg.Function("noop")
	require.NoError(t, err)
	require.NoError(t, fn.Execute(context.Background(), nil))
	assert.True(t, called)
	assert.True(t, reg.HasFunction("noop"))
	assert.Equal(t, []domain.FunctionID{"noop"}, reg.Functions())

	_, err = reg.Function("missing")
	assert.ErrorIs(t, err, domain.ErrUnknownFunction)
}

func TestConversions(t *testing.T) {
	reg := registry.NewRegistry(registry.WithVersion(3))
	assert.Equal(t, 3, reg.CurrentVersion())

	noop := func(ctx context.Context, snap *domain.Snapshot, prov *domain.Provenance) error { return nil }
	require.NoError(t, reg.RegisterConversion(1, "first", noop))
	require.NoError(t, reg.RegisterConversion(2, "second", noop))

	assert.Error(t, reg.RegisterConversion(2, "again", noop), "duplicate step")
	assert.Error(t, reg.RegisterConversion(3, "beyond", noop), "current version has no successor")
	assert.Error(t, reg.RegisterConversion(0, "before", noop))

	c, ok := reg.Conversion(2)
	require.True(t, ok)
	assert.Equal(t, 3, c.To)
	assert.Equal(t, "second", c.Description)
}
