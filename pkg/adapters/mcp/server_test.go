package mcp

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/aretw0/actdata/internal/runtime"
	"github.com/aretw0/actdata/pkg/adapters/memory"
	"github.com/aretw0/actdata/pkg/document"
	"github.com/aretw0/actdata/pkg/domain"
	"github.com/aretw0/actdata/pkg/registry"
	"github.com/aretw0/actdata/pkg/session"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var box1 = domain.NodeID{Type: "Box", Ordinal: 1}

// newTestServer stores document "d" with one Box whose fn doubles width into double.
func newTestServer(t *testing.T) *Server {
	t.Helper()
	reg := registry.NewRegistry()
	reg.MustRegisterType(registry.NodeType{ID: "Box", Params: []registry.ParamDecl{
		{Index: 0, Name: "width", Kind: domain.KindReal},
		{Index: 1, Name: "double", Kind: domain.KindReal},
		{Index: 2, Name: "fn", Kind: domain.KindTreeFunction},
	}})
	reg.RegisterFunction("double", registry.TreeFunctionFunc(func(ctx context.Context, fc registry.FunctionContext) error {
		v, err := fc.Input(0)
		if err != nil {
			return err
		}
		return fc.SetOutput(0, domain.RealValue(v.Real*2))
	}))
	sessions := session.NewManager(memory.NewStore(), reg,
		session.WithDocumentOptions(document.WithExecutor(runtime.NewEngine())))

	ctx := context.Background()
	_, err := sessions.Create(ctx, "d")
	require.NoError(t, err)
	_, err = sessions.Update(ctx, "d", "seed", func(doc *document.Document) error {
		part, err := doc.Partition("Box")
		if err != nil {
			return err
		}
		node, err := part.AddNode()
		if err != nil {
			return err
		}
		width, _ := node.Parameter(0)
		if err := width.SetValue(domain.RealValue(2)); err != nil {
			return err
		}
		fn, _ := node.Parameter(2)
		return fn.SetValue(domain.FunctionValue(domain.FunctionBinding{
			Function: "double",
			Inputs:   []domain.GID{box1.Param(0)},
			Outputs:  []domain.GID{box1.Param(1)},
		}))
	})
	require.NoError(t, err)
	return NewServer(sessions)
}

func call(args map[string]any) mcp.CallToolRequest {
	var req mcp.CallToolRequest
	req.Params.Arguments = args
	return req
}

func text(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	require.NotEmpty(t, res.Content)
	tc, ok := res.Content[0].(mcp.TextContent)
	require.True(t, ok)
	return tc.Text
}

func TestServer_ListAndGraph(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	res, err := s.handleListDocuments(ctx, call(nil))
	require.NoError(t, err)
	assert.JSONEq(t, `["d"]`, text(t, res))

	res, err = s.handleGetGraph(ctx, call(map[string]any{"document": "d"}))
	require.NoError(t, err)
	assert.False(t, res.IsError)
	assert.Contains(t, text(t, res), `Box_1_2["Box:1#2 <br/> double"]`)

	res, err = s.handleGetGraph(ctx, call(map[string]any{"document": "missing"}))
	require.NoError(t, err)
	assert.True(t, res.IsError)
}

func TestServer_InspectNode(t *testing.T) {
	s := newTestServer(t)
	args := map[string]any{"document": "d", "node": "Box:1"}

	node, err := s.handleInspectNode(context.Background(), call(args), args)
	require.NoError(t, err)
	assert.Equal(t, "Box:1", node.ID)
	assert.Equal(t, 2.0, node.Values["width"])
	assert.Equal(t, 4.0, node.Values["double"])
	assert.Empty(t, node.Stale)

	args["node"] = "Box:9"
	_, err = s.handleInspectNode(context.Background(), call(args), args)
	assert.ErrorIs(t, err, domain.ErrOutOfRange)
}

func TestServer_SetParameters(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	args := map[string]any{"document": "d", "node": "Box:1", "values": `{"width": 5}`}
	res, err := s.handleSetParameters(ctx, call(args), args)
	require.NoError(t, err)
	assert.Equal(t, 10.0, res.Node.Values["double"])
	assert.Equal(t, []string{box1.Param(2).String()}, res.Executed)
	assert.Empty(t, res.Failed)

	tests := []struct {
		name   string
		values string
	}{
		{"Not JSON", `{`},
		{"Unknown parameter", `{"colour": 1}`},
		{"Wrong kind", `{"width": "wide"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := map[string]any{"document": "d", "node": "Box:1", "values": tt.values}
			_, err := s.handleSetParameters(ctx, call(args), args)
			assert.Error(t, err)
		})
	}

	args = map[string]any{"document": "d", "node": "Box:1"}
	node, err := s.handleInspectNode(ctx, call(args), args)
	require.NoError(t, err)
	assert.Equal(t, 5.0, node.Values["width"], "rejected writes leave the stored document alone")
}

func TestServer_RegistryInfo(t *testing.T) {
	s := newTestServer(t)
	info := s.registryInfo()
	assert.Equal(t, 1, info.Version)
	assert.Equal(t, []string{"width:real", "double:real", "fn:tree_function"}, info.Types["Box"])
	assert.Contains(t, info.Functions, "double")

	b, err := json.Marshal(info)
	require.NoError(t, err)
	assert.Contains(t, string(b), `"functions"`)
}
