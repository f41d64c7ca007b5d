package cli

import (
	"bytes"
	"context"
	"encoding/base64"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/aretw0/actdata/internal/config"
	"github.com/aretw0/actdata/pkg/adapters/sqlite"
	"github.com/aretw0/actdata/pkg/document"
	"github.com/aretw0/actdata/pkg/domain"
	"github.com/aretw0/actdata/pkg/expr"
	"github.com/aretw0/actdata/pkg/persistence/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const boxTypes = `
version: 1
types:
  - id: Box
    params:
      - {name: width, kind: real}
      - {name: area, kind: real, expressible: true}
      - {name: owner, kind: string}
      - {name: fn, kind: tree_function}
`

var box1 = domain.NodeID{Type: "Box", Ordinal: 1}

func writeTypes(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "types.yaml")
	require.NoError(t, os.WriteFile(path, []byte(boxTypes), 0o644))
	return path
}

func quietApp(t *testing.T, cfg *config.Config) *App {
	t.Helper()
	logOutput = &bytes.Buffer{}
	t.Cleanup(func() { logOutput = os.Stderr })
	app, err := NewApp(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = app.Close() })
	return app
}

// seedBox stores a Box whose area is "width * 2", with width 3.
func seedBox(t *testing.T, app *App, id string) {
	t.Helper()
	ctx := context.Background()
	_, err := app.Sessions.Create(ctx, id)
	require.NoError(t, err)
	_, err = app.Sessions.Update(ctx, id, "seed", func(doc *document.Document) error {
		part, err := doc.Partition("Box")
		if err != nil {
			return err
		}
		node, err := part.AddNode()
		if err != nil {
			return err
		}
		width, _ := node.Parameter(0)
		if err := width.SetValue(domain.RealValue(3)); err != nil {
			return err
		}
		owner, _ := node.Parameter(2)
		if err := owner.SetValue(domain.StringValue("alice")); err != nil {
			return err
		}
		vars := []domain.Variable{{Name: "width", Source: box1.Param(0)}}
		area, _ := node.Parameter(1)
		if err := area.SetEvaluation("width * 2", vars...); err != nil {
			return err
		}
		eval, err := area.Evaluation()
		if err != nil {
			return err
		}
		fn, _ := node.Parameter(3)
		return fn.SetValue(domain.FunctionValue(expr.Binding(box1.Param(1), *eval)))
	})
	require.NoError(t, err)
}

func TestNewApp_Defaults(t *testing.T) {
	app := quietApp(t, config.Default())
	assert.Equal(t, 1, app.Registry.CurrentVersion())
	assert.True(t, app.Registry.HasFunction(expr.FunctionID))
	assert.Nil(t, app.Table)

	ids, err := app.Sessions.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestNewApp_ProcessFunctions(t *testing.T) {
	cfg := config.Default()
	cfg.Functions = []config.FunctionConfig{{Name: "volume", Command: "sh", Args: []string{"-c", "echo [1]"}}}
	app := quietApp(t, cfg)
	assert.True(t, app.Registry.HasFunction("volume"))
}

func TestNewApp_SQLiteWithMiddlewares(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "docs.db")
	cfg := config.Default()
	cfg.Types = writeTypes(t)
	cfg.Store = config.StoreConfig{
		Type:   config.StoreSQLite,
		Path:   dbPath,
		Redact: []string{"^owner$"},
		Encryption: config.EncryptionConfig{
			Key: base64.StdEncoding.EncodeToString([]byte(strings.Repeat("k", 32))),
		},
	}
	app := quietApp(t, cfg)
	require.NotNil(t, app.Table)
	seedBox(t, app, "boxes")

	doc, err := app.Sessions.Open(ctx, "boxes")
	require.NoError(t, err)
	area, err := doc.Parameter(box1.Param(1))
	require.NoError(t, err)
	v, err := area.GetValue()
	require.NoError(t, err)
	assert.Equal(t, 6.0, v.Real)

	owner, err := doc.Parameter(box1.Param(2))
	require.NoError(t, err)
	v, err = owner.GetValue()
	require.NoError(t, err)
	assert.Equal(t, middleware.Mask, v.Str)

	require.NoError(t, app.Close())
	raw, err := sqlite.NewStore(dbPath)
	require.NoError(t, err)
	defer raw.Close()
	snap, err := raw.Load(ctx, "boxes")
	require.NoError(t, err)
	assert.Empty(t, snap.Partitions, "the stored envelope hides every partition")
	assert.NotEmpty(t, snap.Meta[middleware.MetaEncrypted])
}

func TestNewApp_Backends(t *testing.T) {
	mr := miniredis.RunT(t)
	tests := []struct {
		name  string
		store config.StoreConfig
	}{
		{"File", config.StoreConfig{Type: config.StoreFile, Path: t.TempDir()}},
		{"Badger", config.StoreConfig{Type: config.StoreBadger, Path: t.TempDir()}},
		{"Redis with locking", config.StoreConfig{Type: config.StoreRedis, Address: mr.Addr(), Prefix: "test:", Lock: true}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			cfg.Types = writeTypes(t)
			cfg.Store = tt.store
			app := quietApp(t, cfg)
			seedBox(t, app, "shared")

			ids, err := app.Sessions.List(context.Background())
			require.NoError(t, err)
			assert.Equal(t, []string{"shared"}, ids)
		})
	}
}

func TestNewApp_Errors(t *testing.T) {
	cfg := config.Default()
	cfg.Types = filepath.Join(t.TempDir(), "missing.yaml")
	_, err := NewApp(cfg)
	require.Error(t, err)

	cfg = config.Default()
	cfg.Log.Level = "loud"
	_, err = NewApp(cfg)
	require.Error(t, err)
}

func TestPrinter_PlainOutput(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf)
	from, to := 1, 2
	old, updated := domain.RealValue(1), domain.RealValue(2)
	p.Diff(&domain.SnapshotDiff{
		Document:    "doc",
		FromVersion: &from,
		ToVersion:   &to,
		NodesAdded:  []domain.NodeID{box1},
		Params:      []domain.ParamDelta{{GID: box1.Param(0), Old: &old, New: &updated}},
	})
	p.Report(&domain.ExecutionReport{
		Document: "doc",
		Passes:   1,
		Runs:     []domain.FunctionRun{{Host: box1.Param(3), Function: "expr", Pass: 1, Status: domain.StatusFailed, Error: "boom"}},
	})

	out := buf.String()
	assert.NotContains(t, out, "\x1b[", "non-terminal writers get no escape codes")
	assert.Contains(t, out, "doc: version 1 -> 2")
	assert.Contains(t, out, "+ Box:1")
	assert.Contains(t, out, "~ Box:1#0: 1 -> 2")
	assert.Contains(t, out, "failed  boom")
}
