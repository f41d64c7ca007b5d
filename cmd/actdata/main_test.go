package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/aretw0/actdata/internal/adapters/file"
	"github.com/aretw0/actdata/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const depthTypes = `
version: 2
types:
  - id: Box
    params:
      - {name: width, kind: real}
      - {name: depth, kind: real}
conversions:
  - from: 1
    description: add depth
    steps:
      - {op: insert, type: Box, at: 1, name: depth, kind: real, default: 0.5}
`

// setup writes a config over a file store holding one version 1 document, "old".
func setup(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	docs := filepath.Join(dir, "docs")
	types := filepath.Join(dir, "types.yaml")
	require.NoError(t, os.WriteFile(types, []byte(depthTypes), 0o644))

	cfg := filepath.Join(dir, "actdata.yaml")
	require.NoError(t, os.WriteFile(cfg, []byte(`
log: {level: error}
store: {type: file, path: `+docs+`}
types: `+types+`
`), 0o644))

	width := domain.RealValue(2)
	require.NoError(t, file.New(docs).Save(context.Background(), &domain.Snapshot{
		ID:      "old",
		Version: 1,
		Partitions: []domain.PartitionSnapshot{{
			Type:  "Box",
			Next:  2,
			Nodes: []domain.NodeSnapshot{{Ordinal: 1, Params: []domain.ParamSnapshot{{Index: 0, Name: "width", Kind: domain.KindReal, Value: &width}}}},
		}},
	}))
	return cfg
}

// run executes the CLI. Flags keep their values between runs, so callers spell out every flag.
func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	t.Cleanup(func() { rootCmd.SetArgs(nil) })
	err := rootCmd.Execute()
	return out.String(), err
}

func TestCLI_ConvertLifecycle(t *testing.T) {
	cfg := setup(t)

	out, err := run(t, "convert", "--config", cfg, "--write=false", "--diff=true")
	require.NoError(t, err)
	assert.Contains(t, out, "old: 1 -> 2 add depth")
	assert.Contains(t, out, "+ Box:1#1 = 0.5")
	assert.Contains(t, out, "old: converts to version 2 (not stored)")

	out, err = run(t, "validate", "--config", cfg)
	require.NoError(t, err)
	assert.Contains(t, out, "types: 1 types at version 2")
	assert.Contains(t, out, "old: valid")

	out, err = run(t, "convert", "old", "--config", cfg, "--write=true", "--diff=false")
	require.NoError(t, err)
	assert.Contains(t, out, "old: stored at version 2")

	out, err = run(t, "convert", "--config", cfg, "--write=true", "--diff=false")
	require.NoError(t, err)
	assert.Contains(t, out, "old: up to date (version 2)")

	out, err = run(t, "inspect", "old", "Box:1", "--config", cfg, "--json=false")
	require.NoError(t, err)
	assert.Contains(t, out, "old: version 2, 1 node(s)")
	var depth string
	for _, line := range strings.Split(out, "\n") {
		if strings.Contains(line, "depth") {
			depth = line
		}
	}
	assert.Contains(t, depth, "0.5")

	out, err = run(t, "graph", "old", "--config", cfg, "--run=false")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "graph TD"))
}

func TestCLI_Errors(t *testing.T) {
	cfg := setup(t)

	_, err := run(t, "inspect", "missing", "--config", cfg, "--json=false")
	require.ErrorIs(t, err, domain.ErrDocumentNotFound)

	_, err = run(t, "inspect", "old", "Box", "--config", cfg, "--json=false")
	require.Error(t, err)

	_, err = run(t, "validate", "--config", filepath.Join(t.TempDir(), "none.yaml"))
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestCLI_Version(t *testing.T) {
	out, err := run(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "actdata version 0.1.0\n", out)
}
