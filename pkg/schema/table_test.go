package schema

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/aretw0/actdata/pkg/domain"
	"github.com/aretw0/actdata/pkg/registry"
)

const boxTable = `
version: 2
types:
  - id: Box
    params:
      - name: general
        kind: group
      - name: width
        kind: real
        expressible: true
        default: 1
      - name: label
        kind: string
        default: lid
  - id: Shelf
    params:
      - name: boxes
        kind: reference_list
`

func TestParse_Success(t *testing.T) {
	table, err := Parse([]byte(boxTable))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if table.Version != 2 {
		t.Errorf("Version = %d, want 2", table.Version)
	}

	reg, err := table.NewRegistry()
	if err != nil {
		t.Fatalf("NewRegistry() error = %v", err)
	}
	if reg.CurrentVersion() != 2 {
		t.Errorf("registry version = %d, want 2", reg.CurrentVersion())
	}
	box, err := reg.Type("Box")
	if err != nil {
		t.Fatalf("Type(Box) error = %v", err)
	}
	width, ok := box.ParamByName("width")
	if !ok || width.Index != 1 || width.Kind != domain.KindReal || !width.Expressible {
		t.Errorf("width declaration = %+v", width)
	}

	defaults, err := table.Defaults()
	if err != nil {
		t.Fatalf("Defaults() error = %v", err)
	}
	if got := defaults["Box"][1]; !got.Equal(domain.RealValue(1)) {
		t.Errorf("width default = %s, want 1", got)
	}
	if got := defaults["Box"][2]; got.Str != "lid" {
		t.Errorf("label default = %s, want lid", got)
	}
	if _, ok := defaults["Shelf"]; ok {
		t.Error("Shelf declares no defaults")
	}
}

func TestParse_Failures(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantKey string
	}{
		{"unknown kind", "types:\n  - id: A\n    params:\n      - {name: x, kind: complex}\n", "types[0].params[0].kind"},
		{"missing id", "types:\n  - params: []\n", "types[0].id"},
		{"duplicate params", "types:\n  - id: A\n    params:\n      - {name: x, kind: int}\n      - {name: x, kind: real}\n", "types[0].params"},
		{"bad version", "version: 0\ntypes:\n  - id: A\n", "version"},
		{"no types", "version: 1\n", "types"},
		{"bad default", "types:\n  - id: A\n    params:\n      - {name: x, kind: int, default: 1.5}\n", "types[0].params[0].default"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.input))
			if err == nil {
				t.Fatal("Parse() should fail")
			}
			errs := ValidationErrors(err)
			if len(errs) == 0 {
				t.Fatalf("expected validation errors, got %v", err)
			}
			var verr *ValidationError
			if !errors.As(errs[0], &verr) {
				t.Fatalf("error should be *ValidationError, got %T", errs[0])
			}
			if verr.Key != tt.wantKey {
				t.Errorf("Key = %q, want %q", verr.Key, tt.wantKey)
			}
		})
	}

	if _, err := Parse([]byte("types:\n  - id: A\n    colour: red\n")); err == nil {
		t.Error("unknown keys should be rejected")
	}
	if _, err := Parse([]byte("")); err == nil {
		t.Error("an empty document should be rejected")
	}
}

func TestTable_RoundTripThroughRegistry(t *testing.T) {
	reg := registry.NewRegistry(registry.WithVersion(3))
	reg.MustRegisterType(registry.NodeType{ID: "Box", Params: []registry.ParamDecl{
		{Index: 0, Name: "w", Kind: domain.KindReal, Expressible: true},
		{Index: 1, Name: "fn", Kind: domain.KindTreeFunction},
	}})

	table, err := FromRegistry(reg)
	if err != nil {
		t.Fatalf("FromRegistry() error = %v", err)
	}
	data, err := table.Marshal()
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	if !strings.Contains(string(data), "kind: tree_function") {
		t.Errorf("marshalled table lacks kind names:\n%s", data)
	}

	path := filepath.Join(t.TempDir(), "types.yaml")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	again, err := loaded.NewRegistry()
	if err != nil {
		t.Fatalf("NewRegistry() error = %v", err)
	}
	got, _ := again.Type("Box")
	want, _ := reg.Type("Box")
	if len(got.Params) != len(want.Params) || got.Params[1] != want.Params[1] || again.CurrentVersion() != 3 {
		t.Errorf("round trip = %+v (v%d), want %+v (v3)", got, again.CurrentVersion(), want)
	}

	if err := loaded.Apply(again); err == nil {
		t.Error("applying a table twice must fail on duplicate types")
	}
}
