package domain

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGID_ParseRoundTrip(t *testing.T) {
	gid := GID{Node: NodeID{Type: "Mesh", Ordinal: 12}, Param: 3}
	assert.Equal(t, "Mesh:12#3", gid.String())

	parsed, err := ParseGID(gid.String())
	require.NoError(t, err)
	assert.Equal(t, gid, parsed)

	for _, bad := range []string{"", "Mesh", "Mesh:0#1", "Mesh:1#", "Mesh:x#1", ":1#1", "Mesh:1#-2"} {
		_, err := ParseGID(bad)
		assert.Error(t, err, "expected %q to be rejected", bad)
	}
}

func TestValueKind_TextRoundTrip(t *testing.T) {
	for _, k := range Kinds() {
		text, err := k.MarshalText()
		require.NoError(t, err)

		var back ValueKind
		require.NoError(t, back.UnmarshalText(text))
		assert.Equal(t, k, back)
	}

	var k ValueKind
	assert.Error(t, k.UnmarshalText([]byte("invalid")))
}

func TestValue_CloneIsDeep(t *testing.T) {
	v := RealArrayValue(1, 2, 3)
	c := v.Clone()
	c.Reals[0] = 42
	assert.Equal(t, 1.0, v.Reals[0])

	b := FunctionValue(FunctionBinding{Function: "f", Inputs: []GID{{Param: 1}}})
	cb := b.Clone()
	cb.Binding.Inputs[0].Param = 9
	assert.Equal(t, ParamIndex(1), b.Binding.Inputs[0].Param)
}

func TestValue_JSONPreservesEquality(t *testing.T) {
	ref := NodeID{Type: "Box", Ordinal: 2}
	values := []Value{
		BoolValue(true),
		IntValue(-7),
		RealValue(3.25),
		StringValue("hello"),
		IntArrayValue(1, 2),
		RealArrayValue(0.5),
		StringArrayValue("a", "b"),
		TimestampValue(time.Date(2024, 5, 1, 12, 0, 0, 42, time.UTC)),
		ReferenceValue(ref),
		ReferenceListValue(ref, NodeID{Type: "Box", Ordinal: 3}),
		ShapeValue([]byte{0xde, 0xad}),
		FunctionValue(FunctionBinding{
			Function: "sum",
			Inputs:   []GID{ref.Param(0)},
			Outputs:  []GID{ref.Param(1)},
			Priority: PriorityHigh,
		}),
	}

	for _, v := range values {
		t.Run(v.Kind.String(), func(t *testing.T) {
			data, err := json.Marshal(v)
			require.NoError(t, err)

			var back Value
			require.NoError(t, json.Unmarshal(data, &back))
			assert.True(t, v.Equal(back), "round trip changed %s: %s", v.Kind, data)
		})
	}
}

func TestProvenance_CollapsesChains(t *testing.T) {
	box := NodeID{Type: "Box", Ordinal: 1}
	p := NewProvenance()
	p.Record(box.Param(1), box.Param(2))
	p.Record(box.Param(2), box.Param(4))

	got, ok := p.Resolve(box.Param(1))
	require.True(t, ok)
	assert.Equal(t, box.Param(4), got)
	assert.Equal(t, 1, p.Len())
}
