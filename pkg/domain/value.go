package domain

import (
	"bytes"
	"fmt"
	"slices"
	"time"
)

// ValueKind is the declared kind of a Parameter's value slot.
type ValueKind uint8

const (
	KindInvalid ValueKind = iota
	KindBool
	KindInt
	KindReal
	KindString
	KindIntArray
	KindRealArray
	KindStringArray
	KindTimestamp
	KindReference
	KindReferenceList
	KindShape
	KindTreeFunction
	// KindGroup marks a structural section header. Group Parameters never hold a value.
	KindGroup
)

var kindNames = map[ValueKind]string{
	KindInvalid:       "invalid",
	KindBool:          "bool",
	KindInt:           "int",
	KindReal:          "real",
	KindString:        "string",
	KindIntArray:      "int_array",
	KindRealArray:     "real_array",
	KindStringArray:   "string_array",
	KindTimestamp:     "timestamp",
	KindReference:     "reference",
	KindReferenceList: "reference_list",
	KindShape:         "shape",
	KindTreeFunction:  "tree_function",
	KindGroup:         "group",
}

// Kinds lists every valid kind in declaration order.
func Kinds() []ValueKind {
	return []ValueKind{
		KindBool, KindInt, KindReal, KindString, KindIntArray, KindRealArray,
		KindStringArray, KindTimestamp, KindReference, KindReferenceList, KindShape,
		KindTreeFunction, KindGroup,
	}
}

func (k ValueKind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// ParseKind maps a kind name back to its ValueKind.
func ParseKind(s string) (ValueKind, error) {
	for k, name := range kindNames {
		if name == s && k != KindInvalid {
			return k, nil
		}
	}
	return KindInvalid, fmt.Errorf("unknown value kind %q", s)
}

func (k ValueKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

func (k *ValueKind) UnmarshalText(b []byte) error {
	parsed, err := ParseKind(string(b))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// Value is the tagged union stored in a Parameter. Only the field matching Kind is meaningful.
type Value struct {
	Kind    ValueKind        `json:"kind"`
	Bool    bool             `json:"bool,omitempty"`
	Int     int64            `json:"int,omitempty"`
	Real    float64          `json:"real,omitempty"`
	Str     string           `json:"str,omitempty"`
	Ints    []int64          `json:"ints,omitempty"`
	Reals   []float64        `json:"reals,omitempty"`
	Strs    []string         `json:"strs,omitempty"`
	Time    time.Time        `json:"time,omitempty"`
	Ref     NodeID           `json:"ref,omitempty"`
	Refs    []NodeID         `json:"refs,omitempty"`
	Shape   []byte           `json:"shape,omitempty"`
	Binding *FunctionBinding `json:"binding,omitempty"`
}

func BoolValue(b bool) Value             { return Value{Kind: KindBool, Bool: b} }
func IntValue(i int64) Value             { return Value{Kind: KindInt, Int: i} }
func RealValue(f float64) Value          { return Value{Kind: KindReal, Real: f} }
func StringValue(s string) Value         { return Value{Kind: KindString, Str: s} }
func IntArrayValue(v ...int64) Value     { return Value{Kind: KindIntArray, Ints: slices.Clone(v)} }
func RealArrayValue(v ...float64) Value  { return Value{Kind: KindRealArray, Reals: slices.Clone(v)} }
func StringArrayValue(v ...string) Value { return Value{Kind: KindStringArray, Strs: slices.Clone(v)} }
func ReferenceValue(id NodeID) Value     { return Value{Kind: KindReference, Ref: id} }
func ReferenceListValue(ids ...NodeID) Value {
	return Value{Kind: KindReferenceList, Refs: slices.Clone(ids)}
}
func ShapeValue(blob []byte) Value { return Value{Kind: KindShape, Shape: bytes.Clone(blob)} }

// TimestampValue stores t in UTC without the monotonic reading, so values survive persistence.
func TimestampValue(t time.Time) Value {
	return Value{Kind: KindTimestamp, Time: t.UTC().Round(0)}
}

// FunctionValue wraps a binding as the value of a tree_function Parameter.
func FunctionValue(b FunctionBinding) Value {
	c := b.Clone()
	return Value{Kind: KindTreeFunction, Binding: &c}
}

// Clone returns a deep copy so callers never share slices with the document arena.
func (v Value) Clone() Value {
	out := v
	out.Ints = slices.Clone(v.Ints)
	out.Reals = slices.Clone(v.Reals)
	out.Strs = slices.Clone(v.Strs)
	out.Refs = slices.Clone(v.Refs)
	out.Shape = bytes.Clone(v.Shape)
	if v.Binding != nil {
		b := v.Binding.Clone()
		out.Binding = &b
	}
	return out
}

// Equal compares the payload selected by Kind.
func (v Value) Equal(o Value) bool {
	if v.Kind != o.Kind {
		return false
	}
	switch v.Kind {
	case KindBool:
		return v.Bool == o.Bool
	case KindInt:
		return v.Int == o.Int
	case KindReal:
		return v.Real == o.Real
	case KindString:
		return v.Str == o.Str
	case KindIntArray:
		return slices.Equal(v.Ints, o.Ints)
	case KindRealArray:
		return slices.Equal(v.Reals, o.Reals)
	case KindStringArray:
		return slices.Equal(v.Strs, o.Strs)
	case KindTimestamp:
		return v.Time.Equal(o.Time)
	case KindReference:
		return v.Ref == o.Ref
	case KindReferenceList:
		return slices.Equal(v.Refs, o.Refs)
	case KindShape:
		return bytes.Equal(v.Shape, o.Shape)
	case KindTreeFunction:
		if v.Binding == nil || o.Binding == nil {
			return v.Binding == o.Binding
		}
		return v.Binding.Equal(*o.Binding)
	}
	return true
}

// NodeRefs returns every Node this value points at (references and reference lists).
func (v Value) NodeRefs() []NodeID {
	switch v.Kind {
	case KindReference:
		if v.Ref.IsZero() {
			return nil
		}
		return []NodeID{v.Ref}
	case KindReferenceList:
		return v.Refs
	}
	return nil
}

// Native returns the Go value of scalar kinds (bool, int64, float64, string), or nil.
func (v Value) Native() any {
	switch v.Kind {
	case KindBool:
		return v.Bool
	case KindInt:
		return v.Int
	case KindReal:
		return v.Real
	case KindString:
		return v.Str
	case KindTimestamp:
		return v.Time
	case KindIntArray:
		return slices.Clone(v.Ints)
	case KindRealArray:
		return slices.Clone(v.Reals)
	case KindStringArray:
		return slices.Clone(v.Strs)
	}
	return nil
}

func (v Value) String() string {
	switch v.Kind {
	case KindReference:
		return v.Ref.String()
	case KindReferenceList:
		return fmt.Sprint(v.Refs)
	case KindShape:
		return fmt.Sprintf("shape(%d bytes)", len(v.Shape))
	case KindTreeFunction:
		if v.Binding == nil {
			return "function(<nil>)"
		}
		return v.Binding.String()
	case KindTimestamp:
		return v.Time.Format(time.RFC3339Nano)
	}
	if n := v.Native(); n != nil {
		return fmt.Sprint(n)
	}
	return v.Kind.String()
}
