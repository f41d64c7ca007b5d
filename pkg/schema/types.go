package schema

import (
	"encoding/base64"
	"fmt"
	"math"
	"reflect"
	"time"

	"github.com/aretw0/actdata/pkg/domain"
	"github.com/mitchellh/mapstructure"
)

// Coerce converts a raw value, as decoded from YAML or JSON, into a value of kind.
//
// Whole floats are accepted for int kinds since JSON decodes every number as float64.
// Timestamps are RFC 3339 strings or time.Time, references are "Type:ordinal" strings,
// shapes are base64 strings and tree functions are maps with function, inputs, outputs
// and priority keys.
func Coerce(kind domain.ValueKind, raw any) (domain.Value, error) {
	if raw == nil {
		return domain.Value{}, fmt.Errorf("%w: null is not a %s", domain.ErrTypeMismatch, kind)
	}
	switch kind {
	case domain.KindBool:
		b, ok := raw.(bool)
		if !ok {
			return mismatch(kind, raw)
		}
		return domain.BoolValue(b), nil
	case domain.KindInt:
		n, err := toInt(raw)
		if err != nil {
			return domain.Value{}, err
		}
		return domain.IntValue(n), nil
	case domain.KindReal:
		f, err := toFloat(raw)
		if err != nil {
			return domain.Value{}, err
		}
		return domain.RealValue(f), nil
	case domain.KindString:
		s, ok := raw.(string)
		if !ok {
			return mismatch(kind, raw)
		}
		return domain.StringValue(s), nil
	case domain.KindTimestamp:
		switch v := raw.(type) {
		case time.Time:
			return domain.TimestampValue(v), nil
		case string:
			t, err := time.Parse(time.RFC3339Nano, v)
			if err != nil {
				return domain.Value{}, fmt.Errorf("%w: %v", domain.ErrTypeMismatch, err)
			}
			return domain.TimestampValue(t), nil
		}
		return mismatch(kind, raw)
	case domain.KindReference:
		s, ok := raw.(string)
		if !ok {
			return mismatch(kind, raw)
		}
		id, err := domain.ParseNodeID(s)
		if err != nil {
			return domain.Value{}, fmt.Errorf("%w: %v", domain.ErrTypeMismatch, err)
		}
		return domain.ReferenceValue(id), nil
	case domain.KindShape:
		s, ok := raw.(string)
		if !ok {
			return mismatch(kind, raw)
		}
		b, err := base64.StdEncoding.DecodeString(s)
		if err != nil {
			return domain.Value{}, fmt.Errorf("%w: shape: %v", domain.ErrTypeMismatch, err)
		}
		return domain.ShapeValue(b), nil
	case domain.KindIntArray, domain.KindRealArray, domain.KindStringArray, domain.KindReferenceList:
		return coerceSlice(kind, raw)
	case domain.KindTreeFunction:
		return coerceBinding(raw)
	}
	return domain.Value{}, fmt.Errorf("%w: %s parameters hold no value", domain.ErrTypeMismatch, kind)
}

// Raw is the inverse of Coerce: it returns the YAML/JSON friendly form of v.
func Raw(v domain.Value) any {
	switch v.Kind {
	case domain.KindTimestamp:
		return v.Time.Format(time.RFC3339Nano)
	case domain.KindReference:
		return v.Ref.String()
	case domain.KindReferenceList:
		out := make([]string, len(v.Refs))
		for i, id := range v.Refs {
			out[i] = id.String()
		}
		return out
	case domain.KindShape:
		return base64.StdEncoding.EncodeToString(v.Shape)
	case domain.KindTreeFunction:
		b := v.Binding
		if b == nil {
			return nil
		}
		raw := bindingRaw{Function: string(b.Function), Priority: b.Priority.String()}
		for _, g := range b.Inputs {
			raw.Inputs = append(raw.Inputs, g.String())
		}
		for _, g := range b.Outputs {
			raw.Outputs = append(raw.Outputs, g.String())
		}
		return map[string]any{
			"function": raw.Function,
			"inputs":   raw.Inputs,
			"outputs":  raw.Outputs,
			"priority": raw.Priority,
		}
	}
	return v.Native()
}

func mismatch(kind domain.ValueKind, raw any) (domain.Value, error) {
	return domain.Value{}, fmt.Errorf("%w: expected %s, got %T", domain.ErrTypeMismatch, kind, raw)
}

func toInt(raw any) (int64, error) {
	switch v := raw.(type) {
	case int:
		return int64(v), nil
	case int8, int16, int32, int64:
		return reflect.ValueOf(v).Int(), nil
	case uint8, uint16, uint32:
		return int64(reflect.ValueOf(v).Uint()), nil
	case float32, float64:
		f := reflect.ValueOf(v).Float()
		if f == math.Trunc(f) && math.Abs(f) < 1<<63 {
			return int64(f), nil
		}
		return 0, fmt.Errorf("%w: expected int, got float (not a whole number)", domain.ErrTypeMismatch)
	}
	return 0, fmt.Errorf("%w: expected int, got %T", domain.ErrTypeMismatch, raw)
}

func toFloat(raw any) (float64, error) {
	switch v := raw.(type) {
	case float32, float64:
		return reflect.ValueOf(v).Float(), nil
	case int, int8, int16, int32, int64:
		return float64(reflect.ValueOf(v).Int()), nil
	}
	return 0, fmt.Errorf("%w: expected real, got %T", domain.ErrTypeMismatch, raw)
}

func coerceSlice(kind domain.ValueKind, raw any) (domain.Value, error) {
	rv := reflect.ValueOf(raw)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return mismatch(kind, raw)
	}
	out := domain.Value{Kind: kind}
	for i := 0; i < rv.Len(); i++ {
		elem := rv.Index(i).Interface()
		var err error
		switch kind {
		case domain.KindIntArray:
			var n int64
			if n, err = toInt(elem); err == nil {
				out.Ints = append(out.Ints, n)
			}
		case domain.KindRealArray:
			var f float64
			if f, err = toFloat(elem); err == nil {
				out.Reals = append(out.Reals, f)
			}
		case domain.KindStringArray:
			s, ok := elem.(string)
			if !ok {
				_, err = mismatch(domain.KindString, elem)
			}
			out.Strs = append(out.Strs, s)
		case domain.KindReferenceList:
			var ref domain.Value
			if ref, err = Coerce(domain.KindReference, elem); err == nil {
				out.Refs = append(out.Refs, ref.Ref)
			}
		}
		if err != nil {
			return domain.Value{}, fmt.Errorf("element %d: %w", i, err)
		}
	}
	return out, nil
}

type bindingRaw struct {
	Function string   `mapstructure:"function"`
	Inputs   []string `mapstructure:"inputs"`
	Outputs  []string `mapstructure:"outputs"`
	Priority string   `mapstructure:"priority"`
}

func coerceBinding(raw any) (domain.Value, error) {
	var br bindingRaw
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:      &br,
		ErrorUnused: true,
	})
	if err != nil {
		return domain.Value{}, err
	}
	if err := dec.Decode(raw); err != nil {
		return domain.Value{}, fmt.Errorf("%w: tree function: %v", domain.ErrTypeMismatch, err)
	}
	if br.Function == "" {
		return domain.Value{}, fmt.Errorf("%w: tree function: function is required", domain.ErrTypeMismatch)
	}
	b := domain.FunctionBinding{Function: domain.FunctionID(br.Function)}
	if br.Priority != "" {
		if err := b.Priority.UnmarshalText([]byte(br.Priority)); err != nil {
			return domain.Value{}, fmt.Errorf("%w: tree function: %v", domain.ErrTypeMismatch, err)
		}
	}
	for _, s := range br.Inputs {
		g, err := domain.ParseGID(s)
		if err != nil {
			return domain.Value{}, fmt.Errorf("%w: tree function input: %v", domain.ErrTypeMismatch, err)
		}
		b.Inputs = append(b.Inputs, g)
	}
	for _, s := range br.Outputs {
		g, err := domain.ParseGID(s)
		if err != nil {
			return domain.Value{}, fmt.Errorf("%w: tree function output: %v", domain.ErrTypeMismatch, err)
		}
		b.Outputs = append(b.Outputs, g)
	}
	return domain.FunctionValue(b), nil
}
