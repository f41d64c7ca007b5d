package codec

import (
	"fmt"
	"time"

	"github.com/aretw0/actdata/pkg/domain"
)

// DriverFunc adapts a pair of functions to a Driver.
type DriverFunc struct {
	For     domain.ValueKind
	EncodeF func(domain.Value) ([]byte, error)
	DecodeF func([]byte) (domain.Value, error)
}

func (d DriverFunc) Kind() domain.ValueKind { return d.For }

func (d DriverFunc) Encode(v domain.Value) ([]byte, error) {
	if v.Kind != d.For {
		return nil, fmt.Errorf("%w: %s driver got %s", domain.ErrTypeMismatch, d.For, v.Kind)
	}
	return d.EncodeF(v)
}

func (d DriverFunc) Decode(b []byte) (domain.Value, error) {
	return d.DecodeF(b)
}

// fixed builds a driver from writer and reader callbacks over the wire helpers.
func fixed(k domain.ValueKind, enc func(*writer, domain.Value), dec func(*reader) domain.Value) Driver {
	return DriverFunc{
		For: k,
		EncodeF: func(v domain.Value) ([]byte, error) {
			w := &writer{}
			enc(w, v)
			return w.Bytes(), nil
		},
		DecodeF: func(b []byte) (domain.Value, error) {
			r := &reader{buf: b}
			v := dec(r)
			if err := r.done(); err != nil {
				return domain.Value{}, err
			}
			return v, nil
		},
	}
}

func builtin() []Driver {
	return []Driver{
		fixed(domain.KindBool,
			func(w *writer, v domain.Value) { w.bool(v.Bool) },
			func(r *reader) domain.Value { return domain.BoolValue(r.bool()) }),
		fixed(domain.KindInt,
			func(w *writer, v domain.Value) { w.varint(v.Int) },
			func(r *reader) domain.Value { return domain.IntValue(r.varint()) }),
		fixed(domain.KindReal,
			func(w *writer, v domain.Value) { w.float(v.Real) },
			func(r *reader) domain.Value { return domain.RealValue(r.float()) }),
		rawDriver(domain.KindString,
			func(v domain.Value) []byte { return []byte(v.Str) },
			func(b []byte) domain.Value { return domain.StringValue(string(b)) }),
		fixed(domain.KindIntArray,
			func(w *writer, v domain.Value) {
				w.count(len(v.Ints))
				for _, n := range v.Ints {
					w.varint(n)
				}
			},
			func(r *reader) domain.Value {
				out := makeSlice[int64](r.count())
				for i := range out {
					out[i] = r.varint()
				}
				return domain.Value{Kind: domain.KindIntArray, Ints: out}
			}),
		fixed(domain.KindRealArray,
			func(w *writer, v domain.Value) {
				w.count(len(v.Reals))
				for _, f := range v.Reals {
					w.float(f)
				}
			},
			func(r *reader) domain.Value {
				out := makeSlice[float64](r.count())
				for i := range out {
					out[i] = r.float()
				}
				return domain.Value{Kind: domain.KindRealArray, Reals: out}
			}),
		fixed(domain.KindStringArray,
			func(w *writer, v domain.Value) {
				w.count(len(v.Strs))
				for _, s := range v.Strs {
					w.string(s)
				}
			},
			func(r *reader) domain.Value {
				out := makeSlice[string](r.count())
				for i := range out {
					out[i] = r.string()
				}
				return domain.Value{Kind: domain.KindStringArray, Strs: out}
			}),
		timestampDriver(),
		fixed(domain.KindReference,
			func(w *writer, v domain.Value) { w.string(nodeString(v.Ref)) },
			func(r *reader) domain.Value { return domain.ReferenceValue(readNode(r)) }),
		fixed(domain.KindReferenceList,
			func(w *writer, v domain.Value) {
				w.count(len(v.Refs))
				for _, id := range v.Refs {
					w.string(nodeString(id))
				}
			},
			func(r *reader) domain.Value {
				out := makeSlice[domain.NodeID](r.count())
				for i := range out {
					out[i] = readNode(r)
				}
				return domain.Value{Kind: domain.KindReferenceList, Refs: out}
			}),
		rawDriver(domain.KindShape,
			func(v domain.Value) []byte { return v.Shape },
			func(b []byte) domain.Value { return domain.ShapeValue(b) }),
		fixed(domain.KindTreeFunction,
			func(w *writer, v domain.Value) {
				var b domain.FunctionBinding
				if v.Binding != nil {
					b = *v.Binding
				}
				w.string(string(b.Function))
				w.byte(byte(b.Priority))
				writeGIDs(w, b.Inputs)
				writeGIDs(w, b.Outputs)
			},
			func(r *reader) domain.Value {
				b := domain.FunctionBinding{
					Function: domain.FunctionID(r.string()),
					Priority: domain.Priority(r.byte()),
				}
				b.Inputs = readGIDs(r)
				b.Outputs = readGIDs(r)
				return domain.FunctionValue(b)
			}),
	}
}

// rawDriver stores the payload bytes as they are.
func rawDriver(k domain.ValueKind, enc func(domain.Value) []byte, dec func([]byte) domain.Value) Driver {
	return DriverFunc{
		For:     k,
		EncodeF: func(v domain.Value) ([]byte, error) { return append([]byte(nil), enc(v)...), nil },
		DecodeF: func(b []byte) (domain.Value, error) { return dec(b), nil },
	}
}

func timestampDriver() Driver {
	return DriverFunc{
		For: domain.KindTimestamp,
		EncodeF: func(v domain.Value) ([]byte, error) {
			return v.Time.MarshalBinary()
		},
		DecodeF: func(b []byte) (domain.Value, error) {
			var t time.Time
			if err := t.UnmarshalBinary(b); err != nil {
				return domain.Value{}, err
			}
			return domain.TimestampValue(t), nil
		},
	}
}

func makeSlice[T any](n int) []T {
	if n == 0 {
		return nil
	}
	return make([]T, n)
}

func nodeString(id domain.NodeID) string {
	if id.IsZero() {
		return ""
	}
	return id.String()
}

func readNode(r *reader) domain.NodeID {
	s := r.string()
	if s == "" || r.err != nil {
		return domain.NodeID{}
	}
	id, err := domain.ParseNodeID(s)
	if err != nil {
		r.fail(err)
	}
	return id
}

func writeGIDs(w *writer, gids []domain.GID) {
	w.count(len(gids))
	for _, g := range gids {
		w.string(g.String())
	}
}

func readGIDs(r *reader) []domain.GID {
	n := r.count()
	if n == 0 {
		return nil
	}
	out := make([]domain.GID, n)
	for i := range out {
		g, err := domain.ParseGID(r.string())
		if err != nil && r.err == nil {
			r.fail(err)
		}
		out[i] = g
	}
	return out
}
