package codec

import (
	"fmt"

	"github.com/aretw0/actdata/pkg/domain"
)

const recordVersion = 1

const (
	flagSet byte = 1 << iota
	flagStale
	flagEvaluation
)

// EncodeParameter encodes a whole Parameter attribute: layout entry, value, stale flag and
// evaluation record.
func (t *Table) EncodeParameter(p domain.ParamSnapshot) ([]byte, error) {
	w := &writer{}
	w.byte(recordVersion)
	w.uvarint(uint64(p.Index))
	w.string(p.Name)
	w.byte(byte(p.Kind))

	var flags byte
	if p.Value != nil {
		flags |= flagSet
	}
	if p.Stale {
		flags |= flagStale
	}
	if p.Evaluation != nil {
		flags |= flagEvaluation
	}
	w.byte(flags)

	if p.Value != nil {
		if p.Value.Kind != p.Kind {
			return nil, &domain.ParameterError{
				GID: domain.GID{Param: p.Index},
				Err: fmt.Errorf("%w: %s holds %s", domain.ErrTypeMismatch, p.Kind, p.Value.Kind),
			}
		}
		b, err := t.Encode(*p.Value)
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", p.Name, err)
		}
		w.bytes(b)
	}
	if p.Evaluation != nil {
		w.string(p.Evaluation.Expression)
		w.count(len(p.Evaluation.Variables))
		for _, v := range p.Evaluation.Variables {
			w.string(v.Name)
			w.string(v.Source.String())
		}
	}
	return w.Bytes(), nil
}

// DecodeParameter is the inverse of EncodeParameter.
func (t *Table) DecodeParameter(b []byte) (domain.ParamSnapshot, error) {
	r := &reader{buf: b}
	if v := r.byte(); r.err == nil && v != recordVersion {
		return domain.ParamSnapshot{}, fmt.Errorf("unsupported parameter record version %d", v)
	}
	p := domain.ParamSnapshot{
		Index: domain.ParamIndex(r.uvarint()),
		Name:  r.string(),
		Kind:  domain.ValueKind(r.byte()),
	}
	flags := r.byte()
	p.Stale = flags&flagStale != 0

	if flags&flagSet != 0 {
		raw := r.bytes()
		if r.err == nil {
			v, err := t.Decode(p.Kind, raw)
			if err != nil {
				return domain.ParamSnapshot{}, fmt.Errorf("decode %s: %w", p.Name, err)
			}
			p.Value = &v
		}
	}
	if flags&flagEvaluation != 0 {
		eval := &domain.Evaluation{Expression: r.string()}
		for range r.count() {
			name := r.string()
			src, err := domain.ParseGID(r.string())
			if err != nil && r.err == nil {
				r.fail(err)
			}
			eval.Variables = append(eval.Variables, domain.Variable{Name: name, Source: src})
		}
		p.Evaluation = eval
	}
	if err := r.done(); err != nil {
		return domain.ParamSnapshot{}, fmt.Errorf("decode parameter record: %w", err)
	}
	return p, nil
}
