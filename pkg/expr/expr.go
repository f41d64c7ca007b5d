// Package expr evaluates the expressions of expressible Parameters with the Risor VM.
//
// An expressible Parameter carries a domain.Evaluation: an expression plus the Parameters
// its variables read. The "expr" Tree Function evaluates that record and writes the result
// back, so expressions take part in dependency ordering like any other function.
package expr

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"slices"

	"github.com/aretw0/actdata/internal/logging"
	"github.com/aretw0/actdata/pkg/domain"
	"github.com/aretw0/actdata/pkg/registry"
	"github.com/risor-io/risor"
	"github.com/risor-io/risor/object"
)

// FunctionID is the Tree Function that evaluates expressions.
const FunctionID domain.FunctionID = "expr"

// ErrEvaluation wraps errors raised by the expression itself.
var ErrEvaluation = errors.New("expression evaluation failed")

// Evaluator runs expressions.
type Evaluator struct {
	globals map[string]object.Object
	logger  *slog.Logger
}

// Option configures the Evaluator.
type Option func(*Evaluator)

// WithLogger configures a logger for the Evaluator.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Evaluator) {
		e.logger = logger
	}
}

// WithBuiltin exposes a Go function to every expression under name.
func WithBuiltin(name string, fn object.BuiltinFunction) Option {
	return func(e *Evaluator) {
		e.globals[name] = object.NewBuiltin(name, fn)
	}
}

// NewEvaluator creates an Evaluator with Risor's default globals.
func NewEvaluator(opts ...Option) *Evaluator {
	e := &Evaluator{
		globals: make(map[string]object.Object),
		logger:  logging.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Eval evaluates expression with vars bound as globals and converts the result to kind.
func (e *Evaluator) Eval(ctx context.Context, expression string, vars map[string]domain.Value, kind domain.ValueKind) (domain.Value, error) {
	opts := make([]risor.Option, 0, len(e.globals)+len(vars))
	for name, val := range e.globals {
		opts = append(opts, risor.WithGlobal(name, val))
	}
	for name, v := range vars {
		obj, err := toObject(v)
		if err != nil {
			return domain.Value{}, fmt.Errorf("variable %s: %w", name, err)
		}
		opts = append(opts, risor.WithGlobal(name, obj))
	}

	result, err := risor.Eval(ctx, expression, opts...)
	if err != nil {
		return domain.Value{}, fmt.Errorf("%w: %q: %w", ErrEvaluation, expression, err)
	}
	if errObj, ok := result.(*object.Error); ok {
		return domain.Value{}, fmt.Errorf("%w: %q: %s", ErrEvaluation, expression, errObj.Message().Value())
	}
	v, err := fromObject(result, kind)
	if err != nil {
		return domain.Value{}, fmt.Errorf("expression %q: %w", expression, err)
	}
	e.logger.Debug("expression evaluated", "expression", expression, "kind", kind, "result", v.String())
	return v, nil
}

// Execute implements registry.TreeFunction. It evaluates the Evaluation record of every
// output and writes the results. Outputs without a record are left untouched.
func (e *Evaluator) Execute(ctx context.Context, fc registry.FunctionContext) error {
	binding := fc.Binding()
	for i := range binding.Outputs {
		eval, err := fc.OutputEvaluation(i)
		if err != nil {
			return err
		}
		if eval == nil {
			continue
		}
		kind, err := fc.OutputKind(i)
		if err != nil {
			return err
		}
		vars := make(map[string]domain.Value, len(eval.Variables))
		for _, variable := range eval.Variables {
			v, err := fc.Parameter(variable.Source)
			if err != nil {
				return fmt.Errorf("variable %s (%s): %w", variable.Name, variable.Source, err)
			}
			vars[variable.Name] = v
		}
		v, err := e.Eval(ctx, eval.Expression, vars, kind)
		if err != nil {
			return err
		}
		if err := fc.SetOutput(i, v); err != nil {
			return err
		}
	}
	return nil
}

// Register installs the Evaluator as FunctionID in reg.
func Register(reg *registry.Registry, opts ...Option) *Evaluator {
	e := NewEvaluator(opts...)
	reg.RegisterFunction(FunctionID, e)
	return e
}

// Binding returns the function binding that keeps output in sync with eval. The inputs are
// the variable sources, so the graph orders the evaluation after its producers.
func Binding(output domain.GID, eval domain.Evaluation) domain.FunctionBinding {
	var inputs []domain.GID
	for _, v := range eval.Variables {
		if !slices.Contains(inputs, v.Source) {
			inputs = append(inputs, v.Source)
		}
	}
	slices.SortFunc(inputs, func(a, b domain.GID) int {
		switch {
		case a.Less(b):
			return -1
		case b.Less(a):
			return 1
		}
		return 0
	})
	return domain.FunctionBinding{
		Function: FunctionID,
		Inputs:   inputs,
		Outputs:  []domain.GID{output},
	}
}

func toObject(v domain.Value) (object.Object, error) {
	switch v.Kind {
	case domain.KindBool:
		return object.NewBool(v.Bool), nil
	case domain.KindInt:
		return object.NewInt(v.Int), nil
	case domain.KindReal:
		return object.NewFloat(v.Real), nil
	case domain.KindString:
		return object.NewString(v.Str), nil
	case domain.KindTimestamp:
		return object.NewTime(v.Time), nil
	case domain.KindReference:
		return object.NewString(v.Ref.String()), nil
	case domain.KindIntArray:
		items := make([]object.Object, len(v.Ints))
		for i, n := range v.Ints {
			items[i] = object.NewInt(n)
		}
		return object.NewList(items), nil
	case domain.KindRealArray:
		items := make([]object.Object, len(v.Reals))
		for i, f := range v.Reals {
			items[i] = object.NewFloat(f)
		}
		return object.NewList(items), nil
	case domain.KindStringArray:
		items := make([]object.Object, len(v.Strs))
		for i, s := range v.Strs {
			items[i] = object.NewString(s)
		}
		return object.NewList(items), nil
	}
	return nil, fmt.Errorf("%w: %s values cannot be used in expressions", domain.ErrTypeMismatch, v.Kind)
}

func fromObject(obj object.Object, kind domain.ValueKind) (domain.Value, error) {
	mismatch := func() (domain.Value, error) {
		return domain.Value{}, fmt.Errorf("%w: expression yields %s, parameter is %s", domain.ErrTypeMismatch, obj.Type(), kind)
	}
	switch kind {
	case domain.KindBool:
		if b, ok := obj.(*object.Bool); ok {
			return domain.BoolValue(b.Value()), nil
		}
	case domain.KindInt:
		if n, ok := toInt(obj); ok {
			return domain.IntValue(n), nil
		}
	case domain.KindReal:
		if f, ok := toFloat(obj); ok {
			return domain.RealValue(f), nil
		}
	case domain.KindString:
		if s, ok := obj.(*object.String); ok {
			return domain.StringValue(s.Value()), nil
		}
	case domain.KindTimestamp:
		if t, ok := obj.(*object.Time); ok {
			return domain.TimestampValue(t.Value()), nil
		}
	case domain.KindIntArray, domain.KindRealArray, domain.KindStringArray:
		list, ok := obj.(*object.List)
		if !ok {
			return mismatch()
		}
		return fromList(list.Value(), kind)
	}
	return mismatch()
}

func fromList(items []object.Object, kind domain.ValueKind) (domain.Value, error) {
	out := domain.Value{Kind: kind}
	for i, item := range items {
		ok := false
		switch kind {
		case domain.KindIntArray:
			var n int64
			if n, ok = toInt(item); ok {
				out.Ints = append(out.Ints, n)
			}
		case domain.KindRealArray:
			var f float64
			if f, ok = toFloat(item); ok {
				out.Reals = append(out.Reals, f)
			}
		case domain.KindStringArray:
			var s *object.String
			if s, ok = item.(*object.String); ok {
				out.Strs = append(out.Strs, s.Value())
			}
		}
		if !ok {
			return domain.Value{}, fmt.Errorf("%w: element %d is %s, parameter is %s", domain.ErrTypeMismatch, i, item.Type(), kind)
		}
	}
	return out, nil
}

// toInt accepts integers and integral floats.
func toInt(obj object.Object) (int64, bool) {
	switch v := obj.(type) {
	case *object.Int:
		return v.Value(), true
	case *object.Float:
		f := v.Value()
		if f == math.Trunc(f) && !math.IsInf(f, 0) && math.Abs(f) < 1<<63 {
			return int64(f), true
		}
	}
	return 0, false
}

func toFloat(obj object.Object) (float64, bool) {
	switch v := obj.(type) {
	case *object.Int:
		return float64(v.Value()), true
	case *object.Float:
		return v.Value(), true
	}
	return 0, false
}
