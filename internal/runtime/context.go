package runtime

import (
	"fmt"
	"log/slog"

	"github.com/aretw0/actdata/pkg/depgraph"
	"github.com/aretw0/actdata/pkg/document"
	"github.com/aretw0/actdata/pkg/domain"
)

// functionContext is the registry.FunctionContext handed to one function body.
type functionContext struct {
	doc    *document.Document
	fn     depgraph.Function
	logger *slog.Logger
}

func (c *functionContext) Host() domain.GID { return c.fn.Host }

func (c *functionContext) Binding() domain.FunctionBinding { return c.fn.Binding.Clone() }

func (c *functionContext) Logger() *slog.Logger { return c.logger }

func (c *functionContext) input(i int) (domain.GID, error) {
	if i < 0 || i >= len(c.fn.Binding.Inputs) {
		return domain.GID{}, fmt.Errorf("%w: input %d of %d", domain.ErrOutOfRange, i, len(c.fn.Binding.Inputs))
	}
	return c.fn.Binding.Inputs[i], nil
}

func (c *functionContext) output(i int) (*document.Parameter, error) {
	if i < 0 || i >= len(c.fn.Binding.Outputs) {
		return nil, fmt.Errorf("%w: output %d of %d", domain.ErrOutOfRange, i, len(c.fn.Binding.Outputs))
	}
	return c.doc.Parameter(c.fn.Binding.Outputs[i])
}

func (c *functionContext) Input(i int) (domain.Value, error) {
	gid, err := c.input(i)
	if err != nil {
		return domain.Value{}, err
	}
	return c.Parameter(gid)
}

func (c *functionContext) Output(i int) (domain.Value, error) {
	p, err := c.output(i)
	if err != nil {
		return domain.Value{}, err
	}
	return p.GetValue()
}

func (c *functionContext) OutputKind(i int) (domain.ValueKind, error) {
	p, err := c.output(i)
	if err != nil {
		return domain.KindInvalid, err
	}
	return p.Kind(), nil
}

func (c *functionContext) OutputEvaluation(i int) (*domain.Evaluation, error) {
	p, err := c.output(i)
	if err != nil {
		return nil, err
	}
	if !p.Expressible() {
		return nil, nil
	}
	return p.Evaluation()
}

func (c *functionContext) SetOutput(i int, v domain.Value) error {
	p, err := c.output(i)
	if err != nil {
		return err
	}
	return p.SetValue(v)
}

func (c *functionContext) Parameter(gid domain.GID) (domain.Value, error) {
	p, err := c.doc.Parameter(gid)
	if err != nil {
		return domain.Value{}, err
	}
	return p.GetValue()
}

func (c *functionContext) SetParameter(gid domain.GID, v domain.Value) error {
	p, err := c.doc.Parameter(gid)
	if err != nil {
		return err
	}
	return p.SetValue(v)
}
