package schema

import (
	"context"
	"fmt"

	"github.com/aretw0/actdata/pkg/conversion"
	"github.com/aretw0/actdata/pkg/domain"
	"github.com/aretw0/actdata/pkg/registry"
)

// Conversion steps.
const (
	OpInsert      = "insert"
	OpAppend      = "append"
	OpRemove      = "remove"
	OpMove        = "move"
	OpRenameParam = "rename_param"
	OpRenameType  = "rename_type"
)

// ConversionDef upgrades documents from version From to From+1 by running Steps in order.
type ConversionDef struct {
	From        int       `yaml:"from" mapstructure:"from" validate:"gte=1"`
	Description string    `yaml:"description,omitempty" mapstructure:"description"`
	Steps       []StepDef `yaml:"steps" mapstructure:"steps" validate:"required,min=1,dive"`
}

// StepDef is one layout change. Which fields apply depends on Op:
//
//	insert        type, at, name, kind, default
//	append        type, name, kind, default
//	remove        type, at
//	move          type, at, to
//	rename_param  type, at, name
//	rename_type   type, name
type StepDef struct {
	Op      string `yaml:"op" mapstructure:"op" validate:"required,oneof=insert append remove move rename_param rename_type"`
	Type    string `yaml:"type" mapstructure:"type" validate:"required"`
	At      *int   `yaml:"at,omitempty" mapstructure:"at" validate:"required_if=Op insert,required_if=Op remove,required_if=Op move,required_if=Op rename_param,omitempty,gte=0"`
	To      *int   `yaml:"to,omitempty" mapstructure:"to" validate:"required_if=Op move,omitempty,gte=0"`
	Name    string `yaml:"name,omitempty" mapstructure:"name" validate:"required_if=Op insert,required_if=Op append,required_if=Op rename_param,required_if=Op rename_type"`
	Kind    string `yaml:"kind,omitempty" mapstructure:"kind" validate:"required_if=Op insert,required_if=Op append,omitempty,valuekind"`
	Default any    `yaml:"default,omitempty" mapstructure:"default"`
}

// spec builds the description of an inserted Parameter.
func (s StepDef) spec() (conversion.ParamSpec, error) {
	kind, err := domain.ParseKind(s.Kind)
	if err != nil {
		return conversion.ParamSpec{}, err
	}
	spec := conversion.ParamSpec{Name: s.Name, Kind: kind}
	if s.Default != nil {
		v, err := Coerce(kind, s.Default)
		if err != nil {
			return conversion.ParamSpec{}, fmt.Errorf("default of %s: %w", s.Name, err)
		}
		spec.Default = &v
	}
	return spec, nil
}

func (s StepDef) apply(snap *domain.Snapshot, prov *domain.Provenance) error {
	t := domain.TypeID(s.Type)
	switch s.Op {
	case OpInsert, OpAppend:
		spec, err := s.spec()
		if err != nil {
			return err
		}
		if s.Op == OpAppend {
			return conversion.AppendParameter(snap, prov, t, spec)
		}
		return conversion.InsertParameter(snap, prov, t, domain.ParamIndex(*s.At), spec)
	case OpRemove:
		return conversion.RemoveParameter(snap, prov, t, domain.ParamIndex(*s.At))
	case OpMove:
		return conversion.MoveParameter(snap, prov, t, domain.ParamIndex(*s.At), domain.ParamIndex(*s.To))
	case OpRenameParam:
		return conversion.RenameParameter(snap, t, domain.ParamIndex(*s.At), s.Name)
	case OpRenameType:
		return conversion.RenameType(snap, prov, t, domain.TypeID(s.Name))
	}
	return fmt.Errorf("unknown conversion step %q", s.Op)
}

// Routine returns the conversion routine running the steps of c.
func (c ConversionDef) Routine() registry.ConversionFunc {
	steps := c.Steps
	return func(ctx context.Context, snap *domain.Snapshot, prov *domain.Provenance) error {
		for i, s := range steps {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := s.apply(snap, prov); err != nil {
				return fmt.Errorf("step %d (%s %s): %w", i+1, s.Op, s.Type, err)
			}
		}
		return nil
	}
}

// validateConversions checks what the struct tags cannot: versions in range and unique,
// and defaults that fit their kind.
func (t *Table) validateConversions() []error {
	var errs []error
	seen := make(map[int]bool)
	for ci, c := range t.Conversions {
		key := fmt.Sprintf("conversions[%d]", ci)
		if c.From >= t.Version {
			errs = append(errs, &ValidationError{
				Key:    key + ".from",
				Reason: fmt.Sprintf("must be below the table version %d", t.Version),
				Value:  c.From,
			})
		}
		if seen[c.From] {
			errs = append(errs, &ValidationError{Key: key + ".from", Reason: "duplicate", Value: c.From})
		}
		seen[c.From] = true
		for si, s := range c.Steps {
			if s.Default == nil || s.Kind == "" {
				continue
			}
			if _, err := s.spec(); err != nil {
				errs = append(errs, &ValidationError{
					Key:    fmt.Sprintf("%s.steps[%d].default", key, si),
					Reason: err.Error(),
					Value:  s.Default,
					Err:    domain.ErrTypeMismatch,
				})
			}
		}
	}
	return errs
}

// ApplyConversions registers the declared conversion routines in reg.
func (t *Table) ApplyConversions(reg *registry.Registry) error {
	for _, c := range t.Conversions {
		desc := c.Description
		if desc == "" {
			desc = fmt.Sprintf("%d declared steps", len(c.Steps))
		}
		if err := reg.RegisterConversion(c.From, desc, c.Routine()); err != nil {
			return err
		}
	}
	return nil
}
