package dsl

import (
	"fmt"

	"github.com/aretw0/actdata/pkg/domain"
	"github.com/aretw0/actdata/pkg/registry"
)

// TypeBuilder declares a Node type parameter by parameter.
type TypeBuilder struct {
	t registry.NodeType
}

// Type starts the declaration of a Node type.
func Type(id domain.TypeID) *TypeBuilder {
	return &TypeBuilder{t: registry.NodeType{ID: id}}
}

// Param appends a Parameter of the given kind.
func (t *TypeBuilder) Param(name string, kind domain.ValueKind) *TypeBuilder {
	t.t.Params = append(t.t.Params, registry.ParamDecl{
		Index: domain.ParamIndex(len(t.t.Params)),
		Name:  name,
		Kind:  kind,
	})
	return t
}

func (t *TypeBuilder) Bool(name string) *TypeBuilder   { return t.Param(name, domain.KindBool) }
func (t *TypeBuilder) Int(name string) *TypeBuilder    { return t.Param(name, domain.KindInt) }
func (t *TypeBuilder) Real(name string) *TypeBuilder   { return t.Param(name, domain.KindReal) }
func (t *TypeBuilder) String(name string) *TypeBuilder { return t.Param(name, domain.KindString) }
func (t *TypeBuilder) Group(name string) *TypeBuilder  { return t.Param(name, domain.KindGroup) }
func (t *TypeBuilder) Ref(name string) *TypeBuilder    { return t.Param(name, domain.KindReference) }
func (t *TypeBuilder) Refs(name string) *TypeBuilder   { return t.Param(name, domain.KindReferenceList) }

// Function appends a tree_function Parameter.
func (t *TypeBuilder) Function(name string) *TypeBuilder {
	return t.Param(name, domain.KindTreeFunction)
}

// Expressible marks the last declared Parameter as expressible.
func (t *TypeBuilder) Expressible() *TypeBuilder {
	if n := len(t.t.Params); n > 0 {
		t.t.Params[n-1].Expressible = true
	}
	return t
}

// Validator sets the semantic check run by Document.Validate.
func (t *TypeBuilder) Validator(fn func(registry.NodeView) error) *TypeBuilder {
	t.t.Validate = fn
	return t
}

// Build returns the declaration.
func (t *TypeBuilder) Build() registry.NodeType {
	return t.t
}

// Register adds the type to reg.
func (t *TypeBuilder) Register(reg *registry.Registry) error {
	if err := reg.RegisterType(t.t); err != nil {
		return fmt.Errorf("dsl: %w", err)
	}
	return nil
}

// MustRegister is Register that panics on error.
func (t *TypeBuilder) MustRegister(reg *registry.Registry) {
	if err := t.Register(reg); err != nil {
		panic(err)
	}
}
