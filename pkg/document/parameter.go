package document

import (
	"github.com/aretw0/actdata/pkg/domain"
	"github.com/aretw0/actdata/pkg/registry"
)

// Parameter is a handle on one typed data cell of a Node.
type Parameter struct {
	doc  *Document
	gid  domain.GID
	decl registry.ParamDecl
}

// GID returns the Parameter's global address.
func (p *Parameter) GID() domain.GID { return p.gid }

// Name returns the declared name.
func (p *Parameter) Name() string { return p.decl.Name }

// Kind returns the declared value kind.
func (p *Parameter) Kind() domain.ValueKind { return p.decl.Kind }

// Expressible reports whether the Parameter accepts an Evaluation.
func (p *Parameter) Expressible() bool { return p.decl.Expressible }

func (p *Parameter) slot() (*paramRec, error) {
	n, _, err := p.doc.lookup(p.gid)
	if err != nil {
		return nil, err
	}
	return &n.params[p.gid.Param], nil
}

func (p *Parameter) fail(err error) error {
	return &domain.ParameterError{GID: p.gid, Err: err}
}

// GetValue returns a copy of the value. It fails with ErrNotWellFormed when the
// Parameter was never set, and with ErrTypeMismatch for group Parameters.
func (p *Parameter) GetValue() (domain.Value, error) {
	rec, err := p.slot()
	if err != nil {
		return domain.Value{}, err
	}
	if p.decl.Kind == domain.KindGroup {
		return domain.Value{}, p.fail(domain.ErrTypeMismatch)
	}
	if !rec.set {
		return domain.Value{}, p.fail(domain.ErrNotWellFormed)
	}
	return rec.value.Clone(), nil
}

// SetValue stores v and touches the Parameter, so dependent functions run on Commit.
func (p *Parameter) SetValue(v domain.Value) error {
	return p.set(v, false)
}

// SetValueSilently stores v without touching the Parameter. The change is journaled
// for Abort and Undo but does not trigger execution.
func (p *Parameter) SetValueSilently(v domain.Value) error {
	return p.set(v, true)
}

func (p *Parameter) set(v domain.Value, silent bool) error {
	d := p.doc
	if d.tx == nil {
		return domain.ErrNoActiveTransaction
	}
	rec, err := p.slot()
	if err != nil {
		return err
	}
	if p.decl.Kind == domain.KindGroup || v.Kind != p.decl.Kind {
		return p.fail(domain.ErrTypeMismatch)
	}
	if v.Kind == domain.KindTreeFunction {
		if v.Binding == nil {
			return p.fail(domain.ErrTypeMismatch)
		}
		if err := d.checkBinding(p.gid, *v.Binding); err != nil {
			return p.fail(err)
		}
	}

	before := rec.clone()
	rec.value = v.Clone()
	rec.set = true
	d.record(paramChange{gid: p.gid, before: before, after: rec.clone()})

	if silent {
		d.tx.mods.touchSilently(p.gid)
	} else {
		d.tx.mods.touch(p.gid)
	}
	return nil
}

// Touch marks the Parameter as modified without changing its value.
func (p *Parameter) Touch() error {
	if p.doc.tx == nil {
		return domain.ErrNoActiveTransaction
	}
	if _, err := p.slot(); err != nil {
		return err
	}
	p.doc.tx.mods.touch(p.gid)
	return nil
}

// IsWellFormed applies the kind-specific predicate: groups always are; references need
// live targets; function bindings need a registered function and resolvable Parameters;
// everything else needs a value.
func (p *Parameter) IsWellFormed() bool {
	if p.decl.Kind == domain.KindGroup {
		return true
	}
	rec, err := p.slot()
	if err != nil || !rec.set {
		return false
	}
	switch p.decl.Kind {
	case domain.KindReference, domain.KindReferenceList:
		for _, ref := range rec.value.NodeRefs() {
			if _, ok := p.doc.nodes[ref]; !ok {
				return false
			}
		}
		if p.decl.Kind == domain.KindReference && rec.value.Ref.IsZero() {
			return false
		}
	case domain.KindTreeFunction:
		b := rec.value.Binding
		if b == nil || !p.doc.reg.HasFunction(b.Function) {
			return false
		}
		for _, gid := range b.GIDs() {
			if !p.doc.resolves(gid) {
				return false
			}
		}
	}
	return true
}

func (p *Parameter) isSet() bool {
	rec, err := p.slot()
	return err == nil && rec.set
}

// SetEvaluation records the expression computing this Parameter and touches it. On Commit the
// functions producing the Parameter run again. An empty expression clears the record.
// Only expressible Parameters accept one.
func (p *Parameter) SetEvaluation(expression string, vars ...domain.Variable) error {
	d := p.doc
	if d.tx == nil {
		return domain.ErrNoActiveTransaction
	}
	if !p.decl.Expressible {
		return p.fail(domain.ErrTypeMismatch)
	}
	rec, err := p.slot()
	if err != nil {
		return err
	}

	before := rec.clone()
	if expression == "" {
		rec.eval = nil
	} else {
		e := domain.Evaluation{Expression: expression, Variables: vars}.Clone()
		rec.eval = &e
	}
	d.record(paramChange{gid: p.gid, before: before, after: rec.clone()})
	d.tx.mods.touch(p.gid)
	d.tx.mods.evaluate(p.gid)
	return nil
}

// Evaluation returns the expression record, or nil when none is set.
func (p *Parameter) Evaluation() (*domain.Evaluation, error) {
	if !p.decl.Expressible {
		return nil, p.fail(domain.ErrTypeMismatch)
	}
	rec, err := p.slot()
	if err != nil {
		return nil, err
	}
	if rec.eval == nil {
		return nil, nil
	}
	e := rec.eval.Clone()
	return &e, nil
}

// IsStale reports whether a consuming function has yet to recompute this Parameter.
func (p *Parameter) IsStale() bool {
	rec, err := p.slot()
	return err == nil && rec.stale
}

// State reports how the Parameter was changed in the open transaction.
func (p *Parameter) State() domain.ModificationState {
	tx := p.doc.tx
	switch {
	case tx == nil:
		return domain.Pristine
	case tx.mods.IsTouched(p.gid):
		return domain.Touched
	case tx.mods.IsSilent(p.gid):
		return domain.Silent
	}
	return domain.Pristine
}
