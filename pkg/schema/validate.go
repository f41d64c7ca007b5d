package schema

import (
	"fmt"
	"sort"

	"github.com/aretw0/actdata/pkg/domain"
	"github.com/aretw0/actdata/pkg/registry"
)

// ValidateValues checks raw values keyed by parameter name against typ and returns them
// converted, keyed by index. Every failure is reported, in name order.
func ValidateValues(typ registry.NodeType, values map[string]any) (map[domain.ParamIndex]domain.Value, error) {
	names := make([]string, 0, len(values))
	for name := range values {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make(map[domain.ParamIndex]domain.Value, len(values))
	var errs []error
	for _, name := range names {
		raw := values[name]
		decl, ok := typ.ParamByName(name)
		if !ok {
			errs = append(errs, &ValidationError{
				Key:    name,
				Reason: fmt.Sprintf("not a parameter of %s", typ.ID),
			})
			continue
		}
		v, err := Coerce(decl.Kind, raw)
		if err != nil {
			errs = append(errs, &ValidationError{Key: name, Reason: err.Error(), Value: raw, Err: err})
			continue
		}
		out[decl.Index] = v
	}
	if len(errs) > 0 {
		return nil, &AggregateError{Errors: errs}
	}
	return out, nil
}

// ValidateFields checks that every listed parameter is present in values and coerces.
func ValidateFields(typ registry.NodeType, values map[string]any, fields ...string) error {
	var errs []error
	for _, name := range fields {
		if _, ok := typ.ParamByName(name); !ok {
			errs = append(errs, &ValidationError{Key: name, Reason: "not defined in schema"})
			continue
		}
		if _, ok := values[name]; !ok {
			errs = append(errs, &ValidationError{Key: name, Reason: "required"})
		}
	}
	if len(errs) > 0 {
		return &AggregateError{Errors: errs}
	}
	_, err := ValidateValues(typ, values)
	return err
}
