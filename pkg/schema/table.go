package schema

import (
	"fmt"
	"os"
	"reflect"
	"strings"
	"sync"

	"github.com/aretw0/actdata/pkg/domain"
	"github.com/aretw0/actdata/pkg/registry"
	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"
)

// Table is a declarative set of Node types, plus the conversions that bring older
// documents up to its version.
type Table struct {
	Version     int             `yaml:"version" mapstructure:"version" validate:"gte=1"`
	Types       []TypeDef       `yaml:"types" mapstructure:"types" validate:"required,min=1,unique=ID,dive"`
	Conversions []ConversionDef `yaml:"conversions,omitempty" mapstructure:"conversions" validate:"dive"`
}

// TypeDef declares one Node type. Parameters are indexed in order.
type TypeDef struct {
	ID     string     `yaml:"id" mapstructure:"id" validate:"required"`
	Params []ParamDef `yaml:"params" mapstructure:"params" validate:"unique=Name,dive"`
}

// ParamDef declares one Parameter slot.
type ParamDef struct {
	Name        string `yaml:"name" mapstructure:"name" validate:"required"`
	Kind        string `yaml:"kind" mapstructure:"kind" validate:"required,valuekind"`
	Expressible bool   `yaml:"expressible,omitempty" mapstructure:"expressible"`
	Default     any    `yaml:"default,omitempty" mapstructure:"default"`
}

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func tableValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New()
		validate.RegisterTagNameFunc(func(f reflect.StructField) string {
			return yamlName(f)
		})
		_ = validate.RegisterValidation("valuekind", func(fl validator.FieldLevel) bool {
			_, err := domain.ParseKind(fl.Field().String())
			return err == nil
		})
	})
	return validate
}

// Parse decodes and validates a YAML type table. Unknown keys are rejected.
func Parse(data []byte) (*Table, error) {
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse type table: %w", err)
	}
	if raw == nil {
		return nil, fmt.Errorf("parse type table: document is empty")
	}

	t := &Table{Version: 1}
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:      t,
		ErrorUnused: true,
	})
	if err != nil {
		return nil, err
	}
	if err := dec.Decode(raw); err != nil {
		return nil, fmt.Errorf("decode type table: %w", err)
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return t, nil
}

// Load reads and parses the type table at path.
func Load(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read type table: %w", err)
	}
	t, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return t, nil
}

// Validate checks the struct constraints and that every default fits its kind.
func (t *Table) Validate() error {
	if err := tableValidator().Struct(t); err != nil {
		return fromValidator(err)
	}
	var errs []error
	for ti, td := range t.Types {
		for pi, pd := range td.Params {
			if pd.Default == nil {
				continue
			}
			kind, _ := domain.ParseKind(pd.Kind)
			if _, err := Coerce(kind, pd.Default); err != nil {
				errs = append(errs, &ValidationError{
					Key:    fmt.Sprintf("types[%d].params[%d].default", ti, pi),
					Reason: err.Error(),
					Value:  pd.Default,
				})
			}
		}
	}
	errs = append(errs, t.validateConversions()...)
	if len(errs) > 0 {
		return &AggregateError{Errors: errs}
	}
	return nil
}

// NodeTypes converts the table into registry declarations.
func (t *Table) NodeTypes() ([]registry.NodeType, error) {
	out := make([]registry.NodeType, 0, len(t.Types))
	for _, td := range t.Types {
		nt := registry.NodeType{ID: domain.TypeID(td.ID)}
		for i, pd := range td.Params {
			kind, err := domain.ParseKind(pd.Kind)
			if err != nil {
				return nil, fmt.Errorf("type %s: parameter %s: %w", td.ID, pd.Name, err)
			}
			nt.Params = append(nt.Params, registry.ParamDecl{
				Index:       domain.ParamIndex(i),
				Name:        pd.Name,
				Kind:        kind,
				Expressible: pd.Expressible,
			})
		}
		out = append(out, nt)
	}
	return out, nil
}

// Defaults returns the declared default values per type, keyed by parameter index.
func (t *Table) Defaults() (map[domain.TypeID]map[domain.ParamIndex]domain.Value, error) {
	out := make(map[domain.TypeID]map[domain.ParamIndex]domain.Value)
	for _, td := range t.Types {
		for i, pd := range td.Params {
			if pd.Default == nil {
				continue
			}
			kind, err := domain.ParseKind(pd.Kind)
			if err != nil {
				return nil, err
			}
			v, err := Coerce(kind, pd.Default)
			if err != nil {
				return nil, fmt.Errorf("type %s: default of %s: %w", td.ID, pd.Name, err)
			}
			if out[domain.TypeID(td.ID)] == nil {
				out[domain.TypeID(td.ID)] = make(map[domain.ParamIndex]domain.Value)
			}
			out[domain.TypeID(td.ID)][domain.ParamIndex(i)] = v
		}
	}
	return out, nil
}

// Apply registers every type of the table in reg.
func (t *Table) Apply(reg *registry.Registry) error {
	types, err := t.NodeTypes()
	if err != nil {
		return err
	}
	for _, nt := range types {
		if err := reg.RegisterType(nt); err != nil {
			return err
		}
	}
	return nil
}

// NewRegistry builds a registry at the table's version holding its types and conversions.
func (t *Table) NewRegistry(opts ...registry.Option) (*registry.Registry, error) {
	opts = append([]registry.Option{registry.WithVersion(t.Version)}, opts...)
	reg := registry.NewRegistry(opts...)
	if err := t.Apply(reg); err != nil {
		return nil, err
	}
	if err := t.ApplyConversions(reg); err != nil {
		return nil, err
	}
	return reg, nil
}

// FromRegistry describes reg's types as a table, in registration order.
func FromRegistry(reg *registry.Registry) (*Table, error) {
	t := &Table{Version: reg.CurrentVersion()}
	for _, id := range reg.Types() {
		nt, err := reg.Type(id)
		if err != nil {
			return nil, err
		}
		td := TypeDef{ID: string(id)}
		for _, p := range nt.Params {
			td.Params = append(td.Params, ParamDef{Name: p.Name, Kind: p.Kind.String(), Expressible: p.Expressible})
		}
		t.Types = append(t.Types, td)
	}
	return t, nil
}

// Marshal encodes the table as YAML.
func (t *Table) Marshal() ([]byte, error) {
	return yaml.Marshal(t)
}

func yamlName(f reflect.StructField) string {
	name, _, _ := strings.Cut(f.Tag.Get("yaml"), ",")
	if name == "-" {
		return ""
	}
	if name == "" {
		return f.Name
	}
	return name
}
