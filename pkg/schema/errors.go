package schema

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// ValidationError represents a single field validation failure.
type ValidationError struct {
	Key    string // Field path
	Reason string // Human-readable reason for failure
	Value  any    // The value that failed validation
	Err    error  // Underlying cause, if any
}

func (e *ValidationError) Error() string {
	if e.Value == nil {
		return fmt.Sprintf("field %q: %s", e.Key, e.Reason)
	}
	return fmt.Sprintf("field %q: %s (got %T)", e.Key, e.Reason, e.Value)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// AggregateError represents multiple validation failures.
type AggregateError struct {
	Errors []error
}

func (e *AggregateError) Error() string {
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%d validation errors:\n", len(e.Errors))
	for i, err := range e.Errors {
		fmt.Fprintf(&b, "  %d. %s\n", i+1, err.Error())
	}
	return b.String()
}

func (e *AggregateError) Unwrap() []error {
	return e.Errors
}

// ValidationErrors returns all validation errors if err is an AggregateError.
// Otherwise returns nil.
func ValidationErrors(err error) []error {
	var aggr *AggregateError
	if errors.As(err, &aggr) {
		return aggr.Errors
	}
	return nil
}

// fromValidator converts struct tag failures into ValidationErrors keyed by YAML path.
func fromValidator(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	out := &AggregateError{}
	for _, e := range verrs {
		out.Errors = append(out.Errors, &ValidationError{
			Key:    yamlPath(e.Namespace()),
			Reason: reason(e),
			Value:  e.Value(),
		})
	}
	return out
}

// yamlPath drops the root struct name from a validator namespace.
func yamlPath(ns string) string {
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return ns
}

func reason(e validator.FieldError) string {
	switch e.Tag() {
	case "required":
		return "required"
	case "required_if":
		return fmt.Sprintf("required when %s", strings.Replace(e.Param(), " ", " is ", 1))
	case "oneof":
		return fmt.Sprintf("must be one of %s", e.Param())
	case "min":
		return fmt.Sprintf("must have at least %s entries", e.Param())
	case "gte":
		return fmt.Sprintf("must be at least %s", e.Param())
	case "valuekind":
		return "unknown value kind"
	case "unique":
		return fmt.Sprintf("duplicate %s", strings.ToLower(e.Param()))
	default:
		return fmt.Sprintf("failed %s", e.Tag())
	}
}
