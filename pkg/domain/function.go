package domain

import (
	"fmt"
	"slices"
	"strings"
)

// Priority breaks ties between independent Tree Functions in a schedule.
type Priority uint8

const (
	PriorityNormal Priority = iota
	PriorityHigh
)

func (p Priority) String() string {
	if p == PriorityHigh {
		return "high"
	}
	return "normal"
}

func (p Priority) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

func (p *Priority) UnmarshalText(b []byte) error {
	switch string(b) {
	case "high":
		*p = PriorityHigh
	case "normal", "":
		*p = PriorityNormal
	default:
		return fmt.Errorf("unknown priority %q", string(b))
	}
	return nil
}

// FunctionBinding binds a Tree Function to concrete input and output Parameters.
// It is stored as the value of a tree_function Parameter, so the graph is plain data.
type FunctionBinding struct {
	Function FunctionID `json:"function"`
	Inputs   []GID      `json:"inputs,omitempty"`
	Outputs  []GID      `json:"outputs,omitempty"`
	Priority Priority   `json:"priority,omitempty"`
}

// Clone returns a deep copy.
func (b FunctionBinding) Clone() FunctionBinding {
	b.Inputs = slices.Clone(b.Inputs)
	b.Outputs = slices.Clone(b.Outputs)
	return b
}

// Equal compares function, priority and both GID lists in order.
func (b FunctionBinding) Equal(o FunctionBinding) bool {
	return b.Function == o.Function &&
		b.Priority == o.Priority &&
		slices.Equal(b.Inputs, o.Inputs) &&
		slices.Equal(b.Outputs, o.Outputs)
}

// GIDs returns inputs followed by outputs.
func (b FunctionBinding) GIDs() []GID {
	out := make([]GID, 0, len(b.Inputs)+len(b.Outputs))
	out = append(out, b.Inputs...)
	return append(out, b.Outputs...)
}

func (b FunctionBinding) String() string {
	join := func(ids []GID) string {
		parts := make([]string, len(ids))
		for i, id := range ids {
			parts[i] = id.String()
		}
		return strings.Join(parts, ",")
	}
	return fmt.Sprintf("%s(%s)->(%s)", b.Function, join(b.Inputs), join(b.Outputs))
}

// Variable binds a name used in an expression to the Parameter providing its value.
type Variable struct {
	Name   string `json:"name"`
	Source GID    `json:"source"`
}

// Evaluation is the expression record of an expressible Parameter.
type Evaluation struct {
	Expression string     `json:"expression"`
	Variables  []Variable `json:"variables,omitempty"`
}

// Clone returns a deep copy.
func (e Evaluation) Clone() Evaluation {
	e.Variables = slices.Clone(e.Variables)
	return e
}

// ModificationState tracks how a Parameter was last changed.
type ModificationState uint8

const (
	Pristine ModificationState = iota
	Touched
	// Silent changes are journaled for undo but do not trigger execution.
	Silent
)

func (s ModificationState) String() string {
	switch s {
	case Touched:
		return "touched"
	case Silent:
		return "silent"
	}
	return "pristine"
}
