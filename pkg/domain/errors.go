package domain

import (
	"errors"
	"fmt"
	"strings"
)

// ErrTypeMismatch is returned when a value's kind differs from the Parameter's declared kind.
var ErrTypeMismatch = errors.New("type mismatch")

// ErrNotWellFormed is returned when reading a Parameter that was never initialised.
var ErrNotWellFormed = errors.New("parameter not well formed")

// ErrUnknownParameterID is returned for a parameter index outside the Node type layout.
var ErrUnknownParameterID = errors.New("unknown parameter id")

// ErrOutOfRange is returned for an ordinal that addresses no live Node.
var ErrOutOfRange = errors.New("ordinal out of range")

// ErrNoActiveTransaction is returned for mutations outside an open transaction.
var ErrNoActiveTransaction = errors.New("no active transaction")

// ErrTransactionActive is returned when opening a transaction while another is open.
var ErrTransactionActive = errors.New("transaction already active")

// ErrCyclicDependency is returned when the Tree Function graph contains a cycle.
var ErrCyclicDependency = errors.New("cyclic dependency")

// ErrConversionFailed is returned when a document cannot be upgraded to the current version.
var ErrConversionFailed = errors.New("conversion failed")

// ErrDanglingReference is returned when removing a Node that is still referenced.
var ErrDanglingReference = errors.New("dangling reference")

// ErrFunctionExecutionFailed marks a Tree Function whose body returned an error or panicked.
var ErrFunctionExecutionFailed = errors.New("function execution failed")

// ErrRetouchedInput is returned when a function rewrites an input already consumed in the
// same commit and the engine is configured to treat that as a modelling error.
var ErrRetouchedInput = errors.New("input re-touched after consumption")

// ErrNotConverged is returned when execution passes exceed the configured bound.
var ErrNotConverged = errors.New("execution did not converge")

// ErrUnknownType is returned for a TypeID missing from the Registry.
var ErrUnknownType = errors.New("unknown node type")

// ErrUnknownFunction is returned for a FunctionID missing from the Registry.
var ErrUnknownFunction = errors.New("unknown tree function")

// ErrLayoutMismatch is returned when persisted parameters disagree with the registered layout.
var ErrLayoutMismatch = errors.New("parameter layout mismatch")

// ErrDocumentNotFound is returned when a document ID cannot be found in the store.
var ErrDocumentNotFound = errors.New("document not found")

// ErrNothingToUndo is returned by Undo/Redo when the respective stack is empty.
var ErrNothingToUndo = errors.New("nothing to undo")

// ErrPassInProgress is returned when an execution pass is already running on a document.
var ErrPassInProgress = errors.New("execution pass in progress")

// ParameterError attaches the offending Parameter address to an error.
type ParameterError struct {
	GID GID
	Err error
}

func (e *ParameterError) Error() string {
	return fmt.Sprintf("parameter %s: %v", e.GID, e.Err)
}

func (e *ParameterError) Unwrap() error {
	return e.Err
}

// CycleError describes a detected cycle as the list of function host Parameters on it.
type CycleError struct {
	Path []GID
}

func (e *CycleError) Error() string {
	parts := make([]string, len(e.Path))
	for i, g := range e.Path {
		parts[i] = g.String()
	}
	return fmt.Sprintf("%v: %s", ErrCyclicDependency, strings.Join(parts, " -> "))
}

func (e *CycleError) Unwrap() error {
	return ErrCyclicDependency
}

// ConversionError reports the version step at which conversion stopped.
type ConversionError struct {
	From int
	To   int
	Err  error
}

func (e *ConversionError) Error() string {
	return fmt.Sprintf("%v: %d -> %d: %v", ErrConversionFailed, e.From, e.To, e.Err)
}

func (e *ConversionError) Unwrap() []error {
	return []error{ErrConversionFailed, e.Err}
}
