package domain

import (
	"context"
	"time"
)

// EventType defines the category of the event.
type EventType string

const (
	EventFunctionStart EventType = "function_start"
	EventFunctionEnd   EventType = "function_end"
	EventCommit        EventType = "commit"
	EventAbort         EventType = "abort"
)

// EventBase contains common fields for all events.
type EventBase struct {
	Timestamp time.Time `json:"timestamp"`
	Type      EventType `json:"type"`
	Document  string    `json:"document"`
}

// FunctionEvent represents the start or end of a Tree Function execution.
type FunctionEvent struct {
	EventBase
	Host     GID            `json:"host"`
	Function FunctionID     `json:"function"`
	Status   FunctionStatus `json:"status,omitempty"`
	Err      error          `json:"-"`
}

// TransactionEvent represents a commit or abort.
type TransactionEvent struct {
	EventBase
	Transaction string `json:"transaction"`
	Name        string `json:"name,omitempty"`
	Touched     int    `json:"touched"`
}

// LifecycleHooks defines callbacks for engine observability.
type LifecycleHooks struct {
	OnFunctionStart func(context.Context, *FunctionEvent)
	OnFunctionEnd   func(context.Context, *FunctionEvent)
	OnCommit        func(context.Context, *TransactionEvent)
	OnAbort         func(context.Context, *TransactionEvent)
}
