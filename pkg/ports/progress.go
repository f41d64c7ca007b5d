package ports

import "github.com/aretw0/actdata/pkg/domain"

// Progress is the cooperative progress and cancellation service of an execution pass.
// IsCancelled is polled between Tree Functions, never during one.
type Progress interface {
	IsCancelled() bool
	Report(p domain.Progress)
}

// NopProgress never cancels and discards reports.
type NopProgress struct{}

func (NopProgress) IsCancelled() bool      { return false }
func (NopProgress) Report(domain.Progress) {}

// ProgressFunc adapts a report callback into a Progress that is never cancelled.
type ProgressFunc func(domain.Progress)

func (f ProgressFunc) IsCancelled() bool        { return false }
func (f ProgressFunc) Report(p domain.Progress) { f(p) }
