package domain

import "time"

// FunctionStatus is the outcome of a Tree Function in the latest execution pass.
type FunctionStatus string

const (
	StatusPending   FunctionStatus = "pending"
	StatusSucceeded FunctionStatus = "succeeded"
	StatusFailed    FunctionStatus = "failed"
	// StatusBlocked marks functions downstream of a failure. They were not executed.
	StatusBlocked   FunctionStatus = "blocked"
	StatusCancelled FunctionStatus = "cancelled"
)

// FunctionRun is the per-function entry of an ExecutionReport.
type FunctionRun struct {
	Host     GID            `json:"host"`
	Function FunctionID     `json:"function"`
	Pass     int            `json:"pass"`
	Status   FunctionStatus `json:"status"`
	Error    string         `json:"error,omitempty"`
	Duration time.Duration  `json:"duration"`
}

// ExecutionReport summarises everything the engine did during one commit.
type ExecutionReport struct {
	Document  string        `json:"document"`
	Passes    int           `json:"passes"`
	Runs      []FunctionRun `json:"runs"`
	Cancelled bool          `json:"cancelled,omitempty"`
	Duration  time.Duration `json:"duration"`
}

// Executed returns the hosts of functions that ran (succeeded or failed), in execution order.
func (r *ExecutionReport) Executed() []GID {
	if r == nil {
		return nil
	}
	var out []GID
	for _, run := range r.Runs {
		if run.Status == StatusSucceeded || run.Status == StatusFailed {
			out = append(out, run.Host)
		}
	}
	return out
}

// Status returns the last recorded status of the function hosted at host.
func (r *ExecutionReport) Status(host GID) (FunctionStatus, bool) {
	if r == nil {
		return "", false
	}
	for i := len(r.Runs) - 1; i >= 0; i-- {
		if r.Runs[i].Host == host {
			return r.Runs[i].Status, true
		}
	}
	return "", false
}

// Failed reports whether any function failed.
func (r *ExecutionReport) Failed() bool {
	if r == nil {
		return false
	}
	for _, run := range r.Runs {
		if run.Status == StatusFailed {
			return true
		}
	}
	return false
}

// Progress is handed to the progress service once per scheduled function.
type Progress struct {
	Document string
	Pass     int
	Done     int
	Total    int
	Host     GID
	Function FunctionID
}
