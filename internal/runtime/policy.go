package runtime

import "fmt"

// RetouchPolicy decides what happens when a Tree Function writes a Parameter that a function
// already executed in the same commit has read.
type RetouchPolicy int

const (
	// RetouchError treats a re-touch as a modelling error and aborts the commit.
	RetouchError RetouchPolicy = iota
	// RetouchIterate schedules the re-touched Parameter into another pass, up to the pass bound.
	RetouchIterate
)

func (p RetouchPolicy) String() string {
	if p == RetouchIterate {
		return "iterate"
	}
	return "error"
}

// ParseRetouchPolicy maps "error" and "iterate" to a policy. Empty means RetouchError.
func ParseRetouchPolicy(s string) (RetouchPolicy, error) {
	switch s {
	case "", "error":
		return RetouchError, nil
	case "iterate":
		return RetouchIterate, nil
	}
	return RetouchError, fmt.Errorf("unknown retouch policy %q", s)
}
