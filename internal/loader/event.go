package loader

import (
	"github.com/Brownie44l1/lesion-api/internal/model"
)

type State int32

const (
	StateIdle State = iota
	StateLoading
	StateSucceeded
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateLoading:
		return "loading"
	case StateSucceeded:
		return "succeeded"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

type Kind int

const (
	KindProgress Kind = iota
	KindOutcome
)

// Event is either a progress tick (percent in [0,100]) or the terminal
// outcome, as told by Kind.
type Event struct {
	Kind     Kind
	Progress int
	Outcome  Outcome
}

// Outcome carries exactly one of Handle or Err.
type Outcome struct {
	Handle model.Handle
	Err    error
}

func Success(h model.Handle) Outcome {
	return Outcome{Handle: h}
}

func Failure(err error) Outcome {
	return Outcome{Err: err}
}

func (o Outcome) OK() bool {
	return o.Err == nil && o.Handle != nil
}

// Message is the user-facing description of a failed load.
func (o Outcome) Message() string {
	if o.Err == nil {
		return ""
	}
	return o.Err.Error()
}
