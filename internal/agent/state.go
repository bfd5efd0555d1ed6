package agent

// State identifies a phase of the query loop.
type State int

const (
	StateGenerate State = iota
	StateValidate
	StateExecute
	StateSummarize
	StateDone
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateGenerate:
		return "generate"
	case StateValidate:
		return "validate"
	case StateExecute:
		return "execute"
	case StateSummarize:
		return "summarize"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// PhaseResult reports the outcome of the phase that just ran.
type PhaseResult struct {
	// OK means the phase succeeded and the loop advances.
	OK bool
	// AttemptsLeft means a failed phase may loop back to generation.
	AttemptsLeft bool
}

// Next is the pure transition function of the query loop. A failed
// generate/validate/execute phase returns to StateGenerate while attempts
// remain and to StateFailed otherwise. Summarization always completes:
// its failures degrade to fallback text instead of retrying, because the
// query result is already the valuable artifact.
func Next(s State, r PhaseResult) State {
	switch s {
	case StateGenerate:
		if r.OK {
			return StateValidate
		}
	case StateValidate:
		if r.OK {
			return StateExecute
		}
	case StateExecute:
		if r.OK {
			return StateSummarize
		}
	case StateSummarize:
		return StateDone
	default:
		// Terminal states transition to themselves.
		return s
	}

	if r.AttemptsLeft {
		return StateGenerate
	}
	return StateFailed
}
