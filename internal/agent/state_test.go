package agent

import "testing"

func TestNext_Transitions(t *testing.T) {
	tests := []struct {
		name  string
		state State
		res   PhaseResult
		want  State
	}{
		{"generate ok", StateGenerate, PhaseResult{OK: true}, StateValidate},
		{"generate retry", StateGenerate, PhaseResult{AttemptsLeft: true}, StateGenerate},
		{"generate exhausted", StateGenerate, PhaseResult{}, StateFailed},
		{"validate ok", StateValidate, PhaseResult{OK: true}, StateExecute},
		{"validate retry", StateValidate, PhaseResult{AttemptsLeft: true}, StateGenerate},
		{"validate exhausted", StateValidate, PhaseResult{}, StateFailed},
		{"execute ok", StateExecute, PhaseResult{OK: true}, StateSummarize},
		{"execute retry", StateExecute, PhaseResult{AttemptsLeft: true}, StateGenerate},
		{"execute exhausted", StateExecute, PhaseResult{}, StateFailed},
		{"summarize always done", StateSummarize, PhaseResult{}, StateDone},
		{"done terminal", StateDone, PhaseResult{OK: true}, StateDone},
		{"failed terminal", StateFailed, PhaseResult{OK: true}, StateFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Next(tt.state, tt.res); got != tt.want {
				t.Errorf("Next(%v, %+v) = %v, want %v", tt.state, tt.res, got, tt.want)
			}
		})
	}
}

func TestState_String(t *testing.T) {
	states := map[State]string{
		StateGenerate:  "generate",
		StateValidate:  "validate",
		StateExecute:   "execute",
		StateSummarize: "summarize",
		StateDone:      "done",
		StateFailed:    "failed",
	}
	for s, want := range states {
		if got := s.String(); got != want {
			t.Errorf("%d.String() = %q, want %q", s, got, want)
		}
	}
}
