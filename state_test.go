package codescope_test

import (
	"testing"

	"github.com/agentstation/codescope"
)

func TestStateCanTransition(t *testing.T) {
	tests := []struct {
		from, to codescope.State
		want     bool
	}{
		{codescope.StateStart, codescope.StateDispatched, true},
		{codescope.StateDispatched, codescope.StateAggregating, true},
		{codescope.StateAggregating, codescope.StateSynthesizing, true},
		{codescope.StateSynthesizing, codescope.StateDone, true},
		{codescope.StateStart, codescope.StateFailed, true},
		{codescope.StateSynthesizing, codescope.StateFailed, true},

		{codescope.StateStart, codescope.StateAggregating, false},
		{codescope.StateDispatched, codescope.StateSynthesizing, false},
		{codescope.StateAggregating, codescope.StateDispatched, false},
		{codescope.StateDone, codescope.StateFailed, false},
		{codescope.StateFailed, codescope.StateStart, false},
		{codescope.StateDone, codescope.StateDone, false},
	}

	for _, tt := range tests {
		t.Run(tt.from.String()+"->"+tt.to.String(), func(t *testing.T) {
			if got := tt.from.CanTransition(tt.to); got != tt.want {
				t.Errorf("CanTransition() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestStateTerminal(t *testing.T) {
	for s := codescope.StateStart; s <= codescope.StateFailed; s++ {
		want := s == codescope.StateDone || s == codescope.StateFailed
		if got := s.Terminal(); got != want {
			t.Errorf("%s.Terminal() = %v, want %v", s, got, want)
		}
	}
	if got := codescope.State(42).String(); got != "unknown" {
		t.Errorf("String() = %q, want unknown", got)
	}
}
