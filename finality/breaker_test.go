package finality

import "testing"

func TestTransition_Table(t *testing.T) {
	const maxAttempts = 3

	tests := []struct {
		name  string
		state State
		event Event
		want  State
	}{
		{"running fails into sync", State{Phase: PhaseRunning}, EventFinalityFailed, State{Phase: PhaseSyncing, Attempt: 1}},
		{"sync success returns to running", State{Phase: PhaseSyncing, Attempt: 2}, EventSyncSucceeded, State{Phase: PhaseRunning}},
		{"sync failure increments attempt", State{Phase: PhaseSyncing, Attempt: 1}, EventSyncFailed, State{Phase: PhaseSyncing, Attempt: 2}},
		{"sync failure at max halts", State{Phase: PhaseSyncing, Attempt: 3}, EventSyncFailed, State{Phase: PhaseHalted}},
		{"manual intervention resets", State{Phase: PhaseHalted}, EventManualIntervention, State{Phase: PhaseRunning}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Transition(tt.state, tt.event, maxAttempts)
			if got != tt.want {
				t.Errorf("Transition(%v, %v) = %v, want %v", tt.state, tt.event, got, tt.want)
			}
		})
	}
}

// Every (state, event) pair outside the table must leave state unchanged.
func TestTransition_UndefinedPairsAreNoOps(t *testing.T) {
	const maxAttempts = 3

	states := []State{
		{Phase: PhaseRunning},
		{Phase: PhaseSyncing, Attempt: 1},
		{Phase: PhaseSyncing, Attempt: 2},
		{Phase: PhaseSyncing, Attempt: 3},
		{Phase: PhaseHalted},
	}
	events := []Event{EventFinalityFailed, EventSyncSucceeded, EventSyncFailed, EventManualIntervention}

	defined := func(s State, e Event) bool {
		switch {
		case s.Phase == PhaseRunning && e == EventFinalityFailed:
			return true
		case s.Phase == PhaseSyncing && (e == EventSyncSucceeded || e == EventSyncFailed):
			return true
		case s.Phase == PhaseHalted && e == EventManualIntervention:
			return true
		}
		return false
	}

	for _, s := range states {
		for _, e := range events {
			if defined(s, e) {
				continue
			}
			if got := Transition(s, e, maxAttempts); got != s {
				t.Errorf("Transition(%v, %v) = %v, want unchanged", s, e, got)
			}
		}
	}
}

// Driving failures from Running reaches halted exactly after max attempts:
// not before, not after.
func TestBreaker_HaltsAfterMaxAttempts(t *testing.T) {
	b := newBreaker(3)

	state, _ := b.apply(EventFinalityFailed)
	if state.Phase != PhaseSyncing || state.Attempt != 1 {
		t.Fatalf("after finality failure: %v", state)
	}

	state, _ = b.apply(EventSyncFailed)
	if state.Phase != PhaseSyncing || state.Attempt != 2 {
		t.Fatalf("after first sync failure: %v", state)
	}
	state, _ = b.apply(EventSyncFailed)
	if state.Phase != PhaseSyncing || state.Attempt != 3 {
		t.Fatalf("after second sync failure: %v", state)
	}
	state, _ = b.apply(EventSyncFailed)
	if state.Phase != PhaseHalted {
		t.Fatalf("after third sync failure: %v, want halted", state)
	}

	// Further failures are no-ops in halted.
	state, changed := b.apply(EventSyncFailed)
	if changed || state.Phase != PhaseHalted {
		t.Fatalf("halted state moved on undefined event: %v", state)
	}

	state, _ = b.apply(EventManualIntervention)
	if state.Phase != PhaseRunning {
		t.Fatalf("manual intervention: %v, want running", state)
	}
}
