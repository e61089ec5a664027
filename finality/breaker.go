package finality

import "fmt"

// Phase is the circuit breaker phase.
type Phase uint8

const (
	// PhaseRunning is normal operation.
	PhaseRunning Phase = iota
	// PhaseSyncing is bounded recovery after a finality failure.
	PhaseSyncing
	// PhaseHalted is terminal until manual intervention.
	PhaseHalted
)

func (p Phase) String() string {
	switch p {
	case PhaseRunning:
		return "running"
	case PhaseSyncing:
		return "syncing"
	case PhaseHalted:
		return "halted_awaiting_intervention"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(p))
	}
}

// State is the circuit breaker state. Attempt is meaningful only while
// syncing, where it is >= 1.
type State struct {
	Phase   Phase
	Attempt uint32
}

func (s State) String() string {
	if s.Phase == PhaseSyncing {
		return fmt.Sprintf("syncing(attempt=%d)", s.Attempt)
	}
	return s.Phase.String()
}

// Event drives circuit breaker transitions.
type Event uint8

const (
	// EventFinalityFailed fires when justification could not make progress
	// for a processed epoch. Absence of new attestations is not a failure.
	EventFinalityFailed Event = iota
	// EventSyncSucceeded fires when a recovery attempt restores progress.
	EventSyncSucceeded
	// EventSyncFailed fires on recovery timeout or downstream failure.
	EventSyncFailed
	// EventManualIntervention is the operator reset from halted.
	EventManualIntervention
)

func (e Event) String() string {
	switch e {
	case EventFinalityFailed:
		return "finality_failed"
	case EventSyncSucceeded:
		return "sync_succeeded"
	case EventSyncFailed:
		return "sync_failed"
	case EventManualIntervention:
		return "manual_intervention"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(e))
	}
}

// Transition is the pure circuit breaker transition function. Any
// (state, event) pair outside the table returns the state unchanged.
//
//	running          --finality_failed-->     syncing(1)
//	syncing(n)       --sync_succeeded-->      running
//	syncing(n<max)   --sync_failed-->         syncing(n+1)
//	syncing(max)     --sync_failed-->         halted
//	halted           --manual_intervention--> running
//
// Bounded attempts distinguish a transient partition from a mathematically
// impossible supermajority, where retrying forever would livelock.
func Transition(s State, e Event, maxAttempts uint32) State {
	switch {
	case s.Phase == PhaseRunning && e == EventFinalityFailed:
		return State{Phase: PhaseSyncing, Attempt: 1}
	case s.Phase == PhaseSyncing && e == EventSyncSucceeded:
		return State{Phase: PhaseRunning}
	case s.Phase == PhaseSyncing && e == EventSyncFailed:
		if s.Attempt >= maxAttempts {
			return State{Phase: PhaseHalted}
		}
		return State{Phase: PhaseSyncing, Attempt: s.Attempt + 1}
	case s.Phase == PhaseHalted && e == EventManualIntervention:
		return State{Phase: PhaseRunning}
	default:
		return s
	}
}

// breaker holds the single process-wide breaker value as an owned field of
// the engine. It is not safe for concurrent use; the engine serializes
// access under its own lock.
type breaker struct {
	state       State
	maxAttempts uint32
}

func newBreaker(maxAttempts uint32) *breaker {
	return &breaker{state: State{Phase: PhaseRunning}, maxAttempts: maxAttempts}
}

// apply advances the breaker and reports whether the state changed.
func (b *breaker) apply(e Event) (State, bool) {
	next := Transition(b.state, e, b.maxAttempts)
	changed := next != b.state
	b.state = next
	return next, changed
}
