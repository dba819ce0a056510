package entitlement

import (
	"context"
	"errors"

	loopfsm "github.com/looplab/fsm"
)

// TransitionEvent names a state-machine trigger. Gateway event types
// map onto these; administrative suspend/resume share the same table.
type TransitionEvent string

const (
	TransitionActivate         TransitionEvent = "activate"
	TransitionPaymentSucceeded TransitionEvent = "payment_succeeded"
	TransitionPaymentFailed    TransitionEvent = "payment_failed"
	TransitionDelete           TransitionEvent = "delete"
	TransitionSuspend          TransitionEvent = "suspend"
	TransitionResume           TransitionEvent = "resume"
)

// transition declares one legal state change.
type transition struct {
	Event TransitionEvent
	Src   State
	Dst   State
}

// transitions is the complete legal move set. Anything not listed is an
// illegal move and is treated as stale rather than raised, since the
// event sender cannot act on it.
var transitions = []transition{
	{TransitionActivate, StatePending, StateActive},

	{TransitionPaymentSucceeded, StatePastDue, StateActive},

	{TransitionPaymentFailed, StateActive, StatePastDue},

	{TransitionDelete, StateActive, StateCancelled},
	{TransitionDelete, StatePastDue, StateCancelled},
	{TransitionDelete, StatePending, StateCancelled},
	{TransitionDelete, StateSuspended, StateCancelled},

	{TransitionSuspend, StateActive, StateSuspended},
	{TransitionSuspend, StatePastDue, StateSuspended},
	{TransitionSuspend, StatePending, StateSuspended},

	{TransitionResume, StateSuspended, StateActive},
}

// fsmEvents converts the transitions table into looplab/fsm event
// descriptors, consolidating moves that share an event and destination.
var fsmEvents = buildFSMEvents()

func buildFSMEvents() []loopfsm.EventDesc {
	type key struct {
		event TransitionEvent
		dst   State
	}
	grouped := make(map[key][]string)
	order := make([]key, 0, len(transitions))

	for _, t := range transitions {
		k := key{event: t.Event, dst: t.Dst}
		if _, seen := grouped[k]; !seen {
			order = append(order, k)
		}
		grouped[k] = append(grouped[k], string(t.Src))
	}

	out := make([]loopfsm.EventDesc, 0, len(order))
	for _, k := range order {
		out = append(out, loopfsm.EventDesc{
			Name: string(k.event),
			Src:  grouped[k],
			Dst:  string(k.dst),
		})
	}
	return out
}

// applyTransition validates a trigger against the current state and
// returns the resulting state. A short-lived FSM is built per call
// because looplab/fsm tracks the current state internally. Illegal
// moves return ErrStaleEvent; a trigger whose destination equals the
// current state is reported as a legal no-op (ok=false, nil error).
func applyTransition(ctx context.Context, current State, event TransitionEvent) (next State, changed bool, err error) {
	machine := loopfsm.NewFSM(string(current), fsmEvents, nil)

	if err := machine.Event(ctx, string(event)); err != nil {
		var noTransition loopfsm.NoTransitionError
		if errors.As(err, &noTransition) {
			// Source equals destination: legal, nothing to change.
			return current, false, nil
		}
		var invalidEvent loopfsm.InvalidEventError
		if errors.As(err, &invalidEvent) {
			return current, false, ErrStaleEvent
		}
		return current, false, err
	}

	return State(machine.Current()), true, nil
}
