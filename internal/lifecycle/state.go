package lifecycle

import (
	"errors"
	"fmt"
	"time"
)

// State is the persisted lifecycle state of the host as seen by the sentinel.
type State string

const (
	StateUnknown      State = "unknown"
	StateOffline      State = "offline"
	StateBooting      State = "booting"
	StateOnline       State = "online"
	StateShuttingDown State = "shutting_down"
)

// Event is a transition trigger. Events come from the heartbeat monitor,
// the handshake endpoints and the wake sequencer.
type Event string

const (
	// EventProbeSucceeded — a health probe reached the host.
	EventProbeSucceeded Event = "probe_succeeded"
	// EventHostLost — consecutive heartbeat failures reached the threshold.
	EventHostLost Event = "host_lost"
	// EventWakeRequested — a wake request was accepted.
	EventWakeRequested Event = "wake_requested"
	// EventWakeExhausted — the wake attempt budget ran out.
	EventWakeExhausted Event = "wake_exhausted"
	// EventGoingOffline — authenticated going-offline notification.
	EventGoingOffline Event = "going_offline"
	// EventComingOnline — authenticated coming-online notification.
	EventComingOnline Event = "coming_online"
	// EventShutdownFinalized — the shutdown acknowledgment went out.
	EventShutdownFinalized Event = "shutdown_finalized"
)

// SideEffect is an external action tied to a committed transition. Effects
// are executed by the orchestrator after the new state is persisted; they are
// never executed for a rejected transition.
type SideEffect int

const (
	// EffectNamingHost points the shared hostname at the host.
	EffectNamingHost SideEffect = iota
	// EffectNamingSentinel points the shared hostname at the sentinel.
	EffectNamingSentinel
	// EffectSendWake emits the Wake-on-LAN packet.
	EffectSendWake
	// EffectStoreSnapshot persists the host's shutdown snapshot verbatim.
	EffectStoreSnapshot
	// EffectFlushInbox relocates queued inbox files to the host.
	EffectFlushInbox
)

// ErrInvalidTransition marks a transition request that is not in the legal
// transition table. It is a logic error on the caller's side, never retried.
var ErrInvalidTransition = errors.New("invalid lifecycle transition")

// transitions is the legal transition table. A missing entry means the
// event is rejected in that state.
var transitions = map[State]map[Event]State{
	StateUnknown: {
		EventProbeSucceeded: StateOnline,
		EventComingOnline:   StateOnline,
		EventHostLost:       StateOffline,
	},
	StateOffline: {
		EventWakeRequested:  StateBooting,
		EventProbeSucceeded: StateOnline,
		EventComingOnline:   StateOnline,
	},
	StateBooting: {
		EventProbeSucceeded: StateOnline,
		EventComingOnline:   StateOnline,
		EventWakeExhausted:  StateOffline,
	},
	StateOnline: {
		EventGoingOffline: StateShuttingDown,
		EventHostLost:     StateOffline,
	},
	StateShuttingDown: {
		EventComingOnline:      StateOnline,
		EventShutdownFinalized: StateOffline,
	},
}

// effectsFor returns the side effects that accompany entry into a state.
func effectsFor(to State) []SideEffect {
	switch to {
	case StateOnline:
		return []SideEffect{EffectNamingHost, EffectFlushInbox}
	case StateBooting:
		return []SideEffect{EffectNamingSentinel, EffectSendWake}
	case StateShuttingDown:
		return []SideEffect{EffectStoreSnapshot, EffectNamingSentinel}
	case StateOffline:
		return []SideEffect{EffectNamingSentinel}
	default:
		return nil
	}
}

// Next is the pure transition function: given the current state and an event
// it returns the new state and the side effects the driver must execute.
// Duplicate handshake notifications (coming-online while online, going-offline
// while shutting_down) are no-op successes that re-emit their effects so the
// driver converges even after a partial failure.
func Next(current State, event Event) (State, []SideEffect, error) {
	// Idempotent duplicates.
	if current == StateOnline && event == EventComingOnline {
		return StateOnline, effectsFor(StateOnline), nil
	}
	if current == StateShuttingDown && event == EventGoingOffline {
		return StateShuttingDown, effectsFor(StateShuttingDown), nil
	}

	valid, ok := transitions[current]
	if !ok {
		return current, nil, fmt.Errorf("%w: unknown state %q", ErrInvalidTransition, current)
	}
	next, ok := valid[event]
	if !ok {
		return current, nil, fmt.Errorf("%w: %s not allowed in state %s", ErrInvalidTransition, event, current)
	}
	return next, effectsFor(next), nil
}

// Status is the externally visible lifecycle state.
type Status struct {
	State State     `json:"state"`
	Since time.Time `json:"since"`
}
