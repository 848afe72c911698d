package lifecycle

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Namer updates the shared name-resolution record. The call must be an
// idempotent upsert.
type Namer interface {
	SetRecord(ctx context.Context, ip string) error
}

// WakeSignaller emits the low-level wake packet. Fire and forget; delivery
// is confirmed via the health probe, not here.
type WakeSignaller interface {
	Signal() error
}

// InboxFlusher relocates queued files to the host and reports how many
// were transferred.
type InboxFlusher interface {
	Flush(ctx context.Context) (int, error)
}

// SnapshotStore persists the host's shutdown snapshot verbatim.
type SnapshotStore interface {
	Store(data []byte) error
}

// Result describes a committed transition and the outcome of its side
// effects.
type Result struct {
	Previous       State
	Current        State
	NamingSwitched bool
	FilesRelocated int
}

// Orchestrator owns the lifecycle state machine. All reads and transitions
// go through one mutex so a heartbeat-driven transition and a
// handshake-driven transition can never interleave. Side effects run after
// the new state is persisted, outside the lock; a failed side effect is
// retried by Reconcile on the next heartbeat cycle rather than rolling the
// state back.
type Orchestrator struct {
	logger    *zap.Logger
	store     *Store
	namer     Namer
	waker     WakeSignaller
	flusher   InboxFlusher
	snapshots SnapshotStore

	hostIP     string
	sentinelIP string

	mu    sync.Mutex
	state State
	since time.Time

	namingDirty atomic.Bool

	listenersMu sync.RWMutex
	listeners   []func(prev, next State)
}

// NewOrchestrator loads the persisted state and wires the collaborators.
func NewOrchestrator(
	logger *zap.Logger,
	store *Store,
	namer Namer,
	waker WakeSignaller,
	flusher InboxFlusher,
	snapshots SnapshotStore,
	hostIP, sentinelIP string,
) (*Orchestrator, error) {
	state, since, err := store.Load(context.Background())
	if err != nil {
		return nil, err
	}

	logger.Info("Lifecycle state loaded",
		zap.String("state", string(state)),
		zap.Time("since", since))

	return &Orchestrator{
		logger:     logger,
		store:      store,
		namer:      namer,
		waker:      waker,
		flusher:    flusher,
		snapshots:  snapshots,
		hostIP:     hostIP,
		sentinelIP: sentinelIP,
		state:      state,
		since:      since,
	}, nil
}

// Subscribe registers a callback invoked after every committed transition.
func (o *Orchestrator) Subscribe(fn func(prev, next State)) {
	o.listenersMu.Lock()
	o.listeners = append(o.listeners, fn)
	o.listenersMu.Unlock()
}

// State returns the current lifecycle state.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Status returns the current state with its entry timestamp.
func (o *Orchestrator) Status() Status {
	o.mu.Lock()
	defer o.mu.Unlock()
	return Status{State: o.state, Since: o.since}
}

// Apply validates the event against the transition table, persists the new
// state and executes the associated side effects. The critical section
// covers only the state mutation and the persistence write.
func (o *Orchestrator) Apply(ctx context.Context, event Event, snapshot []byte) (Result, error) {
	o.mu.Lock()
	prev := o.state
	next, effects, err := Next(prev, event)
	if err != nil {
		o.mu.Unlock()
		return Result{Previous: prev, Current: prev}, err
	}

	if next != prev {
		since := time.Now().UTC()
		if err := o.store.Save(ctx, next, since); err != nil {
			o.mu.Unlock()
			return Result{Previous: prev, Current: prev}, err
		}
		o.state = next
		o.since = since
	}
	o.mu.Unlock()

	if next != prev {
		o.logger.Info("Lifecycle state changed",
			zap.String("from", string(prev)),
			zap.String("to", string(next)),
			zap.String("event", string(event)))
		o.notify(prev, next)
	}

	result := Result{Previous: prev, Current: next}
	o.runEffects(ctx, effects, snapshot, &result)
	return result, nil
}

// ConfirmOnline commits a probe-confirmed online transition.
func (o *Orchestrator) ConfirmOnline(ctx context.Context) (Result, error) {
	return o.Apply(ctx, EventProbeSucceeded, nil)
}

// MarkLost commits the unexpected-loss transition after the heartbeat
// failure threshold is reached.
func (o *Orchestrator) MarkLost(ctx context.Context) (Result, error) {
	return o.Apply(ctx, EventHostLost, nil)
}

// BeginWake commits offline -> booting, emitting the wake packet.
func (o *Orchestrator) BeginWake(ctx context.Context) (Result, error) {
	return o.Apply(ctx, EventWakeRequested, nil)
}

// AbandonWake commits booting -> offline once the attempt budget is gone.
func (o *Orchestrator) AbandonWake(ctx context.Context) (Result, error) {
	return o.Apply(ctx, EventWakeExhausted, nil)
}

// HandleGoingOffline stores the snapshot and commits * -> shutting_down.
func (o *Orchestrator) HandleGoingOffline(ctx context.Context, snapshot []byte) (Result, error) {
	return o.Apply(ctx, EventGoingOffline, snapshot)
}

// HandleComingOnline commits * -> online and flushes the inbox.
func (o *Orchestrator) HandleComingOnline(ctx context.Context) (Result, error) {
	return o.Apply(ctx, EventComingOnline, nil)
}

// FinalizeShutdown commits shutting_down -> offline after the acknowledgment
// went out. Invalid when coming-online aborted the shutdown in between.
func (o *Orchestrator) FinalizeShutdown(ctx context.Context) (Result, error) {
	return o.Apply(ctx, EventShutdownFinalized, nil)
}

// RecordWakeResult writes the wake audit row. Failures are logged only.
func (o *Orchestrator) RecordWakeResult(ctx context.Context, id string, requestedAt time.Time, attempts int, succeeded bool) {
	if err := o.store.RecordWake(ctx, id, requestedAt, attempts, succeeded); err != nil {
		o.logger.Warn("Failed to record wake request", zap.Error(err))
	}
}

// Reconcile retries the naming switch when the last attempt failed. Called
// once per heartbeat cycle; a no-op while the record is in sync.
func (o *Orchestrator) Reconcile(ctx context.Context) {
	if !o.namingDirty.Load() {
		return
	}
	o.logger.Info("Reconciling naming record after earlier failure")
	o.switchNaming(ctx, o.namingTarget(o.State()))
}

func (o *Orchestrator) namingTarget(state State) string {
	// Only online points the shared name at the host; booting keeps the
	// sentinel authoritative until the host actually serves.
	if state == StateOnline {
		return o.hostIP
	}
	return o.sentinelIP
}

func (o *Orchestrator) runEffects(ctx context.Context, effects []SideEffect, snapshot []byte, result *Result) {
	for _, effect := range effects {
		switch effect {
		case EffectNamingHost:
			result.NamingSwitched = o.switchNaming(ctx, o.hostIP)
		case EffectNamingSentinel:
			result.NamingSwitched = o.switchNaming(ctx, o.sentinelIP)
		case EffectSendWake:
			if err := o.waker.Signal(); err != nil {
				o.logger.Error("Wake signal failed", zap.Error(err))
			}
		case EffectStoreSnapshot:
			if err := o.snapshots.Store(snapshot); err != nil {
				o.logger.Error("Snapshot store failed", zap.Error(err))
			}
		case EffectFlushInbox:
			count, err := o.flusher.Flush(ctx)
			if err != nil {
				o.logger.Error("Inbox flush failed", zap.Error(err))
			}
			result.FilesRelocated = count
		}
	}
}

func (o *Orchestrator) switchNaming(ctx context.Context, ip string) bool {
	if err := o.namer.SetRecord(ctx, ip); err != nil {
		o.namingDirty.Store(true)
		o.logger.Error("Naming switch failed",
			zap.String("target_ip", ip),
			zap.Error(err))
		return false
	}
	o.namingDirty.Store(false)
	return true
}

func (o *Orchestrator) notify(prev, next State) {
	o.listenersMu.RLock()
	defer o.listenersMu.RUnlock()
	for _, fn := range o.listeners {
		fn(prev, next)
	}
}
