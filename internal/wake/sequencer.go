package wake

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/baluhost/balupi/internal/lifecycle"
)

// ErrBudgetExhausted reports that the host did not come up within the wake
// attempt budget. Non-fatal: the caller may retry once power or network
// conditions change.
var ErrBudgetExhausted = errors.New("wake attempt budget exhausted")

// Prober issues one bounded liveness request against the host.
type Prober interface {
	Probe(ctx context.Context) error
}

// Driver is the slice of the orchestrator the sequencer drives. BeginWake
// emits the magic packet as the side effect of offline -> booting.
type Driver interface {
	State() lifecycle.State
	BeginWake(ctx context.Context) (lifecycle.Result, error)
	ConfirmOnline(ctx context.Context) (lifecycle.Result, error)
	AbandonWake(ctx context.Context) (lifecycle.Result, error)
	RecordWakeResult(ctx context.Context, id string, requestedAt time.Time, attempts int, succeeded bool)
}

// FastPoller lets the sequencer tighten the heartbeat cadence while a wake
// is pending.
type FastPoller interface {
	SetFastPoll()
	SetNormalPoll()
}

// Sequencer drives one wake: commit offline -> booting (which sends the
// packet), then poll the prober at the fast cadence for a bounded number of
// attempts. The host's boot time is roughly constant, so the attempts are
// evenly spaced rather than exponentially backed off.
type Sequencer struct {
	logger   *zap.Logger
	prober   Prober
	driver   Driver
	poller   FastPoller
	interval time.Duration
	budget   int
}

// Outcome reports how a wake run ended.
type Outcome struct {
	RequestID string `json:"request_id"`
	Attempts  int    `json:"attempts"`
	Succeeded bool   `json:"succeeded"`
}

// NewSequencer wires a wake sequencer.
func NewSequencer(logger *zap.Logger, prober Prober, driver Driver, poller FastPoller, interval time.Duration, budget int) *Sequencer {
	return &Sequencer{
		logger:   logger,
		prober:   prober,
		driver:   driver,
		poller:   poller,
		interval: interval,
		budget:   budget,
	}
}

// Run performs one full wake sequence. It returns ErrBudgetExhausted when
// every attempt failed, lifecycle.ErrInvalidTransition when the host was not
// offline to begin with, and nil once the host is confirmed online. The loop
// is cancellable: a coming-online notification arriving mid-poll moves the
// state to online and the loop exits early.
func (s *Sequencer) Run(ctx context.Context) (Outcome, error) {
	out := Outcome{RequestID: uuid.New().String()}
	requestedAt := time.Now().UTC()

	if _, err := s.driver.BeginWake(ctx); err != nil {
		return out, err
	}

	s.logger.Info("Wake sequence started",
		zap.String("request_id", out.RequestID),
		zap.Int("budget", s.budget),
		zap.Duration("interval", s.interval))

	s.poller.SetFastPoll()
	defer s.poller.SetNormalPoll()

	timer := time.NewTimer(s.interval)
	defer timer.Stop()

	for attempt := 1; attempt <= s.budget; attempt++ {
		select {
		case <-ctx.Done():
			s.driver.RecordWakeResult(context.Background(), out.RequestID, requestedAt, out.Attempts, false)
			return out, ctx.Err()
		case <-timer.C:
		}

		// A handshake notification may have resolved the wake already.
		switch s.driver.State() {
		case lifecycle.StateOnline:
			out.Succeeded = true
			out.Attempts = attempt - 1
			s.driver.RecordWakeResult(ctx, out.RequestID, requestedAt, out.Attempts, true)
			s.logger.Info("Wake resolved by notification", zap.String("request_id", out.RequestID))
			return out, nil
		case lifecycle.StateBooting:
			// still pending
		default:
			out.Attempts = attempt - 1
			s.driver.RecordWakeResult(ctx, out.RequestID, requestedAt, out.Attempts, false)
			return out, ErrBudgetExhausted
		}

		out.Attempts = attempt
		if err := s.prober.Probe(ctx); err == nil {
			if _, err := s.driver.ConfirmOnline(ctx); err != nil {
				s.logger.Error("Online confirmation failed", zap.Error(err))
			}
			out.Succeeded = true
			s.driver.RecordWakeResult(ctx, out.RequestID, requestedAt, out.Attempts, true)
			s.logger.Info("Host confirmed online",
				zap.String("request_id", out.RequestID),
				zap.Int("attempts", out.Attempts))
			return out, nil
		}

		timer.Reset(s.interval)
	}

	if _, err := s.driver.AbandonWake(ctx); err != nil &&
		!errors.Is(err, lifecycle.ErrInvalidTransition) {
		s.logger.Error("Abandon wake failed", zap.Error(err))
	}
	s.driver.RecordWakeResult(ctx, out.RequestID, requestedAt, out.Attempts, false)

	s.logger.Warn("Wake budget exhausted",
		zap.String("request_id", out.RequestID),
		zap.Int("attempts", out.Attempts))
	return out, ErrBudgetExhausted
}
