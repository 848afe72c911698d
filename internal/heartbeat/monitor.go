package heartbeat

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/baluhost/balupi/internal/lifecycle"
)

// Prober issues one bounded liveness request against the host.
type Prober interface {
	Probe(ctx context.Context) error
}

// PowerSource exposes the latest cached power sample for the host's outlet.
type PowerSource interface {
	LatestWatts() (float64, bool)
}

// Driver is the slice of the lifecycle orchestrator the monitor drives.
type Driver interface {
	State() lifecycle.State
	ConfirmOnline(ctx context.Context) (lifecycle.Result, error)
	MarkLost(ctx context.Context) (lifecycle.Result, error)
	FinalizeShutdown(ctx context.Context) (lifecycle.Result, error)
	Reconcile(ctx context.Context)
}

// Config holds the monitor cadences and the failure threshold.
type Config struct {
	Interval         time.Duration // normal cadence
	FastInterval     time.Duration // cadence while a wake is pending
	FailureThreshold int           // consecutive failures before online -> offline
}

// Monitor runs the recurring heartbeat cycle: probe the host, read the
// cached power sample, combine both into a verdict and drive the state
// machine. The cadence is explicit loop state: each iteration computes its
// next sleep from the current mode, so a sequence of verdicts fully
// determines the loop's behavior.
type Monitor struct {
	logger  *zap.Logger
	prober  Prober
	power   PowerSource
	driver  Driver
	cfg     Config
	publish func(Verdict) // optional, e.g. websocket broadcast

	mu       sync.Mutex
	fastPoll bool
	failures int
}

// NewMonitor wires the heartbeat monitor.
func NewMonitor(logger *zap.Logger, prober Prober, power PowerSource, driver Driver, cfg Config) *Monitor {
	return &Monitor{
		logger: logger,
		prober: prober,
		power:  power,
		driver: driver,
		cfg:    cfg,
	}
}

// SetPublisher registers a per-verdict callback.
func (m *Monitor) SetPublisher(fn func(Verdict)) {
	m.publish = fn
}

// SetFastPoll switches to the fast cadence and resets the failure counter.
// Called when a wake request is issued.
func (m *Monitor) SetFastPoll() {
	m.mu.Lock()
	m.fastPoll = true
	m.failures = 0
	m.mu.Unlock()
	m.logger.Info("Heartbeat: fast poll enabled")
}

// SetNormalPoll reverts to the normal cadence.
func (m *Monitor) SetNormalPoll() {
	m.mu.Lock()
	if m.fastPoll {
		m.fastPoll = false
		m.logger.Info("Heartbeat: normal poll restored")
	}
	m.mu.Unlock()
}

// Run executes heartbeat cycles until ctx is done.
func (m *Monitor) Run(ctx context.Context) {
	m.logger.Info("Heartbeat monitor started",
		zap.Duration("interval", m.cfg.Interval),
		zap.Duration("fast_interval", m.cfg.FastInterval),
		zap.Int("failure_threshold", m.cfg.FailureThreshold))

	timer := time.NewTimer(m.cfg.Interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			m.logger.Info("Heartbeat monitor stopped")
			return
		case <-timer.C:
		}

		verdict := m.Cycle(ctx)
		if m.publish != nil {
			m.publish(verdict)
		}

		timer.Reset(m.nextSleep())
	}
}

// Cycle performs one heartbeat: probe, classify, drive.
func (m *Monitor) Cycle(ctx context.Context) Verdict {
	probeErr := m.prober.Probe(ctx)

	var watts *float64
	if w, ok := m.power.LatestWatts(); ok {
		watts = &w
	}

	verdict := Combine(probeErr == nil, watts)
	m.handle(ctx, verdict)

	// Retry a failed naming switch from an earlier transition.
	m.driver.Reconcile(ctx)

	return verdict
}

func (m *Monitor) handle(ctx context.Context, v Verdict) {
	state := m.driver.State()

	if v.Reachable {
		m.mu.Lock()
		m.failures = 0
		m.mu.Unlock()

		switch state {
		case lifecycle.StateUnknown, lifecycle.StateOffline, lifecycle.StateBooting:
			// A single success qualifies for confirmation.
			if _, err := m.driver.ConfirmOnline(ctx); err != nil {
				m.logger.Error("Online confirmation failed", zap.Error(err))
				return
			}
			m.SetNormalPoll()
		case lifecycle.StateOnline:
			m.SetNormalPoll()
		}
		return
	}

	m.mu.Lock()
	m.failures++
	failures := m.failures
	m.mu.Unlock()

	if failures < m.cfg.FailureThreshold {
		return
	}

	switch v.Confidence {
	case ConfidenceMedium:
		// Hardware drawing idle/active power but no HTTP answer: the host
		// is booting or its service crashed. Failing over now would strand
		// a machine that may come back on its own.
		m.logger.Warn("Host unreachable but powered",
			zap.Float64p("power_watts", v.PowerWatts),
			zap.String("state", string(state)))
		return
	default:
		switch state {
		case lifecycle.StateOnline, lifecycle.StateUnknown:
			if _, err := m.driver.MarkLost(ctx); err != nil {
				if !errors.Is(err, lifecycle.ErrInvalidTransition) {
					m.logger.Error("Offline transition failed", zap.Error(err))
				}
				return
			}
			m.SetNormalPoll()
		case lifecycle.StateShuttingDown:
			// Power confirms the shutdown completed.
			if v.Band == BandOff || v.Band == BandStandby {
				if _, err := m.driver.FinalizeShutdown(ctx); err != nil &&
					!errors.Is(err, lifecycle.ErrInvalidTransition) {
					m.logger.Error("Shutdown finalization failed", zap.Error(err))
				}
			}
		}
	}
}

func (m *Monitor) nextSleep() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fastPoll {
		return m.cfg.FastInterval
	}
	return m.cfg.Interval
}

// Failures reports the current consecutive-failure count.
func (m *Monitor) Failures() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.failures
}
