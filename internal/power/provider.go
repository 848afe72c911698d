package power

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Sampler pulls instantaneous power readings for the host's outlet from the
// energy subsystem and caches the latest one. The heartbeat classifier reads
// the cache synchronously each cycle; a stale or missing sample is tolerated
// and reported as absent.
type Sampler struct {
	logger     *zap.Logger
	client     *http.Client
	url        string
	interval   time.Duration
	staleAfter time.Duration

	mu        sync.RWMutex
	watts     float64
	sampledAt time.Time
}

type sampleResponse struct {
	OutletID string  `json:"outlet_id"`
	PowerMW  int64   `json:"power_mw"`
	PowerW   float64 `json:"power_w"`
}

// NewSampler builds a sampler for one outlet's reading endpoint.
func NewSampler(logger *zap.Logger, url string, interval, staleAfter time.Duration) *Sampler {
	return &Sampler{
		logger:     logger,
		client:     &http.Client{Timeout: 10 * time.Second},
		url:        url,
		interval:   interval,
		staleAfter: staleAfter,
	}
}

// Run refreshes the cached reading on a fixed cadence until ctx is done.
func (s *Sampler) Run(ctx context.Context) {
	// First sample without waiting a full interval.
	s.sample(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sample(ctx)
		}
	}
}

func (s *Sampler) sample(ctx context.Context) {
	reqCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, s.url, nil)
	if err != nil {
		s.logger.Error("Build power sample request failed", zap.Error(err))
		return
	}

	resp, err := s.client.Do(req)
	if err != nil {
		s.logger.Debug("Power sample failed", zap.Error(err))
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		s.logger.Debug("Power sample rejected", zap.Int("status", resp.StatusCode))
		return
	}

	var body sampleResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		s.logger.Warn("Power sample decode failed", zap.Error(err))
		return
	}

	watts := body.PowerW
	if watts == 0 && body.PowerMW > 0 {
		watts = float64(body.PowerMW) / 1000.0
	}

	s.mu.Lock()
	s.watts = watts
	s.sampledAt = time.Now()
	s.mu.Unlock()
}

// LatestWatts returns the cached reading. ok is false when no sample exists
// yet or the cache aged past the staleness bound.
func (s *Sampler) LatestWatts() (float64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.sampledAt.IsZero() {
		return 0, false
	}
	if s.staleAfter > 0 && time.Since(s.sampledAt) > s.staleAfter {
		return 0, false
	}
	return s.watts, true
}

// Set overrides the cached sample. Used by tests and by push-style feeds.
func (s *Sampler) Set(watts float64, at time.Time) {
	s.mu.Lock()
	s.watts = watts
	s.sampledAt = at
	s.mu.Unlock()
}

// String describes the sampler target for logs.
func (s *Sampler) String() string {
	return fmt.Sprintf("power sampler (%s every %s)", s.url, s.interval)
}
