package coordinator

import (
	"context"
	"sync"
	"time"

	"broadcast-console/pkg/models"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

const statsPollTimeout = 30 * time.Second

// StatsReflector mirrors the server's quota counters. It is telemetry only:
// nothing consults it before dispatching.
type StatsReflector struct {
	src    QuotaSource
	events EventSink
	log    zerolog.Logger

	mu     sync.RWMutex
	state  models.QuotaState
	has    bool
	issued uint64
	stored uint64
	poller *cron.Cron
}

// NewStatsReflector reads counters from src and publishes them to events.
func NewStatsReflector(src QuotaSource, events EventSink, log zerolog.Logger) *StatsReflector {
	if events == nil {
		events = nopSink{}
	}
	return &StatsReflector{src: src, events: events, log: log}
}

// Refresh fetches the counters. A failure keeps the previous state and is
// only logged. A response that arrives after the one of a later request is
// discarded, and the newer counters are returned instead.
func (s *StatsReflector) Refresh(ctx context.Context) (models.QuotaState, error) {
	s.mu.Lock()
	s.issued++
	seq := s.issued
	s.mu.Unlock()

	state, err := s.src.UserStats(ctx)
	if err != nil {
		s.log.Warn().Err(err).Msg("failed to load stats")
		return models.QuotaState{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if seq < s.stored {
		s.log.Debug().Uint64("seq", seq).Uint64("stored", s.stored).Msg("discarding stale stats")
		return s.state, nil
	}
	s.state = state
	s.has = true
	s.stored = seq
	// published under the lock so views see counters in request order
	s.events.BroadcastEvent("stats", StatsView{Quota: state, Usage: UsageOf(state)})
	return state, nil
}

// Current returns the last stored counters and whether any were stored.
func (s *StatsReflector) Current() (models.QuotaState, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state, s.has
}

// StartPolling refreshes on a cron schedule such as "@every 1m".
// An empty spec disables polling.
func (s *StatsReflector) StartPolling(spec string) error {
	if spec == "" {
		return nil
	}
	c := cron.New()
	if _, err := c.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), statsPollTimeout)
		defer cancel()
		_, _ = s.Refresh(ctx)
	}); err != nil {
		return err
	}

	s.mu.Lock()
	old := s.poller
	s.poller = c
	s.mu.Unlock()
	if old != nil {
		<-old.Stop().Done()
	}
	c.Start()
	s.log.Info().Str("spec", spec).Msg("stats polling started")
	return nil
}

// Stop halts polling and waits for a running refresh to return.
func (s *StatsReflector) Stop() {
	s.mu.Lock()
	c := s.poller
	s.poller = nil
	s.mu.Unlock()
	if c != nil {
		<-c.Stop().Done()
	}
}

// Usage is the share of the daily limit already used.
type Usage struct {
	Percent float64 `json:"percent"`
	Band    string  `json:"band"`
}

// StatsView is the "stats" event payload.
type StatsView struct {
	Quota models.QuotaState `json:"quota"`
	Usage Usage             `json:"usage"`
}

const (
	BandOK       = "ok"
	BandWarn     = "warn"
	BandCritical = "critical"
)

// UsageOf derives the usage bar from server counters.
func UsageOf(q models.QuotaState) Usage {
	if q.DailyLimit <= 0 {
		return Usage{Band: BandOK}
	}
	pct := float64(q.DailySent) / float64(q.DailyLimit) * 100
	band := BandOK
	switch {
	case pct >= 90:
		band = BandCritical
	case pct >= 75:
		band = BandWarn
	}
	return Usage{Percent: pct, Band: band}
}
