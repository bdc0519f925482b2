// Package publish throttles outbound sensor telemetry to a fixed cadence.
package publish

import (
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/sweeney/hazard-sim/internal/hazard"
	"github.com/sweeney/hazard-sim/internal/logger"
	"github.com/sweeney/hazard-sim/internal/mqtt"
)

// DefaultInterval is the publish cadence.
const DefaultInterval = 2 * time.Second

// DefaultGuard is how far inside the interval a second firing is rejected.
const DefaultGuard = 100 * time.Millisecond

// Source supplies the current aggregate.
type Source interface {
	Aggregate() hazard.AggregatedSensors
}

// Sink is the part of the bridge the scheduler needs.
type Sink interface {
	PublishSensors(p mqtt.SensorPayload) error
	IsConnected() bool
}

// Outcome is what a Tick did.
type Outcome string

const (
	Published    Outcome = "published"
	Disconnected Outcome = "disconnected"
	Throttled    Outcome = "throttled"
	Failed       Outcome = "failed"
	Stopped      Outcome = "stopped"
)

// Counts tallies tick outcomes since start.
type Counts struct {
	Published int `json:"published"`
	Skipped   int `json:"skipped"`
	Failed    int `json:"failed"`
}

// Scheduler publishes the aggregate on each tick, at most once per guard
// period. Ticks while disconnected neither publish nor consume the guard.
type Scheduler struct {
	src   Source
	sink  Sink
	log   *logger.Logger
	guard *rate.Limiter

	mu          sync.Mutex
	stopped     bool
	counts      Counts
	lastPayload *mqtt.SensorPayload
	inflight    sync.WaitGroup
}

// NewScheduler creates a scheduler for the given tick interval. Two publishes
// closer together than interval-guard are never allowed.
func NewScheduler(src Source, sink Sink, interval, guard time.Duration, log *logger.Logger) *Scheduler {
	limit := rate.Inf
	if period := interval - guard; period > 0 {
		limit = rate.Every(period)
	}
	return &Scheduler{
		src:   src,
		sink:  sink,
		log:   log,
		guard: rate.NewLimiter(limit, 1),
	}
}

// Tick publishes the current aggregate stamped with now, if allowed. The
// lock is not held while the sink publishes.
func (s *Scheduler) Tick(now time.Time) Outcome {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return Stopped
	}
	if !s.sink.IsConnected() {
		s.counts.Skipped++
		s.mu.Unlock()
		return Disconnected
	}
	if !s.guard.AllowN(now, 1) {
		s.counts.Skipped++
		s.mu.Unlock()
		s.log.Debugw("publish_throttled", "at", now)
		return Throttled
	}
	s.inflight.Add(1)
	s.mu.Unlock()
	defer s.inflight.Done()

	payload := mqtt.NewSensorPayload(s.src.Aggregate(), now)
	err := s.sink.PublishSensors(payload)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.counts.Failed++
		s.log.Warnw("publish_failed", "err", err)
		return Failed
	}
	s.counts.Published++
	s.lastPayload = &payload
	s.log.Debugw("publish_ok", "status", payload.Status, "smoke", payload.Smoke)
	return Published
}

// Stop makes every later Tick a no-op and waits for an in-flight publish.
// Once Stop returns no publish is in flight.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	s.stopped = true
	s.mu.Unlock()
	s.inflight.Wait()
}

// Counts returns the tick tallies.
func (s *Scheduler) Counts() Counts {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counts
}

// LastPayload returns the most recently published snapshot.
func (s *Scheduler) LastPayload() (mqtt.SensorPayload, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lastPayload == nil {
		return mqtt.SensorPayload{}, false
	}
	return *s.lastPayload, true
}
