package publish

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sweeney/hazard-sim/internal/hazard"
	"github.com/sweeney/hazard-sim/internal/logger"
	"github.com/sweeney/hazard-sim/internal/mqtt"
)

var t0 = time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

func newTestScheduler(t *testing.T) (*Scheduler, *hazard.Store, *mqtt.FakeBridge) {
	t.Helper()
	store := hazard.NewStore()
	bridge := mqtt.NewFakeBridge()
	bridge.SetConnected(true, "")
	return NewScheduler(store, bridge, DefaultInterval, DefaultGuard, logger.Nop()), store, bridge
}

func TestTickPublishesAggregate(t *testing.T) {
	s, store, bridge := newTestScheduler(t)
	store.TriggerEmergency()

	assert.Equal(t, Published, s.Tick(t0))

	require.Len(t, bridge.Sensors, 1)
	p := bridge.Sensors[0]
	assert.Equal(t, "CRITICAL", p.Status)
	assert.Equal(t, t0.UnixMilli(), p.Timestamp)
	assert.GreaterOrEqual(t, p.Smoke, 60.0)

	last, ok := s.LastPayload()
	require.True(t, ok)
	assert.Equal(t, p, last)
}

func TestTickCadence(t *testing.T) {
	s, _, bridge := newTestScheduler(t)

	for i := 0; i < 5; i++ {
		assert.Equal(t, Published, s.Tick(t0.Add(time.Duration(i)*DefaultInterval)), "tick %d", i)
	}
	assert.Equal(t, 5, bridge.SensorCount())
}

func TestTickGuardsOverlappingFirings(t *testing.T) {
	s, _, bridge := newTestScheduler(t)

	assert.Equal(t, Published, s.Tick(t0))
	assert.Equal(t, Throttled, s.Tick(t0.Add(50*time.Millisecond)))
	assert.Equal(t, Throttled, s.Tick(t0.Add(time.Second)))
	assert.Equal(t, Published, s.Tick(t0.Add(DefaultInterval)))

	assert.Equal(t, 2, bridge.SensorCount())
	assert.Equal(t, Counts{Published: 2, Skipped: 2}, s.Counts())
}

func TestTickDisconnectedDoesNotConsumeGuard(t *testing.T) {
	s, _, bridge := newTestScheduler(t)
	bridge.SetConnected(false, "offline")

	assert.Equal(t, Disconnected, s.Tick(t0))
	assert.Equal(t, 0, bridge.SensorCount())

	bridge.SetConnected(true, "")
	assert.Equal(t, Published, s.Tick(t0.Add(10*time.Millisecond)))
}

func TestTickPublishErrorIsNotFatal(t *testing.T) {
	s, _, bridge := newTestScheduler(t)
	bridge.PublishError = errors.New("publish timeout")

	assert.Equal(t, Failed, s.Tick(t0))
	assert.Equal(t, 1, s.Counts().Failed)

	_, ok := s.LastPayload()
	assert.False(t, ok)

	bridge.PublishError = nil
	assert.Equal(t, Published, s.Tick(t0.Add(DefaultInterval)))
}

func TestStopPreventsFurtherPublishes(t *testing.T) {
	s, _, bridge := newTestScheduler(t)

	s.Tick(t0)
	s.Stop()

	assert.Equal(t, Stopped, s.Tick(t0.Add(DefaultInterval)))
	assert.Equal(t, 1, bridge.SensorCount())
}

func TestZeroPeriodGuardAllowsEveryTick(t *testing.T) {
	store := hazard.NewStore()
	bridge := mqtt.NewFakeBridge()
	bridge.SetConnected(true, "")
	s := NewScheduler(store, bridge, 50*time.Millisecond, DefaultGuard, logger.Nop())

	assert.Equal(t, Published, s.Tick(t0))
	assert.Equal(t, Published, s.Tick(t0))
}

// blockingSink holds PublishSensors until release is closed.
type blockingSink struct {
	entered chan struct{}
	release chan struct{}
}

func (b *blockingSink) PublishSensors(mqtt.SensorPayload) error {
	close(b.entered)
	<-b.release
	return nil
}

func (b *blockingSink) IsConnected() bool { return true }

func TestSlowPublishDoesNotBlockReaders(t *testing.T) {
	sink := &blockingSink{entered: make(chan struct{}), release: make(chan struct{})}
	s := NewScheduler(hazard.NewStore(), sink, DefaultInterval, DefaultGuard, logger.Nop())

	done := make(chan Outcome, 1)
	go func() { done <- s.Tick(t0) }()
	<-sink.entered

	counts := make(chan Counts, 1)
	go func() { counts <- s.Counts() }()
	select {
	case c := <-counts:
		assert.Equal(t, Counts{}, c)
	case <-time.After(time.Second):
		t.Fatal("Counts blocked behind an in-flight publish")
	}

	stopped := make(chan struct{})
	go func() {
		s.Stop()
		close(stopped)
	}()
	select {
	case <-stopped:
		t.Fatal("Stop returned while a publish was in flight")
	case <-time.After(50 * time.Millisecond):
	}

	close(sink.release)
	assert.Equal(t, Published, <-done)
	<-stopped
	assert.Equal(t, 1, s.Counts().Published)
	assert.Equal(t, Stopped, s.Tick(t0.Add(DefaultInterval)))
}
