package landblock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/annel0/landblock/internal/logging"
	"github.com/annel0/landblock/internal/vec"
	"github.com/annel0/landblock/internal/world/entity"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

var t0 = time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	return c.now
}

type fakePhysics struct {
	mu       sync.Mutex
	blocked  map[entity.Kind]bool
	released []uint16
}

func (p *fakePhysics) Place(obj entity.WorldObject, _ []entity.WorldObject) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.blocked[obj.Base().Kind()] {
		return fmt.Errorf("blocked %s", obj.Base().Kind())
	}
	return nil
}

func (p *fakePhysics) Step(obj entity.WorldObject, dt time.Duration) (vec.Vec2Float, bool) {
	base := obj.Base()
	if base.Location == nil || base.Velocity.IsZero() {
		return vec.Vec2Float{}, false
	}
	return base.Location.Add(base.Velocity.Mul(dt.Seconds())), true
}

func (p *fakePhysics) ReleaseLandblock(id uint16) {
	p.mu.Lock()
	p.released = append(p.released, id)
	p.mu.Unlock()
}

type recordingSaver struct {
	mu      sync.Mutex
	batches [][]entity.BiotaEntry
	err     error
}

func (s *recordingSaver) SaveBiotasInParallel(_ context.Context, batch []entity.BiotaEntry, done func(error)) {
	s.mu.Lock()
	s.batches = append(s.batches, batch)
	err := s.err
	s.mu.Unlock()
	done(err)
}

func (s *recordingSaver) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.batches)
}

type recordingSession struct {
	mu   sync.Mutex
	msgs []entity.Message
}

func (s *recordingSession) Send(msg entity.Message) {
	s.mu.Lock()
	s.msgs = append(s.msgs, msg)
	s.mu.Unlock()
}

func (s *recordingSession) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.msgs)
}

type harness struct {
	clock   *fakeClock
	physics *fakePhysics
	saver   *recordingSaver
	state   *TickState
	metrics *Metrics
	logs    *observer.ObservedLogs
	svc     Services
}

func newHarness() *harness {
	core, logs := observer.New(zapcore.DebugLevel)
	h := &harness{
		clock:   &fakeClock{now: t0},
		physics: &fakePhysics{blocked: map[entity.Kind]bool{}},
		saver:   &recordingSaver{},
		state:   &TickState{},
		metrics: NewMetrics(nil),
		logs:    logs,
	}
	h.svc = Services{
		Clock:   h.clock,
		Physics: h.physics,
		Saver:   h.saver,
		Metrics: h.metrics,
		Log:     logging.NewWithCore("landblock", core),
		State:   h.state,
	}
	return h
}

func (h *harness) landblock(id ID) *Landblock {
	return New(id, h.svc, Options{})
}

// at возвращает точку внутри ландблока со смещением от его угла
func at(id ID, dx, dy float64) vec.Vec2Float {
	return id.Origin().Add(vec.Vec2Float{X: dx, Y: dy})
}

func itemAt(guid entity.ObjectGuid, pos vec.Vec2Float) *entity.Item {
	it := entity.NewItem(guid, fmt.Sprintf("item-%d", guid))
	it.SetLocation(pos)
	return it
}

func withHeartbeat(guid entity.ObjectGuid, when time.Time) *entity.Item {
	it := entity.NewItem(guid, "hb")
	it.NextHeartbeatTime = when
	return it
}
