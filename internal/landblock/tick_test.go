package landblock

import (
	"context"
	"testing"
	"time"

	"github.com/annel0/landblock/internal/vec"
	"github.com/annel0/landblock/internal/world/entity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTickPhysics_CollectsBorderCrossings(t *testing.T) {
	h := newHarness()
	id := NewID(1, 1)
	l := h.landblock(id)
	ctx := context.Background()

	c := entity.NewCreature(3, "runner", at(id, entity.LandblockSize-1, 50))
	c.Velocity = vec.Vec2Float{X: 4, Y: 0}
	still := itemAt(4, at(id, 10, 10))
	l.AddWorldObject(ctx, c)
	l.AddWorldObject(ctx, still)

	reloc := &RelocationBuffer{}
	l.TickPhysics(ctx, t0, reloc)
	assert.Equal(t, 0, reloc.Len(), "первый тик только запоминает время")
	assert.Equal(t, 2, l.ObjectCount())

	l.TickPhysics(ctx, t0.Add(time.Second), reloc)
	moves := reloc.Drain()
	require.Len(t, moves, 1)
	assert.Equal(t, entity.ObjectGuid(3), moves[0].Object.Base().Guid())
	assert.Same(t, l, moves[0].From)
	assert.Equal(t, NewID(2, 1), moves[0].To)
	assert.Equal(t, at(id, entity.LandblockSize-1, 50), moves[0].Previous)
	assert.InDelta(t, at(id, entity.LandblockSize+3, 50).X, c.Location.X, 1e-9)
	assert.Equal(t, 0, reloc.Len())
}

func TestTickPhysics_SkippedWhenDormant(t *testing.T) {
	h := newHarness()
	id := NewID(1, 1)
	l := h.landblock(id)
	ctx := context.Background()

	c := entity.NewCreature(3, "runner", at(id, 10, 10))
	c.Velocity = vec.Vec2Float{X: 1}
	l.AddWorldObject(ctx, c)
	l.state.Store(int32(StateDormant))

	l.TickPhysics(ctx, t0, nil)
	l.TickPhysics(ctx, t0.Add(time.Second), nil)
	assert.Equal(t, 0, l.ObjectCount(), "спящий ландблок не применяет отложенные изменения в фазе 1")
	assert.InDelta(t, at(id, 10, 10).X, c.Location.X, 1e-9)
}

func TestTickMultiThreaded_AITicksDueCreatures(t *testing.T) {
	h := newHarness()
	id := NewID(1, 1)
	l := h.landblock(id)
	ctx := context.Background()

	c := entity.NewCreature(3, "drudge", at(id, 50, 50))
	l.AddWorldObject(ctx, c)
	l.ApplyPendingMutations()
	require.Equal(t, t0.Add(time.Second), c.NextAITickTime)

	l.TickMultiThreadedWork(ctx, t0.Add(500*time.Millisecond))
	assert.Equal(t, entity.CreatureIdle, c.State())

	now := t0.Add(time.Second)
	l.TickMultiThreadedWork(ctx, now)
	assert.Equal(t, entity.CreatureMoving, c.State())
	assert.Equal(t, now.Add(time.Second), c.NextAITickTime)
	assert.Equal(t, []time.Time{now.Add(time.Second)}, l.aiTicks.Times())
}

func TestTickMultiThreaded_DormantSkipsAI(t *testing.T) {
	h := newHarness()
	id := NewID(1, 1)
	l := h.landblock(id)
	ctx := context.Background()

	c := entity.NewCreature(3, "drudge", at(id, 50, 50))
	l.AddWorldObject(ctx, c)
	l.ApplyPendingMutations()
	l.state.Store(int32(StateDormant))

	l.TickMultiThreadedWork(ctx, t0.Add(2*time.Second))
	assert.Equal(t, entity.CreatureIdle, c.State())
	assert.Equal(t, t0.Add(time.Second), c.NextAITickTime)
}

func TestTickSingleThreaded_DrainsHeartbeats(t *testing.T) {
	h := newHarness()
	id := NewID(1, 1)
	l := h.landblock(id)
	ctx := context.Background()

	a := itemAt(1, at(id, 1, 1))
	b := itemAt(2, at(id, 2, 2))
	b.HeartbeatInterval = 10 * time.Second
	l.AddWorldObject(ctx, a)
	l.AddWorldObject(ctx, b)

	now := t0.Add(5 * time.Second)
	l.TickSingleThreadedWork(ctx, now)
	assert.Equal(t, now.Add(5*time.Second), a.NextHeartbeatTime)
	assert.Equal(t, t0.Add(10*time.Second), b.NextHeartbeatTime, "heartbeat b ещё не наступил")
	// при равном времени a встаёт за b
	assert.Equal(t, []entity.ObjectGuid{b.Guid(), a.Guid()}, l.heartbeats.Guids())
}

func TestTickSingleThreaded_PlayerKeepsNeighboursActive(t *testing.T) {
	h := newHarness()
	a := h.landblock(NewID(1, 1))
	b := h.landblock(NewID(2, 1))
	a.SetAdjacents([]*Landblock{b})
	b.SetAdjacents([]*Landblock{a})
	ctx := context.Background()

	p := entity.NewPlayer(9, "Asheron", at(a.ID(), 5, 5), &recordingSession{})
	a.AddWorldObject(ctx, p)

	now := h.clock.Advance(time.Minute)
	a.TickSingleThreadedWork(ctx, now)

	assert.Equal(t, now, p.LastPlayerTick)
	assert.WithinDuration(t, now, a.LastActive(), 0)
	assert.WithinDuration(t, now, b.LastActive(), 0)
}

func TestTickSingleThreaded_PerfMonitorRolls(t *testing.T) {
	h := newHarness()
	l := h.landblock(NewID(1, 1))
	ctx := context.Background()

	l.TickSingleThreadedWork(ctx, t0)
	l.TickSingleThreadedWork(ctx, t0.Add(time.Second))
	assert.Equal(t, 0, l.Perf().Samples)

	l.TickSingleThreadedWork(ctx, t0.Add(11*time.Second))
	assert.Equal(t, 3, l.Perf().Samples)
}

func TestDrain_ReinsertsAfterLoop(t *testing.T) {
	h := newHarness()
	id := NewID(1, 1)
	l := h.landblock(id)
	ctx := context.Background()

	// heartbeat с нулевым интервалом ставит себя на now: внутри цикла это зациклило бы разбор
	it := itemAt(1, at(id, 1, 1))
	l.AddWorldObject(ctx, it)
	l.ApplyPendingMutations()

	now := t0.Add(10 * time.Second)
	calls := 0
	l.drain(l.heartbeats, now, func(obj entity.WorldObject) {
		calls++
		obj.Base().NextHeartbeatTime = now
	})
	assert.Equal(t, 1, calls)
	assert.True(t, l.heartbeats.Contains(1))
}

// eagerCreature сразу просит следующий тик ИИ и переставляет себя в расписании
type eagerCreature struct {
	*entity.Creature
	calls int
}

func (c *eagerCreature) AITick(_ context.Context, now time.Time) {
	c.calls++
	c.NextAITickTime = now
	c.CurrentLandblock().Reschedule(c)
}

func TestReschedule_InsideDrainRunsOncePerTick(t *testing.T) {
	h := newHarness()
	id := NewID(1, 1)
	l := h.landblock(id)
	ctx := context.Background()

	c := &eagerCreature{Creature: entity.NewCreature(4, "eager", at(id, 40, 40))}
	c.NextAITickTime = t0
	require.True(t, l.AddWorldObject(ctx, c))
	l.ApplyPendingMutations()
	require.True(t, l.aiTicks.Contains(4))

	l.TickMultiThreadedWork(ctx, t0)
	assert.Equal(t, 1, c.calls)
	assert.True(t, l.aiTicks.Contains(4))
	assert.False(t, l.draining)
	assert.Empty(t, l.rescheduled)

	l.TickMultiThreadedWork(ctx, t0.Add(time.Millisecond))
	assert.Equal(t, 2, c.calls)
}

func TestReschedule_OutsideDrainMovesObject(t *testing.T) {
	h := newHarness()
	id := NewID(1, 1)
	l := h.landblock(id)
	ctx := context.Background()

	a := entity.NewCreature(5, "a", at(id, 10, 10))
	b := entity.NewCreature(6, "b", at(id, 20, 20))
	a.NextAITickTime = t0.Add(2 * time.Second)
	b.NextAITickTime = t0.Add(3 * time.Second)
	l.AddWorldObject(ctx, a)
	l.AddWorldObject(ctx, b)
	l.ApplyPendingMutations()
	require.Equal(t, []entity.ObjectGuid{5, 6}, l.aiTicks.Guids())

	b.NextAITickTime = t0.Add(time.Second)
	l.Reschedule(b)
	assert.Equal(t, []entity.ObjectGuid{6, 5}, l.aiTicks.Guids())
}
