package landblock

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/annel0/landblock/internal/vec"
	"github.com/annel0/landblock/internal/world/entity"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestDormancy_AfterIdleInterval(t *testing.T) {
	h := newHarness()
	l := h.landblock(NewID(1, 1))
	ctx := context.Background()

	l.TickMultiThreadedWork(ctx, t0.Add(time.Minute))
	assert.Equal(t, StateDormant, l.State())
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.Transitions.WithLabelValues("dormant")))
	assert.False(t, l.DestructionQueued())
}

func TestDormancy_NotBeforeInterval(t *testing.T) {
	h := newHarness()
	l := h.landblock(NewID(1, 1))
	ctx := context.Background()

	l.TickMultiThreadedWork(ctx, t0.Add(time.Minute-50*time.Millisecond))
	assert.Equal(t, StateActive, l.State())
}

func TestDormancy_DestroysProjectiles(t *testing.T) {
	h := newHarness()
	id := NewID(1, 1)
	l := h.landblock(id)
	ctx := context.Background()

	bolt := entity.NewSpellProjectile(5, 9, vec.Vec2Float{X: 1}, 10*time.Minute)
	bolt.SetLocation(at(id, 20, 20))
	rock := itemAt(6, at(id, 30, 30))
	require.True(t, l.AddWorldObject(ctx, bolt))
	require.True(t, l.AddWorldObject(ctx, rock))

	l.TickMultiThreadedWork(ctx, t0.Add(time.Minute))
	assert.Equal(t, StateDormant, l.State())
	assert.True(t, bolt.IsDestroyed())
	assert.Nil(t, l.GetObject(5, true))
	assert.NotNil(t, l.GetObject(6, false))
}

func TestDormancy_KeepAliveObjectPreventsSleep(t *testing.T) {
	h := newHarness()
	id := NewID(1, 1)
	l := h.landblock(id)
	ctx := context.Background()

	beacon := itemAt(1, at(id, 1, 1))
	beacon.KeepAlive = true
	l.AddWorldObject(ctx, beacon)

	l.TickMultiThreadedWork(ctx, t0.Add(time.Hour))
	assert.Equal(t, StateActive, l.State())
	assert.False(t, l.DestructionQueued())
}

func TestDecay_ExpiredItemsDestroyedOnHeartbeat(t *testing.T) {
	h := newHarness()
	id := NewID(1, 1)
	l := h.landblock(id)
	ctx := context.Background()

	corpse := itemAt(1, at(id, 1, 1))
	corpse.TimeToRot = 3 * time.Second
	l.AddWorldObject(ctx, corpse)

	l.TickMultiThreadedWork(ctx, t0.Add(5*time.Second))
	assert.True(t, corpse.IsDestroyed())
	l.ApplyPendingMutations()
	assert.Equal(t, 0, l.ObjectCount())
}

func TestSetActive_WakesAndMarksOneLevel(t *testing.T) {
	h := newHarness()
	a := h.landblock(NewID(1, 1))
	b := h.landblock(NewID(2, 1))
	c := h.landblock(NewID(3, 1))
	a.SetAdjacents([]*Landblock{b})
	b.SetAdjacents([]*Landblock{a, c})
	c.SetAdjacents([]*Landblock{b})
	ctx := context.Background()

	a.TickMultiThreadedWork(ctx, t0.Add(time.Minute))
	require.Equal(t, StateDormant, a.State())

	now := h.clock.Advance(2 * time.Minute)
	a.SetActive(false)

	assert.Equal(t, StateActive, a.State())
	assert.WithinDuration(t, now, a.LastActive(), 0)
	assert.WithinDuration(t, now, b.LastActive(), 0)
	assert.WithinDuration(t, t0, c.LastActive(), 0, "активность соседа не распространяется дальше")
}

func TestSetActive_CancelsQueuedDestruction(t *testing.T) {
	h := newHarness()
	l := h.landblock(NewID(1, 1))
	ctx := context.Background()

	now := h.clock.Advance(31 * time.Minute)
	l.TickMultiThreadedWork(ctx, now)
	require.True(t, l.DestructionQueued())

	l.SetActive(false)
	assert.False(t, l.DestructionQueued())
	assert.Equal(t, StateActive, l.State())
}

func TestPermaload_NeverQueuedForUnload(t *testing.T) {
	h := newHarness()
	l := New(NewID(1, 1), h.svc, Options{Permaload: true})

	now := h.clock.Advance(2 * time.Hour)
	l.TickMultiThreadedWork(context.Background(), now)
	assert.Equal(t, StateDormant, l.State())
	assert.False(t, l.DestructionQueued())
}

func TestUnload_SavesDetachesAndReleases(t *testing.T) {
	h := newHarness()
	id := NewID(1, 1)
	l := h.landblock(id)
	ctx := context.Background()

	chest := itemAt(1, at(id, 10, 10))
	chest.MarkChanged()
	wolf := entity.NewCreature(2, "wolf", at(id, 20, 20))
	require.True(t, l.AddWorldObject(ctx, chest))
	require.True(t, l.AddWorldObject(ctx, wolf))

	now := h.clock.Advance(31 * time.Minute)
	l.TickMultiThreadedWork(ctx, now)
	require.Equal(t, StateDormant, l.State())
	require.True(t, l.DestructionQueued())

	l.Unload(ctx)
	assert.Equal(t, StateUnloaded, l.State())
	assert.Equal(t, 0, l.ObjectCount())

	require.Equal(t, 1, h.saver.count(), "сохранение по расписанию, при выгрузке изменений уже нет")
	batch := h.saver.batches[0]
	require.Len(t, batch, 1)
	assert.Equal(t, entity.ObjectGuid(1), batch[0].Biota.Guid)
	assert.Equal(t, uint16(id), batch[0].Biota.Landblock)

	assert.False(t, chest.IsDestroyed(), "сохраняемый объект отсоединяется")
	assert.Nil(t, chest.CurrentLandblock())
	assert.True(t, wolf.IsDestroyed(), "временный объект уничтожается")
	assert.Equal(t, []uint16{uint16(id)}, h.physics.released)
	assert.Empty(t, l.Adjacents())
}

func TestUnload_Idempotent(t *testing.T) {
	h := newHarness()
	l := h.landblock(NewID(1, 1))
	ctx := context.Background()

	l.Unload(ctx)
	l.Unload(ctx)
	assert.Equal(t, StateUnloaded, l.State())
	assert.Len(t, h.physics.released, 1)
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.Transitions.WithLabelValues("unloaded")))
}

func TestUnload_DropsQueuedActions(t *testing.T) {
	h := newHarness()
	id := NewID(1, 1)
	l := h.landblock(id)

	l.EnqueueAction(AddObject{Object: itemAt(1, at(id, 1, 1))})
	l.EnqueueAction(Activate{})
	l.Unload(context.Background())

	assert.Equal(t, 0, l.PendingActions())
	assert.Equal(t, 2.0, testutil.ToFloat64(h.metrics.DroppedActions))
	assert.False(t, l.AddWorldObject(context.Background(), itemAt(2, at(id, 2, 2))))
}

func TestUnloaded_TicksAreNoop(t *testing.T) {
	h := newHarness()
	id := NewID(1, 1)
	l := h.landblock(id)
	ctx := context.Background()
	l.Unload(ctx)

	l.EnqueueAction(Activate{})
	l.TickMultiThreadedWork(ctx, t0.Add(time.Hour))
	l.TickSingleThreadedWork(ctx, t0.Add(time.Hour))
	assert.Equal(t, 1, l.PendingActions())
	assert.Equal(t, StateUnloaded, l.State())
}

func TestSaveDB_RecursesIntoContainers(t *testing.T) {
	h := newHarness()
	id := NewID(1, 1)
	l := h.landblock(id)
	ctx := context.Background()

	chest := entity.NewContainer(10, "chest")
	chest.SetLocation(at(id, 5, 5))
	pouch := entity.NewContainer(11, "pouch")
	gem := entity.NewItem(12, "gem")
	pouch.AddItem(gem)
	chest.AddItem(pouch)
	loose := itemAt(20, at(id, 6, 6))
	loose.MarkChanged()

	l.AddWorldObject(ctx, chest)
	l.AddWorldObject(ctx, loose)
	l.ApplyPendingMutations()

	require.Equal(t, 4, l.SaveDB(ctx))
	batch := h.saver.batches[0]
	var guids []entity.ObjectGuid
	for _, e := range batch {
		guids = append(guids, e.Biota.Guid)
		assert.Same(t, lockOf(e.Biota.Guid, chest, pouch, gem, loose), e.Lock)
	}
	assert.Equal(t, []entity.ObjectGuid{10, 11, 12, 20}, guids)
	assert.Equal(t, entity.ObjectGuid(11), batch[2].Biota.ContainerGuid)
	assert.False(t, batch[2].Biota.HasLocation)

	assert.Equal(t, 0, l.SaveDB(ctx), "после снимка изменений нет")
	assert.Equal(t, 1, h.saver.count())
}

func TestSaveDB_SkipsNonPersistent(t *testing.T) {
	h := newHarness()
	id := NewID(1, 1)
	l := h.landblock(id)
	ctx := context.Background()

	wolf := entity.NewCreature(2, "wolf", at(id, 20, 20))
	wolf.MarkChanged()
	l.AddWorldObject(ctx, wolf)
	l.ApplyPendingMutations()

	assert.Equal(t, 0, l.SaveDB(ctx))
	assert.Equal(t, 0, h.saver.count())
}

func TestSaveDB_FailureIsCountedAndLogged(t *testing.T) {
	h := newHarness()
	id := NewID(1, 1)
	l := h.landblock(id)
	ctx := context.Background()
	h.saver.err = errors.New("disk full")

	it := itemAt(1, at(id, 1, 1))
	it.MarkChanged()
	l.AddWorldObject(ctx, it)
	l.ApplyPendingMutations()

	assert.Equal(t, 1, l.SaveDB(ctx))
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.SaveFailures))
	assert.Equal(t, 1, h.logs.FilterLevelExact(zapcore.ErrorLevel).FilterMessageSnippet("запись пакета").Len())
	assert.True(t, it.ChangesDetected(), "незаписанный объект снова помечен изменённым")

	h.saver.mu.Lock()
	h.saver.err = nil
	h.saver.mu.Unlock()
	assert.Equal(t, 1, l.SaveDB(ctx))
	assert.False(t, it.ChangesDetected())
	assert.Equal(t, 0, l.SaveDB(ctx))
}

func lockOf(guid entity.ObjectGuid, objs ...entity.WorldObject) *sync.RWMutex {
	for _, o := range objs {
		if o.Base().Guid() == guid {
			return o.Base().BiotaLock()
		}
	}
	return nil
}
