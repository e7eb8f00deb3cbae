package landblock

import (
	"context"
	"testing"
	"time"

	"github.com/annel0/landblock/internal/eventbus"
	"github.com/annel0/landblock/internal/world/entity"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestGuard_SingleThreadedAlwaysOwns(t *testing.T) {
	h := newHarness()
	l := h.landblock(NewID(1, 1))
	l.SetGroup(1)

	assert.True(t, l.ownsContext(context.Background()))
	assert.True(t, l.ownsContext(WithGroup(context.Background(), 7)))
}

func TestGuard_MultiThreadedRequiresOwnGroup(t *testing.T) {
	h := newHarness()
	l := h.landblock(NewID(1, 1))
	l.SetGroup(1)
	h.state.SetMultiThreaded(true)

	assert.True(t, l.ownsContext(WithGroup(context.Background(), 1)))
	assert.False(t, l.ownsContext(WithGroup(context.Background(), 2)))
	assert.False(t, l.ownsContext(context.Background()), "контекст без группы не владеет ландблоком")
}

func TestGuard_ForeignAddIsHandedOff(t *testing.T) {
	h := newHarness()
	id := NewID(1, 1)
	l := h.landblock(id)
	l.SetGroup(1)
	h.state.SetMultiThreaded(true)

	it := itemAt(5, at(id, 3, 3))
	foreign := WithGroup(context.Background(), 2)
	assert.True(t, l.AddWorldObject(foreign, it))

	assert.Equal(t, 1, l.PendingActions())
	adds, _ := l.PendingCounts()
	assert.Equal(t, 0, adds, "объект не добавлен напрямую")
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.GuardViolations.WithLabelValues("add_object")))

	errs := h.logs.FilterLevelExact(zapcore.ErrorLevel).All()
	require.Len(t, errs, 1)
	fields := errs[0].ContextMap()
	assert.Equal(t, "add_object", fields["op"])
	assert.Equal(t, uint32(2), fields["caller_group"])
	assert.Equal(t, uint32(1), fields["owner_group"])
	assert.Contains(t, fields, "stack")

	own := WithGroup(context.Background(), 1)
	l.TickMultiThreadedWork(own, t0.Add(time.Second))
	assert.Equal(t, 0, l.PendingActions())
	assert.Same(t, it, l.GetObject(5, false))
	assert.Equal(t, 1, l.ObjectCount())
}

func TestGuard_ForeignRemoveAndDestroy(t *testing.T) {
	h := newHarness()
	id := NewID(1, 1)
	l := h.landblock(id)
	ctx := context.Background()

	a := itemAt(1, at(id, 1, 1))
	b := itemAt(2, at(id, 2, 2))
	l.AddWorldObject(ctx, a)
	l.AddWorldObject(ctx, b)
	l.ApplyPendingMutations()

	l.SetGroup(1)
	h.state.SetMultiThreaded(true)
	foreign := WithGroup(ctx, 2)
	l.RemoveWorldObject(foreign, 1)
	l.DestroyObject(foreign, 2)

	assert.Equal(t, 2, l.ObjectCount())
	assert.False(t, b.IsDestroyed())
	assert.Equal(t, 2, l.PendingActions())
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.GuardViolations.WithLabelValues("remove_object")))
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.GuardViolations.WithLabelValues("destroy_object")))

	l.TickMultiThreadedWork(WithGroup(ctx, 1), t0.Add(time.Second))
	assert.Equal(t, 0, l.ObjectCount())
	assert.False(t, a.IsDestroyed(), "удаление не уничтожает")
	assert.True(t, b.IsDestroyed())
}

func TestGuard_ViolationPublishesEvent(t *testing.T) {
	h := newHarness()
	bus := eventbus.NewMemoryBus(16)
	defer bus.Close()
	h.svc.Bus = bus

	got := make(chan *eventbus.Envelope, 1)
	_, err := bus.Subscribe(context.Background(), eventbus.Filter{Types: []string{eventbus.EventGuardViolation}},
		func(_ context.Context, ev *eventbus.Envelope) { got <- ev })
	require.NoError(t, err)

	id := NewID(1, 1)
	l := h.landblock(id)
	l.SetGroup(1)
	h.state.SetMultiThreaded(true)
	l.AddWorldObject(WithGroup(context.Background(), 2), itemAt(5, at(id, 1, 1)))

	select {
	case ev := <-got:
		assert.Equal(t, id.String(), ev.Source)
		payload, err := eventbus.DecodeLandblockEvent(ev)
		require.NoError(t, err)
		assert.Equal(t, uint32(5), payload.Guid)
		assert.Equal(t, "add_object", payload.Detail)
	case <-time.After(time.Second):
		t.Fatal("событие нарушения не доставлено")
	}
}

func TestGuard_GeneratorSpawnIntoForeignLandblock(t *testing.T) {
	h := newHarness()
	home := h.landblock(NewID(1, 1))
	other := h.landblock(NewID(5, 5))
	home.SetGroup(1)
	other.SetGroup(2)
	h.state.SetMultiThreaded(true)

	// генератор из группы 1 пытается положить объект в ландблок группы 2
	child := entity.NewCreature(100, "spawn", at(other.ID(), 10, 10))
	assert.True(t, other.AddWorldObject(WithGroup(context.Background(), home.Group()), child))
	assert.Nil(t, other.GetObject(100, false))
	assert.Equal(t, 1, other.PendingActions())
}
