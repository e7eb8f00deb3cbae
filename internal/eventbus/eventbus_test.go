package eventbus

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryBus_FilterAndDeliver(t *testing.T) {
	bus := NewMemoryBus(16)
	defer bus.Close()

	got := make(chan *Envelope, 4)
	_, err := bus.Subscribe(context.Background(), Filter{Types: []string{EventLandblockDormant}}, func(_ context.Context, ev *Envelope) {
		got <- ev
	})
	require.NoError(t, err)

	active, err := NewEnvelope("0xA9B4", EventLandblockActive, 1, LandblockEvent{Landblock: "0xA9B4"})
	require.NoError(t, err)
	dormant, err := NewEnvelope("0xA9B4", EventLandblockDormant, 1, LandblockEvent{Landblock: "0xA9B4", State: "dormant", Objects: 3})
	require.NoError(t, err)

	require.NoError(t, bus.Publish(context.Background(), active))
	require.NoError(t, bus.Publish(context.Background(), dormant))

	select {
	case ev := <-got:
		assert.Equal(t, EventLandblockDormant, ev.EventType)
		le, err := DecodeLandblockEvent(ev)
		require.NoError(t, err)
		assert.Equal(t, 3, le.Objects)
		assert.Equal(t, "dormant", le.State)
	case <-time.After(2 * time.Second):
		t.Fatal("событие не доставлено")
	}

	select {
	case ev := <-got:
		t.Fatalf("лишнее событие %s", ev.EventType)
	case <-time.After(50 * time.Millisecond):
	}

	assert.Equal(t, uint64(2), bus.Metrics().Published)
}

func TestMemoryBus_DropsLowPriorityWhenFull(t *testing.T) {
	mb := &memoryBus{
		subscribers: make(map[int]subscriber),
		buffer:      make(chan *Envelope, 1),
		capacity:    1,
	}

	require.NoError(t, mb.Publish(context.Background(), &Envelope{EventType: "a"}))
	require.NoError(t, mb.Publish(context.Background(), &Envelope{EventType: "b"}))

	stats := mb.Metrics()
	assert.Equal(t, uint64(1), stats.Published)
	assert.Equal(t, uint64(1), stats.Dropped)
	assert.Equal(t, 1, stats.InFlight)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := mb.Publish(ctx, &Envelope{EventType: "c", Priority: 9})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestMemoryBus_PublishAfterClose(t *testing.T) {
	bus := NewMemoryBus(4)
	require.NoError(t, bus.Close())
	assert.ErrorIs(t, bus.Publish(context.Background(), &Envelope{}), ErrClosed)
}

func TestMetricsExporter_Collect(t *testing.T) {
	mb := &memoryBus{
		subscribers: make(map[int]subscriber),
		buffer:      make(chan *Envelope, 4),
	}
	reg := prometheus.NewRegistry()
	me := NewMetricsExporter(mb, reg)

	require.NoError(t, mb.Publish(context.Background(), &Envelope{}))
	require.NoError(t, mb.Publish(context.Background(), &Envelope{}))

	var prev Stats
	me.collect(&prev)
	assert.Equal(t, 2.0, testutil.ToFloat64(me.published))
	assert.Equal(t, 2.0, testutil.ToFloat64(me.inflight))

	me.collect(&prev)
	assert.Equal(t, 2.0, testutil.ToFloat64(me.published))
}
