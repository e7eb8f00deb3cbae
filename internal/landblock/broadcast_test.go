package landblock

import (
	"context"
	"testing"
	"time"

	"github.com/annel0/landblock/internal/world/entity"
	"github.com/stretchr/testify/assert"
)

type broadcastWorld struct {
	h        *harness
	center   *Landblock
	near     *Landblock
	far      *Landblock
	sessions map[entity.ObjectGuid]*recordingSession
}

// newBroadcastWorld строит цепочку center - near - far с игроком в каждом ландблоке
// и двумя игроками в center
func newBroadcastWorld(t *testing.T) *broadcastWorld {
	t.Helper()
	h := newHarness()
	w := &broadcastWorld{
		h:        h,
		center:   h.landblock(NewID(10, 10)),
		near:     h.landblock(NewID(11, 10)),
		far:      h.landblock(NewID(12, 10)),
		sessions: make(map[entity.ObjectGuid]*recordingSession),
	}
	w.center.SetAdjacents([]*Landblock{w.near})
	w.near.SetAdjacents([]*Landblock{w.center, w.far})
	w.far.SetAdjacents([]*Landblock{w.near})

	add := func(l *Landblock, guid entity.ObjectGuid, dx, dy float64) {
		s := &recordingSession{}
		w.sessions[guid] = s
		l.AddWorldObject(context.Background(), entity.NewPlayer(guid, "p", at(l.ID(), dx, dy), s))
		l.ApplyPendingMutations()
	}
	add(w.center, 1, 10, 10)
	add(w.center, 2, 100, 100)
	add(w.near, 3, 10, 10)
	add(w.far, 4, 10, 10)

	w.center.AddWorldObject(context.Background(), itemAt(50, at(w.center.ID(), 10, 11)))
	w.center.ApplyPendingMutations()
	return w
}

func (w *broadcastWorld) received() map[entity.ObjectGuid]int {
	out := make(map[entity.ObjectGuid]int)
	for guid, s := range w.sessions {
		out[guid] = s.count()
	}
	return out
}

func TestBroadcast_LocalOnly(t *testing.T) {
	w := newBroadcastWorld(t)

	n := w.center.EnqueueBroadcast(Broadcast{Message: entity.Message{Type: "chat", Text: "hi"}})
	assert.Equal(t, 2, n)
	assert.Equal(t, map[entity.ObjectGuid]int{1: 1, 2: 1, 3: 0, 4: 0}, w.received())
	assert.Equal(t, "hi", w.sessions[1].msgs[0].Text)
}

func TestBroadcast_AdjacentsOneLevel(t *testing.T) {
	w := newBroadcastWorld(t)

	n := w.center.EnqueueBroadcast(Broadcast{Message: entity.Message{Type: "chat"}, IncludeAdjacents: true})
	assert.Equal(t, 3, n)
	assert.Equal(t, map[entity.ObjectGuid]int{1: 1, 2: 1, 3: 1, 4: 0}, w.received())
}

func TestBroadcast_Exclude(t *testing.T) {
	w := newBroadcastWorld(t)

	n := w.center.EnqueueBroadcast(Broadcast{
		Message: entity.Message{Type: "emote"},
		Exclude: map[entity.ObjectGuid]struct{}{1: {}},
	})
	assert.Equal(t, 1, n)
	assert.Equal(t, 0, w.sessions[1].count())
}

func TestBroadcast_Distance(t *testing.T) {
	w := newBroadcastWorld(t)
	origin := at(w.center.ID(), 10, 10)

	n := w.center.EnqueueBroadcast(Broadcast{
		Message:            entity.Message{Type: "say"},
		Origin:             &origin,
		MaxDistanceSquared: 20 * 20,
		IncludeAdjacents:   true,
	})
	// игрок 3 в соседнем ландблоке на 192 единицы восточнее
	assert.Equal(t, 1, n)
	assert.Equal(t, map[entity.ObjectGuid]int{1: 1, 2: 0, 3: 0, 4: 0}, w.received())
}

func TestBroadcast_ZeroDistanceIsUnlimited(t *testing.T) {
	w := newBroadcastWorld(t)
	origin := at(w.center.ID(), 0, 0)

	n := w.center.EnqueueBroadcast(Broadcast{Message: entity.Message{Type: "say"}, Origin: &origin})
	assert.Equal(t, 2, n)
}

func TestBroadcastAction_DeliveredInPhaseTwo(t *testing.T) {
	w := newBroadcastWorld(t)

	w.center.EnqueueAction(BroadcastAction{Broadcast: Broadcast{Message: entity.Message{Type: "system"}}})
	assert.Equal(t, 0, w.sessions[1].count())

	w.center.TickMultiThreadedWork(context.Background(), t0.Add(time.Second))
	assert.Equal(t, 1, w.sessions[1].count())
	assert.Equal(t, 1, w.sessions[2].count())
}
