package landblock

import (
	"github.com/annel0/landblock/internal/vec"
	"github.com/annel0/landblock/internal/world/entity"
)

// Broadcast — сообщение для игроков ландблока
type Broadcast struct {
	Message entity.Message
	// Origin и MaxDistanceSquared ограничивают рассылку кругом; MaxDistanceSquared <= 0 — без ограничения
	Origin             *vec.Vec2Float
	MaxDistanceSquared float64
	Exclude            map[entity.ObjectGuid]struct{}
	// IncludeAdjacents — разослать и игрокам соседей (только на один уровень)
	IncludeAdjacents bool
}

// EnqueueBroadcast доставляет сообщение игрокам и возвращает число получателей
func (l *Landblock) EnqueueBroadcast(b Broadcast) int {
	n := l.deliver(b)
	if !b.IncludeAdjacents {
		return n
	}
	for _, adj := range l.Adjacents() {
		n += adj.deliver(b)
	}
	return n
}

func (l *Landblock) deliver(b Broadcast) int {
	n := 0
	for _, obj := range l.Objects() {
		base := obj.Base()
		if base.Kind() != entity.KindPlayer || base.IsDestroyed() {
			continue
		}
		if _, skip := b.Exclude[base.Guid()]; skip {
			continue
		}
		if b.Origin != nil && b.MaxDistanceSquared > 0 {
			if base.Location == nil || base.Location.DistanceSquared(*b.Origin) > b.MaxDistanceSquared {
				continue
			}
		}
		p, ok := obj.(entity.PlayerTickable)
		if !ok || p.Session() == nil {
			continue
		}
		p.Session().Send(b.Message)
		n++
	}
	return n
}
