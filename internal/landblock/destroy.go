package landblock

import (
	"context"

	"github.com/annel0/landblock/internal/world/entity"
	"go.uber.org/zap"
)

// DestroyObject уничтожает объект, всё им порождённое и содержимое контейнеров
func (l *Landblock) DestroyObject(ctx context.Context, guid entity.ObjectGuid) {
	if !l.ownsContext(ctx) {
		l.handOff(ctx, DestroyObject{Guid: guid}, guid, l.GetObject(guid, false))
		return
	}
	l.destroy(ctx, guid)
}

// destroy обходит дерево зависимостей рабочим списком с множеством посещённых.
// Объекты снимаются с того ландблока, которому принадлежат (порождённые могли
// уйти к соседу). Возвращает число уничтоженных зарегистрированных объектов.
func (l *Landblock) destroy(ctx context.Context, root entity.ObjectGuid) int {
	work := []entity.ObjectGuid{root}
	visited := make(map[entity.ObjectGuid]struct{})
	destroyed := 0

	for len(work) > 0 {
		guid := work[len(work)-1]
		work = work[:len(work)-1]
		if _, seen := visited[guid]; seen {
			continue
		}
		visited[guid] = struct{}{}

		obj := l.GetObject(guid, true)
		if obj == nil {
			continue
		}
		base := obj.Base()
		if !base.MarkDestroyed() {
			continue
		}

		if gen, ok := obj.(entity.GeneratorTickable); ok {
			work = append(work, gen.SpawnedGuids()...)
		}
		if c, ok := obj.(entity.Container); ok {
			for _, item := range c.Contents() {
				item.Base().MarkDestroyed()
			}
		}

		owner := l
		if h, ok := base.CurrentLandblock().(*Landblock); ok && h != nil {
			owner = h
		}
		owner.removeWorldObject(guid)
		destroyed++

		// уничтоженный генератор уже не находится, и уведомлять некого
		if base.GeneratorGuid != 0 {
			if gen, ok := l.GetObject(base.GeneratorGuid, true).(entity.GeneratorTickable); ok {
				gen.OnChildDestroyed(guid)
			}
		}
	}

	if destroyed > 1 {
		l.log.Zap().Debug("каскадное уничтожение", zap.Stringer("root", root), zap.Int("objects", destroyed))
	}
	return destroyed
}
