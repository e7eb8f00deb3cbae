package landblock

import (
	"context"

	"github.com/annel0/landblock/internal/eventbus"
	"github.com/annel0/landblock/internal/world/entity"
	"go.uber.org/zap"
)

// SaveDB снимает изменённые сохраняемые объекты вместе с содержимым контейнеров
// и отдаёт пакет на асинхронную запись. Возвращает размер пакета.
// Пустой пакет не отправляется.
func (l *Landblock) SaveDB(ctx context.Context) int {
	batch, saved := l.collectBiotas()
	if len(batch) == 0 {
		return 0
	}
	if l.svc.Saver == nil {
		l.log.Zap().Warn("хранилище не настроено, пакет пропущен", zap.Int("biotas", len(batch)))
		for _, base := range saved {
			base.MarkChanged()
		}
		return 0
	}

	l.svc.Metrics.SaveBatches.Inc()
	l.svc.Metrics.SavedBiotas.Add(float64(len(batch)))

	id, log, metrics, bus := l.id, l.log, l.svc.Metrics, l.svc.Bus
	size := len(batch)
	l.svc.Saver.SaveBiotasInParallel(ctx, batch, func(err error) {
		if err == nil {
			return
		}
		// снимок не записан: объекты снова грязные и уйдут в следующий пакет
		for _, base := range saved {
			base.MarkChanged()
		}
		metrics.SaveFailures.Inc()
		log.Zap().Error("запись пакета не удалась", zap.Int("biotas", size), zap.Error(err))
		if bus == nil {
			return
		}
		env, encErr := eventbus.NewEnvelope(id.String(), eventbus.EventSaveFailed, 4, eventbus.LandblockEvent{
			Landblock: id.String(),
			Objects:   size,
			Detail:    err.Error(),
		})
		if encErr == nil {
			_ = bus.Publish(context.Background(), env)
		}
	})
	return size
}

// collectBiotas обходит объекты в порядке идентификаторов; для контейнеров
// обходится всё дерево вложенности. Вторым значением возвращаются объекты,
// чьи изменения вошли в пакет.
func (l *Landblock) collectBiotas() ([]entity.BiotaEntry, []*entity.Object) {
	now := l.svc.Clock.Now()
	var batch []entity.BiotaEntry
	var saved []*entity.Object
	visited := make(map[entity.ObjectGuid]struct{})

	for _, root := range l.Objects() {
		work := []entity.WorldObject{root}
		for len(work) > 0 {
			obj := work[len(work)-1]
			work = work[:len(work)-1]

			base := obj.Base()
			if _, seen := visited[base.Guid()]; seen {
				continue
			}
			visited[base.Guid()] = struct{}{}

			if p, ok := obj.(entity.Persistable); ok && p.ShouldPersistToShard() && base.ChangesDetected() {
				b := p.Snapshot()
				b.Landblock = uint16(l.id)
				b.SavedAt = now
				base.ClearChanges()
				batch = append(batch, entity.BiotaEntry{Biota: b, Lock: base.BiotaLock()})
				saved = append(saved, base)
			}

			if c, ok := obj.(entity.Container); ok {
				contents := c.Contents()
				for i := len(contents) - 1; i >= 0; i-- {
					work = append(work, contents[i])
				}
			}
		}
	}
	return batch, saved
}
