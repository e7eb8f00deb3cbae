package world

import (
	"context"
	"fmt"

	"github.com/annel0/landblock/internal/landblock"
	"github.com/annel0/landblock/internal/logging"
	"github.com/annel0/landblock/internal/storage"
	"github.com/annel0/landblock/internal/world/entity"
)

// Loader восстанавливает сохранённые объекты ландблока при загрузке
type Loader interface {
	LoadLandblock(ctx context.Context, id landblock.ID) ([]entity.WorldObject, error)
}

// StoreLoader читает снимки из хранилища и собирает объекты фабрикой.
// Содержимое контейнеров раскладывается по ContainerGuid и в результат не попадает.
type StoreLoader struct {
	Store   storage.Store
	Factory entity.Factory
	Log     *logging.Logger
}

func (sl *StoreLoader) LoadLandblock(ctx context.Context, id landblock.ID) ([]entity.WorldObject, error) {
	biotas, err := sl.Store.LoadLandblock(ctx, uint16(id))
	if err != nil {
		return nil, fmt.Errorf("load landblock %s: %w", id, err)
	}

	restored := make(map[entity.ObjectGuid]entity.WorldObject, len(biotas))
	order := make([]entity.WorldObject, 0, len(biotas))
	for _, b := range biotas {
		obj, err := sl.Factory.Restore(b)
		if err != nil {
			sl.warn("объект %s пропущен: %v", b.Guid, err)
			continue
		}
		restored[b.Guid] = obj
		order = append(order, obj)
	}

	roots := make([]entity.WorldObject, 0, len(order))
	for _, obj := range order {
		base := obj.Base()
		if base.ContainerGuid != 0 {
			if c, ok := restored[base.ContainerGuid].(entity.Container); ok {
				c.AddItem(obj)
				continue
			}
			sl.warn("контейнер %s для %s не найден", base.ContainerGuid, base.Guid())
			base.ContainerGuid = 0
		}
		if base.Location == nil {
			sl.warn("объект %s без позиции пропущен", base.Guid())
			continue
		}
		roots = append(roots, obj)
	}
	// загруженное состояние совпадает с сохранённым
	for _, obj := range order {
		obj.Base().ClearChanges()
	}
	return roots, nil
}

func (sl *StoreLoader) warn(format string, args ...interface{}) {
	if sl.Log != nil {
		sl.Log.Warn(format, args...)
	}
}
