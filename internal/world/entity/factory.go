package entity

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/annel0/landblock/internal/vec"
)

// ErrUnknownTemplate — шаблон с таким идентификатором не зарегистрирован
var ErrUnknownTemplate = errors.New("entity: unknown template")

// Factory создаёт объекты мира по шаблонам и восстанавливает их из снимков
type Factory interface {
	Create(ctx context.Context, templateID uint32, pos vec.Vec2Float) (WorldObject, error)
	Restore(b Biota) (WorldObject, error)
}

// Constructor строит объект шаблона
type Constructor func(guid ObjectGuid, pos vec.Vec2Float) WorldObject

// TemplateFactory — реестр конструкторов шаблонов с общим счётчиком идентификаторов
type TemplateFactory struct {
	mu        sync.RWMutex
	templates map[uint32]Constructor
	nextGuid  atomic.Uint32
}

// NewTemplateFactory создаёт фабрику; идентификаторы выдаются начиная с firstGuid
func NewTemplateFactory(firstGuid ObjectGuid) *TemplateFactory {
	f := &TemplateFactory{templates: make(map[uint32]Constructor)}
	f.nextGuid.Store(uint32(firstGuid))
	return f
}

// Register регистрирует конструктор шаблона
func (f *TemplateFactory) Register(templateID uint32, ctor Constructor) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.templates[templateID] = ctor
}

// NextGuid выдаёт следующий свободный идентификатор
func (f *TemplateFactory) NextGuid() ObjectGuid {
	return ObjectGuid(f.nextGuid.Add(1) - 1)
}

// ReserveGuid гарантирует, что выданные далее идентификаторы будут больше guid
func (f *TemplateFactory) ReserveGuid(guid ObjectGuid) {
	for {
		cur := f.nextGuid.Load()
		if uint32(guid) < cur {
			return
		}
		if f.nextGuid.CompareAndSwap(cur, uint32(guid)+1) {
			return
		}
	}
}

// Create реализует Factory
func (f *TemplateFactory) Create(_ context.Context, templateID uint32, pos vec.Vec2Float) (WorldObject, error) {
	f.mu.RLock()
	ctor, ok := f.templates[templateID]
	f.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownTemplate, templateID)
	}

	obj := ctor(f.NextGuid(), pos)
	obj.Base().TemplateID = templateID
	return obj, nil
}

// Restore восстанавливает объект из снимка. Содержимое контейнеров
// раскладывается загрузчиком по ContainerGuid.
func (f *TemplateFactory) Restore(b Biota) (WorldObject, error) {
	f.ReserveGuid(b.Guid)
	pos := vec.Vec2Float{X: b.X, Y: b.Y}

	var obj WorldObject
	switch b.Kind {
	case KindItem:
		it := NewItem(b.Guid, b.Name)
		it.TimeToRot = b.TimeToRot
		obj = it
	case KindContainer:
		c := NewContainer(b.Guid, b.Name)
		c.TimeToRot = b.TimeToRot
		obj = c
	case KindCreature:
		c := NewCreature(b.Guid, b.Name, pos)
		c.Persistent = true
		obj = c
	default:
		return nil, fmt.Errorf("entity: kind %s is not restorable", b.Kind)
	}

	base := obj.Base()
	base.TemplateID = b.TemplateID
	base.ContainerGuid = b.ContainerGuid
	base.GeneratorGuid = b.GeneratorGuid
	if b.HasLocation {
		base.SetLocation(pos)
	} else {
		base.Location = nil
	}
	for k, v := range b.Properties {
		base.Properties[k] = v
	}
	return obj, nil
}
