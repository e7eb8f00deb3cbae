package entity

import (
	"sort"
	"sync"
	"time"
)

// Item — предмет, лежащий в мире или в контейнере
type Item struct {
	Object

	// TimeToRot — оставшееся время жизни; NeverRot — не распадается
	TimeToRot  time.Duration
	Persistent bool
}

// NewItem создаёт сохраняемый нераспадающийся предмет
func NewItem(guid ObjectGuid, name string) *Item {
	it := &Item{TimeToRot: NeverRot, Persistent: true}
	it.Init(guid, KindItem, name)
	return it
}

func (it *Item) ShouldPersistToShard() bool { return it.Persistent }

// Snapshot реализует Persistable
func (it *Item) Snapshot() Biota {
	b := it.biota()
	b.TimeToRot = it.TimeToRot
	return b
}

// Decay реализует Decayable
func (it *Item) Decay(elapsed time.Duration) bool {
	if it.TimeToRot < 0 {
		return false
	}
	it.TimeToRot -= elapsed
	it.MarkChanged()
	return it.TimeToRot <= 0
}

// ContainerItem — предмет с содержимым. Содержимое не регистрируется
// в ландблоке напрямую, но сохраняется вместе с контейнером.
type ContainerItem struct {
	Item

	mu    sync.Mutex
	items map[ObjectGuid]WorldObject
}

// NewContainer создаёт пустой контейнер
func NewContainer(guid ObjectGuid, name string) *ContainerItem {
	c := &ContainerItem{items: make(map[ObjectGuid]WorldObject)}
	c.TimeToRot = NeverRot
	c.Persistent = true
	c.Init(guid, KindContainer, name)
	return c
}

// AddItem кладёт объект в контейнер
func (c *ContainerItem) AddItem(obj WorldObject) {
	base := obj.Base()
	base.ContainerGuid = c.Guid()
	base.Location = nil
	base.MarkChanged()

	c.mu.Lock()
	c.items[base.Guid()] = obj
	c.mu.Unlock()
	c.MarkChanged()
}

// RemoveItem вынимает объект; nil — такого объекта нет
func (c *ContainerItem) RemoveItem(guid ObjectGuid) WorldObject {
	c.mu.Lock()
	obj, ok := c.items[guid]
	delete(c.items, guid)
	c.mu.Unlock()
	if !ok {
		return nil
	}

	obj.Base().ContainerGuid = 0
	obj.Base().MarkChanged()
	c.MarkChanged()
	return obj
}

// Contents возвращает содержимое в порядке идентификаторов
func (c *ContainerItem) Contents() []WorldObject {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]WorldObject, 0, len(c.items))
	for _, obj := range c.items {
		out = append(out, obj)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Base().Guid() < out[j].Base().Guid() })
	return out
}
