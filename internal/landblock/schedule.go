package landblock

import (
	"container/list"
	"time"

	"github.com/annel0/landblock/internal/world/entity"
)

// TimeOf достаёт из объекта время следующего запуска для конкретного расписания
type TimeOf func(o *entity.Object) time.Time

var (
	HeartbeatTime             TimeOf = func(o *entity.Object) time.Time { return o.NextHeartbeatTime }
	GeneratorUpdateTime       TimeOf = func(o *entity.Object) time.Time { return o.NextGeneratorUpdateTime }
	GeneratorRegenerationTime TimeOf = func(o *entity.Object) time.Time { return o.NextGeneratorRegenerationTime }
	AITickTime                TimeOf = func(o *entity.Object) time.Time { return o.NextAITickTime }
)

type scheduled struct {
	obj entity.WorldObject
	at  time.Time
}

// Schedule — упорядоченная по времени запуска очередь объектов.
// Вставка почти всегда идёт в хвост: объекты переносят себя вперёд.
// Время фиксируется при вставке; изменение поля объекта без Reinsert порядок не меняет.
type Schedule struct {
	name   string
	timeOf TimeOf
	items  *list.List
	index  map[entity.ObjectGuid]*list.Element
}

// NewSchedule создаёт пустое расписание
func NewSchedule(name string, timeOf TimeOf) *Schedule {
	return &Schedule{
		name:   name,
		timeOf: timeOf,
		items:  list.New(),
		index:  make(map[entity.ObjectGuid]*list.Element),
	}
}

func (s *Schedule) Name() string { return s.name }
func (s *Schedule) Len() int     { return s.items.Len() }

// Insert ставит объект по его текущему времени запуска. Объект без
// времени (Never) в расписание не попадает; false — объект не вставлен.
// Уже стоящий в расписании объект переставляется.
func (s *Schedule) Insert(obj entity.WorldObject) bool {
	base := obj.Base()
	s.Remove(base.Guid())

	at := s.timeOf(base)
	if !entity.Scheduled(at) {
		return false
	}

	entry := scheduled{obj: obj, at: at}
	if s.items.Len() == 0 {
		s.index[base.Guid()] = s.items.PushBack(entry)
		return true
	}

	if tail := s.items.Back().Value.(scheduled); !at.Before(tail.at) {
		s.index[base.Guid()] = s.items.PushBack(entry)
		return true
	}

	for e := s.items.Front(); e != nil; e = e.Next() {
		if !e.Value.(scheduled).at.Before(at) {
			s.index[base.Guid()] = s.items.InsertBefore(entry, e)
			return true
		}
	}

	// недостижимо: хвост заведомо не раньше at
	s.index[base.Guid()] = s.items.PushBack(entry)
	return true
}

// Reinsert переставляет объект после того, как он вычислил новое время запуска
func (s *Schedule) Reinsert(obj entity.WorldObject) bool {
	return s.Insert(obj)
}

// RemoveFirstDue снимает голову расписания, если её время не позже now.
// nil — ничего не пора запускать, расписание не меняется.
func (s *Schedule) RemoveFirstDue(now time.Time) entity.WorldObject {
	front := s.items.Front()
	if front == nil {
		return nil
	}
	entry := front.Value.(scheduled)
	if entry.at.After(now) {
		return nil
	}
	s.items.Remove(front)
	delete(s.index, entry.obj.Base().Guid())
	return entry.obj
}

// Remove убирает объект из расписания
func (s *Schedule) Remove(guid entity.ObjectGuid) bool {
	e, ok := s.index[guid]
	if !ok {
		return false
	}
	s.items.Remove(e)
	delete(s.index, guid)
	return true
}

func (s *Schedule) Contains(guid entity.ObjectGuid) bool {
	_, ok := s.index[guid]
	return ok
}

// Times возвращает времена запуска в порядке обхода
func (s *Schedule) Times() []time.Time {
	out := make([]time.Time, 0, s.items.Len())
	for e := s.items.Front(); e != nil; e = e.Next() {
		out = append(out, e.Value.(scheduled).at)
	}
	return out
}

// Guids возвращает идентификаторы в порядке обхода
func (s *Schedule) Guids() []entity.ObjectGuid {
	out := make([]entity.ObjectGuid, 0, s.items.Len())
	for e := s.items.Front(); e != nil; e = e.Next() {
		out = append(out, e.Value.(scheduled).obj.Base().Guid())
	}
	return out
}

// NextTime возвращает время головы расписания
func (s *Schedule) NextTime() (time.Time, bool) {
	front := s.items.Front()
	if front == nil {
		return time.Time{}, false
	}
	return front.Value.(scheduled).at, true
}

// Clear очищает расписание
func (s *Schedule) Clear() {
	s.items.Init()
	s.index = make(map[entity.ObjectGuid]*list.Element)
}
