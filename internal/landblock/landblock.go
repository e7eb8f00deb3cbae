// Package landblock реализует ландблок: участок мира, владеющий своими объектами
// и продвигающий их состояние в трёхфазном тике.
package landblock

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/annel0/landblock/internal/eventbus"
	"github.com/annel0/landblock/internal/logging"
	"github.com/annel0/landblock/internal/world/entity"
	"go.uber.org/zap"
)

// State — состояние жизненного цикла ландблока
type State int32

const (
	StateActive State = iota
	StateDormant
	StateUnloading
	StateUnloaded
)

func (s State) String() string {
	switch s {
	case StateActive:
		return "active"
	case StateDormant:
		return "dormant"
	case StateUnloading:
		return "unloading"
	case StateUnloaded:
		return "unloaded"
	default:
		return "unknown"
	}
}

var _ entity.Host = (*Landblock)(nil)

// Options — параметры отдельного ландблока
type Options struct {
	Permaload bool
	Dungeon   bool
}

// Landblock владеет объектами своего участка. Набор объектов и расписания меняет
// только группа-владелец; чужие мутации передаются через очередь команд.
type Landblock struct {
	id  ID
	svc Services
	log *logging.Logger

	permaload bool
	dungeon   bool

	// mu защищает entities, отложенные наборы и соседей: их читают
	// соседние ландблоки и административный API
	mu            sync.RWMutex
	entities      map[entity.ObjectGuid]entity.WorldObject
	pendingAdd    pendingSet
	pendingRemove pendingSet
	adjacent      []*Landblock

	heartbeats *Schedule
	genUpdates *Schedule
	genRegens  *Schedule
	aiTicks    *Schedule

	actions ActionQueue

	currentGroup      atomic.Uint32
	state             atomic.Int32
	lastActive        atomic.Int64
	destructionQueued atomic.Bool

	// только для владельца
	lastHeartbeat    time.Time
	lastDatabaseSave time.Time
	lastPhysics      time.Time
	monitor          perfMonitor
	// draining — идёт обход расписания; Reschedule копит объекты в rescheduled
	draining    bool
	rescheduled []entity.WorldObject
}

// New создаёт активный ландблок
func New(id ID, svc Services, opts Options) *Landblock {
	svc = svc.withDefaults()
	now := svc.Clock.Now()

	l := &Landblock{
		id:               id,
		svc:              svc,
		log:              svc.Log.With(zap.Stringer("landblock", id)),
		permaload:        opts.Permaload,
		dungeon:          opts.Dungeon,
		entities:         make(map[entity.ObjectGuid]entity.WorldObject),
		pendingAdd:       newPendingSet(),
		pendingRemove:    newPendingSet(),
		heartbeats:       NewSchedule("heartbeat", HeartbeatTime),
		genUpdates:       NewSchedule("generator_update", GeneratorUpdateTime),
		genRegens:        NewSchedule("generator_regeneration", GeneratorRegenerationTime),
		aiTicks:          NewSchedule("ai_tick", AITickTime),
		lastHeartbeat:    now,
		lastDatabaseSave: now,
	}
	l.lastActive.Store(now.UnixNano())
	l.state.Store(int32(StateActive))
	return l
}

func (l *Landblock) ID() ID          { return l.id }
func (l *Landblock) Permaload() bool { return l.permaload }
func (l *Landblock) IsDungeon() bool { return l.dungeon }
func (l *Landblock) State() State    { return State(l.state.Load()) }
func (l *Landblock) IsDormant() bool { return l.State() == StateDormant }

// Perf возвращает сводку последнего закрытого окна монитора
func (l *Landblock) Perf() PerfStats { return l.monitor.stats() }

// PendingActions возвращает длину очереди команд
func (l *Landblock) PendingActions() int { return l.actions.Len() }

// LastActive — время последней активности
func (l *Landblock) LastActive() time.Time {
	return time.Unix(0, l.lastActive.Load())
}

// DestructionQueued сообщает, что ландблок просит планировщик выгрузить его
func (l *Landblock) DestructionQueued() bool { return l.destructionQueued.Load() }

// SetAdjacents заменяет список соседей. Вызывается планировщиком вне параллельной фазы.
func (l *Landblock) SetAdjacents(adj []*Landblock) {
	l.mu.Lock()
	l.adjacent = append([]*Landblock(nil), adj...)
	l.mu.Unlock()
}

// Adjacents возвращает копию списка соседей
func (l *Landblock) Adjacents() []*Landblock {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]*Landblock(nil), l.adjacent...)
}

// AddWorldObject ставит объект в отложенные добавления. Объект должен иметь позицию.
// false — объект не добавлен (нет позиции, ландблок выгружен, место занято);
// при неудачном размещении порождённого объекта уведомляется его генератор.
// Вызов из чужой группы передаётся владельцу и возвращает true.
func (l *Landblock) AddWorldObject(ctx context.Context, obj entity.WorldObject) bool {
	base := obj.Base()
	if base.Location == nil {
		l.log.Zap().Warn("add object: нет позиции", zap.Stringer("guid", base.Guid()), zap.String("name", base.Name))
		return false
	}
	if l.State() == StateUnloaded {
		l.log.Zap().Warn("add object: ландблок выгружен", zap.Stringer("guid", base.Guid()))
		return false
	}
	if !l.ownsContext(ctx) {
		l.handOff(ctx, AddObject{Object: obj}, base.Guid(), obj)
		return true
	}
	return l.addWorldObject(obj)
}

func (l *Landblock) addWorldObject(obj entity.WorldObject) bool {
	base := obj.Base()
	guid := base.Guid()

	l.mu.Lock()
	if _, ok := l.pendingRemove.remove(guid); ok {
		l.mu.Unlock()
		base.SetCurrentLandblock(l)
		return true
	}
	if _, ok := l.entities[guid]; ok {
		l.mu.Unlock()
		return true
	}
	if _, ok := l.pendingAdd.get(guid); ok {
		l.mu.Unlock()
		return true
	}
	others := l.objectsLocked()
	l.mu.Unlock()

	if e, ok := obj.(entity.WorldEnterer); ok {
		e.EnterWorld(l.svc.Clock.Now())
	}

	if err := l.svc.Physics.Place(obj, others); err != nil {
		l.svc.Metrics.PlacementFailures.Inc()
		l.log.Zap().Debug("размещение не удалось",
			zap.Stringer("guid", guid), zap.String("name", base.Name), zap.Error(err))

		// генератор узнаёт только о неудачном первом размещении; отказ при переходе
		// границы не делает живого потомка потерянным
		if base.GeneratorGuid != 0 && !base.EverPlaced() {
			if gen, ok := l.GetObject(base.GeneratorGuid, true).(entity.GeneratorTickable); ok {
				gen.NotifyPlacementFailed(obj)
			}
		}
		return false
	}

	l.mu.Lock()
	l.pendingAdd.add(obj)
	l.mu.Unlock()
	base.SetCurrentLandblock(l)
	base.MarkPlaced()
	return true
}

// RemoveWorldObject ставит объект в отложенные удаления (или отменяет
// отложенное добавление). Отсутствующий объект — предупреждение, не ошибка.
func (l *Landblock) RemoveWorldObject(ctx context.Context, guid entity.ObjectGuid) {
	if !l.ownsContext(ctx) {
		l.handOff(ctx, RemoveObject{Guid: guid}, guid, nil)
		return
	}
	l.removeWorldObject(guid)
}

func (l *Landblock) removeWorldObject(guid entity.ObjectGuid) bool {
	l.mu.Lock()
	if obj, ok := l.pendingAdd.remove(guid); ok {
		l.mu.Unlock()
		if obj.Base().CurrentLandblock() == entity.Host(l) {
			obj.Base().SetCurrentLandblock(nil)
		}
		return true
	}
	if obj, ok := l.entities[guid]; ok {
		if _, pending := l.pendingRemove.get(guid); !pending {
			l.pendingRemove.add(obj)
		}
		l.mu.Unlock()
		return true
	}
	l.mu.Unlock()

	l.log.Zap().Warn("remove object: объект не найден", zap.Stringer("guid", guid))
	return false
}

// GetObject ищет объект с учётом отложенных изменений: ожидающий удаления
// считается уже ушедшим, ожидающий добавления — уже пришедшим.
// searchAdjacents — искать также у соседей (на один уровень).
func (l *Landblock) GetObject(guid entity.ObjectGuid, searchAdjacents bool) entity.WorldObject {
	l.mu.RLock()
	if _, ok := l.pendingRemove.get(guid); ok {
		l.mu.RUnlock()
		return nil
	}
	if obj, ok := l.entities[guid]; ok {
		l.mu.RUnlock()
		return obj
	}
	if obj, ok := l.pendingAdd.get(guid); ok {
		l.mu.RUnlock()
		return obj
	}
	adjacent := l.adjacent
	l.mu.RUnlock()

	if !searchAdjacents {
		return nil
	}
	for _, adj := range adjacent {
		if obj := adj.GetObject(guid, false); obj != nil {
			return obj
		}
	}
	return nil
}

// ApplyPendingMutations переносит отложенные добавления в entities и расписания
// и выполняет отложенные удаления. Вызывается перед любым обходом entities.
func (l *Landblock) ApplyPendingMutations() {
	l.mu.Lock()
	adds := l.pendingAdd.drain()
	removes := l.pendingRemove.drain()
	for _, obj := range adds {
		l.entities[obj.Base().Guid()] = obj
	}
	for _, obj := range removes {
		delete(l.entities, obj.Base().Guid())
	}
	count := len(l.entities)
	l.mu.Unlock()

	for _, obj := range adds {
		l.schedule(obj)
	}
	for _, obj := range removes {
		l.unschedule(obj.Base().Guid())
		if obj.Base().CurrentLandblock() == entity.Host(l) {
			obj.Base().SetCurrentLandblock(nil)
		}
	}
	if len(adds) > 0 || len(removes) > 0 {
		l.svc.Metrics.Objects.WithLabelValues(l.id.String()).Set(float64(count))
	}
}

// Reschedule переставляет объект во всех расписаниях после смены его времён.
// Во время обхода расписания перестановка откладывается до конца обхода.
func (l *Landblock) Reschedule(obj entity.WorldObject) {
	if l.draining {
		l.rescheduled = append(l.rescheduled, obj)
		return
	}
	if l.isRegistered(obj.Base().Guid()) {
		l.schedule(obj)
	}
}

// EnqueueAction ставит команду в очередь; безопасно из любой горутины
func (l *Landblock) EnqueueAction(a Action) {
	l.actions.Enqueue(a)
}

// Objects возвращает зарегистрированные объекты в порядке идентификаторов
func (l *Landblock) Objects() []entity.WorldObject {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.sortedEntitiesLocked()
}

// ObjectCount возвращает число зарегистрированных объектов
func (l *Landblock) ObjectCount() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entities)
}

// PendingCounts возвращает размеры отложенных наборов
func (l *Landblock) PendingCounts() (adds, removes int) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.pendingAdd.len(), l.pendingRemove.len()
}

// Schedules возвращает четыре расписания (для диагностики)
func (l *Landblock) Schedules() (heartbeat, generatorUpdate, generatorRegeneration, ai *Schedule) {
	return l.heartbeats, l.genUpdates, l.genRegens, l.aiTicks
}

func (l *Landblock) isRegistered(guid entity.ObjectGuid) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if _, ok := l.pendingRemove.get(guid); ok {
		return false
	}
	_, ok := l.entities[guid]
	return ok
}

func (l *Landblock) schedule(obj entity.WorldObject) {
	if _, ok := obj.(entity.Tickable); ok {
		l.heartbeats.Insert(obj)
	}
	if _, ok := obj.(entity.AITickable); ok {
		l.aiTicks.Insert(obj)
	}
	if _, ok := obj.(entity.GeneratorTickable); ok {
		l.genUpdates.Insert(obj)
		l.genRegens.Insert(obj)
	}
}

func (l *Landblock) unschedule(guid entity.ObjectGuid) {
	l.heartbeats.Remove(guid)
	l.genUpdates.Remove(guid)
	l.genRegens.Remove(guid)
	l.aiTicks.Remove(guid)
}

// objectsLocked — зарегистрированные и ожидающие добавления объекты без ожидающих удаления
func (l *Landblock) objectsLocked() []entity.WorldObject {
	out := make([]entity.WorldObject, 0, len(l.entities)+l.pendingAdd.len())
	for guid, obj := range l.entities {
		if _, ok := l.pendingRemove.get(guid); ok {
			continue
		}
		out = append(out, obj)
	}
	for _, obj := range l.pendingAdd.objs {
		out = append(out, obj)
	}
	return out
}

func (l *Landblock) sortedEntitiesLocked() []entity.WorldObject {
	out := make([]entity.WorldObject, 0, len(l.entities))
	for _, obj := range l.entities {
		out = append(out, obj)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Base().Guid() < out[j].Base().Guid() })
	return out
}

// publish отправляет событие ландблока в шину; ошибки шины только логируются
func (l *Landblock) publish(ctx context.Context, eventType string, priority int, ev eventbus.LandblockEvent) {
	if l.svc.Bus == nil {
		return
	}
	ev.Landblock = l.id.String()
	if ev.State == "" {
		ev.State = l.State().String()
	}
	env, err := eventbus.NewEnvelope(l.id.String(), eventType, priority, ev)
	if err == nil {
		err = l.svc.Bus.Publish(ctx, env)
	}
	if err != nil {
		l.log.Zap().Warn("публикация события не удалась", zap.String("type", eventType), zap.Error(err))
	}
}
