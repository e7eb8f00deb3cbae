package landblock

import (
	"context"
	"sync"
	"time"

	"github.com/annel0/landblock/internal/vec"
	"github.com/annel0/landblock/internal/world/entity"
)

// Relocation — объект, пересёкший границу ландблока в физической фазе
type Relocation struct {
	Object entity.WorldObject
	From   *Landblock
	To     ID
	// Previous — позиция до шага, на неё объект возвращается, если новый ландблок его не принял
	Previous vec.Vec2Float
}

// RelocationBuffer собирает переходы между ландблоками со всех групп.
// Разбирается планировщиком однопоточно после физической фазы.
type RelocationBuffer struct {
	mu    sync.Mutex
	items []Relocation
}

func (b *RelocationBuffer) Add(r Relocation) {
	b.mu.Lock()
	b.items = append(b.items, r)
	b.mu.Unlock()
}

// Drain забирает накопленные переходы
func (b *RelocationBuffer) Drain() []Relocation {
	b.mu.Lock()
	items := b.items
	b.items = nil
	b.mu.Unlock()
	return items
}

func (b *RelocationBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.items)
}

// TickPhysics — фаза 1. Спящий ландблок пропускает её целиком.
// Двигает объекты и складывает пересёкших границу в reloc.
func (l *Landblock) TickPhysics(ctx context.Context, now time.Time, reloc *RelocationBuffer) {
	if l.State() != StateActive {
		return
	}
	start := time.Now()
	defer func() { l.svc.Metrics.PhaseDuration.WithLabelValues("physics").Observe(time.Since(start).Seconds()) }()

	l.ApplyPendingMutations()

	dt := now.Sub(l.lastPhysics)
	if l.lastPhysics.IsZero() {
		dt = 0
	}
	l.lastPhysics = now
	if dt <= 0 {
		return
	}

	for _, obj := range l.Objects() {
		base := obj.Base()
		if base.Location == nil || base.IsDestroyed() {
			continue
		}
		next, moved := l.svc.Physics.Step(obj, dt)
		if !moved {
			continue
		}

		target, ok := IDFromPosition(next)
		if !ok {
			// край мира
			base.Velocity = vec.Vec2Float{}
			continue
		}
		prev := *base.Location
		base.SetLocation(next)
		base.MarkChanged()

		if target != l.id && reloc != nil {
			reloc.Add(Relocation{Object: obj, From: l, To: target, Previous: prev})
		}
	}
}

// TickMultiThreadedWork — фаза 2. Может идти параллельно с другими группами.
// Разбирает очередь команд, тикает ИИ и генераторы, раз в HeartbeatInterval
// проверяет распад и таймеры сна/выгрузки, раз в DatabaseSaveInterval сохраняет объекты.
func (l *Landblock) TickMultiThreadedWork(ctx context.Context, now time.Time) {
	if s := l.State(); s == StateUnloading || s == StateUnloaded {
		return
	}
	start := time.Now()
	defer func() { l.svc.Metrics.PhaseDuration.WithLabelValues("multi_threaded").Observe(time.Since(start).Seconds()) }()

	for _, a := range l.actions.Drain() {
		a.apply(ctx, l)
	}

	l.ApplyPendingMutations()

	if !l.IsDormant() {
		l.drain(l.aiTicks, now, func(obj entity.WorldObject) {
			obj.(entity.AITickable).AITick(ctx, now)
		})
		l.drain(l.genUpdates, now, func(obj entity.WorldObject) {
			obj.(entity.GeneratorTickable).GeneratorUpdate(ctx, now)
		})
		l.drain(l.genRegens, now, func(obj entity.WorldObject) {
			obj.(entity.GeneratorTickable).GeneratorRegeneration(ctx, now)
		})
	}

	if now.Sub(l.lastHeartbeat) >= l.svc.Config.HeartbeatInterval {
		l.heartbeat(ctx, now)
	}

	if now.Sub(l.lastDatabaseSave) >= l.svc.Config.DatabaseSaveInterval {
		l.lastDatabaseSave = now
		l.SaveDB(ctx)
	}
}

// TickSingleThreadedWork — фаза 3. Выполняется последовательно по всему миру:
// тики игроков, heartbeat объектов, скользящий монитор производительности.
func (l *Landblock) TickSingleThreadedWork(ctx context.Context, now time.Time) {
	if s := l.State(); s == StateUnloading || s == StateUnloaded {
		return
	}
	start := time.Now()

	l.ApplyPendingMutations()

	for _, obj := range l.Objects() {
		if obj.Base().Kind() != entity.KindPlayer {
			continue
		}
		if p, ok := obj.(entity.PlayerTickable); ok && !obj.Base().IsDestroyed() {
			p.PlayerTick(ctx, now)
		}
	}

	l.drain(l.heartbeats, now, func(obj entity.WorldObject) {
		obj.(entity.Tickable).Heartbeat(ctx, now)
	})

	elapsed := time.Since(start)
	l.svc.Metrics.PhaseDuration.WithLabelValues("single_threaded").Observe(elapsed.Seconds())
	l.monitor.record(elapsed)
	if stats, rolled := l.monitor.roll(now, l.svc.Config.MonitorInterval); rolled {
		l.svc.Metrics.TickAverage.WithLabelValues(l.id.String()).Set(stats.Average.Seconds())
	}
}

// drain снимает все объекты, чьё время подошло, вызывает обработчик и
// возвращает их в расписания уже после цикла: обработчик может назначить
// время не позже now, и повторная вставка внутри цикла зациклила бы его.
func (l *Landblock) drain(s *Schedule, now time.Time, handle func(entity.WorldObject)) {
	var processed []entity.WorldObject
	l.draining = true
	for {
		obj := s.RemoveFirstDue(now)
		if obj == nil {
			break
		}
		if obj.Base().IsDestroyed() {
			continue
		}
		handle(obj)
		processed = append(processed, obj)
	}
	l.draining = false
	processed = append(processed, l.rescheduled...)
	l.rescheduled = nil

	for _, obj := range processed {
		if l.isRegistered(obj.Base().Guid()) && !obj.Base().IsDestroyed() {
			l.schedule(obj)
		}
	}
}
