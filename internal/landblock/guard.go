package landblock

import (
	"context"
	"sync/atomic"

	"github.com/annel0/landblock/internal/eventbus"
	"github.com/annel0/landblock/internal/world/entity"
	"go.uber.org/zap"
)

// GroupID — идентификатор группы ландблоков, тикаемой одной горутиной
type GroupID uint32

// NoGroup — ландблок ещё не отнесён к группе
const NoGroup GroupID = 0

type groupKey struct{}

// WithGroup помечает контекст группой, от имени которой идёт работа
func WithGroup(ctx context.Context, g GroupID) context.Context {
	return context.WithValue(ctx, groupKey{}, g)
}

// GroupFromContext возвращает группу вызывающего
func GroupFromContext(ctx context.Context) (GroupID, bool) {
	g, ok := ctx.Value(groupKey{}).(GroupID)
	return g, ok
}

// TickState — общий для мира флаг "сейчас идёт параллельная фаза"
type TickState struct {
	multiThreaded atomic.Bool
}

func (s *TickState) SetMultiThreaded(v bool) { s.multiThreaded.Store(v) }
func (s *TickState) MultiThreaded() bool     { return s.multiThreaded.Load() }

// SetGroup передаёт ландблок группе. Вызывается планировщиком вне параллельной фазы.
func (l *Landblock) SetGroup(g GroupID) { l.currentGroup.Store(uint32(g)) }

// Group возвращает группу-владельца
func (l *Landblock) Group() GroupID { return GroupID(l.currentGroup.Load()) }

// ownsContext сообщает, что вызывающий может менять ландблок напрямую.
// Вне параллельной фазы мир однопоточен и проверять нечего.
func (l *Landblock) ownsContext(ctx context.Context) bool {
	if !l.svc.State.MultiThreaded() {
		return true
	}
	g, ok := GroupFromContext(ctx)
	return ok && g == l.Group()
}

// handOff фиксирует мутацию из чужой группы и передаёт её владельцу через очередь команд
func (l *Landblock) handOff(ctx context.Context, a Action, guid entity.ObjectGuid, obj entity.WorldObject) {
	caller, _ := GroupFromContext(ctx)
	fields := []zap.Field{
		zap.Stringer("landblock", l.id),
		zap.String("op", a.Kind()),
		zap.Stringer("guid", guid),
		zap.Uint32("caller_group", uint32(caller)),
		zap.Uint32("owner_group", uint32(l.Group())),
		zap.Stack("stack"),
	}
	if obj != nil {
		fields = append(fields,
			zap.String("name", obj.Base().Name),
			zap.Stringer("kind", obj.Base().Kind()),
		)
	}
	l.log.Zap().Error("мутация ландблока из чужой группы, передана владельцу", fields...)
	l.svc.Metrics.GuardViolations.WithLabelValues(a.Kind()).Inc()

	l.publish(ctx, eventbus.EventGuardViolation, 4, eventbus.LandblockEvent{
		Guid:   uint32(guid),
		Detail: a.Kind(),
	})
	l.actions.Enqueue(a)
}
