package landblock

import (
	"context"
	"time"

	"github.com/annel0/landblock/internal/eventbus"
	"github.com/annel0/landblock/internal/world/entity"
	"go.uber.org/zap"
)

// SetActive отмечает активность: сбрасывает таймеры сна и выгрузки и будит
// спящий ландблок. При прямой активности (isAdjacent == false) соседи
// помечаются активными по соседству, дальше пометка не распространяется.
func (l *Landblock) SetActive(isAdjacent bool) {
	now := l.svc.Clock.Now()
	l.lastActive.Store(now.UnixNano())
	l.destructionQueued.Store(false)

	if l.state.CompareAndSwap(int32(StateDormant), int32(StateActive)) {
		l.svc.Metrics.Transitions.WithLabelValues(StateActive.String()).Inc()
		l.log.Zap().Debug("ландблок проснулся", zap.Bool("by_adjacency", isAdjacent))
		l.publish(context.Background(), eventbus.EventLandblockActive, 1, eventbus.LandblockEvent{})
	}

	if isAdjacent {
		return
	}
	for _, adj := range l.Adjacents() {
		adj.SetActive(true)
	}
}

// heartbeat — периодический блок фазы 2: распад объектов, проверка сна и выгрузки
func (l *Landblock) heartbeat(ctx context.Context, now time.Time) {
	elapsed := now.Sub(l.lastHeartbeat)
	l.lastHeartbeat = now

	var expired []entity.ObjectGuid
	keepAlive := false
	for _, obj := range l.Objects() {
		if obj.Base().KeepAlive {
			keepAlive = true
		}
		if d, ok := obj.(entity.Decayable); ok && d.Decay(elapsed) {
			expired = append(expired, obj.Base().Guid())
		}
	}
	for _, guid := range expired {
		l.destroy(ctx, guid)
	}

	if keepAlive {
		return
	}

	idle := now.Sub(l.LastActive())
	if !l.IsDormant() && idle >= l.svc.Config.DormantInterval {
		l.goDormant(ctx)
	}
	if !l.permaload && idle >= l.svc.Config.UnloadInterval {
		if l.destructionQueued.CompareAndSwap(false, true) {
			l.log.Zap().Info("ландблок поставлен в очередь на выгрузку", zap.Duration("idle", idle))
		}
	}
}

// goDormant усыпляет ландблок и уничтожает летящие снаряды
func (l *Landblock) goDormant(ctx context.Context) {
	if !l.state.CompareAndSwap(int32(StateActive), int32(StateDormant)) {
		return
	}

	destroyed := 0
	for _, obj := range l.Objects() {
		if obj.Base().Kind() == entity.KindSpellProjectile {
			destroyed += l.destroy(ctx, obj.Base().Guid())
		}
	}
	l.ApplyPendingMutations()

	l.svc.Metrics.Transitions.WithLabelValues(StateDormant.String()).Inc()
	l.log.Zap().Debug("ландблок уснул", zap.Int("projectiles_destroyed", destroyed))
	l.publish(ctx, eventbus.EventLandblockDormant, 1, eventbus.LandblockEvent{Objects: l.ObjectCount()})
}

// Unload сохраняет изменённые объекты, уничтожает временные, отсоединяет
// долговечные, очищает очередь команд и освобождает физику. Повторный вызов ничего не делает.
func (l *Landblock) Unload(ctx context.Context) {
	if !l.state.CompareAndSwap(int32(StateActive), int32(StateUnloading)) &&
		!l.state.CompareAndSwap(int32(StateDormant), int32(StateUnloading)) {
		return
	}
	l.svc.Metrics.Transitions.WithLabelValues(StateUnloading.String()).Inc()

	l.ApplyPendingMutations()
	l.SaveDB(ctx)

	destroyed, detached := 0, 0
	for _, obj := range l.Objects() {
		base := obj.Base()
		if base.IsDestroyed() {
			continue
		}
		if isDurable(obj) {
			l.removeWorldObject(base.Guid())
			detached++
		} else {
			destroyed += l.destroy(ctx, base.Guid())
		}
	}
	l.ApplyPendingMutations()

	if dropped := l.actions.Clear(); dropped > 0 {
		l.svc.Metrics.DroppedActions.Add(float64(dropped))
		l.log.Zap().Warn("при выгрузке выброшены команды", zap.Int("actions", dropped))
	}
	l.heartbeats.Clear()
	l.genUpdates.Clear()
	l.genRegens.Clear()
	l.aiTicks.Clear()
	l.svc.Physics.ReleaseLandblock(uint16(l.id))
	l.SetAdjacents(nil)

	l.state.Store(int32(StateUnloaded))
	l.svc.Metrics.Transitions.WithLabelValues(StateUnloaded.String()).Inc()
	l.svc.Metrics.Objects.DeleteLabelValues(l.id.String())
	l.svc.Metrics.TickAverage.DeleteLabelValues(l.id.String())
	l.log.Zap().Info("ландблок выгружен", zap.Int("destroyed", destroyed), zap.Int("detached", detached))
	l.publish(ctx, eventbus.EventLandblockUnloaded, 1, eventbus.LandblockEvent{Objects: detached})
}

// isDurable — объект переживает выгрузку: сохраняется в шард или это игрок
func isDurable(obj entity.WorldObject) bool {
	if obj.Base().Kind() == entity.KindPlayer {
		return true
	}
	p, ok := obj.(entity.Persistable)
	return ok && p.ShouldPersistToShard()
}
