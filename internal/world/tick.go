package world

import (
	"context"
	"fmt"
	"time"

	"github.com/annel0/landblock/internal/landblock"
	"github.com/annel0/landblock/internal/vec"
	"github.com/annel0/landblock/internal/world/entity"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var tracer = otel.Tracer("github.com/annel0/landblock/internal/world")

// Tick выполняет один тик мира:
//  1. физика параллельно по группам, затем переходы между ландблоками;
//  2. команды, ИИ, генераторы и таймеры жизненного цикла параллельно по группам;
//  3. игроки и heartbeat последовательно по всем ландблокам;
//
// после чего выгружаются ландблоки, поставившие себя в очередь.
func (m *Manager) Tick(ctx context.Context, now time.Time) error {
	m.tickMu.Lock()
	defer m.tickMu.Unlock()

	start := time.Now()
	ctx, span := tracer.Start(ctx, "world.tick")
	defer span.End()

	m.recomputeGroups()
	reloc := &landblock.RelocationBuffer{}
	err := m.forEachGroup(ctx, "physics", func(gctx context.Context, l *landblock.Landblock) {
		l.TickPhysics(gctx, now, reloc)
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "physics")
		return err
	}
	m.applyRelocations(ctx, reloc.Drain())
	m.recomputeGroups()

	m.svc.State.SetMultiThreaded(true)
	err = m.forEachGroup(ctx, "multi_threaded", func(gctx context.Context, l *landblock.Landblock) {
		l.TickMultiThreadedWork(gctx, now)
	})
	m.svc.State.SetMultiThreaded(false)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "multi_threaded")
		return err
	}

	_, single := tracer.Start(ctx, "world.phase.single_threaded")
	all := m.Landblocks()
	for _, l := range all {
		l.TickSingleThreadedWork(ctx, now)
	}
	single.End()

	unloaded := m.unloadQueued(ctx)
	m.recomputeGroups()

	took := time.Since(start)
	m.stats.record(took)
	m.metrics.tick.Observe(took.Seconds())
	span.SetAttributes(
		attribute.Int("landblocks", len(all)),
		attribute.Int("unloaded", unloaded),
	)
	return nil
}

// forEachGroup тикает группы параллельно: внутри группы ландблоки идут
// последовательно в одной горутине с номером группы в контексте
func (m *Manager) forEachGroup(ctx context.Context, phase string, fn func(context.Context, *landblock.Landblock)) error {
	ctx, span := tracer.Start(ctx, "world.phase."+phase)
	defer span.End()

	groups := m.Groups()
	span.SetAttributes(attribute.Int("groups", len(groups)))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.maxParallel)
	for _, members := range groups {
		members := members // per-iteration copy (pre-Go 1.22 loop semantics)
		if len(members) == 0 {
			continue
		}
		groupCtx := landblock.WithGroup(gctx, members[0].Group())
		g.Go(func() error {
			for _, l := range members {
				if err := groupCtx.Err(); err != nil {
					return fmt.Errorf("%s phase interrupted at %s: %w", phase, l.ID(), err)
				}
				fn(groupCtx, l)
			}
			return nil
		})
	}
	return g.Wait()
}

// applyRelocations переносит объекты, пересёкшие границу, в новые ландблоки.
// Если новый ландблок не принял объект, он возвращается на прежнюю позицию.
func (m *Manager) applyRelocations(ctx context.Context, moves []landblock.Relocation) {
	for _, r := range moves {
		obj := r.Object
		base := obj.Base()
		if base.IsDestroyed() || base.CurrentLandblock() != entity.Host(r.From) {
			continue
		}

		target, err := m.getOrLoad(ctx, r.To, false)
		if err == nil {
			r.From.RemoveWorldObject(ctx, base.Guid())
			if target.AddWorldObject(ctx, obj) {
				continue
			}
		} else {
			m.log.Zap().Warn("не удалось загрузить ландблок для перехода",
				zap.Stringer("landblock", r.To), zap.Error(err))
		}

		base.SetLocation(r.Previous)
		base.Velocity = vec.Vec2Float{}
		r.From.AddWorldObject(ctx, obj)
	}
}

// unloadQueued выгружает ландблоки, истратившие таймер, и запрошенные через API
func (m *Manager) unloadQueued(ctx context.Context) int {
	m.mu.RLock()
	var queued []*landblock.Landblock
	for _, l := range m.sortedLocked() {
		if _, requested := m.unloadReq[l.ID()]; requested || l.DestructionQueued() {
			queued = append(queued, l)
		}
	}
	m.mu.RUnlock()

	for _, l := range queued {
		m.unload(ctx, l)
	}
	return len(queued)
}
