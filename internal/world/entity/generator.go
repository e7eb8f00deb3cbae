package entity

import (
	"context"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/annel0/landblock/internal/vec"
)

// GeneratorProfile — одна строка таблицы порождения
type GeneratorProfile struct {
	TemplateID uint32
	MaxCount   int
	// Delay — задержка перед (пере)порождением
	Delay time.Duration
}

type spawnRequest struct {
	profile int
	due     time.Time
}

// Generator периодически порождает объекты по своим профилям и
// держит индексные ссылки на порождённых.
type Generator struct {
	Object

	Profiles       []GeneratorProfile
	Factory        Factory
	UpdateInterval time.Duration
	RetryDelay     time.Duration
	SpawnRadius    float64

	mu       sync.Mutex
	spawned  map[ObjectGuid]int
	queue    []spawnRequest
	lastTick time.Time
	spawnSeq int
}

// NewGenerator создаёт генератор в указанной точке
func NewGenerator(guid ObjectGuid, name string, pos vec.Vec2Float, factory Factory, profiles ...GeneratorProfile) *Generator {
	g := &Generator{
		Profiles:       profiles,
		Factory:        factory,
		UpdateInterval: 5 * time.Second,
		RetryDelay:     10 * time.Second,
		SpawnRadius:    2,
		spawned:        make(map[ObjectGuid]int),
	}
	g.Init(guid, KindGenerator, name)
	g.SetLocation(pos)
	g.Ethereal = true
	return g
}

// EnterWorld назначает первое обновление генератора
func (g *Generator) EnterWorld(now time.Time) {
	g.Object.EnterWorld(now)
	if !Scheduled(g.NextGeneratorUpdateTime) {
		g.NextGeneratorUpdateTime = now
	}
}

// GeneratorUpdate ставит в очередь порождение недостающих объектов
func (g *Generator) GeneratorUpdate(_ context.Context, now time.Time) {
	g.mu.Lock()
	g.lastTick = now
	for i, p := range g.Profiles {
		for n := g.countLocked(i); n < p.MaxCount; n++ {
			g.queue = append(g.queue, spawnRequest{profile: i, due: now.Add(p.Delay)})
		}
	}
	next, ok := g.earliestLocked()
	g.mu.Unlock()

	g.NextGeneratorUpdateTime = now.Add(g.UpdateInterval)
	if ok && (!Scheduled(g.NextGeneratorRegenerationTime) || next.Before(g.NextGeneratorRegenerationTime)) {
		g.NextGeneratorRegenerationTime = next
	}
}

// GeneratorRegeneration порождает объекты, чья очередь подошла
func (g *Generator) GeneratorRegeneration(ctx context.Context, now time.Time) {
	g.mu.Lock()
	g.lastTick = now
	var due []spawnRequest
	rest := g.queue[:0]
	for _, req := range g.queue {
		if !req.due.After(now) {
			due = append(due, req)
		} else {
			rest = append(rest, req)
		}
	}
	g.queue = rest
	g.mu.Unlock()

	host := g.CurrentLandblock()
	for _, req := range due {
		if g.Factory == nil || g.Location == nil || host == nil {
			g.requeue(req.profile, now)
			continue
		}

		pos, ok := g.spawnPositionInside()
		if !ok {
			g.requeue(req.profile, now)
			continue
		}
		child, err := g.Factory.Create(ctx, g.Profiles[req.profile].TemplateID, pos)
		if err != nil {
			g.requeue(req.profile, now)
			continue
		}
		child.Base().GeneratorGuid = g.Guid()

		g.mu.Lock()
		g.spawned[child.Base().Guid()] = req.profile
		g.mu.Unlock()

		// при неудачном размещении ландблок сам вызовет NotifyPlacementFailed
		host.AddWorldObject(ctx, child)
	}

	g.mu.Lock()
	next, ok := g.earliestLocked()
	g.mu.Unlock()
	if ok {
		g.NextGeneratorRegenerationTime = next
	} else {
		g.NextGeneratorRegenerationTime = Never
	}
}

// NotifyPlacementFailed откатывает порождение и планирует повтор
func (g *Generator) NotifyPlacementFailed(child WorldObject) {
	g.mu.Lock()
	profile, ok := g.spawned[child.Base().Guid()]
	delete(g.spawned, child.Base().Guid())
	g.mu.Unlock()
	if ok {
		g.requeue(profile, g.lastTick)
	}
}

// OnChildDestroyed освобождает место под следующее порождение
func (g *Generator) OnChildDestroyed(guid ObjectGuid) {
	g.mu.Lock()
	delete(g.spawned, guid)
	g.mu.Unlock()
}

// SpawnedGuids возвращает порождённые объекты в порядке идентификаторов
func (g *Generator) SpawnedGuids() []ObjectGuid {
	g.mu.Lock()
	defer g.mu.Unlock()

	out := make([]ObjectGuid, 0, len(g.spawned))
	for guid := range g.spawned {
		out = append(out, guid)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Pending возвращает длину очереди порождения
func (g *Generator) Pending() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.queue)
}

func (g *Generator) requeue(profile int, now time.Time) {
	due := now.Add(g.RetryDelay)
	g.mu.Lock()
	g.queue = append(g.queue, spawnRequest{profile: profile, due: due})
	g.mu.Unlock()

	if !Scheduled(g.NextGeneratorRegenerationTime) || due.Before(g.NextGeneratorRegenerationTime) {
		g.NextGeneratorRegenerationTime = due
	}
}

func (g *Generator) countLocked(profile int) int {
	n := 0
	for _, p := range g.spawned {
		if p == profile {
			n++
		}
	}
	for _, req := range g.queue {
		if req.profile == profile {
			n++
		}
	}
	return n
}

func (g *Generator) earliestLocked() (time.Time, bool) {
	if len(g.queue) == 0 {
		return time.Time{}, false
	}
	earliest := g.queue[0].due
	for _, req := range g.queue[1:] {
		if req.due.Before(earliest) {
			earliest = req.due
		}
	}
	return earliest, true
}

// spawnPositionInside подбирает точку порождения в ландблоке генератора:
// потомок регистрируется у того же хозяина, что и генератор
func (g *Generator) spawnPositionInside() (vec.Vec2Float, bool) {
	home, ok := LandblockOf(*g.Location)
	if !ok {
		return vec.Vec2Float{}, false
	}
	for i := 0; i < spawnAngles; i++ {
		pos := g.nextSpawnPosition()
		if lb, ok := LandblockOf(pos); ok && lb == home {
			return pos, true
		}
	}
	return vec.Vec2Float{}, false
}

const spawnAngles = 8

// nextSpawnPosition раскладывает порождаемые объекты по окружности вокруг генератора
func (g *Generator) nextSpawnPosition() vec.Vec2Float {
	g.spawnSeq++
	angle := float64(g.spawnSeq) * (math.Pi / 4)
	return g.Location.Add(vec.Vec2Float{
		X: math.Cos(angle) * g.SpawnRadius,
		Y: math.Sin(angle) * g.SpawnRadius,
	})
}
