package physics

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/annel0/landblock/internal/vec"
	"github.com/annel0/landblock/internal/world/entity"
)

var (
	// ErrPlacementBlocked — место занято местностью или другим объектом
	ErrPlacementBlocked = errors.New("physics: placement blocked")
	// ErrNoLocation — у объекта нет позиции в мире
	ErrNoLocation = errors.New("physics: object has no location")
)

// Terrain сообщает проходимость клеток местности
type Terrain interface {
	Passable(tile vec.Vec2) bool
}

// TerrainFunc адаптирует функцию к Terrain
type TerrainFunc func(tile vec.Vec2) bool

func (f TerrainFunc) Passable(tile vec.Vec2) bool { return f(tile) }

// OpenTerrain — местность без препятствий
var OpenTerrain Terrain = TerrainFunc(func(vec.Vec2) bool { return true })

type tileCache struct {
	mu    sync.Mutex
	tiles map[vec.Vec2]bool
}

// Engine размещает и двигает объекты. Проходимость клеток кэшируется по ландблокам,
// ReleaseLandblock сбрасывает кэш выгружаемого ландблока.
type Engine struct {
	terrain Terrain

	mu    sync.Mutex
	cache map[uint16]*tileCache
}

// NewEngine создаёт движок поверх указанной местности
func NewEngine(terrain Terrain) *Engine {
	if terrain == nil {
		terrain = OpenTerrain
	}
	return &Engine{
		terrain: terrain,
		cache:   make(map[uint16]*tileCache),
	}
}

// Place проверяет, что объект можно поставить в его позицию
func (e *Engine) Place(obj entity.WorldObject, others []entity.WorldObject) error {
	base := obj.Base()
	if base.Location == nil {
		return ErrNoLocation
	}

	collider := colliderOf(base)
	if !CanMoveToPosition(*base.Location, collider, e.passable) {
		return fmt.Errorf("%w: terrain at (%.1f, %.1f)", ErrPlacementBlocked, base.Location.X, base.Location.Y)
	}
	if base.Ethereal {
		return nil
	}

	for _, other := range others {
		ob := other.Base()
		if ob == base || ob.Ethereal || ob.Location == nil {
			continue
		}
		if CheckBoxCollision(*base.Location, collider, *ob.Location, colliderOf(ob)) {
			return fmt.Errorf("%w: overlaps %s", ErrPlacementBlocked, ob.Guid())
		}
	}
	return nil
}

// Step сдвигает объект по его скорости за dt. Возвращает новую позицию и
// признак того, что объект сдвинулся. Позицию объекта выставляет вызывающий.
func (e *Engine) Step(obj entity.WorldObject, dt time.Duration) (vec.Vec2Float, bool) {
	base := obj.Base()
	if base.Location == nil {
		return vec.Vec2Float{}, false
	}
	cur := *base.Location
	if base.Velocity.IsZero() || dt <= 0 {
		return cur, false
	}

	next := cur.Add(base.Velocity.Mul(dt.Seconds()))
	if !base.Ethereal && !CanMoveToPosition(next, colliderOf(base), e.passable) {
		return cur, false
	}
	return next, true
}

// ReleaseLandblock сбрасывает кэш проходимости ландблока
func (e *Engine) ReleaseLandblock(id uint16) {
	e.mu.Lock()
	delete(e.cache, id)
	e.mu.Unlock()
}

// CachedLandblocks возвращает число ландблоков с кэшем проходимости
func (e *Engine) CachedLandblocks() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.cache)
}

func (e *Engine) passable(tile vec.Vec2) bool {
	id, ok := entity.LandblockOf(vec.FromVec2(tile))
	if !ok {
		return false
	}

	e.mu.Lock()
	c, ok := e.cache[id]
	if !ok {
		c = &tileCache{tiles: make(map[vec.Vec2]bool)}
		e.cache[id] = c
	}
	e.mu.Unlock()

	c.mu.Lock()
	defer c.mu.Unlock()
	if p, ok := c.tiles[tile]; ok {
		return p
	}
	p := e.terrain.Passable(tile)
	c.tiles[tile] = p
	return p
}

func colliderOf(o *entity.Object) *BoxCollider {
	return NewBoxCollider(o.Size.X, o.Size.Y)
}
