package entity

import (
	"context"
	"math"
	"math/rand"
	"time"

	"github.com/annel0/landblock/internal/vec"
)

// Состояния ИИ существа
const (
	CreatureIdle   = "idle"
	CreatureMoving = "moving"
)

// DefaultAIInterval — интервал тика ИИ по умолчанию
const DefaultAIInterval = time.Second

// Creature — существо с простым ИИ: стоит, затем бредёт к случайной точке вокруг дома
type Creature struct {
	Object

	Home         vec.Vec2Float
	WanderRadius float64
	Speed        float64 // единиц в секунду
	AIInterval   time.Duration
	Persistent   bool

	idleRange [2]time.Duration
	moveRange [2]time.Duration

	state AIState
	rng   *rand.Rand
}

// NewCreature создаёт существо в указанной точке
func NewCreature(guid ObjectGuid, name string, pos vec.Vec2Float) *Creature {
	c := &Creature{}
	c.initCreature(guid, KindCreature, name, pos)
	return c
}

func (c *Creature) initCreature(guid ObjectGuid, kind Kind, name string, pos vec.Vec2Float) {
	c.Init(guid, kind, name)
	c.SetLocation(pos)
	c.Home = pos
	c.WanderRadius = 10
	c.Speed = 2
	c.AIInterval = DefaultAIInterval
	c.idleRange = [2]time.Duration{2 * time.Second, 7 * time.Second}
	c.moveRange = [2]time.Duration{time.Second, 4 * time.Second}
	// первый тик ИИ сразу отправляет существо бродить
	c.state = &idleState{}
	c.rng = rand.New(rand.NewSource(int64(guid)))
}

// State возвращает имя текущего состояния ИИ
func (c *Creature) State() string {
	if c.state == nil {
		return ""
	}
	return c.state.Name()
}

// EnterWorld назначает первые heartbeat и тик ИИ
func (c *Creature) EnterWorld(now time.Time) {
	c.Object.EnterWorld(now)
	if c.AIInterval > 0 && !Scheduled(c.NextAITickTime) {
		c.NextAITickTime = now.Add(c.AIInterval)
	}
}

// AITick продвигает конечный автомат idle/moving и выставляет скорость;
// само движение выполняет физика
func (c *Creature) AITick(_ context.Context, now time.Time) {
	c.NextAITickTime = now.Add(c.AIInterval)
	if c.Location == nil {
		return
	}
	c.updateState(now)
}

func (c *Creature) ShouldPersistToShard() bool { return c.Persistent }

// Snapshot реализует Persistable
func (c *Creature) Snapshot() Biota { return c.biota() }

func (c *Creature) randomIn(r [2]time.Duration) time.Duration {
	if r[1] <= r[0] {
		return r[0]
	}
	return r[0] + time.Duration(c.rng.Int63n(int64(r[1]-r[0])))
}

func (c *Creature) randomAroundHome() vec.Vec2Float {
	angle := c.rng.Float64() * 2 * math.Pi
	dist := c.rng.Float64() * c.WanderRadius
	return vec.Vec2Float{
		X: c.Home.X + math.Cos(angle)*dist,
		Y: c.Home.Y + math.Sin(angle)*dist,
	}
}
