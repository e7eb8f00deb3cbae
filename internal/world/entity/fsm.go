package entity

import (
	"time"

	"github.com/annel0/landblock/internal/vec"
)

// AIState — состояние конечного автомата существа
type AIState interface {
	Name() string
	Enter(c *Creature, now time.Time)
	// Update возвращает следующее состояние; то же самое — остаться
	Update(c *Creature, now time.Time) AIState
	Exit(c *Creature)
}

// SetState переводит существо в новое состояние
func (c *Creature) SetState(state AIState, now time.Time) {
	if c.state != nil {
		c.state.Exit(c)
	}
	c.state = state
	if c.state != nil {
		c.state.Enter(c, now)
	}
}

func (c *Creature) updateState(now time.Time) {
	if c.state == nil {
		return
	}
	next := c.state.Update(c, now)
	if next != c.state {
		c.SetState(next, now)
	}
}

// === Конкретные состояния ===

// idleState — стоит на месте случайное время из idleRange
type idleState struct {
	until time.Time
}

func (s *idleState) Name() string { return CreatureIdle }

func (s *idleState) Enter(c *Creature, now time.Time) {
	s.until = now.Add(c.randomIn(c.idleRange))
	c.Velocity = vec.Vec2Float{}
}

func (s *idleState) Update(c *Creature, now time.Time) AIState {
	c.Velocity = vec.Vec2Float{}
	if now.Before(s.until) {
		return s
	}
	return &wanderState{}
}

func (s *idleState) Exit(*Creature) {}

// wanderState — бредёт к случайной точке вокруг дома, пока не дойдёт или не выйдет время
type wanderState struct {
	until  time.Time
	target vec.Vec2Float
}

func (s *wanderState) Name() string { return CreatureMoving }

func (s *wanderState) Enter(c *Creature, now time.Time) {
	s.until = now.Add(c.randomIn(c.moveRange))
	s.target = c.randomAroundHome()
}

func (s *wanderState) Update(c *Creature, now time.Time) AIState {
	if c.Location.DistanceTo(s.target) < 0.5 || !now.Before(s.until) {
		return &idleState{}
	}
	c.Velocity = s.target.Sub(*c.Location).Normalized().Mul(c.Speed)
	return s
}

func (s *wanderState) Exit(c *Creature) {
	c.Velocity = vec.Vec2Float{}
}
