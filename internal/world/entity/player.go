package entity

import (
	"context"
	"time"

	"github.com/annel0/landblock/internal/vec"
)

// Player — игрок. Тикается только в однопоточной фазе; ИИ не имеет.
// Сохраняется своей сессией, а не ландблоком.
type Player struct {
	Creature

	session        Session
	LastPlayerTick time.Time
}

// NewPlayer создаёт игрока с каналом доставки сообщений
func NewPlayer(guid ObjectGuid, name string, pos vec.Vec2Float, session Session) *Player {
	p := &Player{session: session}
	p.initCreature(guid, KindPlayer, name, pos)
	p.AIInterval = 0
	return p
}

// EnterWorld назначает только heartbeat
func (p *Player) EnterWorld(now time.Time) {
	p.Object.EnterWorld(now)
}

// AITick у игрока отсутствует
func (p *Player) AITick(_ context.Context, _ time.Time) {
	p.NextAITickTime = Never
}

// PlayerTick держит ландблок игрока и его соседей активными
func (p *Player) PlayerTick(_ context.Context, now time.Time) {
	p.LastPlayerTick = now
	if h := p.CurrentLandblock(); h != nil {
		h.SetActive(false)
	}
}

func (p *Player) Session() Session { return p.session }

func (p *Player) ShouldPersistToShard() bool { return false }
