package entity

import (
	"time"

	"github.com/annel0/landblock/internal/vec"
)

// SpellProjectile — летящий снаряд заклинания. Не сохраняется,
// уничтожается при засыпании ландблока.
type SpellProjectile struct {
	Object

	CasterGuid ObjectGuid
	Lifetime   time.Duration
}

// NewSpellProjectile создаёт снаряд с заданной скоростью и временем жизни
func NewSpellProjectile(guid ObjectGuid, caster ObjectGuid, velocity vec.Vec2Float, lifetime time.Duration) *SpellProjectile {
	p := &SpellProjectile{CasterGuid: caster, Lifetime: lifetime}
	p.Init(guid, KindSpellProjectile, "projectile")
	p.Velocity = velocity
	p.Ethereal = true
	p.Size = vec.Vec2Float{X: 0.2, Y: 0.2}
	return p
}

// Decay реализует Decayable
func (p *SpellProjectile) Decay(elapsed time.Duration) bool {
	p.Lifetime -= elapsed
	return p.Lifetime <= 0
}
