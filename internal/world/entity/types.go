package entity

import (
	"fmt"
	"time"
)

// ObjectGuid — глобальный идентификатор объекта мира
type ObjectGuid uint32

// String возвращает hex-представление идентификатора
func (g ObjectGuid) String() string {
	return fmt.Sprintf("0x%08X", uint32(g))
}

// Kind — закрытый перечень видов объектов мира
type Kind uint8

const (
	KindItem Kind = iota + 1
	KindContainer
	KindCreature
	KindPlayer
	KindGenerator
	KindSpellProjectile
)

// String возвращает имя вида объекта
func (k Kind) String() string {
	switch k {
	case KindItem:
		return "item"
	case KindContainer:
		return "container"
	case KindCreature:
		return "creature"
	case KindPlayer:
		return "player"
	case KindGenerator:
		return "generator"
	case KindSpellProjectile:
		return "spell_projectile"
	default:
		return "unknown"
	}
}

// Never — значение "не запланировано" для всех четырёх расписаний
var Never = time.Time{}

// Scheduled сообщает, что время запуска задано
func Scheduled(t time.Time) bool {
	return !t.IsZero()
}

// Message — сообщение, доставляемое игроку широковещательной рассылкой
type Message struct {
	Type   string
	Text   string
	Origin ObjectGuid
}
