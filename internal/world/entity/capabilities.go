package entity

import (
	"context"
	"time"
)

// WorldObject — любой симулируемый объект. Вид определяется Base().Kind(),
// поведение — интерфейсами-возможностями ниже.
type WorldObject interface {
	Base() *Object
}

// Tickable получает периодический heartbeat
type Tickable interface {
	WorldObject
	Heartbeat(ctx context.Context, now time.Time)
}

// AITickable получает тики ИИ
type AITickable interface {
	WorldObject
	AITick(ctx context.Context, now time.Time)
}

// GeneratorTickable — генератор, порождающий другие объекты
type GeneratorTickable interface {
	WorldObject
	GeneratorUpdate(ctx context.Context, now time.Time)
	GeneratorRegeneration(ctx context.Context, now time.Time)
	// NotifyPlacementFailed вызывается, если порождённый объект не удалось разместить
	NotifyPlacementFailed(child WorldObject)
	// OnChildDestroyed вызывается при уничтожении порождённого объекта
	OnChildDestroyed(guid ObjectGuid)
	// SpawnedGuids возвращает индексные ссылки на порождённые объекты
	SpawnedGuids() []ObjectGuid
}

// PlayerTickable — игрок, тикается в однопоточной фазе
type PlayerTickable interface {
	WorldObject
	PlayerTick(ctx context.Context, now time.Time)
	Session() Session
}

// Persistable — объект, сохраняемый в хранилище шарда
type Persistable interface {
	WorldObject
	ShouldPersistToShard() bool
	Snapshot() Biota
}

// Decayable — объект с ограниченным временем жизни
type Decayable interface {
	WorldObject
	// Decay уменьшает оставшееся время жизни; true — объект истёк
	Decay(elapsed time.Duration) bool
}

// Container содержит другие объекты
type Container interface {
	WorldObject
	Contents() []WorldObject
	AddItem(obj WorldObject)
	RemoveItem(guid ObjectGuid) WorldObject
}

// Session — канал доставки сообщений игроку
type Session interface {
	Send(msg Message)
}

// Host — ландблок, которому принадлежит объект. Все изменения набора
// объектов через него откладываются до безопасной точки тика.
type Host interface {
	AddWorldObject(ctx context.Context, obj WorldObject) bool
	RemoveWorldObject(ctx context.Context, guid ObjectGuid)
	DestroyObject(ctx context.Context, guid ObjectGuid)
	GetObject(guid ObjectGuid, searchAdjacents bool) WorldObject
	Reschedule(obj WorldObject)
	SetActive(isAdjacent bool)
}

// WorldEnterer — хук "перед входом в мир": вызывается ландблоком до размещения
// объекта, здесь объект назначает себе первые времена расписаний.
type WorldEnterer interface {
	WorldObject
	EnterWorld(now time.Time)
}
