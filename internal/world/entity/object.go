package entity

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/annel0/landblock/internal/vec"
)

// DefaultHeartbeatInterval — интервал heartbeat по умолчанию
const DefaultHeartbeatInterval = 5 * time.Second

// Object — общая часть всех объектов мира. Встраивается в конкретные виды.
type Object struct {
	guid ObjectGuid
	kind Kind

	Name       string
	TemplateID uint32
	// Location == nil — объект вне мира (например, лежит в контейнере)
	Location *vec.Vec2Float
	Velocity vec.Vec2Float
	Size     vec.Vec2Float
	Ethereal bool
	// KeepAlive не даёт ландблоку уснуть и выгрузиться
	KeepAlive bool

	// Индексные ссылки
	GeneratorGuid ObjectGuid
	ContainerGuid ObjectGuid

	Properties map[string]string

	NextHeartbeatTime             time.Time
	NextGeneratorUpdateTime       time.Time
	NextGeneratorRegenerationTime time.Time
	NextAITickTime                time.Time
	HeartbeatInterval             time.Duration

	host      Host
	changes   atomic.Int64
	destroyed atomic.Bool
	placed    atomic.Bool
	biotaLock sync.RWMutex
}

// Init заполняет базовую часть объекта
func (o *Object) Init(guid ObjectGuid, kind Kind, name string) {
	o.guid = guid
	o.kind = kind
	o.Name = name
	o.Size = vec.Vec2Float{X: 0.8, Y: 0.8}
	o.HeartbeatInterval = DefaultHeartbeatInterval
	o.Properties = make(map[string]string)
}

// Base реализует WorldObject
func (o *Object) Base() *Object { return o }

func (o *Object) Guid() ObjectGuid { return o.guid }
func (o *Object) Kind() Kind       { return o.kind }

// CurrentLandblock возвращает ландблок-владелец (навигационная ссылка, не владение)
func (o *Object) CurrentLandblock() Host { return o.host }

// SetCurrentLandblock выставляет ландблок-владелец; nil — объект отсоединён
func (o *Object) SetCurrentLandblock(h Host) { o.host = h }

// SetLocation перемещает объект в указанную точку
func (o *Object) SetLocation(pos vec.Vec2Float) {
	p := pos
	o.Location = &p
}

// MarkChanged отмечает несохранённые изменения
func (o *Object) MarkChanged() { o.changes.Add(1) }

// ChangesDetected сообщает о несохранённых изменениях
func (o *Object) ChangesDetected() bool { return o.changes.Load() > 0 }

// ClearChanges сбрасывает счётчик изменений после снимка
func (o *Object) ClearChanges() { o.changes.Store(0) }

// BiotaLock — токен блокировки, передаваемый хранилищу вместе со снимком
func (o *Object) BiotaLock() *sync.RWMutex { return &o.biotaLock }

// MarkPlaced отмечает, что объект хотя бы раз был принят ландблоком
func (o *Object) MarkPlaced() { o.placed.Store(true) }

// EverPlaced сообщает, был ли объект уже размещён в мире
func (o *Object) EverPlaced() bool { return o.placed.Load() }

func (o *Object) IsDestroyed() bool { return o.destroyed.Load() }

// MarkDestroyed помечает объект уничтоженным; false — уже был уничтожен
func (o *Object) MarkDestroyed() bool { return o.destroyed.CompareAndSwap(false, true) }

// EnterWorld назначает первый heartbeat
func (o *Object) EnterWorld(now time.Time) {
	if o.HeartbeatInterval > 0 && !Scheduled(o.NextHeartbeatTime) {
		o.NextHeartbeatTime = now.Add(o.HeartbeatInterval)
	}
}

// Heartbeat по умолчанию только переносит следующий heartbeat вперёд
func (o *Object) Heartbeat(_ context.Context, now time.Time) {
	if o.HeartbeatInterval <= 0 {
		o.NextHeartbeatTime = Never
		return
	}
	o.NextHeartbeatTime = now.Add(o.HeartbeatInterval)
}

// biota снимает общую часть снимка под блокировкой на чтение
func (o *Object) biota() Biota {
	o.biotaLock.RLock()
	defer o.biotaLock.RUnlock()

	b := Biota{
		Guid:          o.guid,
		Kind:          o.kind,
		Name:          o.Name,
		TemplateID:    o.TemplateID,
		ContainerGuid: o.ContainerGuid,
		GeneratorGuid: o.GeneratorGuid,
		TimeToRot:     NeverRot,
	}
	if o.Location != nil {
		b.HasLocation = true
		b.X, b.Y = o.Location.X, o.Location.Y
	}
	if len(o.Properties) > 0 {
		b.Properties = make(map[string]string, len(o.Properties))
		for k, v := range o.Properties {
			b.Properties[k] = v
		}
	}
	return b
}
