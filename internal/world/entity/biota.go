package entity

import (
	"sync"
	"time"
)

// NeverRot — объект не распадается
const NeverRot time.Duration = -1

// Biota — сериализуемый снимок сохраняемого объекта
type Biota struct {
	Guid          ObjectGuid        `msgpack:"guid" json:"guid"`
	Kind          Kind              `msgpack:"kind" json:"kind"`
	Name          string            `msgpack:"name" json:"name"`
	TemplateID    uint32            `msgpack:"template_id" json:"template_id"`
	Landblock     uint16            `msgpack:"landblock" json:"landblock"`
	HasLocation   bool              `msgpack:"has_location" json:"has_location"`
	X             float64           `msgpack:"x" json:"x"`
	Y             float64           `msgpack:"y" json:"y"`
	ContainerGuid ObjectGuid        `msgpack:"container,omitempty" json:"container,omitempty"`
	GeneratorGuid ObjectGuid        `msgpack:"generator,omitempty" json:"generator,omitempty"`
	TimeToRot     time.Duration     `msgpack:"time_to_rot" json:"time_to_rot"`
	Properties    map[string]string `msgpack:"props,omitempty" json:"props,omitempty"`
	SavedAt       time.Time         `msgpack:"saved_at" json:"saved_at"`
}

// BiotaEntry — снимок вместе с токеном блокировки объекта
type BiotaEntry struct {
	Biota Biota
	Lock  *sync.RWMutex
}
