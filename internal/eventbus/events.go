package eventbus

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Типы событий жизненного цикла ландблоков
const (
	EventLandblockLoaded   = "landblock.loaded"
	EventLandblockActive   = "landblock.active"
	EventLandblockDormant  = "landblock.dormant"
	EventLandblockUnloaded = "landblock.unloaded"
	EventSaveFailed        = "landblock.save_failed"
	EventGuardViolation    = "landblock.guard_violation"
)

// PayloadVersion — версия схемы LandblockEvent
const PayloadVersion = 1

// LandblockEvent — полезная нагрузка событий ландблока
type LandblockEvent struct {
	Landblock string `json:"landblock"`
	State     string `json:"state,omitempty"`
	Objects   int    `json:"objects,omitempty"`
	Guid      uint32 `json:"guid,omitempty"`
	Detail    string `json:"detail,omitempty"`
}

// NewEnvelope упаковывает полезную нагрузку в конверт с новым UUID
func NewEnvelope(source, eventType string, priority int, payload any) (*Envelope, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", eventType, err)
	}
	return &Envelope{
		ID:        uuid.NewString(),
		Timestamp: time.Now().UTC(),
		Source:    source,
		EventType: eventType,
		Version:   PayloadVersion,
		Priority:  priority,
		Payload:   data,
	}, nil
}

// DecodeLandblockEvent разбирает полезную нагрузку события ландблока
func DecodeLandblockEvent(ev *Envelope) (LandblockEvent, error) {
	var le LandblockEvent
	if err := json.Unmarshal(ev.Payload, &le); err != nil {
		return le, fmt.Errorf("decode %s payload: %w", ev.EventType, err)
	}
	return le, nil
}
