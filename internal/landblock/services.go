package landblock

import (
	"context"
	"time"

	"github.com/annel0/landblock/internal/config"
	"github.com/annel0/landblock/internal/eventbus"
	"github.com/annel0/landblock/internal/logging"
	"github.com/annel0/landblock/internal/vec"
	"github.com/annel0/landblock/internal/world/entity"
)

// Clock — источник времени тика
type Clock interface {
	Now() time.Time
}

// SystemClock — настенные часы
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// Physics — физика: размещение и перемещение объектов
type Physics interface {
	Place(obj entity.WorldObject, others []entity.WorldObject) error
	Step(obj entity.WorldObject, dt time.Duration) (vec.Vec2Float, bool)
	ReleaseLandblock(id uint16)
}

// BiotaSaver принимает пакеты снимков на асинхронную запись.
// done вызывается из горутины записи и не должен трогать состояние ландблока.
type BiotaSaver interface {
	SaveBiotasInParallel(ctx context.Context, batch []entity.BiotaEntry, done func(error))
}

// Services — общие для всех ландблоков зависимости. Создаётся один раз при
// старте мира и передаётся каждому ландблоку при создании.
type Services struct {
	Clock   Clock
	Physics Physics
	Saver   BiotaSaver
	Bus     eventbus.EventBus
	Metrics *Metrics
	Log     *logging.Logger
	Config  config.LandblockConfig
	State   *TickState
}

// withDefaults заполняет незаданные зависимости безопасными значениями
func (s Services) withDefaults() Services {
	if s.Clock == nil {
		s.Clock = SystemClock{}
	}
	if s.Physics == nil {
		s.Physics = noPhysics{}
	}
	if s.Metrics == nil {
		s.Metrics = NewMetrics(nil)
	}
	if s.Log == nil {
		s.Log = logging.NewNop()
	}
	if s.State == nil {
		s.State = &TickState{}
	}
	def := config.DefaultLandblockConfig()
	if s.Config.DormantInterval <= 0 {
		s.Config.DormantInterval = def.DormantInterval
	}
	if s.Config.UnloadInterval <= 0 {
		s.Config.UnloadInterval = def.UnloadInterval
	}
	if s.Config.HeartbeatInterval <= 0 {
		s.Config.HeartbeatInterval = def.HeartbeatInterval
	}
	if s.Config.DatabaseSaveInterval <= 0 {
		s.Config.DatabaseSaveInterval = def.DatabaseSaveInterval
	}
	if s.Config.MonitorInterval <= 0 {
		s.Config.MonitorInterval = def.MonitorInterval
	}
	return s
}

// noPhysics размещает всё и ничего не двигает
type noPhysics struct{}

func (noPhysics) Place(entity.WorldObject, []entity.WorldObject) error { return nil }
func (noPhysics) ReleaseLandblock(uint16) {}
func (noPhysics) Step(obj entity.WorldObject, _ time.Duration) (vec.Vec2Float, bool) {
	if obj.Base().Location == nil {
		return vec.Vec2Float{}, false
	}
	return *obj.Base().Location, false
}
