package eventbus

import (
	"context"

	"github.com/annel0/landblock/internal/logging"
	"go.uber.org/zap"
)

// StartLoggingListener подписывается на все события и пишет их в лог компонента.
// Функция неблокирующая.
func StartLoggingListener(bus EventBus, log *logging.Logger) (Subscription, error) {
	sub, err := bus.Subscribe(context.Background(), Filter{}, func(ctx context.Context, ev *Envelope) {
		log.Zap().Debug("event",
			zap.String("id", ev.ID),
			zap.String("type", ev.EventType),
			zap.String("source", ev.Source),
			zap.Int("priority", ev.Priority),
			zap.Int("size", len(ev.Payload)),
		)
	})
	if err != nil {
		return nil, err
	}
	log.Info("LoggingListener: подписка на все события активирована")
	return sub, nil
}
