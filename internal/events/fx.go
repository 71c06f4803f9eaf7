package events

import (
	"context"

	"github.com/smallbiznis/shoptok/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("events",
	fx.Provide(NewOutbox),
	fx.Provide(newPublisher),
	fx.Provide(NewDispatcher),
	fx.Invoke(registerDispatcher),
)

func newPublisher(cfg config.Config, log *zap.Logger) Publisher {
	if len(cfg.KafkaBrokers) == 0 {
		return NewLogPublisher(log)
	}
	return NewKafkaPublisher(KafkaConfig{
		Brokers: cfg.KafkaBrokers,
		Topic:   cfg.KafkaTopic,
	}, log)
}

func registerDispatcher(lc fx.Lifecycle, d *Dispatcher) {
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			d.Start()
			return nil
		},
		OnStop: d.Stop,
	})
}
