package escrow

import (
	"context"

	"github.com/smallbiznis/shoptok/internal/escrow/domain"
	"github.com/smallbiznis/shoptok/internal/escrow/repository"
	"github.com/smallbiznis/shoptok/internal/escrow/service"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("escrow.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
	fx.Invoke(ensureSettings),
)

func ensureSettings(lc fx.Lifecycle, svc domain.Service, log *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			settings, err := svc.EnsureSettings(ctx)
			if err != nil {
				return err
			}
			log.Info("escrow settings loaded",
				zap.Uint32("platform_fee_bps", settings.PlatformFeeBps),
				zap.Duration("escrow_period", settings.EscrowPeriod()),
				zap.String("fee_recipient", settings.FeeRecipient),
			)
			return nil
		},
	})
}
