package sweeper

import (
	"context"

	"github.com/tech-arch1tect/safepoint/config"
	"github.com/tech-arch1tect/safepoint/internal/clock"
	"github.com/tech-arch1tect/safepoint/services/logging"
	"github.com/tech-arch1tect/safepoint/services/reports"
	"github.com/tech-arch1tect/safepoint/services/tokens"
	"go.uber.org/fx"
)

type Params struct {
	fx.In
	Tokens    *tokens.Service
	Generator *reports.Generator `optional:"true"`
	Clock     clock.Clock
	Logger    *logging.Service `optional:"true"`
}

func ProvideService(p Params) *Service {
	var counters CounterPurger
	if p.Generator != nil {
		counters = p.Generator
	}
	return NewService(p.Tokens, counters, p.Clock, p.Logger)
}

// RegisterLifecycle runs the sweeper for as long as the application is up.
func RegisterLifecycle(lc fx.Lifecycle, cfg *config.Config, s *Service, logger *logging.Service) {
	if !cfg.Sweeper.Enabled || cfg.Sweeper.Interval <= 0 {
		logger.Debug("sweeper disabled")
		return
	}

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			s.Start(cfg.Sweeper.Interval)
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return s.Stop(ctx)
		},
	})
}

var Module = fx.Options(
	fx.Provide(ProvideService),
	fx.Invoke(RegisterLifecycle),
)
