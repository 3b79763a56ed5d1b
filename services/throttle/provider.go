package throttle

import (
	"context"

	"github.com/tech-arch1tect/safepoint/config"
	"github.com/tech-arch1tect/safepoint/internal/clock"
	"github.com/tech-arch1tect/safepoint/services/logging"
	"github.com/tech-arch1tect/safepoint/services/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In
	Config    *config.Config
	Clock     clock.Clock
	Logger    *logging.Service
	Metrics   *metrics.Collector `optional:"true"`
	Lifecycle fx.Lifecycle
}

func ProvideThrottle(p Params) *Throttle {
	t := New(p.Clock, p.Logger, p.Metrics)

	interval := p.Config.Throttle.EvictionInterval
	idle := p.Config.Throttle.EvictionIdle
	if interval <= 0 || idle <= 0 {
		return t
	}

	var cancel context.CancelFunc
	var done <-chan struct{}
	p.Lifecycle.Append(fx.Hook{
		OnStart: func(context.Context) error {
			var ctx context.Context
			ctx, cancel = context.WithCancel(context.Background())
			done = t.StartEvictionWorker(ctx, interval, idle)
			p.Logger.Debug("throttle eviction worker started",
				zap.Duration("interval", interval),
				zap.Duration("idle", idle))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			cancel()
			select {
			case <-done:
			case <-ctx.Done():
				return ctx.Err()
			}
			return nil
		},
	})

	return t
}

func ProvidePolicies(cfg *config.Config) Policies {
	return PoliciesFromConfig(&cfg.Throttle)
}

var Module = fx.Options(
	fx.Provide(ProvideThrottle),
	fx.Provide(ProvidePolicies),
)
