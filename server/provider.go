package server

import (
	"context"
	"net"

	"github.com/tech-arch1tect/safepoint/config"
	"github.com/tech-arch1tect/safepoint/services/logging"
	"github.com/tech-arch1tect/safepoint/services/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In
	Config  *config.Config
	Logger  *logging.Service   `optional:"true"`
	Metrics *metrics.Collector `optional:"true"`
}

func ProvideServer(p Params) *Server {
	return New(p.Config, p.Logger, p.Metrics)
}

// RegisterLifecycle binds the listener before start returns so a port that
// is already taken fails the application start.
func RegisterLifecycle(lc fx.Lifecycle, srv *Server, logger *logging.Service) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			var lcfg net.ListenConfig
			ln, err := lcfg.Listen(ctx, "tcp", srv.Address())
			if err != nil {
				return err
			}
			srv.echo.Listener = ln

			go func() {
				if err := srv.Start(); err != nil {
					logger.Error("http server stopped unexpectedly", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return srv.Shutdown(ctx)
		},
	})
}

func NewProvider() fx.Option {
	return fx.Options(
		fx.Provide(ProvideServer),
		fx.Invoke(RegisterLifecycle),
	)
}
