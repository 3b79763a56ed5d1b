package app

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/tech-arch1tect/safepoint/config"
	throttlemw "github.com/tech-arch1tect/safepoint/middleware/throttle"
	"github.com/tech-arch1tect/safepoint/server"
	"github.com/tech-arch1tect/safepoint/services/logging"
	"github.com/tech-arch1tect/safepoint/services/metrics"
	"github.com/tech-arch1tect/safepoint/services/portal"
	"github.com/tech-arch1tect/safepoint/services/reports"
	"github.com/tech-arch1tect/safepoint/services/sweeper"
	"github.com/tech-arch1tect/safepoint/services/throttle"
	"github.com/tech-arch1tect/safepoint/services/tokens"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type App struct {
	fx     *fx.App
	config *config.Config
	logger *logging.Service
	db     *gorm.DB

	tokens   *tokens.Service
	reports  *reports.Service
	throttle *throttle.Throttle
	policies throttle.Policies
	metrics  *metrics.Collector
	portal   *portal.Service
	server   *server.Server
	sweeper  *sweeper.Service
}

func (a *App) Start() error {
	return a.fx.Start(context.Background())
}

func (a *App) Run() {
	if err := a.Start(); err != nil {
		log.Fatalf("Failed to start application: %v", err)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigChan
	a.logger.Info("received shutdown signal, stopping gracefully", zap.String("signal", sig.String()))

	a.Stop()
}

func (a *App) Stop() {
	a.stop(30 * time.Second)
}

func (a *App) stop(timeout time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := a.fx.Stop(ctx); err != nil {
		if a.logger != nil {
			a.logger.Error("failed to stop application gracefully", zap.Error(err))
		} else {
			log.Printf("Failed to stop application gracefully: %v", err)
		}
	}
}

func (a *App) Server() *echo.Echo {
	if a.server == nil {
		a.logger.Warn("http server not enabled")
		return nil
	}
	return a.server.Echo()
}

// Limit returns middleware that applies policy per client address.
func (a *App) Limit(policy throttle.Policy) echo.MiddlewareFunc {
	return throttlemw.Middleware(&throttlemw.Config{
		Throttle: a.throttle,
		Policy:   policy,
	})
}

func (a *App) DB() *gorm.DB {
	return a.db
}

func (a *App) Logger() *logging.Service {
	return a.logger
}

func (a *App) Config() *config.Config {
	return a.config
}

func (a *App) Tokens() *tokens.Service {
	return a.tokens
}

func (a *App) Reports() *reports.Service {
	return a.reports
}

func (a *App) Throttle() *throttle.Throttle {
	return a.throttle
}

func (a *App) Policies() throttle.Policies {
	return a.policies
}

func (a *App) Metrics() *metrics.Collector {
	return a.metrics
}

// Portal is nil unless the app was built with mail or a notifier.
func (a *App) Portal() *portal.Service {
	return a.portal
}

func (a *App) Sweeper() *sweeper.Service {
	return a.sweeper
}

func (a *App) RegisterRoutes(fn func(*echo.Echo)) {
	if e := a.Server(); e != nil {
		fn(e)
	}
}

func (a *App) Get(path string, handler echo.HandlerFunc, middleware ...echo.MiddlewareFunc) {
	if e := a.Server(); e != nil {
		e.GET(path, handler, middleware...)
	}
}

func (a *App) Post(path string, handler echo.HandlerFunc, middleware ...echo.MiddlewareFunc) {
	if e := a.Server(); e != nil {
		e.POST(path, handler, middleware...)
	}
}
