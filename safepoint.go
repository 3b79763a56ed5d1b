// Package safepoint assembles the account-safety core: single-use security
// tokens, request throttling and quota-bounded report identifiers.
package safepoint

import (
	"github.com/tech-arch1tect/safepoint/app"
	"github.com/tech-arch1tect/safepoint/config"
	"github.com/tech-arch1tect/safepoint/internal/options"
	"github.com/tech-arch1tect/safepoint/services/portal"
	"go.uber.org/fx"
)

type App = app.App

type Option = options.Option

// New builds an App. Without WithConfig the configuration is read from the
// environment.
func New(opts ...Option) (*App, error) {
	o := options.Apply(opts...)

	b := app.NewApp()
	if o.Config != nil {
		b.WithConfig(o.Config)
	}
	if len(o.DatabaseModels) > 0 {
		b.WithDatabase(o.DatabaseModels...)
	}
	if o.EnableMail {
		b.WithMail()
	}
	if o.Notifier != nil {
		b.WithNotifier(o.Notifier)
	}
	if o.EnableMetrics {
		b.WithMetrics()
	}
	if o.EnableSweeper {
		b.WithSweeper()
	}
	if o.EnableServer {
		b.WithServer()
	}
	if len(o.ExtraFxOptions) > 0 {
		b.WithFxOptions(o.ExtraFxOptions...)
	}

	return b.Build()
}

func WithConfig(cfg *config.Config) Option {
	return options.WithConfig(cfg)
}

func WithDatabase(models ...any) Option {
	return options.WithDatabase(models...)
}

func WithMail() Option {
	return options.WithMail()
}

func WithNotifier(n portal.Notifier) Option {
	return options.WithNotifier(n)
}

func WithMetrics() Option {
	return options.WithMetrics()
}

func WithSweeper() Option {
	return options.WithSweeper()
}

func WithServer() Option {
	return options.WithServer()
}

func WithFxOptions(opts ...fx.Option) Option {
	return options.WithFxOptions(opts...)
}
