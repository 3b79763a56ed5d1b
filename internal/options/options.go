package options

import (
	"github.com/tech-arch1tect/safepoint/config"
	"github.com/tech-arch1tect/safepoint/services/portal"
	"go.uber.org/fx"
)

type Options struct {
	Config         *config.Config
	DatabaseModels []any
	EnableMail     bool
	Notifier       portal.Notifier
	EnableMetrics  bool
	EnableSweeper  bool
	EnableServer   bool
	ExtraFxOptions []fx.Option
}

type Option func(*Options)

// Apply folds opts into a fresh Options.
func Apply(opts ...Option) *Options {
	o := &Options{}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

func WithConfig(cfg *config.Config) Option {
	return func(opts *Options) {
		opts.Config = cfg
	}
}

func WithDatabase(models ...any) Option {
	return func(opts *Options) {
		opts.DatabaseModels = append(opts.DatabaseModels, models...)
	}
}

func WithMail() Option {
	return func(opts *Options) {
		opts.EnableMail = true
	}
}

func WithNotifier(n portal.Notifier) Option {
	return func(opts *Options) {
		opts.Notifier = n
	}
}

func WithMetrics() Option {
	return func(opts *Options) {
		opts.EnableMetrics = true
	}
}

func WithSweeper() Option {
	return func(opts *Options) {
		opts.EnableSweeper = true
	}
}

func WithServer() Option {
	return func(opts *Options) {
		opts.EnableServer = true
	}
}

func WithFxOptions(fxOpts ...fx.Option) Option {
	return func(opts *Options) {
		opts.ExtraFxOptions = append(opts.ExtraFxOptions, fxOpts...)
	}
}
