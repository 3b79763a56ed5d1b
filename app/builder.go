package app

import (
	"fmt"

	"github.com/tech-arch1tect/safepoint/config"
	"github.com/tech-arch1tect/safepoint/database"
	"github.com/tech-arch1tect/safepoint/internal/clock"
	"github.com/tech-arch1tect/safepoint/internal/random"
	"github.com/tech-arch1tect/safepoint/server"
	"github.com/tech-arch1tect/safepoint/services/logging"
	"github.com/tech-arch1tect/safepoint/services/mail"
	"github.com/tech-arch1tect/safepoint/services/metrics"
	"github.com/tech-arch1tect/safepoint/services/password"
	"github.com/tech-arch1tect/safepoint/services/portal"
	"github.com/tech-arch1tect/safepoint/services/reports"
	"github.com/tech-arch1tect/safepoint/services/sweeper"
	"github.com/tech-arch1tect/safepoint/services/throttle"
	"github.com/tech-arch1tect/safepoint/services/tokens"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

type AppBuilder struct {
	config      *config.Config
	services    map[string]bool
	extraModels []any
	notifier    portal.Notifier
	fxOptions   []fx.Option
	errors      []error
}

func NewApp() *AppBuilder {
	return &AppBuilder{
		services:    make(map[string]bool),
		extraModels: make([]any, 0),
		fxOptions:   make([]fx.Option, 0),
		errors:      make([]error, 0),
	}
}

func (b *AppBuilder) WithConfig(cfg *config.Config) *AppBuilder {
	if cfg == nil {
		b.addError("config cannot be nil")
		return b
	}
	b.config = cfg
	return b
}

func (b *AppBuilder) WithAutoConfig() *AppBuilder {
	cfg := &config.Config{}
	if err := config.LoadConfig(cfg); err != nil {
		b.addError(fmt.Sprintf("failed to load config: %v", err))
		return b
	}
	b.config = cfg
	return b
}

// WithDatabase registers extra models for auto-migration, typically the
// account model behind the users table.
func (b *AppBuilder) WithDatabase(models ...any) *AppBuilder {
	b.extraModels = append(b.extraModels, models...)
	return b
}

// WithMail sends portal notifications over SMTP.
func (b *AppBuilder) WithMail() *AppBuilder {
	b.services["mail"] = true
	return b
}

// WithNotifier sends portal notifications through n instead of SMTP.
func (b *AppBuilder) WithNotifier(n portal.Notifier) *AppBuilder {
	if n == nil {
		b.addError("notifier cannot be nil")
		return b
	}
	b.notifier = n
	return b
}

func (b *AppBuilder) WithMetrics() *AppBuilder {
	b.services["metrics"] = true
	return b
}

func (b *AppBuilder) WithSweeper() *AppBuilder {
	b.services["sweeper"] = true
	return b
}

func (b *AppBuilder) WithServer() *AppBuilder {
	b.services["server"] = true
	return b
}

func (b *AppBuilder) WithFxOptions(opts ...fx.Option) *AppBuilder {
	b.fxOptions = append(b.fxOptions, opts...)
	return b
}

func (b *AppBuilder) Build() (*App, error) {
	if err := b.validate(); err != nil {
		return nil, err
	}

	if b.config == nil {
		if err := b.WithAutoConfig().validate(); err != nil {
			return nil, err
		}
	}

	if b.services["metrics"] {
		b.config.Metrics.Enabled = true
	}

	logger, err := b.createLogger()
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	app := &App{
		config: b.config,
		logger: logger,
	}

	fxOptions := b.buildFxOptions(logger)
	fxOptions = append(fxOptions, fx.Invoke(func(c components) {
		app.db = c.DB
		app.tokens = c.Tokens
		app.reports = c.Reports
		app.throttle = c.Throttle
		app.policies = c.Policies
		app.metrics = c.Metrics
		app.portal = c.Portal
		app.server = c.Server
		app.sweeper = c.Sweeper
	}))

	fxApp := fx.New(fxOptions...)
	if err := fxApp.Err(); err != nil {
		return nil, fmt.Errorf("failed to wire application: %w", err)
	}
	app.fx = fxApp

	return app, nil
}

// components collects what the App exposes once the graph is built.
type components struct {
	fx.In
	DB       *gorm.DB
	Tokens   *tokens.Service
	Reports  *reports.Service
	Throttle *throttle.Throttle
	Policies throttle.Policies
	Metrics  *metrics.Collector `optional:"true"`
	Portal   *portal.Service    `optional:"true"`
	Server   *server.Server     `optional:"true"`
	Sweeper  *sweeper.Service   `optional:"true"`
}

func (b *AppBuilder) addError(msg string) {
	b.errors = append(b.errors, fmt.Errorf("%s", msg))
}

func (b *AppBuilder) validate() error {
	if len(b.errors) > 0 {
		return fmt.Errorf("configuration errors: %v", b.errors)
	}

	if b.services["mail"] && b.notifier != nil {
		return fmt.Errorf("mail and a custom notifier cannot both be used")
	}

	return nil
}

func (b *AppBuilder) createLogger() (*logging.Service, error) {
	if b.config == nil {
		return nil, fmt.Errorf("config required for logger creation")
	}

	return logging.NewService(logging.Config{
		Level:      logging.LogLevel(b.config.Log.Level),
		Format:     b.config.Log.Format,
		OutputPath: b.config.Log.Output,
	})
}

// models are the tables the services own plus any registered with
// WithDatabase.
func (b *AppBuilder) models() []any {
	return append([]any{
		&tokens.SecurityToken{},
		&reports.Report{},
		&reports.DailyCounter{},
	}, b.extraModels...)
}

func (b *AppBuilder) buildFxOptions(logger *logging.Service) []fx.Option {
	options := []fx.Option{
		fx.Supply(b.config),
		fx.Supply(logger),
		fx.Supply(database.WithModels(b.models()...)),
		fx.NopLogger,
		database.Module,
		fx.Provide(clock.System),
		fx.Provide(func() random.Source { return random.NewSecure() }),
		metrics.Module,
		throttle.Module,
		password.Module,
		tokens.Module,
		reports.Module,
	}

	switch {
	case b.services["mail"]:
		options = append(options, mail.Module, portal.MailNotifier, portal.Module)
	case b.notifier != nil:
		notifier := b.notifier
		options = append(options, fx.Provide(func() portal.Notifier { return notifier }), portal.Module)
	}

	if b.services["sweeper"] {
		options = append(options, sweeper.Module)
	}
	if b.services["server"] {
		options = append(options, server.NewProvider())
	}

	return append(options, b.fxOptions...)
}
