package portal

import (
	"github.com/tech-arch1tect/safepoint/config"
	"github.com/tech-arch1tect/safepoint/internal/clock"
	"github.com/tech-arch1tect/safepoint/services/logging"
	"github.com/tech-arch1tect/safepoint/services/mail"
	"github.com/tech-arch1tect/safepoint/services/password"
	"github.com/tech-arch1tect/safepoint/services/reports"
	"github.com/tech-arch1tect/safepoint/services/throttle"
	"github.com/tech-arch1tect/safepoint/services/tokens"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

type Params struct {
	fx.In
	Config    *config.Config
	DB        *gorm.DB
	Clock     clock.Clock
	Tokens    *tokens.Service
	Reports   *reports.Service
	Throttle  *throttle.Throttle
	Policies  throttle.Policies
	Notifier  Notifier
	Directory Directory         `optional:"true"`
	Passwords *password.Service `optional:"true"`
	Logger    *logging.Service  `optional:"true"`
}

func ProvideService(p Params) *Service {
	directory := p.Directory
	if directory == nil {
		directory = tokens.NewUsersTable(p.DB, p.Clock)
	}

	var passwords PasswordPolicy
	if p.Passwords != nil {
		passwords = p.Passwords
	}

	return NewService(p.Config, Deps{
		Tokens:    p.Tokens,
		Reports:   p.Reports,
		Throttle:  p.Throttle,
		Policies:  p.Policies,
		Notifier:  p.Notifier,
		Directory: directory,
		Passwords: passwords,
		Logger:    p.Logger,
	})
}

func ProvideNotifier(m *mail.Service) Notifier {
	return m
}

var Module = fx.Options(
	fx.Provide(ProvideService),
)

// MailNotifier delivers portal notifications through the mail service.
var MailNotifier = fx.Options(
	fx.Provide(ProvideNotifier),
)
