package mail

import (
	"github.com/tech-arch1tect/safepoint/config"
	"github.com/tech-arch1tect/safepoint/services/logging"
	"go.uber.org/fx"
)

func ProvideMailService(cfg *config.Config, logger *logging.Service) (*Service, error) {
	return NewService(&cfg.Mail, cfg.App.Name, logger)
}

var Module = fx.Options(
	fx.Provide(ProvideMailService),
)
