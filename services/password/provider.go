package password

import (
	"github.com/tech-arch1tect/safepoint/config"
	"github.com/tech-arch1tect/safepoint/services/logging"
	"github.com/tech-arch1tect/safepoint/services/tokens"
	"go.uber.org/fx"
)

func ProvideService(cfg *config.Config, logger *logging.Service) *Service {
	return NewService(&cfg.Password, logger)
}

var Module = fx.Options(
	fx.Provide(ProvideService),
	fx.Provide(func(s *Service) tokens.CredentialHasher { return s }),
)
