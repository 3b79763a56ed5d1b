package tokens

import (
	"github.com/tech-arch1tect/safepoint/config"
	"github.com/tech-arch1tect/safepoint/internal/clock"
	"github.com/tech-arch1tect/safepoint/internal/random"
	"github.com/tech-arch1tect/safepoint/services/logging"
	"github.com/tech-arch1tect/safepoint/services/metrics"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

type Params struct {
	fx.In
	Config   *config.Config
	DB       *gorm.DB
	Accounts Accounts `optional:"true"`
	Hasher   CredentialHasher
	Random   random.Source
	Clock    clock.Clock
	Logger   *logging.Service   `optional:"true"`
	Metrics  *metrics.Collector `optional:"true"`
}

func ProvideService(p Params) *Service {
	return NewService(&p.Config.Tokens, Deps{
		DB:       p.DB,
		Accounts: p.Accounts,
		Hasher:   p.Hasher,
		Random:   p.Random,
		Clock:    p.Clock,
		Logger:   p.Logger,
		Metrics:  p.Metrics,
	})
}

var Module = fx.Options(
	fx.Provide(ProvideService),
)
