package reports

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
	Config  *config.Config
	DB      *gorm.DB
	Random  random.Source
	Clock   clock.Clock
	Logger  *logging.Service   `optional:"true"`
	Metrics *metrics.Collector `optional:"true"`
}

func ProvideGenerator(p Params) *Generator {
	return NewGenerator(&p.Config.Reports, p.DB, p.Random, p.Clock, p.Logger, p.Metrics)
}

func ProvideService(p Params, generator *Generator) *Service {
	return NewService(&p.Config.Reports, p.DB, generator, p.Clock, p.Logger, p.Metrics)
}

var Module = fx.Options(
	fx.Provide(ProvideGenerator),
	fx.Provide(ProvideService),
)
