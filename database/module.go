package database

import (
	"context"

	"github.com/tech-arch1tect/safepoint/config"
	"github.com/tech-arch1tect/safepoint/services/logging"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In
	Config    *config.Config
	Models    *ModelsOption    `optional:"true"`
	Logger    *logging.Service `optional:"true"`
	Lifecycle fx.Lifecycle
}

// ProvideDatabaseFx opens the database and closes the pool when the
// application stops.
func ProvideDatabaseFx(p Params) (*gorm.DB, error) {
	db, err := ProvideDatabase(*p.Config, p.Models, p.Logger)
	if err != nil {
		return nil, err
	}

	p.Lifecycle.Append(fx.Hook{
		OnStop: func(context.Context) error {
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			p.Logger.Debug("closing database", zap.String("driver", p.Config.Database.Driver))
			return sqlDB.Close()
		},
	})
	return db, nil
}

var Module = fx.Options(
	fx.Provide(ProvideDatabaseFx),
)
