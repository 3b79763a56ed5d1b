package metrics

import (
	"github.com/tech-arch1tect/safepoint/config"
	"go.uber.org/fx"
)

// ProvideCollector returns nil when metrics are disabled; consumers treat a
// nil collector as a no-op.
func ProvideCollector(cfg *config.Config) *Collector {
	if !cfg.Metrics.Enabled {
		return nil
	}
	return NewCollector(cfg.Metrics.Namespace)
}

var Module = fx.Options(
	fx.Provide(ProvideCollector),
)
