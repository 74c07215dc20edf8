package store

import (
	"github.com/foxseedlab/readyup/internal/config"
	"github.com/foxseedlab/readyup/internal/tracker"
	"github.com/samber/do/v2"
)

func RegisterDI(injector do.Injector) {
	do.Provide(injector, func(i do.Injector) (tracker.Store, error) {
		cfg := do.MustInvoke[*config.Config](i)
		return NewFileStore(cfg.DataDir, cfg.LockTimeout())
	})
}
