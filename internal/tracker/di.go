package tracker

import (
	"github.com/foxseedlab/readyup/internal/clock"
	"github.com/foxseedlab/readyup/internal/config"
	"github.com/foxseedlab/readyup/internal/discord"
	"github.com/foxseedlab/readyup/internal/notify"
	"github.com/samber/do/v2"
)

func RegisterDI(injector do.Injector) {
	do.Provide(injector, func(i do.Injector) (clock.Clock, error) {
		return clock.System(), nil
	})
	do.Provide(injector, func(i do.Injector) (*Manager, error) {
		cfg := do.MustInvoke[*config.Config](i)
		st := do.MustInvoke[Store](i)
		clk := do.MustInvoke[clock.Clock](i)
		dc := do.MustInvoke[discord.Client](i)
		notifier := do.MustInvoke[notify.Sender](i)
		return NewManager(cfg, st, clk, dc, notifier), nil
	})
	do.Provide(injector, func(i do.Injector) (*Scheduler, error) {
		cfg := do.MustInvoke[*config.Config](i)
		manager := do.MustInvoke[*Manager](i)
		return NewScheduler(cfg, manager), nil
	})
}
