package app

import (
	"context"
	"slices"
	"strings"
	"time"

	"postcal/internal/config"
	"postcal/pkg/logx"
)

// reloadLoop applies published configs to the running components. Sections
// that cannot change live (storage, telegram token, http listener) only warn.
func (a *App) reloadLoop(ctx context.Context, sub chan *config.Config) {
	lastApplied := a.cfgm.Get()
	for {
		select {
		case <-ctx.Done():
			return
		case newCfg, ok := <-sub:
			if !ok {
				return
			}
			// keep only the latest
		drain:
			for {
				select {
				case newer := <-sub:
					if newer != nil {
						newCfg = newer
					}
				default:
					break drain
				}
			}
			sections, attrs := config.SummarizeChange(lastApplied, newCfg)
			lastApplied = newCfg
			a.apply(ctx, newCfg, sections)

			if len(sections) > 0 {
				fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
				a.log.Info("config reloaded", fields...)
			} else {
				a.log.Info("config reloaded (no changes)")
			}
		}
	}
}

func (a *App) apply(ctx context.Context, cfg *config.Config, sections []string) {
	if slices.Contains(sections, "storage") {
		a.log.Warn("storage config changed; restart required for changes to take effect")
	}
	if slices.Contains(sections, "http") {
		a.log.Warn("http config changed; restart required for changes to take effect")
	}

	a.logs.Apply(cfg.LogConfig())

	if a.router != nil {
		a.router.SetOwners(cfg.Telegram.OwnerUserIDs)
	}

	if loc, err := cfg.Location(); err != nil {
		a.log.Warn("invalid calendar.timezone; keeping previous", logx.Err(err))
	} else if ws, err := cfg.WeekStart(); err != nil {
		a.log.Warn("invalid calendar.week_start; keeping previous", logx.Err(err))
	} else {
		if a.bot != nil {
			a.bot.SetCalendar(loc, ws)
		}
		if a.http != nil {
			a.http.SetCalendar(loc, ws)
		}
	}

	if ops, err := mapOptimizerSettings(cfg); err != nil {
		a.log.Warn("invalid optimizer config; keeping previous", logx.Err(err))
	} else {
		a.opt.Apply(ops)
	}

	if slices.Contains(sections, "notifier") {
		a.applyNotifier(ctx, cfg)
	}

	if dcfg, err := mapDigestConfig(cfg); err != nil {
		a.log.Warn("invalid digest config; keeping previous", logx.Err(err))
	} else {
		if dcfg.Enabled && a.adapter == nil {
			a.log.Warn("digest needs telegram; disabled")
			dcfg.Enabled = false
		}
		if err := a.digest.Apply(dcfg); err != nil {
			a.log.Warn("digest reschedule failed", logx.Err(err))
		}
	}
}

// applyNotifier restarts the worker pool; workers and queue size only take
// effect on Start.
func (a *App) applyNotifier(ctx context.Context, cfg *config.Config) {
	ncfg, err := mapNotifierConfig(cfg)
	if err != nil {
		a.log.Warn("invalid notifier config; keeping previous", logx.Err(err))
		return
	}
	if a.adapter == nil {
		ncfg.Enabled = false
	}
	prev := a.notif.Enabled()
	if prev {
		stopCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		_ = a.notif.Stop(stopCtx)
		cancel()
	}
	a.notif.Apply(ncfg)
	a.notif.Start(ctx)
	if prev != ncfg.Enabled {
		a.log.Info("notifier toggled via config", logx.Bool("enabled", ncfg.Enabled))
	}
}
