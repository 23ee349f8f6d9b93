// Package app wires the post store, calendar surfaces and background
// services together and applies configuration hot reloads.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"postcal/internal/audit"
	"postcal/internal/bot"
	"postcal/internal/config"
	"postcal/internal/digest"
	"postcal/internal/eventbus"
	"postcal/internal/httpapi"
	"postcal/internal/notifier"
	"postcal/internal/optimizer"
	"postcal/internal/runtime/supervisor"
	"postcal/internal/storage"
	"postcal/internal/store"
	"postcal/internal/transport"
	"postcal/internal/transport/telegram"
	"postcal/pkg/logx"
)

type App struct {
	cfgm *config.Manager
	sup  *supervisor.Supervisor

	log  logx.Logger
	logs *logx.Service
	bus  eventbus.Bus
	st   storage.Store

	posts    *store.Store
	recorder *audit.Recorder
	opt      *optimizer.Ollama
	notif    *notifier.Service
	digest   *digest.Service
	http     *httpapi.Server

	// nil when telegram is disabled
	adapter transport.Adapter
	router  *bot.Router
	bot     *bot.Bot
	updates chan transport.Update
}

// New loads the config file at cfgPath and builds every component. Seed posts
// are created here so they reach the audit log.
func New(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	bootLog := logx.NewConsole(cfg.Logging.Level)
	var ad *telegram.Adapter
	if cfg.Telegram.Enabled {
		pollTimeout, err := config.ParseDurationOrDefault("telegram.poll_timeout", cfg.Telegram.PollTimeout, 10*time.Second)
		if err != nil {
			return nil, err
		}
		ad, err = telegram.New(telegram.Config{Token: cfg.Telegram.Token, PollTimeout: pollTimeout}, bootLog)
		if err != nil {
			return nil, fmt.Errorf("telegram: %w", err)
		}
	}

	var sender logx.ChatSender
	if ad != nil {
		sender = ad
	}
	logSvc, log := logx.New(cfg.LogConfig(), sender)
	a := &App{
		cfgm: cfgm,
		logs: logSvc,
		log:  log.Component("app"),
		bus:  eventbus.New(),
	}
	if err := a.build(cfg, log, ad); err != nil {
		a.release(ad)
		return nil, err
	}
	return a, nil
}

// release undoes a partial build.
func (a *App) release(ad *telegram.Adapter) {
	if a.recorder != nil {
		a.recorder.Detach()
	}
	if a.st != nil {
		if err := a.st.Close(); err != nil {
			a.log.Warn("storage close failed", logx.Err(err))
		}
		a.st = nil
	}
	if ad != nil {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		_ = ad.Stop(ctx)
		cancel()
	}
	_ = a.logs.Close()
}

func (a *App) build(cfg *config.Config, log logx.Logger, ad *telegram.Adapter) error {
	loc, err := cfg.Location()
	if err != nil {
		return err
	}
	weekStart, err := cfg.WeekStart()
	if err != nil {
		return err
	}

	if sc, enabled, err := mapStorageConfig(cfg); err != nil {
		return err
	} else if enabled {
		st, err := storage.Open(sc, log)
		if err != nil {
			return err
		}
		a.st = st
		a.log.Info("storage enabled", logx.String("driver", sc.Driver), logx.String("path", sc.Path))
	}

	a.posts = store.New(store.WithLogger(log), store.WithBus(a.bus))
	if a.st != nil {
		a.recorder = audit.NewRecorder(a.bus, a.st, log)
		a.recorder.Attach()
	}
	drafts, err := cfg.SeedDrafts()
	if err != nil {
		return err
	}
	if seeded, err := a.posts.Seed(drafts); err != nil {
		return err
	} else if len(seeded) > 0 {
		a.log.Info("seed posts created", logx.Int("count", len(seeded)))
	}

	ops, err := mapOptimizerSettings(cfg)
	if err != nil {
		return err
	}
	a.opt = optimizer.NewOllama(ops, log)

	ncfg, err := mapNotifierConfig(cfg)
	if err != nil {
		return err
	}
	var sender notifier.Sender
	if ad != nil {
		sender = ad
	} else {
		ncfg.Enabled = false
	}
	a.notif = notifier.New(ncfg, sender, a.bus, log)

	dopts := []digest.Option{}
	if a.st != nil {
		dopts = append(dopts, digest.WithDedup(a.st))
	}
	a.digest = digest.New(a.posts, a.notif, log, dopts...)
	dcfg, err := mapDigestConfig(cfg)
	if err != nil {
		return err
	}
	if dcfg.Enabled {
		if _, err := digest.ParseSchedule(dcfg.Schedule); err != nil {
			return fmt.Errorf("digest.schedule: %w", err)
		}
	}
	if dcfg.Enabled && ad == nil {
		a.log.Warn("digest needs telegram; disabled")
		dcfg.Enabled = false
	}
	if err := a.digest.Apply(dcfg); err != nil {
		return err
	}

	if cfg.HTTP.Enabled {
		rt, err := config.ParseDurationField("http.read_timeout", cfg.HTTP.ReadTimeout)
		if err != nil {
			return err
		}
		wt, err := config.ParseDurationField("http.write_timeout", cfg.HTTP.WriteTimeout)
		if err != nil {
			return err
		}
		a.http = httpapi.New(httpapi.Config{
			Addr:         cfg.HTTPAddr(),
			ReadTimeout:  rt,
			WriteTimeout: wt,
			Pprof:        cfg.HTTP.Pprof,
		}, a.posts, log, httpapi.WithOptimizer(a.opt))
		a.http.SetCalendar(loc, weekStart)
	}

	if ad != nil {
		cmdTimeout, err := config.ParseDurationOrDefault("telegram.command_timeout", cfg.Telegram.CommandTimeout, 15*time.Second)
		if err != nil {
			return err
		}
		a.adapter = ad
		a.router = bot.NewRouter(ad, log,
			bot.WithWorkers(cfg.Telegram.Workers),
			bot.WithTimeout(cmdTimeout),
			bot.WithOwners(cfg.Telegram.OwnerUserIDs),
		)
		a.bot = bot.New(a.posts, bot.WithOptimizer(a.opt))
		a.bot.SetCalendar(loc, weekStart)
		a.bot.Register(a.router)
		a.updates = make(chan transport.Update, 256)
	}
	return nil
}

// Posts exposes the store, mainly for tests.
func (a *App) Posts() *store.Store { return a.posts }

// HTTPAddr is the bound HTTP address, or "" when the API is off.
func (a *App) HTTPAddr() string {
	if a.http == nil {
		return ""
	}
	return a.http.Addr()
}

// Done is closed when the app context ends (fatal error or Stop).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error seen by the supervisor.
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = supervisor.New(ctx, supervisor.WithLogger(a.log), supervisor.WithCancelOnError(true))
	run := a.sup.Context()

	a.cfgm.SetLogger(a.log)
	a.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error {
		if _, err := mapDigestConfig(cfg); err != nil {
			return err
		}
		if cfg.Digest.Enabled {
			if _, err := digest.ParseSchedule(cfg.Digest.Schedule); err != nil {
				return fmt.Errorf("digest.schedule: %w", err)
			}
		}
		if _, err := mapNotifierConfig(cfg); err != nil {
			return err
		}
		_, _, err := mapStorageConfig(cfg)
		return err
	})

	if a.recorder != nil {
		a.sup.Go("audit.recorder", a.recorder.Run)
	}
	a.notif.Start(run)
	if err := a.digest.Start(run); err != nil {
		return err
	}
	if a.http != nil {
		if err := a.http.Start(run); err != nil {
			return fmt.Errorf("http: %w", err)
		}
	}
	if a.adapter != nil {
		if err := a.adapter.Start(run, a.updates); err != nil {
			return err
		}
		a.sup.Go("bot.dispatch", func(c context.Context) error {
			return a.router.Run(c, a.updates)
		})
		a.sup.Go0("bot.menu", func(c context.Context) {
			mctx, cancel := context.WithTimeout(c, 10*time.Second)
			defer cancel()
			if err := a.router.PublishMenu(mctx); err != nil {
				a.log.Warn("menu update failed", logx.Err(err))
			}
		})
	}

	events, unsub := a.bus.Subscribe(128)
	a.sup.Go0("eventbus.log", func(c context.Context) {
		defer unsub()
		for {
			select {
			case <-c.Done():
				return
			case e, ok := <-events:
				if !ok {
					return
				}
				a.log.Debug("event", logx.String("type", e.Type), logx.Time("time", e.Time))
			}
		}
	})

	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		a.reloadLoop(c, sub)
	})
	a.sup.Go("config.watch", a.cfgm.Watch)

	a.log.Info("app started",
		logx.Bool("telegram", a.adapter != nil),
		logx.Bool("http", a.http != nil),
		logx.Bool("storage", a.st != nil),
		logx.Int("posts", a.posts.Len()),
	)
	return nil
}

// Stop shuts components down in dependency order. Each step gets its own
// deadline, capped by ctx.
func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))
	a.sup.Cancel()

	var errs []error
	step := func(name string, limit time.Duration, fn func(context.Context) error) {
		start := time.Now()
		sctx, cancel := context.WithTimeout(ctx, limit)
		defer cancel()

		done := make(chan error, 1)
		go func() {
			defer func() {
				if r := recover(); r != nil {
					done <- fmt.Errorf("panic in stop step %s: %v", name, r)
				}
			}()
			done <- fn(sctx)
		}()
		select {
		case err := <-done:
			if err != nil && !errors.Is(err, context.Canceled) {
				a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
				errs = append(errs, fmt.Errorf("%s: %w", name, err))
			}
			a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
		case <-sctx.Done():
			a.log.Warn("stop step deadline reached (continuing)", logx.String("name", name), logx.Duration("elapsed", time.Since(start)))
			errs = append(errs, fmt.Errorf("%s: %w", name, sctx.Err()))
		}
	}

	if a.adapter != nil {
		step("adapter", 3*time.Second, a.adapter.Stop)
	}
	if a.http != nil {
		step("http", 3*time.Second, a.http.Stop)
	}
	step("digest", 2*time.Second, a.digest.Stop)
	step("notifier", 3*time.Second, a.notif.Stop)
	step("supervisor", 3*time.Second, a.sup.Wait)
	if a.st != nil {
		step("storage", time.Second, func(context.Context) error { return a.st.Close() })
	}

	a.log.Info("stopped")
	_ = a.logs.Close()
	return errors.Join(errs...)
}
