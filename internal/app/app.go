// Package app wires configuration, logging, storage, the event bus, and the
// automation engine into one runnable daemon.
package app

import (
	"context"
	"errors"
	"reflect"
	"time"

	"autotap/internal/config"
	"autotap/internal/engine"
	"autotap/internal/eventbus"
	"autotap/internal/recorder"
	"autotap/internal/report"
	"autotap/internal/runtime/supervisor"
	"autotap/internal/sender"
	"autotap/internal/storage"
	logx "autotap/pkg/logx"
)

type App struct {
	cfgPath string

	cfgm *config.Manager
	sup  *supervisor.Supervisor

	log   logx.Logger
	logs  *logx.Service
	bus   eventbus.Bus
	store storage.Store

	snd engine.Sender
	eng *engine.Engine
	rec *recorder.Recorder
	rep *report.Service

	autostart bool
}

func New(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	logSvc, log := logx.New(cfg.LogxConfig())
	log = log.With(logx.String("comp", "app"))

	bus := eventbus.New()

	// Storage is optional; the recorder and reporter degrade to no-ops.
	storeCfg, retention, err := cfg.StorageOptions()
	if err != nil {
		return nil, err
	}
	store, err := storage.Open(storeCfg, log.With(logx.String("comp", "storage")))
	if err != nil {
		return nil, err
	}
	if store != nil {
		log.Info("storage enabled", logx.String("driver", storeCfg.Driver))
	}

	sndCfg, err := cfg.SenderOptions()
	if err != nil {
		return nil, err
	}
	snd, err := sender.Open(sndCfg, logSvc.Logger())
	if err != nil {
		return nil, err
	}

	eng := engine.New(snd, log.With(logx.String("comp", "engine")), bus)
	actions, set, err := cfg.EngineConfig()
	if err != nil {
		return nil, err
	}
	if err := eng.Configure(actions, set); err != nil {
		return nil, err
	}

	a := &App{
		cfgPath:   cfgPath,
		cfgm:      cfgm,
		log:       log,
		logs:      logSvc,
		bus:       bus,
		store:     store,
		snd:       snd,
		eng:       eng,
		rec:       recorder.New(bus, store, logSvc.Logger()),
		autostart: cfg.Automation.Autostart,
	}

	if cfg.Report != nil && cfg.Report.Enabled {
		a.rep = report.New(report.Config{
			Every:         cfg.Report.Every,
			PruneSchedule: cfg.Report.PruneSchedule,
			Retention:     retention,
		}, eng, store, logSvc.Logger())
	}

	return a, nil
}

// Engine exposes the engine for diagnostics.
func (a *App) Engine() *engine.Engine { return a.eng }

// Done is closed when the supervisor context ends (fatal error or Stop()).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor, if any.
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = supervisor.New(ctx, supervisor.WithLogger(a.log), supervisor.WithCancelOnError(true))

	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))

	a.sup.Go("config.watch", a.cfgm.Watch)
	a.sup.Go("recorder", a.rec.Run)

	if a.rep != nil {
		if err := a.rep.Start(); err != nil {
			return err
		}
	}

	// Debug visibility into bus traffic.
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

	if a.autostart {
		if err := a.eng.Start(); err != nil {
			a.log.Error("autostart failed", logx.Err(err))
			return err
		}
	}

	return nil
}

// reloadLoop applies hot config updates: logging always, engine config by
// restarting across the change when needed. Sender and storage changes
// require a process restart and are only reported.
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
			// Coalesce bursts: keep only the latest config.
			for {
				select {
				case newer := <-sub:
					if newer != nil {
						newCfg = newer
					}
				default:
					goto APPLY
				}
			}
		APPLY:
			a.applyConfig(lastApplied, newCfg)
			lastApplied = newCfg
		}
	}
}

func (a *App) applyConfig(old, cfg *config.Config) {
	a.logs.Apply(cfg.LogxConfig())

	if old != nil {
		if !reflect.DeepEqual(old.Sender, cfg.Sender) {
			a.log.Warn("sender config changed; restart required for changes to take effect")
		}
		if !reflect.DeepEqual(old.Storage, cfg.Storage) {
			a.log.Warn("storage config changed; restart required for changes to take effect")
		}
	}

	actions, set, err := cfg.EngineConfig()
	if err != nil {
		// The manager validates before publishing, so this is unexpected.
		a.log.Warn("invalid automation config; keeping previous", logx.Err(err))
		return
	}
	if old != nil {
		oldActions, oldSet, oldErr := old.EngineConfig()
		if oldErr == nil && reflect.DeepEqual(oldActions, actions) && oldSet == set {
			a.log.Debug("automation config unchanged")
			return
		}
	}

	wasRunning := a.eng.IsRunning() || a.eng.State() == engine.StatePaused
	if wasRunning {
		if err := a.eng.Stop(engine.DefaultStopTimeout); err != nil {
			a.log.Error("engine stop for reconfigure failed", logx.Err(err))
			return
		}
	}
	if err := a.eng.Configure(actions, set); err != nil {
		a.log.Error("engine reconfigure failed", logx.Err(err))
		return
	}
	a.log.Info("automation config applied",
		logx.Int("actions", len(actions)),
		logx.Bool("restarting", wasRunning),
	)
	if wasRunning {
		if err := a.eng.Start(); err != nil {
			a.log.Error("engine restart after reconfigure failed", logx.Err(err))
		}
	}
}

func (a *App) Stop(ctx context.Context) error {
	if a.eng != nil {
		if err := a.eng.Stop(engine.DefaultStopTimeout); err != nil &&
			!errors.Is(err, engine.ErrNotRunning) {
			a.log.Warn("engine stop", logx.Err(err))
		}
	}
	if a.rep != nil {
		a.rep.Stop()
	}

	var err error
	if a.sup != nil {
		sctx, cancel := context.WithTimeout(ctx, 10*time.Second)
		err = a.sup.Stop(sctx)
		cancel()
	}

	if a.store != nil {
		_ = a.store.Close()
	}
	_ = a.logs.Close()
	return err
}
