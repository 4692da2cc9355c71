package app

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"zapsend/internal/ai"
	"zapsend/internal/config"
	"zapsend/internal/dispatch"
	"zapsend/internal/metrics"
	"zapsend/internal/schedule"
	"zapsend/internal/store"
	"zapsend/internal/zapi"
	"zapsend/pkg/logx"
)

type App struct {
	cfgPath string

	cfgm *config.Manager

	log  logx.Logger
	logs *logx.Service

	store    *store.Store
	storeCfg store.Config
	zapi     *zapi.Client
	composer *ai.Client
	disp     *dispatch.Service
	sched    *schedule.Service
	schedCfg schedule.Config

	metricsSrv *http.Server

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func New(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	logSvc, log := logx.New(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})
	log = log.With(logx.String("comp", "app"))
	cfgm.SetLogger(log.With(logx.String("comp", "config")))

	stCfg, err := mapStoreConfig(cfg)
	if err != nil {
		return nil, err
	}
	st, err := store.Open(stCfg, log.With(logx.String("comp", "store")))
	if err != nil {
		return nil, err
	}

	zcfg, err := mapZAPIConfig(cfg)
	if err != nil {
		return nil, err
	}
	client := zapi.New(zcfg, st, log.With(logx.String("comp", "zapi")))

	acfg, err := mapAIConfig(cfg)
	if err != nil {
		return nil, err
	}
	composer := ai.New(acfg, log.With(logx.String("comp", "ai")))

	var sink metrics.Sink = metrics.Noop{}
	var metricsSrv *http.Server
	if cfg.Metrics.Enabled {
		reg := prometheus.NewRegistry()
		sink = metrics.NewPrometheus(reg)

		addr := cfg.Metrics.Addr
		if addr == "" {
			addr = "127.0.0.1:9464"
		}
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		metricsSrv = &http.Server{Addr: addr, Handler: mux}
	}

	dcfg, err := mapDispatchConfig(cfg)
	if err != nil {
		return nil, err
	}
	disp := dispatch.New(dcfg, client, st, st, sink, log.With(logx.String("comp", "dispatch")))

	scfg, err := mapSchedulerConfig(cfg)
	if err != nil {
		return nil, err
	}
	sched := schedule.New(scfg, st, disp, sink, log.With(logx.String("comp", "schedule")))

	return &App{
		cfgPath:    cfgPath,
		cfgm:       cfgm,
		log:        log,
		logs:       logSvc,
		store:      st,
		storeCfg:   stCfg,
		zapi:       client,
		composer:   composer,
		disp:       disp,
		sched:      sched,
		schedCfg:   scfg,
		metricsSrv: metricsSrv,
	}, nil
}

// Dispatcher exposes the bulk/individual send API.
func (a *App) Dispatcher() *dispatch.Service { return a.disp }

// Scheduler exposes the schedule CRUD and runner API.
func (a *App) Scheduler() *schedule.Service { return a.sched }

// Composer exposes the AI message drafting API.
func (a *App) Composer() *ai.Client { return a.composer }

// Store exposes the persistence layer (contacts, groups, history).
func (a *App) Store() *store.Store { return a.store }

func (a *App) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel

	a.disp.Start(runCtx)
	a.sched.Start(runCtx)

	if a.metricsSrv != nil {
		srv := a.metricsSrv
		a.wg.Add(1)
		go func() {
			defer a.wg.Done()
			a.log.Info("metrics listener started", logx.String("addr", srv.Addr))
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				a.log.Error("metrics listener failed", logx.Err(err))
			}
		}()
	}

	// Config hot reload: the watcher republishes on file change, the
	// subscriber applies what can change live.
	sub := a.cfgm.Subscribe()
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		for {
			select {
			case <-runCtx.Done():
				return
			case newCfg, ok := <-sub:
				if !ok {
					return
				}
				a.applyConfig(newCfg)
			}
		}
	}()

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		if err := a.cfgm.Watch(runCtx); err != nil && runCtx.Err() == nil {
			a.log.Warn("config watch stopped", logx.Err(err))
		}
	}()

	a.log.Info("app started")
	return nil
}

// applyConfig pushes a reloaded config into the running services.
// Storage and scheduler wiring are fixed for the process lifetime;
// changes there get a restart-required warning instead.
func (a *App) applyConfig(cfg *config.Config) {
	a.logs.Apply(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})

	if zcfg, err := mapZAPIConfig(cfg); err != nil {
		a.log.Warn("invalid zapi config; keeping previous", logx.Err(err))
	} else {
		a.zapi.Apply(zcfg)
	}

	if dcfg, err := mapDispatchConfig(cfg); err != nil {
		a.log.Warn("invalid dispatch config; keeping previous", logx.Err(err))
	} else {
		a.disp.Apply(dcfg)
	}

	if acfg, err := mapAIConfig(cfg); err != nil {
		a.log.Warn("invalid ai config; keeping previous", logx.Err(err))
	} else {
		a.composer.Apply(acfg)
	}

	if stCfg, err := mapStoreConfig(cfg); err == nil && stCfg != a.storeCfg {
		a.log.Warn("storage config changed; restart required for changes to take effect")
	}
	if scfg, err := mapSchedulerConfig(cfg); err == nil && schedulerChanged(scfg, a.schedCfg) {
		a.log.Warn("scheduler config changed; restart required for changes to take effect")
	}

	a.log.Info("config reloaded")
}

// Locations are compared by name: LoadLocation hands out a fresh
// pointer per call.
func schedulerChanged(a, b schedule.Config) bool {
	return a.Enabled != b.Enabled || a.Tick != b.Tick ||
		a.DefaultRegion != b.DefaultRegion ||
		a.Location.String() != b.Location.String()
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	a.log.Info("stopping", logx.String("reason", string(reason)))
	if a.cancel != nil {
		a.cancel()
	}

	// Bound each shutdown step so one stuck component cannot stall the
	// whole stop.
	step := func(name string, max time.Duration, fn func(context.Context) error) {
		start := time.Now()
		stepCtx := ctx
		var cancel context.CancelFunc
		if max > 0 {
			stepCtx, cancel = context.WithTimeout(ctx, max)
			defer cancel()
		}
		done := make(chan error, 1)
		go func() {
			defer func() {
				if r := recover(); r != nil {
					done <- fmt.Errorf("panic in stop step %s: %v", name, r)
				}
			}()
			done <- fn(stepCtx)
		}()
		select {
		case err := <-done:
			if err != nil {
				a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
			} else {
				a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
			}
		case <-stepCtx.Done():
			a.log.Warn("stop step deadline reached (continuing)",
				logx.String("name", name), logx.Duration("elapsed", time.Since(start)))
		}
	}

	step("scheduler", 2*time.Second, func(c context.Context) error { a.sched.Stop(c); return nil })
	step("dispatcher", 5*time.Second, func(c context.Context) error { a.disp.Stop(c); return nil })
	if a.metricsSrv != nil {
		step("metrics", 1*time.Second, func(c context.Context) error { return a.metricsSrv.Shutdown(c) })
	}

	waited := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(waited)
	}()
	select {
	case <-waited:
	case <-ctx.Done():
	}

	step("store", 1*time.Second, func(context.Context) error { return a.store.Close() })

	a.log.Info("stopped")
	return a.logs.Close()
}
