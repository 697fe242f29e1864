// Package app wires configuration, storage, the WhatsApp client, the
// broadcast engine, schedules and the HTTP API into one process.
package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"wadispatch/internal/agent"
	"wadispatch/internal/broadcast"
	"wadispatch/internal/config"
	"wadispatch/internal/delivery"
	"wadispatch/internal/httpapi"
	"wadispatch/internal/runtime/supervisor"
	"wadispatch/internal/schedule"
	"wadispatch/internal/storage"
	"wadispatch/internal/whatsapp"
	"wadispatch/pkg/logx"
)

type App struct {
	cfgm *config.ConfigManager
	sup  *supervisor.Supervisor

	log  logx.Logger
	logs *logx.Service

	store      delivery.Store
	deliveries *delivery.Logger

	creds  *whatsapp.StaticCredentials
	wa     *whatsapp.Client
	agents *agent.Repository
	gen    *agent.Generator

	orch  *broadcast.Orchestrator
	jobs  *broadcast.Service
	sched *schedule.Service
	api   *httpapi.Handler

	srvCfg httpapi.ServerConfig
}

func NewApp(cfgPath string) (*App, error) {
	cfgm := config.NewConfigManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	logSvc, log := logx.New(mapLogConfig(cfg))
	log = log.With(logx.String("comp", "app"))
	root := logSvc.Logger()

	sc, err := mapStorageConfig(cfg)
	if err != nil {
		return nil, err
	}
	store, err := storage.Open(sc, root.With(logx.String("comp", "storage")))
	if err != nil {
		return nil, err
	}
	log.Info("storage opened", logx.String("driver", sc.Driver), logx.String("path", sc.Path))
	deliveries := delivery.NewLogger(store, root.With(logx.String("comp", "delivery")))

	waCfg, creds, err := mapWhatsAppConfig(cfg)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	credSrc := whatsapp.NewStaticCredentials(creds)
	if !creds.Valid() {
		log.Warn("whatsapp credentials missing; broadcasts will be rejected until configured")
	}
	wa := whatsapp.NewClient(waCfg, credSrc, root.With(logx.String("comp", "whatsapp")))

	genCfg, err := mapGeneratorConfig(cfg)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	agents := agent.NewRepository(mapAgents(cfg))
	gen := agent.NewGenerator(genCfg)

	set, err := mapBroadcastSettings(cfg)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	orch := broadcast.NewOrchestrator(broadcast.Deps{
		Credentials: credSrc,
		Templates:   wa,
		Transport:   wa,
		Agents:      agents,
		Generator:   gen,
		Deliveries:  deliveries,
		Log:         root.With(logx.String("comp", "broadcast")),
	}, set)

	svcCfg, err := mapServiceConfig(cfg)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	jobs := broadcast.NewService(svcCfg, orch, root.With(logx.String("comp", "jobs")))

	sched := schedule.New(jobs, root.With(logx.String("comp", "schedule")))
	entries, err := schedule.FromConfig(cfg.Schedules)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	if err := sched.Apply(entries); err != nil {
		_ = store.Close()
		return nil, err
	}

	srvCfg, err := mapServerConfig(cfg)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	a := &App{
		cfgm:       cfgm,
		log:        log,
		logs:       logSvc,
		store:      store,
		deliveries: deliveries,
		creds:      credSrc,
		wa:         wa,
		agents:     agents,
		gen:        gen,
		orch:       orch,
		jobs:       jobs,
		sched:      sched,
		srvCfg:     srvCfg,
	}
	a.api = httpapi.New(httpapi.Options{
		Broadcasts:     orch,
		Jobs:           jobs,
		Deliveries:     deliveries,
		NormalizePhone: orch.NormalizePhone,
		Health:         a.health,
		MaxRecipients:  cfg.HTTP.MaxRecipients,
		Profiler:       cfg.HTTP.Pprof,
		Log:            root.With(logx.String("comp", "http")),
	})
	return a, nil
}

// Done is closed when the app supervisor context is canceled (fatal error or Stop()).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor (if any).
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) health() map[string]any {
	out := map[string]any{
		"jobs_enabled": a.jobs.Enabled(),
		"agents":       a.agents.IDs(),
		"schedules":    a.sched.Entries(),
	}
	if a.sup != nil {
		out["goroutines"] = a.sup.Snapshot()
	}
	return out
}

// validate runs the component mappings so a hot reload is rejected before
// anything is applied.
func validate(_ context.Context, cfg *config.Config) error {
	if _, err := mapStorageConfig(cfg); err != nil {
		return err
	}
	if _, _, err := mapWhatsAppConfig(cfg); err != nil {
		return err
	}
	if _, err := mapGeneratorConfig(cfg); err != nil {
		return err
	}
	if _, err := mapBroadcastSettings(cfg); err != nil {
		return err
	}
	if _, err := mapServiceConfig(cfg); err != nil {
		return err
	}
	if _, err := mapServerConfig(cfg); err != nil {
		return err
	}
	if _, err := schedule.FromConfig(cfg.Schedules); err != nil {
		return err
	}
	return nil
}

func (a *App) Start(ctx context.Context) error {
	a.sup = supervisor.New(ctx, supervisor.WithLogger(a.log), supervisor.WithCancelOnError(true))

	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(validate)

	if a.jobs.Enabled() {
		a.jobs.Start(a.sup.Context())
	}
	a.sched.Start(a.sup.Context())

	if a.srvCfg.Addr != "" {
		srvCfg := a.srvCfg
		handler := a.api.Router()
		// A failed listen (port still held by a previous instance) is retried.
		a.sup.GoRestart("http.server", func(c context.Context) error {
			return httpapi.Serve(c, srvCfg, handler, a.log.With(logx.String("comp", "http")))
		}, time.Second, 30*time.Second)
	} else {
		a.log.Warn("http.addr empty; API disabled")
	}

	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		lastApplied := a.cfgm.Get()
		for {
			select {
			case <-c.Done():
				return
			case newCfg, ok := <-sub:
				if !ok {
					return
				}
				// Coalesce bursts: keep only the latest config in the channel.
				for drained := false; !drained; {
					select {
					case newer := <-sub:
						if newer != nil {
							newCfg = newer
						}
					default:
						drained = true
					}
				}
				a.applyConfig(c, lastApplied, newCfg)
				lastApplied = newCfg
			}
		}
	})

	a.sup.Go("config.watch", func(c context.Context) error {
		return a.cfgm.Watch(c)
	})

	a.log.Info("app started", logx.String("config", a.cfgm.Path()), logx.String("addr", a.srvCfg.Addr))
	return nil
}

func (a *App) applyConfig(c context.Context, oldCfg, newCfg *config.Config) {
	sections, attrs := config.SummarizeConfigChange(oldCfg, newCfg)
	if len(sections) == 0 {
		a.log.Info("config reloaded (no changes)")
		return
	}
	for _, s := range sections {
		switch s {
		case "storage", "http":
			a.log.Warn(s + " config changed; restart required for changes to take effect")
		}
	}

	a.logs.Apply(mapLogConfig(newCfg))

	if waCfg, creds, err := mapWhatsAppConfig(newCfg); err != nil {
		a.log.Warn("invalid whatsapp config; keeping previous", logx.Err(err))
	} else {
		a.wa.Apply(waCfg)
		a.creds.Set(creds)
	}

	if genCfg, err := mapGeneratorConfig(newCfg); err != nil {
		a.log.Warn("invalid ai config; keeping previous", logx.Err(err))
	} else {
		a.gen.Apply(genCfg)
	}
	a.agents.Replace(mapAgents(newCfg))

	if set, err := mapBroadcastSettings(newCfg); err != nil {
		a.log.Warn("invalid broadcast config; keeping previous", logx.Err(err))
	} else {
		a.orch.Apply(set)
	}

	if svcCfg, err := mapServiceConfig(newCfg); err != nil {
		a.log.Warn("invalid broadcast job config; keeping previous", logx.Err(err))
	} else {
		prev := a.jobs.Enabled()
		a.jobs.Apply(svcCfg)
		switch {
		case prev && !svcCfg.Enabled:
			a.log.Info("broadcast jobs disabled via config")
			stopCtx, cancel := context.WithTimeout(c, 3*time.Second)
			a.jobs.Stop(stopCtx)
			cancel()
		case !prev && svcCfg.Enabled:
			a.log.Info("broadcast jobs enabled via config")
			a.jobs.Start(c)
		}
	}

	if entries, err := schedule.FromConfig(newCfg.Schedules); err != nil {
		a.log.Warn("invalid schedules; keeping previous", logx.Err(err))
	} else if err := a.sched.Apply(entries); err != nil {
		a.log.Warn("schedules not applied", logx.Err(err))
	}

	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	a.log.Info("config reloaded", fields...)
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))

	// Cancel first so background loops and the HTTP server start unwinding.
	a.sup.Cancel()

	// step bounds one shutdown stage so a stuck component cannot stall the rest.
	step := func(name string, max time.Duration, fn func(context.Context) error) {
		start := time.Now()
		stepCtx := ctx
		if max > 0 {
			if dl, ok := ctx.Deadline(); ok {
				if rem := time.Until(dl); rem < max {
					max = rem
				}
			}
			var cancel context.CancelFunc
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
			}
			a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
		case <-stepCtx.Done():
			a.log.Warn("stop step deadline reached (continuing)",
				logx.String("name", name),
				logx.Err(stepCtx.Err()),
				logx.Duration("elapsed", time.Since(start)),
			)
		}
	}

	step("schedule", 2*time.Second, func(c context.Context) error { a.sched.Stop(c); return nil })
	step("jobs", 5*time.Second, func(c context.Context) error { a.jobs.Stop(c); return nil })
	step("supervisor", a.srvCfg.ShutdownTimeout+time.Second, func(c context.Context) error { return a.sup.Wait(c) })
	step("storage", time.Second, func(c context.Context) error { return a.store.Close() })

	a.log.Info("stopped")
	if a.logs != nil {
		_ = a.logs.Close()
	}
	return nil
}
