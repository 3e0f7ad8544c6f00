package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"isthisai/internal/detector"
	"isthisai/internal/engine"
	"isthisai/internal/eventbus"
	"isthisai/internal/observability/ops"
	"isthisai/internal/ratelimit"
	"isthisai/internal/reddit"
	"isthisai/internal/storage"
	logx "isthisai/pkg/logx"
)

type App struct {
	cfgPath string

	cfgm *ConfigManager
	sup  *Supervisor

	log  logx.Logger
	logs *logx.Service
	bus  eventbus.Bus

	store  storage.Store
	driver string
	bucket *ratelimit.Bucket

	feed       reddit.Client
	classifier detector.Classifier

	engine *engine.Service
	ops    *ops.Service
}

func New(cfgPath string) (*App, error) {
	cfgm := NewConfigManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}
	// Configuration errors are fatal before any scheduling starts.
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if _, err := engine.ParseSchedule(cfg.Poll.Schedule); err != nil {
		return nil, fmt.Errorf("poll.schedule: %w", err)
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

	bus := eventbus.New()

	sc, err := mapStorageConfig(cfg)
	if err != nil {
		return nil, err
	}
	store, err := storage.Open(sc, log.With(logx.String("comp", "storage")))
	if err != nil {
		return nil, err
	}
	log.Info("storage ready", logx.String("driver", sc.Driver))

	// One shared bucket for every outbound feed call:
	// capacity = calls_per_minute, refill = calls_per_minute/60 per second.
	bucket := ratelimit.PerMinute(cfg.Reddit.CallsPerMinute)

	rcfg, err := mapRedditConfig(cfg)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	feed, err := reddit.NewHTTP(rcfg, bucket, log.With(logx.String("comp", "reddit")))
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	dcfg, err := mapDetectorConfig(cfg)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	classifier, err := detector.NewHTTP(dcfg, log.With(logx.String("comp", "detector")))
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	engCfg, err := mapEngineConfig(cfg)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	eng, err := engine.New(engCfg, feed, classifier, store, log.With(logx.String("comp", "engine")), bus)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	opsCfg, err := mapOpsConfig(cfg)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	opsSvc := ops.New(opsCfg, eng, bucket, sc.Driver, log.With(logx.String("comp", "ops")), bus)

	return &App{
		cfgPath:    cfgPath,
		cfgm:       cfgm,
		log:        log,
		logs:       logSvc,
		bus:        bus,
		store:      store,
		driver:     sc.Driver,
		bucket:     bucket,
		feed:       feed,
		classifier: classifier,
		engine:     eng,
		ops:        opsSvc,
	}, nil
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

func (a *App) Start(ctx context.Context) error {
	a.sup = NewSupervisor(ctx, WithLogger(a.log), WithCancelOnError(true))

	// transactional config reload: validate before commit/publish
	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(func(c context.Context, cfg *Config) error {
		if err := cfg.Validate(); err != nil {
			return err
		}
		// Validate only requires the schedule to be non-empty; make sure it
		// parses before the engine sees it.
		if _, err := engine.ParseSchedule(cfg.Poll.Schedule); err != nil {
			return fmt.Errorf("poll.schedule: %w", err)
		}
		return nil
	})

	// Engine runs under the app context so a fatal app error also unwinds
	// the scheduler and workers.
	a.engine.Start(a.sup.Context())

	if a.ops != nil && a.ops.Enabled() {
		a.ops.Start(a.sup.Context())
	}

	// Optional: log events for observability/debug (components also subscribe themselves).
	if a.bus != nil {
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
					// Keep this debug-level; poll events fire every cycle.
					a.log.Debug("event", logx.String("type", e.Type), logx.Time("time", e.Time))
				}
			}
		})
	}

	// hot reload config fan-out
	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		// Track last applied config to generate a safe diff summary for logx.
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
				sections, attrs := SummarizeConfigChange(lastApplied, newCfg)
				if len(sections) > 0 {
					fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
					a.log.Debug("config change summary", fields...)
				} else {
					a.log.Debug("config reload received, but no effective changes detected")
				}
				lastApplied = newCfg

				// Credentials, bucket rate, storage driver and queue shape are
				// bound at construction time.
				for _, s := range sections {
					switch s {
					case "reddit", "detector", "storage", "queue":
						a.log.Warn("section changed; restart required for it to take effect",
							logx.String("section", s))
					}
				}

				// apply logging updates
				a.logs.Apply(logx.Config{
					Level:   newCfg.Logging.Level,
					Console: newCfg.Logging.Console,
					File: logx.FileConfig{
						Enabled: newCfg.Logging.File.Enabled,
						Path:    newCfg.Logging.File.Path,
					},
				})

				// apply engine hot knobs (schedule, trigger, short-content threshold)
				if engCfg, err := mapEngineConfig(newCfg); err != nil {
					a.log.Warn("invalid poll config; keeping previous", logx.Any("err", err))
				} else if err := a.engine.Apply(engCfg); err != nil {
					a.log.Warn("engine rejected config; keeping previous", logx.Any("err", err))
				}

				// apply ops updates (live)
				if a.ops != nil {
					if opsCfg, err := mapOpsConfig(newCfg); err != nil {
						a.log.Warn("invalid ops config; keeping previous", logx.Any("err", err))
					} else {
						a.ops.Reconfigure(c, opsCfg)
					}
				}

				// Keep the final log line concise (details are in debug logs).
				if len(sections) > 0 {
					fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
					a.log.Info("config reloaded", fields...)
				} else {
					a.log.Info("config reloaded (no changes)")
				}
			}
		}
	})

	a.sup.Go("config.watch", func(c context.Context) error {
		return a.cfgm.Watch(c)
	})

	a.log.Info("app started")
	return nil
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))

	// Helper: run a shutdown step with an upper bound so one component can't stall the whole stop.
	step := func(name string, max time.Duration, fn func(context.Context) error) {
		start := time.Now()
		a.log.Debug("stop step begin", logx.String("name", name), logx.Duration("max", max))

		stepCtx := ctx
		var cancel context.CancelFunc
		if max > 0 {
			// respect the caller's deadline; never extend it
			if dl, ok := ctx.Deadline(); ok {
				rem := time.Until(dl)
				if rem <= 0 {
					max = 0
				} else if rem < max {
					max = rem
				}
			}
			if max > 0 {
				stepCtx, cancel = context.WithTimeout(ctx, max)
				defer cancel()
			}
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
				a.log.Warn("stop step error", logx.String("name", name), logx.String("err", err.Error()))
			}
			took := time.Since(start)
			if took >= 500*time.Millisecond {
				a.log.Info("stop step end", logx.String("name", name), logx.Duration("took", took))
			} else {
				a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", took))
			}
		case <-stepCtx.Done():
			// Contract: fn MUST honor stepCtx and return promptly. If it doesn't, log a leak signal.
			elapsed := time.Since(start)
			a.log.Warn(
				"stop step deadline reached (continuing)",
				logx.String("name", name),
				logx.String("err", stepCtx.Err().Error()),
				logx.Duration("elapsed", elapsed),
			)
			// Leak logging: observe when/if the step eventually finishes.
			go func() {
				err := <-done
				took := time.Since(start)
				if err != nil {
					a.log.Warn("stop step finished after deadline", logx.String("name", name), logx.String("err", err.Error()), logx.Duration("took", took))
				} else {
					a.log.Info("stop step finished after deadline", logx.String("name", name), logx.Duration("took", took))
				}
			}()
		}
	}

	// Engine stops before the run context is canceled: a job already being
	// processed runs to completion within the step bound.
	step("engine", 5*time.Second, func(c context.Context) error { a.engine.Stop(c); return nil })
	step("ops", 2*time.Second, func(c context.Context) error {
		if a.ops != nil {
			a.ops.Stop(c)
		}
		return nil
	})

	// Now unwind the app loops (config watch/reload, event log).
	a.sup.Cancel()
	step("supervisor", 2*time.Second, func(c context.Context) error { return a.sup.Wait(c) })

	// Storage closes last; nothing touches it once the engine is down.
	step("storage", 1*time.Second, func(c context.Context) error { return a.store.Close() })

	a.log.Info("stopped")
	if a.logs != nil {
		_ = a.logs.Close()
	}
	return nil
}

func mapEngineConfig(cfg *Config) (engine.Config, error) {
	if cfg == nil {
		return engine.Config{}, fmt.Errorf("config is nil")
	}
	popTimeout, err := parseDurationOrDefault("queue.pop_timeout", cfg.Queue.PopTimeout, 500*time.Millisecond)
	if err != nil {
		return engine.Config{}, err
	}
	jobTimeout, err := parseDurationOrDefault("queue.job_timeout", cfg.Queue.JobTimeout, 2*time.Minute)
	if err != nil {
		return engine.Config{}, err
	}
	return engine.Config{
		Schedule:        cfg.Poll.Schedule,
		PageLimit:       cfg.Poll.PageLimit,
		Trigger:         cfg.Poll.Trigger,
		MinWordsWarning: cfg.Poll.MinWordsWarning,
		Workers:         cfg.Queue.Workers,
		PollPriority:    cfg.Queue.PollPriority,
		ReactPriority:   cfg.Queue.ReactPriority,
		PopTimeout:      popTimeout,
		JobTimeout:      jobTimeout,
	}, nil
}

func mapRedditConfig(cfg *Config) (reddit.Config, error) {
	if cfg == nil {
		return reddit.Config{}, fmt.Errorf("config is nil")
	}
	reqTimeout, err := parseDurationOrDefault("reddit.request_timeout", cfg.Reddit.RequestTimeout, 15*time.Second)
	if err != nil {
		return reddit.Config{}, err
	}
	cacheTTL, err := parseDurationOrDefault("reddit.parent_cache_ttl", cfg.Reddit.ParentCacheTTL, 10*time.Minute)
	if err != nil {
		return reddit.Config{}, err
	}
	return reddit.Config{
		ClientID:       strings.TrimSpace(cfg.Reddit.ClientID),
		ClientSecret:   strings.TrimSpace(cfg.Reddit.ClientSecret),
		Username:       strings.TrimSpace(cfg.Reddit.Username),
		Password:       cfg.Reddit.Password,
		UserAgent:      strings.TrimSpace(cfg.Reddit.UserAgent),
		Subreddit:      strings.TrimSpace(cfg.Reddit.Subreddit),
		RequestTimeout: reqTimeout,
		ParentCacheTTL: cacheTTL,
	}, nil
}

func mapDetectorConfig(cfg *Config) (detector.Config, error) {
	if cfg == nil {
		return detector.Config{}, fmt.Errorf("config is nil")
	}
	reqTimeout, err := parseDurationOrDefault("detector.request_timeout", cfg.Detector.RequestTimeout, 30*time.Second)
	if err != nil {
		return detector.Config{}, err
	}
	return detector.Config{
		Endpoint:       strings.TrimSpace(cfg.Detector.Endpoint),
		Token:          strings.TrimSpace(cfg.Detector.Token),
		Model:          strings.TrimSpace(cfg.Detector.Model),
		RatePerSec:     cfg.Detector.RatePerSec,
		RequestTimeout: reqTimeout,
		MaxInputBytes:  cfg.Detector.MaxInputBytes,
	}, nil
}

func mapOpsConfig(cfg *Config) (ops.Config, error) {
	if cfg == nil {
		return ops.Config{}, fmt.Errorf("config is nil")
	}
	readTimeout, err := parseDurationField("ops.read_timeout", cfg.Ops.ReadTimeout)
	if err != nil {
		return ops.Config{}, err
	}
	// WriteTimeout stays 0 unless set: pprof profile captures run 30s+.
	writeTimeout, err := parseDurationField("ops.write_timeout", cfg.Ops.WriteTimeout)
	if err != nil {
		return ops.Config{}, err
	}
	idleTimeout, err := parseDurationField("ops.idle_timeout", cfg.Ops.IdleTimeout)
	if err != nil {
		return ops.Config{}, err
	}
	return ops.Config{
		Enabled:       cfg.Ops.Enabled,
		Addr:          strings.TrimSpace(cfg.Ops.Addr),
		Token:         strings.TrimSpace(cfg.Ops.Token),
		AllowInsecure: cfg.Ops.AllowInsecure,
		Pprof:         cfg.Ops.Pprof,
		ReadTimeout:   readTimeout,
		WriteTimeout:  writeTimeout,
		IdleTimeout:   idleTimeout,
	}, nil
}
