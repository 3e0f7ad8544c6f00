package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"isthisai/internal/detector"
	"isthisai/internal/eventbus"
	"isthisai/internal/reddit"
	"isthisai/internal/storage"
	logx "isthisai/pkg/logx"

	rtsup "isthisai/internal/runtime/supervisor"
)

// Service owns the scheduler loop, the worker loops, and the shared queue
// and in-flight guard they coordinate through.
type Service struct {
	mu   sync.Mutex
	cfg  Config
	spec ParsedSpec

	log logx.Logger
	bus eventbus.Bus

	feed       reddit.Client
	classifier detector.Classifier
	store      storage.Store

	queue *Queue
	flag  inFlightFlag

	// reload wakes the scheduler wait after a schedule change.
	reload chan struct{}

	sup      *rtsup.Supervisor
	stopCh   chan struct{}
	stopDone chan struct{}

	pollPages     uint64
	cyclesEnded   uint64
	replies       uint64
	reactsSkipped uint64
	jobsFailed    uint64
}

func New(cfg Config, feed reddit.Client, classifier detector.Classifier, store storage.Store, log logx.Logger, bus eventbus.Bus) (*Service, error) {
	if feed == nil {
		return nil, fmt.Errorf("engine: feed client is required")
	}
	if classifier == nil {
		return nil, fmt.Errorf("engine: classifier is required")
	}
	if store == nil {
		return nil, fmt.Errorf("engine: store is required")
	}
	if strings.TrimSpace(cfg.Trigger) == "" {
		return nil, fmt.Errorf("engine: trigger is required")
	}
	spec, err := ParseSchedule(cfg.Schedule)
	if err != nil {
		return nil, fmt.Errorf("engine: %w", err)
	}
	if cfg.PollPriority < 0 || cfg.ReactPriority < 0 {
		return nil, fmt.Errorf("engine: priorities must be >= 0")
	}
	if cfg.PollPriority == cfg.ReactPriority {
		return nil, fmt.Errorf("engine: poll and react priorities must differ")
	}
	if cfg.PageLimit <= 0 {
		cfg.PageLimit = 100
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.MinWordsWarning < 0 {
		cfg.MinWordsWarning = 0
	}
	if cfg.PopTimeout <= 0 {
		cfg.PopTimeout = 500 * time.Millisecond
	}
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = 2 * time.Minute
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		cfg:        cfg,
		spec:       spec,
		log:        log,
		bus:        bus,
		feed:       feed,
		classifier: classifier,
		store:      store,
		reload:     make(chan struct{}, 1),
	}, nil
}

// Start is idempotent. The first tick fires immediately.
func (s *Service) Start(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	s.mu.Lock()
	if s.stopCh != nil {
		// If stopping, wait for it to finish before restarting.
		done := s.stopDone
		s.mu.Unlock()
		if done == nil {
			return
		}
		select {
		case <-done:
		case <-ctx.Done():
			return
		}
		s.mu.Lock()
		if s.stopCh != nil {
			s.mu.Unlock()
			return
		}
	}

	cfg := s.cfg
	spec := s.spec
	s.queue = NewQueue()
	s.flag.Clear()
	s.stopCh = make(chan struct{})
	s.stopDone = nil
	stopCh := s.stopCh
	queue := s.queue

	s.sup = rtsup.New(ctx,
		rtsup.WithLogger(s.log.With(logx.String("comp", "engine"))),
		// Engine loops restart on failure rather than killing the app.
		rtsup.WithCancelOnError(false),
	)
	sup := s.sup
	s.mu.Unlock()

	sup.GoRestart("scheduler", func(c context.Context) error {
		s.schedule(c, stopCh, queue)
		return exitCause(c, stopCh, "scheduler")
	}, rtsup.WithPublishFirstError(true))

	for i := 0; i < cfg.Workers; i++ {
		idx := i
		sup.GoRestart(fmt.Sprintf("worker.%d", idx), func(c context.Context) error {
			s.worker(c, stopCh, queue, idx)
			return exitCause(c, stopCh, "worker")
		}, rtsup.WithPublishFirstError(true))
	}

	s.log.Info("engine started",
		logx.Int("workers", cfg.Workers),
		logx.String("schedule", spec.String()),
		logx.String("trigger", cfg.Trigger),
		logx.Int("page_limit", cfg.PageLimit),
	)
}

// exitCause distinguishes a clean shutdown exit from an unexpected loop
// return after Start's loops come back.
func exitCause(ctx context.Context, stopCh <-chan struct{}, name string) error {
	select {
	case <-stopCh:
		return context.Canceled
	default:
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return errors.New(name + " exited unexpectedly")
}

// Stop shuts the loops down softly: a job already being processed runs to
// completion, bounded by ctx. Once ctx expires, in-flight work is canceled.
func (s *Service) Stop(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	s.mu.Lock()
	if s.stopCh == nil {
		s.mu.Unlock()
		return
	}
	if s.stopDone != nil {
		done := s.stopDone
		s.mu.Unlock()
		select {
		case <-done:
		case <-ctx.Done():
		}
		return
	}
	done := make(chan struct{})
	s.stopDone = done
	close(s.stopCh)
	sup := s.sup
	s.mu.Unlock()

	start := time.Now()
	if err := sup.Wait(ctx); err != nil && ctx.Err() != nil {
		s.log.Warn("engine stop deadline hit; canceling in-flight work", logx.Err(ctx.Err()))
		sup.Cancel()
		_ = sup.Wait(context.Background())
	}

	s.mu.Lock()
	s.queue = nil
	s.stopCh = nil
	s.stopDone = nil
	s.sup = nil
	s.mu.Unlock()
	s.flag.Clear()
	close(done)

	s.log.Info("engine stopped", logx.Duration("took", time.Since(start)))
}

// Apply updates the hot-reloadable knobs: schedule, trigger and the
// short-content threshold. Worker count, priorities and timeouts take
// effect on the next restart.
func (s *Service) Apply(cfg Config) error {
	if strings.TrimSpace(cfg.Trigger) == "" {
		return fmt.Errorf("engine: trigger is required")
	}
	spec, err := ParseSchedule(cfg.Schedule)
	if err != nil {
		return fmt.Errorf("engine: %w", err)
	}

	s.mu.Lock()
	prev := s.cfg
	prevSched := s.spec.String()
	s.cfg.Schedule = cfg.Schedule
	s.cfg.Trigger = cfg.Trigger
	s.cfg.MinWordsWarning = cfg.MinWordsWarning
	s.spec = spec
	s.mu.Unlock()

	if prevSched != spec.String() {
		s.log.Info("poll schedule updated", logx.String("schedule", spec.String()))
		s.kick()
	}
	if prev.Trigger != cfg.Trigger {
		s.log.Info("trigger updated", logx.String("trigger", cfg.Trigger))
	}
	if prev.MinWordsWarning != cfg.MinWordsWarning {
		s.log.Debug("short-content threshold updated", logx.Int("min_words", cfg.MinWordsWarning))
	}
	if prev.Workers != cfg.Workers || prev.PollPriority != cfg.PollPriority ||
		prev.ReactPriority != cfg.ReactPriority || prev.PopTimeout != cfg.PopTimeout ||
		prev.JobTimeout != cfg.JobTimeout || prev.PageLimit != cfg.PageLimit {
		s.log.Debug("engine change deferred until restart")
	}
	return nil
}

func (s *Service) kick() {
	select {
	case s.reload <- struct{}{}:
	default:
	}
}

// Snapshot is safe to call whether or not the engine is running.
func (s *Service) Snapshot() Snapshot {
	s.mu.Lock()
	cfg := s.cfg
	spec := s.spec
	q := s.queue
	running := s.stopCh != nil && s.stopDone == nil
	s.mu.Unlock()

	snap := Snapshot{
		Running:       running,
		Workers:       cfg.Workers,
		Schedule:      spec.String(),
		Trigger:       cfg.Trigger,
		PollInFlight:  s.flag.Active(),
		PollPages:     atomic.LoadUint64(&s.pollPages),
		CyclesEnded:   atomic.LoadUint64(&s.cyclesEnded),
		Replies:       atomic.LoadUint64(&s.replies),
		ReactsSkipped: atomic.LoadUint64(&s.reactsSkipped),
		JobsFailed:    atomic.LoadUint64(&s.jobsFailed),
	}
	if q != nil {
		snap.QueueLen = q.Len()
		snap.JobsQueued = q.Seq()
	}
	return snap
}

// Supervisor returns the engine's internal supervisor (nil if not started).
// Used for operational visibility.
func (s *Service) Supervisor() *rtsup.Supervisor {
	s.mu.Lock()
	sup := s.sup
	s.mu.Unlock()
	return sup
}

func (s *Service) publish(typ string, data any) {
	if s.bus != nil {
		s.bus.Publish(eventbus.Event{Type: typ, Time: time.Now(), Data: data})
	}
}
