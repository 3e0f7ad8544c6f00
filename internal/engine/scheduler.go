package engine

import (
	"context"
	"time"

	logx "isthisai/pkg/logx"
)

// schedule is the sole producer of top-of-cycle Poll jobs. It ticks
// immediately on start, then waits out the configured cadence between
// ticks. A tick that finds the previous cycle still in flight is skipped,
// so a slow feed never stacks poll cycles.
func (s *Service) schedule(ctx context.Context, stopCh <-chan struct{}, queue *Queue) {
	log := s.log.With(logx.String("comp", "scheduler"))
	timer := time.NewTimer(time.Hour)
	defer timer.Stop()

	for {
		s.mu.Lock()
		spec := s.spec
		prio := s.cfg.PollPriority
		s.mu.Unlock()

		if s.flag.TrySet() {
			j := queue.Push(prio, Poll{})
			log.Debug("poll cycle enqueued", logx.Uint64("seq", j.Seq))
		} else {
			log.Debug("previous poll cycle still in flight; tick skipped")
		}

		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(spec.Wait(time.Now()))

		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case <-s.reload:
			// Schedule changed; re-tick now. The in-flight guard makes an
			// early tick harmless.
		case <-timer.C:
		}
	}
}
