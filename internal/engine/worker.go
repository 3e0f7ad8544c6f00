package engine

import (
	"context"
	"fmt"
	"runtime/debug"
	"strings"
	"sync/atomic"
	"time"

	logx "isthisai/pkg/logx"
)

// worker pops and executes jobs until shutdown. Collaborator errors are
// caught at this boundary; they never take the loop down.
func (s *Service) worker(ctx context.Context, stopCh <-chan struct{}, queue *Queue, idx int) {
	log := s.log.With(logx.Int("worker", idx))
	for {
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		default:
		}

		s.mu.Lock()
		popTimeout := s.cfg.PopTimeout
		s.mu.Unlock()

		j, ok := queue.Pop(popTimeout)
		if !ok {
			continue
		}
		s.execute(ctx, queue, j, log)
	}
}

func (s *Service) execute(ctx context.Context, queue *Queue, j Job, log logx.Logger) {
	start := time.Now()
	queueDelay := start.Sub(j.enqueuedAt)

	s.mu.Lock()
	cfg := s.cfg
	s.mu.Unlock()

	jctx, cancel := context.WithTimeout(ctx, cfg.JobTimeout)
	err := s.run(jctx, queue, cfg, j, log)
	cancel()

	dur := time.Since(start)
	kind := j.Payload.Kind()
	if err != nil {
		atomic.AddUint64(&s.jobsFailed, 1)
		if _, isPoll := j.Payload.(Poll); isPoll {
			// A failed poll ends the cycle; the next scheduler tick starts
			// a fresh one. React failures are dropped without retry.
			s.cycleEnd("error")
		}
		log.Warn("job failed",
			logx.String("kind", kind),
			logx.Uint64("seq", j.Seq),
			logx.Duration("queue_delay", queueDelay),
			logx.Duration("dur", dur),
			logx.Err(err),
		)
		s.publish("job.failed", JobEvent{Kind: kind, Seq: j.Seq, Priority: j.Priority, QueueDelay: queueDelay, Duration: dur, Error: err.Error()})
		return
	}

	log.Debug("job completed",
		logx.String("kind", kind),
		logx.Uint64("seq", j.Seq),
		logx.Duration("queue_delay", queueDelay),
		logx.Duration("dur", dur),
	)
	s.publish("job.completed", JobEvent{Kind: kind, Seq: j.Seq, Priority: j.Priority, QueueDelay: queueDelay, Duration: dur})
}

// run dispatches by job kind, converting panics into errors so a bad page
// or reply never kills a worker.
func (s *Service) run(ctx context.Context, queue *Queue, cfg Config, j Job, log logx.Logger) (err error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("job panicked", logx.String("kind", j.Payload.Kind()), logx.Any("panic", r), logx.Stack(string(debug.Stack())))
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	switch p := j.Payload.(type) {
	case Poll:
		return s.handlePoll(ctx, queue, cfg)
	case React:
		return s.handleReact(ctx, cfg, p.CommentID)
	default:
		return fmt.Errorf("unknown job kind %q", j.Payload.Kind())
	}
}

// handlePoll runs one page of a poll cycle.
func (s *Service) handlePoll(ctx context.Context, queue *Queue, cfg Config) error {
	cursor, err := s.store.Cursor(ctx)
	if err != nil {
		return fmt.Errorf("read cursor: %w", err)
	}
	items, err := s.feed.Stream(ctx, cursor, cfg.PageLimit)
	if err != nil {
		return fmt.Errorf("fetch page: %w", err)
	}
	if len(items) == 0 {
		s.cycleEnd("empty")
		return nil
	}

	// Checkpoint the newest id before queueing any react work, so a crash
	// mid-page cannot replay the whole page on restart. Items skipped by a
	// later failure in this page are lost to the cursor; accepted tradeoff.
	if err := s.store.SetCursor(ctx, items[0].Fullname); err != nil {
		return fmt.Errorf("advance cursor: %w", err)
	}

	trigger := strings.ToLower(cfg.Trigger)
	matched, enqueued := 0, 0
	for i := len(items) - 1; i >= 0; i-- { // oldest first
		c := items[i]
		if !strings.Contains(strings.ToLower(c.Body), trigger) {
			continue
		}
		matched++
		done, err := s.store.HasProcessed(ctx, c.ID)
		if err != nil {
			return fmt.Errorf("ledger check %s: %w", c.ID, err)
		}
		if done {
			continue
		}
		queue.Push(cfg.ReactPriority, React{CommentID: c.ID})
		enqueued++
	}

	atomic.AddUint64(&s.pollPages, 1)
	s.publish("poll.page", PollEvent{Fetched: len(items), Matched: matched, Enqueued: enqueued, Cursor: items[0].Fullname})
	s.log.Debug("poll page processed",
		logx.Int("fetched", len(items)),
		logx.Int("matched", matched),
		logx.Int("enqueued", enqueued),
		logx.String("cursor", items[0].Fullname),
	)

	if len(items) == cfg.PageLimit {
		// Full page: chain the next one within the same cycle.
		queue.Push(cfg.PollPriority, Poll{})
		return nil
	}
	s.cycleEnd("drained")
	return nil
}

// handleReact classifies one comment's parent post and replies to it.
func (s *Service) handleReact(ctx context.Context, cfg Config, commentID string) error {
	done, err := s.store.HasProcessed(ctx, commentID)
	if err != nil {
		return fmt.Errorf("ledger check: %w", err)
	}
	if done {
		atomic.AddUint64(&s.reactsSkipped, 1)
		s.publish("react.skipped", ReactEvent{CommentID: commentID, Reason: "already_processed"})
		return nil
	}

	c, err := s.feed.Comment(ctx, commentID)
	if err != nil {
		return fmt.Errorf("fetch comment: %w", err)
	}
	post, err := s.feed.Parent(ctx, c)
	if err != nil {
		return fmt.Errorf("fetch parent: %w", err)
	}

	text := strings.TrimSpace(post.SelfText)
	if text == "" {
		if err := s.feed.Reply(ctx, c, fallbackReply); err != nil {
			return fmt.Errorf("post fallback: %w", err)
		}
		if err := s.store.MarkProcessed(ctx, commentID); err != nil {
			return fmt.Errorf("mark processed: %w", err)
		}
		atomic.AddUint64(&s.replies, 1)
		s.publish("react.replied", ReactEvent{CommentID: commentID, Fallback: true})
		s.log.Info("replied with fallback", logx.String("comment", commentID), logx.String("post", post.Fullname))
		return nil
	}

	words := len(strings.Fields(text))
	res, err := s.classifier.Classify(ctx, text)
	if err != nil {
		return fmt.Errorf("classify: %w", err)
	}
	body, band := composeReply(res.ProbabilityAI, words, cfg.MinWordsWarning)
	if err := s.feed.Reply(ctx, c, body); err != nil {
		return fmt.Errorf("post reply: %w", err)
	}
	// A crash between the reply above and the mark below replays the reply
	// on restart: the contract is at-least-once, not exactly-once.
	if err := s.store.MarkProcessed(ctx, commentID); err != nil {
		return fmt.Errorf("mark processed: %w", err)
	}

	atomic.AddUint64(&s.replies, 1)
	s.publish("react.replied", ReactEvent{CommentID: commentID, Probability: res.ProbabilityAI, Band: band, Words: words})
	s.log.Info("replied",
		logx.String("comment", commentID),
		logx.String("post", post.Fullname),
		logx.Float64("p_ai", res.ProbabilityAI),
		logx.String("band", band),
		logx.Int("words", words),
	)
	return nil
}

// cycleEnd clears the in-flight guard and records why the cycle stopped.
func (s *Service) cycleEnd(reason string) {
	s.flag.Clear()
	atomic.AddUint64(&s.cyclesEnded, 1)
	s.publish("poll.cycle_end", PollEvent{Reason: reason})
	s.log.Debug("poll cycle ended", logx.String("reason", reason))
}
