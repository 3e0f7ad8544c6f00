package ops

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"isthisai/internal/engine"
	"isthisai/internal/eventbus"
	"isthisai/internal/ratelimit"
)

var (
	jobsCompleted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "isthisai_jobs_completed_total",
		Help: "Jobs executed successfully, by kind.",
	}, []string{"kind"})

	jobsFailed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "isthisai_jobs_failed_total",
		Help: "Jobs that ended in an error, by kind.",
	}, []string{"kind"})

	jobDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "isthisai_job_duration_seconds",
		Help:    "Job execution time, by kind.",
		Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
	}, []string{"kind"})

	pollPages = promauto.NewCounter(prometheus.CounterOpts{
		Name: "isthisai_poll_pages_total",
		Help: "Non-empty feed pages processed.",
	})

	commentsMatched = promauto.NewCounter(prometheus.CounterOpts{
		Name: "isthisai_comments_matched_total",
		Help: "Comments that carried the trigger phrase.",
	})

	pollCycles = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "isthisai_poll_cycles_total",
		Help: "Poll cycles ended, by reason.",
	}, []string{"reason"})

	replies = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "isthisai_replies_total",
		Help: "Replies posted; fallback replies are labeled.",
	}, []string{"fallback"})

	reactsSkipped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "isthisai_reacts_skipped_total",
		Help: "React jobs skipped because the comment was already answered.",
	})
)

// One ops service serves one engine and one bucket per process; the gauge
// closures bind to the instances passed to the first New.
var gaugeOnce sync.Once

func registerGauges(eng *engine.Service, bucket *ratelimit.Bucket) {
	gaugeOnce.Do(func() {
		promauto.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "isthisai_queue_length",
			Help: "Jobs currently waiting in the priority queue.",
		}, func() float64 {
			return float64(eng.Snapshot().QueueLen)
		})
		promauto.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "isthisai_poll_in_flight",
			Help: "1 while a poll cycle is active.",
		}, func() float64 {
			if eng.Snapshot().PollInFlight {
				return 1
			}
			return 0
		})
		promauto.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "isthisai_bucket_tokens",
			Help: "Tokens currently available in the shared feed rate bucket.",
		}, func() float64 {
			return bucket.SnapshotNow().Tokens
		})
	})
}

// record maps one bus event onto the Prometheus counters. Unknown event
// types and payloads are ignored.
func record(e eventbus.Event) {
	switch e.Type {
	case "job.completed":
		if je, ok := e.Data.(engine.JobEvent); ok {
			jobsCompleted.WithLabelValues(je.Kind).Inc()
			jobDuration.WithLabelValues(je.Kind).Observe(je.Duration.Seconds())
		}
	case "job.failed":
		if je, ok := e.Data.(engine.JobEvent); ok {
			jobsFailed.WithLabelValues(je.Kind).Inc()
			jobDuration.WithLabelValues(je.Kind).Observe(je.Duration.Seconds())
		}
	case "poll.page":
		pollPages.Inc()
		if pe, ok := e.Data.(engine.PollEvent); ok {
			commentsMatched.Add(float64(pe.Matched))
		}
	case "poll.cycle_end":
		if pe, ok := e.Data.(engine.PollEvent); ok {
			pollCycles.WithLabelValues(pe.Reason).Inc()
		}
	case "react.replied":
		if re, ok := e.Data.(engine.ReactEvent); ok {
			if re.Fallback {
				replies.WithLabelValues("true").Inc()
			} else {
				replies.WithLabelValues("false").Inc()
			}
		}
	case "react.skipped":
		reactsSkipped.Inc()
	}
}
