package engine

import "time"

// Config controls the dispatch engine.
//
// The app layer maps config.poll and config.queue into this struct; the
// engine never reads the config file itself.
type Config struct {
	// Schedule is the poll cadence: a duration, HH:MM, or cron spec.
	Schedule string

	// PageLimit is the feed page size. A full page chains another Poll job
	// within the same cycle.
	PageLimit int

	// Trigger is the phrase (matched case-insensitively) that marks a
	// comment for reaction.
	Trigger string

	// MinWordsWarning adds a short-content caveat to replies about posts
	// below this many words.
	MinWordsWarning int

	Workers       int
	PollPriority  int
	ReactPriority int

	// PopTimeout bounds how long a worker blocks on an empty queue before
	// re-checking shutdown.
	PopTimeout time.Duration

	// JobTimeout bounds a single job execution.
	JobTimeout time.Duration
}

// JobEvent is published on the bus as "job.completed" / "job.failed".
type JobEvent struct {
	Kind       string        `json:"kind"`
	Seq        uint64        `json:"seq"`
	Priority   int           `json:"priority"`
	QueueDelay time.Duration `json:"queue_delay"`
	Duration   time.Duration `json:"duration"`
	Error      string        `json:"error,omitempty"`
}

// PollEvent is published as "poll.page" after a non-empty page and as
// "poll.cycle_end" when a cycle finishes.
type PollEvent struct {
	Fetched  int    `json:"fetched"`
	Matched  int    `json:"matched"`
	Enqueued int    `json:"enqueued"`
	Cursor   string `json:"cursor,omitempty"`
	Reason   string `json:"reason,omitempty"` // cycle_end: "empty" | "drained" | "error"
}

// ReactEvent is published as "react.replied" / "react.skipped".
type ReactEvent struct {
	CommentID   string  `json:"comment_id"`
	Probability float64 `json:"probability,omitempty"`
	Band        string  `json:"band,omitempty"`
	Words       int     `json:"words,omitempty"`
	Fallback    bool    `json:"fallback,omitempty"`
	Reason      string  `json:"reason,omitempty"` // skipped: "already_processed"
}

// Snapshot is a lightweight view for diagnostics and /healthz.
type Snapshot struct {
	Running      bool   `json:"running"`
	Workers      int    `json:"workers"`
	Schedule     string `json:"schedule"`
	Trigger      string `json:"trigger"`
	QueueLen     int    `json:"queue_len"`
	JobsQueued   uint64 `json:"jobs_queued"`
	PollInFlight bool   `json:"poll_in_flight"`

	PollPages     uint64 `json:"poll_pages"`
	CyclesEnded   uint64 `json:"cycles_ended"`
	Replies       uint64 `json:"replies"`
	ReactsSkipped uint64 `json:"reacts_skipped"`
	JobsFailed    uint64 `json:"jobs_failed"`
}
