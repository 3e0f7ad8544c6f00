package engine

import "time"

// Payload identifies the work a Job carries. It is a closed set: the
// scheduler produces Poll, and poll handling produces React.
type Payload interface {
	Kind() string
}

// Poll asks a worker to fetch the next page of the feed.
type Poll struct{}

// React asks a worker to classify and answer a single comment.
type React struct {
	CommentID string
}

func (Poll) Kind() string  { return "poll" }
func (React) Kind() string { return "react" }

// Job is a prioritized unit of work. Seq is assigned by the queue at push
// time from one monotone counter, so (Priority, Seq) is a strict total
// order and equal-priority jobs dequeue in push order.
type Job struct {
	Priority int
	Seq      uint64
	Payload  Payload

	enqueuedAt time.Time
}

// before reports dequeue order: lower priority first, then lower sequence.
func (j Job) before(other Job) bool {
	if j.Priority != other.Priority {
		return j.Priority < other.Priority
	}
	return j.Seq < other.Seq
}
