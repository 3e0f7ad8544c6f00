package engine

import (
	"container/heap"
	"sync"
	"time"
)

// Queue is a thread-safe priority queue of Jobs.
//
// Pop returns the job with the smallest (Priority, Seq); sequence numbers
// are assigned at Push under the queue lock, so equal-priority jobs come
// out strictly in push order no matter how producers interleave.
type Queue struct {
	mu    sync.Mutex
	items jobHeap
	seq   uint64

	// notify carries at most one pending wake-up. Pop re-signals after a
	// successful pop while items remain so concurrent waiters chain.
	notify chan struct{}
}

func NewQueue() *Queue {
	return &Queue{notify: make(chan struct{}, 1)}
}

// Push inserts a job without blocking and returns it with its assigned
// sequence number.
func (q *Queue) Push(priority int, p Payload) Job {
	q.mu.Lock()
	q.seq++
	j := Job{Priority: priority, Seq: q.seq, Payload: p, enqueuedAt: time.Now()}
	heap.Push(&q.items, j)
	q.mu.Unlock()

	q.signal()
	return j
}

// Pop removes and returns the smallest queued job. It blocks up to timeout
// and reports ok=false if nothing arrived, so callers can re-check their
// stop condition.
func (q *Queue) Pop(timeout time.Duration) (Job, bool) {
	deadline := time.Now().Add(timeout)
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			j := heap.Pop(&q.items).(Job)
			more := len(q.items) > 0
			q.mu.Unlock()
			if more {
				q.signal()
			}
			return j, true
		}
		q.mu.Unlock()

		if remain := time.Until(deadline); remain <= 0 {
			return Job{}, false
		}
		select {
		case <-q.notify:
		case <-timer.C:
			return Job{}, false
		}
	}
}

func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Seq returns the total number of jobs pushed so far.
func (q *Queue) Seq() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.seq
}

func (q *Queue) signal() {
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

type jobHeap []Job

func (h jobHeap) Len() int           { return len(h) }
func (h jobHeap) Less(i, j int) bool { return h[i].before(h[j]) }
func (h jobHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }

func (h *jobHeap) Push(x any) { *h = append(*h, x.(Job)) }

func (h *jobHeap) Pop() any {
	old := *h
	n := len(old)
	j := old[n-1]
	*h = old[:n-1]
	return j
}
