package engine

import (
	"sync"

	"github.com/htql-dev/htql/internal/tree"
)

// includeCompletion is the settled result of one include fetch. Fetch
// goroutines only produce raw text; parsing and splicing happen on the
// host turn, because the arena is single-writer.
type includeCompletion struct {
	node  tree.NodeID
	token string
	src   string
	err   error
}

// completionQueue is a thread-safe FIFO for include completions.
//
// Fetch goroutines enqueue from arbitrary goroutines; the runtime drains on
// the host execution turn. The signal channel (buffered, size 1, coalescing)
// lets Settle wait for arrivals without spinning.
type completionQueue struct {
	mu      sync.Mutex
	pending []includeCompletion
	signal  chan struct{}
}

func newCompletionQueue() *completionQueue {
	return &completionQueue{signal: make(chan struct{}, 1)}
}

// push appends a completion. Safe from any goroutine.
func (q *completionQueue) push(c includeCompletion) {
	q.mu.Lock()
	q.pending = append(q.pending, c)
	q.mu.Unlock()

	select {
	case q.signal <- struct{}{}:
	default:
	}
}

// tryPop removes and returns the front completion without blocking.
func (q *completionQueue) tryPop() (includeCompletion, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.pending) == 0 {
		return includeCompletion{}, false
	}
	c := q.pending[0]
	q.pending = q.pending[1:]
	return c, true
}

// wait returns the arrival signal channel.
func (q *completionQueue) wait() <-chan struct{} {
	return q.signal
}
