// Package pipelinetest provides a controlling-thread stand-in for tests of
// code driven by the scheduler.
package pipelinetest

import (
	"sync"
	"testing"
	"time"
)

// DefaultTimeout bounds DrainUntil
const DefaultTimeout = 5 * time.Second

// Queue is a FIFO dispatcher drained by the test goroutine
type Queue struct {
	mu     sync.Mutex
	fns    []func()
	signal chan struct{}
}

func NewQueue() *Queue {
	return &Queue{signal: make(chan struct{}, 1)}
}

// Post is the Dispatcher
func (q *Queue) Post(fn func()) {
	q.mu.Lock()
	q.fns = append(q.fns, fn)
	q.mu.Unlock()
	select {
	case q.signal <- struct{}{}:
	default:
	}
}

// RunPending runs the queued notifications and returns how many ran
func (q *Queue) RunPending() int {
	q.mu.Lock()
	fns := q.fns
	q.fns = nil
	q.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
	return len(fns)
}

// DrainUntil runs notifications until cond holds
func (q *Queue) DrainUntil(t testing.TB, cond func() bool) {
	t.Helper()
	deadline := time.After(DefaultTimeout)
	for {
		q.RunPending()
		if cond() {
			return
		}
		select {
		case <-q.signal:
		case <-deadline:
			t.Fatal("timed out waiting for the scheduler")
		}
	}
}
