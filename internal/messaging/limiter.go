package messaging

import "sync"

// limiter bounds concurrent handler executions across a bus's consumers
// with a simple semaphore.
type limiter struct {
	semaphore chan struct{}
	running   int
	mu        sync.Mutex
}

func newLimiter(max int) *limiter {
	if max < 1 {
		max = 1
	}
	return &limiter{semaphore: make(chan struct{}, max)}
}

// do blocks until a slot is free, then runs fn.
func (l *limiter) do(fn func()) {
	l.semaphore <- struct{}{}
	l.mu.Lock()
	l.running++
	l.mu.Unlock()

	defer func() {
		l.mu.Lock()
		l.running--
		l.mu.Unlock()
		<-l.semaphore
	}()

	fn()
}

// inFlight returns the number of handlers currently executing.
func (l *limiter) inFlight() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.running
}
