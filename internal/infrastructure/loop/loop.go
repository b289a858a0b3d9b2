// Package loop provides the single-threaded host event loop.
//
// All supervisor and bridge state is owned by the goroutine that drains the
// loop. Other goroutines (surfaces, network calls) never touch that state;
// they Post closures back onto the loop instead. Posted closures run in FIFO
// order, which gives per-surface message ordering for free.
package loop

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// Loop is an unbounded FIFO of closures drained by one goroutine.
type Loop struct {
	logger *zap.Logger

	mu     sync.Mutex
	queue  []func()
	closed bool
	wake   chan struct{}

	tasks sync.WaitGroup
}

// New creates an idle loop. Call Run to drain it, or RunPending in tests.
func New(logger *zap.Logger) *Loop {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Loop{
		logger: logger.Named("loop"),
		wake:   make(chan struct{}, 1),
	}
}

// Post enqueues fn. It never blocks. Posting to a stopped loop is a no-op
// and reports false.
func (l *Loop) Post(fn func()) bool {
	if fn == nil {
		return false
	}
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return false
	}
	l.queue = append(l.queue, fn)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
	return true
}

// Run drains the loop until ctx is done. Closures still queued at that
// point are discarded.
func (l *Loop) Run(ctx context.Context) {
	defer l.close()
	for {
		l.RunPending()
		select {
		case <-ctx.Done():
			return
		case <-l.wake:
		}
	}
}

// RunPending runs every closure queued so far, including closures they post,
// and returns how many ran. It must only be called from the loop goroutine.
func (l *Loop) RunPending() int {
	n := 0
	for {
		l.mu.Lock()
		batch := l.queue
		l.queue = nil
		l.mu.Unlock()

		if len(batch) == 0 {
			return n
		}
		for _, fn := range batch {
			l.invoke(fn)
			n++
		}
	}
}

// Settle alternates between waiting for background tasks and running queued
// closures until both are exhausted. Only for callers that drive the loop
// manually, such as tests.
func (l *Loop) Settle() {
	for {
		l.tasks.Wait()
		if l.RunPending() == 0 {
			l.mu.Lock()
			empty := len(l.queue) == 0
			l.mu.Unlock()
			if empty {
				return
			}
		}
	}
}

func (l *Loop) invoke(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("posted closure panicked", zap.Any("panic", r), zap.Stack("stack"))
		}
	}()
	fn()
}

func (l *Loop) close() {
	l.mu.Lock()
	l.closed = true
	l.queue = nil
	l.mu.Unlock()
}

// Go runs work on its own goroutine and posts done back onto the loop with
// the result. If ctx is cancelled by the time done would run, done is
// skipped, which ties the task to the lifetime that owns ctx.
func Go[T any](l *Loop, ctx context.Context, work func(context.Context) (T, error), done func(T, error)) {
	l.tasks.Add(1)
	go func() {
		defer l.tasks.Done()
		v, err := work(ctx)
		l.Post(func() {
			if ctx.Err() != nil {
				return
			}
			if done != nil {
				done(v, err)
			}
		})
	}()
}
