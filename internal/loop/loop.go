// Package loop implements a serial execution context: functions posted to a
// Loop run one at a time, in post order, on a single goroutine.
package loop

import (
	"context"
	"errors"
	"sync"

	"github.com/eapache/queue"
	"go.uber.org/zap"
)

// ErrStopped is returned when work is handed to a stopped Loop.
var ErrStopped = errors.New("loop: stopped")

// Loop runs posted functions serially. The inbox is unbounded so that a
// function running on the loop can always post follow-up work.
type Loop struct {
	logger *zap.Logger

	mu      sync.Mutex
	tasks   *queue.Queue
	stopped bool

	wake chan struct{}
	done chan struct{}
}

// New creates a Loop and starts its goroutine.
func New(logger *zap.Logger) *Loop {
	if logger == nil {
		logger = zap.NewNop()
	}
	l := &Loop{
		logger: logger,
		tasks:  queue.New(),
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	go l.run()
	return l
}

// Post schedules fn. It returns false if the loop has been stopped, in which
// case fn will never run.
func (l *Loop) Post(fn func()) bool {
	l.mu.Lock()
	if l.stopped {
		l.mu.Unlock()
		return false
	}
	l.tasks.Add(fn)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
	return true
}

// Do runs fn on the loop and waits for it to return, or for ctx to be done.
// Calling Do from a function running on the loop deadlocks.
func (l *Loop) Do(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	if !l.Post(func() {
		defer close(finished)
		fn()
	}) {
		return ErrStopped
	}

	select {
	case <-finished:
		return nil
	case <-l.done:
		// fn may have been the last task executed before the loop exited.
		select {
		case <-finished:
			return nil
		default:
			return ErrStopped
		}
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop refuses further posts. Functions already posted still run, then the
// loop goroutine exits and Done is closed. Stop does not wait, so it may be
// called from the loop.
func (l *Loop) Stop() {
	l.mu.Lock()
	l.stopped = true
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// Done is closed after the loop goroutine has exited.
func (l *Loop) Done() <-chan struct{} {
	return l.done
}

// Pending returns the number of queued functions.
func (l *Loop) Pending() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.tasks.Length()
}

func (l *Loop) run() {
	defer close(l.done)

	for {
		fn, stopped := l.next()
		if fn == nil {
			if stopped {
				return
			}
			<-l.wake
			continue
		}
		l.exec(fn)
	}
}

// next pops the oldest task. It returns a nil task when the inbox is empty.
func (l *Loop) next() (func(), bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.tasks.Length() == 0 {
		return nil, l.stopped
	}
	return l.tasks.Remove().(func()), l.stopped
}

func (l *Loop) exec(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("loop: task panicked", zap.Any("panic", r), zap.Stack("stack"))
		}
	}()
	fn()
}
