package gameloop

import (
	"context"

	"github.com/minekarta/auctionhouse/internal/shared/logger"
)

var log = logger.GetLogger()

// Loop is the authoritative single-threaded execution context. Every mutation
// of in-memory auction state runs as a task posted here; background workers
// never touch that state directly, they post their completions back instead.
type Loop struct {
	tasks chan func()
}

func New(buffer int) *Loop {
	if buffer <= 0 {
		buffer = 256
	}
	return &Loop{tasks: make(chan func(), buffer)}
}

// Run drains tasks until ctx is cancelled. Tasks must not block: anything slow
// belongs on the worker pool, with the result posted back as another task.
func (l *Loop) Run(ctx context.Context) {
	log.Info("authoritative loop started")
	for {
		select {
		case <-ctx.Done():
			// drain whatever is already queued so pending completions
			// are not lost on shutdown
			for {
				select {
				case fn := <-l.tasks:
					fn()
				default:
					log.Info("authoritative loop stopped")
					return
				}
			}
		case fn := <-l.tasks:
			fn()
		}
	}
}

// Post enqueues fn for execution on the loop. Blocks when the queue is full,
// which backpressures producers instead of growing without bound.
func (l *Loop) Post(fn func()) {
	l.tasks <- fn
}

// Call posts fn and waits for it to finish. Must not be invoked from a task
// already running on the loop.
func (l *Loop) Call(fn func()) {
	done := make(chan struct{})
	l.Post(func() {
		defer close(done)
		fn()
	})
	<-done
}
