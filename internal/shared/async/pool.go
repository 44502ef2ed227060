package async

import (
	"sync"

	"go.uber.org/zap"

	"github.com/minekarta/auctionhouse/internal/shared/logger"
)

var log = logger.GetLogger()

// Pool is the bounded worker pool for blocking work: durable-store I/O and
// economy-provider calls. The queue is bounded, so Submit backpressures once
// workers and queue are saturated.
type Pool struct {
	tasks chan func()
	wg    sync.WaitGroup
}

func NewPool(workers, queue int) *Pool {
	if workers <= 0 {
		workers = 1
	}
	if queue <= 0 {
		queue = workers * 16
	}
	p := &Pool{tasks: make(chan func(), queue)}
	p.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go p.worker(i)
	}
	return p
}

func (p *Pool) worker(id int) {
	defer p.wg.Done()
	for fn := range p.tasks {
		p.runOne(id, fn)
	}
}

func (p *Pool) runOne(id int, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("worker recovered from panic", zap.Int("worker", id), zap.Any("panic", r))
		}
	}()
	fn()
}

// Submit enqueues fn. Blocks when the queue is full.
func (p *Pool) Submit(fn func()) {
	p.tasks <- fn
}

// Shutdown stops accepting work and waits for in-flight tasks to finish.
func (p *Pool) Shutdown() {
	close(p.tasks)
	p.wg.Wait()
}
