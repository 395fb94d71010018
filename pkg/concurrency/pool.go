package concurrency

import (
	"sync"

	"github.com/zhiayang/ikura/pkg/logger"
)

// DefaultWorkers is the fixed pool size spec.md C11 specifies: "a
// fixed-size thread pool (4 workers) for async I/O tasks (emote
// fetches, REST calls)."
const DefaultWorkers = 4

// Pool is a fixed-size worker pool draining a job queue, used for work
// that should not block a driver's gateway/receive goroutines: emote
// cache refreshes (pkg/emotes).
type Pool struct {
	jobs chan func()
	wg   sync.WaitGroup
	stop chan struct{}
}

// NewPool starts a pool with DefaultWorkers goroutines draining a
// buffered job queue.
func NewPool() *Pool {
	p := &Pool{
		jobs: make(chan func(), 256),
		stop: make(chan struct{}),
	}
	for i := 0; i < DefaultWorkers; i++ {
		p.wg.Add(1)
		go p.worker()
	}
	return p
}

func (p *Pool) worker() {
	defer p.wg.Done()
	for {
		select {
		case job, ok := <-p.jobs:
			if !ok {
				return
			}
			runJob(job)
		case <-p.stop:
			return
		}
	}
}

func runJob(job func()) {
	defer func() {
		if r := recover(); r != nil {
			logger.ErrorCF("concurrency", "pool job panicked", map[string]any{"panic": r})
		}
	}()
	job()
}

// Submit enqueues job to run on the next free worker. Submit never
// blocks the caller on job completion, only on queue capacity.
func (p *Pool) Submit(job func()) {
	select {
	case p.jobs <- job:
	case <-p.stop:
	}
}

// Close stops accepting new work and waits for in-flight jobs to drain.
func (p *Pool) Close() {
	close(p.stop)
	close(p.jobs)
	p.wg.Wait()
}
