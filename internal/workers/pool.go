// Package workers provides a fixed-size worker pool used by the event bus
// (C3) to host pool1/pool2 handler execution. Grounded on
// pkg/infrastructure/workers/simple_pool.go in the teacher repo, but — unlike
// that package's "ignore workerCount, trust the Go scheduler" pure-goroutine
// design — streamkeep needs genuinely bounded concurrency (§5: "a full pool
// causes the submitter to queue"), so this is a real fixed-size pool of N
// goroutines draining a shared job channel.
package workers

import (
	"sync"
)

// Job is one unit of work submitted to a Pool.
type Job func()

// Pool runs Size goroutines draining Jobs off a channel buffered to 256
// jobs. Submit blocks while that buffer is full, so a saturated pool holds
// back its submitter (the bus dispatcher); events keep accumulating in the
// bus's own unbounded ingress queue meanwhile.
type Pool struct {
	name string
	jobs chan Job
	wg   sync.WaitGroup
}

// NewPool starts a pool of size workers. size must be >= 1.
func NewPool(name string, size int) *Pool {
	if size < 1 {
		size = 1
	}
	p := &Pool{
		name: name,
		jobs: make(chan Job, 256),
	}
	p.wg.Add(size)
	for i := 0; i < size; i++ {
		go p.worker()
	}
	return p
}

func (p *Pool) worker() {
	defer p.wg.Done()
	for job := range p.jobs {
		job()
	}
}

// Submit enqueues job for execution on one of the pool's workers.
func (p *Pool) Submit(job Job) {
	p.jobs <- job
}

// Name returns the pool's identifier, e.g. "pool1".
func (p *Pool) Name() string { return p.name }

// Shutdown closes the job channel (a Submit after Shutdown panics), lets
// the already-enqueued jobs drain, and waits for every worker to finish.
// The wait has no time limit: a job that never returns blocks Shutdown.
func (p *Pool) Shutdown() {
	close(p.jobs)
	p.wg.Wait()
}
