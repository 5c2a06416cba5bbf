package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/hamed0406/sitewatch/internal/domain"
)

type job struct {
	cycleID string
	target  domain.Target
	report  *CycleReport
	done    func()
}

type result struct {
	job       job
	state     domain.TargetState
	actions   []domain.Action
	failed    int // actions that could not be dispatched
	abandoned bool
	err       error // storage failure; the target's cycle is void
}

// pool runs a fixed number of workers over a jobs channel and publishes
// each outcome on a results channel.
type pool struct {
	jobs    chan job
	results chan result
	wg      sync.WaitGroup
	closeQ  sync.Once
	closeR  sync.Once
}

// newPool starts the workers. Jobs dequeued after quit is closed are
// reported abandoned without running fn.
func newPool(ctx context.Context, quit <-chan struct{}, workers, queue int, fn func(context.Context, job) result, release func(domain.TargetID)) *pool {
	if workers < 1 {
		workers = 1
	}
	if queue < workers {
		queue = workers
	}
	p := &pool{
		jobs:    make(chan job, queue),
		results: make(chan result, queue),
	}
	p.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer p.wg.Done()
			for j := range p.jobs {
				var r result
				select {
				case <-quit:
					r = result{job: j, abandoned: true}
				default:
					r = fn(ctx, j)
				}
				release(j.target.ID)
				p.results <- r
			}
		}()
	}
	return p
}

// submit never blocks; false means the queue is full.
func (p *pool) submit(j job) bool {
	select {
	case p.jobs <- j:
		return true
	default:
		return false
	}
}

// stop closes the queue and waits up to timeout for workers to drain.
// Results is closed only when every worker has exited.
func (p *pool) stop(timeout time.Duration) bool {
	p.closeQ.Do(func() { close(p.jobs) })

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		p.closeR.Do(func() { close(p.results) })
		return true
	case <-time.After(timeout):
		return false
	}
}
