// Package worker runs independent jobs on a bounded set of goroutines and
// throttles calls to shared backends.
package worker

import (
	"context"
	"sync"
)

// Job represents a unit of work to be executed
type Job interface {
	Execute(ctx context.Context) Result
}

// Result represents the result of a job execution
type Result interface {
	GetError() error
}

// Pool executes jobs with at most a fixed number running at once
type Pool struct {
	workers int
}

// NewPool creates a pool with the given number of workers. Values below one
// mean a single worker, which runs jobs sequentially in submission order.
func NewPool(workers int) *Pool {
	if workers <= 0 {
		workers = 1
	}
	return &Pool{workers: workers}
}

// Workers returns the configured concurrency
func (p *Pool) Workers() int { return p.workers }

// Run executes every job and returns the results indexed like jobs.
// Jobs that have not started when ctx is cancelled still run and see the
// cancelled context.
func (p *Pool) Run(ctx context.Context, jobs []Job) []Result {
	results := make([]Result, len(jobs))
	if len(jobs) == 0 {
		return results
	}

	if p.workers == 1 {
		for i, job := range jobs {
			results[i] = job.Execute(ctx)
		}
		return results
	}

	indexes := make(chan int)
	var wg sync.WaitGroup
	for range min(p.workers, len(jobs)) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range indexes {
				results[i] = jobs[i].Execute(ctx)
			}
		}()
	}

	for i := range jobs {
		indexes <- i
	}
	close(indexes)
	wg.Wait()

	return results
}

// ResultCollector gathers results from callbacks running on many goroutines
type ResultCollector struct {
	results []Result
	mu      sync.Mutex
}

// NewResultCollector creates a new result collector
func NewResultCollector() *ResultCollector {
	return &ResultCollector{
		results: make([]Result, 0),
	}
}

// Add adds a result to the collector (thread-safe)
func (c *ResultCollector) Add(result Result) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.results = append(c.results, result)
}

// Results returns all collected results
func (c *ResultCollector) Results() []Result {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.results
}

// Errors returns the non-nil errors among the collected results
func (c *ResultCollector) Errors() []error {
	c.mu.Lock()
	defer c.mu.Unlock()
	var errs []error
	for _, r := range c.results {
		if err := r.GetError(); err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}
