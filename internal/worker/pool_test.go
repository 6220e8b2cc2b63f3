package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// mockResult implements Result
type mockResult struct {
	index int
	err   error
}

func (r *mockResult) GetError() error {
	return r.err
}

// mockJob implements Job
type mockJob struct {
	index     int
	duration  time.Duration
	shouldErr bool
	executed  *int32 // atomic counter
}

func (j *mockJob) Execute(ctx context.Context) Result {
	if j.executed != nil {
		atomic.AddInt32(j.executed, 1)
	}
	if j.duration > 0 {
		select {
		case <-time.After(j.duration):
		case <-ctx.Done():
			return &mockResult{index: j.index, err: ctx.Err()}
		}
	}
	if j.shouldErr {
		return &mockResult{index: j.index, err: errors.New("job error")}
	}
	return &mockResult{index: j.index}
}

func TestNewPool(t *testing.T) {
	p1 := NewPool(5)
	if p1.Workers() != 5 {
		t.Errorf("expected 5 workers, got %d", p1.Workers())
	}

	p2 := NewPool(0)
	if p2.Workers() != 1 {
		t.Errorf("expected default 1 worker for 0 input, got %d", p2.Workers())
	}

	p3 := NewPool(-1)
	if p3.Workers() != 1 {
		t.Errorf("expected default 1 worker for negative input, got %d", p3.Workers())
	}
}

func TestPool_RunPreservesOrder(t *testing.T) {
	for _, workers := range []int{1, 3, 10} {
		pool := NewPool(workers)

		var executed int32
		count := 25
		jobs := make([]Job, count)
		for i := range jobs {
			// later jobs finish first
			jobs[i] = &mockJob{index: i, duration: time.Duration(count-i) * time.Millisecond, executed: &executed}
		}

		results := pool.Run(context.Background(), jobs)

		if len(results) != count {
			t.Fatalf("workers=%d: expected %d results, got %d", workers, count, len(results))
		}
		for i, r := range results {
			if got := r.(*mockResult).index; got != i {
				t.Errorf("workers=%d: result %d came from job %d", workers, i, got)
			}
		}
		if atomic.LoadInt32(&executed) != int32(count) {
			t.Errorf("workers=%d: expected %d executed jobs, got %d", workers, count, executed)
		}
	}
}

func TestPool_RunEmpty(t *testing.T) {
	results := NewPool(4).Run(context.Background(), nil)
	if len(results) != 0 {
		t.Errorf("expected no results, got %d", len(results))
	}
}

// concurrencyJob tracks max concurrent executions
type concurrencyJob struct {
	start    func()
	end      func()
	duration time.Duration
}

func (j *concurrencyJob) Execute(ctx context.Context) Result {
	if j.start != nil {
		j.start()
	}
	time.Sleep(j.duration)
	if j.end != nil {
		j.end()
	}
	return &mockResult{}
}

func TestPool_Concurrency(t *testing.T) {
	workers := 10
	pool := NewPool(workers)

	var current int32
	var maxConcurrent int32
	var completed int32
	var mu sync.Mutex

	totalJobs := 50 // more than workers, Run must not deadlock
	jobs := make([]Job, totalJobs)
	for i := range jobs {
		jobs[i] = &concurrencyJob{
			start: func() {
				curr := atomic.AddInt32(&current, 1)
				mu.Lock()
				if curr > maxConcurrent {
					maxConcurrent = curr
				}
				mu.Unlock()
			},
			end: func() {
				atomic.AddInt32(&current, -1)
				atomic.AddInt32(&completed, 1)
			},
			duration: 10 * time.Millisecond,
		}
	}

	pool.Run(context.Background(), jobs)

	if atomic.LoadInt32(&completed) != int32(totalJobs) {
		t.Errorf("expected %d completed jobs, got %d", totalJobs, completed)
	}

	mu.Lock()
	peak := maxConcurrent
	mu.Unlock()

	if peak > int32(workers) {
		t.Errorf("max concurrency %d exceeded workers %d", peak, workers)
	}
}

func TestPool_SequentialWithOneWorker(t *testing.T) {
	var current, peak int32
	jobs := make([]Job, 5)
	for i := range jobs {
		jobs[i] = &concurrencyJob{
			start: func() {
				if c := atomic.AddInt32(&current, 1); c > atomic.LoadInt32(&peak) {
					atomic.StoreInt32(&peak, c)
				}
			},
			end:      func() { atomic.AddInt32(&current, -1) },
			duration: time.Millisecond,
		}
	}

	NewPool(1).Run(context.Background(), jobs)

	if peak != 1 {
		t.Errorf("expected sequential execution, peak concurrency %d", peak)
	}
}

func TestPool_ErrorHandling(t *testing.T) {
	pool := NewPool(2)

	results := pool.Run(context.Background(), []Job{
		&mockJob{shouldErr: true},
		&mockJob{shouldErr: false},
	})
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}

	if results[0].GetError() == nil {
		t.Error("expected first job to fail")
	}
	if results[1].GetError() != nil {
		t.Errorf("expected second job to succeed, got %v", results[1].GetError())
	}
}

func TestPool_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results := NewPool(2).Run(ctx, []Job{
		&mockJob{duration: time.Second},
		&mockJob{duration: time.Second},
	})

	for i, r := range results {
		if !errors.Is(r.GetError(), context.Canceled) {
			t.Errorf("job %d: expected context.Canceled, got %v", i, r.GetError())
		}
	}
}

func TestResultCollector(t *testing.T) {
	c := NewResultCollector()
	c.Add(&mockResult{})
	c.Add(&mockResult{err: errors.New("err")})

	if len(c.Results()) != 2 {
		t.Errorf("expected 2 results, got %d", len(c.Results()))
	}
	if len(c.Errors()) != 1 {
		t.Errorf("expected 1 error, got %d", len(c.Errors()))
	}
}
