// Package workerpool runs independent computations on a fixed set of
// worker goroutines.
package workerpool

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// ErrStopped is returned for work submitted to, or pending on, a stopped pool
var ErrStopped = errors.New("worker pool stopped")

// Task is one unit of work. Tasks write their own results; the pool only
// carries the error.
type Task func(ctx context.Context) error

// Observer is told how long each task ran and whether it failed
type Observer func(d time.Duration, err error)

type job struct {
	ctx    context.Context
	task   Task
	done   chan<- error
	cancel context.CancelFunc
}

// Pool is a fixed-size worker pool
type Pool struct {
	jobQueue    chan *job
	workerCount int
	workers     []*Worker
	observer    Observer
	logger      *slog.Logger

	wg       sync.WaitGroup
	stopCh   chan struct{}
	stopOnce sync.Once
}

// Worker pulls jobs off the pool's queue until the pool stops
type Worker struct {
	id       int
	jobQueue <-chan *job
	pool     *Pool
	stopCh   <-chan struct{}
}

// New creates a pool. Non-positive sizes fall back to 4 workers and a queue
// of 64.
func New(workerCount, queueSize int, logger *slog.Logger) *Pool {
	if workerCount <= 0 {
		workerCount = 4
	}
	if queueSize <= 0 {
		queueSize = 64
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pool{
		jobQueue:    make(chan *job, queueSize),
		workerCount: workerCount,
		logger:      logger,
		stopCh:      make(chan struct{}),
	}
}

// SetObserver installs a callback run after every task. Call before Start.
func (p *Pool) SetObserver(o Observer) {
	p.observer = o
}

// Size returns the number of workers
func (p *Pool) Size() int {
	return p.workerCount
}

// Start launches the workers
func (p *Pool) Start() {
	p.workers = make([]*Worker, p.workerCount)
	for i := 0; i < p.workerCount; i++ {
		w := &Worker{id: i, jobQueue: p.jobQueue, pool: p, stopCh: p.stopCh}
		p.workers[i] = w
		p.wg.Add(1)
		go w.Start(&p.wg)
	}
	p.logger.Info("workerpool: started", "workers", p.workerCount)
}

// Stop signals every worker and waits for in-flight tasks to return.
// Queued tasks that never ran report ErrStopped to their callers.
func (p *Pool) Stop() {
	p.stopOnce.Do(func() {
		close(p.stopCh)
		p.wg.Wait()
		p.logger.Info("workerpool: stopped")
	})
}

// Submit queues a single task. The returned channel receives exactly one
// value once the task has run.
func (p *Pool) Submit(ctx context.Context, task Task) (<-chan error, error) {
	done := make(chan error, 1)
	if err := p.enqueue(&job{ctx: ctx, task: task, done: done}); err != nil {
		return nil, err
	}
	return done, nil
}

// Run executes tasks concurrently and waits for them. The first failure
// cancels the context handed to the remaining tasks, and tasks not yet
// started are skipped. Run returns the first task error, or the dispatch
// error when no task failed.
func (p *Pool) Run(ctx context.Context, tasks ...Task) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	done := make(chan error, len(tasks))
	var dispatchErr error
	dispatched := 0
	for _, t := range tasks {
		if err := p.enqueue(&job{ctx: ctx, task: t, done: done, cancel: cancel}); err != nil {
			dispatchErr = err
			cancel()
			break
		}
		dispatched++
	}

	var taskErr error
	for i := 0; i < dispatched; i++ {
		select {
		case err := <-done:
			if err != nil && (taskErr == nil || isContextErr(taskErr) && !isContextErr(err)) {
				taskErr = err
			}
		case <-p.stopCh:
			if taskErr == nil {
				taskErr = ErrStopped
			}
			return taskErr
		}
	}
	if taskErr != nil {
		return taskErr
	}
	return dispatchErr
}

func (p *Pool) enqueue(j *job) error {
	select {
	case <-p.stopCh:
		return ErrStopped
	default:
	}

	select {
	case p.jobQueue <- j:
		return nil
	case <-j.ctx.Done():
		return j.ctx.Err()
	case <-p.stopCh:
		return ErrStopped
	}
}

func isContextErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// Start runs the worker loop
func (w *Worker) Start(wg *sync.WaitGroup) {
	defer wg.Done()
	for {
		select {
		case j := <-w.jobQueue:
			w.process(j)
		case <-w.stopCh:
			return
		}
	}
}

func (w *Worker) process(j *job) {
	if err := j.ctx.Err(); err != nil {
		j.done <- err
		return
	}

	start := time.Now()
	err := w.run(j)
	if w.pool.observer != nil {
		w.pool.observer(time.Since(start), err)
	}
	if err != nil && j.cancel != nil {
		j.cancel()
	}
	j.done <- err
}

func (w *Worker) run(j *job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			w.pool.logger.Error("workerpool: task panicked", "worker", w.id, "panic", r)
			err = fmt.Errorf("task panicked: %v", r)
		}
	}()
	return j.task(j.ctx)
}
