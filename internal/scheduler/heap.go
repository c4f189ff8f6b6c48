// Package scheduler runs one-off and recurring tasks at wall-clock times
// using a min-heap of deadlines.
package scheduler

import (
	"container/heap"
	"errors"
	"sync"
	"time"
)

// ErrStopped is returned when scheduling on a stopped scheduler
var ErrStopped = errors.New("scheduler is stopped")

// NextFunc returns the next run time of a recurring task after now
type NextFunc func(now time.Time) time.Time

// Task is a unit of work scheduled for future execution
type Task struct {
	ID    string
	RunAt time.Time
	Run   func()
	next  NextFunc // nil for one-off tasks
	index int      // index in the heap
}

// taskHeap is a min-heap of tasks ordered by RunAt
type taskHeap []*Task

func (h taskHeap) Len() int { return len(h) }

func (h taskHeap) Less(i, j int) bool {
	return h[i].RunAt.Before(h[j].RunAt)
}

func (h taskHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *taskHeap) Push(x interface{}) {
	task := x.(*Task)
	task.index = len(*h)
	*h = append(*h, task)
}

func (h *taskHeap) Pop() interface{} {
	old := *h
	n := len(old)
	task := old[n-1]
	old[n-1] = nil
	task.index = -1
	*h = old[0 : n-1]
	return task
}

// Scheduler owns the heap and a fixed set of workers that run due tasks
type Scheduler struct {
	heap     taskHeap
	mu       sync.Mutex
	wakeup   chan struct{}
	tasks    map[string]*Task
	runCh    chan *Task
	workers  int
	workerWg sync.WaitGroup
	stopped  bool
	stopCh   chan struct{}
}

// New creates a scheduler that runs due tasks on workers goroutines
func New(workers int) *Scheduler {
	if workers <= 0 {
		workers = 1
	}
	s := &Scheduler{
		heap:    make(taskHeap, 0),
		wakeup:  make(chan struct{}, 1),
		tasks:   make(map[string]*Task),
		runCh:   make(chan *Task, workers),
		workers: workers,
		stopCh:  make(chan struct{}),
	}
	heap.Init(&s.heap)
	return s
}

// Start launches the workers and the scheduling loop
func (s *Scheduler) Start() {
	for i := 0; i < s.workers; i++ {
		s.workerWg.Add(1)
		go s.worker()
	}
	go s.run()
}

// Stop halts scheduling and waits for running tasks to return
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	close(s.stopCh)
	s.mu.Unlock()

	s.workerWg.Wait()
}

// Schedule runs fn once at runAt, replacing any task with the same id
func (s *Scheduler) Schedule(id string, runAt time.Time, fn func()) error {
	return s.push(&Task{ID: id, RunAt: runAt, Run: fn})
}

// ScheduleRecurring runs fn at next(now) and again at next(t) after each
// run, until cancelled
func (s *Scheduler) ScheduleRecurring(id string, next NextFunc, fn func()) error {
	return s.push(&Task{ID: id, RunAt: next(time.Now()), Run: fn, next: next})
}

func (s *Scheduler) push(task *Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return ErrStopped
	}

	if existing, ok := s.tasks[task.ID]; ok {
		heap.Remove(&s.heap, existing.index)
		delete(s.tasks, task.ID)
	}

	heap.Push(&s.heap, task)
	s.tasks[task.ID] = task

	if s.heap[0] == task {
		select {
		case s.wakeup <- struct{}{}:
		default:
		}
	}
	return nil
}

// Cancel removes a scheduled task
func (s *Scheduler) Cancel(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	task, ok := s.tasks[id]
	if !ok {
		return false
	}

	heap.Remove(&s.heap, task.index)
	delete(s.tasks, id)
	return true
}

// NextRun returns when the task with id is due
func (s *Scheduler) NextRun(id string) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	task, ok := s.tasks[id]
	if !ok {
		return time.Time{}, false
	}
	return task.RunAt, true
}

func (s *Scheduler) run() {
	for {
		s.mu.Lock()

		if s.stopped {
			s.mu.Unlock()
			return
		}

		var wait time.Duration
		if s.heap.Len() == 0 {
			wait = 24 * time.Hour
		} else {
			wait = time.Until(s.heap[0].RunAt)
			if wait <= 0 {
				task := heap.Pop(&s.heap).(*Task)
				delete(s.tasks, task.ID)
				if task.next != nil {
					again := &Task{ID: task.ID, RunAt: task.next(time.Now()), Run: task.Run, next: task.next}
					heap.Push(&s.heap, again)
					s.tasks[again.ID] = again
				}
				s.mu.Unlock()

				select {
				case s.runCh <- task:
				case <-s.stopCh:
					return
				}
				continue
			}
		}

		s.mu.Unlock()

		timer := time.NewTimer(wait)
		select {
		case <-timer.C:
		case <-s.wakeup:
			timer.Stop()
		case <-s.stopCh:
			timer.Stop()
			return
		}
	}
}

func (s *Scheduler) worker() {
	defer s.workerWg.Done()
	for {
		select {
		case task := <-s.runCh:
			task.Run()
		case <-s.stopCh:
			return
		}
	}
}

// Stats returns statistics about the scheduler
func (s *Scheduler) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	return Stats{
		ScheduledTasks: len(s.tasks),
		Workers:        s.workers,
	}
}

// Stats contains statistics about the scheduler
type Stats struct {
	ScheduledTasks int
	Workers        int
}
