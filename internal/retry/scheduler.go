package retry

import (
	"container/heap"
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Task is one armed delayed retry.
type Task struct {
	SubmissionID string
	UserID       string
	RunAt        time.Time
}

// TaskFunc executes a due task. It must not panic; the scheduler logs and
// survives errors inside the handler.
type TaskFunc func(ctx context.Context, task Task)

// Scheduler is an explicit, process-owned delayed-task queue. Arming a task
// returns immediately; the run loop fires it when its deadline passes. The
// clock is injectable so tests drive virtual time.
type Scheduler struct {
	clock  Clock
	logger *zap.Logger

	mu    sync.Mutex
	tasks taskHeap
	wake  chan struct{}

	running sync.WaitGroup
}

func NewScheduler(clock Clock, logger *zap.Logger) *Scheduler {
	if clock == nil {
		clock = SystemClock{}
	}
	return &Scheduler{
		clock:  clock,
		logger: logger.Named("retry_scheduler"),
		wake:   make(chan struct{}, 1),
	}
}

// Schedule arms a delayed task. Fire-and-forget: the caller is free as soon
// as the task is queued.
func (s *Scheduler) Schedule(task Task) {
	s.mu.Lock()
	heap.Push(&s.tasks, task)
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
	s.logger.Debug("Retry task armed.",
		zap.String("submission_id", task.SubmissionID),
		zap.Time("run_at", task.RunAt))
}

// Start runs the dispatch loop until the context is cancelled. Due tasks run
// on their own goroutines so a slow browser attempt does not delay other
// timers. Start blocks; run it under an errgroup or dedicated goroutine.
func (s *Scheduler) Start(ctx context.Context, handler TaskFunc) error {
	for {
		var waitCh <-chan time.Time

		s.mu.Lock()
		for len(s.tasks) > 0 && !s.tasks[0].RunAt.After(s.clock.Now()) {
			task := heap.Pop(&s.tasks).(Task)
			s.running.Add(1)
			go func(t Task) {
				defer s.running.Done()
				defer func() {
					if r := recover(); r != nil {
						s.logger.Error("Retry task handler panicked.",
							zap.String("submission_id", t.SubmissionID), zap.Any("panic", r))
					}
				}()
				handler(ctx, t)
			}(task)
		}
		if len(s.tasks) > 0 {
			waitCh = s.clock.After(s.tasks[0].RunAt.Sub(s.clock.Now()))
		}
		s.mu.Unlock()

		select {
		case <-ctx.Done():
			s.running.Wait()
			return nil
		case <-s.wake:
		case <-waitCh:
		}
	}
}

// Pending reports the number of tasks not yet fired. Intended for tests and
// health reporting.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tasks)
}

// taskHeap is a min-heap ordered by RunAt.
type taskHeap []Task

func (h taskHeap) Len() int            { return len(h) }
func (h taskHeap) Less(i, j int) bool  { return h[i].RunAt.Before(h[j].RunAt) }
func (h taskHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *taskHeap) Push(x any)         { *h = append(*h, x.(Task)) }
func (h *taskHeap) Pop() any {
	old := *h
	n := len(old)
	task := old[n-1]
	*h = old[:n-1]
	return task
}
