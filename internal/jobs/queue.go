package jobs

import (
	"container/heap"
	"context"
	"sync"
	"time"

	"maestro/internal/clock"
	"maestro/pkg/logging"

	"golang.org/x/sync/errgroup"
)

// Queue is an in-process deferred-task queue with at-least-once execution
// semantics: a worker pool picks up tasks once their scheduled time has
// passed. Task failures are logged, not retried; retry policy belongs to the
// tasks themselves.
type Queue struct {
	mu      sync.Mutex
	pending scheduledHeap
	wake    chan struct{}
	clock   clock.Clock

	workers int
	group   *errgroup.Group
	ready   chan Task
}

type scheduledTask struct {
	task  Task
	runAt time.Time
}

// NewQueue creates a queue served by the given number of workers.
func NewQueue(workers int, clk clock.Clock) *Queue {
	if workers <= 0 {
		workers = 1
	}
	return &Queue{
		wake:    make(chan struct{}, 1),
		clock:   clk,
		workers: workers,
		ready:   make(chan Task),
	}
}

// Enqueue implements Enqueuer.
func (q *Queue) Enqueue(task Task, runAt time.Time) {
	q.mu.Lock()
	heap.Push(&q.pending, scheduledTask{task: task, runAt: runAt})
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// Start launches the scheduler and worker pool. It returns immediately; use
// Wait to block until ctx is cancelled and all workers have drained.
func (q *Queue) Start(ctx context.Context) {
	group, ctx := errgroup.WithContext(ctx)
	q.group = group

	group.Go(func() error {
		q.schedule(ctx)
		return nil
	})
	for i := 0; i < q.workers; i++ {
		group.Go(func() error {
			q.work(ctx)
			return nil
		})
	}
}

// Wait blocks until the queue has shut down.
func (q *Queue) Wait() error {
	return q.group.Wait()
}

// Pending returns the number of tasks not yet handed to a worker.
func (q *Queue) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.pending.Len()
}

// schedule moves due tasks to the ready channel, sleeping until the next
// deadline in between.
func (q *Queue) schedule(ctx context.Context) {
	for {
		q.mu.Lock()
		var wait time.Duration
		var due *scheduledTask
		if q.pending.Len() > 0 {
			next := q.pending[0]
			now := q.clock.Now()
			if !next.runAt.After(now) {
				popped := heap.Pop(&q.pending).(scheduledTask)
				due = &popped
			} else {
				wait = next.runAt.Sub(now)
			}
		}
		q.mu.Unlock()

		if due != nil {
			select {
			case q.ready <- due.task:
			case <-ctx.Done():
				return
			}
			continue
		}

		if wait <= 0 {
			// Nothing pending; sleep until woken.
			select {
			case <-q.wake:
			case <-ctx.Done():
				return
			}
			continue
		}

		timer := time.NewTimer(wait)
		select {
		case <-timer.C:
		case <-q.wake:
			timer.Stop()
		case <-ctx.Done():
			timer.Stop()
			return
		}
	}
}

func (q *Queue) work(ctx context.Context) {
	for {
		select {
		case task := <-q.ready:
			if err := task.Run(ctx); err != nil {
				logging.Error("Jobs", err, "Task %s failed", task.Name())
			}
		case <-ctx.Done():
			return
		}
	}
}

type scheduledHeap []scheduledTask

func (h scheduledHeap) Len() int           { return len(h) }
func (h scheduledHeap) Less(i, j int) bool { return h[i].runAt.Before(h[j].runAt) }
func (h scheduledHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *scheduledHeap) Push(x any)        { *h = append(*h, x.(scheduledTask)) }
func (h *scheduledHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
