// Package jobs is the deferred-task facility and the asynchronous state
// pollers that run on it. Tasks are plain structs re-submitted to the queue
// between invocations; each invocation is a single bounded unit of work.
package jobs

import (
	"context"
	"time"
)

// Task is one schedulable unit of work. Run is invoked at least once at or
// after the task's scheduled time; a task that needs to continue re-enqueues
// itself.
type Task interface {
	// Name identifies the task in logs.
	Name() string

	// Run performs one bounded unit of work.
	Run(ctx context.Context) error
}

// Enqueuer registers a task for execution at or after runAt. There is no
// ordering guarantee across different tasks.
type Enqueuer interface {
	Enqueue(task Task, runAt time.Time)
}
