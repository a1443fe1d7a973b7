package graph

import (
	"context"
	"sync"

	"github.com/mindloom/backend/pkg/logger"
)

// TaskProcessor consumes queued tasks. Implemented by Processor.
type TaskProcessor interface {
	ProcessChat(ctx context.Context, task Task) error
}

// Queue is an unbounded in-process FIFO of graph-processing tasks drained
// by a single worker. Enqueue never blocks the caller, so the chat fast
// path is decoupled from extraction latency. Tasks are held in memory only;
// whatever is still queued when the process stops is gone.
type Queue struct {
	mu     sync.Mutex
	cond   *sync.Cond
	tasks  []Task
	closed bool

	processor TaskProcessor
}

// NewQueue creates a Queue draining into the given processor. Start exactly
// one worker with Run.
func NewQueue(processor TaskProcessor) *Queue {
	q := &Queue{processor: processor}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Enqueue appends a task and wakes the worker. Tasks enqueued after
// shutdown are dropped with a log line.
func (q *Queue) Enqueue(task Task) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		logger.Warn("dropping task enqueued after shutdown", "chat_id", task.ChatID)
		return
	}
	q.tasks = append(q.tasks, task)
	q.cond.Signal()
}

// Len returns the number of tasks currently waiting.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.tasks)
}

// Run drains the queue until ctx is cancelled, processing tasks strictly in
// arrival order. A failed task is logged and dropped; the worker moves on.
func (q *Queue) Run(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() {
		q.mu.Lock()
		q.closed = true
		q.mu.Unlock()
		q.cond.Broadcast()
	})
	defer stop()

	for {
		task, ok := q.dequeue()
		if !ok {
			return ctx.Err()
		}
		if err := q.processor.ProcessChat(ctx, task); err != nil {
			logger.Error("failed to process chat", "error", err, "chat_id", task.ChatID, "user_id", task.UserID)
		}
	}
}

// dequeue blocks until a task is available or the queue is closed.
func (q *Queue) dequeue() (Task, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.tasks) == 0 && !q.closed {
		q.cond.Wait()
	}
	if q.closed {
		return Task{}, false
	}
	task := q.tasks[0]
	q.tasks = q.tasks[1:]
	return task, true
}
