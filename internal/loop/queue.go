package loop

import "sync"

// task is one unit of work. done, when set, is closed after the task and
// the end-of-turn hooks have run.
type task struct {
	fn   func()
	done chan struct{}
}

// taskQueue is an unbounded thread-safe FIFO.
//
// The signal channel has a buffer of one so that any number of enqueues
// between two waits coalesce into a single wakeup.
type taskQueue struct {
	mu     sync.Mutex
	tasks  []task
	closed bool
	signal chan struct{}
}

func newTaskQueue() *taskQueue {
	return &taskQueue{
		tasks:  make([]task, 0, 64),
		signal: make(chan struct{}, 1),
	}
}

// enqueue appends t. Returns false once the queue is closed.
func (q *taskQueue) enqueue(t task) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}
	q.tasks = append(q.tasks, t)

	select {
	case q.signal <- struct{}{}:
	default:
	}
	return true
}

// tryDequeue pops the front task without blocking.
func (q *taskQueue) tryDequeue() (task, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.tasks) == 0 {
		return task{}, false
	}
	t := q.tasks[0]
	// Drop the reference so the closure can be collected.
	q.tasks[0] = task{}
	if len(q.tasks) == 1 {
		q.tasks = q.tasks[:0]
	} else {
		q.tasks = q.tasks[1:]
	}
	return t, true
}

// wait returns the wakeup channel. It is closed when the queue closes.
func (q *taskQueue) wait() <-chan struct{} {
	return q.signal
}

func (q *taskQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.tasks)
}

func (q *taskQueue) isClosed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

// close stops new enqueues and wakes any waiter. Queued tasks are dropped
// by the loop after close; their Do callers see ErrClosed.
func (q *taskQueue) close() []task {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil
	}
	q.closed = true
	close(q.signal)
	rest := q.tasks
	q.tasks = nil
	return rest
}
