// Package opqueue provides a bounded set of per-key FIFO worker goroutines,
// used by the archive to guarantee that all writes to a given journal file
// serialize strictly in submission order. Work fans in to one worker per
// key, each draining its own mailbox channel; the worker set is bounded
// by an LRU so a long-lived process doesn't accumulate idle goroutines.
package opqueue

import (
	"container/list"
	"context"
	"sync"
)

// Op is a unit of work submitted for a key. Op runs on the key's worker
// goroutine; two Ops for the same key never run concurrently, and always
// run in submission order.
type Op func(ctx context.Context) error

// Queue manages one worker goroutine per key, up to maxIdleWorkers idle
// workers retained between bursts of activity (an LRU-ish cap — workers for
// keys that go quiet are torn down so a long-lived process with many
// distinct archive files doesn't accumulate goroutines forever).
type Queue struct {
	mu      sync.Mutex
	workers map[string]*worker
	lru     *list.List // of *worker, most-recently-used at the back
	maxIdle int
}

type worker struct {
	key     string
	mailbox chan job
	elem    *list.Element
	refs    int // number of in-flight + queued ops
}

type job struct {
	op   Op
	done chan error
}

// New creates a Queue that retains up to maxIdleWorkers idle per-key
// workers before evicting the least-recently-used one. A value <= 0 means
// "never proactively evict" (the default; journal file counts are small in
// practice).
func New(maxIdleWorkers int) *Queue {
	return &Queue{
		workers: make(map[string]*worker),
		lru:     list.New(),
		maxIdle: maxIdleWorkers,
	}
}

// Enqueue submits op to run on key's worker and blocks until it completes
// or ctx is canceled. Ops for the same key always execute in the order they
// were enqueued.
func (q *Queue) Enqueue(ctx context.Context, key string, op Op) error {
	w := q.workerFor(key)

	q.mu.Lock()
	w.refs++
	q.mu.Unlock()
	defer func() {
		q.mu.Lock()
		w.refs--
		q.mu.Unlock()
	}()

	done := make(chan error, 1)
	select {
	case w.mailbox <- job{op: op, done: done}:
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *Queue) workerFor(key string) *worker {
	q.mu.Lock()
	defer q.mu.Unlock()

	if w, ok := q.workers[key]; ok {
		q.lru.MoveToBack(w.elem)
		return w
	}

	w := &worker{key: key, mailbox: make(chan job, 64)}
	w.elem = q.lru.PushBack(w)
	q.workers[key] = w
	go q.run(w)

	if q.maxIdle > 0 && len(q.workers) > q.maxIdle {
		q.evictOldest()
	}
	return w
}

// evictOldest removes the least-recently-used worker's routing entry and
// closes its mailbox, so its goroutine exits once the mailbox drains. A
// worker that still has in-flight or queued ops is left in place.
func (q *Queue) evictOldest() {
	front := q.lru.Front()
	if front == nil {
		return
	}
	w := front.Value.(*worker)
	if w.refs > 0 {
		return // still busy; try again next time
	}
	q.lru.Remove(front)
	delete(q.workers, w.key)
	close(w.mailbox)
}

func (q *Queue) run(w *worker) {
	for j := range w.mailbox {
		err := j.op(context.Background())
		j.done <- err
	}
}

// Len reports the number of active per-key workers, for stats/tests.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.workers)
}
