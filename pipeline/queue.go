/*
DESCRIPTION
  queue.go provides taskQueue, an unbounded queue of functions run in order
  by a single goroutine.

AUTHORS
  The camstack developers

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package pipeline

import "sync"

// taskQueue serialises work onto the goroutine calling run. post never
// blocks, so it is safe to call from the running goroutine itself and from
// hardware callbacks.
type taskQueue struct {
	mu     sync.Mutex
	tasks  []func()
	closed bool
	notify chan struct{}
}

func newTaskQueue() *taskQueue {
	return &taskQueue{notify: make(chan struct{}, 1)}
}

// post appends fn. It returns false, dropping fn, if the queue is closed.
func (q *taskQueue) post(fn func()) bool {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return false
	}
	q.tasks = append(q.tasks, fn)
	q.mu.Unlock()
	q.wake()
	return true
}

// close stops the queue accepting tasks. run returns once the tasks already
// posted have been run.
func (q *taskQueue) close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.wake()
}

func (q *taskQueue) wake() {
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// run runs tasks in the order posted until the queue is closed and empty.
func (q *taskQueue) run() {
	for {
		q.mu.Lock()
		tasks := q.tasks
		q.tasks = nil
		closed := q.closed
		q.mu.Unlock()

		for _, fn := range tasks {
			fn()
		}
		if len(tasks) != 0 {
			continue
		}
		if closed {
			return
		}
		<-q.notify
	}
}
