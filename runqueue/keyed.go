/*
 * Copyright (c) 2020 Miguel Ángel Ortuño.
 * See the LICENSE file for more information.
 */

package runqueue

import (
	"sync"
)

// Keyed dispatches operations to a set of per-key serial queues.
//
// Operations submitted under the same key run one at a time, in submission
// order. Operations submitted under different keys run concurrently.
// A key's queue is disposed once it drains, so an idle Keyed holds no
// per-key state.
type Keyed struct {
	name    string
	mu      sync.Mutex
	queues  map[string]*keyedQueue
	stopped bool
}

type keyedQueue struct {
	rq      *RunQueue
	pending int
}

// NewKeyed returns an initialized keyed operation queue.
func NewKeyed(name string) *Keyed {
	return &Keyed{
		name:   name,
		queues: make(map[string]*keyedQueue),
	}
}

// Run pushes a new operation function into the queue associated to key.
func (k *Keyed) Run(key string, fn func()) {
	k.mu.Lock()
	if k.stopped {
		k.mu.Unlock()
		return
	}
	q := k.queues[key]
	if q == nil {
		q = &keyedQueue{rq: New(k.name + "/" + key)}
		k.queues[key] = q
	}
	q.pending++
	k.mu.Unlock()

	q.rq.Run(func() {
		fn()

		k.mu.Lock()
		q.pending--
		if q.pending == 0 {
			delete(k.queues, key)
		}
		k.mu.Unlock()
	})
}

// Stop signals all per-key queues to stop running, invoking stopCb once
// every pending operation has completed.
func (k *Keyed) Stop(stopCb func()) {
	k.mu.Lock()
	k.stopped = true
	queues := make([]*keyedQueue, 0, len(k.queues))
	for _, q := range k.queues {
		queues = append(queues, q)
	}
	k.queues = make(map[string]*keyedQueue)
	k.mu.Unlock()

	var wg sync.WaitGroup
	wg.Add(len(queues))
	for _, q := range queues {
		q.rq.Stop(func() { wg.Done() })
	}
	go func() {
		wg.Wait()
		stopCb()
	}()
}

// QueueCount returns the number of live per-key queues.
func (k *Keyed) QueueCount() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.queues)
}
