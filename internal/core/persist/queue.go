// Copyright 2025 CineGraph Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// This file implements the asynchronous write queue between the graph
// store and the bridge. A single worker drains mutations strictly in
// enqueue order, so a mutation is never reordered relative to an earlier
// mutation on the same entity. A failed apply retries with exponential
// backoff; after the retry budget is spent the mutation is surfaced through
// the unsaved-changes callback and the worker moves on. The in-memory graph
// remains the source of truth throughout and is never rolled back for a
// transient persistence failure.
package persist

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/y232457250/CineGraph-AI-sub001/internal/core/model"
)

// Write queue defaults, used when the database config leaves them zero.
const (
	DefaultMaxRetries = 5
	DefaultRetryBase  = 100 * time.Millisecond
)

// UnsavedFunc is called when a mutation exhausts its retries. The UI
// surfaces this as "unsaved changes".
type UnsavedFunc func(m model.Mutation, err error)

// WriteQueue is an ordered, retrying, single-worker flush pipeline. It
// implements the graph store's MutationSink.
type WriteQueue struct {
	bridge     Bridge
	maxRetries int
	retryBase  time.Duration
	onUnsaved  UnsavedFunc

	mu      sync.Mutex
	cond    *sync.Cond
	pending []model.Mutation
	busy    bool
	closed  bool

	done chan struct{}
}

// NewWriteQueue creates the queue and starts its worker. onUnsaved may be
// nil; exhausted mutations are then only logged.
func NewWriteQueue(bridge Bridge, maxRetries int, retryBase time.Duration, onUnsaved UnsavedFunc) *WriteQueue {
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}
	if retryBase <= 0 {
		retryBase = DefaultRetryBase
	}
	q := &WriteQueue{
		bridge:     bridge,
		maxRetries: maxRetries,
		retryBase:  retryBase,
		onUnsaved:  onUnsaved,
		done:       make(chan struct{}),
	}
	q.cond = sync.NewCond(&q.mu)
	go q.worker()
	return q
}

// Enqueue appends a mutation to the flush order. Called by the graph store
// under its own lock, so it must never block or call back.
func (q *WriteQueue) Enqueue(m model.Mutation) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		slog.Warn("mutation dropped after queue close", "seq", m.Seq, "kind", m.Kind, "entity_id", m.EntityID)
		return
	}
	q.pending = append(q.pending, m)
	q.cond.Signal()
}

// Flush blocks until every mutation enqueued before the call has been
// applied or given up on, or until the context is done.
func (q *WriteQueue) Flush(ctx context.Context) error {
	for {
		q.mu.Lock()
		idle := len(q.pending) == 0 && !q.busy
		q.mu.Unlock()
		if idle {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(5 * time.Millisecond):
		}
	}
}

// Close stops accepting mutations, drains what is already queued, and
// waits for the worker to exit.
func (q *WriteQueue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	q.cond.Signal()
	q.mu.Unlock()
	<-q.done
}

// worker drains the queue one mutation at a time, strictly in order.
func (q *WriteQueue) worker() {
	defer close(q.done)
	for {
		q.mu.Lock()
		for len(q.pending) == 0 && !q.closed {
			q.cond.Wait()
		}
		if len(q.pending) == 0 && q.closed {
			q.mu.Unlock()
			return
		}
		m := q.pending[0]
		q.pending = q.pending[1:]
		q.busy = true
		q.mu.Unlock()

		q.apply(m)

		q.mu.Lock()
		q.busy = false
		q.mu.Unlock()
	}
}

// apply runs one mutation with exponential backoff until it sticks or the
// retry budget is spent.
func (q *WriteQueue) apply(m model.Mutation) {
	var err error
	for attempt := 0; attempt < q.maxRetries; attempt++ {
		if attempt > 0 {
			time.Sleep(q.retryBase << (attempt - 1))
		}
		err = q.bridge.Apply(context.Background(), m)
		if err == nil {
			return
		}
		slog.Warn("persistence flush failed, will retry",
			"seq", m.Seq, "kind", m.Kind, "entity_id", m.EntityID,
			"attempt", attempt+1, "error", err)
	}

	slog.Error("persistence flush gave up; change is unsaved",
		"seq", m.Seq, "kind", m.Kind, "entity_id", m.EntityID, "error", err)
	if q.onUnsaved != nil {
		q.onUnsaved(m, err)
	}
}
