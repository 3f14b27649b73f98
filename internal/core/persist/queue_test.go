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

package persist_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/y232457250/CineGraph-AI-sub001/internal/core/model"
	"github.com/y232457250/CineGraph-AI-sub001/internal/core/persist"
)

// scriptedBridge records every Apply call and fails the first failures[seq]
// attempts for a given mutation.
type scriptedBridge struct {
	mu       sync.Mutex
	applied  []uint64
	attempts map[uint64]int
	failures map[uint64]int
}

func newScriptedBridge() *scriptedBridge {
	return &scriptedBridge{
		attempts: make(map[uint64]int),
		failures: make(map[uint64]int),
	}
}

func (b *scriptedBridge) Apply(_ context.Context, m model.Mutation) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.attempts[m.Seq]++
	if b.attempts[m.Seq] <= b.failures[m.Seq] {
		return errors.New("database is locked")
	}
	b.applied = append(b.applied, m.Seq)
	return nil
}

func (b *scriptedBridge) appliedSeqs() []uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]uint64, len(b.applied))
	copy(out, b.applied)
	return out
}

func (b *scriptedBridge) attemptCount(seq uint64) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.attempts[seq]
}

// TestQueueAppliesInOrder verifies strict FIFO application even when an
// early mutation needs retries.
func TestQueueAppliesInOrder(t *testing.T) {
	bridge := newScriptedBridge()
	bridge.failures[1] = 2 // seq 1 succeeds on the third attempt

	queue := persist.NewWriteQueue(bridge, 5, time.Millisecond, nil)
	defer queue.Close()

	for seq := uint64(1); seq <= 4; seq++ {
		queue.Enqueue(model.Mutation{Seq: seq, Op: model.MutationUpsert, Kind: model.EntityNode})
	}
	require.NoError(t, queue.Flush(context.Background()))

	assert.Equal(t, []uint64{1, 2, 3, 4}, bridge.appliedSeqs())
	assert.Equal(t, 3, bridge.attemptCount(1))
}

// TestQueueSurfacesUnsavedChanges verifies that a mutation which never
// applies is reported through the callback exactly once, and that the
// queue keeps flushing later mutations afterwards.
func TestQueueSurfacesUnsavedChanges(t *testing.T) {
	bridge := newScriptedBridge()
	bridge.failures[1] = 1000 // never succeeds within the retry budget

	var mu sync.Mutex
	var unsaved []uint64
	onUnsaved := func(m model.Mutation, err error) {
		mu.Lock()
		defer mu.Unlock()
		require.Error(t, err)
		unsaved = append(unsaved, m.Seq)
	}

	queue := persist.NewWriteQueue(bridge, 3, time.Millisecond, onUnsaved)
	defer queue.Close()

	queue.Enqueue(model.Mutation{Seq: 1, Op: model.MutationUpsert, Kind: model.EntityNode})
	queue.Enqueue(model.Mutation{Seq: 2, Op: model.MutationUpsert, Kind: model.EntityNode})
	require.NoError(t, queue.Flush(context.Background()))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []uint64{1}, unsaved)
	assert.Equal(t, 3, bridge.attemptCount(1))
	assert.Equal(t, []uint64{2}, bridge.appliedSeqs())
}

// TestQueueCloseDrains verifies Close applies everything already queued
// before returning, and that a post-close enqueue is dropped.
func TestQueueCloseDrains(t *testing.T) {
	bridge := newScriptedBridge()
	queue := persist.NewWriteQueue(bridge, 5, time.Millisecond, nil)

	for seq := uint64(1); seq <= 10; seq++ {
		queue.Enqueue(model.Mutation{Seq: seq, Op: model.MutationUpsert, Kind: model.EntityEdge})
	}
	queue.Close()

	assert.Len(t, bridge.appliedSeqs(), 10)

	queue.Enqueue(model.Mutation{Seq: 11, Op: model.MutationUpsert, Kind: model.EntityEdge})
	assert.Len(t, bridge.appliedSeqs(), 10)
}

// TestFlushHonorsContext verifies Flush gives up when its context expires
// while the worker is stuck retrying.
func TestFlushHonorsContext(t *testing.T) {
	bridge := newScriptedBridge()
	bridge.failures[1] = 1000

	queue := persist.NewWriteQueue(bridge, 5, 20*time.Millisecond, nil)
	defer queue.Close()

	queue.Enqueue(model.Mutation{Seq: 1, Op: model.MutationUpsert, Kind: model.EntityNode})

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, queue.Flush(ctx), context.DeadlineExceeded)
}
