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

// Package media_test contains unit tests for the owning thumbnail handle
// and the tracking factory double.
package media_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/y232457250/CineGraph-AI-sub001/internal/core/media"
)

// TestHandleReleaseExactlyOnce verifies that the release callback runs once
// no matter how many times or from how many goroutines Release is called.
func TestHandleReleaseExactlyOnce(t *testing.T) {
	var calls int
	var mu sync.Mutex
	h := media.NewHandle("clips/ep01.mp4", []byte{1, 2, 3}, func() {
		mu.Lock()
		calls++
		mu.Unlock()
	})

	assert.False(t, h.Released())
	assert.Equal(t, []byte{1, 2, 3}, h.Payload())

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h.Release()
		}()
	}
	wg.Wait()

	assert.True(t, h.Released())
	assert.Nil(t, h.Payload())
	mu.Lock()
	assert.Equal(t, 1, calls)
	mu.Unlock()
}

// TestTrackingFactoryCounts verifies acquire/release bookkeeping, including
// that a double release is not counted twice.
func TestTrackingFactoryCounts(t *testing.T) {
	f := media.NewTrackingFactory()
	ctx := context.Background()

	h1, err := f.Acquire(ctx, "a.mp4")
	require.NoError(t, err)
	h2, err := f.Acquire(ctx, "b.mp4")
	require.NoError(t, err)

	assert.Equal(t, int64(2), f.Acquires())
	assert.Equal(t, int64(2), f.Outstanding())

	h1.Release()
	h1.Release()
	h2.Release()

	assert.Equal(t, int64(2), f.Releases())
	assert.Equal(t, int64(0), f.Outstanding())
}

// TestTrackingFactoryFailure verifies that a configured failure surfaces as
// a ResourceError and issues no handle.
func TestTrackingFactoryFailure(t *testing.T) {
	f := media.NewTrackingFactory()
	cause := errors.New("disk unplugged")
	f.FailWith("broken.mp4", cause)

	_, err := f.Acquire(context.Background(), "broken.mp4")
	require.Error(t, err)

	var resErr *media.ResourceError
	require.True(t, errors.As(err, &resErr))
	assert.Equal(t, "broken.mp4", resErr.Path)
	assert.True(t, errors.Is(err, cause))
	assert.Equal(t, int64(0), f.Acquires())
}
