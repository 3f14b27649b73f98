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

// This file defines TrackingFactory, a handle factory double that counts
// acquire and release calls. Graph-store tests use it to assert the
// exactly-once release contract: after teardown, acquires == releases, with
// no double-release and no leak.
package media

import (
	"context"
	"sync"
	"sync/atomic"
)

// TrackingFactory is an in-memory HandleFactory that fabricates payloads
// and counts the lifecycle of every handle it issues. Safe for concurrent
// use.
type TrackingFactory struct {
	acquires atomic.Int64
	releases atomic.Int64

	mu   sync.Mutex
	fail map[string]error // paths that should fail acquisition
}

// NewTrackingFactory creates an empty tracking factory.
func NewTrackingFactory() *TrackingFactory {
	return &TrackingFactory{fail: make(map[string]error)}
}

// FailWith makes future Acquire calls for the given path return err,
// simulating a broken or timed-out clip.
func (f *TrackingFactory) FailWith(path string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fail[path] = err
}

// Acquire issues a counted handle whose release bumps the release counter.
func (f *TrackingFactory) Acquire(_ context.Context, path string) (*Handle, error) {
	f.mu.Lock()
	err := f.fail[path]
	f.mu.Unlock()
	if err != nil {
		return nil, &ResourceError{Op: "thumbnail", Path: path, Err: err}
	}

	f.acquires.Add(1)
	return NewHandle(path, []byte("thumb:"+path), func() {
		f.releases.Add(1)
	}), nil
}

// Acquires returns the number of handles issued so far.
func (f *TrackingFactory) Acquires() int64 {
	return f.acquires.Load()
}

// Releases returns the number of handles released so far.
func (f *TrackingFactory) Releases() int64 {
	return f.releases.Load()
}

// Outstanding returns acquires minus releases; zero means every issued
// handle has been released exactly once.
func (f *TrackingFactory) Outstanding() int64 {
	return f.acquires.Load() - f.releases.Load()
}
