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

// This file defines Handle, the owning wrapper for an acquired thumbnail.
// Acquisition implies eventual exactly-once release: the release callback
// runs on the first Release call and never again, no matter how many code
// paths (delete, eviction, teardown, in-flight drain) race to call it.
package media

import "sync"

// Handle owns one acquired thumbnail. It is safe to call Release from
// multiple goroutines; only the first call runs the release callback.
type Handle struct {
	path    string
	payload []byte

	once     sync.Once
	released bool
	mu       sync.Mutex
	release  func()
}

// NewHandle wraps thumbnail bytes with an owned release callback. release
// may be nil when the underlying resource needs no teardown.
func NewHandle(path string, payload []byte, release func()) *Handle {
	return &Handle{path: path, payload: payload, release: release}
}

// Path returns the media path the handle was acquired for.
func (h *Handle) Path() string {
	return h.path
}

// Payload returns the encoded thumbnail bytes. Returns nil after release.
func (h *Handle) Payload() []byte {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.released {
		return nil
	}
	return h.payload
}

// Release frees the underlying resource. Safe to call more than once; every
// call after the first is a no-op.
func (h *Handle) Release() {
	h.once.Do(func() {
		h.mu.Lock()
		h.released = true
		h.payload = nil
		h.mu.Unlock()
		if h.release != nil {
			h.release()
		}
	})
}

// Released reports whether the handle has been released.
func (h *Handle) Released() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.released
}
