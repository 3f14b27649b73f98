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

// Package media is the boundary to the local media library. It probes clip
// durations, extracts thumbnails, and wraps every thumbnail in an owning
// Handle whose release is exactly-once. The project graph store is the only
// acquirer; it must release every handle it stops tracking, on every path
// (explicit delete, capacity eviction, project teardown).
package media

import (
	"context"
	"fmt"
)

// Provider is the raw probing surface over the media library. Both calls are
// fallible and timeout-bounded; a failure never blocks the structural
// mutation that triggered it.
type Provider interface {
	// FetchThumbnail extracts a representative still frame from the clip at
	// path and returns the encoded image bytes.
	FetchThumbnail(ctx context.Context, path string) ([]byte, error)
	// ProbeDuration returns the playable length of the clip in seconds.
	ProbeDuration(ctx context.Context, path string) (float64, error)
}

// HandleFactory acquires owned thumbnail handles. Acquire is the only way a
// caller comes to hold a Handle, and every acquired handle must eventually
// be released exactly once.
type HandleFactory interface {
	Acquire(ctx context.Context, path string) (*Handle, error)
}

// ResourceError reports a media fetch or probe failure. Timeout marks
// deadline expiry so callers can distinguish a slow library from a broken
// clip.
type ResourceError struct {
	Op      string
	Path    string
	Timeout bool
	Err     error
}

// Error formats the failure with its operation and path.
func (e *ResourceError) Error() string {
	if e.Timeout {
		return fmt.Sprintf("media %s timed out for %q: %v", e.Op, e.Path, e.Err)
	}
	return fmt.Sprintf("media %s failed for %q: %v", e.Op, e.Path, e.Err)
}

// Unwrap exposes the underlying cause for errors.Is / errors.As.
func (e *ResourceError) Unwrap() error {
	return e.Err
}
