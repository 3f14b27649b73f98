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

package media

import (
	"context"
	"io/fs"
	"log/slog"
	"path/filepath"

	"golang.org/x/sync/errgroup"
)

// DefaultWarmConcurrency bounds parallel ffmpeg invocations during a cache
// warm when no pool size is configured.
const DefaultWarmConcurrency = 4

// WarmCache walks the media root and extracts a thumbnail for every clip
// that does not have a cached one yet. Extraction runs on a bounded worker
// group; individual clip failures are logged and skipped so one corrupt
// file cannot abort the warm. Returns the number of clips processed.
func (p *FFmpegProvider) WarmCache(ctx context.Context, concurrency int) (int, error) {
	if p.mediaRoot == "" {
		return 0, nil
	}
	if concurrency <= 0 {
		concurrency = DefaultWarmConcurrency
	}

	var paths []string
	err := filepath.WalkDir(p.mediaRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		rel, relErr := filepath.Rel(p.mediaRoot, path)
		if relErr != nil {
			return relErr
		}
		paths = append(paths, rel)
		return nil
	})
	if err != nil {
		return 0, &ResourceError{Op: "warm", Path: p.mediaRoot, Err: err}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for _, rel := range paths {
		g.Go(func() error {
			if _, err := p.FetchThumbnail(gctx, rel); err != nil {
				// Non-video files and corrupt clips are expected in a
				// shared library directory. Log and move on.
				slog.Warn("thumbnail warm skipped clip", "path", rel, "error", err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}
	return len(paths), nil
}
