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

// This file implements the ffmpeg-backed media provider.
//
// Logic flow:
//  1. Sniff the clip with the filetype library so non-video files are
//     refused before ffmpeg ever runs.
//  2. Thumbnails: run ffmpeg seeking one second in and extracting a single
//     frame into the thumbnail cache directory, then read the bytes back.
//  3. Durations: run ffprobe asking only for the container duration and
//     parse the single number it prints.
//
// Every invocation runs under a per-call timeout and behind a shared rate
// limiter, so a burst of node insertions cannot fork an unbounded number of
// ffmpeg processes.
package media

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/h2non/filetype"
	"golang.org/x/time/rate"

	"github.com/y232457250/CineGraph-AI-sub001/internal/config"
)

// Argument templates for the external tools. The thumbnail seek lands one
// second into the clip so title cards and black lead-in frames are skipped.
const (
	thumbnailArgs   = "-y -hide_banner -loglevel error -ss 00:00:01 -i %s -vframes 1 -f image2 %s"
	probeArgs       = "-v error -show_entries format=duration -of default=noprint_wrappers=1:nokey=1 %s"
	argSeparator    = " "
	defaultTimeout  = 15 * time.Second
	defaultProbeRPS = 4
)

// FFmpegProvider probes clips and extracts thumbnails with the ffmpeg and
// ffprobe binaries. It is safe for concurrent use.
type FFmpegProvider struct {
	ffmpegPath  string
	ffprobePath string
	mediaRoot   string
	cacheDir    string
	timeout     time.Duration
	limiter     *rate.Limiter
}

// NewFFmpegProvider builds a provider from the storage configuration,
// falling back to binaries on the PATH and conservative defaults for any
// unset limits.
func NewFFmpegProvider(storage config.Storage) *FFmpegProvider {
	ffmpegPath := storage.FFmpegPath
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	ffprobePath := storage.FFprobePath
	if ffprobePath == "" {
		ffprobePath = "ffprobe"
	}
	timeout := time.Duration(storage.ProbeTimeoutSecs) * time.Second
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	rps := storage.MaxProbesPerSec
	if rps <= 0 {
		rps = defaultProbeRPS
	}
	return &FFmpegProvider{
		ffmpegPath:  ffmpegPath,
		ffprobePath: ffprobePath,
		mediaRoot:   storage.MediaRoot,
		cacheDir:    storage.ThumbnailCacheDir,
		timeout:     timeout,
		limiter:     rate.NewLimiter(rate.Limit(rps), rps),
	}
}

// FetchThumbnail extracts a single frame from the clip and returns the JPEG
// bytes. The frame is cached on disk under the thumbnail cache directory and
// reused on subsequent calls for the same clip.
func (p *FFmpegProvider) FetchThumbnail(ctx context.Context, path string) ([]byte, error) {
	full := p.resolve(path)
	if err := p.checkVideo(full); err != nil {
		return nil, &ResourceError{Op: "thumbnail", Path: path, Err: err}
	}

	cached := p.thumbnailPath(path)
	if data, err := os.ReadFile(cached); err == nil && len(data) > 0 {
		return data, nil
	}

	if err := os.MkdirAll(filepath.Dir(cached), 0o755); err != nil {
		return nil, &ResourceError{Op: "thumbnail", Path: path, Err: err}
	}

	args := fmt.Sprintf(thumbnailArgs, full, cached)
	if err := p.run(ctx, p.ffmpegPath, args, "thumbnail", path); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(cached)
	if err != nil {
		return nil, &ResourceError{Op: "thumbnail", Path: path, Err: err}
	}
	return data, nil
}

// ProbeDuration returns the clip's container duration in seconds.
func (p *FFmpegProvider) ProbeDuration(ctx context.Context, path string) (float64, error) {
	full := p.resolve(path)
	if err := p.checkVideo(full); err != nil {
		return 0, &ResourceError{Op: "probe", Path: path, Err: err}
	}

	if err := p.limiter.Wait(ctx); err != nil {
		return 0, &ResourceError{Op: "probe", Path: path, Err: err}
	}

	runCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	args := strings.Split(fmt.Sprintf(probeArgs, full), argSeparator)
	out, err := exec.CommandContext(runCtx, p.ffprobePath, args...).Output()
	if err != nil {
		return 0, &ResourceError{Op: "probe", Path: path, Timeout: errors.Is(runCtx.Err(), context.DeadlineExceeded), Err: err}
	}

	seconds, err := strconv.ParseFloat(strings.TrimSpace(string(out)), 64)
	if err != nil {
		return 0, &ResourceError{Op: "probe", Path: path, Err: fmt.Errorf("unparseable duration %q: %w", strings.TrimSpace(string(out)), err)}
	}
	return seconds, nil
}

// Acquire fetches a thumbnail and wraps it in an owning handle. The handle's
// release drops the in-memory bytes; the on-disk cache entry stays so a
// re-acquire after lazy retry is cheap.
func (p *FFmpegProvider) Acquire(ctx context.Context, path string) (*Handle, error) {
	data, err := p.FetchThumbnail(ctx, path)
	if err != nil {
		return nil, err
	}
	return NewHandle(path, data, nil), nil
}

// run executes one external command under the provider's rate limit and
// timeout.
func (p *FFmpegProvider) run(ctx context.Context, bin, args, op, path string) error {
	if err := p.limiter.Wait(ctx); err != nil {
		return &ResourceError{Op: op, Path: path, Err: err}
	}

	runCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, bin, strings.Split(args, argSeparator)...)
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return &ResourceError{Op: op, Path: path, Timeout: errors.Is(runCtx.Err(), context.DeadlineExceeded), Err: err}
	}
	return nil
}

// resolve joins a library-relative clip path onto the media root. Absolute
// paths pass through untouched.
func (p *FFmpegProvider) resolve(path string) string {
	if filepath.IsAbs(path) || p.mediaRoot == "" {
		return path
	}
	return filepath.Join(p.mediaRoot, path)
}

// thumbnailPath maps a clip path to its cache entry.
func (p *FFmpegProvider) thumbnailPath(path string) string {
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	return filepath.Join(p.cacheDir, base+".jpg")
}

// checkVideo sniffs the file header and refuses anything that is not a
// recognized video container.
func (p *FFmpegProvider) checkVideo(full string) error {
	f, err := os.Open(full)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	head := make([]byte, 261)
	n, err := f.Read(head)
	if err != nil && n == 0 {
		return err
	}

	if !filetype.IsVideo(head[:n]) {
		kind, _ := filetype.Match(head[:n])
		return fmt.Errorf("not a video file (detected %q)", kind.MIME.Value)
	}
	return nil
}
