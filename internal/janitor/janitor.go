/*
LICENSE
  Copyright (C) 2026 the Clipforge authors

  This is free software: you can redistribute it and/or modify it
  under the terms of the GNU General Public License as published by
  the Free Software Foundation, either version 3 of the License, or
  (at your option) any later version.

  It is distributed in the hope that it will be useful,
  but WITHOUT ANY WARRANTY; without even the implied warranty of
  MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
  GNU General Public License for more details.

  You should have received a copy of the GNU General Public License
  in gpl.txt. If not, see http://www.gnu.org/licenses/.
*/

// Package janitor implements the disk janitor: two independent periodic
// sweeps that keep the download and clip directories under their
// configured budgets, scheduled on a cron ("@every" expression) rather
// than a plain ticker.
package janitor

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"time"

	cron "github.com/robfig/cron/v3"

	"github.com/clipforge/clipforge/internal/logctx"
	"github.com/clipforge/clipforge/internal/opsnotify"
	"github.com/clipforge/clipforge/internal/stream"
)

// sweepSpec is the cron expression for both sweeps.
const sweepSpec = "@every 120s"

// StreamLister exposes the live Stream registry the downloads sweep needs:
// every Stream's claimed files (for the orphan pass) and a way to order
// Streams by ascending start_time for the clean_space pass.
type StreamLister interface {
	Streams() []*stream.Stream
}

// Config configures the janitor's two sweeps.
type Config struct {
	DownloadDir     string
	ClipDir         string
	DownloadsBudget int64 // DL_BUDGET
	ClipsBudget     int64 // MAX_CLIPS_SIZE
}

// Janitor runs the downloads and clips sweeps on a cron schedule.
type Janitor struct {
	cfg      Config
	streams  StreamLister
	notifier *opsnotify.Notifier
	log      *logctx.Logger
	cron     *cron.Cron
}

// New constructs a Janitor. streams provides the live Stream registry the
// downloads sweep reconciles against.
func New(cfg Config, streams StreamLister, notifier *opsnotify.Notifier) *Janitor {
	return &Janitor{
		cfg:      cfg,
		streams:  streams,
		notifier: notifier,
		log:      logctx.New("janitor", ""),
		cron:     cron.New(),
	}
}

// Start installs both sweeps on the cron scheduler and starts it. It does
// not block; call Stop to end the scheduler.
func (j *Janitor) Start(ctx context.Context) error {
	if _, err := j.cron.AddFunc(sweepSpec, func() { j.sweepDownloads(ctx) }); err != nil {
		return err
	}
	if _, err := j.cron.AddFunc(sweepSpec, func() { j.sweepClips(ctx) }); err != nil {
		return err
	}
	j.cron.Start()
	return nil
}

// Stop ends the scheduler, waiting for any in-flight sweep to finish.
func (j *Janitor) Stop() {
	<-j.cron.Stop().Done()
}

// SweepDownloadsNow runs the downloads sweep once, synchronously. Exported
// for tests and for an operator-triggered manual sweep.
func (j *Janitor) SweepDownloadsNow(ctx context.Context) { j.sweepDownloads(ctx) }

// SweepClipsNow runs the clips sweep once, synchronously.
func (j *Janitor) SweepClipsNow(ctx context.Context) { j.sweepClips(ctx) }

// sweepDownloads runs the downloads sweep: orphan deletion first,
// then per-Stream clean_space ordered by ascending start_time.
func (j *Janitor) sweepDownloads(ctx context.Context) {
	if j.cfg.DownloadsBudget <= 0 || j.cfg.DownloadDir == "" {
		return
	}

	total, sizes := dirUsage(j.cfg.DownloadDir)
	if total <= j.cfg.DownloadsBudget {
		return
	}

	streams := j.streams.Streams()
	used := make(map[string]bool)
	for _, s := range streams {
		for _, p := range s.UsedFiles() {
			used[filepath.Clean(p)] = true
		}
	}

	for path, size := range sizes {
		if used[filepath.Clean(path)] {
			continue
		}
		if err := os.Remove(path); err != nil {
			j.log.Error("removing orphan %s: %v", path, err)
			continue
		}
		total -= size
		j.log.Printf("removed orphan download %s (%d bytes)", path, size)
	}

	if total <= j.cfg.DownloadsBudget {
		return
	}

	sort.Slice(streams, func(a, b int) bool {
		return streams[a].StartTime().Before(streams[b].StartTime())
	})

	shortfall := total - j.cfg.DownloadsBudget
	for _, s := range streams {
		if shortfall <= 0 {
			break
		}
		freed := s.CleanSpace(shortfall)
		shortfall -= freed
	}

	if shortfall > 0 {
		j.log.Critical("downloads sweep could not reach budget, %d bytes still over", shortfall)
		if j.notifier != nil {
			j.notifier.Send(ctx, "janitor", opsnotify.KindJanitor, "downloads sweep could not reach budget", 30*time.Minute)
		}
	}
}

// sweepClips runs the clips sweep: plain LRU-by-mtime eviction
// with no allow-list, unlike the downloads sweep's Stream-aware reclaim.
func (j *Janitor) sweepClips(ctx context.Context) {
	if j.cfg.ClipsBudget <= 0 || j.cfg.ClipDir == "" {
		return
	}

	total, sizes := dirUsage(j.cfg.ClipDir)
	if total <= j.cfg.ClipsBudget {
		return
	}

	type file struct {
		path  string
		size  int64
		mtime time.Time
	}
	var files []file
	for path, size := range sizes {
		fi, err := os.Stat(path)
		if err != nil {
			continue
		}
		files = append(files, file{path, size, fi.ModTime()})
	}
	sort.Slice(files, func(a, b int) bool { return files[a].mtime.Before(files[b].mtime) })

	for _, f := range files {
		if total <= j.cfg.ClipsBudget {
			break
		}
		if err := os.Remove(f.path); err != nil {
			j.log.Error("removing clip %s: %v", f.path, err)
			continue
		}
		total -= f.size
	}

	if total > j.cfg.ClipsBudget {
		j.log.Critical("clips sweep could not reach budget, %d bytes still over", total-j.cfg.ClipsBudget)
		if j.notifier != nil {
			j.notifier.Send(ctx, "janitor", opsnotify.KindJanitor, "clips sweep could not reach budget", 30*time.Minute)
		}
	}
}

// dirUsage returns the total size of every regular file directly under dir
// and a path->size map for the same files.
func dirUsage(dir string) (int64, map[string]int64) {
	sizes := make(map[string]int64)
	var total int64
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, sizes
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		path := filepath.Join(dir, e.Name())
		sizes[path] = info.Size()
		total += info.Size()
	}
	return total, sizes
}
