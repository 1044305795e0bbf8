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

package platform

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/clipforge/clipforge/internal/backoff"
	"github.com/clipforge/clipforge/internal/clipsvc"
)

// dedupWindow is the window within which repeat errors for the same URL
// collapse to a single log line.
const dedupWindow = 30 * time.Minute

// Extractor dispatches Extract calls to the registered platform Modules,
// gated by a size-1 semaphore (only one upstream metadata request
// in flight at a time) plus a shared ExpBackoff cooldown, and deduplicates
// repeat error log lines per URL within a 30 minute window.
type Extractor struct {
	modules []Module
	sem     *semaphore.Weighted
	backoff *backoff.ExpBackoff

	pacer Pacer

	mu       sync.Mutex
	lastErr  map[string]string    // url -> last distinct error message logged
	lastSeen map[string]time.Time // url -> time that message was last logged
	onError  func(url, msg string) // hook for tests/logging, may be nil
}

// Pacer is a steady-state request gate consulted before each upstream
// metadata call, on top of the semaphore and the cooldown: a request is
// only attempted if the pacer grants it. Satisfied by
// internal/limiter.TokenBucket.
type Pacer interface {
	RequestOK(ctx context.Context) bool
}

// SetPacer installs the pacer. Pass nil to remove it.
func (e *Extractor) SetPacer(p Pacer) { e.pacer = p }

// NewExtractor constructs an Extractor over the given platform modules.
func NewExtractor(modules ...Module) *Extractor {
	return &Extractor{
		modules:  modules,
		sem:      semaphore.NewWeighted(1),
		backoff:  backoff.New(time.Second, 5*time.Minute),
		lastErr:  make(map[string]string),
		lastSeen: make(map[string]time.Time),
	}
}

// OnError installs a hook invoked for every *newly logged* error (i.e. not
// suppressed by the dedup window), chiefly for tests.
func (e *Extractor) OnError(fn func(url, msg string)) { e.onError = fn }

// Extract finds a module recognizing url and queries it, returning
// (nil, nil) if the URL is not currently a recognized stream/channel.
func (e *Extractor) Extract(ctx context.Context, url string) (*InfoRecord, error) {
	var mod Module
	for _, m := range e.modules {
		if m.Recognizes(url) {
			mod = m
			break
		}
	}
	if mod == nil {
		return nil, nil
	}

	if err := e.sem.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("extractor: acquiring request slot: %w", err)
	}
	defer e.sem.Release(1)

	if wait := e.backoff.Current(); wait > 0 {
		t := time.NewTimer(wait)
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
			return nil, ctx.Err()
		}
	}

	if e.pacer != nil && !e.pacer.RequestOK(ctx) {
		e.backoff.Backoff()
		return nil, clipsvc.RateLimited{DownloadBlocked: clipsvc.DownloadBlocked{URL: url, Status: 429}}
	}

	rec, err := mod.Query(ctx, url)
	if err != nil {
		e.logError(url, err)
		var rl clipsvc.RateLimited
		if errors.As(err, &rl) {
			if rl.RetryAfter > 0 {
				e.backoff.SetNextRequestAt(time.Now().Add(rl.RetryAfter))
			}
			e.backoff.Backoff()
		}
		return nil, err
	}

	e.backoff.Cooldown()
	return rec, nil
}

// logError logs err for url unless the same message was already logged for
// that URL within dedupWindow.
func (e *Extractor) logError(url string, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := time.Now()
	msg := err.Error()
	if last, ok := e.lastErr[url]; ok && last == msg {
		if now.Sub(e.lastSeen[url]) < dedupWindow {
			return
		}
	}
	e.lastErr[url] = msg
	e.lastSeen[url] = now
	log.Printf("extractor: %s: %s", url, msg)
	if e.onError != nil {
		e.onError(url, msg)
	}
}
