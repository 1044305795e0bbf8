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

// Package watcher implements the per-target poll loop and the share
// counting of its stream's active download: the layer between metadata
// polling and the Stream it drives. The lifecycle is an explicit state
// machine with one logging/notify call per transition, collapsed into a
// single transition function since a 5-state loop doesn't warrant an
// event registry.
package watcher

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/clipforge/clipforge/internal/backoff"
	"github.com/clipforge/clipforge/internal/clipsvc"
	"github.com/clipforge/clipforge/internal/logctx"
	"github.com/clipforge/clipforge/internal/opsnotify"
	"github.com/clipforge/clipforge/internal/sharedhandle"
	"github.com/clipforge/clipforge/internal/stream"
)

// State is one position in the watcher's lifecycle.
type State int

const (
	StateIdle State = iota
	StateStarting
	StateLive
	StateVerifying
	StateEnded
)

func (s State) String() string {
	switch s {
	case StateStarting:
		return "STARTING"
	case StateLive:
		return "LIVE"
	case StateVerifying:
		return "VERIFYING"
	case StateEnded:
		return "ENDED"
	default:
		return "IDLE"
	}
}

// defaultPollPeriod and the backoff bounds it sits between, /.
const (
	defaultPollPeriod = 60 * time.Second
	minPollPeriod     = 15 * time.Second
	maxPollPeriod     = 20 * time.Minute
)

// verifyStrikeLimit is how many consecutive misses VERIFYING tolerates
// before declaring the broadcast ENDED, so a transient metadata dropout
// doesn't end a healthy capture.
const verifyStrikeLimit = 4

// Hook is fired, in registration order, every time the watcher transitions
// into LIVE (a "stream on" event). A hook's error is
// logged and does not stop the watcher or the remaining hooks.
type Hook func(ctx context.Context, s *stream.Stream) error

// PollFunc performs one metadata poll for the watcher's target, creating or
// updating the target's Stream via whatever registry the caller maintains,
// and returns it, or (nil, nil) if the target is not currently live.
type PollFunc func(ctx context.Context) (*stream.Stream, error)

type hookEntry struct {
	id   string
	hook Hook
}

// Watcher drives one target's poll loop and the share counter for its
// Stream's active download.
type Watcher struct {
	Target string

	poll     PollFunc
	period   *backoff.ExpBackoff
	notifier *opsnotify.Notifier
	log      *logctx.Logger

	mu            sync.Mutex
	state         State
	activeStream  *stream.Stream
	share         *sharedhandle.SharedHandle[*stream.Stream]
	hooks         []hookEntry
	verifyStrikes int
	forbidden     bool

	stopCh    chan struct{}
	stoppedCh chan struct{}
}

// New constructs a Watcher for target. poll is called once per tick; it is
// the caller's responsibility to wire it to the metadata extractor and
// Stream registry.
func New(target string, poll PollFunc, notifier *opsnotify.Notifier) *Watcher {
	return &Watcher{
		Target:   target,
		poll:     poll,
		period:   backoff.New(minPollPeriod, maxPollPeriod),
		notifier: notifier,
		log:      logctx.New("watcher", target),
		state:    StateIdle,
	}
}

// AddHook registers a hook under id (the WatcherSharer registration's
// handle), so it can later be removed by the same id without disturbing the
// others' order. If the watcher already has an active stream, the hook is
// fired once immediately against it, so a late-joining registration still
// observes the "stream enabled" event.
func (w *Watcher) AddHook(ctx context.Context, id string, h Hook) {
	w.mu.Lock()
	w.hooks = append(w.hooks, hookEntry{id: id, hook: h})
	active := w.activeStream
	w.mu.Unlock()

	if active != nil {
		w.fireOne(ctx, h, active)
	}
}

// RemoveHook removes every hook registered under id.
func (w *Watcher) RemoveHook(id string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := w.hooks[:0]
	for _, e := range w.hooks {
		if e.id != id {
			out = append(out, e)
		}
	}
	w.hooks = out
}

// State returns the watcher's current lifecycle state.
func (w *Watcher) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// ActiveStream returns the currently live Stream, or nil.
func (w *Watcher) ActiveStream() *stream.Stream {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.activeStream
}

// Start runs the poll loop until Stop is called or the extractor reports
// DownloadForbidden, which terminates the watcher permanently for this
// target. Start blocks; callers run it in its own goroutine.
func (w *Watcher) Start(ctx context.Context) {
	w.mu.Lock()
	if w.stopCh != nil {
		w.mu.Unlock()
		w.log.Printf("start called on an already-running watcher, no-op")
		return
	}
	w.stopCh = make(chan struct{})
	w.stoppedCh = make(chan struct{})
	stopCh := w.stopCh
	w.mu.Unlock()
	defer close(w.stoppedCh)

	for {
		wait := w.period.Current()
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case <-time.After(wait):
		}

		if w.tick(ctx) {
			return // DownloadForbidden: terminated for good.
		}
	}
}

// Stop ends the poll loop and, if a download is active, releases this
// watcher's own hold on it via its share handle. It blocks until the loop
// has actually exited.
func (w *Watcher) Stop() {
	w.mu.Lock()
	stopCh := w.stopCh
	stoppedCh := w.stoppedCh
	w.mu.Unlock()
	if stopCh == nil {
		return
	}
	close(stopCh)
	<-stoppedCh

	w.mu.Lock()
	active := w.activeStream
	share := w.share
	w.activeStream = nil
	w.state = StateIdle
	w.mu.Unlock()
	if active != nil && share != nil {
		if err := share.Release(); err != nil {
			w.log.Error("stopping download: %v", err)
		}
	}
}

// tick runs one poll and applies its result to the state machine. It
// returns true if the watcher should terminate permanently.
func (w *Watcher) tick(ctx context.Context) (terminate bool) {
	w.mu.Lock()
	forbidden := w.forbidden
	w.mu.Unlock()
	if forbidden {
		return true
	}

	s, err := w.poll(ctx)
	if err != nil {
		var df clipsvc.DownloadForbidden
		if asDownloadForbidden(err, &df) {
			w.mu.Lock()
			w.forbidden = true
			w.mu.Unlock()
			w.log.Critical("download forbidden, terminating watcher permanently: %v", err)
			if w.notifier != nil {
				w.notifier.Send(ctx, w.Target, opsnotify.KindWatcher, err.Error(), 30*time.Minute)
			}
			return true
		}
		w.log.Error("poll failed: %v", err)
		w.period.Backoff()
		return false
	}
	w.period.Cooldown()
	w.apply(ctx, s)
	return false
}

// apply advances the state machine given the latest poll result s (nil
// meaning "not live").
func (w *Watcher) apply(ctx context.Context, s *stream.Stream) {
	w.mu.Lock()
	state := w.state

	switch state {
	case StateIdle:
		if s == nil {
			w.mu.Unlock()
			return
		}
		w.state = StateStarting
		w.mu.Unlock()
		w.enterLive(ctx, s)

	case StateVerifying:
		if s != nil {
			w.state = StateLive
			w.verifyStrikes = 0
			w.activeStream = s
			w.mu.Unlock()
			w.log.Printf("live transition confirmed, returning to LIVE from VERIFYING")
			return
		}
		w.verifyStrikes++
		strikes := w.verifyStrikes
		if strikes < verifyStrikeLimit {
			w.mu.Unlock()
			w.log.Printf("still not live (%d/%d strikes), remaining in VERIFYING", strikes, verifyStrikeLimit)
			return
		}
		active := w.activeStream
		share := w.share
		w.state = StateEnded
		w.activeStream = nil
		w.mu.Unlock()
		w.endLive(ctx, active, share)

	case StateLive:
		if s == nil {
			w.state = StateVerifying
			w.verifyStrikes = 1
			w.mu.Unlock()
			w.log.Printf("active download ended, entering VERIFYING")
			return
		}
		w.activeStream = s
		w.mu.Unlock()

	default:
		w.mu.Unlock()
	}
}

// enterLive fires every registered hook in order, then starts the download
// via the share counter.
func (w *Watcher) enterLive(ctx context.Context, s *stream.Stream) {
	w.mu.Lock()
	w.share = sharedhandle.New(s, func(st *stream.Stream) error {
		return st.StartDownload()
	}, func(st *stream.Stream) error {
		return st.StopDownload()
	})
	hooks := make([]hookEntry, len(w.hooks))
	copy(hooks, w.hooks)
	share := w.share
	w.mu.Unlock()

	w.fireAll(ctx, hooks, s)

	if err := share.Acquire(); err != nil {
		w.log.Error("starting download: %v", err)
		if w.notifier != nil {
			w.notifier.Send(ctx, w.Target, opsnotify.KindDownload, err.Error(), 30*time.Minute)
		}
		w.mu.Lock()
		w.state = StateIdle
		w.mu.Unlock()
		return
	}

	w.mu.Lock()
	w.state = StateLive
	w.activeStream = s
	w.mu.Unlock()
}

// endLive releases the share counter's hold acquired in enterLive, folding
// the capture into past_actdl via Stream.StopDownload.
func (w *Watcher) endLive(ctx context.Context, s *stream.Stream, share *sharedhandle.SharedHandle[*stream.Stream]) {
	defer func() {
		w.mu.Lock()
		w.state = StateIdle
		w.mu.Unlock()
	}()

	if share == nil {
		return
	}
	if err := share.Release(); err != nil {
		w.log.Error("stopping download: %v", err)
		if w.notifier != nil {
			w.notifier.Send(ctx, w.Target, opsnotify.KindDownload, err.Error(), 30*time.Minute)
		}
	}
	w.log.Printf("broadcast ended")
}

// fireAll runs every hook via errgroup, limited to one at a time, in
// registration order, each as an independent awaited call: a hook starts
// only after the previous one has returned, and one hook's error or panic
// never prevents another's from running or being observed.
func (w *Watcher) fireAll(ctx context.Context, hooks []hookEntry, s *stream.Stream) {
	var g errgroup.Group
	g.SetLimit(1)
	for _, e := range hooks {
		e := e
		g.Go(func() error {
			w.fireOne(ctx, e.hook, s)
			return nil
		})
	}
	g.Wait()
}

// fireOne runs a single hook, logging but not propagating its error.
func (w *Watcher) fireOne(ctx context.Context, h Hook, s *stream.Stream) {
	defer func() {
		if r := recover(); r != nil {
			w.log.Error("hook panicked: %v", r)
		}
	}()
	if err := h(ctx, s); err != nil {
		w.log.Error("hook failed: %v", err)
	}
}

func asDownloadForbidden(err error, target *clipsvc.DownloadForbidden) bool {
	return errors.As(err, target)
}
