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

// Package registry holds the in-memory all_streams map: the single
// process-wide table of every Stream currently known, written on every
// mutation and read by the janitor, the watcher sharer's poll loop, and
// clip commands dispatching against a stream unique_id. It also builds the
// per-target poll functions that keep the map current.
package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/clipforge/clipforge/internal/clipsvc"
	"github.com/clipforge/clipforge/internal/durable"
	"github.com/clipforge/clipforge/internal/logctx"
	"github.com/clipforge/clipforge/internal/platform"
	"github.com/clipforge/clipforge/internal/stream"
	"github.com/clipforge/clipforge/internal/watcher"
)

// Registry owns the all_streams map: every Stream this process has ever
// observed, keyed by unique_id.
type Registry struct {
	cfg       stream.Config
	resolver  *platform.Resolver
	extractor *platform.Extractor
	store     durable.TableStore // all_streams table; nil for non-durable runs.
	secondary *platform.SecondarySource
	log       *logctx.Logger

	mu      sync.Mutex
	streams map[string]*stream.Stream
	// byTarget tracks which unique_id currently represents the live
	// broadcast for a given target (channel URL or handle), so repeated
	// polls of the same broadcast update the same Stream instead of minting
	// a new one each tick.
	byTarget map[string]string
}

// New constructs an empty Registry. cfg is applied to every Stream this
// registry creates; store is the TableStore backing the all_streams table,
// or nil to skip persistence.
func New(cfg stream.Config, resolver *platform.Resolver, extractor *platform.Extractor, store durable.TableStore) *Registry {
	return &Registry{
		cfg:       cfg,
		resolver:  resolver,
		extractor: extractor,
		store:     store,
		log:       logctx.New("registry", ""),
		streams:   make(map[string]*stream.Stream),
		byTarget:  make(map[string]string),
	}
}

// SetSecondary installs an optional secondary metadata source consulted
// when the primary extractor is rate limited, so watchers of well-known
// channels keep seeing live transitions through an upstream cooldown.
func (r *Registry) SetSecondary(s *platform.SecondarySource) {
	r.secondary = s
}

// streamConfig returns cfg with a Saver that persists each mutating
// operation's snapshot into the all_streams table.
func (r *Registry) streamConfig() stream.Config {
	cfg := r.cfg
	if r.store == nil {
		return cfg
	}
	cfg.Saver = func(snap stream.Snapshot) {
		data, err := json.Marshal(snap)
		if err != nil {
			r.log.Error("marshaling snapshot for %s: %v", snap.UniqueID, err)
			return
		}
		if err := r.store.Put(context.Background(), durable.Key{snap.UniqueID}, data); err != nil {
			r.log.Error("persisting snapshot for %s: %v", snap.UniqueID, err)
		}
	}
	return cfg
}

// Get returns the Stream for uniqueID, if known.
func (r *Registry) Get(uniqueID string) (*stream.Stream, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.streams[uniqueID]
	return s, ok
}

// Streams returns every Stream currently known, satisfying
// internal/janitor.StreamLister.
func (r *Registry) Streams() []*stream.Stream {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*stream.Stream, 0, len(r.streams))
	for _, s := range r.streams {
		out = append(out, s)
	}
	return out
}

// PollFunc builds the watcher.PollFunc for target (a channel URL or
// handle), satisfying internal/sharer.PollFactory. Each call queries the
// metadata resolver for target's current broadcast, creating a new Stream
// on first sight and updating the existing one (by identity, not a fresh
// unique_id) on every subsequent poll of the same broadcast.
func (r *Registry) PollFunc(target string) watcher.PollFunc {
	return func(ctx context.Context) (*stream.Stream, error) {
		streamURL, rec, err := r.resolver.GetStreamURL(ctx, target)
		if err != nil {
			if _, ok := err.(platform.ErrNoMatch); ok {
				return nil, nil
			}
			var rl clipsvc.RateLimited
			if errors.As(err, &rl) && r.secondary != nil {
				if rec2, err2 := r.secondary.LiveForChannel(ctx, target); err2 == nil && rec2 != nil {
					rec = rec2
					streamURL = rec2.StreamURL
				} else {
					return nil, err
				}
			} else {
				return nil, err
			}
		}
		if rec == nil && streamURL != "" {
			// A syntactic resolution (bare stream ID) carries no info
			// record; query the canonical URL for one.
			rec, err = r.extractor.Extract(ctx, streamURL)
			if err != nil {
				return nil, err
			}
		}
		if rec == nil || rec.Online == platform.Unknown {
			return nil, nil
		}

		r.mu.Lock()
		defer r.mu.Unlock()

		uid, seen := r.byTarget[target]
		if seen {
			if s, ok := r.streams[uid]; ok && (streamURL == "" || s.StreamURL == streamURL) {
				s.UpdateInfo(rec)
				return s, nil
			}
		}

		uid = stream.NewUniqueID(rec.ChannelID)
		s := stream.New(r.streamConfig(), uid, rec.Platform, streamURL, rec.ChannelURL, rec.Title, rec.StartTime)
		s.UpdateInfo(rec)
		r.streams[uid] = s
		r.byTarget[target] = uid
		return s, nil
	}
}

// Remove deletes uniqueID from the registry and, if persistence is
// enabled, from the all_streams table: a Stream is evicted from the
// in-memory map only when the durable snapshot store drops it.
func (r *Registry) Remove(ctx context.Context, uniqueID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.store != nil {
		if err := r.store.Delete(ctx, durable.Key{uniqueID}); err != nil {
			r.log.Error("dropping snapshot for %s: %v", uniqueID, err)
			return
		}
	}
	delete(r.streams, uniqueID)
	for target, uid := range r.byTarget {
		if uid == uniqueID {
			delete(r.byTarget, target)
		}
	}
}

// Restore reconstitutes a persisted Stream snapshot into the map. Lookup
// calls it lazily when a unique_id is missing from the map; a restored
// Stream can serve clip requests from its sealed files immediately, but a
// live capture is never resumed across restarts.
func (r *Registry) Restore(data []byte) (*stream.Stream, error) {
	var snap stream.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("registry: decoding snapshot: %w", err)
	}
	s := stream.FromSnapshot(r.streamConfig(), snap)
	r.mu.Lock()
	defer r.mu.Unlock()
	r.streams[snap.UniqueID] = s
	return s, nil
}

// Lookup returns the Stream for uniqueID, falling back to the all_streams
// table for broadcasts persisted by an earlier run of the process: a valid
// captured_streams reference may outlive the in-memory map across a
// restart, and its sealed files are still clippable.
func (r *Registry) Lookup(ctx context.Context, uniqueID string) (*stream.Stream, error) {
	if s, ok := r.Get(uniqueID); ok {
		return s, nil
	}
	if r.store != nil {
		data, err := r.store.Get(ctx, durable.Key{uniqueID})
		if err == nil {
			return r.Restore(data)
		}
	}
	return nil, fmt.Errorf("registry: %w", clipsvc.StreamNotLegal{UniqueID: uniqueID})
}
