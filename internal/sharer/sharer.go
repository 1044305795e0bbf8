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

// Package sharer multiplexes many logical registrations (one per
// interested text channel, say) onto one Watcher per target, and persists
// registrations so they resume across restarts. Hooks are persisted as
// tagged (kind, params) variants and reconstructed through a small factory
// registry rather than serialized as code.
package sharer

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/clipforge/clipforge/internal/durable"
	"github.com/clipforge/clipforge/internal/opsnotify"
	"github.com/clipforge/clipforge/internal/watcher"
)

// NewRegistrationID mints a fresh, stable-across-restarts Registration.ID.
// Callers that already have a natural stable key (a database row id) should
// use that instead; this is for callers building a Registration from
// scratch (e.g. a brand new chat-channel subscription).
func NewRegistrationID() string { return uuid.New().String() }

// HookSpec is a registration's hook in its serializable, tagged-variant
// form: a kind name plus the parameters a HookFactory needs to reconstruct
// the concrete watcher.Hook closure (e.g. kind "add_to_captured_streams"
// with params {"channel_id": "...", "priority": "..."}, or kind
// "send_enabled_msg" with params {"channel_id": "..."}).
type HookSpec struct {
	Kind   string            `json:"kind"`
	Params map[string]string `json:"params"`
}

// HookFactory reconstructs a concrete hook from a HookSpec's params. A
// factory panics or errors only on malformed params; on a construction
// error Sharer.Start returns it at once, so the registration's later hooks
// are not added and the registration is not persisted.
type HookFactory func(params map[string]string) (watcher.Hook, error)

// Registration is one logical subscriber's (target, hooks) pair, the unit
// of persistence. ID must be stable across process restarts (e.g. a
// database row key) so re-registration on resume replaces rather than
// duplicates the prior entry in a watcher's hook table.
type Registration struct {
	ID        string     `json:"id"`
	ChannelID string     `json:"channel_id"`
	Target    string     `json:"target"`
	Hooks     []HookSpec `json:"hooks"`
}

func (r Registration) marshal() ([]byte, error) { return json.Marshal(r) }

// PollFactory builds the PollFunc a new Watcher should use for target,
// wiring it to the caller's metadata extractor and Stream registry.
type PollFactory func(target string) watcher.PollFunc

type sharedWatcher struct {
	w        *watcher.Watcher
	cancel   context.CancelFunc
	refcount int
}

// Sharer owns the target -> Watcher map and the registration persistence
// table. The zero value is not usable; construct with New.
type Sharer struct {
	mu        sync.Mutex
	watchers  map[string]*sharedWatcher
	pollFor   PollFactory
	notifier  *opsnotify.Notifier
	store     durable.TableStore
	factories map[string]HookFactory
}

// New constructs a Sharer. store is the TableStore backing the registers
// table (durable.TableRegisters); pass durable.NewMemStore() for a
// non-persistent deployment.
func New(pollFor PollFactory, notifier *opsnotify.Notifier, store durable.TableStore) *Sharer {
	return &Sharer{
		watchers:  make(map[string]*sharedWatcher),
		pollFor:   pollFor,
		notifier:  notifier,
		store:     store,
		factories: make(map[string]HookFactory),
	}
}

// RegisterHookKind installs the factory used to reconstruct hooks of the
// given kind from persisted HookSpecs. Call this for every kind the caller
// uses before LoadAll, or reconstruction of that kind will fail.
func (s *Sharer) RegisterHookKind(kind string, factory HookFactory) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.factories[kind] = factory
}

// Start implements the WatcherSharer start() algorithm: locate or
// create the shared watcher for reg.Target, increment its start count
// (starting the watcher's loop on the 0->1 transition), and insert this
// registration's hooks into its hook table. Late-joining registrations see
// the hook fire immediately if the watcher already has an active stream,
// via watcher.AddHook's own late-join behavior.
func (s *Sharer) Start(ctx context.Context, reg Registration) error {
	s.mu.Lock()
	sw, ok := s.watchers[reg.Target]
	if !ok {
		wctx, cancel := context.WithCancel(context.Background())
		w := watcher.New(reg.Target, s.pollFor(reg.Target), s.notifier)
		sw = &sharedWatcher{w: w, cancel: cancel}
		s.watchers[reg.Target] = sw
		go w.Start(wctx)
	}
	sw.refcount++
	w := sw.w
	s.mu.Unlock()

	for _, spec := range reg.Hooks {
		hook, err := s.build(spec)
		if err != nil {
			return fmt.Errorf("sharer: registration %s: %w", reg.ID, err)
		}
		w.AddHook(ctx, reg.ID, hook)
	}

	if s.store != nil {
		data, err := reg.marshal()
		if err != nil {
			return fmt.Errorf("sharer: marshaling registration %s: %w", reg.ID, err)
		}
		if err := s.store.AddMember(ctx, durable.Key{reg.ChannelID}, data); err != nil {
			return fmt.Errorf("sharer: persisting registration %s: %w", reg.ID, err)
		}
	}
	return nil
}

// Stop implements the symmetric stop(): remove this registration's hooks,
// decrement the refcount, and stop the underlying watcher if it hits zero.
func (s *Sharer) Stop(ctx context.Context, reg Registration) error {
	s.mu.Lock()
	sw, ok := s.watchers[reg.Target]
	if !ok {
		s.mu.Unlock()
		return nil
	}
	sw.w.RemoveHook(reg.ID)
	sw.refcount--
	last := sw.refcount <= 0
	if last {
		delete(s.watchers, reg.Target)
	}
	s.mu.Unlock()

	if last {
		sw.w.Stop()
		sw.cancel()
	}

	if s.store != nil {
		data, err := reg.marshal()
		if err != nil {
			return fmt.Errorf("sharer: marshaling registration %s: %w", reg.ID, err)
		}
		if err := s.store.RemoveMember(ctx, durable.Key{reg.ChannelID}, data); err != nil {
			return fmt.Errorf("sharer: removing persisted registration %s: %w", reg.ID, err)
		}
	}
	return nil
}

// LoadAll reads every persisted registration for channelID and re-enters
// start() for each, resuming watchers across a process restart.
func (s *Sharer) LoadAll(ctx context.Context, channelID string) error {
	if s.store == nil {
		return nil
	}
	members, err := s.store.Members(ctx, durable.Key{channelID})
	if err != nil {
		return fmt.Errorf("sharer: loading registrations for %s: %w", channelID, err)
	}
	for _, raw := range members {
		var reg Registration
		if err := json.Unmarshal(raw, &reg); err != nil {
			return fmt.Errorf("sharer: decoding registration: %w", err)
		}
		if err := s.Start(ctx, reg); err != nil {
			return err
		}
	}
	return nil
}

// Watcher returns the shared Watcher currently serving target, or nil if
// none is active. Chiefly for tests and introspection.
func (s *Sharer) Watcher(target string) *watcher.Watcher {
	s.mu.Lock()
	defer s.mu.Unlock()
	sw, ok := s.watchers[target]
	if !ok {
		return nil
	}
	return sw.w
}

func (s *Sharer) build(spec HookSpec) (watcher.Hook, error) {
	s.mu.Lock()
	factory, ok := s.factories[spec.Kind]
	s.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("sharer: no hook factory registered for kind %q", spec.Kind)
	}
	return factory(spec.Params)
}
