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

// Package hooks provides the concrete start-hook kinds a registration can
// carry, in their tagged-variant form: each kind is a named factory that
// reconstructs a watcher.Hook from the parameters the sharer persists, so
// registrations survive restarts without serializing code.
package hooks

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/clipforge/clipforge/internal/clipsvc"
	"github.com/clipforge/clipforge/internal/durable"
	"github.com/clipforge/clipforge/internal/sharer"
	"github.com/clipforge/clipforge/internal/stream"
	"github.com/clipforge/clipforge/internal/watcher"
)

// Hook kind names, as persisted inside a registration's HookSpec.
const (
	KindAddToCapturedStreams = "add_to_captured_streams"
	KindSendEnabledMsg       = "send_enabled_msg"
)

// Announcer is the chat-platform collaborator that delivers the "stream
// enabled" message into a text channel. The command surface itself is out
// of scope; the core only needs this one outbound call.
type Announcer interface {
	AnnounceEnabled(ctx context.Context, channelID string, s *stream.Stream) error
}

// CapturedEntry is one member of a text channel's captured_streams set:
// the (priority, stream unique_id) pair the tie-break rule orders by.
type CapturedEntry struct {
	Priority float64 `json:"priority"`
	UniqueID string  `json:"unique_id"`
}

// StreamLookup resolves a unique_id to its Stream; satisfied by
// registry.Registry's Lookup method.
type StreamLookup interface {
	Lookup(ctx context.Context, uniqueID string) (*stream.Stream, error)
}

// Factories bundles the collaborators the hook kinds close over.
type Factories struct {
	Captured  durable.TableStore // the captured_streams table.
	Announcer Announcer          // nil disables send_enabled_msg hooks.
}

// RegisterAll installs every hook kind on s.
func (f Factories) RegisterAll(s *sharer.Sharer) {
	s.RegisterHookKind(KindAddToCapturedStreams, f.addToCapturedStreams)
	s.RegisterHookKind(KindSendEnabledMsg, f.sendEnabledMsg)
}

// addToCapturedStreams builds the hook that records a newly-live Stream in
// the registration's text channel's captured_streams set, so later bare
// clip commands in that channel can find it. Params: "channel_id"
// (required), "priority" (optional float, default 0).
func (f Factories) addToCapturedStreams(params map[string]string) (watcher.Hook, error) {
	channelID, ok := params["channel_id"]
	if !ok {
		return nil, fmt.Errorf("hook %s: missing channel_id param", KindAddToCapturedStreams)
	}
	var priority float64
	if p, ok := params["priority"]; ok {
		var err error
		priority, err = strconv.ParseFloat(p, 64)
		if err != nil {
			return nil, fmt.Errorf("hook %s: bad priority %q: %w", KindAddToCapturedStreams, p, err)
		}
	}
	return func(ctx context.Context, s *stream.Stream) error {
		member, err := json.Marshal(CapturedEntry{Priority: priority, UniqueID: s.UniqueID})
		if err != nil {
			return err
		}
		return f.Captured.AddMember(ctx, durable.Key{channelID}, member)
	}, nil
}

// sendEnabledMsg builds the hook that announces the live transition into a
// text channel. Params: "channel_id" (required).
func (f Factories) sendEnabledMsg(params map[string]string) (watcher.Hook, error) {
	channelID, ok := params["channel_id"]
	if !ok {
		return nil, fmt.Errorf("hook %s: missing channel_id param", KindSendEnabledMsg)
	}
	return func(ctx context.Context, s *stream.Stream) error {
		if f.Announcer == nil {
			return nil
		}
		return f.Announcer.AnnounceEnabled(ctx, channelID, s)
	}, nil
}

// Captured returns the channel's captured-streams entries.
func Captured(ctx context.Context, captured durable.TableStore, channelID string) ([]CapturedEntry, error) {
	members, err := captured.Members(ctx, durable.Key{channelID})
	if err != nil {
		return nil, fmt.Errorf("hooks: reading captured_streams for %s: %w", channelID, err)
	}
	out := make([]CapturedEntry, 0, len(members))
	for _, raw := range members {
		var e CapturedEntry
		if err := json.Unmarshal(raw, &e); err != nil {
			return nil, fmt.Errorf("hooks: decoding captured_streams member: %w", err)
		}
		out = append(out, e)
	}
	return out, nil
}

// Pick chooses which of a text channel's captured streams a bare
// `c <ago> <duration>` command refers to: the one with the highest
// (active, priority, end_time-or-start_time) key. A stream whose snapshot
// the store has since dropped is skipped; if none remain, the request is
// not legal for this channel.
func Pick(ctx context.Context, captured durable.TableStore, lookup StreamLookup, channelID string) (*stream.Stream, error) {
	entries, err := Captured(ctx, captured, channelID)
	if err != nil {
		return nil, err
	}
	var picked *stream.Stream
	var pickedActive bool
	var pickedPrio float64
	var pickedClock time.Time
	for _, e := range entries {
		s, err := lookup.Lookup(ctx, e.UniqueID)
		if err != nil {
			continue
		}
		active, exprPrio, clock := s.TieBreakKey()
		prio := e.Priority + exprPrio
		if picked == nil || higher(active, prio, clock, pickedActive, pickedPrio, pickedClock) {
			picked, pickedActive, pickedPrio, pickedClock = s, active, prio, clock
		}
	}
	if picked == nil {
		return nil, clipsvc.StreamNotLegal{UniqueID: ""}
	}
	return picked, nil
}

func higher(active bool, prio float64, clock time.Time, bActive bool, bPrio float64, bClock time.Time) bool {
	if active != bActive {
		return active
	}
	if prio != bPrio {
		return prio > bPrio
	}
	return clock.After(bClock)
}
