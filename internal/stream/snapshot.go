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

package stream

import (
	"time"

	"github.com/clipforge/clipforge/internal/platform"
)

// Snapshot is a Stream's serialized form for the all_streams table: every
// field needed to resume clipping a broadcast after a restart. The active
// download is deliberately absent; captures are best effort across process
// restarts, so a restart resumes from the sealed files only.
type Snapshot struct {
	UniqueID     string          `json:"unique_id"`
	Platform     string          `json:"platform"`
	StreamURL    string          `json:"stream_url"`
	ChannelURL   string          `json:"channel_url"`
	Title        string          `json:"title"`
	PriorityExpr string          `json:"priority_expr,omitempty"`
	StartTime    time.Time       `json:"start_time"`
	EndTime      time.Time       `json:"end_time,omitempty"`
	Online       int             `json:"online"`
	PastActdl    []SealedCapture `json:"past_actdl,omitempty"`
	SegmentsLive []PastSegment   `json:"past_segments_live,omitempty"`
	SegmentsVOD  []PastSegment   `json:"past_segments_vod,omitempty"`
}

// Snapshot captures the Stream's current durable state.
func (s *Stream) Snapshot() Snapshot {
	s.clipMu.Lock()
	defer s.clipMu.Unlock()
	return s.snapshotLocked()
}

func (s *Stream) snapshotLocked() Snapshot {
	snap := Snapshot{
		UniqueID:     s.UniqueID,
		Platform:     s.Platform,
		StreamURL:    s.StreamURL,
		ChannelURL:   s.ChannelURL,
		Title:        s.Title,
		PriorityExpr: s.PriorityExpr,
		StartTime:    s.startTime,
		EndTime:      s.endTime,
		Online:       int(s.online),
	}
	snap.PastActdl = append(snap.PastActdl, s.pastActdl...)
	snap.SegmentsLive = append(snap.SegmentsLive, s.pastSegmentsLive...)
	snap.SegmentsVOD = append(snap.SegmentsVOD, s.pastSegmentsVOD...)
	return snap
}

// FromSnapshot reconstitutes a Stream from its persisted form. cfg supplies
// the process-local collaborators a snapshot cannot carry.
func FromSnapshot(cfg Config, snap Snapshot) *Stream {
	s := New(cfg, snap.UniqueID, snap.Platform, snap.StreamURL, snap.ChannelURL, snap.Title, snap.StartTime)
	s.PriorityExpr = snap.PriorityExpr
	s.endTime = snap.EndTime
	s.online = platform.OnlineStatus(snap.Online)
	s.pastActdl = append(s.pastActdl, snap.PastActdl...)
	s.pastSegmentsLive = append(s.pastSegmentsLive, snap.SegmentsLive...)
	s.pastSegmentsVOD = append(s.pastSegmentsVOD, snap.SegmentsVOD...)
	return s
}

// saveLocked hands the current snapshot to the configured saver, if any.
// Called at the end of every mutating operation, with clipMu held, so the
// persisted state always reflects the operation that just completed. Savers
// must not call back into the Stream.
func (s *Stream) saveLocked() {
	if s.cfg.Saver == nil {
		return
	}
	s.cfg.Saver(s.snapshotLocked())
}
