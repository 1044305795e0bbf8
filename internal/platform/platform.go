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

// Package platform implements the metadata extractor and the URL
// normalizer/resolver. A Module recognizes and queries one upstream
// platform; Extractor dispatches to the right module, applies the shared
// rate-limit gate, and collapses repeat failures for the same URL.
package platform

import (
	"context"
	"time"
)

// OnlineStatus is the live/VOD status reported on an InfoRecord, matching
// the Stream.online field's domain.
type OnlineStatus int

const (
	Unknown OnlineStatus = iota
	Online
	Past
	Future
)

func (s OnlineStatus) String() string {
	switch s {
	case Online:
		return "ONLINE"
	case Past:
		return "PAST"
	case Future:
		return "FUTURE"
	default:
		return "UNKNOWN"
	}
}

// InfoRecord is the normalized info record returned by a successful
// extraction: platform-specific title suffixes, ID formats, etc. have
// already been stripped by the module that produced it.
type InfoRecord struct {
	Platform    string
	StreamURL   string
	ChannelURL  string
	Title       string
	StartTime   time.Time
	EndTime     time.Time // zero if unknown/ongoing
	Online      OnlineStatus
	ChannelName string
	ChannelID   string
	StreamID    string
}

// HasEndTime reports whether EndTime carries a duration-derived value.
func (r *InfoRecord) HasEndTime() bool { return !r.EndTime.IsZero() }

// Module is one platform's recognizer + metadata query implementation. Two
// concrete modules are provided: PlatformY (supports rewinding into
// in-progress VOD fragments mid-broadcast) and PlatformT (requires a
// finalized VOD before any range can be fetched).
type Module interface {
	// Name identifies the module, used as InfoRecord.Platform and in
	// filesystem/downloader argument selection.
	Name() string

	// Recognizes reports whether s looks like a URL, handle, or ID that
	// this module owns.
	Recognizes(s string) bool

	// SupportsInProgressVOD reports whether download_past on a live
	// broadcast can return usable fragments before the broadcast ends.
	SupportsInProgressVOD() bool

	// Query fetches and normalizes metadata for url. It returns (nil, nil)
	// if url is not currently recognized as a live/past/future broadcast
	// by this platform (content simply not live). It returns an error
	// satisfying errors.As(err, &clipsvc.RateLimited{}) when the platform
	// is rate-limiting this client, and any other error for unknown
	// failures (network errors, malformed responses).
	Query(ctx context.Context, url string) (*InfoRecord, error)
}
