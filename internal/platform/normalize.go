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
	"fmt"
	"regexp"
	"strings"
)

var (
	channelIDRe = regexp.MustCompile(`^[A-Za-z0-9_-]{24}$`)
	streamIDRe  = regexp.MustCompile(`^[A-Za-z0-9_-]{11}$`)
	handleRe    = regexp.MustCompile(`^@[A-Za-z0-9_.-]{2,30}$`)
	urlRe       = regexp.MustCompile(`^https?://`)
)

// Canonical URL forms for the syntactically-determined inputs: a bare
// 24-character channel ID, a bare 11-character stream ID, and an @handle
// each map to exactly one URL, with no network round-trip.
const (
	canonicalChannelPrefix = "https://www.youtube.com/channel/"
	canonicalStreamPrefix  = "https://www.youtube.com/watch?v="
	canonicalHandlePrefix  = "https://www.youtube.com/"
)

// Directory is the static name -> channel URLs mapping consulted before any
// network round-trip. A single name may map to several channel URLs (one
// person owning several platform channels).
type Directory map[string][]string

// Resolver classifies a user string and turns it into
// channel URL(s) or a stream URL, consulting Directory first and making at
// most one extractor round-trip.
type Resolver struct {
	dir       Directory
	extractor *Extractor
}

// NewResolver constructs a Resolver over the given static directory and
// extractor.
func NewResolver(dir Directory, extractor *Extractor) *Resolver {
	if dir == nil {
		dir = Directory{}
	}
	return &Resolver{dir: dir, extractor: extractor}
}

// ErrNoMatch is returned when s cannot be resolved by the directory or a
// single extractor round-trip.
type ErrNoMatch struct{ Input string }

func (e ErrNoMatch) Error() string {
	return fmt.Sprintf("no channel or stream matches %q", e.Input)
}

// GetChannelURLs resolves s to the set of channel URLs it identifies: a
// name resolves to every URL the directory lists for it, a channel URL to
// itself, and a bare channel ID or @handle to its canonical URL, all with
// no network call. Anything else (a stream URL, a bare stream ID) costs a
// single extractor round-trip for the owning channel.
func (r *Resolver) GetChannelURLs(ctx context.Context, s string) ([]string, error) {
	s = strings.TrimSpace(s)

	if urls, ok := r.dir[s]; ok {
		return urls, nil
	}

	switch Classify(s) {
	case "channel_id":
		return []string{canonicalChannelPrefix + s}, nil
	case "handle":
		return []string{canonicalHandlePrefix + s}, nil
	case "channel_url":
		return []string{s}, nil
	case "stream_id":
		s = canonicalStreamPrefix + s
	}

	// Stream URL or bare stream ID: resolve through a single extractor
	// round-trip and use the channel URL it reports.
	rec, err := r.extractor.Extract(ctx, s)
	if err != nil {
		return nil, err
	}
	if rec == nil || rec.ChannelURL == "" {
		return nil, ErrNoMatch{Input: s}
	}
	return []string{rec.ChannelURL}, nil
}

// GetStreamURL resolves s to a stream URL and, if available from the same
// round-trip, its info record. A bare stream ID maps straight to its
// canonical watch URL with no network call; a bare channel ID or @handle
// is first rewritten to its canonical channel URL, then costs the single
// extractor round-trip that finds the channel's current broadcast.
func (r *Resolver) GetStreamURL(ctx context.Context, s string) (string, *InfoRecord, error) {
	s = strings.TrimSpace(s)

	switch Classify(s) {
	case "stream_id":
		return canonicalStreamPrefix + s, nil, nil
	case "channel_id":
		s = canonicalChannelPrefix + s
	case "handle":
		s = canonicalHandlePrefix + s
	}

	if urlRe.MatchString(s) && !looksLikeChannel(s) {
		rec, err := r.extractor.Extract(ctx, s)
		if err != nil {
			return "", nil, err
		}
		return s, rec, nil
	}

	rec, err := r.extractor.Extract(ctx, s)
	if err != nil {
		return "", nil, err
	}
	if rec == nil || rec.StreamURL == "" {
		return "", nil, ErrNoMatch{Input: s}
	}
	return rec.StreamURL, rec, nil
}

// Classify reports the syntactic class of s: "channel_id", "stream_id",
// "handle", "channel_url", "stream_url", or "name" for anything that only
// the directory or an extractor query can settle. The resolver dispatches
// on this to decide which inputs map to a canonical URL with no network
// call.
func Classify(s string) string {
	s = strings.TrimSpace(s)
	switch {
	case channelIDRe.MatchString(s):
		return "channel_id"
	case streamIDRe.MatchString(s):
		return "stream_id"
	case handleRe.MatchString(s):
		return "handle"
	case urlRe.MatchString(s) && looksLikeChannel(s):
		return "channel_url"
	case urlRe.MatchString(s):
		return "stream_url"
	default:
		return "name"
	}
}

// looksLikeChannel is a syntactic heuristic only (no network call): a URL
// containing "/channel/", "/c/", or "/@" path segments is treated as a
// channel URL rather than a stream URL.
func looksLikeChannel(u string) bool {
	for _, seg := range []string{"/channel/", "/c/", "/@"} {
		if strings.Contains(u, seg) {
			return true
		}
	}
	return false
}
