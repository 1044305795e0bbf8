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

// Package clipsvc holds the error taxonomy shared across the clip-extraction
// engine. Every error kind that is allowed to reach user-facing code lives
// here so callers can type-switch or errors.As against a closed set.
package clipsvc

import (
	"errors"
	"fmt"
	"time"
)

// DownloadBlocked means the upstream platform refused the download outright
// (HTTP 403, geo-block, login-wall). RateLimited and DownloadForbidden both
// satisfy errors.As against DownloadBlocked via embedding.
type DownloadBlocked struct {
	URL    string
	Status int
}

func (e DownloadBlocked) Error() string {
	return fmt.Sprintf("download blocked for %s (status %d)", e.URL, e.Status)
}

// RateLimited is a DownloadBlocked subclass: the upstream asked us to slow
// down. RetryAfter is the server-provided cooldown, zero if none was given.
type RateLimited struct {
	DownloadBlocked
	RetryAfter time.Duration
}

func (e RateLimited) Error() string {
	return fmt.Sprintf("rate limited for %s, retry after %s", e.URL, e.RetryAfter)
}

// Unwrap lets errors.As(err, &DownloadBlocked{}) match a RateLimited.
func (e RateLimited) Unwrap() error { return e.DownloadBlocked }

// DownloadForbidden is a DownloadBlocked subclass treated as a permanent
// policy decision: the watcher for this target is stopped for good.
type DownloadForbidden struct {
	DownloadBlocked
	Reason string
}

func (e DownloadForbidden) Error() string {
	return fmt.Sprintf("download forbidden for %s: %s", e.URL, e.Reason)
}

func (e DownloadForbidden) Unwrap() error { return e.DownloadBlocked }

// DownloadCacheMissing means the requested range is not covered by any
// cached file and cannot be fetched to cover it either.
type DownloadCacheMissing struct {
	Reason string
}

func (e DownloadCacheMissing) Error() string {
	if e.Reason == "" {
		return "requested range is not cached and cannot be fetched"
	}
	return "requested range is not cached and cannot be fetched: " + e.Reason
}

// OutOfTimeRange means the range is otherwise valid but falls outside a
// platform VOD boundary (e.g. the post_live 4h window bug).
type OutOfTimeRange struct {
	SeekStart, Duration time.Duration
}

func (e OutOfTimeRange) Error() string {
	return fmt.Sprintf("range [%s,+%s] is outside the platform's VOD window", e.SeekStart, e.Duration)
}

// StreamNotLegal means the requested stream was never captured in this
// channel and is not currently registered.
type StreamNotLegal struct {
	UniqueID string
}

func (e StreamNotLegal) Error() string {
	return fmt.Sprintf("stream %q was not captured here and is not registered", e.UniqueID)
}

// CantSseof is internal: the seek-from-end fast path can't cover the
// requested window. Callers fall back to the absolute-offset path; it
// should never escape the stream package.
var CantSseof = errors.New("seek-from-end cannot cover the requested window")

// ErrNotFound is returned by the durable store when a key has no value.
var ErrNotFound = errors.New("not found")
