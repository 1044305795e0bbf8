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
	"regexp"
)

// PlatformY recognizes the platform family that supports rewinding into
// in-progress VOD fragments mid-broadcast.
type PlatformY struct {
	// Binary is the metadata-extraction tool invoked for Query, e.g. a
	// yt-dlp-alike binary configured for this platform's URL family.
	Binary string
	urlRe  *regexp.Regexp
}

// NewPlatformY constructs a PlatformY module recognizing URLs matching
// urlPattern (a regexp literal, e.g. `youtube\.com|youtu\.be`).
func NewPlatformY(binary, urlPattern string) *PlatformY {
	return &PlatformY{Binary: binary, urlRe: regexp.MustCompile(urlPattern)}
}

func (m *PlatformY) Name() string { return "Y" }
func (m *PlatformY) Recognizes(s string) bool { return m.urlRe.MatchString(s) }
func (m *PlatformY) SupportsInProgressVOD() bool { return true }

func (m *PlatformY) Query(ctx context.Context, url string) (*InfoRecord, error) {
	info, err := runExtractorBinary(ctx, m.Binary, url)
	if err != nil {
		return nil, err
	}
	if info == nil {
		return nil, nil
	}
	return info.toRecord(m.Name()), nil
}

// PlatformT recognizes the platform family that requires a finalized VOD
// before any range can be fetched; its
// past-range downloads are documented upstream as not working and are
// preserved as an unconditional failure by internal/downloader.
type PlatformT struct {
	Binary string
	urlRe  *regexp.Regexp
}

// NewPlatformT constructs a PlatformT module recognizing URLs matching
// urlPattern.
func NewPlatformT(binary, urlPattern string) *PlatformT {
	return &PlatformT{Binary: binary, urlRe: regexp.MustCompile(urlPattern)}
}

func (m *PlatformT) Name() string { return "T" }
func (m *PlatformT) Recognizes(s string) bool { return m.urlRe.MatchString(s) }
func (m *PlatformT) SupportsInProgressVOD() bool { return false }

func (m *PlatformT) Query(ctx context.Context, url string) (*InfoRecord, error) {
	info, err := runExtractorBinary(ctx, m.Binary, url)
	if err != nil {
		return nil, err
	}
	if info == nil {
		return nil, nil
	}
	return info.toRecord(m.Name()), nil
}
