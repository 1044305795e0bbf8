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
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/clipforge/clipforge/internal/clipsvc"
)

// rawInfo is the subset of the extractor binary's --dump-json output this
// package cares about.
type rawInfo struct {
	ID           string `json:"id"`
	Title        string `json:"title"`
	WebpageURL   string `json:"webpage_url"`
	ChannelURL   string `json:"channel_url"`
	ChannelID    string `json:"channel_id"`
	Channel      string `json:"channel"`
	IsLive       bool   `json:"is_live"`
	WasLive      bool   `json:"was_live"`
	LiveStatus   string `json:"live_status"` // "is_live", "is_upcoming", "post_live", "not_live", ""
	ReleaseTS    int64  `json:"release_timestamp"`
	Duration     float64 `json:"duration"`
}

// runExtractorBinary invokes the external downloader tool in
// metadata-only mode and parses its JSON output.
//
// HTTP Error 429 on stderr is surfaced as RateLimited; HTTP Error 403 as
// DownloadBlocked; any other non-zero exit with empty stdout is a generic
// error; empty recognized-but-not-live responses return (nil, nil).
func runExtractorBinary(ctx context.Context, binary, url string) (*rawInfo, error) {
	cmd := exec.CommandContext(ctx, binary, "--dump-json", "--no-warnings", url)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	errOut := stderr.String()
	switch {
	case strings.Contains(errOut, "HTTP Error 429"):
		return nil, clipsvc.RateLimited{DownloadBlocked: clipsvc.DownloadBlocked{URL: url, Status: 429}}
	case strings.Contains(errOut, "HTTP Error 403"):
		return nil, clipsvc.DownloadBlocked{URL: url, Status: 403}
	}
	if err != nil {
		if stdout.Len() == 0 {
			if strings.Contains(errOut, "is not a valid URL") || strings.Contains(errOut, "Unsupported URL") {
				return nil, nil
			}
			return nil, fmt.Errorf("extractor binary failed: %w: %s", err, strings.TrimSpace(errOut))
		}
		// Non-zero exit but we got output; fall through and try to parse it.
	}
	if len(bytes.TrimSpace(stdout.Bytes())) == 0 {
		return nil, nil
	}

	var info rawInfo
	if decErr := json.Unmarshal(stdout.Bytes(), &info); decErr != nil {
		return nil, fmt.Errorf("could not parse extractor output: %w", decErr)
	}
	return &info, nil
}

func (info *rawInfo) toRecord(platform string) *InfoRecord {
	rec := &InfoRecord{
		Platform:    platform,
		StreamURL:   info.WebpageURL,
		ChannelURL:  info.ChannelURL,
		Title:       stripPlatformTitleSuffix(info.Title),
		ChannelName: info.Channel,
		ChannelID:   info.ChannelID,
		StreamID:    info.ID,
	}
	if info.ReleaseTS > 0 {
		rec.StartTime = time.Unix(info.ReleaseTS, 0)
	}
	if info.Duration > 0 && !rec.StartTime.IsZero() {
		rec.EndTime = rec.StartTime.Add(time.Duration(info.Duration * float64(time.Second)))
	}

	switch {
	case info.IsLive || info.LiveStatus == "is_live":
		rec.Online = Online
	case info.LiveStatus == "is_upcoming":
		rec.Online = Future
	case info.WasLive || info.LiveStatus == "post_live" || info.LiveStatus == "was_live":
		rec.Online = Past
	default:
		rec.Online = Unknown
	}
	return rec
}

// stripPlatformTitleSuffix strips a trailing 17-character date-like suffix
// some platforms append to live titles (e.g. " 2024-05-01 12:34"), the
// extractor normalizes these away so downstream titles are stable.
func stripPlatformTitleSuffix(title string) string {
	const suffixLen = 17 // " YYYY-MM-DD HH:MM"
	if len(title) <= suffixLen {
		return title
	}
	tail := title[len(title)-suffixLen:]
	if looksLikeDateSuffix(tail) {
		return strings.TrimRight(title[:len(title)-suffixLen], " ")
	}
	return title
}

func looksLikeDateSuffix(s string) bool {
	if len(s) != 17 || s[0] != ' ' {
		return false
	}
	// " 2024-05-01 12:34"
	for i, r := range s {
		switch i {
		case 0, 11:
			if r != ' ' {
				return false
			}
		case 5, 8:
			if r != '-' {
				return false
			}
		case 14:
			if r != ':' {
				return false
			}
		default:
			if _, err := strconv.Atoi(string(r)); err != nil {
				return false
			}
		}
	}
	return true
}
