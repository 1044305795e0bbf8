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

package downloader

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
	"github.com/clipforge/clipforge/internal/platform"
)

// Status classifies the content a past-range download actually produced,
// which may differ from what was asked for.
type Status int

const (
	StatusOther Status = iota
	StatusIsLive
	StatusPostLive
	StatusProcessed // plain, finalized VOD.
)

func (s Status) String() string {
	switch s {
	case StatusIsLive:
		return "is_live"
	case StatusPostLive:
		return "post_live"
	case StatusProcessed:
		return "processed"
	default:
		return "other"
	}
}

// outOfRangeWindow is the known upstream bug window: a post_live
// response with ss+t beyond this raises OutOfTimeRange.
const outOfRangeWindow = 4 * time.Hour

// PastRangeConfig is one blocking past-range fetch.
type PastRangeConfig struct {
	Binary     string
	CookieFile string
	URL        string
	Output     string
	SS         time.Duration
	T          time.Duration
	Platform   string
	// SupportsInProgressVOD mirrors Module.SupportsInProgressVOD: platform Y
	// can rewind into in-progress fragments mid-broadcast, platform T cannot
	// and unconditionally fails past-range downloads.
	SupportsInProgressVOD bool
}

// DownloadPast performs the blocking fetch of a finite VOD slice. Concurrency
// discipline (serializing all past-range downloads for one Stream) is the
// caller's responsibility via the Stream's pastdl_lock; this function does
// not itself serialize anything.
func DownloadPast(ctx context.Context, cfg PastRangeConfig) (*platform.InfoRecord, Status, error) {
	if cfg.SS < 0 {
		return nil, StatusOther, fmt.Errorf("downloader: ss must be >= 0, got %s", cfg.SS)
	}
	if cfg.T <= 0 {
		return nil, StatusOther, fmt.Errorf("downloader: t must be > 0, got %s", cfg.T)
	}

	if !cfg.SupportsInProgressVOD {
		// Platform T: unpacking a past VOD range is documented as not working
		// upstream; preserved unconditionally, not silently patched.
		return nil, StatusOther, clipsvc.DownloadCacheMissing{Reason: "platform does not support past-range VOD downloads"}
	}

	args := []string{
		"--download-sections", fmt.Sprintf("*%s-%s", formatSecondsInt(cfg.SS), formatSecondsInt(cfg.SS+cfg.T)),
		"-o", cfg.Output,
		"--dump-json",
	}
	// Platform Y's "best" format selector override does not apply to
	// platform T; the override is only added for Y.
	if cfg.Platform == "Y" {
		args = append(args, "-f", "best")
	}
	if cfg.CookieFile != "" {
		args = append(args, "--cookies", cfg.CookieFile)
	}
	args = append(args, cfg.URL)

	cmd := exec.CommandContext(ctx, cfg.Binary, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()
	errOut := stderr.String()
	switch {
	case strings.Contains(errOut, "HTTP Error 429"):
		return nil, StatusOther, clipsvc.RateLimited{DownloadBlocked: clipsvc.DownloadBlocked{URL: cfg.URL, Status: 429}}
	case strings.Contains(errOut, "HTTP Error 403"):
		return nil, StatusOther, clipsvc.DownloadBlocked{URL: cfg.URL, Status: 403}
	}
	if runErr != nil && stdout.Len() == 0 {
		return nil, StatusOther, fmt.Errorf("downloader: past-range fetch failed: %w: %s", runErr, strings.TrimSpace(errOut))
	}

	var raw struct {
		LiveStatus string  `json:"live_status"`
		ChannelURL string  `json:"channel_url"`
		Title      string  `json:"title"`
		ID         string  `json:"id"`
		ReleaseTS  int64   `json:"release_timestamp"`
		Duration   float64 `json:"duration"`
	}
	if err := json.Unmarshal(bytes.TrimSpace(lastJSONLine(stdout.Bytes())), &raw); err != nil {
		return nil, StatusOther, fmt.Errorf("downloader: could not parse past-range output: %w", err)
	}

	status := classifyStatus(raw.LiveStatus)
	if status == StatusPostLive && cfg.SS+cfg.T > outOfRangeWindow {
		return nil, status, clipsvc.OutOfTimeRange{SeekStart: cfg.SS, Duration: cfg.T}
	}

	rec := &platform.InfoRecord{
		Platform:   cfg.Platform,
		StreamURL:  cfg.URL,
		ChannelURL: raw.ChannelURL,
		Title:      raw.Title,
		StreamID:   raw.ID,
	}
	if raw.ReleaseTS > 0 {
		rec.StartTime = time.Unix(raw.ReleaseTS, 0)
	}
	return rec, status, nil
}

func classifyStatus(liveStatus string) Status {
	switch liveStatus {
	case "is_live":
		return StatusIsLive
	case "post_live":
		return StatusPostLive
	case "not_live", "was_live", "":
		return StatusProcessed
	default:
		return StatusOther
	}
}

// lastJSONLine returns the final non-empty line of out: --dump-json can
// emit one JSON object per downloaded fragment/sequence on some platforms;
// the last line carries the most complete metadata.
func lastJSONLine(out []byte) []byte {
	lines := bytes.Split(bytes.TrimSpace(out), []byte("\n"))
	for i := len(lines) - 1; i >= 0; i-- {
		if len(bytes.TrimSpace(lines[i])) > 0 {
			return lines[i]
		}
	}
	return out
}

func formatSecondsInt(d time.Duration) string { return strconv.Itoa(int(d.Seconds())) }
