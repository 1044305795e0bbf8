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

// Package cutter provides out-of-process, no-re-encode media trim (cut),
// concatenation (concat), and single-frame capture (screenshot), all
// marshalled as invocations of an external media tool: one
// exec.CommandContext per operation, stdout/stderr captured, and a process
// group so a cancelled context can't leak a child.
package cutter

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// minClipBytes and minScreenshotBytes are the corruption thresholds: an
// output smaller than this, even on a zero exit, is rejected.
const (
	minClipBytes       = 20 * 1024
	minScreenshotBytes = 200
)

// Cutter invokes the external media tool (ffmpeg-alike) found at Binary.
type Cutter struct {
	// Binary is the path to the media tool executable, e.g. "ffmpeg".
	Binary string
}

// New returns a Cutter invoking binary for every operation.
func New(binary string) *Cutter {
	return &Cutter{Binary: binary}
}

// CutRequest is the input to Cut. Exactly one of SS or SSEOF must be set
// (the other zero); Duration is required. QuickSeek places the seek
// argument before -i for a fast but imprecise seek, which is always true
// for the platforms this service targets.
type CutRequest struct {
	Src        string
	SS         time.Duration // seek from start; mutually exclusive with SSEOF
	SSEOF      time.Duration // seek from end (negative offset), 0 means unset
	Duration   time.Duration
	Out        string // output path without extension; Cut appends the right one
	AudioOnly  bool
	QuickSeek  bool
}

// outputExt picks the output extension by source container: webm sources
// produce .webm/.ogg, everything else produces .mp4/.m4a (the chat
// platform embeds .m4a but not .aac, and won't embed audio-only webm).
func outputExt(src string, audioOnly bool) string {
	webmLike := strings.EqualFold(filepath.Ext(src), ".webm")
	switch {
	case webmLike && audioOnly:
		return ".ogg"
	case webmLike:
		return ".webm"
	case audioOnly:
		return ".m4a"
	default:
		return ".mp4"
	}
}

// Cut runs the trim operation and returns the resulting file path.
func (c *Cutter) Cut(ctx context.Context, req CutRequest) (string, error) {
	if req.SS != 0 && req.SSEOF != 0 {
		return "", errors.New("cutter: SS and SSEOF are mutually exclusive")
	}
	out := req.Out + outputExt(req.Src, req.AudioOnly)

	args := []string{}
	seekArg := func() []string {
		if req.SSEOF != 0 {
			return []string{"-sseof", formatSeconds(-absDuration(req.SSEOF))}
		}
		return []string{"-ss", formatSeconds(req.SS)}
	}()
	if req.QuickSeek {
		args = append(args, seekArg...)
	}
	args = append(args, "-i", req.Src)
	if !req.QuickSeek {
		args = append(args, seekArg...)
	}
	args = append(args, "-t", formatSeconds(req.Duration))
	if req.AudioOnly {
		args = append(args, "-vn")
	}
	args = append(args, "-c", "copy", "-avoid_negative_ts", "make_zero", "-y", out)

	if err := c.run(ctx, args, out, minClipBytes); err != nil {
		return "", err
	}
	return out, nil
}

// ConcatSource is one input to Concat, with its open/close trim points
// expressed relative to its own timeline (the manifest's inpoint/outpoint
// pair).
type ConcatSource struct {
	Path              string
	InPoint, OutPoint time.Duration // OutPoint zero means "to end"
}

// Concat joins sources in order into a single file at out, without
// re-encoding, via a temporary concat-demuxer manifest (written, then
// deleted once the run completes).
func (c *Cutter) Concat(ctx context.Context, sources []ConcatSource, out string) (string, error) {
	if len(sources) == 0 {
		return "", errors.New("cutter: concat requires at least one source")
	}

	manifest, err := os.CreateTemp("", "clipforge-concat-*.txt")
	if err != nil {
		return "", fmt.Errorf("cutter: creating concat manifest: %w", err)
	}
	defer os.Remove(manifest.Name())

	var buf bytes.Buffer
	for _, s := range sources {
		fmt.Fprintf(&buf, "file '%s'\n", escapeConcatPath(s.Path))
		if s.InPoint > 0 {
			fmt.Fprintf(&buf, "inpoint %s\n", formatSeconds(s.InPoint))
		}
		if s.OutPoint > 0 {
			fmt.Fprintf(&buf, "outpoint %s\n", formatSeconds(s.OutPoint))
		}
	}
	if _, err := manifest.Write(buf.Bytes()); err != nil {
		manifest.Close()
		return "", fmt.Errorf("cutter: writing concat manifest: %w", err)
	}
	if err := manifest.Close(); err != nil {
		return "", fmt.Errorf("cutter: closing concat manifest: %w", err)
	}

	args := []string{"-f", "concat", "-safe", "0", "-i", manifest.Name(), "-c", "copy", "-y", out}
	if err := c.run(ctx, args, out, minClipBytes); err != nil {
		return "", err
	}
	return out, nil
}

// Screenshot extracts a single frame near ss (or sseof) and returns PNG
// bytes read from the tool's stdout.
func (c *Cutter) Screenshot(ctx context.Context, src string, ss, sseof time.Duration, quickSeek bool) ([]byte, error) {
	args := []string{}
	seekArg := func() []string {
		if sseof != 0 {
			return []string{"-sseof", formatSeconds(-absDuration(sseof))}
		}
		return []string{"-ss", formatSeconds(ss)}
	}()
	if quickSeek {
		args = append(args, seekArg...)
	}
	args = append(args, "-i", src)
	if !quickSeek {
		args = append(args, seekArg...)
	}
	args = append(args, "-frames:v", "1", "-f", "image2pipe", "-vcodec", "png", "pipe:1")

	cmd := exec.CommandContext(ctx, c.Binary, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	setProcessGroup(cmd)

	err := cmd.Run()
	if err != nil {
		return nil, fmt.Errorf("cutter: screenshot failed: %w: %s", err, strings.TrimSpace(stderr.String()))
	}
	if stdout.Len() < minScreenshotBytes {
		return nil, fmt.Errorf("cutter: screenshot output too small (%d bytes), treating as corrupt", stdout.Len())
	}
	return stdout.Bytes(), nil
}

// run executes the cutter binary with args, applying the correctness
// check: a non-zero exit is tolerated if out already exists (log and
// continue), and out must be at least minBytes or it is treated as corrupt.
func (c *Cutter) run(ctx context.Context, args []string, out string, minBytes int64) error {
	cmd := exec.CommandContext(ctx, c.Binary, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	setProcessGroup(cmd)

	runErr := cmd.Run()
	fi, statErr := os.Stat(out)
	switch {
	case runErr != nil && statErr != nil:
		return fmt.Errorf("cutter: %v failed and produced no output: %w: %s", args[0], runErr, strings.TrimSpace(stderr.String()))
	case runErr != nil:
		// Non-zero exit but the output file exists: log and continue; the
		// size check below still applies.
		log.Printf("cutter: %v exited with an error but produced %s, continuing: %v: %s", args[0], out, runErr, strings.TrimSpace(stderr.String()))
	}
	if fi == nil {
		fi, statErr = os.Stat(out)
		if statErr != nil {
			return fmt.Errorf("cutter: output %s missing after run: %w", out, statErr)
		}
	}
	if fi.Size() < minBytes {
		os.Remove(out)
		return fmt.Errorf("cutter: output %s is %d bytes, below the %d byte corruption threshold", out, fi.Size(), minBytes)
	}
	return nil
}

func formatSeconds(d time.Duration) string {
	return strconv.FormatFloat(d.Seconds(), 'f', 3, 64)
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}

func escapeConcatPath(p string) string {
	return strings.ReplaceAll(p, "'", `'\''`)
}
