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

// Package stream implements the per-broadcast Stream aggregator: the
// entity that holds a broadcast's start time, info record, active-download
// handle, past captures, and VOD-range files, and serves clip/screenshot
// requests by choosing the minimum-cost coverage strategy over whatever
// combination of those files covers the requested range.
package stream

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/Knetic/govaluate"
	"github.com/google/uuid"

	"github.com/clipforge/clipforge/internal/clipsvc"
	"github.com/clipforge/clipforge/internal/coldstore"
	"github.com/clipforge/clipforge/internal/cutter"
	"github.com/clipforge/clipforge/internal/downloader"
	"github.com/clipforge/clipforge/internal/interval"
	"github.com/clipforge/clipforge/internal/logctx"
	"github.com/clipforge/clipforge/internal/platform"
	"github.com/clipforge/clipforge/internal/tsinspect"
)

// gapPad is the cushion applied to each side of an uncovered gap before
// asking the past-range downloader for it.
const gapPad = 30 * time.Second

// oversizeRetryMargin is the "barely over" threshold: a clip up to this
// many bytes over the limit is retried with 1s less duration.
const oversizeRetryMargin = 800 * 1024

// maxRetries bounds the coverage-selection retry loop.
const maxRetries = 3

// readBackCushion shifts ago-relative clip windows this much further into
// the past, so a clip off the growing active capture never reads the file
// tip where fragments are still being flushed.
const readBackCushion = 2 * time.Second

// SealedCapture is a completed live capture folded into past_actdl.
type SealedCapture struct {
	URL        string
	OutputPath string
	StartTime  time.Time
	EndTime    time.Time
}

// PastSegment is a file produced by a past-range download, stored relative
// to the stream's own timeline (SS = offset from StartTime).
type PastSegment struct {
	SS       time.Duration
	Duration time.Duration
	Path     string
}

func (p PastSegment) span() interval.Span {
	lo := p.SS.Seconds()
	return interval.Span{Lo: lo, Hi: lo + p.Duration.Seconds()}
}

// Clip is the immutable result of a successful clip extraction.
type Clip struct {
	Path      string
	Size      int64
	Duration  time.Duration
	Ago       *time.Duration
	FromStart time.Duration
	AudioOnly bool
}

// Screenshot is the immutable result of a successful screenshot extraction.
type Screenshot struct {
	Name      string
	Data      []byte
	Ago       *time.Duration
	FromStart time.Duration
}

// Config carries the collaborators and static settings a Stream needs to
// serve clip requests, separated from the mutable broadcast state itself.
type Config struct {
	Cutter          *cutter.Cutter
	DownloadBinary  string
	CookieFile      string
	DownloadDir     string
	ClipDir         string
	AttachmentLimit int64 // chat-platform's hard attachment size limit, bytes.

	// Mirror, if enabled, receives a copy of each file CleanSpace evicts,
	// and is consulted to restore a sealed capture whose local copy has
	// gone missing before the entry is dropped.
	Mirror *coldstore.Mirror

	// Saver, if set, receives a Snapshot at the end of every mutating
	// operation, for persistence into the all_streams table. It runs with
	// the Stream's clip mutex held and must not call back into the Stream.
	Saver func(Snapshot)
}

// Stream aggregates everything known about one broadcast.
type Stream struct {
	cfg Config

	Platform   string // "Y" (supports in-progress VOD) or "T" (finalized only).
	UniqueID   string
	StreamURL  string
	ChannelURL string
	Title      string

	PriorityExpr string // optional govaluate formula for the clip-target tie-break.

	// clipMu is Stream.clip_mutex: serializes clip extraction requests
	// and guards every field below.
	clipMu sync.Mutex

	startTime time.Time
	endTime   time.Time // zero if unknown.
	online    platform.OnlineStatus
	info      *platform.InfoRecord

	activeDownload *downloader.LiveCapture

	pastActdl        []SealedCapture
	pastSegmentsLive []PastSegment
	pastSegmentsVOD  []PastSegment

	// pastdlMu serializes past-range downloads against this Stream,
	// independent of clipMu so a long download doesn't block unrelated
	// reads of already-cached state.
	pastdlMu sync.Mutex

	log *logctx.Logger
}

// screenshotResult is the outcome of one screenshot-coverage attempt.
type screenshotResult struct {
	shot  *Screenshot
	retry bool
	err   error
}

// NewUniqueID builds a Stream's unique_id from a channel identifier plus a
// short uuid suffix, disambiguating two broadcasts detected for the same
// channel close enough together that a timestamp-only key could collide
// (e.g. a poll racing a platform's own "went live again" correction).
func NewUniqueID(channelID string) string {
	return channelID + "-" + uuid.New().String()[:8]
}

// New constructs a Stream for one broadcast.
func New(cfg Config, uniqueID, platformTag, streamURL, channelURL, title string, startTime time.Time) *Stream {
	return &Stream{
		cfg:        cfg,
		Platform:   platformTag,
		UniqueID:   uniqueID,
		StreamURL:  streamURL,
		ChannelURL: channelURL,
		Title:      title,
		startTime:  startTime,
		online:     platform.Unknown,
		log:        logctx.New("stream", uniqueID),
	}
}

// supportsInProgressVOD mirrors platform.Module.SupportsInProgressVOD: only
// platform Y can rewind into in-progress fragments mid-broadcast.
func (s *Stream) supportsInProgressVOD() bool { return s.Platform == "Y" }

// StartTime returns the broadcast's start time. Safe to call without
// clipMu; start_time is only ever revised monotonically forward by UpdateInfo, which does hold the lock.
func (s *Stream) StartTime() time.Time {
	s.clipMu.Lock()
	defer s.clipMu.Unlock()
	return s.startTime
}

// EndTime returns the current end_time, or the zero time if unknown.
func (s *Stream) EndTime() time.Time {
	s.clipMu.Lock()
	defer s.clipMu.Unlock()
	return s.endTime
}

// Online returns the current online status.
func (s *Stream) Online() platform.OnlineStatus {
	s.clipMu.Lock()
	defer s.clipMu.Unlock()
	return s.online
}

// UpdateInfo idempotently overwrites the info record on each poll:
// start_time only ever moves forward once finalized, online status and
// end_time track the latest record.
func (s *Stream) UpdateInfo(rec *platform.InfoRecord) {
	s.clipMu.Lock()
	defer s.clipMu.Unlock()
	defer s.saveLocked()

	s.info = rec
	if rec == nil {
		return
	}
	if !rec.StartTime.IsZero() && rec.StartTime.After(s.startTime) {
		s.startTime = rec.StartTime
	}
	if rec.HasEndTime() {
		s.endTime = rec.EndTime
	}
	s.online = rec.Online
}

// SetEndTimeFromCapture records the end of the most recently observed
// capture as end_time, when the info record itself carries none.
func (s *Stream) SetEndTimeFromCapture(t time.Time) {
	s.clipMu.Lock()
	defer s.clipMu.Unlock()
	if s.endTime.IsZero() || t.After(s.endTime) {
		s.endTime = t
		s.saveLocked()
	}
}

// StartDownload launches a new live capture and installs it as the active
// download. It is the start callback the watcher's share counter wraps.
func (s *Stream) StartDownload() error {
	s.clipMu.Lock()
	defer s.clipMu.Unlock()

	if s.activeDownload != nil {
		s.log.Printf("start_download called with a download already active, treating as no-op")
		return nil
	}

	out := filepath.Join(s.cfg.DownloadDir, fmt.Sprintf("%s_%d.ts", sanitizeTitle(s.Title), len(s.pastActdl)))
	lc, err := downloader.Start(downloader.LiveConfig{
		Binary:     s.cfg.DownloadBinary,
		CookieFile: s.cfg.CookieFile,
		URL:        s.StreamURL,
		OutputPath: out,
		Platform:   s.Platform,
	}, s.log.Printf)
	if err != nil {
		return fmt.Errorf("stream %s: starting download: %w", s.UniqueID, err)
	}
	s.activeDownload = lc
	return nil
}

// StopDownload stops the active download and, if it lived long enough,
// folds it into past_actdl.
func (s *Stream) StopDownload() error {
	s.clipMu.Lock()
	lc := s.activeDownload
	s.clipMu.Unlock()

	if lc == nil {
		panic("stream: stop_download called with no active download")
	}

	lc.Stop()
	<-lc.Done()
	res := lc.Result()

	healthy := true
	if res.EligibleForPastActdl() {
		rep, inspectErr := tsinspect.Inspect(lc.OutputPath)
		healthy = inspectErr == nil && rep.Healthy()
		if !healthy {
			s.log.Error("sealed capture %s failed inspection (err=%v, %d packets, %d discontinuities), discarding",
				lc.OutputPath, inspectErr, rep.Packets, rep.Discontinuities)
		}
	}

	s.clipMu.Lock()
	defer s.clipMu.Unlock()
	defer s.saveLocked()
	s.activeDownload = nil
	if res.EligibleForPastActdl() && healthy {
		s.pastActdl = append(s.pastActdl, SealedCapture{
			URL:        lc.URL,
			OutputPath: lc.OutputPath,
			StartTime:  lc.StartedAt,
			EndTime:    res.SealedEndTime(),
		})
		if s.endTime.IsZero() || res.SealedEndTime().After(s.endTime) {
			s.endTime = res.SealedEndTime()
		}
	} else {
		if healthy {
			s.log.Printf("discarding capture that lived %s (< 20s minimum)", res.Lived)
		}
		os.Remove(lc.OutputPath)
	}
	return nil
}

// ActiveDownloadHandle exposes the running capture, if any, chiefly for
// tests and the watcher's event wiring.
func (s *Stream) ActiveDownloadHandle() *downloader.LiveCapture {
	s.clipMu.Lock()
	defer s.clipMu.Unlock()
	return s.activeDownload
}

// Clip serves a clip extraction request for [ts, ts+duration) relative to
// start_time, covering the request from whatever combination of files
// covers the range, including the oversize
// retry (boundary rule 1).
func (s *Stream) Clip(ctx context.Context, ts, duration time.Duration, audioOnly bool) (*Clip, error) {
	s.clipMu.Lock()
	defer s.clipMu.Unlock()
	defer s.saveLocked()

	clip, err := s.resolve(ctx, ts, duration, audioOnly)
	if err != nil {
		return nil, err
	}
	fi, statErr := os.Stat(clip.Path)
	if statErr == nil && s.cfg.AttachmentLimit > 0 &&
		fi.Size() > s.cfg.AttachmentLimit && fi.Size()-s.cfg.AttachmentLimit <= oversizeRetryMargin &&
		duration > time.Second {
		retried, err := s.resolve(ctx, ts, duration-time.Second, audioOnly)
		if err == nil {
			os.Remove(clip.Path)
			return retried, nil
		}
	}
	return clip, nil
}

// ClipAgo serves an ago-relative clip request ("<duration> seconds
// starting <ago> ago"), applying the read-back cushion and translating to
// a from-start offset. The returned Clip's Ago reflects the cushioned
// window, so a request for "10 seconds, starting 10 seconds ago" reports
// ago=12.
func (s *Stream) ClipAgo(ctx context.Context, ago, duration time.Duration, audioOnly bool) (*Clip, error) {
	elapsed := time.Since(s.StartTime())
	ts := elapsed - ago - readBackCushion
	if ts < 0 {
		ts = 0
	}
	return s.Clip(ctx, ts, duration, audioOnly)
}

// Screenshot serves a screenshot request: duration is ignored, a 1s
// neighborhood around ts is clipped and its first frame extracted.
func (s *Stream) Screenshot(ctx context.Context, ts time.Duration) (*Screenshot, error) {
	s.clipMu.Lock()
	defer s.clipMu.Unlock()
	defer s.saveLocked()

	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		absLo := s.startTime.Add(ts)

		if ad := s.activeDownload; ad != nil && !ad.StartedAt.After(absLo) {
			data, err := s.cfg.Cutter.Screenshot(ctx, ad.OutputPath, absLo.Sub(ad.StartedAt), 0, true)
			if err != nil {
				return nil, fmt.Errorf("stream %s: screenshot: %w", s.UniqueID, err)
			}
			return s.finishScreenshot(ts, data), nil
		}

		res := s.screenshotFromPastActdl(ctx, absLo, ts)
		if res.retry {
			lastErr = res.err
			continue
		}
		if res.shot != nil {
			return res.shot, nil
		}
		if res.err != nil {
			return nil, res.err
		}

		// Fall back to segments: cut a 1s neighborhood the same way Clip does.
		clip, err := s.resolve(ctx, ts, time.Second, false)
		if err != nil {
			return nil, err
		}
		data, err := s.cfg.Cutter.Screenshot(ctx, clip.Path, 0, 0, true)
		os.Remove(clip.Path)
		if err != nil {
			return nil, fmt.Errorf("stream %s: screenshot: %w", s.UniqueID, err)
		}
		return s.finishScreenshot(ts, data), nil
	}
	return nil, fmt.Errorf("stream %s: screenshot exhausted retries: %w", s.UniqueID, lastErr)
}

func (s *Stream) screenshotFromPastActdl(ctx context.Context, absLo time.Time, ts time.Duration) screenshotResult {
	for i, cap := range s.pastActdl {
		if cap.StartTime.After(absLo) || absLo.After(cap.EndTime) {
			continue
		}
		if _, statErr := os.Stat(cap.OutputPath); statErr != nil {
			s.pastActdl = removeActdl(s.pastActdl, i)
			return screenshotResult{retry: true, err: statErr}
		}
		data, shotErr := s.cfg.Cutter.Screenshot(ctx, cap.OutputPath, absLo.Sub(cap.StartTime), 0, true)
		if shotErr != nil {
			return screenshotResult{err: fmt.Errorf("stream %s: screenshot: %w", s.UniqueID, shotErr)}
		}
		return screenshotResult{shot: s.finishScreenshot(ts, data)}
	}
	return screenshotResult{}
}

func (s *Stream) finishScreenshot(ts time.Duration, data []byte) *Screenshot {
	ago := time.Since(s.startTime.Add(ts))
	return &Screenshot{
		Name:      fmt.Sprintf("%s_%d.png", sanitizeTitle(s.Title), int(ts.Seconds())),
		Data:      data,
		Ago:       &ago,
		FromStart: ts,
	}
}

// resolve implements the core coverage algorithm shared by Clip and
// Screenshot's segment-fallback path.
func (s *Stream) resolve(ctx context.Context, ts, duration time.Duration, audioOnly bool) (clip *Clip, err error) {
	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		absLo := s.startTime.Add(ts)
		absHi := absLo.Add(duration)

		// 1. Active download covers the start?
		if ad := s.activeDownload; ad != nil && !ad.StartedAt.After(absLo) {
			return s.cutFile(ctx, ad.OutputPath, absLo.Sub(ad.StartedAt), duration, audioOnly, ts)
		}

		// 2. Any past_actdl entry fully covers both endpoints?
		found, retryOuter, covErr := s.tryPastActdl(ctx, absLo, absHi, ts, duration, audioOnly)
		if found != nil {
			return found, nil
		}
		if retryOuter {
			lastErr = covErr
			continue
		}

		// 3. Fall back to segments, downloading any uncovered gaps.
		clip, retryOuter, segErr := s.resolveFromSegments(ctx, ts, duration, audioOnly)
		if retryOuter {
			lastErr = segErr
			continue
		}
		if segErr != nil {
			return nil, segErr
		}
		return clip, nil
	}
	return nil, fmt.Errorf("stream %s: clip resolution exhausted %d retries: %w", s.UniqueID, maxRetries, lastErr)
}

func (s *Stream) tryPastActdl(ctx context.Context, absLo, absHi time.Time, ts, duration time.Duration, audioOnly bool) (*Clip, bool, error) {
	for i, cap := range s.pastActdl {
		if cap.StartTime.After(absLo) || absHi.After(cap.EndTime) {
			continue
		}
		if _, statErr := os.Stat(cap.OutputPath); statErr != nil {
			if !s.restoreFromMirror(ctx, cap.OutputPath) {
				s.pastActdl = append(s.pastActdl[:i], s.pastActdl[i+1:]...)
				return nil, true, statErr
			}
		}
		clip, err := s.cutFile(ctx, cap.OutputPath, absLo.Sub(cap.StartTime), duration, audioOnly, ts)
		return clip, false, err
	}
	return nil, false, nil
}

// restoreFromMirror pulls a missing sealed capture back from the cold
// mirror, reporting whether the local file is usable again.
func (s *Stream) restoreFromMirror(ctx context.Context, path string) bool {
	if s.cfg.Mirror == nil || !s.cfg.Mirror.Enabled() {
		return false
	}
	if err := s.cfg.Mirror.Restore(ctx, filepath.Base(path), path); err != nil {
		s.log.Error("restoring %s from mirror: %v", path, err)
		return false
	}
	s.log.Printf("restored %s from mirror", path)
	return true
}

// cutFile runs the cutter over one source file at the given offset and
// wraps the result as a Clip. Screenshot's active-download/past_actdl paths
// call the cutter's Screenshot op directly instead; this is only reached
// from Clip and from Screenshot's segment-fallback path.
func (s *Stream) cutFile(ctx context.Context, src string, offset, duration time.Duration, audioOnly bool, ts time.Duration) (*Clip, error) {
	outBase := filepath.Join(s.cfg.ClipDir, fmt.Sprintf("%s_%d_%d", sanitizeTitle(s.Title), int(ts.Seconds()), int(duration.Seconds())))
	path, err := s.cfg.Cutter.Cut(ctx, cutter.CutRequest{
		Src:       src,
		SS:        offset,
		Duration:  duration,
		Out:       outBase,
		AudioOnly: audioOnly,
		QuickSeek: true, // always true for these platforms.
	})
	if err != nil {
		return nil, fmt.Errorf("stream %s: cut: %w", s.UniqueID, err)
	}
	fi, statErr := os.Stat(path)
	var size int64
	if statErr == nil {
		size = fi.Size()
	}
	ago := time.Since(s.startTime.Add(ts))
	return &Clip{Path: path, Size: size, Duration: duration, Ago: &ago, FromStart: ts, AudioOnly: audioOnly}, nil
}

// resolveFromSegments is the segment fallback: choose the segment list by the
// current live status, reconcile against the target interval, fill any
// gaps with past-range downloads (serialized under pastdl_lock), and
// concatenate the result. retryOuter is true when a gap download returned
// a status that doesn't match what was expected, per the algorithm's
// "retry the whole loop" rule.
func (s *Stream) resolveFromSegments(ctx context.Context, ts, duration time.Duration, audioOnly bool) (clip *Clip, retryOuter bool, err error) {
	target := interval.Span{Lo: ts.Seconds(), Hi: (ts + duration).Seconds()}

	segments, wantLive := s.currentSegmentList()
	sources := segmentSources(segments)
	covered, uncovered := interval.FindIntersections(target, sources)

	if len(uncovered) > 0 {
		totalDuration := s.knownDurationSeconds()
		s.pastdlMu.Lock()
		for _, gap := range uncovered {
			padded := interval.Pad(gap, gapPad.Seconds(), 0, totalDuration)
			ss := time.Duration(padded.Lo * float64(time.Second))
			width := time.Duration((padded.Hi - padded.Lo) * float64(time.Second))

			outBase := filepath.Join(s.cfg.DownloadDir, fmt.Sprintf("%s_%d_%d.mp4", sanitizeTitle(s.Title), int(ss.Seconds()), int(width.Seconds())))
			_, status, dlErr := downloader.DownloadPast(ctx, downloader.PastRangeConfig{
				Binary:                s.cfg.DownloadBinary,
				CookieFile:            s.cfg.CookieFile,
				URL:                   s.StreamURL,
				Output:                outBase,
				SS:                    ss,
				T:                     width,
				Platform:              s.Platform,
				SupportsInProgressVOD: s.supportsInProgressVOD(),
			})
			if dlErr != nil {
				s.pastdlMu.Unlock()
				var missing clipsvc.DownloadCacheMissing
				if isCacheMissing(dlErr, &missing) {
					return nil, false, dlErr
				}
				return nil, true, dlErr
			}

			isLiveLike := status == downloader.StatusIsLive || status == downloader.StatusPostLive
			if isLiveLike != wantLive {
				s.pastdlMu.Unlock()
				return nil, true, fmt.Errorf("stream %s: gap download returned status %s, re-classifying", s.UniqueID, status)
			}

			seg := PastSegment{SS: ss, Duration: width, Path: outBase}
			if wantLive {
				s.pastSegmentsLive = append(s.pastSegmentsLive, seg)
			} else {
				s.pastSegmentsVOD = append(s.pastSegmentsVOD, seg)
			}
		}
		s.pastdlMu.Unlock()

		segments, _ = s.currentSegmentList()
		sources = segmentSources(segments)
		covered, uncovered = interval.FindIntersections(target, sources)
		if len(uncovered) > 0 {
			return nil, false, clipsvc.DownloadCacheMissing{Reason: "gaps remained after past-range downloads"}
		}
	}

	concatSrcs := make([]cutter.ConcatSource, 0, len(covered))
	for _, c := range covered {
		seg := segments[c.Handle.(int)]
		concatSrcs = append(concatSrcs, cutter.ConcatSource{
			Path:     seg.Path,
			InPoint:  time.Duration(c.SourceOffset * float64(time.Second)),
			OutPoint: time.Duration((c.SourceOffset + c.Width()) * float64(time.Second)),
		})
	}

	outBase := filepath.Join(s.cfg.ClipDir, fmt.Sprintf("%s_%d_%d", sanitizeTitle(s.Title), int(ts.Seconds()), int(duration.Seconds())))
	var path string
	var cutErr error
	if len(concatSrcs) == 1 {
		path, cutErr = s.cfg.Cutter.Cut(ctx, cutter.CutRequest{
			Src:       concatSrcs[0].Path,
			SS:        concatSrcs[0].InPoint,
			Duration:  concatSrcs[0].OutPoint - concatSrcs[0].InPoint,
			Out:       outBase,
			AudioOnly: audioOnly,
			QuickSeek: true,
		})
	} else {
		path, cutErr = s.cfg.Cutter.Concat(ctx, concatSrcs, outBase+ext(concatSrcs))
	}
	if cutErr != nil {
		return nil, false, fmt.Errorf("stream %s: assembling clip from segments: %w", s.UniqueID, cutErr)
	}

	fi, statErr := os.Stat(path)
	var size int64
	if statErr == nil {
		size = fi.Size()
	}
	ago := time.Since(s.startTime.Add(ts))
	return &Clip{Path: path, Size: size, Duration: duration, Ago: &ago, FromStart: ts, AudioOnly: audioOnly}, false, nil
}

func ext(srcs []cutter.ConcatSource) string {
	if len(srcs) == 0 {
		return ".mp4"
	}
	if strings.EqualFold(filepath.Ext(srcs[0].Path), ".mp4") {
		return ".mp4"
	}
	return filepath.Ext(srcs[0].Path)
}

func isCacheMissing(err error, target *clipsvc.DownloadCacheMissing) bool {
	missing, ok := err.(clipsvc.DownloadCacheMissing)
	if ok {
		*target = missing
	}
	return ok
}

// currentSegmentList chooses past_segments_live vs past_segments_vod by the
// current live status: live/post_live broadcasts use the live-fragment
// cache, everything else uses the finalized VOD cache.
func (s *Stream) currentSegmentList() ([]PastSegment, bool) {
	if s.online == platform.Online {
		return s.pastSegmentsLive, true
	}
	return s.pastSegmentsVOD, false
}

func segmentSources(segments []PastSegment) []interval.Source {
	out := make([]interval.Source, len(segments))
	for i, seg := range segments {
		out[i] = interval.Source{Span: seg.span(), Handle: i}
	}
	return out
}

// knownDurationSeconds is the clamp ceiling for gap padding: the stream's
// total known duration if end_time is known, else a generous ceiling.
func (s *Stream) knownDurationSeconds() float64 {
	if s.endTime.IsZero() {
		return 1 << 30
	}
	return s.endTime.Sub(s.startTime).Seconds()
}

// CleanSpace deletes this Stream's oldest-by-mtime eligible files (any
// member of past_actdl, past_segments_live, past_segments_vod; never the
// active download) until at least want bytes are freed or candidates are
// exhausted. It returns the number of bytes actually freed.
func (s *Stream) CleanSpace(want int64) int64 {
	s.clipMu.Lock()
	defer s.clipMu.Unlock()
	defer s.saveLocked()

	type candidate struct {
		mtime time.Time
		size  int64
		path  string
	}
	var cands []candidate
	add := func(path string) {
		if fi, err := os.Stat(path); err == nil {
			cands = append(cands, candidate{fi.ModTime(), fi.Size(), path})
		}
	}
	for _, c := range s.pastActdl {
		add(c.OutputPath)
	}
	for _, seg := range s.pastSegmentsLive {
		add(seg.Path)
	}
	for _, seg := range s.pastSegmentsVOD {
		add(seg.Path)
	}

	sort.Slice(cands, func(i, j int) bool { return cands[i].mtime.Before(cands[j].mtime) })

	deleted := make(map[string]bool)
	var freed int64
	for _, c := range cands {
		if freed >= want {
			break
		}
		if s.cfg.Mirror != nil && s.cfg.Mirror.Enabled() {
			if err := s.cfg.Mirror.Upload(context.Background(), c.path, filepath.Base(c.path)); err != nil {
				s.log.Error("mirroring %s before eviction: %v", c.path, err)
			}
		}
		if err := os.Remove(c.path); err != nil {
			continue
		}
		freed += c.size
		deleted[c.path] = true
	}

	if len(deleted) > 0 {
		kept := s.pastActdl[:0]
		for _, c := range s.pastActdl {
			if !deleted[c.OutputPath] {
				kept = append(kept, c)
			}
		}
		s.pastActdl = kept
		s.pastSegmentsLive = dropSegments(s.pastSegmentsLive, deleted)
		s.pastSegmentsVOD = dropSegments(s.pastSegmentsVOD, deleted)
	}
	return freed
}

func dropSegments(list []PastSegment, deleted map[string]bool) []PastSegment {
	kept := list[:0]
	for _, seg := range list {
		if !deleted[seg.Path] {
			kept = append(kept, seg)
		}
	}
	return kept
}

func removeActdl(list []SealedCapture, idx int) []SealedCapture {
	if idx < 0 || idx >= len(list) {
		return list
	}
	out := make([]SealedCapture, 0, len(list)-1)
	out = append(out, list[:idx]...)
	out = append(out, list[idx+1:]...)
	return out
}

func removeSegment(list []PastSegment, idx int) []PastSegment {
	if idx < 0 || idx >= len(list) {
		return list
	}
	out := make([]PastSegment, 0, len(list)-1)
	out = append(out, list[:idx]...)
	out = append(out, list[idx+1:]...)
	return out
}

// UsedFiles returns every file path currently claimed by this Stream,
// including the active download's output (it is in use, just not eligible
// for CleanSpace). The janitor's orphan sweep treats anything not in the
// union of every Stream's UsedFiles as deletable.
func (s *Stream) UsedFiles() []string {
	s.clipMu.Lock()
	defer s.clipMu.Unlock()

	var out []string
	if s.activeDownload != nil {
		out = append(out, s.activeDownload.OutputPath)
	}
	for _, c := range s.pastActdl {
		out = append(out, c.OutputPath)
	}
	for _, seg := range s.pastSegmentsLive {
		out = append(out, seg.Path)
	}
	for _, seg := range s.pastSegmentsVOD {
		out = append(out, seg.Path)
	}
	return out
}

// TieBreakKey computes the bare-clip-command tie-break key:
// (active, priority, end_time_or_start_time). priority is evaluated from
// PriorityExpr via govaluate if set, defaulting to 0.
func (s *Stream) TieBreakKey() (active bool, priority float64, clock time.Time) {
	s.clipMu.Lock()
	defer s.clipMu.Unlock()

	active = s.activeDownload != nil
	priority = s.evaluatePriorityLocked()
	if !s.endTime.IsZero() {
		clock = s.endTime
	} else {
		clock = s.startTime
	}
	return active, priority, clock
}

func (s *Stream) evaluatePriorityLocked() float64 {
	if s.PriorityExpr == "" {
		return 0
	}
	expr, err := govaluate.NewEvaluableExpression(s.PriorityExpr)
	if err != nil {
		s.log.Error("invalid priority expression %q: %v", s.PriorityExpr, err)
		return 0
	}
	params := map[string]any{
		"online": s.online == platform.Online,
	}
	result, err := expr.Evaluate(params)
	if err != nil {
		s.log.Error("evaluating priority expression %q: %v", s.PriorityExpr, err)
		return 0
	}
	if f, ok := result.(float64); ok {
		return f
	}
	if b, ok := result.(bool); ok && b {
		return 1
	}
	return 0
}

// Select implements the tie-break rule for `c <ago> <duration>`: among
// candidates, choose the one with the highest (active, priority,
// end_time-or-start_time) key.
func Select(streams []*Stream) *Stream {
	if len(streams) == 0 {
		return nil
	}
	best := streams[0]
	bestActive, bestPrio, bestClock := best.TieBreakKey()
	for _, s := range streams[1:] {
		active, prio, clock := s.TieBreakKey()
		if better(active, prio, clock, bestActive, bestPrio, bestClock) {
			best, bestActive, bestPrio, bestClock = s, active, prio, clock
		}
	}
	return best
}

func better(active bool, prio float64, clock time.Time, bActive bool, bPrio float64, bClock time.Time) bool {
	if active != bActive {
		return active
	}
	if prio != bPrio {
		return prio > bPrio
	}
	return clock.After(bClock)
}

func sanitizeTitle(title string) string {
	return strings.ReplaceAll(title, "/", "_")
}
