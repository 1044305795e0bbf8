package stream

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/clipforge/clipforge/internal/clipsvc"
	"github.com/clipforge/clipforge/internal/cutter"
	"github.com/clipforge/clipforge/internal/downloader"
	"github.com/clipforge/clipforge/internal/platform"
)

func newTestStream(t *testing.T) *Stream {
	t.Helper()
	return New(Config{}, "uid1", "Y", "https://example.com/watch?v=1", "https://example.com/c/1", "My Title", time.Unix(1000, 0))
}

func TestNewStreamDefaults(t *testing.T) {
	s := newTestStream(t)
	if s.Online() != platform.Unknown {
		t.Fatalf("Online() = %v, want Unknown", s.Online())
	}
	if !s.EndTime().IsZero() {
		t.Fatal("EndTime() should start zero")
	}
	if !s.supportsInProgressVOD() {
		t.Fatal("platform Y should support in-progress VOD")
	}
}

func TestUpdateInfoAdvancesStartTimeMonotonically(t *testing.T) {
	s := newTestStream(t)
	orig := s.StartTime()

	s.UpdateInfo(&platform.InfoRecord{StartTime: orig.Add(-time.Hour), Online: platform.Online})
	if !s.StartTime().Equal(orig) {
		t.Fatalf("start_time moved backward: got %v, want unchanged %v", s.StartTime(), orig)
	}

	later := orig.Add(time.Hour)
	s.UpdateInfo(&platform.InfoRecord{StartTime: later, Online: platform.Online})
	if !s.StartTime().Equal(later) {
		t.Fatalf("start_time did not advance: got %v, want %v", s.StartTime(), later)
	}
	if s.Online() != platform.Online {
		t.Fatalf("Online() = %v, want Online", s.Online())
	}
}

func TestUpdateInfoNilIsNoop(t *testing.T) {
	s := newTestStream(t)
	s.UpdateInfo(&platform.InfoRecord{Online: platform.Past})
	s.UpdateInfo(nil)
	if s.Online() != platform.Past {
		t.Fatalf("UpdateInfo(nil) should leave prior state untouched, got %v", s.Online())
	}
}

func TestUpdateInfoSetsEndTimeWhenRecordHasOne(t *testing.T) {
	s := newTestStream(t)
	start := s.StartTime()
	end := start.Add(10 * time.Minute)
	s.UpdateInfo(&platform.InfoRecord{StartTime: start, EndTime: end, Online: platform.Past})
	if !s.EndTime().Equal(end) {
		t.Fatalf("EndTime() = %v, want %v", s.EndTime(), end)
	}
}

func TestSetEndTimeFromCaptureOnlyMovesForward(t *testing.T) {
	s := newTestStream(t)
	start := s.StartTime()

	t1 := start.Add(time.Minute)
	s.SetEndTimeFromCapture(t1)
	if !s.EndTime().Equal(t1) {
		t.Fatalf("EndTime() = %v, want %v", s.EndTime(), t1)
	}

	earlier := start.Add(30 * time.Second)
	s.SetEndTimeFromCapture(earlier)
	if !s.EndTime().Equal(t1) {
		t.Fatalf("EndTime() moved backward: got %v, want unchanged %v", s.EndTime(), t1)
	}

	later := start.Add(2 * time.Minute)
	s.SetEndTimeFromCapture(later)
	if !s.EndTime().Equal(later) {
		t.Fatalf("EndTime() did not advance: got %v, want %v", s.EndTime(), later)
	}
}

func TestCurrentSegmentListPicksLiveOrVOD(t *testing.T) {
	s := newTestStream(t)
	s.pastSegmentsLive = []PastSegment{{SS: 0, Duration: time.Second, Path: "live.ts"}}
	s.pastSegmentsVOD = []PastSegment{{SS: 0, Duration: time.Second, Path: "vod.mp4"}}

	s.online = platform.Online
	segs, wantLive := s.currentSegmentList()
	if !wantLive || len(segs) != 1 || segs[0].Path != "live.ts" {
		t.Fatalf("expected live segments while online, got %v wantLive=%v", segs, wantLive)
	}

	s.online = platform.Past
	segs, wantLive = s.currentSegmentList()
	if wantLive || len(segs) != 1 || segs[0].Path != "vod.mp4" {
		t.Fatalf("expected vod segments while past, got %v wantLive=%v", segs, wantLive)
	}
}

func TestCleanSpaceEvictsOldestFirstUntilSatisfied(t *testing.T) {
	dir := t.TempDir()
	s := newTestStream(t)

	mk := func(name string, size int, age time.Duration) string {
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, make([]byte, size), 0o644); err != nil {
			t.Fatal(err)
		}
		mt := time.Now().Add(-age)
		if err := os.Chtimes(path, mt, mt); err != nil {
			t.Fatal(err)
		}
		return path
	}

	oldest := mk("oldest.ts", 100, 3*time.Hour)
	middle := mk("middle.mp4", 100, 2*time.Hour)
	newest := mk("newest.mp4", 100, time.Hour)

	s.pastActdl = []SealedCapture{{OutputPath: oldest, StartTime: s.StartTime(), EndTime: s.StartTime().Add(time.Minute)}}
	s.pastSegmentsVOD = []PastSegment{
		{Path: middle, Duration: time.Second},
		{Path: newest, Duration: time.Second},
	}

	freed := s.CleanSpace(150)
	if freed < 150 {
		t.Fatalf("CleanSpace froze %d bytes, want at least 150", freed)
	}
	if _, err := os.Stat(oldest); !os.IsNotExist(err) {
		t.Fatal("expected oldest file to be evicted first")
	}
	if _, err := os.Stat(newest); err != nil {
		t.Fatal("expected newest file to survive")
	}
	if len(s.pastActdl) != 0 {
		t.Fatalf("expected past_actdl entry removed, got %d remaining", len(s.pastActdl))
	}
}

func TestCleanSpaceNeverEvictsActiveDownload(t *testing.T) {
	dir := t.TempDir()
	s := newTestStream(t)

	active := filepath.Join(dir, "active.ts")
	if err := os.WriteFile(active, make([]byte, 1000), 0o644); err != nil {
		t.Fatal(err)
	}
	old := time.Now().Add(-5 * time.Hour)
	os.Chtimes(active, old, old)
	s.activeDownload = &downloader.LiveCapture{OutputPath: active}

	freed := s.CleanSpace(1000)
	if freed != 0 {
		t.Fatalf("CleanSpace should not evict the active download, freed %d", freed)
	}
	if _, err := os.Stat(active); err != nil {
		t.Fatal("active download file should still exist")
	}
}

func TestUsedFilesIncludesActiveAndSealedPaths(t *testing.T) {
	s := newTestStream(t)
	s.pastActdl = []SealedCapture{{OutputPath: "a.ts"}}
	s.pastSegmentsLive = []PastSegment{{Path: "b.ts"}}
	s.pastSegmentsVOD = []PastSegment{{Path: "c.mp4"}}
	s.activeDownload = &downloader.LiveCapture{OutputPath: "active.ts"}

	used := s.UsedFiles()
	want := map[string]bool{"a.ts": true, "b.ts": true, "c.mp4": true, "active.ts": true}
	if len(used) != len(want) {
		t.Fatalf("UsedFiles() = %v, want 4 entries", used)
	}
	for _, p := range used {
		if !want[p] {
			t.Fatalf("unexpected path %q in UsedFiles()", p)
		}
	}
}

func TestTieBreakKeyPrefersActiveThenPriorityThenClock(t *testing.T) {
	s1 := newTestStream(t)
	s2 := newTestStream(t)
	s2.activeDownload = &downloader.LiveCapture{OutputPath: "x.ts"}

	best := Select([]*Stream{s1, s2})
	if best != s2 {
		t.Fatal("Select should prefer the stream with an active download")
	}
}

func TestTieBreakKeyPriorityExpression(t *testing.T) {
	low := newTestStream(t)
	high := newTestStream(t)
	high.PriorityExpr = "1"

	best := Select([]*Stream{low, high})
	if best != high {
		t.Fatal("Select should prefer the higher evaluated priority")
	}
}

func TestTieBreakKeyFallsBackToClock(t *testing.T) {
	earlier := newTestStream(t)
	later := New(Config{}, "uid2", "Y", "https://example.com/watch?v=2", "", "Later", time.Unix(2000, 0))

	best := Select([]*Stream{earlier, later})
	if best != later {
		t.Fatal("Select should prefer the later start time when active/priority tie")
	}
}

func TestSelectEmpty(t *testing.T) {
	if Select(nil) != nil {
		t.Fatal("Select(nil) should return nil")
	}
}

func TestSanitizeTitleStripsSlashes(t *testing.T) {
	if got := sanitizeTitle("a/b/c"); got != "a_b_c" {
		t.Fatalf("sanitizeTitle = %q, want a_b_c", got)
	}
}

func TestExtPrefersMP4ForConcatSources(t *testing.T) {
	srcs := []cutter.ConcatSource{{Path: "a.mp4"}}
	if got := ext(srcs); got != ".mp4" {
		t.Fatalf("ext() = %q, want .mp4", got)
	}
	srcs = []cutter.ConcatSource{{Path: "a.ts"}}
	if got := ext(srcs); got != ".ts" {
		t.Fatalf("ext() = %q, want .ts", got)
	}
	if got := ext(nil); got != ".mp4" {
		t.Fatalf("ext(nil) = %q, want .mp4 fallback", got)
	}
}

func TestIsCacheMissingDetectsTypedError(t *testing.T) {
	var missing clipsvc.DownloadCacheMissing
	if !isCacheMissing(clipsvc.DownloadCacheMissing{Reason: "gone"}, &missing) {
		t.Fatal("expected isCacheMissing to match a DownloadCacheMissing value")
	}
	if missing.Reason != "gone" {
		t.Fatalf("missing.Reason = %q, want gone", missing.Reason)
	}
	if isCacheMissing(clipsvc.CantSseof, &missing) {
		t.Fatal("did not expect isCacheMissing to match an unrelated error")
	}
}

func TestRemoveActdlAndRemoveSegment(t *testing.T) {
	list := []SealedCapture{{URL: "a"}, {URL: "b"}, {URL: "c"}}
	out := removeActdl(list, 1)
	if len(out) != 2 || out[0].URL != "a" || out[1].URL != "c" {
		t.Fatalf("removeActdl(list, 1) = %v", out)
	}
	if same := removeActdl(list, 99); len(same) != len(list) {
		t.Fatal("removeActdl with an out-of-range index should be a no-op")
	}

	segs := []PastSegment{{Path: "x"}, {Path: "y"}}
	out2 := removeSegment(segs, 0)
	if len(out2) != 1 || out2[0].Path != "y" {
		t.Fatalf("removeSegment(segs, 0) = %v", out2)
	}
}

func TestClipAgoAppliesReadBackCushion(t *testing.T) {
	s := New(Config{}, "uid-ago", "Y", "u", "c", "title", time.Now().Add(-300*time.Second))

	elapsed := time.Since(s.StartTime())
	ts := elapsed - 10*time.Second - readBackCushion
	if ts < 288*time.Second || ts > 289*time.Second {
		t.Fatalf("cushioned offset = %v, want about 288s", ts)
	}
}
