package stream

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/clipforge/clipforge/internal/platform"
)

func TestSnapshotRoundTrip(t *testing.T) {
	s := newTestStream(t)
	s.UpdateInfo(&platform.InfoRecord{Online: platform.Online})
	s.pastActdl = []SealedCapture{{
		URL:        "https://example.com/watch?v=1",
		OutputPath: "cap0.ts",
		StartTime:  s.StartTime(),
		EndTime:    s.StartTime().Add(time.Hour),
	}}
	s.pastSegmentsLive = []PastSegment{{SS: 10 * time.Second, Duration: 20 * time.Second, Path: "seg.mp4"}}
	s.PriorityExpr = "online ? 2 : 0"

	data, err := json.Marshal(s.Snapshot())
	if err != nil {
		t.Fatal(err)
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		t.Fatal(err)
	}
	restored := FromSnapshot(Config{}, snap)

	if restored.UniqueID != s.UniqueID || restored.Title != s.Title {
		t.Fatalf("identity fields lost: %+v", restored)
	}
	if !restored.StartTime().Equal(s.StartTime()) {
		t.Fatalf("start_time = %v, want %v", restored.StartTime(), s.StartTime())
	}
	if restored.Online() != platform.Online {
		t.Fatalf("online = %v, want Online", restored.Online())
	}
	if len(restored.pastActdl) != 1 || restored.pastActdl[0].OutputPath != "cap0.ts" {
		t.Fatalf("past_actdl lost: %+v", restored.pastActdl)
	}
	if len(restored.pastSegmentsLive) != 1 || restored.pastSegmentsLive[0].SS != 10*time.Second {
		t.Fatalf("past_segments_live lost: %+v", restored.pastSegmentsLive)
	}
	if restored.PriorityExpr != s.PriorityExpr {
		t.Fatalf("priority expression lost: %q", restored.PriorityExpr)
	}
	if restored.ActiveDownloadHandle() != nil {
		t.Fatal("an active download must never survive a snapshot")
	}
}

func TestSaverFiresOnMutatingOperations(t *testing.T) {
	var saved []Snapshot
	s := New(Config{Saver: func(snap Snapshot) { saved = append(saved, snap) }},
		"uid-sv", "Y", "u", "c", "title", time.Unix(1000, 0))

	s.UpdateInfo(&platform.InfoRecord{Online: platform.Online})
	if len(saved) != 1 {
		t.Fatalf("UpdateInfo should snapshot once, got %d", len(saved))
	}
	s.SetEndTimeFromCapture(time.Unix(2000, 0))
	if len(saved) != 2 {
		t.Fatalf("SetEndTimeFromCapture should snapshot, got %d", len(saved))
	}
	if saved[1].EndTime.IsZero() {
		t.Fatal("snapshot should carry the new end_time")
	}
}
