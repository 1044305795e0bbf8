package hooks

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clipforge/clipforge/internal/clipsvc"
	"github.com/clipforge/clipforge/internal/cutter"
	"github.com/clipforge/clipforge/internal/durable"
	"github.com/clipforge/clipforge/internal/stream"
)

type mapLookup map[string]*stream.Stream

func (m mapLookup) Lookup(_ context.Context, uid string) (*stream.Stream, error) {
	s, ok := m[uid]
	if !ok {
		return nil, clipsvc.StreamNotLegal{UniqueID: uid}
	}
	return s, nil
}

func newTestStream(t *testing.T, uid string, start time.Time) *stream.Stream {
	t.Helper()
	return stream.New(stream.Config{
		Cutter:      cutter.New("true"),
		DownloadDir: t.TempDir(),
		ClipDir:     t.TempDir(),
	}, uid, "Y", "https://y.example/watch?v="+uid, "https://y.example/c/chan", "title", start)
}

func TestAddToCapturedStreamsHook(t *testing.T) {
	captured := durable.NewMemStore()
	f := Factories{Captured: captured}

	hook, err := f.addToCapturedStreams(map[string]string{"channel_id": "chn1", "priority": "2.5"})
	require.NoError(t, err)

	s := newTestStream(t, "uid1", time.Now())
	require.NoError(t, hook(context.Background(), s))

	entries, err := Captured(context.Background(), captured, "chn1")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, CapturedEntry{Priority: 2.5, UniqueID: "uid1"}, entries[0])

	// Firing again must replace, not duplicate (UNIQUE ON CONFLICT REPLACE).
	require.NoError(t, hook(context.Background(), s))
	entries, err = Captured(context.Background(), captured, "chn1")
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestAddToCapturedStreamsRejectsBadParams(t *testing.T) {
	f := Factories{Captured: durable.NewMemStore()}

	_, err := f.addToCapturedStreams(map[string]string{})
	assert.Error(t, err)

	_, err = f.addToCapturedStreams(map[string]string{"channel_id": "chn1", "priority": "high"})
	assert.Error(t, err)
}

func TestSendEnabledMsgHook(t *testing.T) {
	var gotChannel, gotUID string
	f := Factories{Announcer: announcerFunc(func(_ context.Context, chn string, s *stream.Stream) error {
		gotChannel, gotUID = chn, s.UniqueID
		return nil
	})}

	hook, err := f.sendEnabledMsg(map[string]string{"channel_id": "chn2"})
	require.NoError(t, err)
	require.NoError(t, hook(context.Background(), newTestStream(t, "uid2", time.Now())))
	assert.Equal(t, "chn2", gotChannel)
	assert.Equal(t, "uid2", gotUID)
}

type announcerFunc func(ctx context.Context, channelID string, s *stream.Stream) error

func (f announcerFunc) AnnounceEnabled(ctx context.Context, channelID string, s *stream.Stream) error {
	return f(ctx, channelID, s)
}

func TestPickPrefersPriorityThenRecency(t *testing.T) {
	captured := durable.NewMemStore()
	f := Factories{Captured: captured}
	base := time.Now().Add(-time.Hour)

	old := newTestStream(t, "old", base)
	newer := newTestStream(t, "newer", base.Add(30*time.Minute))
	favored := newTestStream(t, "favored", base.Add(10*time.Minute))
	lookup := mapLookup{"old": old, "newer": newer, "favored": favored}

	add := func(uid, prio string) {
		hook, err := f.addToCapturedStreams(map[string]string{"channel_id": "chn", "priority": prio})
		require.NoError(t, err)
		require.NoError(t, hook(context.Background(), lookup[uid]))
	}
	add("old", "0")
	add("newer", "0")

	picked, err := Pick(context.Background(), captured, lookup, "chn")
	require.NoError(t, err)
	assert.Equal(t, "newer", picked.UniqueID, "equal priority falls through to recency")

	add("favored", "5")
	picked, err = Pick(context.Background(), captured, lookup, "chn")
	require.NoError(t, err)
	assert.Equal(t, "favored", picked.UniqueID, "higher priority wins over recency")
}

func TestPickSkipsDroppedStreams(t *testing.T) {
	captured := durable.NewMemStore()
	f := Factories{Captured: captured}

	present := newTestStream(t, "present", time.Now())
	lookup := mapLookup{"present": present}

	hook, err := f.addToCapturedStreams(map[string]string{"channel_id": "chn"})
	require.NoError(t, err)
	require.NoError(t, hook(context.Background(), present))
	require.NoError(t, hook(context.Background(), newTestStream(t, "dropped", time.Now())))

	picked, err := Pick(context.Background(), captured, lookup, "chn")
	require.NoError(t, err)
	assert.Equal(t, "present", picked.UniqueID)
}

func TestPickEmptyChannelIsNotLegal(t *testing.T) {
	_, err := Pick(context.Background(), durable.NewMemStore(), mapLookup{}, "empty")
	var notLegal clipsvc.StreamNotLegal
	assert.ErrorAs(t, err, &notLegal)
}
