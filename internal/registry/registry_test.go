package registry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clipforge/clipforge/internal/clipsvc"
	"github.com/clipforge/clipforge/internal/cutter"
	"github.com/clipforge/clipforge/internal/durable"
	"github.com/clipforge/clipforge/internal/platform"
	"github.com/clipforge/clipforge/internal/stream"
)

func testConfig(t *testing.T) stream.Config {
	t.Helper()
	return stream.Config{
		Cutter:      cutter.New("true"),
		DownloadDir: t.TempDir(),
		ClipDir:     t.TempDir(),
	}
}

func TestSnapshotPersistedOnMutation(t *testing.T) {
	store := durable.NewMemStore()
	r := New(testConfig(t), nil, nil, store)

	s := stream.New(r.streamConfig(), "uid1", "Y", "https://y.example/watch?v=v1", "https://y.example/c/chan", "title", time.Now())
	r.streams["uid1"] = s

	s.UpdateInfo(&platform.InfoRecord{
		Platform:   "Y",
		StreamURL:  "https://y.example/watch?v=v1",
		ChannelURL: "https://y.example/c/chan",
		Title:      "title",
		StartTime:  time.Now(),
		Online:     platform.Online,
	})

	data, err := store.Get(context.Background(), durable.Key{"uid1"})
	require.NoError(t, err, "mutating operation must leave a snapshot behind")
	assert.Contains(t, string(data), `"unique_id":"uid1"`)
}

func TestLookupFallsBackToStore(t *testing.T) {
	store := durable.NewMemStore()

	// First process life: create and mutate a stream, leaving a snapshot.
	r1 := New(testConfig(t), nil, nil, store)
	s := stream.New(r1.streamConfig(), "uid2", "T", "https://t.example/chan", "https://t.example/chan", "title", time.Now())
	r1.streams["uid2"] = s
	s.UpdateInfo(&platform.InfoRecord{Online: platform.Past, Title: "title"})

	// Second process life: empty map, same store.
	r2 := New(testConfig(t), nil, nil, store)
	restored, err := r2.Lookup(context.Background(), "uid2")
	require.NoError(t, err)
	assert.Equal(t, "uid2", restored.UniqueID)
	assert.Equal(t, platform.Past, restored.Online())
	assert.Nil(t, restored.ActiveDownloadHandle(), "a live capture never resumes across restarts")

	// Third lookup hits the in-memory map, same object.
	again, err := r2.Lookup(context.Background(), "uid2")
	require.NoError(t, err)
	assert.Same(t, restored, again)
}

func TestLookupUnknownIsNotLegal(t *testing.T) {
	r := New(testConfig(t), nil, nil, durable.NewMemStore())
	_, err := r.Lookup(context.Background(), "nope")
	var notLegal clipsvc.StreamNotLegal
	assert.ErrorAs(t, err, &notLegal)
}

func TestRemoveDropsStoreFirst(t *testing.T) {
	store := durable.NewMemStore()
	r := New(testConfig(t), nil, nil, store)
	s := stream.New(r.streamConfig(), "uid3", "Y", "u", "c", "title", time.Now())
	r.streams["uid3"] = s
	s.UpdateInfo(&platform.InfoRecord{Online: platform.Online})

	r.Remove(context.Background(), "uid3")

	_, err := store.Get(context.Background(), durable.Key{"uid3"})
	assert.Error(t, err)
	_, ok := r.Get("uid3")
	assert.False(t, ok)
}
