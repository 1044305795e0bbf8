package watcher

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clipforge/clipforge/internal/clipsvc"
	"github.com/clipforge/clipforge/internal/cutter"
	"github.com/clipforge/clipforge/internal/stream"
)

func newTestStream(t *testing.T) *stream.Stream {
	t.Helper()
	return stream.New(stream.Config{
		Cutter:      cutter.New("true"),
		DownloadDir: t.TempDir(),
		ClipDir:     t.TempDir(),
	}, "unit-test-stream", "Y", "https://example.test/stream", "https://example.test/channel", "title", time.Now())
}

// scriptedPoll returns results from a fixed sequence, repeating the last
// entry once exhausted, and records how many times it was called.
func scriptedPoll(results []*stream.Stream, errs []error) (PollFunc, func() int) {
	var mu sync.Mutex
	i := 0
	fn := func(ctx context.Context) (*stream.Stream, error) {
		mu.Lock()
		defer mu.Unlock()
		idx := i
		if idx >= len(results) {
			idx = len(results) - 1
		}
		i++
		return results[idx], errs[idx]
	}
	count := func() int {
		mu.Lock()
		defer mu.Unlock()
		return i
	}
	return fn, count
}

func TestWatcherIdleStaysIdleWhenNeverLive(t *testing.T) {
	poll := func(ctx context.Context) (*stream.Stream, error) { return nil, nil }
	w := New("t1", poll, nil)
	w.apply(context.Background(), nil)
	assert.Equal(t, StateIdle, w.State())
}

func TestWatcherStateStringValues(t *testing.T) {
	assert.Equal(t, "IDLE", StateIdle.String())
	assert.Equal(t, "LIVE", StateLive.String())
	assert.Equal(t, "VERIFYING", StateVerifying.String())
	assert.Equal(t, "ENDED", StateEnded.String())
}

func TestWatcherHookFiresOnceForLateJoiner(t *testing.T) {
	s := newTestStream(t)
	w := New("t1", nil, nil)
	w.mu.Lock()
	w.state = StateLive
	w.activeStream = s
	w.mu.Unlock()

	var fired int
	var mu sync.Mutex
	w.AddHook(context.Background(), "reg-1", func(ctx context.Context, got *stream.Stream) error {
		mu.Lock()
		defer mu.Unlock()
		fired++
		assert.Same(t, s, got)
		return nil
	})

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, fired)
}

func TestWatcherRemoveHookStopsFutureFires(t *testing.T) {
	w := New("t1", nil, nil)
	var fired int
	h := func(ctx context.Context, s *stream.Stream) error { fired++; return nil }
	w.AddHook(context.Background(), "reg-1", h)
	w.RemoveHook("reg-1")

	w.mu.Lock()
	hooks := len(w.hooks)
	w.mu.Unlock()
	assert.Equal(t, 0, hooks)
}

func TestWatcherHookPanicIsRecovered(t *testing.T) {
	w := New("t1", nil, nil)
	assert.NotPanics(t, func() {
		w.fireOne(context.Background(), func(ctx context.Context, s *stream.Stream) error {
			panic("boom")
		}, nil)
	})
}

func TestWatcherVerifyingTolerantOfTransientMiss(t *testing.T) {
	s := newTestStream(t)
	w := New("t1", nil, nil)
	w.mu.Lock()
	w.state = StateLive
	w.activeStream = s
	w.mu.Unlock()

	w.apply(context.Background(), nil) // actdl_off -> VERIFYING
	assert.Equal(t, StateVerifying, w.State())

	w.apply(context.Background(), s) // transient drop confirmed live again
	assert.Equal(t, StateLive, w.State())
}

func TestWatcherVerifyingEndsAfterStrikeLimit(t *testing.T) {
	w := New("t1", nil, nil)
	w.mu.Lock()
	w.state = StateLive
	w.mu.Unlock()

	w.apply(context.Background(), nil)
	for i := 1; i < verifyStrikeLimit; i++ {
		assert.Equal(t, StateVerifying, w.State())
		w.apply(context.Background(), nil)
	}
	assert.Equal(t, StateIdle, w.State())
}

func TestWatcherTickTerminatesOnDownloadForbidden(t *testing.T) {
	poll := func(ctx context.Context) (*stream.Stream, error) {
		return nil, clipsvc.DownloadForbidden{
			DownloadBlocked: clipsvc.DownloadBlocked{URL: "https://example.test", Status: 403},
			Reason:          "policy",
		}
	}
	w := New("t1", poll, nil)
	terminate := w.tick(context.Background())
	assert.True(t, terminate)
	assert.True(t, w.forbidden)
}

func TestWatcherTickWrappedDownloadForbidden(t *testing.T) {
	base := clipsvc.DownloadForbidden{Reason: "policy"}
	poll := func(ctx context.Context) (*stream.Stream, error) {
		return nil, errors.Join(errors.New("context"), base)
	}
	w := New("t1", poll, nil)
	require.True(t, w.tick(context.Background()))
}

func TestWatcherStartStopLifecycle(t *testing.T) {
	poll, count := scriptedPoll([]*stream.Stream{nil}, []error{nil})
	w := New("t1", poll, nil)

	done := make(chan struct{})
	go func() {
		w.Start(context.Background())
		close(done)
	}()

	time.Sleep(10 * time.Millisecond)
	w.Stop()
	<-done
	assert.GreaterOrEqual(t, count(), 0)
}

func TestWatcherStartIsIdempotent(t *testing.T) {
	poll := func(ctx context.Context) (*stream.Stream, error) { return nil, nil }
	w := New("t1", poll, nil)

	done := make(chan struct{})
	go func() {
		w.Start(context.Background())
		close(done)
	}()
	time.Sleep(5 * time.Millisecond)

	w.Start(context.Background()) // should be a logged no-op, return immediately
	w.Stop()
	<-done
}
