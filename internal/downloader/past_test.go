package downloader

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/clipforge/clipforge/internal/clipsvc"
	"github.com/stretchr/testify/assert"
)

func TestClassifyStatus(t *testing.T) {
	cases := map[string]Status{
		"is_live":   StatusIsLive,
		"post_live": StatusPostLive,
		"not_live":  StatusProcessed,
		"":          StatusProcessed,
		"weird":     StatusOther,
	}
	for in, want := range cases {
		assert.Equal(t, want, classifyStatus(in), "liveStatus=%q", in)
	}
}

func TestLastJSONLine(t *testing.T) {
	out := []byte("{\"a\":1}\n{\"a\":2}\n")
	assert.Equal(t, []byte(`{"a":2}`), lastJSONLine(out))
}

func TestDownloadPastValidatesArguments(t *testing.T) {
	_, _, err := DownloadPast(context.Background(), PastRangeConfig{SS: -1, T: time.Second, SupportsInProgressVOD: true})
	assert.Error(t, err)

	_, _, err = DownloadPast(context.Background(), PastRangeConfig{SS: 0, T: 0, SupportsInProgressVOD: true})
	assert.Error(t, err)
}

func TestDownloadPastPlatformTAlwaysCacheMissing(t *testing.T) {
	_, status, err := DownloadPast(context.Background(), PastRangeConfig{
		SS: 0, T: time.Second, SupportsInProgressVOD: false,
	})
	assert.Equal(t, StatusOther, status)
	var missing clipsvc.DownloadCacheMissing
	assert.True(t, errors.As(err, &missing))
}
