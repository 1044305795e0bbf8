package coldstore

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clipforge/clipforge/internal/clipsvc"
)

func TestDisabledMirrorFromEmptyBucket(t *testing.T) {
	m, err := New(context.Background(), "")
	require.NoError(t, err)
	assert.False(t, m.Enabled())
}

func TestDisabledMirrorUploadIsNoop(t *testing.T) {
	m, err := New(context.Background(), "")
	require.NoError(t, err)
	assert.NoError(t, m.Upload(context.Background(), "/does/not/exist", "obj"))
}

func TestDisabledMirrorRestoreReportsCacheMissing(t *testing.T) {
	m, err := New(context.Background(), "")
	require.NoError(t, err)

	err = m.Restore(context.Background(), "obj", "/tmp/out")
	var missing clipsvc.DownloadCacheMissing
	assert.True(t, errors.As(err, &missing))
}

func TestDisabledMirrorCloseIsNoop(t *testing.T) {
	m, err := New(context.Background(), "")
	require.NoError(t, err)
	assert.NoError(t, m.Close())
}
