package platform

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// A resolver whose extractor has no modules: any input that reaches the
// extractor comes back unresolved, so these tests prove which forms are
// settled syntactically with no round-trip at all.
func newOfflineResolver(dir Directory) *Resolver {
	return NewResolver(dir, NewExtractor())
}

func TestClassify(t *testing.T) {
	cases := map[string]string{
		"UCabcdefghijklmnopqrst12":                "channel_id", // 24 chars
		"dQw4w9WgXcQ":                             "stream_id",  // 11 chars
		"@somehandle":                             "handle",
		"https://www.youtube.com/channel/UCabc":   "channel_url",
		"https://www.youtube.com/@somehandle":     "channel_url",
		"https://www.youtube.com/watch?v=dQw4w9W": "stream_url",
		"Some Streamer":                           "name",
	}
	for in, want := range cases {
		assert.Equal(t, want, Classify(in), "Classify(%q)", in)
	}
}

func TestGetChannelURLsBareChannelID(t *testing.T) {
	r := newOfflineResolver(nil)
	urls, err := r.GetChannelURLs(context.Background(), "UCabcdefghijklmnopqrst12")
	require.NoError(t, err)
	assert.Equal(t, []string{"https://www.youtube.com/channel/UCabcdefghijklmnopqrst12"}, urls)
}

func TestGetChannelURLsHandle(t *testing.T) {
	r := newOfflineResolver(nil)
	urls, err := r.GetChannelURLs(context.Background(), "@somehandle")
	require.NoError(t, err)
	assert.Equal(t, []string{"https://www.youtube.com/@somehandle"}, urls)
}

func TestGetChannelURLsChannelURLIsItself(t *testing.T) {
	r := newOfflineResolver(nil)
	in := "https://www.youtube.com/channel/UCabcdefghijklmnopqrst12"
	urls, err := r.GetChannelURLs(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, []string{in}, urls)
}

func TestGetChannelURLsDirectoryNameReturnsEveryChannel(t *testing.T) {
	dir := Directory{"Some Streamer": {
		"https://www.youtube.com/channel/UCaaaaaaaaaaaaaaaaaaaa11",
		"https://www.twitch.tv/somestreamer",
	}}
	r := newOfflineResolver(dir)
	urls, err := r.GetChannelURLs(context.Background(), "Some Streamer")
	require.NoError(t, err)
	assert.Len(t, urls, 2)
}

func TestGetChannelURLsUnknownNameIsNoMatch(t *testing.T) {
	r := newOfflineResolver(nil)
	_, err := r.GetChannelURLs(context.Background(), "nobody anyone knows")
	var noMatch ErrNoMatch
	assert.True(t, errors.As(err, &noMatch))
}

func TestGetStreamURLBareStreamID(t *testing.T) {
	r := newOfflineResolver(nil)
	url, rec, err := r.GetStreamURL(context.Background(), "dQw4w9WgXcQ")
	require.NoError(t, err)
	assert.Equal(t, "https://www.youtube.com/watch?v=dQw4w9WgXcQ", url)
	assert.Nil(t, rec, "a syntactic resolution carries no info record")
}

func TestGetStreamURLUnknownNameIsNoMatch(t *testing.T) {
	r := newOfflineResolver(nil)
	_, _, err := r.GetStreamURL(context.Background(), "nobody anyone knows")
	var noMatch ErrNoMatch
	assert.True(t, errors.As(err, &noMatch))
}

func TestLooksLikeChannel(t *testing.T) {
	assert.True(t, looksLikeChannel("https://www.youtube.com/channel/UCabc"))
	assert.True(t, looksLikeChannel("https://www.youtube.com/c/SomeOne"))
	assert.True(t, looksLikeChannel("https://www.youtube.com/@somehandle"))
	assert.False(t, looksLikeChannel("https://www.youtube.com/watch?v=dQw4w9WgXcQ"))
	assert.False(t, looksLikeChannel("https://www.twitch.tv/videos/123456"))
}
