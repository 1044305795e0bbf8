package interval

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFindIntersectionsFullyCovered(t *testing.T) {
	target := Span{10, 20}
	sources := []Source{{Span: Span{0, 120}, Handle: "cap1"}}

	covered, uncovered := FindIntersections(target, sources)

	require.Len(t, covered, 1)
	assert.Equal(t, Span{10, 20}, covered[0].Span)
	assert.Equal(t, "cap1", covered[0].Handle)
	assert.Equal(t, 10.0, covered[0].SourceOffset)
	assert.Empty(t, uncovered)
}

func TestFindIntersectionsGapBetweenSegments(t *testing.T) {
	// past_segments_live=[(0,20,f1),(50,20,f2)], fromstart 10 50 -> [10,60]
	target := Span{10, 60}
	sources := []Source{
		{Span: Span{0, 20}, Handle: "f1"},
		{Span: Span{50, 70}, Handle: "f2"},
	}

	covered, uncovered := FindIntersections(target, sources)

	require.Len(t, covered, 2)
	assert.Equal(t, Span{10, 20}, covered[0].Span)
	assert.Equal(t, Span{50, 60}, covered[1].Span)
	require.Len(t, uncovered, 1)
	assert.Equal(t, Span{20, 50}, uncovered[0])
}

func TestFindIntersectionsDisjointUnion(t *testing.T) {
	target := Span{0, 100}
	sources := []Source{
		{Span: Span{5, 10}, Handle: "a"},
		{Span: Span{40, 60}, Handle: "b"},
		{Span: Span{90, 95}, Handle: "c"},
	}

	covered, uncovered := FindIntersections(target, sources)

	var total float64
	for _, c := range covered {
		total += c.Width()
	}
	for _, u := range uncovered {
		total += u.Width()
	}
	assert.Equal(t, target.Width(), total)

	// covered and uncovered must not overlap each other.
	for _, c := range covered {
		for _, u := range uncovered {
			assert.False(t, c.overlaps(u), "covered %v overlaps uncovered %v", c, u)
		}
	}
}

func TestFindIntersectionsNoSources(t *testing.T) {
	covered, uncovered := FindIntersections(Span{0, 30}, nil)
	assert.Empty(t, covered)
	require.Len(t, uncovered, 1)
	assert.Equal(t, Span{0, 30}, uncovered[0])
}

func TestFindIntersectionsFirstSourceWinsOverlap(t *testing.T) {
	target := Span{0, 10}
	sources := []Source{
		{Span: Span{0, 10}, Handle: "first"},
		{Span: Span{0, 10}, Handle: "second"},
	}

	covered, uncovered := FindIntersections(target, sources)

	require.Len(t, covered, 1)
	assert.Equal(t, "first", covered[0].Handle)
	assert.Empty(t, uncovered)
}

func TestPadClamps(t *testing.T) {
	got := Pad(Span{5, 10}, 30, 0, 100)
	assert.Equal(t, Span{0, 40}, got)
}
