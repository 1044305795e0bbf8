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

// Package interval implements the interval arithmetic the stream package
// uses to reconcile a requested clip range against a list of cached
// segments: splitting a target span into the parts segment files cover
// and the gaps they leave.
package interval

import "sort"

// Span is a closed, inclusive [Lo, Hi] range, in the same units as the
// caller (relative seconds, absolute epoch seconds, or byte offsets).
type Span struct {
	Lo, Hi float64
}

// Width returns Hi - Lo, or 0 if the span is empty/degenerate.
func (s Span) Width() float64 {
	if s.Hi <= s.Lo {
		return 0
	}
	return s.Hi - s.Lo
}

func (s Span) overlaps(o Span) bool { return s.Lo < o.Hi && o.Lo < s.Hi }

func (s Span) intersect(o Span) (Span, bool) {
	lo, hi := max(s.Lo, o.Lo), min(s.Hi, o.Hi)
	if lo >= hi {
		return Span{}, false
	}
	return Span{lo, hi}, true
}

// Source is one candidate segment: its covered span and an opaque handle
// the caller uses to identify which file/capture backs it.
type Source struct {
	Span
	Handle any
}

// Covered describes the portion of target covered by one Source, with the
// offset into that source's own timeline the covered span starts at.
type Covered struct {
	Span
	Handle       any
	SourceOffset float64 // target.Lo - source.Lo equivalent, i.e. offset within the source
}

// FindIntersections partitions target against sources, returning the
// covered sub-spans (each attributed to the source that covers it, ordered
// by absolute position) and the uncovered gaps remaining. It holds
// ⋃covered ∪ ⋃uncovered = target and covered ∩ uncovered = ∅.
//
// Sources may overlap each other; when they do, the source that comes
// first in sources order wins the overlapped region (first match wins),
// mirroring the sealed-capture scan the stream aggregator performs.
func FindIntersections(target Span, sources []Source) (covered []Covered, uncovered []Span) {
	if target.Width() <= 0 {
		return nil, nil
	}

	// Track the remaining uncovered pieces of target as we consume sources
	// in order; each source claims whatever part of the remaining pieces it
	// overlaps.
	remaining := []Span{target}

	for _, src := range sources {
		var next []Span
		for _, r := range remaining {
			ov, ok := r.intersect(src.Span)
			if !ok || !r.overlaps(src.Span) {
				next = append(next, r)
				continue
			}
			covered = append(covered, Covered{
				Span:         ov,
				Handle:       src.Handle,
				SourceOffset: ov.Lo - src.Lo,
			})
			if r.Lo < ov.Lo {
				next = append(next, Span{r.Lo, ov.Lo})
			}
			if ov.Hi < r.Hi {
				next = append(next, Span{ov.Hi, r.Hi})
			}
		}
		remaining = next
	}

	uncovered = remaining
	sort.Slice(covered, func(i, j int) bool { return covered[i].Lo < covered[j].Lo })
	sort.Slice(uncovered, func(i, j int) bool { return uncovered[i].Lo < uncovered[j].Lo })
	return covered, uncovered
}

// Pad expands span by p on each side, clamped to [lo, hi].
func Pad(span Span, p, lo, hi float64) Span {
	out := Span{span.Lo - p, span.Hi + p}
	if out.Lo < lo {
		out.Lo = lo
	}
	if out.Hi > hi {
		out.Hi = hi
	}
	return out
}

func max(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

func min(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
