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

// Package tsinspect sanity-checks a captured MPEG-TS file using
// github.com/Comcast/gots/v2/packet: before a sealed live capture is
// folded into past_actdl, walk its packets and report whether the continuity counters
// per PID are consistent and whether at least one packet was readable at
// all.
package tsinspect

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/Comcast/gots/v2/packet"
)

// Report summarizes one pass over a .ts file.
type Report struct {
	Packets        int
	Discontinuities int
	PIDsSeen       int
}

// Healthy reports whether the file looked like a plausible capture: at
// least one packet, and discontinuities that don't dominate the stream
// (half or more of the packets flagged is treated as corrupt, not just
// imperfect).
func (r Report) Healthy() bool {
	if r.Packets == 0 {
		return false
	}
	return r.Discontinuities*2 < r.Packets
}

// Inspect walks path packet-by-packet and returns a Report. It tolerates a
// short trailing partial packet (the capture process may have been killed
// mid-write) by simply stopping there rather than erroring.
func Inspect(path string) (Report, error) {
	f, err := os.Open(path)
	if err != nil {
		return Report{}, fmt.Errorf("tsinspect: opening %s: %w", path, err)
	}
	defer f.Close()

	var rep Report
	lastCC := make(map[int]int)
	buf := make([]byte, packet.PacketSize)

	for {
		_, err := io.ReadFull(f, buf)
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			break
		}
		if err != nil {
			return rep, fmt.Errorf("tsinspect: reading %s: %w", path, err)
		}

		pkt := packet.Packet(buf)
		pid := pkt.PID()
		cc := pkt.ContinuityCounter()

		if prev, ok := lastCC[pid]; ok {
			if next := (prev + 1) % 16; cc != next && cc != prev {
				rep.Discontinuities++
			}
		} else {
			rep.PIDsSeen++
		}
		lastCC[pid] = cc
		rep.Packets++
	}

	return rep, nil
}
