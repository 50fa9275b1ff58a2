// Copyright 2022 The iqreplay Authors.
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation; either version 2 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

package timeline

import (
	"sort"
	"time"

	"iqreplay/pkg/sigmf"
)

// Timeline ordered, gap resolved captures of a recording.
type Timeline struct {
	captures     []sigmf.Capture
	starts       []uint64 // Index aligned with captures.
	totalSamples uint64
}

// Build resolves capture lengths and cumulative times. Captures must be
// in ascending sample start order, they are never re-sorted. A recording
// without captures gets a single capture spanning the whole file.
func Build(
	drafts []sigmf.Capture,
	totalSamples uint64,
	sampleRate int,
	now time.Time,
) *Timeline {
	captures := make([]sigmf.Capture, len(drafts))
	copy(captures, drafts)

	if len(captures) == 0 {
		captures = []sigmf.Capture{{
			SampleRate:       sampleRate,
			StartTimestampMs: uint64(now.UnixNano() / int64(time.Millisecond)),
		}}
	}

	for i := 0; i < len(captures)-1; i++ {
		if captures[i].Length == 0 {
			next := captures[i+1].SampleStart
			if next > captures[i].SampleStart {
				captures[i].Length = next - captures[i].SampleStart
			}
		}
	}
	last := &captures[len(captures)-1]
	if last.Length == 0 && totalSamples > last.SampleStart {
		last.Length = totalSamples - last.SampleStart
	}

	var cumulativeTime uint64
	starts := make([]uint64, len(captures))
	for i := range captures {
		captures[i].CumulativeTimeMs = cumulativeTime
		cumulativeTime += DurationMs(captures[i].Length, captures[i].SampleRate)
		starts[i] = captures[i].SampleStart
	}

	return &Timeline{
		captures:     captures,
		starts:       starts,
		totalSamples: totalSamples,
	}
}

// DurationMs duration of n samples at rate in milliseconds.
func DurationMs(n uint64, rate int) uint64 {
	if rate <= 0 {
		return 0
	}
	return n * 1000 / uint64(rate)
}

// Len number of captures, never zero.
func (t *Timeline) Len() int {
	return len(t.captures)
}

// TotalSamples number of samples in the data file.
func (t *Timeline) TotalSamples() uint64 {
	return t.totalSamples
}

// Capture returns capture i, i must be in range.
func (t *Timeline) Capture(i int) sigmf.Capture {
	return t.captures[i]
}

// Captures returns a copy of the resolved captures.
func (t *Timeline) Captures() []sigmf.Capture {
	captures := make([]sigmf.Capture, len(t.captures))
	copy(captures, t.captures)
	return captures
}

// ClampIndex clamps i to a valid capture index.
func (t *Timeline) ClampIndex(i int) int {
	if i < 0 {
		return 0
	}
	if i >= len(t.captures) {
		return len(t.captures) - 1
	}
	return i
}

// TrackIndexForSample returns the index of the last capture
// that starts at or before sample.
func (t *Timeline) TrackIndexForSample(sample uint64) int {
	i := sort.Search(len(t.starts), func(i int) bool {
		return t.starts[i] > sample
	})
	if i == 0 {
		return 0
	}
	return i - 1
}

// SampleStartForTrack returns the start of capture i
// or the total sample count if i is out of range.
func (t *Timeline) SampleStartForTrack(i int) uint64 {
	if i < 0 || i >= len(t.starts) {
		return t.totalSamples
	}
	return t.starts[i]
}

// TrackEnd returns the exclusive end sample of capture i.
func (t *Timeline) TrackEnd(i int) uint64 {
	i = t.ClampIndex(i)
	end := t.captures[i].SampleStart + t.captures[i].Length
	if end > t.totalSamples {
		return t.totalSamples
	}
	return end
}

// SeekOffsetForTrackMillis returns the sample at millis
// thousandths of capture i.
func (t *Timeline) SeekOffsetForTrackMillis(i int, millis uint32) uint64 {
	c := t.captures[t.ClampIndex(i)]
	return c.SampleStart + c.Length*uint64(clampMillis(millis))/1000
}

// SeekOffsetForFileMillis returns the sample at millis
// thousandths of the recording.
func (t *Timeline) SeekOffsetForFileMillis(millis uint32) uint64 {
	return t.totalSamples * uint64(clampMillis(millis)) / 1000
}

// TotalTimeMs duration of the recording in milliseconds.
func (t *Timeline) TotalTimeMs() uint64 {
	last := t.captures[len(t.captures)-1]
	return last.CumulativeTimeMs + DurationMs(last.Length, last.SampleRate)
}

func clampMillis(millis uint32) uint32 {
	if millis > 1000 {
		return 1000
	}
	return millis
}
