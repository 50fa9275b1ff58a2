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
	"testing"
	"time"

	"iqreplay/pkg/sigmf"

	"github.com/stretchr/testify/require"
)

func lengths(tl *Timeline) []uint64 {
	var output []uint64
	for _, c := range tl.Captures() {
		output = append(output, c.Length)
	}
	return output
}

func TestBuild(t *testing.T) {
	now := time.Unix(1000, 0)

	cases := []struct {
		name               string
		drafts             []sigmf.Capture
		total              uint64
		expectedLengths    []uint64
		expectedCumulative []uint64
	}{
		{
			name: "twoUnknown",
			drafts: []sigmf.Capture{
				{SampleStart: 0, SampleRate: 1000},
				{SampleStart: 1000, SampleRate: 1000},
			},
			total:              5000,
			expectedLengths:    []uint64{1000, 4000},
			expectedCumulative: []uint64{0, 1000},
		},
		{
			name: "threeUnknown",
			drafts: []sigmf.Capture{
				{SampleStart: 0, SampleRate: 1000},
				{SampleStart: 500, SampleRate: 500},
				{SampleStart: 1500, SampleRate: 1000},
			},
			total:              3000,
			expectedLengths:    []uint64{500, 1000, 1500},
			expectedCumulative: []uint64{0, 500, 2500},
		},
		{
			name: "explicit",
			drafts: []sigmf.Capture{
				{SampleStart: 0, Length: 100, SampleRate: 100},
				{SampleStart: 100, Length: 200, SampleRate: 100},
			},
			total:              300,
			expectedLengths:    []uint64{100, 200},
			expectedCumulative: []uint64{0, 1000},
		},
		{
			name:               "single",
			drafts:             []sigmf.Capture{{SampleStart: 0, Length: 5000, SampleRate: 1000}},
			total:              5000,
			expectedLengths:    []uint64{5000},
			expectedCumulative: []uint64{0},
		},
		{
			name:               "none",
			total:              2000,
			expectedLengths:    []uint64{2000},
			expectedCumulative: []uint64{0},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tl := Build(tc.drafts, tc.total, 1000, now)
			require.Equal(t, tc.expectedLengths, lengths(tl))

			var cumulative []uint64
			var sum uint64
			for _, c := range tl.Captures() {
				cumulative = append(cumulative, c.CumulativeTimeMs)
				sum += c.Length
			}
			require.Equal(t, tc.expectedCumulative, cumulative)
			require.Equal(t, tc.total, sum)
		})
	}
}

func TestBuildIdempotent(t *testing.T) {
	drafts := []sigmf.Capture{{SampleStart: 100, SampleRate: 1000}}
	tl := Build(drafts, 5000, 1000, time.Now())
	require.Equal(t, []uint64{4900}, lengths(tl))

	tl2 := Build(tl.Captures(), 5000, 1000, time.Now())
	require.Equal(t, tl.Captures(), tl2.Captures())
}

func TestBuildNoCaptures(t *testing.T) {
	tl := Build(nil, 48000, 48000, time.Unix(1, 0))
	require.Equal(t, 1, tl.Len())
	c := tl.Capture(0)
	require.Equal(t, 48000, c.SampleRate)
	require.Equal(t, uint64(1000), c.StartTimestampMs)
	require.Equal(t, uint64(1000), tl.TotalTimeMs())
}

func newTestTimeline() *Timeline {
	return Build([]sigmf.Capture{
		{SampleStart: 0, SampleRate: 1000},
		{SampleStart: 1000, Length: 2000, SampleRate: 1000},
		{SampleStart: 3000, SampleRate: 2000},
	}, 5000, 1000, time.Now())
}

func TestLookups(t *testing.T) {
	tl := newTestTimeline()

	t.Run("trackIndexForSample", func(t *testing.T) {
		cases := []struct {
			sample   uint64
			expected int
		}{
			{0, 0},
			{999, 0},
			{1000, 1},
			{2999, 1},
			{3000, 2},
			{4999, 2},
			{100000, 2},
		}
		for _, tc := range cases {
			require.Equal(t, tc.expected, tl.TrackIndexForSample(tc.sample))
		}
	})
	t.Run("monotonic", func(t *testing.T) {
		prev := 0
		for x := uint64(0); x < tl.TotalSamples(); x += 7 {
			i := tl.TrackIndexForSample(x)
			require.GreaterOrEqual(t, i, prev)
			prev = i
		}
	})
	t.Run("roundTrip", func(t *testing.T) {
		for x := uint64(0); x < tl.TotalSamples(); x += 13 {
			require.LessOrEqual(t, tl.SampleStartForTrack(tl.TrackIndexForSample(x)), x)
		}
	})
	t.Run("sampleStartForTrack", func(t *testing.T) {
		require.Equal(t, uint64(1000), tl.SampleStartForTrack(1))
		require.Equal(t, uint64(5000), tl.SampleStartForTrack(3))
		require.Equal(t, uint64(5000), tl.SampleStartForTrack(-1))
	})
	t.Run("trackEnd", func(t *testing.T) {
		require.Equal(t, uint64(1000), tl.TrackEnd(0))
		require.Equal(t, uint64(3000), tl.TrackEnd(1))
		require.Equal(t, uint64(5000), tl.TrackEnd(2))
		require.Equal(t, uint64(5000), tl.TrackEnd(9))
	})
	t.Run("seekTrackMillis", func(t *testing.T) {
		require.Equal(t, uint64(2000), tl.SeekOffsetForTrackMillis(1, 500))
		require.Equal(t, uint64(1000), tl.SeekOffsetForTrackMillis(1, 0))
		require.Equal(t, uint64(3000), tl.SeekOffsetForTrackMillis(1, 1000))
		require.Equal(t, uint64(3000), tl.SeekOffsetForTrackMillis(1, 5000))
	})
	t.Run("seekFileMillis", func(t *testing.T) {
		require.Equal(t, uint64(2500), tl.SeekOffsetForFileMillis(500))
		require.Equal(t, uint64(5000), tl.SeekOffsetForFileMillis(2000))
	})
	t.Run("totalTime", func(t *testing.T) {
		// 1000ms + 2000ms + 2000 samples at 2000Hz.
		require.Equal(t, uint64(4000), tl.TotalTimeMs())
	})
}
