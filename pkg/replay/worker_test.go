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

package replay

import (
	"bytes"
	"testing"
	"time"

	"iqreplay/pkg/fifo"
	"iqreplay/pkg/sample"
	"iqreplay/pkg/sigmf"
	"iqreplay/pkg/timeline"

	"github.com/stretchr/testify/require"
)

// newTestWorker tracks start at starts, default 0 and 100.
func newTestWorker(t *testing.T, frames int, starts ...uint64) (*FileWorker, chan Event) {
	t.Helper()
	dataType, _ := sigmf.ParseDataType("ci16_le")
	decoder, err := sample.NewDecoder(dataType)
	require.NoError(t, err)

	if len(starts) == 0 {
		starts = []uint64{0, 100}
	}
	captures := make([]sigmf.Capture, len(starts))
	for i, start := range starts {
		captures[i] = sigmf.Capture{SampleStart: start, SampleRate: 1000}
	}
	tl := timeline.Build(captures, uint64(frames), 1000, time.Now())

	events := make(chan Event)
	raw := bytes.Repeat([]byte{0, 0x40, 0, 0xc0}, frames)
	w := NewFileWorker(WorkerConfig{
		Cursor:   NewCursor(bytes.NewReader(raw), 4),
		Decoder:  decoder,
		Fifo:     fifo.New(10000),
		Timeline: tl,
		Events:   events,
	}).(*FileWorker)
	w.period = time.Millisecond
	return w, events
}

func recvEvent(t *testing.T, events chan Event) Event {
	t.Helper()
	select {
	case e := <-events:
		return e
	case <-time.After(5 * time.Second):
		t.Fatal("timeout")
		return Event{}
	}
}

func TestFileWorker(t *testing.T) {
	t.Run("streamToEnd", func(t *testing.T) {
		w, events := newTestWorker(t, 300)
		w.SetAccelerationFactor(20)

		w.StartWork()
		require.True(t, w.IsRunning())

		require.Equal(t, Event{Kind: EventTrackBoundaryCrossed, TrackIndex: 1}, recvEvent(t, events))
		require.Equal(t, Event{Kind: EventEndOfStream}, recvEvent(t, events))

		w.StopWork()
		require.False(t, w.IsRunning())
		require.Equal(t, uint64(300), w.SamplesCount())
		require.Equal(t, 300, w.fifo.Fill())

		dst := make([]complex64, 1)
		_, ok := w.fifo.Pull(dst)
		require.True(t, ok)
		require.Equal(t, complex64(complex(0.5, -0.5)), dst[0])
	})
	t.Run("chunkSpansTracks", func(t *testing.T) {
		w, events := newTestWorker(t, 300, 0, 100, 200)
		// One period would read the whole file.
		w.SetAccelerationFactor(1000)

		w.StartWork()
		require.Equal(t, Event{Kind: EventTrackBoundaryCrossed, TrackIndex: 1}, recvEvent(t, events))
		require.Equal(t, Event{Kind: EventTrackBoundaryCrossed, TrackIndex: 2}, recvEvent(t, events))
		require.Equal(t, Event{Kind: EventEndOfStream}, recvEvent(t, events))

		w.StopWork()
		require.Equal(t, uint64(300), w.SamplesCount())
		require.Equal(t, 300, w.fifo.Fill())
		require.Equal(t, 2, w.trackIndex)
	})
	t.Run("emptyTrack", func(t *testing.T) {
		w, events := newTestWorker(t, 300, 0, 100, 100, 200)
		w.SetAccelerationFactor(1000)

		w.StartWork()
		for i := 1; i <= 3; i++ {
			require.Equal(t, Event{Kind: EventTrackBoundaryCrossed, TrackIndex: i}, recvEvent(t, events))
		}
		require.Equal(t, Event{Kind: EventEndOfStream}, recvEvent(t, events))
		w.StopWork()
		require.Equal(t, 300, w.fifo.Fill())
	})
	t.Run("trackModeEnd", func(t *testing.T) {
		w, events := newTestWorker(t, 300, 0, 100, 200)
		w.SetAccelerationFactor(1000)
		w.SetTotalSamples(100)

		// The end of the played track is the end of the stream.
		w.StartWork()
		require.Equal(t, Event{Kind: EventEndOfStream}, recvEvent(t, events))
		w.StopWork()
		require.Equal(t, 100, w.fifo.Fill())
	})
	t.Run("upperBound", func(t *testing.T) {
		w, events := newTestWorker(t, 300)
		w.SetAccelerationFactor(20)
		w.SetSamplesCount(120)
		w.SetTrackIndex(1)
		w.SetTotalSamples(150)

		w.StartWork()
		require.Equal(t, Event{Kind: EventEndOfStream}, recvEvent(t, events))
		w.StopWork()
		require.Equal(t, uint64(150), w.SamplesCount())
		require.Equal(t, 30, w.fifo.Fill())
	})
	t.Run("startAtEnd", func(t *testing.T) {
		w, events := newTestWorker(t, 10)
		w.SetSamplesCount(10)

		w.StartWork()
		require.Equal(t, Event{Kind: EventEndOfStream}, recvEvent(t, events))
		w.StopWork()
		require.Equal(t, 0, w.fifo.Fill())
	})
	t.Run("stopWhileSending", func(t *testing.T) {
		w, _ := newTestWorker(t, 10)
		w.SetSamplesCount(10)
		w.StartWork()

		// Nothing reads the events.
		time.Sleep(10 * time.Millisecond)
		w.StopWork()
		require.False(t, w.IsRunning())
	})
	t.Run("restart", func(t *testing.T) {
		w, _ := newTestWorker(t, 300)
		w.StartWork()
		w.StartWork()
		w.StopWork()
		w.StopWork()
		w.StartWork()
		require.True(t, w.IsRunning())
		w.StopWork()
	})
}

func TestCursor(t *testing.T) {
	c := NewCursor(bytes.NewReader([]byte{1, 2, 3, 4, 5, 6, 7, 8, 9}), 4)

	buf := make([]byte, 4)
	n, err := c.Read(buf)
	require.NoError(t, err)
	require.Equal(t, 1, n)
	require.Equal(t, []byte{1, 2, 3, 4}, buf)
	require.Equal(t, uint64(1), c.Offset())

	buf = make([]byte, 8)
	n, err = c.Read(buf)
	require.Error(t, err)
	require.Equal(t, 1, n)
	require.Equal(t, uint64(2), c.Offset())

	c.SetOffset(0)
	require.Equal(t, uint64(0), c.Offset())
}
