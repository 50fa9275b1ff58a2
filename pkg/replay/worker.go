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
	"errors"
	"io"
	"sync"
	"time"

	"iqreplay/pkg/fifo"
	"iqreplay/pkg/sample"
	"iqreplay/pkg/timeline"
)

// Worker streams samples from the data file into the fifo.
type Worker interface {
	StartWork()

	// StopWork blocks until the worker has stopped.
	StopWork()
	IsRunning() bool

	SetTrackIndex(int)

	// SetTotalSamples sets the exclusive upper bound.
	SetTotalSamples(uint64)

	// SetSamplesCount moves the read position.
	SetSamplesCount(uint64)
	SamplesCount() uint64

	SetAccelerationFactor(float64)
}

// WorkerConfig everything a worker needs for one recording.
type WorkerConfig struct {
	Cursor   *Cursor
	Decoder  *sample.Decoder
	Fifo     *fifo.SampleFifo
	Timeline *timeline.Timeline

	// Unbuffered, read by the controller.
	Events chan<- Event
}

// NewWorkerFunc worker constructor.
type NewWorkerFunc func(WorkerConfig) Worker

// DefaultWorkerPeriod pacing period of the file worker.
const DefaultWorkerPeriod = 50 * time.Millisecond

// FileWorker reads one chunk of samples per period.
// The chunk size is the sample rate of the current track
// multiplied by the acceleration factor and the period.
type FileWorker struct {
	cursor  *Cursor
	decoder *sample.Decoder
	fifo    *fifo.SampleFifo
	tl      *timeline.Timeline
	events  chan<- Event
	period  time.Duration

	raw     []byte
	samples []complex64

	mu           sync.Mutex
	trackIndex   int
	totalSamples uint64
	accel        float64
	running      bool
	stop         chan struct{}
	done         chan struct{}
}

// NewFileWorker returns a stopped worker.
func NewFileWorker(c WorkerConfig) Worker {
	return &FileWorker{
		cursor:  c.Cursor,
		decoder: c.Decoder,
		fifo:    c.Fifo,
		tl:      c.Timeline,
		events:  c.Events,
		period:  DefaultWorkerPeriod,

		totalSamples: c.Timeline.TotalSamples(),
		accel:        1,
	}
}

// StartWork starts the worker if it isn't already started.
func (w *FileWorker) StartWork() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.done != nil {
		return
	}

	w.running = true
	w.stop = make(chan struct{})
	w.done = make(chan struct{})
	go w.run(w.stop, w.done)
}

// StopWork stops the worker and waits for it to exit.
func (w *FileWorker) StopWork() {
	w.mu.Lock()
	stop, done := w.stop, w.done
	w.stop, w.done = nil, nil
	w.running = false
	w.mu.Unlock()

	if done == nil {
		return
	}
	close(stop)
	<-done
}

// IsRunning returns true until the worker is stopped or reaches the end.
func (w *FileWorker) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

// SetTrackIndex sets the track used for pacing and boundary detection.
func (w *FileWorker) SetTrackIndex(i int) {
	w.mu.Lock()
	w.trackIndex = w.tl.ClampIndex(i)
	w.mu.Unlock()
}

// SetTotalSamples sets the end of the stream.
func (w *FileWorker) SetTotalSamples(n uint64) {
	w.mu.Lock()
	w.totalSamples = n
	w.mu.Unlock()
}

// SetSamplesCount moves the cursor.
func (w *FileWorker) SetSamplesCount(n uint64) {
	w.cursor.SetOffset(n)
}

// SamplesCount returns the cursor position.
func (w *FileWorker) SamplesCount() uint64 {
	return w.cursor.Offset()
}

// SetAccelerationFactor sets the pacing multiplier.
func (w *FileWorker) SetAccelerationFactor(f float64) {
	w.mu.Lock()
	w.accel = f
	w.mu.Unlock()
}

func (w *FileWorker) run(stop, done chan struct{}) {
	defer close(done)
	defer func() {
		w.mu.Lock()
		w.running = false
		w.mu.Unlock()
	}()

	ticker := time.NewTicker(w.period)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
		}

		event, crossed, eof := w.tick()
		if crossed && !w.send(stop, event) {
			return
		}
		if eof != nil {
			w.send(stop, *eof)
			return
		}
	}
}

// send returns false if the worker was stopped before the event was read.
func (w *FileWorker) send(stop chan struct{}, e Event) bool {
	select {
	case w.events <- e:
		return true
	case <-stop:
		return false
	}
}

// tick reads at most up to the start of the next track,
// so every boundary is crossed in its own tick.
func (w *FileWorker) tick() (crossing Event, crossed bool, eof *Event) {
	w.mu.Lock()
	trackIndex, totalSamples, accel := w.trackIndex, w.totalSamples, w.accel
	w.mu.Unlock()

	offset := w.cursor.Offset()
	if offset >= totalSamples {
		return Event{}, false, &Event{Kind: EventEndOfStream}
	}

	end := w.tl.SampleStartForTrack(trackIndex + 1)
	if end > totalSamples {
		end = totalSamples
	}
	if end <= offset {
		// Empty track or the offset is already past it.
		return w.cross(trackIndex + 1), true, nil
	}

	rate := w.tl.Capture(trackIndex).SampleRate
	chunk := uint64(float64(rate) * accel * w.period.Seconds())
	if chunk < 1 {
		chunk = 1
	}
	if offset+chunk > end {
		chunk = end - offset
	}

	w.grow(int(chunk))
	frames, err := w.cursor.Read(w.raw[:int(chunk)*w.decoder.FrameBytes()])
	n := w.decoder.Decode(w.samples, w.raw[:frames*w.decoder.FrameBytes()])
	w.fifo.Write(w.samples[:n])

	newOffset := offset + uint64(frames)
	if newOffset >= end && end < totalSamples {
		crossing, crossed = w.cross(trackIndex+1), true
	}

	switch {
	case err != nil && !errors.Is(err, io.EOF):
		eof = &Event{Kind: EventEndOfStream, Err: err}
	case newOffset >= totalSamples, errors.Is(err, io.EOF):
		eof = &Event{Kind: EventEndOfStream}
	}
	return crossing, crossed, eof
}

func (w *FileWorker) cross(i int) Event {
	i = w.tl.ClampIndex(i)
	w.mu.Lock()
	w.trackIndex = i
	w.mu.Unlock()
	return Event{Kind: EventTrackBoundaryCrossed, TrackIndex: i}
}

func (w *FileWorker) grow(frames int) {
	if rawSize := frames * w.decoder.FrameBytes(); len(w.raw) < rawSize {
		w.raw = make([]byte, rawSize)
	}
	if n := frames * w.decoder.SamplesPerFrame(); len(w.samples) < n {
		w.samples = make([]complex64, n)
	}
}
