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

package fifo

import (
	"sync"
)

// SampleBytes size of one complex64 sample.
const SampleBytes = 8

// SampleFifo bounded queue of samples between the
// streaming worker and downstream consumers.
// Writes never block, samples that don't fit are dropped.
type SampleFifo struct {
	mu   sync.Mutex
	cond *sync.Cond

	buf   []complex64
	head  int
	count int

	overflow uint64
	closed   bool

	// Max samples, zero is unlimited.
	limit int
}

// New returns a fifo that holds size samples.
func New(size int) *SampleFifo {
	f := &SampleFifo{}
	f.cond = sync.NewCond(&f.mu)
	f.SetSize(size)
	return f
}

// SetMemoryLimit caps future sizes to bytes of memory.
func (f *SampleFifo) SetMemoryLimit(bytes uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.limit = int(bytes / SampleBytes)
}

// SetSize resizes the fifo. The oldest queued samples that
// fit are kept, the rest are counted as overflow.
// Returns the size after the memory limit is applied.
func (f *SampleFifo) SetSize(size int) int {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.limit != 0 && size > f.limit {
		size = f.limit
	}
	if size < 1 {
		size = 1
	}

	keep := f.count
	if keep > size {
		keep = size
	}
	buf := make([]complex64, size)
	for i := 0; i < keep; i++ {
		buf[i] = f.buf[(f.head+i)%len(f.buf)]
	}
	f.overflow += uint64(f.count - keep)

	f.buf = buf
	f.head = 0
	f.count = keep
	return size
}

// Reset discards the queued samples.
func (f *SampleFifo) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.head = 0
	f.count = 0
}

// Size capacity in samples.
func (f *SampleFifo) Size() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.buf)
}

// Fill number of queued samples.
func (f *SampleFifo) Fill() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.count
}

// Overflow number of dropped samples.
func (f *SampleFifo) Overflow() uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.overflow
}

// Write queues as many samples as fit and returns the count.
func (f *SampleFifo) Write(samples []complex64) int {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return 0
	}

	n := len(f.buf) - f.count
	if n > len(samples) {
		n = len(samples)
	}
	f.overflow += uint64(len(samples) - n)

	tail := (f.head + f.count) % len(f.buf)
	for i := 0; i < n; i++ {
		f.buf[(tail+i)%len(f.buf)] = samples[i]
	}
	f.count += n

	if n > 0 {
		f.cond.Broadcast()
	}
	return n
}

// Pull blocks until samples are available and copies them to dst.
// Returns false when the fifo is closed.
func (f *SampleFifo) Pull(dst []complex64) (int, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for f.count == 0 && !f.closed {
		f.cond.Wait()
	}
	if f.closed {
		return 0, false
	}

	n := f.count
	if n > len(dst) {
		n = len(dst)
	}
	for i := 0; i < n; i++ {
		dst[i] = f.buf[(f.head+i)%len(f.buf)]
	}
	f.head = (f.head + n) % len(f.buf)
	f.count -= n
	return n, true
}

// Close wakes up blocked readers, future writes are ignored.
func (f *SampleFifo) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	f.cond.Broadcast()
}
