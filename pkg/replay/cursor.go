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
	"io"
	"sync"
)

// Cursor read position in the data file, shared between
// the controller and the streaming worker. The lock is only
// held while the position is read or updated, never during I/O.
type Cursor struct {
	mu         sync.Mutex
	r          io.ReaderAt
	frameBytes int
	offset     uint64 // In samples.
}

// NewCursor returns a cursor at sample 0.
func NewCursor(r io.ReaderAt, frameBytes int) *Cursor {
	return &Cursor{
		r:          r,
		frameBytes: frameBytes,
	}
}

// Offset returns the current sample offset.
func (c *Cursor) Offset() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.offset
}

// SetOffset moves the cursor to sample.
func (c *Cursor) SetOffset(sample uint64) {
	c.mu.Lock()
	c.offset = sample
	c.mu.Unlock()
}

// Read reads whole frames into buf at the cursor and advances
// it by the number of frames read. Returns io.EOF at end of file.
func (c *Cursor) Read(buf []byte) (int, error) {
	c.mu.Lock()
	offset := c.offset
	c.mu.Unlock()

	n, err := c.r.ReadAt(buf, int64(offset)*int64(c.frameBytes))
	frames := n / c.frameBytes

	c.mu.Lock()
	c.offset = offset + uint64(frames)
	c.mu.Unlock()

	if err != nil && err != io.EOF {
		return frames, err
	}
	if frames == 0 && len(buf) >= c.frameBytes {
		return 0, io.EOF
	}
	return frames, err
}
