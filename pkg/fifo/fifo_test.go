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
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSampleFifo(t *testing.T) {
	t.Run("writePull", func(t *testing.T) {
		f := New(4)
		require.Equal(t, 3, f.Write([]complex64{1, 2, 3}))
		require.Equal(t, 3, f.Fill())

		dst := make([]complex64, 2)
		n, ok := f.Pull(dst)
		require.True(t, ok)
		require.Equal(t, []complex64{1, 2}, dst[:n])

		// Wraps around.
		require.Equal(t, 3, f.Write([]complex64{4, 5, 6}))
		dst = make([]complex64, 8)
		n, ok = f.Pull(dst)
		require.True(t, ok)
		require.Equal(t, []complex64{3, 4, 5, 6}, dst[:n])
	})
	t.Run("overflow", func(t *testing.T) {
		f := New(2)
		require.Equal(t, 2, f.Write([]complex64{1, 2, 3, 4, 5}))
		require.Equal(t, uint64(3), f.Overflow())
	})
	t.Run("memoryLimit", func(t *testing.T) {
		f := New(1)
		f.SetMemoryLimit(10 * SampleBytes)
		require.Equal(t, 10, f.SetSize(1000))
		require.Equal(t, 10, f.Size())
		require.Equal(t, 1, f.SetSize(0))
	})
	t.Run("resizeKeeps", func(t *testing.T) {
		f := New(4)
		f.Write([]complex64{1, 2, 3})
		n, _ := f.Pull(make([]complex64, 1))
		require.Equal(t, 1, n)
		f.Write([]complex64{4, 5})

		// Queued samples wrap around the end of the buffer.
		require.Equal(t, 8, f.SetSize(8))
		require.Equal(t, 4, f.Fill())
		require.Equal(t, 4, f.Write([]complex64{6, 7, 8, 9}))

		dst := make([]complex64, 8)
		n, ok := f.Pull(dst)
		require.True(t, ok)
		require.Equal(t, []complex64{2, 3, 4, 5, 6, 7, 8, 9}, dst[:n])
	})
	t.Run("resizeShrinks", func(t *testing.T) {
		f := New(4)
		f.Write([]complex64{1, 2, 3, 4})
		require.Equal(t, 2, f.SetSize(2))
		require.Equal(t, uint64(2), f.Overflow())

		dst := make([]complex64, 4)
		n, _ := f.Pull(dst)
		require.Equal(t, []complex64{1, 2}, dst[:n])
	})
	t.Run("reset", func(t *testing.T) {
		f := New(4)
		f.Write([]complex64{1, 2})
		f.Reset()
		require.Equal(t, 0, f.Fill())
		require.Equal(t, 4, f.Size())
	})
	t.Run("pullBlocks", func(t *testing.T) {
		f := New(4)
		done := make(chan []complex64)
		go func() {
			dst := make([]complex64, 4)
			n, _ := f.Pull(dst)
			done <- dst[:n]
		}()

		select {
		case <-done:
			t.Fatal("pull returned before write")
		case <-time.After(10 * time.Millisecond):
		}
		f.Write([]complex64{7})
		require.Equal(t, []complex64{7}, <-done)
	})
	t.Run("close", func(t *testing.T) {
		f := New(4)
		done := make(chan bool)
		go func() {
			_, ok := f.Pull(make([]complex64, 1))
			done <- ok
		}()
		f.Close()
		require.False(t, <-done)
		require.Equal(t, 0, f.Write([]complex64{1}))
	})
}
