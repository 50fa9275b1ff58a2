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
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestFeed() (*Feed, func()) {
	ctx, cancel := context.WithCancel(context.Background())
	wg := &sync.WaitGroup{}
	f := NewFeed(ctx, wg)
	f.Start()
	return f, func() {
		cancel()
		wg.Wait()
	}
}

func TestFeed(t *testing.T) {
	t.Run("fanOut", func(t *testing.T) {
		f, cancel := newTestFeed()
		defer cancel()

		feed1, cancel1 := f.Subscribe()
		defer cancel1()
		feed2, cancel2 := f.Subscribe()
		defer cancel2()

		msg := Message{Type: MsgStartStop, Payload: StartStop{Running: true}}
		f.Send(msg)
		require.Equal(t, msg, <-feed1)
		require.Equal(t, msg, <-feed2)
	})
	t.Run("unsubscribe", func(t *testing.T) {
		f, cancel := newTestFeed()
		defer cancel()

		feed, cancel2 := f.Subscribe()
		cancel2()
		_, ok := <-feed
		require.False(t, ok)
	})
	t.Run("slowSubscriber", func(t *testing.T) {
		f, cancel := newTestFeed()
		defer cancel()

		feed, cancel2 := f.Subscribe()
		defer cancel2()

		// Must not block.
		for i := 0; i < subscriberBuffer*2; i++ {
			f.Send(Message{Type: MsgTiming, Payload: Timing{TrackIndex: i}})
		}
		first := <-feed
		require.Equal(t, 0, first.Payload.(Timing).TrackIndex)
	})
	t.Run("canceled", func(t *testing.T) {
		f, cancel := newTestFeed()
		cancel()

		// Must not block.
		f.Send(Message{})
	})
}
