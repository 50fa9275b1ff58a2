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
)

const subscriberBuffer = 64

type messageFeed chan Message

// Feed fans out controller messages to subscribers.
// Subscribers that fall behind miss messages.
type Feed struct {
	feed  messageFeed
	sub   chan messageFeed
	unsub chan messageFeed

	ctx context.Context
	wg  *sync.WaitGroup
}

// NewFeed returns a Feed bound to ctx, Start must be called.
func NewFeed(ctx context.Context, wg *sync.WaitGroup) *Feed {
	return &Feed{
		feed:  make(messageFeed),
		sub:   make(chan messageFeed),
		unsub: make(chan messageFeed),

		ctx: ctx,
		wg:  wg,
	}
}

// Start feed.
func (f *Feed) Start() {
	f.wg.Add(1)
	go func() {
		defer f.wg.Done()
		subs := map[messageFeed]struct{}{}
		for {
			select {
			case <-f.ctx.Done():
				return

			case ch := <-f.sub:
				subs[ch] = struct{}{}

			case ch := <-f.unsub:
				close(ch)
				delete(subs, ch)

			case msg := <-f.feed:
				for ch := range subs {
					select {
					case ch <- msg:
					default:
					}
				}
			}
		}
	}()
}

// Send message to all subscribers.
func (f *Feed) Send(msg Message) {
	select {
	case f.feed <- msg:
	case <-f.ctx.Done():
	}
}

// CancelFunc cancels a subscription.
type CancelFunc func()

// Subscribe returns a new chan with the message feed and a CancelFunc.
func (f *Feed) Subscribe() (<-chan Message, CancelFunc) {
	feed := make(messageFeed, subscriberBuffer)
	select {
	case f.sub <- feed:
	case <-f.ctx.Done():
		close(feed)
		return feed, func() {}
	}

	cancel := func() {
		select {
		case f.unsub <- feed:
		case <-f.ctx.Done():
		}
	}
	return feed, cancel
}

// Done is closed when the feed context is canceled.
func (f *Feed) Done() <-chan struct{} {
	return f.ctx.Done()
}
