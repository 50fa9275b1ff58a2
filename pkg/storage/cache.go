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

package storage

import (
	"sync"
	"time"
)

// SummaryCache caches the n most recently used recording summaries.
type SummaryCache struct {
	items map[string]*cachedSummary
	age   int

	maxSize int

	mu sync.Mutex
}

type cachedSummary struct {
	summary Summary
	modTime time.Time

	key string
	age int
}

const summaryCacheSize = 100

// NewSummaryCache creates a summary cache.
func NewSummaryCache() *SummaryCache {
	return &SummaryCache{
		items:   map[string]*cachedSummary{},
		maxSize: summaryCacheSize,
	}
}

// add item to the cache, replacing a stale entry with the same key.
func (c *SummaryCache) add(key string, modTime time.Time, summary Summary) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.age++
	if _, exist := c.items[key]; !exist && len(c.items) >= c.maxSize {
		// Delete the oldest item.
		var oldest *cachedSummary
		for _, item := range c.items {
			if oldest == nil || item.age < oldest.age {
				oldest = item
			}
		}
		delete(c.items, oldest.key)
	}

	c.items[key] = &cachedSummary{
		summary: summary,
		modTime: modTime,
		key:     key,
		age:     c.age,
	}
}

// get item by key and update its age if it exists and
// the files have not been modified since it was added.
func (c *SummaryCache) get(key string, modTime time.Time) (Summary, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	item, exist := c.items[key]
	if !exist || !item.modTime.Equal(modTime) {
		return Summary{}, false
	}
	c.age++
	item.age = c.age
	return item.summary, true
}
