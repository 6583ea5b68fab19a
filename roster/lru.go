/*
 * Copyright (c) 2020 Miguel Ángel Ortuño.
 * See the LICENSE file for more information.
 */

package roster

import (
	"container/list"
)

// lruCache is a fixed-capacity map whose least recently used entry is
// evicted first. Both lookups and inserts count as a use.
type lruCache struct {
	capacity int
	ll       *list.List
	items    map[string]*list.Element
}

type lruCacheEntry struct {
	key   string
	value interface{}
}

func newLRUCache(capacity int) *lruCache {
	return &lruCache{
		capacity: capacity,
		ll:       list.New(),
		items:    make(map[string]*list.Element),
	}
}

func (c *lruCache) get(key string) (interface{}, bool) {
	el, ok := c.items[key]
	if !ok {
		return nil, false
	}
	c.ll.MoveToFront(el)
	return el.Value.(*lruCacheEntry).value, true
}

func (c *lruCache) put(key string, value interface{}) {
	if el, ok := c.items[key]; ok {
		c.ll.MoveToFront(el)
		el.Value.(*lruCacheEntry).value = value
		return
	}
	c.items[key] = c.ll.PushFront(&lruCacheEntry{key: key, value: value})
	if c.ll.Len() > c.capacity {
		back := c.ll.Back()
		c.ll.Remove(back)
		delete(c.items, back.Value.(*lruCacheEntry).key)
	}
}

func (c *lruCache) remove(key string) {
	if el, ok := c.items[key]; ok {
		c.ll.Remove(el)
		delete(c.items, key)
	}
}

func (c *lruCache) len() int {
	return c.ll.Len()
}

func (c *lruCache) forEach(fn func(key string, value interface{})) {
	for el := c.ll.Front(); el != nil; el = el.Next() {
		entry := el.Value.(*lruCacheEntry)
		fn(entry.key, entry.value)
	}
}
