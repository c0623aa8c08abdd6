package caches

import (
	"sync"
)

type Options struct {
	MaxSize int
}

// LFU keeps at most MaxSize entries, evicting the least frequently used one (the least recently
// used among those with similar usage counts).
type LFU[K comparable, V any] struct {
	mutex sync.Mutex
	opts  Options
	m     map[K]*entry[K, V]
	head  level[K, V]
	tail  level[K, V]
}

func NewLFU[K comparable, V any](opts ...Options) *LFU[K, V] {
	o := Options{
		MaxSize: 10000,
	}
	for _, opt := range opts {
		if opt.MaxSize > 0 {
			o.MaxSize = opt.MaxSize
		}
	}

	result := &LFU[K, V]{
		opts: o,
		m:    make(map[K]*entry[K, V]),
	}
	result.head.next = &result.tail
	result.tail.prev = &result.head

	lvl := newLevel[K, V](baseLevelMax)
	lvl.insert(&result.head, &result.tail)

	return result
}

const baseLevelMax = 10

func (c *LFU[K, V]) Get(key K, loader func(K) (V, error)) (V, error) {
	c.mutex.Lock()

	e, ok := c.m[key]
	if ok {
		c.incUsage(e)
	} else {
		if len(c.m) >= c.opts.MaxSize {
			c.evict()
		}

		e = c.newEntry(key, NewLazy[V](func() (V, error) { return loader(key) }))
		c.m[key] = e
	}

	c.mutex.Unlock()

	return e.val.Get()
}

func (c *LFU[K, V]) Peek(key K) (V, bool) {
	c.mutex.Lock()
	e, ok := c.m[key]
	c.mutex.Unlock()

	if !ok {
		var zero V
		return zero, false
	}

	return e.val.Peek()
}

func (c *LFU[K, V]) Len() int {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	return len(c.m)
}

func (c *LFU[K, V]) evict() {
	for lvl := c.head.next; lvl != &c.tail; lvl = lvl.next {
		if len(lvl.entries) == 0 {
			continue
		}

		last := lvl.tail.prev
		delete(lvl.entries, last)
		last.remove()
		delete(c.m, last.key)

		if len(lvl.entries) == 0 && lvl.max > baseLevelMax {
			lvl.remove()
		}
		return
	}
}

func (c *LFU[K, V]) newEntry(key K, val *Lazy[V]) *entry[K, V] {
	lvl := c.head.next
	if lvl == &c.tail || lvl.max != baseLevelMax {
		lvl = newLevel[K, V](baseLevelMax)
		lvl.insert(&c.head, c.head.next)
	}

	result := &entry[K, V]{
		usages: 1,
		key:    key,
		val:    val,
	}
	lvl.entries[result] = true
	result.insert(lvl, &lvl.head, lvl.head.next)

	return result
}

func (c *LFU[K, V]) incUsage(e *entry[K, V]) {
	lvl := e.lvl
	e.usages++

	if e.usages < lvl.max {
		e.remove()
		e.insert(lvl, &lvl.head, lvl.head.next)
		return
	}

	nextMax := lvl.max * 10

	next := lvl.next
	if next == &c.tail || next.max != nextMax {
		next = newLevel[K, V](nextMax)
		next.insert(lvl, lvl.next)
	}

	delete(lvl.entries, e)
	e.remove()

	if len(lvl.entries) == 0 && lvl.max > baseLevelMax {
		lvl.remove()
	}

	next.entries[e] = true
	e.insert(next, &next.head, next.head.next)
}
