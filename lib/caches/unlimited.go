package caches

import (
	"sync"
)

type Unlimited[K comparable, V any] struct {
	mutex sync.RWMutex
	m     map[K]*Lazy[V]
}

func NewUnlimited[K comparable, V any]() *Unlimited[K, V] {
	return &Unlimited[K, V]{
		m: make(map[K]*Lazy[V], 1000),
	}
}

func (c *Unlimited[K, V]) Get(key K, loader func(K) (V, error)) (V, error) {
	c.mutex.RLock()
	val, ok := c.m[key]
	c.mutex.RUnlock()

	if ok {
		return val.Get()
	}

	c.mutex.Lock()
	val, ok = c.m[key]
	if !ok {
		val = NewLazy[V](func() (V, error) { return loader(key) })
		c.m[key] = val
	}
	c.mutex.Unlock()

	return val.Get()
}

func (c *Unlimited[K, V]) Peek(key K) (V, bool) {
	c.mutex.RLock()
	val, ok := c.m[key]
	c.mutex.RUnlock()

	if !ok {
		var zero V
		return zero, false
	}

	return val.Peek()
}

func (c *Unlimited[K, V]) Len() int {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	return len(c.m)
}
