package caches

import (
	"sync"
	"sync/atomic"
)

type Lazy[T any] struct {
	mutex  sync.RWMutex
	loaded bool
	done   atomic.Bool
	loader func() (T, error)
	val    T
	err    error
}

func NewLazy[T any](loader func() (T, error)) *Lazy[T] {
	return &Lazy[T]{
		loader: loader,
	}
}

func (l *Lazy[T]) Get() (T, error) {
	l.mutex.RLock()
	loaded := l.loaded
	l.mutex.RUnlock()

	if loaded {
		return l.val, l.err
	}

	l.mutex.Lock()
	defer l.mutex.Unlock()

	if l.loaded {
		return l.val, l.err
	}

	l.val, l.err = l.loader()
	l.loaded = true
	l.loader = nil
	l.done.Store(true)

	return l.val, l.err
}

// Peek doesn't block on a load in progress.
func (l *Lazy[T]) Peek() (T, bool) {
	if !l.done.Load() || l.err != nil {
		var zero T
		return zero, false
	}

	return l.val, true
}
