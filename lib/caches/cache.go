package caches

type Cache[K comparable, V any] interface {
	// Get returns the value for key, calling loader at most once per key even with concurrent callers.
	Get(key K, loader func(K) (V, error)) (V, error)

	// Peek returns the value only if it was already loaded successfully.
	Peek(key K) (V, bool)

	Len() int
}
