// Package syncx holds the single-writer state guard shared by the event pump
// and the poll loop.
package syncx

import "sync"

// RWGuard keeps a value behind an RWMutex. Readers see copies, so T should
// be a value type.
type RWGuard[T any] struct {
	mu    sync.RWMutex
	value T
}

func NewGuard[T any](initial T) *RWGuard[T] {
	return &RWGuard[T]{value: initial}
}

// Get returns a copy of the value.
func (g *RWGuard[T]) Get() T {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.value
}

// View runs fn under the read lock.
func View[T, R any](g *RWGuard[T], fn func(T) R) R {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return fn(g.value)
}

// Mutate runs fn under the write lock. fn returns whatever must happen after
// the lock is released, such as UI updates or reconfiguration calls.
func Mutate[T, R any](g *RWGuard[T], fn func(*T) R) R {
	g.mu.Lock()
	defer g.mu.Unlock()
	return fn(&g.value)
}
