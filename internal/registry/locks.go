package registry

import (
	"fmt"
	"sync"
)

// keyedLocks serializes operations on the same key while letting different
// keys proceed concurrently. Locks are created on demand and never reclaimed;
// the key space (document versions in flight) stays small.
type keyedLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newKeyedLocks() *keyedLocks {
	return &keyedLocks{locks: make(map[string]*sync.Mutex)}
}

func (k *keyedLocks) lock(key string) func() {
	k.mu.Lock()
	m, ok := k.locks[key]
	if !ok {
		m = &sync.Mutex{}
		k.locks[key] = m
	}
	k.mu.Unlock()

	m.Lock()
	return m.Unlock
}

func versionKey(documentID string, version int) string {
	return fmt.Sprintf("%s@%d", documentID, version)
}
