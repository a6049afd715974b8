package chainsync

import "sync"

// keyedMutex serializes work per entity key so two refresh cycles for the
// same asset (or two polls of the same transaction) can never interleave,
// while different keys proceed concurrently.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*entityLock
}

type entityLock struct {
	mu   sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*entityLock)}
}

// lock acquires the mutex for key and returns the matching unlock func.
// Entries are dropped once the last holder releases, so the map does not
// grow with every transaction ever polled.
func (k *keyedMutex) lock(key string) func() {
	k.mu.Lock()
	l, ok := k.locks[key]
	if !ok {
		l = &entityLock{}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		k.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
