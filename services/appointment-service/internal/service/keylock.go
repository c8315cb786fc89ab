package service

import (
	"sort"
	"sync"
)

// keyedMutex serializes bookings per (provider, day) and (patient, day) key
// so the validate-then-insert window cannot race for the same calendar slot.
// Keys are locked in sorted order to rule out lock-order deadlocks.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyLock
}

type keyLock struct {
	mu   sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*keyLock)}
}

// Lock acquires all keys and returns the matching unlock func.
func (k *keyedMutex) Lock(keys ...string) func() {
	ordered := dedupSorted(keys)

	entries := make([]*keyLock, 0, len(ordered))
	k.mu.Lock()
	for _, key := range ordered {
		e := k.locks[key]
		if e == nil {
			e = &keyLock{}
			k.locks[key] = e
		}
		e.refs++
		entries = append(entries, e)
	}
	k.mu.Unlock()

	for _, e := range entries {
		e.mu.Lock()
	}

	return func() {
		for i := len(entries) - 1; i >= 0; i-- {
			entries[i].mu.Unlock()
		}
		k.mu.Lock()
		for i, key := range ordered {
			entries[i].refs--
			if entries[i].refs == 0 {
				delete(k.locks, key)
			}
		}
		k.mu.Unlock()
	}
}

func dedupSorted(keys []string) []string {
	out := make([]string, len(keys))
	copy(out, keys)
	sort.Strings(out)
	n := 0
	for _, key := range out {
		if n == 0 || out[n-1] != key {
			out[n] = key
			n++
		}
	}
	return out[:n]
}
