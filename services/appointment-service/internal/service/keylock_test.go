package service

import (
	"sync"
	"testing"
	"time"
)

func TestKeyedMutex_SerializesSameKey(t *testing.T) {
	km := newKeyedMutex()

	var mu sync.Mutex
	inCritical := 0
	maxInCritical := 0

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := km.Lock("provider:phys-1:2026-03-10")
			mu.Lock()
			inCritical++
			if inCritical > maxInCritical {
				maxInCritical = inCritical
			}
			mu.Unlock()

			time.Sleep(time.Millisecond)

			mu.Lock()
			inCritical--
			mu.Unlock()
			unlock()
		}()
	}
	wg.Wait()

	if maxInCritical != 1 {
		t.Fatalf("expected mutual exclusion, saw %d holders at once", maxInCritical)
	}
}

func TestKeyedMutex_IndependentKeysDoNotBlock(t *testing.T) {
	km := newKeyedMutex()

	unlockA := km.Lock("a")
	done := make(chan struct{})
	go func() {
		unlockB := km.Lock("b")
		unlockB()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("locking an independent key blocked")
	}
	unlockA()
}

func TestKeyedMutex_MultiKeyOppositeOrder(t *testing.T) {
	km := newKeyedMutex()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			unlock := km.Lock("a", "b")
			unlock()
		}()
		go func() {
			defer wg.Done()
			unlock := km.Lock("b", "a")
			unlock()
		}()
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("deadlock on opposite lock order")
	}
}

func TestKeyedMutex_DuplicateKeys(t *testing.T) {
	km := newKeyedMutex()
	unlock := km.Lock("a", "a")
	unlock()
	// Entry must be released fully; a second lock of the key succeeds.
	unlock = km.Lock("a")
	unlock()
}

func TestKeyedMutex_ReleasesEntries(t *testing.T) {
	km := newKeyedMutex()
	unlock := km.Lock("a", "b")
	unlock()

	km.mu.Lock()
	defer km.mu.Unlock()
	if len(km.locks) != 0 {
		t.Fatalf("expected lock table to be empty, has %d entries", len(km.locks))
	}
}
