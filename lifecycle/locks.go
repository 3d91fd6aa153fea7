// SPDX-License-Identifier: GPL-3.0-only

package lifecycle

import "sync"

// keyedMutex serializes operations per identity. The underlying session
// artifact cannot tolerate concurrent writers, so only one gateway call per
// phone may be in flight; different phones proceed independently.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*sync.Mutex)}
}

// lock acquires the mutex for key and returns its unlock func.
func (k *keyedMutex) lock(key string) func() {
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
