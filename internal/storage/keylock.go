package storage

import "sync"

// KeyMutex provides per-id mutual exclusion for read-modify-write cycles.
// Different ids lock independently; the same id serializes.
//
// Entries are created on demand and never removed. For clipflow's workloads
// (bounded numbers of assets and schedules) that is an acceptable trade for
// not having to reference-count lock holders.
type KeyMutex struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewKeyMutex() *KeyMutex {
	return &KeyMutex{locks: map[string]*sync.Mutex{}}
}

// Lock acquires the mutex for id and returns the unlock func.
//
//	defer km.Lock(id)()
func (k *KeyMutex) Lock(id string) func() {
	k.mu.Lock()
	m := k.locks[id]
	if m == nil {
		m = &sync.Mutex{}
		k.locks[id] = m
	}
	k.mu.Unlock()

	m.Lock()
	return m.Unlock
}
