package proposals

import "sync"

// keyedMutex serializes mutating operations per proposal slug, so interactive
// requests and the reconciliation task never interleave on one proposal.
// Entries are never evicted; the map is bounded by the number of proposals.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func (k *keyedMutex) Lock(key string) func() {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[string]*sync.Mutex)
	}
	l, ok := k.locks[key]
	if !ok {
		l = &sync.Mutex{}
		k.locks[key] = l
	}
	k.mu.Unlock()

	l.Lock()
	return l.Unlock
}
