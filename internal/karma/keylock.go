package karma

import "sync"

// keyedMutex provides mutual exclusion per string key so mutations on
// unrelated members never serialize against each other. Locks are created
// on first use and never reclaimed; the key space (active community/member
// pairs per process) stays small.
type keyedMutex struct {
	locks sync.Map // key -> *sync.Mutex
}

func (k *keyedMutex) Lock(key string) func() {
	v, _ := k.locks.LoadOrStore(key, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}
