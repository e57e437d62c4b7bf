// Package locks provides one mutex per thread id.
package locks

import "sync"

type entry struct {
	mu   sync.Mutex
	refs int
}

// Registry hands out per-key mutexes. Entries are dropped once no caller
// holds or waits on them.
type Registry struct {
	mu      sync.Mutex
	entries map[string]*entry
}

func New() *Registry {
	return &Registry{entries: make(map[string]*entry)}
}

// Lock blocks until the mutex for key is held and returns its release func.
func (r *Registry) Lock(key string) func() {
	r.mu.Lock()
	e, ok := r.entries[key]
	if !ok {
		e = &entry{}
		r.entries[key] = e
	}
	e.refs++
	r.mu.Unlock()

	e.mu.Lock()

	var once sync.Once
	return func() {
		once.Do(func() {
			e.mu.Unlock()
			r.mu.Lock()
			e.refs--
			if e.refs == 0 {
				delete(r.entries, key)
			}
			r.mu.Unlock()
		})
	}
}

// Len reports how many keys currently have holders or waiters.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}
