package progress

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"
)

// DefaultRegistrySize bounds the number of finished runs kept for polling.
const DefaultRegistrySize = 1024

// Registry maps run ids to trackers so observers can poll a run by id. A run stays
// readable for as long as it is in flight; once it finishes it moves to a bounded set
// that forgets it ttl later.
type Registry struct {
	mu       sync.Mutex
	running  map[string]*Tracker
	finished *expirable.LRU[string, *Tracker]
}

// NewRegistry creates a registry remembering up to size finished runs for ttl each.
func NewRegistry(size int, ttl time.Duration) *Registry {
	if size <= 0 {
		size = DefaultRegistrySize
	}
	return &Registry{
		running:  make(map[string]*Tracker),
		finished: expirable.NewLRU[string, *Tracker](size, nil, ttl),
	}
}

// New creates and registers an idle tracker with a fresh run id.
func (r *Registry) New(filename, owner string) *Tracker {
	t := NewTracker(uuid.NewString(), filename, owner)
	r.mu.Lock()
	r.running[t.ID()] = t
	r.mu.Unlock()
	go func() {
		<-t.Done()
		r.mu.Lock()
		defer r.mu.Unlock()
		// add before removing so a concurrent Get never misses the run
		r.finished.Add(t.ID(), t)
		delete(r.running, t.ID())
	}()
	return t
}

// Get returns the tracker for id.
func (r *Registry) Get(id string) (*Tracker, bool) {
	r.mu.Lock()
	t, ok := r.running[id]
	r.mu.Unlock()
	if ok {
		return t, true
	}
	return r.finished.Get(id)
}

// Active returns the number of registered runs that have not finished.
func (r *Registry) Active() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.running)
}
