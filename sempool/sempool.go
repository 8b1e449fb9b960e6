package sempool

import "sync"

// NewSemaphore returns a semaphore with the given capacity.
func NewSemaphore(capacity int) *Semaphore {
	return &Semaphore{inner: make(chan struct{}, capacity)}
}

// Semaphore bounds concurrent work. With capacity 1 it serializes it.
type Semaphore struct {
	inner chan struct{}
}

// Acquire blocks until a slot is free.
func (s *Semaphore) Acquire() {
	s.inner <- struct{}{}
}

// TryAcquire takes a slot if one is free.
func (s *Semaphore) TryAcquire() bool {
	select {
	case s.inner <- struct{}{}:
		return true
	default:
		return false
	}
}

// Release frees a slot.
func (s *Semaphore) Release() {
	select {
	case <-s.inner:
	default:
		panic("semaphore inconsistency: release before acquire!")
	}
}

// NewSemaphorePool returns a pool of per-key semaphores, each with capacity
// semaCap. The negotiator uses a capacity-1 pool keyed by task id to serialize
// all work on one negotiation while letting distinct negotiations proceed
// concurrently.
func NewSemaphorePool(semaCap int) *SemaphorePool {
	return &SemaphorePool{ss: make(map[string]*poolEntry), semaCap: semaCap}
}

// SemaphorePool hands out one semaphore per key. Entries are refcounted so the
// pool does not grow with the number of keys ever seen: each Get must be paired
// with a Put once the caller released the semaphore, and the entry is pruned
// when nobody references it.
type SemaphorePool struct {
	ss      map[string]*poolEntry
	semaCap int
	mu      sync.Mutex
}

type poolEntry struct {
	sem  *Semaphore
	refs int
}

// Get returns the semaphore for key, creating it on first use.
func (p *SemaphorePool) Get(key string) *Semaphore {
	p.mu.Lock()
	defer p.mu.Unlock()

	e, exist := p.ss[key]
	if !exist {
		e = &poolEntry{sem: NewSemaphore(p.semaCap)}
		p.ss[key] = e
	}
	e.refs++
	return e.sem
}

// Put drops the caller's reference on key, pruning the semaphore once no
// caller holds one. Must be called after the semaphore was released; waiters
// still blocked in Acquire hold their own reference, so the entry survives
// them.
func (p *SemaphorePool) Put(key string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	e, exist := p.ss[key]
	if !exist {
		return
	}
	e.refs--
	if e.refs <= 0 {
		delete(p.ss, key)
	}
}

// Len returns the number of live semaphores.
func (p *SemaphorePool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.ss)
}

// Stop acquires and holds every semaphore, draining in-flight work.
func (p *SemaphorePool) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, e := range p.ss {
		e.sem.Acquire()
	}
}
