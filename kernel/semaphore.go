package kernel

import (
	"sync"

	"gokernel/errors"
	"gokernel/queue"
)

func intEqual(a, b int) bool { return a == b }

// Semaphore is a named counting semaphore. Its own lock is independent of
// both the registry's lock and the table/scheduler lock: a process blocked
// inside wait() must never hold any lock but this one, and post() never
// needs to touch the registry at all.
type Semaphore struct {
	mu      sync.Mutex
	name    string
	count   uint32
	blocked *queue.Queue[int]
}

func (s *Semaphore) blockedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.blocked.Size()
}

// semaphoreRegistry interns semaphores by name, same as the source's
// semaphoreQueue plus its own double-checked-locking init path. table is
// wired in after construction (see New in kernel.go) because a registry and
// a processTable need each other to exist first.
type semaphoreRegistry struct {
	mu      sync.Mutex
	byName  map[string]*Semaphore
	table   *processTable
}

func newSemaphoreRegistry() *semaphoreRegistry {
	return &semaphoreRegistry{byName: make(map[string]*Semaphore)}
}

func (r *semaphoreRegistry) bind(t *processTable) {
	r.table = t
}

// Init finds or creates the named semaphore, same semantics as semInit:
// two callers racing to create the same name both end up with the one
// survivor.
func (r *semaphoreRegistry) Init(name string, initialCount uint32) (*Semaphore, error) {
	if name == "" {
		return nil, errors.New(errors.ErrInvalidArg, "sem_init", -1, "semaphore name must not be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.byName[name]; ok {
		return existing, nil
	}

	sem := &Semaphore{
		name:    name,
		count:   initialCount,
		blocked: queue.New(intEqual),
	}
	r.byName[name] = sem
	return sem, nil
}

func (r *semaphoreRegistry) lookup(name string) (*Semaphore, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sem, ok := r.byName[name]
	if !ok {
		return nil, errors.New(errors.ErrNotFound, "sem", -1, "no such semaphore: "+name)
	}
	return sem, nil
}

// wait is sem_wait(): decrement if possible, else enqueue the caller's pid
// on the semaphore's own blocked queue and block it in the scheduler. The
// semaphore's lock is released before blockSelf is called, same ordering
// as the source releasing sem->lock before calling block(pid).
func (r *semaphoreRegistry) wait(caller *Context, sem *Semaphore) {
	sem.mu.Lock()
	if sem.count > 0 {
		sem.count--
		sem.mu.Unlock()
		return
	}

	pid := caller.pcb.pid
	sem.blocked.Enqueue(pid)
	sem.mu.Unlock()

	r.table.sched.blockSelf(caller.pcb)
}

// Post is sem_post() invoked by a live process: increment, or wake the
// longest-waiting blocked pid and yield so it gets a chance to run
// immediately, same as the source's explicit yield() after unblock().
func (r *semaphoreRegistry) Post(caller *Context, sem *Semaphore) {
	if r.unblockOne(sem) {
		if caller != nil {
			r.table.sched.checkpoint(caller.pcb, true)
		}
		return
	}
}

// unblockOne increments the count if nobody is waiting, or wakes exactly
// one waiter. It reports whether a waiter was woken (so Post knows whether
// to yield).
func (r *semaphoreRegistry) unblockOne(sem *Semaphore) bool {
	sem.mu.Lock()
	if sem.blocked.IsEmpty() {
		sem.count++
		sem.mu.Unlock()
		return false
	}
	pid, _ := sem.blocked.Dequeue()
	sem.mu.Unlock()

	r.table.Unblock(pid)
	return true
}

// WakeBlocked wakes every process currently waiting on sem, without
// yielding: used during reap/destroy, where there is no "calling process"
// to credit the yield to.
func (r *semaphoreRegistry) WakeBlocked(sem *Semaphore) {
	if sem == nil {
		return
	}
	for sem.blockedCount() > 0 {
		if !r.unblockOne(sem) {
			return
		}
	}
}

// Destroy removes sem from the registry and wakes everyone still waiting
// on it, same order as semDestroy: detach from the name table first, then
// drain the blocked queue.
func (r *semaphoreRegistry) Destroy(sem *Semaphore) {
	if sem == nil {
		return
	}

	r.mu.Lock()
	if r.byName[sem.name] == sem {
		delete(r.byName, sem.name)
	}
	r.mu.Unlock()

	r.WakeBlocked(sem)
}
