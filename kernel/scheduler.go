package kernel

import (
	"sync"

	"gokernel/queue"
)

// StarvationThreshold is the aging limit for a non-empty ready queue below
// Max: its counter advances once per switching decision (not per tick), and
// on the decision that brings it to this value the queue is picked ahead of
// everything else.
const StarvationThreshold = 5

// scheduler holds the per-priority ready queues and the bookkeeping needed
// to reproduce the quantum/aging algorithm exactly. Its own mutex guards the
// ready queues, process states and the terminated list: in the source this
// is "interrupts disabled"; here a mutex stands in for that, per the design
// note that a spinlock or interrupt mask must become the host language's
// real synchronization primitive. The table's slots are guarded by the
// table's separate mutex.
type scheduler struct {
	mu sync.Mutex

	table *processTable

	ready      [NumPriorities]*queue.Queue[*PCB]
	current    *PCB
	idle       *PCB
	quantum    int
	quantumCap int
	starvation [NumPriorities]int

	firstInterrupt bool
}

func newScheduler(table *processTable) *scheduler {
	s := &scheduler{table: table, firstInterrupt: true}
	for i := range s.ready {
		s.ready[i] = queue.New(pcbEqual)
	}
	return s
}

// Current returns the PCB the scheduler currently considers RUNNING.
func (s *scheduler) Current() *PCB {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

func (s *scheduler) enqueueReady(p *PCB) {
	s.ready[p.priority].Enqueue(p)
}

// removeFromReady searches p's own priority queue first, then the others,
// same as the source's fallback search — a process can in principle be
// found in a queue that doesn't match its current priority field if nice()
// raced a pending requeue, though this implementation keeps them in sync.
func (s *scheduler) removeFromReady(p *PCB) bool {
	if _, ok := s.ready[p.priority].Remove(p); ok {
		return true
	}
	for i := range s.ready {
		if Priority(i) == p.priority {
			continue
		}
		if _, ok := s.ready[i].Remove(p); ok {
			return true
		}
	}
	return false
}

// ageWaitingPriorities increments the starvation counter of every non-empty
// queue below Max, resetting empty ones, and is called once per scheduling
// decision (never per tick that doesn't switch).
func (s *scheduler) ageWaitingPriorities() {
	for i := 0; i < NumPriorities; i++ {
		if Priority(i) == Max {
			continue
		}
		if s.ready[i].IsEmpty() {
			s.starvation[i] = 0
		} else if s.starvation[i] < StarvationThreshold {
			s.starvation[i]++
		}
	}
}

// pickNext selects the next process to run: first a boosted, starved
// queue (scanning MAX..MIN), then the first non-empty queue (scanning
// MAX..MIN), falling back to idle. It never returns nil.
func (s *scheduler) pickNext() *PCB {
	for i := NumPriorities - 1; i >= 0; i-- {
		if Priority(i) == Max {
			continue
		}
		if s.starvation[i] >= StarvationThreshold && !s.ready[i].IsEmpty() {
			p, _ := s.ready[i].Dequeue()
			s.starvation[i] = 0
			return p
		}
	}

	for i := NumPriorities - 1; i >= 0; i-- {
		if !s.ready[i].IsEmpty() {
			p, _ := s.ready[i].Dequeue()
			s.starvation[i] = 0
			return p
		}
	}

	return s.idle
}

// checkpoint is the translation of schedule(rsp): it is called synchronously
// from whichever goroutine is currently RUNNING, at every cooperative tick
// and at every explicit yield, and it performs the exact algorithm from the
// design: cleanup terminated processes (excluding the caller), quantum
// accounting, aging, and selection. Unlike the source, there is no saved
// stack pointer to swap; instead the outgoing process's own goroutine parks
// on its resume channel and the incoming process's goroutine is released by
// sending on its resume channel.
//
// caller must be the scheduler's current process. force makes a switch
// happen regardless of remaining quantum (explicit yield()).
func (s *scheduler) checkpoint(caller *PCB, force bool) {
	s.mu.Lock()
	s.table.cleanupTerminatedLocked(caller)

	switching := force
	if s.current == nil {
		switching = true
	} else if s.current == caller {
		caller.quantum++
		if caller.state != Running || caller.quantum >= s.quantumCap {
			switching = true
		}
	}

	if !switching {
		s.mu.Unlock()
		return
	}

	if s.current != nil && s.current.state == Running && s.current != s.idle {
		s.current.state = Ready
		s.enqueueReady(s.current)
	}

	s.ageWaitingPriorities()
	next := s.pickNext()
	s.dispatchLocked(next)
	sameGoroutine := next == caller
	s.mu.Unlock()

	if !sameGoroutine {
		next.resume <- struct{}{}
		parkSelf(caller)
	}
}

// dispatchLocked makes next the current RUNNING process. Callers must hold
// s.mu. It does not send on next.resume; callers decide whether a handoff
// across goroutines is actually required.
func (s *scheduler) dispatchLocked(next *PCB) {
	next.state = Running
	next.quantum = 0
	s.current = next
	s.quantumCap = next.priority.QuantumLimit()
	s.firstInterrupt = false
}

// parkSelf blocks the calling goroutine until either the scheduler
// redispatches it (resume) or it is killed while parked (ctx.Done()).
// Every suspension point in this package funnels through here so kill()
// has exactly one cancellation contract to honor.
func parkSelf(p *PCB) {
	select {
	case <-p.resume:
	case <-p.ctx.Done():
		stopSelf()
	}
}

// blockSelf removes the caller from scheduling entirely (state BLOCKED) and
// switches away unconditionally. It is used by semaphoreRegistry.wait (and
// through it by pipe I/O) and by a self-Block, never called with the table
// lock held by the caller.
func (s *scheduler) blockSelf(caller *PCB) {
	s.mu.Lock()
	caller.state = Blocked
	s.table.cleanupTerminatedLocked(caller)
	s.ageWaitingPriorities()
	next := s.pickNext()
	s.dispatchLocked(next)
	s.mu.Unlock()

	next.resume <- struct{}{}
	parkSelf(caller)
}

// bootstrap performs the very first dispatch, before any process goroutine
// has ever run. It is called once, from the goroutine that boots the
// kernel (never from a process's own goroutine), so there is no caller to
// park afterward.
func (s *scheduler) bootstrap() {
	s.mu.Lock()
	s.ageWaitingPriorities()
	next := s.pickNext()
	s.dispatchLocked(next)
	s.mu.Unlock()

	next.resume <- struct{}{}
}

// wakeOne marks a blocked pid READY and enqueues it. It does not dispatch
// it immediately: the next checkpoint performed by whichever process is
// actually running will eventually pick it up, exactly as unblock() in the
// source only ever makes a process eligible, never preempts immediately.
func (s *scheduler) wakeOne(p *PCB) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p.state = Ready
	s.enqueueReady(p)
}
