package kernel

import (
	"context"
	"fmt"
	"runtime"
	"sync"

	"gokernel/errors"
	"gokernel/heap"
)

// processTable is the fixed slot array of PCBs plus the round-robin pid
// cursor, foreground cursor, and terminated-but-not-reaped list. Its mutex
// guards the slots, count, cursors and children lists; the terminated list
// and process states are guarded by the scheduler's own mutex (see
// scheduler.go).
type processTable struct {
	mu sync.Mutex

	slots         [MaxProcesses]*PCB
	nextPID       int
	foregroundPID int
	count         int
	terminated    []*PCB

	sched  *scheduler
	heap   *heap.Allocator
	semReg *semaphoreRegistry
	pipes  *pipeTable
	kernel *Kernel
}

func newProcessTable(h *heap.Allocator, semReg *semaphoreRegistry, pipes *pipeTable) *processTable {
	t := &processTable{
		heap:          h,
		semReg:        semReg,
		pipes:         pipes,
		foregroundPID: -1,
		nextPID:       -1,
	}
	t.sched = newScheduler(t)
	return t
}

func (t *processTable) bind(k *Kernel) {
	t.kernel = k
}

// stopSelf unconditionally ends the calling goroutine. It is the
// translation of "the process's execution simply ceases to exist": Go
// offers no hook to discard an arbitrary call stack except runtime.Goexit,
// which runs deferred calls on the way out and never returns.
func stopSelf() {
	runtime.Goexit()
}

// Create allocates a PCB, its simulated stack, and its wait semaphore, adds
// it to the parent's children, enrolls it in the scheduler, and launches
// its goroutine. On any failure after the stack allocation, the stack is
// released before returning (partial-rollback, as required).
func (t *processTable) Create(entry Entry, name string, argv []string, priority Priority, ppid int, background bool) (*PCB, error) {
	if priority < Min || priority > Max {
		return nil, errors.ErrInvalidPriority
	}

	stack, err := t.heap.Alloc(StackSize)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrResource, "create_process", -1)
	}

	t.mu.Lock()
	pid, ok := t.allocSlotLocked()
	if !ok {
		t.mu.Unlock()
		t.heap.Free(stack)
		return nil, errors.ErrNoFreeSlot
	}

	var parent *PCB
	if ppid >= 0 {
		parent = t.slots[ppid]
	}

	ctx, cancel := context.WithCancel(context.Background())
	pcb := &PCB{
		pid:             pid,
		ppid:            ppid,
		name:            name,
		priority:        priority,
		state:           Ready,
		argv:            append([]string(nil), argv...),
		background:      background,
		foreground:      !background,
		waitingForChild: -1,
		stack:           stack,
		resume:          make(chan struct{}),
		ctx:             ctx,
		cancel:          cancel,
		readEndpoint:    Endpoint{Type: EndpointConsole},
		writeEndpoint:   Endpoint{Type: EndpointConsole},
	}
	t.slots[pid] = pcb
	t.count++

	if parent != nil {
		parent.children = append(parent.children, pid)
	}

	if pcb.foreground {
		t.foregroundPID = pid
	}
	t.mu.Unlock()

	semName := fmt.Sprintf("process%d", pid)
	sem, err := t.semReg.Init(semName, 0)
	if err != nil {
		t.mu.Lock()
		t.slots[pid] = nil
		t.count--
		if parent != nil {
			parent.children = removeInt(parent.children, pid)
		}
		t.mu.Unlock()
		t.heap.Free(stack)
		cancel()
		return nil, errors.Wrap(err, errors.ErrResource, "create_process", pid)
	}
	pcb.waitSem = sem

	t.sched.mu.Lock()
	if pid == PIDIdle {
		t.sched.idle = pcb
	} else {
		t.sched.enqueueReady(pcb)
	}
	t.sched.mu.Unlock()

	go t.runProcess(pcb, entry, argv)

	return pcb, nil
}

// runProcess is the goroutine equivalent of the stack-init trampoline: it
// waits to be dispatched for the first time (every process, idle included,
// starts parked so that only one goroutine ever runs at once), then calls
// entry, then retires it exactly like a natural return from the process's
// own body.
func (t *processTable) runProcess(pcb *PCB, entry Entry, argv []string) {
	parkSelf(pcb)

	ctx := &Context{pcb: pcb, k: t.kernel}
	code := entry(ctx, argv)
	t.exitCurrent(pcb, code)
}

// allocSlotLocked finds the next free slot round-robin from nextPID+1,
// wrapping. A slot is free iff nil or holding a TERMINATED PCB (which
// cannot happen in this implementation since terminated PCBs are detached
// from slots at cleanup time, but the check is kept for parity with the
// design's stated invariant).
func (t *processTable) allocSlotLocked() (int, bool) {
	if t.count >= MaxProcesses {
		return 0, false
	}
	for i := 1; i <= MaxProcesses; i++ {
		pid := (t.nextPID + i) % MaxProcesses
		if t.slots[pid] == nil || t.slots[pid].state == Terminated {
			t.nextPID = pid
			return pid, true
		}
	}
	return 0, false
}

func removeInt(s []int, v int) []int {
	out := s[:0]
	for _, x := range s {
		if x != v {
			out = append(out, x)
		}
	}
	return out
}

// Get returns the PCB for pid, or nil if the slot is empty.
func (t *processTable) Get(pid int) *PCB {
	t.mu.Lock()
	defer t.mu.Unlock()
	if pid < 0 || pid >= MaxProcesses {
		return nil
	}
	return t.slots[pid]
}

// PS returns a snapshot of every live process, for the ps() syscall.
func (t *processTable) PS() []ProcessInfo {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]ProcessInfo, 0, t.count)
	for _, p := range t.slots {
		if p != nil {
			out = append(out, p.info())
		}
	}
	return out
}

// Nice changes pid's priority, re-homing it in the ready queues if it is
// currently READY.
func (t *processTable) Nice(pid int, newPriority Priority) error {
	if newPriority < Min || newPriority > Max {
		return errors.ErrInvalidPriority
	}

	t.mu.Lock()
	p := t.slots[pid]
	if p == nil {
		t.mu.Unlock()
		return errors.ErrProcessNotFound
	}
	t.mu.Unlock()

	t.sched.mu.Lock()
	wasReady := p.state == Ready
	if wasReady {
		t.sched.removeFromReady(p)
	}
	p.priority = newPriority
	if wasReady {
		t.sched.enqueueReady(p)
	}
	t.sched.mu.Unlock()
	return nil
}

// Block marks pid BLOCKED. If pid is the caller itself (self-block), the
// calling goroutine is parked until unblock(pid) wakes it; if pid is
// someone else currently READY, it is simply dequeued.
func (t *processTable) Block(caller *Context, pid int) error {
	if isProtected(pid) {
		return errors.ErrProtectedPID
	}

	p := t.Get(pid)
	if p == nil {
		return errors.ErrProcessNotFound
	}

	if caller != nil && caller.pcb.pid == pid {
		t.sched.blockSelf(p)
		return nil
	}

	t.sched.mu.Lock()
	defer t.sched.mu.Unlock()
	if p.state != Ready {
		return errors.New(errors.ErrInvalidState, "block", pid, "process is not ready")
	}
	t.sched.removeFromReady(p)
	p.state = Blocked
	return nil
}

// Unblock transitions pid BLOCKED -> READY and re-enqueues it. It is only
// valid from BLOCKED.
func (t *processTable) Unblock(pid int) error {
	p := t.Get(pid)
	if p == nil {
		return errors.ErrProcessNotFound
	}

	t.sched.mu.Lock()
	if p.state != Blocked {
		t.sched.mu.Unlock()
		return errors.ErrNotBlocked
	}
	t.sched.mu.Unlock()

	t.sched.wakeOne(p)
	return nil
}

// reassignForegroundLocked reassigns the foreground to (in order) the parent if
// alive, else init, else shell, else idle. It only acts if p currently
// holds the foreground.
func (t *processTable) reassignForegroundLocked(p *PCB) {
	if t.foregroundPID != p.pid {
		return
	}
	for _, candidate := range []int{p.ppid, PIDInit, PIDShell, PIDIdle} {
		if candidate < 0 {
			continue
		}
		if candidate == p.pid {
			continue
		}
		if c := t.slots[candidate]; c != nil {
			t.foregroundPID = candidate
			c.foreground = true
			return
		}
	}
	t.foregroundPID = -1
}

// reparentChildrenLocked moves p's surviving children to (in order) p's
// original parent if alive, else init, else shell, else idle.
func (t *processTable) reparentChildrenLocked(p *PCB) {
	if len(p.children) == 0 {
		return
	}

	var newParentPID int = -1
	for _, candidate := range []int{p.ppid, PIDInit, PIDShell, PIDIdle} {
		if candidate < 0 || candidate == p.pid {
			continue
		}
		if t.slots[candidate] != nil {
			newParentPID = candidate
			break
		}
	}

	for _, childPID := range p.children {
		child := t.slots[childPID]
		if child == nil {
			continue
		}
		child.ppid = newParentPID
		if newParentPID >= 0 {
			t.slots[newParentPID].children = append(t.slots[newParentPID].children, childPID)
		}
	}
	p.children = nil
}

// Kill validates and applies kill(pid). Self-kill (pid == caller's own pid)
// switches away and lets cleanup reap the PCB on a later checkpoint, since
// the caller's own stack must stay mapped until the scheduler has actually
// switched off it. Killing any other process tears it down synchronously.
func (t *processTable) Kill(caller *Context, pid int) error {
	if pid < 0 || pid >= MaxProcesses {
		return errors.ErrProcessNotFound
	}
	if isProtected(pid) {
		return errors.ErrProtectedPID
	}

	p := t.Get(pid)
	if p == nil {
		return nil // already gone: idempotent
	}

	t.mu.Lock()
	if p.state == Terminated {
		t.mu.Unlock()
		return nil // idempotent double-kill
	}
	t.reassignForegroundLocked(p)
	t.mu.Unlock()

	selfKill := caller != nil && caller.pcb.pid == pid

	if selfKill {
		t.exitCurrent(p, -1)
		return nil
	}

	// Foreign kill: the victim is necessarily READY or BLOCKED (it cannot
	// be RUNNING, since the only RUNNING process is the caller itself).
	t.sched.mu.Lock()
	if p.state == Ready {
		t.sched.removeFromReady(p)
	}
	p.state = Terminated
	p.killedByKill = true
	t.sched.mu.Unlock()

	p.cancel() // wake the victim's parked goroutine; it will stopSelf()
	t.reap(p)
	return nil
}

// exitCurrent is the shared path for natural completion of entry() and for
// self-kill/self-exit: mark TERMINATED, enqueue for later reaping, and
// switch away. It must never be called for any PCB other than the one
// whose own goroutine is calling it.
func (t *processTable) exitCurrent(p *PCB, exitCode int) {
	t.sched.mu.Lock()
	p.state = Terminated
	p.exitCode = exitCode
	p.exitedNaturally = true
	t.terminated = append(t.terminated, p)
	t.sched.ageWaitingPriorities()
	next := t.sched.pickNext()
	t.sched.dispatchLocked(next)
	t.sched.mu.Unlock()

	next.resume <- struct{}{}
	stopSelf()
}

// cleanupTerminatedLocked tears down every PCB on the terminated list
// except exclude (the currently-dispatching process, whose own goroutine
// may still be unwinding toward stopSelf()). Callers must hold s.mu; it
// temporarily releases it to perform the actual reap, which touches the
// semaphore registry (a distinct lock) and must never be called with s.mu
// held to avoid a lock-order cycle.
func (t *processTable) cleanupTerminatedLocked(exclude *PCB) {
	if len(t.terminated) == 0 {
		return
	}

	var toReap []*PCB
	remaining := t.terminated[:0]
	for _, p := range t.terminated {
		if p == exclude {
			remaining = append(remaining, p)
			continue
		}
		toReap = append(toReap, p)
	}
	t.terminated = remaining

	if len(toReap) == 0 {
		return
	}

	t.sched.mu.Unlock()
	for _, p := range toReap {
		t.reap(p)
	}
	t.sched.mu.Lock()
}

// reap tears down a PCB that is guaranteed not to be the current execution
// context: releases its wait semaphore (waking every joiner first, then
// destroying it so a future pid reuse doesn't inherit a stale handle),
// releases both of its fd endpoints if they point at pipes, removes it
// from the table, reparents its children, and frees its stack.
func (t *processTable) reap(p *PCB) {
	t.mu.Lock()
	t.slots[p.pid] = nil
	t.count--
	t.reparentChildrenLocked(p)
	if p.stack != heap.Null {
		t.heap.Free(p.stack)
	}
	readEP, writeEP := p.readEndpoint, p.writeEndpoint
	t.mu.Unlock()

	if readEP.Type == EndpointPipe {
		t.pipes.Release(readEP.PipeID, RoleReader)
	}
	if writeEP.Type == EndpointPipe {
		t.pipes.Release(writeEP.PipeID, RoleWriter)
	}

	if p.waitSem != nil {
		t.semReg.WakeBlocked(p.waitSem)
		t.semReg.Destroy(p.waitSem)
	}
}

// WaitPID blocks the caller until target exits, per wait_pid semantics: if
// target is already TERMINATED, returns immediately; otherwise waits on its
// wait_sem, then removes target from the caller's children list.
func (t *processTable) WaitPID(caller *Context, target int) error {
	callerPCB := caller.pcb

	t.mu.Lock()
	if !contains(callerPCB.children, target) {
		t.mu.Unlock()
		return errors.ErrNotAChild
	}
	p := t.slots[target]
	t.mu.Unlock()

	if p == nil || p.state == Terminated {
		t.mu.Lock()
		callerPCB.children = removeInt(callerPCB.children, target)
		t.mu.Unlock()
		return nil
	}

	t.semReg.wait(caller, p.waitSem)

	t.mu.Lock()
	callerPCB.children = removeInt(callerPCB.children, target)
	t.mu.Unlock()
	return nil
}

// WaitChildren snapshots the caller's children and waits on each that is
// not already terminated, removing it from the list as it wakes. A second
// call with no remaining children returns immediately.
func (t *processTable) WaitChildren(caller *Context) {
	callerPCB := caller.pcb

	t.mu.Lock()
	snapshot := append([]int(nil), callerPCB.children...)
	t.mu.Unlock()

	for _, childPID := range snapshot {
		t.mu.Lock()
		child := t.slots[childPID]
		t.mu.Unlock()

		if child != nil && child.state != Terminated {
			t.semReg.wait(caller, child.waitSem)
		}

		t.mu.Lock()
		callerPCB.children = removeInt(callerPCB.children, childPID)
		t.mu.Unlock()
	}
}

func contains(s []int, v int) bool {
	for _, x := range s {
		if x == v {
			return true
		}
	}
	return false
}

// setEndpoint rebinds one of p's two endpoints (read==true selects fd 0,
// false selects fd 1), retaining the new pipe reference before releasing
// the old one so a transition between two roles on the same pipe never
// observes a spurious zero refcount.
func (t *processTable) setEndpoint(p *PCB, read bool, ep Endpoint) error {
	if ep.Type == EndpointPipe {
		role := RoleReader
		if !read {
			role = RoleWriter
		}
		if err := t.pipes.Retain(ep.PipeID, role); err != nil {
			return err
		}
	}

	t.mu.Lock()
	var old Endpoint
	if read {
		old = p.readEndpoint
		p.readEndpoint = ep
	} else {
		old = p.writeEndpoint
		p.writeEndpoint = ep
	}
	t.mu.Unlock()

	if old.Type == EndpointPipe {
		role := RoleReader
		if !read {
			role = RoleWriter
		}
		t.pipes.Release(old.PipeID, role)
	}
	return nil
}
