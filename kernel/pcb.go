// Package kernel implements the process lifecycle manager, the preemptive
// scheduler, counting semaphores, and pipes — the tightly coupled quartet
// that forms the concurrency substrate of the kernel core. They live in one
// package because, like the sources they are grounded on, they call
// directly into each other: process creation registers with the scheduler,
// the scheduler reaps terminated processes, and both semaphores and pipes
// block and unblock PCBs by pid.
package kernel

import (
	"context"

	"gokernel/heap"
)

// Priority is a scheduling class. Higher values get more CPU share.
type Priority int

const (
	// Min is the lowest scheduling priority (e.g. the idle task).
	Min Priority = iota
	// Mid is the default priority for ordinary work.
	Mid
	// Max is the highest scheduling priority.
	Max
)

// NumPriorities is the number of distinct priority levels.
const NumPriorities = int(Max) + 1

// QuantumLimit returns the number of scheduler ticks a process at this
// priority may run before preemption: 1<<priority.
func (p Priority) QuantumLimit() int {
	return 1 << uint(p)
}

func (p Priority) String() string {
	switch p {
	case Min:
		return "MIN"
	case Mid:
		return "MID"
	case Max:
		return "MAX"
	default:
		return "UNKNOWN"
	}
}

// State is a process's position in its lifecycle.
type State int

const (
	Ready State = iota
	Running
	Blocked
	Terminated
)

func (s State) String() string {
	switch s {
	case Ready:
		return "READY"
	case Running:
		return "RUNNING"
	case Blocked:
		return "BLOCKED"
	case Terminated:
		return "TERMINATED"
	default:
		return "UNKNOWN"
	}
}

// Protected pids can never be killed or blocked by user code.
const (
	PIDIdle  = 0
	PIDInit  = 1
	PIDShell = 2
)

// MaxProcesses bounds the PCB table's slot count.
const MaxProcesses = 64

// StackSize is the simulated per-process stack allocation, in bytes. It
// exists so process creation genuinely exercises the heap allocator and so
// its accounting (bytes used per live process) is observable via Stats.
const StackSize = 4096

// Entry is a process's entry point: a typed task-entry variant carrying its
// argument tuple, in place of the untyped code pointer the hardware source
// stores and invokes via a hand-built stack frame.
type Entry func(ctx *Context, argv []string) int

func isProtected(pid int) bool {
	return pid == PIDIdle || pid == PIDInit || pid == PIDShell
}

// PCB is the kernel's per-process control block. Its fields are mutated
// under the table's lock (children, endpoints) or the scheduler's lock
// (state, priority, quantum); callers outside this package only ever see a
// read-only snapshot via ProcessInfo.
type PCB struct {
	pid        int
	ppid       int
	name       string
	priority   Priority
	state      State
	argv       []string
	foreground bool
	background bool
	children   []int

	waitingForChild int // -1 if none
	waitSem         *Semaphore

	stack heap.Ptr

	quantum int // ticks consumed by the current dispatch

	readEndpoint  Endpoint
	writeEndpoint Endpoint

	exitCode        int
	killedByKill    bool
	resume          chan struct{} // scheduler -> process: you may run
	ctx             context.Context
	cancel          context.CancelFunc
	exitedNaturally bool
}

// ProcessInfo is the read-only view of a PCB returned by ps()/get_process_info.
// It is the public counterpart of PCB the way spec.State is the public
// counterpart of spec.ContainerState in an OCI runtime: a snapshot safe to
// hand outside the lock.
type ProcessInfo struct {
	PID        int
	PPID       int
	Name       string
	Priority   Priority
	State      State
	Foreground bool
	Background bool
	Children   []int
	ExitCode   int
}

func (p *PCB) info() ProcessInfo {
	children := append([]int(nil), p.children...)
	return ProcessInfo{
		PID:        p.pid,
		PPID:       p.ppid,
		Name:       p.name,
		Priority:   p.priority,
		State:      p.state,
		Foreground: p.foreground,
		Background: p.background,
		Children:   children,
		ExitCode:   p.exitCode,
	}
}

func pcbEqual(a, b *PCB) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.pid == b.pid
}
