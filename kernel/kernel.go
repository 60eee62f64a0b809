package kernel

import (
	"fmt"
	"log/slog"
	"time"

	"gokernel/device"
	"gokernel/heap"
	"gokernel/logging"
)

// HeapSize is the kernel's single backing allocation region.
const HeapSize = 4096 * 128

// Kernel owns every process-wide singleton: the heap, the semaphore
// registry, the pipe table, the process table (which in turn owns the
// scheduler), and the console device. It has exactly one instance per
// running system, built once at boot, matching the design note that these
// are "process-wide singletons with a distinct init lifecycle call
// executed once at boot."
type Kernel struct {
	heap    *heap.Allocator
	semReg  *semaphoreRegistry
	pipes   *pipeTable
	table   *processTable
	console *device.Console
	log     *slog.Logger
}

// New wires together a fresh kernel. It does not start any process; call
// Boot for that.
func New(log *slog.Logger) *Kernel {
	if log == nil {
		log = logging.Default()
	}

	h := heap.New(HeapSize)
	semReg := newSemaphoreRegistry()
	pipes := newPipeTable(semReg)
	table := newProcessTable(h, semReg, pipes)

	semReg.bind(table)
	pipes.bind(table)

	k := &Kernel{
		heap:    h,
		semReg:  semReg,
		pipes:   pipes,
		table:   table,
		console: device.NewConsole(),
		log:     log,
	}
	table.bind(k)
	return k
}

// Boot creates the idle and init processes (pids 0 and 1 by construction,
// since the table's round-robin slot allocator starts at 0 on an empty
// table) and performs the scheduler's first dispatch; init then spawns the
// shell, which gets pid 2. It must be called exactly once.
func (k *Kernel) Boot(shellEntry Entry) error {
	if err := k.console.EnterRawMode(); err != nil {
		k.log.Warn("console raw mode unavailable, continuing with line-buffered input", "error", err)
	}

	idlePCB, err := k.table.Create(idleEntry, "idle", nil, Min, -1, true)
	if err != nil {
		return fmt.Errorf("create idle process: %w", err)
	}
	if idlePCB.pid != PIDIdle {
		return fmt.Errorf("idle process got pid %d, want %d", idlePCB.pid, PIDIdle)
	}

	initPCB, err := k.table.Create(k.initEntry(shellEntry), "init", nil, Mid, -1, true)
	if err != nil {
		return fmt.Errorf("create init process: %w", err)
	}
	if initPCB.pid != PIDInit {
		return fmt.Errorf("init process got pid %d, want %d", initPCB.pid, PIDInit)
	}

	k.log.Info("kernel booted", "heap_bytes", HeapSize, "max_processes", MaxProcesses)
	k.table.sched.bootstrap()
	return nil
}

// idleEntry is the idle task: priority MIN, runs forever, yielding the CPU
// every tick it gets the way a real idle loop executes hlt. A short sleep
// stands in for halting the CPU until the next interrupt, since a Go
// goroutine given to Tick in a bare for-loop would otherwise spin a real
// core at 100%.
func idleEntry(ctx *Context, argv []string) int {
	for {
		select {
		case <-ctx.Done():
			return 0
		default:
		}
		time.Sleep(time.Millisecond)
		ctx.Tick()
	}
}

// initEntry implements the supervisor pattern: whenever its shell child
// exits, it spawns a new one, forever. It returns shellEntry bound so
// Boot can inject whatever shell implementation the caller wants without
// this package needing to know about it.
func (k *Kernel) initEntry(shellEntry Entry) Entry {
	return func(ctx *Context, argv []string) int {
		for {
			select {
			case <-ctx.Done():
				return 0
			default:
			}

			shellPCB, err := k.table.Create(shellEntry, "shell", nil, Mid, ctx.PID(), false)
			if err != nil {
				k.log.Error("init: failed to spawn shell", "error", err)
				ctx.Tick()
				continue
			}
			if shellPCB.pid != PIDShell {
				k.log.Warn("shell did not receive the reserved pid", "pid", shellPCB.pid)
			}

			if err := k.table.WaitPID(ctx, shellPCB.pid); err != nil {
				k.log.Error("init: wait_pid on shell failed", "error", err)
			}
		}
	}
}

// Shutdown restores the console to its original mode. It does not tear
// down any live process.
func (k *Kernel) Shutdown() error {
	return k.console.Restore()
}

// PS returns a snapshot of every live process.
func (k *Kernel) PS() []ProcessInfo {
	return k.table.PS()
}

// MemStats reports heap usage.
func (k *Kernel) MemStats() (total, used, available int) {
	return k.heap.Stats()
}

// CreateProcess is the entry point create_process syscall uses to spawn a
// new user process.
func (k *Kernel) CreateProcess(entry Entry, name string, argv []string, priority Priority, parentPID int, background bool) (int, error) {
	pcb, err := k.table.Create(entry, name, argv, priority, parentPID, background)
	if err != nil {
		return -1, err
	}
	return pcb.pid, nil
}
