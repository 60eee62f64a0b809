package kernel

import "gokernel/errors"

// Context is what a process's Entry function receives: its own identity,
// the means to suspend cooperatively, and its two I/O endpoints. It plays
// the role the source's implicit "current process" plus raw syscall
// numbers play, but typed and scoped to the one process it belongs to.
type Context struct {
	pcb *PCB
	k   *Kernel
}

// PID returns the owning process's pid.
func (c *Context) PID() int { return c.pcb.pid }

// PPID returns the owning process's parent pid.
func (c *Context) PPID() int { return c.pcb.ppid }

// Argv returns the owning process's argument vector.
func (c *Context) Argv() []string { return c.pcb.argv }

// Tick is the cooperative stand-in for a timer-interrupt firing while this
// process is RUNNING: it calls into the scheduler's checkpoint, which may
// or may not switch depending on remaining quantum. Entry functions that
// run any nontrivial loop must call this periodically, since nothing else
// preempts a goroutine that never yields control to anyone.
func (c *Context) Tick() {
	c.k.table.sched.checkpoint(c.pcb, false)
}

// Yield is the forced-switch counterpart of Tick: it always gives up the
// CPU, same as triggering a software timer interrupt synchronously.
func (c *Context) Yield() {
	c.k.table.sched.checkpoint(c.pcb, true)
}

// Exit ends the calling process with the given exit code. It never
// returns to its caller.
func (c *Context) Exit(code int) {
	c.k.table.exitCurrent(c.pcb, code)
}

// Done reports when this process has been killed, for entry functions
// that want to unwind cleanly rather than being cut off at their next
// Tick/Yield.
func (c *Context) Done() <-chan struct{} { return c.pcb.ctx.Done() }

// Err returns the reason this process's context was canceled, or nil.
func (c *Context) Err() error { return c.pcb.ctx.Err() }

// Read is sys_read: only fd 0 (stdin) is valid, and it is routed through
// the process's current read endpoint (console or pipe).
func (c *Context) Read(fd int, buf []byte) (int, error) {
	if fd != 0 {
		return 0, errors.ErrBadEndpoint
	}
	return c.routeRead(c.pcb.readEndpoint, buf)
}

// Write is sys_write. fd 1 (stdout) routes through the process's current
// write endpoint. fd 0 (stdin) is also accepted and always goes to the
// console, regardless of the read endpoint's type: a long-standing quirk
// of the source (writes to stdin echo to the console) that downstream
// tools depend on, preserved rather than "fixed".
func (c *Context) Write(fd int, data []byte) (int, error) {
	if fd == 0 {
		return c.k.console.Write(data)
	}
	if fd != 1 {
		return 0, errors.ErrBadEndpoint
	}
	return c.routeWrite(c.pcb.writeEndpoint, data)
}

func (c *Context) routeRead(ep Endpoint, buf []byte) (int, error) {
	switch ep.Type {
	case EndpointConsole:
		return c.k.console.Read(buf)
	case EndpointPipe:
		return c.k.pipes.Read(c, ep.PipeID, buf)
	default:
		return 0, errors.ErrBadEndpoint
	}
}

func (c *Context) routeWrite(ep Endpoint, data []byte) (int, error) {
	switch ep.Type {
	case EndpointConsole:
		return c.k.console.Write(data)
	case EndpointPipe:
		return c.k.pipes.Write(c, ep.PipeID, data)
	default:
		return 0, errors.ErrBadEndpoint
	}
}

// SetReadTarget rebinds fd 0 to a new endpoint, releasing the previous
// pipe reference (if any) and retaining the new one.
func (c *Context) SetReadTarget(ep Endpoint) error {
	return c.k.table.setEndpoint(c.pcb, true, ep)
}

// SetWriteTarget rebinds fd 1 to a new endpoint, same rules as
// SetReadTarget.
func (c *Context) SetWriteTarget(ep Endpoint) error {
	return c.k.table.setEndpoint(c.pcb, false, ep)
}

// ClosePipe is sys_close_pipe: it drops this process's hold on pipe id
// under role NONE, decrementing both the reader and the writer count (each
// if nonzero) and the refcount by one, regardless of which role this
// process actually retained it under.
func (c *Context) ClosePipe(id int) {
	c.k.pipes.Release(id, RoleNone)
}
