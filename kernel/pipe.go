package kernel

import (
	"fmt"
	"sync"

	"gokernel/errors"
)

// PipeBufferSize is the fixed ring capacity, in bytes, of every pipe.
const PipeBufferSize = 8192

// MaxPipes bounds the pipe table's slot count.
const MaxPipes = 64

// PipeRole is which end of a pipe an endpoint holds.
type PipeRole int

const (
	RoleNone PipeRole = iota
	RoleReader
	RoleWriter
)

// pipe is a bounded ring buffer guarded by its own lock, with two
// semaphores doing the blocking: readSem counts readable bytes, writeSem
// counts free slots.
type pipe struct {
	mu sync.Mutex

	id       int
	buf      [PipeBufferSize]byte
	readIdx  int
	writeIdx int

	readSem  *Semaphore
	writeSem *Semaphore

	refCount    int
	readerCount int
	writerCount int
	closed      bool
	activeOps   int
}

func (p *pipe) isEmptyLocked() bool {
	return p.readIdx == p.writeIdx
}

// pipeTable is the fixed MAX_PIPES slot array plus the monotonically
// increasing serial used to name each pipe's pair of semaphores.
type pipeTable struct {
	mu     sync.Mutex
	slots  [MaxPipes]*pipe
	serial int

	semReg *semaphoreRegistry
	table  *processTable
}

func newPipeTable(semReg *semaphoreRegistry) *pipeTable {
	return &pipeTable{semReg: semReg}
}

func (t *pipeTable) bind(table *processTable) {
	t.table = table
}

// Open allocates a pipe slot and its two semaphores. The pipe starts with
// refcount 0; callers must Retain it to get a usable endpoint.
func (t *pipeTable) Open() (int, error) {
	t.mu.Lock()
	id := -1
	for i, s := range t.slots {
		if s == nil {
			id = i
			break
		}
	}
	if id < 0 {
		t.mu.Unlock()
		return -1, errors.ErrNoFreePipeSlot
	}
	serial := t.serial
	t.serial++

	p := &pipe{id: id}
	t.slots[id] = p
	t.mu.Unlock()

	readSem, err := t.semReg.Init(fmt.Sprintf("pipe%d_read", serial), 0)
	if err != nil {
		t.mu.Lock()
		t.slots[id] = nil
		t.mu.Unlock()
		return -1, errors.Wrap(err, errors.ErrResource, "pipe", -1)
	}
	writeSem, err := t.semReg.Init(fmt.Sprintf("pipe%d_write", serial), PipeBufferSize)
	if err != nil {
		t.semReg.Destroy(readSem)
		t.mu.Lock()
		t.slots[id] = nil
		t.mu.Unlock()
		return -1, errors.Wrap(err, errors.ErrResource, "pipe", -1)
	}
	p.readSem = readSem
	p.writeSem = writeSem

	return id, nil
}

func (t *pipeTable) get(id int) *pipe {
	t.mu.Lock()
	defer t.mu.Unlock()
	if id < 0 || id >= MaxPipes {
		return nil
	}
	return t.slots[id]
}

// Retain obtains a usable reference to pipe id for the given role. It
// refuses a WRITER retain once the pipe has been closed for writing
// (writer count dropped to zero and nobody may reopen it).
func (t *pipeTable) Retain(id int, role PipeRole) error {
	p := t.get(id)
	if p == nil {
		return errors.New(errors.ErrNotFound, "pipe_retain", -1, "no such pipe")
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed && role == RoleWriter {
		return errors.ErrPipeClosedForWrite
	}

	switch role {
	case RoleReader:
		p.readerCount++
	case RoleWriter:
		p.writerCount++
	default:
		return errors.ErrBadEndpoint
	}
	p.refCount++
	return nil
}

// Release drops a role reference, closes the pipe's write side once the
// last writer leaves (waking any reader stuck waiting for more bytes),
// closes it entirely once the last reference leaves, and then finalizes.
func (t *pipeTable) Release(id int, role PipeRole) {
	p := t.get(id)
	if p == nil {
		return
	}

	p.mu.Lock()
	switch role {
	case RoleReader:
		if p.readerCount > 0 {
			p.readerCount--
		}
	case RoleWriter:
		if p.writerCount > 0 {
			p.writerCount--
		}
	case RoleNone:
		if p.readerCount > 0 {
			p.readerCount--
		}
		if p.writerCount > 0 {
			p.writerCount--
		}
	}
	if p.refCount > 0 {
		p.refCount--
	}

	wakeReaders := false
	wakeBoth := false
	if p.writerCount == 0 && !p.closed {
		p.closed = true
		wakeReaders = true
	}
	if p.refCount == 0 {
		p.closed = true
		wakeBoth = true
	}
	p.mu.Unlock()

	if wakeReaders || wakeBoth {
		t.semReg.WakeBlocked(p.readSem)
	}
	if wakeBoth {
		t.semReg.WakeBlocked(p.writeSem)
	}

	t.finalize(p)
}

// finalize removes and frees a pipe once it is fully closed, unreferenced,
// and has no operation in flight.
func (t *pipeTable) finalize(p *pipe) {
	p.mu.Lock()
	ready := p.refCount == 0 && p.closed && p.activeOps == 0
	p.mu.Unlock()
	if !ready {
		return
	}

	t.mu.Lock()
	if t.slots[p.id] == p {
		t.slots[p.id] = nil
	}
	t.mu.Unlock()

	t.semReg.Destroy(p.readSem)
	t.semReg.Destroy(p.writeSem)
}

// Read copies up to len(out) bytes from pipe id into out, blocking a byte
// at a time on readSem. It returns fewer bytes than requested (a short
// read) once the pipe is closed and drained.
func (t *pipeTable) Read(caller *Context, id int, out []byte) (int, error) {
	p := t.get(id)
	if p == nil {
		return 0, errors.New(errors.ErrNotFound, "read_pipe", -1, "no such pipe")
	}

	p.mu.Lock()
	p.activeOps++
	p.mu.Unlock()

	n := 0
	for n < len(out) {
		p.mu.Lock()
		if p.closed && p.isEmptyLocked() {
			p.mu.Unlock()
			break
		}
		p.mu.Unlock()

		t.semReg.wait(caller, p.readSem)

		p.mu.Lock()
		if p.isEmptyLocked() {
			// Closed raced the wait: nothing actually arrived.
			p.mu.Unlock()
			break
		}
		out[n] = p.buf[p.readIdx]
		p.readIdx = (p.readIdx + 1) % PipeBufferSize
		p.mu.Unlock()

		t.semReg.Post(caller, p.writeSem)
		n++
	}

	p.mu.Lock()
	p.activeOps--
	p.mu.Unlock()
	t.finalize(p)

	return n, nil
}

// Write copies up to len(in) bytes from in into pipe id, blocking a byte
// at a time on writeSem, stopping early (a short write) once the pipe is
// closed.
func (t *pipeTable) Write(caller *Context, id int, in []byte) (int, error) {
	p := t.get(id)
	if p == nil {
		return 0, errors.New(errors.ErrNotFound, "write_pipe", -1, "no such pipe")
	}

	p.mu.Lock()
	p.activeOps++
	p.mu.Unlock()

	n := 0
	for n < len(in) {
		p.mu.Lock()
		if p.closed {
			p.mu.Unlock()
			break
		}
		p.mu.Unlock()

		t.semReg.wait(caller, p.writeSem)

		p.mu.Lock()
		if p.closed {
			p.mu.Unlock()
			t.semReg.unblockOne(p.writeSem) // restore the slot we just consumed
			break
		}
		p.buf[p.writeIdx] = in[n]
		p.writeIdx = (p.writeIdx + 1) % PipeBufferSize
		p.mu.Unlock()

		t.semReg.Post(caller, p.readSem)
		n++
	}

	p.mu.Lock()
	p.activeOps--
	p.mu.Unlock()
	t.finalize(p)

	return n, nil
}
