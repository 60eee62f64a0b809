// Package device adapts the host terminal into the kernel's console: the
// single shared input/output stream every process defaults both its
// endpoints to.
package device

import (
	"io"
	"os"
	"sync"

	"golang.org/x/sys/unix"
	"golang.org/x/term"
)

// Console is the kernel's one console device: raw-mode stdin/stdout with
// ioctl-derived window geometry, shared by every process whose endpoint is
// still CONSOLE.
type Console struct {
	mu       sync.Mutex
	in       *os.File
	out      *os.File
	rawState *term.State
}

// NewConsole wraps the process's own stdin/stdout as the kernel console.
func NewConsole() *Console {
	return &Console{in: os.Stdin, out: os.Stdout}
}

// EnterRawMode puts stdin into raw mode (no echo, no line buffering) if it
// is a real terminal, so get_char_no_display reads exactly one keystroke.
// It is a no-op when stdin is not a terminal (e.g. under test or when
// piped), matching the source's behavior of simply reading whatever bytes
// arrive.
func (c *Console) EnterRawMode() error {
	if !term.IsTerminal(int(c.in.Fd())) {
		return nil
	}
	state, err := term.MakeRaw(int(c.in.Fd()))
	if err != nil {
		return err
	}
	c.rawState = state
	return nil
}

// Restore undoes EnterRawMode, if it took effect.
func (c *Console) Restore() error {
	if c.rawState == nil {
		return nil
	}
	return term.Restore(int(c.in.Fd()), c.rawState)
}

// Read implements the console side of sys_read.
func (c *Console) Read(buf []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.in.Read(buf)
}

// GetCharNoDisplay reads exactly one byte without echoing it, returning
// io.EOF when the input stream has closed.
func (c *Console) GetCharNoDisplay() (byte, error) {
	var b [1]byte
	n, err := c.Read(b[:])
	if n == 0 && err == nil {
		return 0, io.EOF
	}
	return b[0], err
}

// Write implements the console side of sys_write.
func (c *Console) Write(data []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.out.Write(data)
}

// WindowWidth and WindowHeight answer the window_width/window_height
// syscalls via TIOCGWINSZ.
func (c *Console) WindowWidth() (int, error) {
	ws, err := unix.IoctlGetWinsize(int(c.out.Fd()), unix.TIOCGWINSZ)
	if err != nil {
		return 0, err
	}
	return int(ws.Col), nil
}

func (c *Console) WindowHeight() (int, error) {
	ws, err := unix.IoctlGetWinsize(int(c.out.Fd()), unix.TIOCGWINSZ)
	if err != nil {
		return 0, err
	}
	return int(ws.Row), nil
}

// ClearInputBuffer discards any input currently buffered in the terminal
// driver, for the clear_input_buffer syscall.
func (c *Console) ClearInputBuffer() error {
	return unix.IoctlSetInt(int(c.in.Fd()), unix.TCFLSH, unix.TCIFLUSH)
}
