// Package errors: predefined sentinel errors for common kernel failure cases.
package errors

// Process lifecycle errors.
var (
	// ErrProcessNotFound indicates the pid does not have a live PCB slot.
	ErrProcessNotFound = &KernelError{
		Kind: ErrNotFound, PID: -1,
		Detail: "process not found",
	}

	// ErrProtectedPID indicates the target pid is idle, init, or shell.
	ErrProtectedPID = &KernelError{
		Kind: ErrProtected, PID: -1,
		Detail: "pid is protected and cannot be killed or blocked",
	}

	// ErrInvalidPriority indicates a priority outside {MIN, MID, MAX}.
	ErrInvalidPriority = &KernelError{
		Kind: ErrInvalidArg, PID: -1,
		Detail: "invalid priority",
	}

	// ErrNotBlocked indicates unblock was called on a process that isn't BLOCKED.
	ErrNotBlocked = &KernelError{
		Kind: ErrInvalidState, PID: -1,
		Detail: "process is not blocked",
	}

	// ErrNoFreeSlot indicates the PCB table has no free slot (MAX_PROCESSES reached).
	ErrNoFreeSlot = &KernelError{
		Kind: ErrResource, PID: -1,
		Detail: "no free process slot",
	}

	// ErrNotAChild indicates wait_pid was called on a pid that is not a child
	// of the caller.
	ErrNotAChild = &KernelError{
		Kind: ErrInvalidArg, PID: -1,
		Detail: "pid is not a child of the caller",
	}
)

// Heap errors.
var (
	// ErrOutOfMemory indicates no contiguous free region satisfies the request.
	ErrOutOfMemory = &KernelError{
		Kind: ErrResource, PID: -1,
		Detail: "heap exhausted",
	}

	// ErrInvalidPointer indicates free()/is_valid_heap_ptr() was given a
	// pointer that is out of range, unaligned, or not the head of an
	// allocation.
	ErrInvalidPointer = &KernelError{
		Kind: ErrInvalidArg, PID: -1,
		Detail: "invalid heap pointer",
	}
)

// Semaphore errors.
var (
	// ErrSemaphoreDestroyed indicates wait() raced a concurrent destroy().
	ErrSemaphoreDestroyed = &KernelError{
		Kind: ErrClosed, PID: -1,
		Detail: "semaphore was destroyed",
	}
)

// Pipe errors.
var (
	// ErrNoFreePipeSlot indicates the pipe table has reached MAX_PIPES.
	ErrNoFreePipeSlot = &KernelError{
		Kind: ErrResource, PID: -1,
		Detail: "no free pipe slot",
	}

	// ErrPipeClosedForWrite indicates retain(WRITER) was attempted on a pipe
	// already closed for writing.
	ErrPipeClosedForWrite = &KernelError{
		Kind: ErrClosed, PID: -1,
		Detail: "pipe closed for writing",
	}

	// ErrBadEndpoint indicates an operation on an endpoint of type NONE.
	ErrBadEndpoint = &KernelError{
		Kind: ErrInvalidState, PID: -1,
		Detail: "endpoint is not bound",
	}
)
