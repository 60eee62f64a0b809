package kernel

import "testing"

// newTestKernel wires a bare kernel and creates its idle process (pid 0),
// without calling Boot: tests drive the table/scheduler directly and never
// touch the console. The pid cursor is then moved past the protected init
// and shell pids, so test processes start at pid 3 and can be killed.
func newTestKernel(t *testing.T) *Kernel {
	t.Helper()
	k := New(nil)
	idlePCB, err := k.table.Create(idleEntry, "idle", nil, Min, -1, true)
	if err != nil {
		t.Fatalf("create idle: %v", err)
	}
	if idlePCB.pid != PIDIdle {
		t.Fatalf("idle process got pid %d, want %d", idlePCB.pid, PIDIdle)
	}
	k.table.nextPID = PIDShell
	return k
}

func equalInts(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
