package kernel

import (
	"sync"
	"testing"
	"time"
)

// TestQuantumAccounting exercises spec scenario 1: three same-priority
// processes round-robin, each running exactly its quantum (1<<priority)
// worth of ticks before the next one takes over.
func TestQuantumAccounting(t *testing.T) {
	k := newTestKernel(t)

	var mu sync.Mutex
	var trace []int

	const ticksPerChild = 8
	child := func(label int) Entry {
		return func(ctx *Context, argv []string) int {
			for i := 0; i < ticksPerChild; i++ {
				mu.Lock()
				trace = append(trace, label)
				mu.Unlock()
				ctx.Tick()
			}
			return 0
		}
	}

	done := make(chan struct{})
	driver := func(ctx *Context, argv []string) int {
		for label := 1; label <= 3; label++ {
			if _, err := k.table.Create(child(label), "quantum-child", nil, Mid, ctx.PID(), true); err != nil {
				t.Errorf("create child %d: %v", label, err)
			}
		}
		k.table.WaitChildren(ctx)
		close(done)
		return 0
	}

	if _, err := k.table.Create(driver, "driver", nil, Mid, -1, true); err != nil {
		t.Fatalf("create driver: %v", err)
	}
	k.table.sched.bootstrap()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for scheduling trace")
	}

	mu.Lock()
	defer mu.Unlock()
	if len(trace) < 12 {
		t.Fatalf("trace too short: %v", trace)
	}
	want := []int{1, 1, 2, 2, 3, 3, 1, 1, 2, 2, 3, 3}
	if got := trace[:12]; !equalInts(got, want) {
		t.Fatalf("dispatch order = %v, want %v", got, want)
	}
}

// TestAgingPreventsStarvation exercises spec scenario 2: a MAX-priority
// process that never blocks starves a MIN-priority process out of the CPU
// until aging boosts it on the STARVATION_THRESHOLD-th scheduling decision.
func TestAgingPreventsStarvation(t *testing.T) {
	k := newTestKernel(t)

	var mu sync.Mutex
	var trace []string

	maxEntry := func(ctx *Context, argv []string) int {
		for {
			select {
			case <-ctx.Done():
				return 0
			default:
			}
			mu.Lock()
			trace = append(trace, "max")
			mu.Unlock()
			ctx.Tick()
		}
	}

	minEntry := func(ctx *Context, argv []string) int {
		mu.Lock()
		trace = append(trace, "min")
		mu.Unlock()
		return 0
	}

	done := make(chan struct{})
	driver := func(ctx *Context, argv []string) int {
		hogPCB, err := k.table.Create(maxEntry, "hog", nil, Max, ctx.PID(), true)
		if err != nil {
			t.Errorf("create hog: %v", err)
		}
		starvedPCB, err := k.table.Create(minEntry, "starved", nil, Min, ctx.PID(), true)
		if err != nil {
			t.Errorf("create starved: %v", err)
		}

		if err := k.table.WaitPID(ctx, starvedPCB.pid); err != nil {
			t.Errorf("wait_pid(starved): %v", err)
		}
		if err := k.table.Kill(ctx, hogPCB.pid); err != nil {
			t.Errorf("kill(hog): %v", err)
		}
		close(done)
		return 0
	}

	if _, err := k.table.Create(driver, "driver", nil, Mid, -1, true); err != nil {
		t.Fatalf("create driver: %v", err)
	}
	k.table.sched.bootstrap()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for starvation trace")
	}

	mu.Lock()
	defer mu.Unlock()
	idx := -1
	for i, v := range trace {
		if v == "min" {
			idx = i
			break
		}
	}
	if idx == -1 {
		t.Fatal("starved process never ran")
	}
	// The first of those decisions is the one made when the driver blocks in
	// WaitPID, which dispatches the hog before it has run; the hog then gets
	// one full quantum for each of the remaining threshold-1 decisions.
	wantMaxRuns := (StarvationThreshold - 1) * Max.QuantumLimit()
	if idx != wantMaxRuns {
		t.Fatalf("starved process ran after %d max-priority ticks, want exactly %d", idx, wantMaxRuns)
	}
}
