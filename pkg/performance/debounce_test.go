package performance

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestDebounceCollapsesBurst(t *testing.T) {
	d := NewDebouncer(50 * time.Millisecond)

	var calls atomic.Int32
	var last atomic.Int32
	for i := 1; i <= 5; i++ {
		i := i
		d.Debounce("reload", func() {
			calls.Add(1)
			last.Store(int32(i))
		})
		time.Sleep(5 * time.Millisecond)
	}

	time.Sleep(200 * time.Millisecond)
	if got := calls.Load(); got != 1 {
		t.Fatalf("calls = %d, want 1", got)
	}
	if got := last.Load(); got != 5 {
		t.Fatalf("ran call %d, want the last one", got)
	}
	if d.Pending() != 0 {
		t.Fatalf("pending = %d after run", d.Pending())
	}
}

func TestDebounceKeysAreIndependent(t *testing.T) {
	d := NewDebouncer(20 * time.Millisecond)

	var calls atomic.Int32
	d.Debounce("a", func() { calls.Add(1) })
	d.Debounce("b", func() { calls.Add(1) })
	if d.Pending() != 2 {
		t.Fatalf("pending = %d, want 2", d.Pending())
	}

	time.Sleep(150 * time.Millisecond)
	if got := calls.Load(); got != 2 {
		t.Fatalf("calls = %d, want 2", got)
	}
}

func TestClearCancelsPending(t *testing.T) {
	d := NewDebouncer(30 * time.Millisecond)

	var calls atomic.Int32
	d.Debounce("reload", func() { calls.Add(1) })
	d.Clear()

	time.Sleep(100 * time.Millisecond)
	if got := calls.Load(); got != 0 {
		t.Fatalf("calls = %d after Clear", got)
	}
}
