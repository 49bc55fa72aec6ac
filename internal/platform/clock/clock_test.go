package clock

import (
	"testing"
	"time"
)

func TestMockClockFiresInDeadlineOrder(t *testing.T) {
	start := time.Date(2026, 1, 1, 8, 0, 0, 0, time.UTC)
	c := NewMockClock(start)

	var order []string
	c.AfterFunc(30*time.Millisecond, func() { order = append(order, "b") })
	c.AfterFunc(10*time.Millisecond, func() { order = append(order, "a") })
	c.AfterFunc(time.Second, func() { order = append(order, "late") })

	c.Advance(50 * time.Millisecond)

	if len(order) != 2 || order[0] != "a" || order[1] != "b" {
		t.Fatalf("order = %v, want [a b]", order)
	}
	if got := c.Now(); !got.Equal(start.Add(50 * time.Millisecond)) {
		t.Fatalf("now = %v, want %v", got, start.Add(50*time.Millisecond))
	}
	if c.Pending() != 1 {
		t.Fatalf("pending = %d, want 1", c.Pending())
	}
}

func TestMockClockStopAndChainedTasks(t *testing.T) {
	c := NewMockClock(time.Date(2026, 1, 1, 8, 0, 0, 0, time.UTC))

	stopped := c.AfterFunc(5*time.Millisecond, func() { t.Fatalf("stopped task fired") })
	if !stopped.Stop() {
		t.Fatalf("Stop on pending task = false, want true")
	}

	// A callback that reschedules itself keeps firing within one Advance.
	fired := 0
	var step func()
	step = func() {
		fired++
		if fired < 5 {
			c.AfterFunc(10*time.Millisecond, step)
		}
	}
	c.AfterFunc(10*time.Millisecond, step)

	c.Advance(time.Second)
	if fired != 5 {
		t.Fatalf("fired = %d, want 5", fired)
	}
	if c.Pending() != 0 {
		t.Fatalf("pending = %d, want 0", c.Pending())
	}
}
