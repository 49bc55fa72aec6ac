// Package clock abstracts wall time and deferred callbacks so timer-driven
// state machines can be tested deterministically.
package clock

import (
	"sort"
	"sync"
	"time"
)

// Clock provides the current time and cancellable deferred callbacks.
type Clock interface {
	Now() time.Time
	Since(t time.Time) time.Duration
	// AfterFunc runs f in its own goroutine (or, for MockClock, on the
	// goroutine calling Advance) once d has elapsed.
	AfterFunc(d time.Duration, f func()) Task
}

// Task is a pending deferred callback.
type Task interface {
	// Stop prevents the callback from running. It reports whether the call
	// stopped the task before it fired.
	Stop() bool
}

// RealClock implements Clock with the time package.
type RealClock struct{}

func (RealClock) Now() time.Time                  { return time.Now() }
func (RealClock) Since(t time.Time) time.Duration { return time.Since(t) }

func (RealClock) AfterFunc(d time.Duration, f func()) Task {
	return time.AfterFunc(d, f)
}

// MockClock is a manually advanced clock for tests.
type MockClock struct {
	mu    sync.Mutex
	now   time.Time
	seq   int
	tasks []*mockTask
}

func NewMockClock(t time.Time) *MockClock {
	return &MockClock{now: t}
}

func (c *MockClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *MockClock) Since(t time.Time) time.Duration {
	return c.Now().Sub(t)
}

func (c *MockClock) AfterFunc(d time.Duration, f func()) Task {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.seq++
	t := &mockTask{deadline: c.now.Add(d), seq: c.seq, f: f}
	c.tasks = append(c.tasks, t)
	return t
}

// Pending returns the number of tasks that have neither fired nor been stopped.
func (c *MockClock) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := 0
	for _, t := range c.tasks {
		if t.active() {
			n++
		}
	}
	return n
}

// Advance moves time forward by d, running every task that comes due in
// deadline order. Tasks scheduled by a running callback fire in the same
// call if they fall inside the window.
func (c *MockClock) Advance(d time.Duration) {
	c.mu.Lock()
	target := c.now.Add(d)
	c.mu.Unlock()

	for {
		c.mu.Lock()
		next := c.nextDueLocked(target)
		if next == nil {
			c.now = target
			c.mu.Unlock()
			return
		}
		if next.deadline.After(c.now) {
			c.now = next.deadline
		}
		c.mu.Unlock()

		if next.fire() {
			next.f()
		}
	}
}

func (c *MockClock) nextDueLocked(target time.Time) *mockTask {
	live := c.tasks[:0]
	for _, t := range c.tasks {
		if t.active() {
			live = append(live, t)
		}
	}
	c.tasks = live

	sort.SliceStable(c.tasks, func(i, j int) bool {
		if c.tasks[i].deadline.Equal(c.tasks[j].deadline) {
			return c.tasks[i].seq < c.tasks[j].seq
		}
		return c.tasks[i].deadline.Before(c.tasks[j].deadline)
	})

	if len(c.tasks) == 0 || c.tasks[0].deadline.After(target) {
		return nil
	}
	return c.tasks[0]
}

type mockTask struct {
	mu       sync.Mutex
	deadline time.Time
	seq      int
	f        func()
	stopped  bool
	fired    bool
}

func (t *mockTask) Stop() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	wasActive := !t.stopped && !t.fired
	t.stopped = true
	return wasActive
}

func (t *mockTask) active() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return !t.stopped && !t.fired
}

// fire marks the task as fired and reports whether it was still active.
func (t *mockTask) fire() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped || t.fired {
		return false
	}
	t.fired = true
	return true
}
