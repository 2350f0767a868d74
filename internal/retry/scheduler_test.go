package retry

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"
)

// fakeClock drives virtual time: Advance moves the clock and fires every
// timer whose deadline has passed.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []fakeTimer
}

type fakeTimer struct {
	at time.Time
	ch chan time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	ch := make(chan time.Time, 1)
	c.timers = append(c.timers, fakeTimer{at: c.now.Add(d), ch: ch})
	return ch
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)

	remaining := c.timers[:0]
	for _, tm := range c.timers {
		if !tm.at.After(c.now) {
			tm.ch <- c.now
		} else {
			remaining = append(remaining, tm)
		}
	}
	c.timers = remaining
}

func (c *fakeClock) timerCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.timers)
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("condition never met: %s", msg)
}

func TestSchedulerFiresDueTask(t *testing.T) {
	defer goleak.VerifyNone(t)

	clock := newFakeClock()
	s := NewScheduler(clock, zaptest.NewLogger(t))

	fired := make(chan Task, 1)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = s.Start(ctx, func(_ context.Context, task Task) { fired <- task })
	}()

	s.Schedule(Task{SubmissionID: "sub-1", RunAt: clock.Now().Add(2 * time.Minute)})

	// The loop must be parked on the timer before virtual time moves.
	waitFor(t, func() bool { return clock.timerCount() > 0 }, "scheduler never armed its timer")

	select {
	case <-fired:
		t.Fatal("task fired before its deadline")
	case <-time.After(20 * time.Millisecond):
	}

	clock.Advance(2 * time.Minute)

	select {
	case task := <-fired:
		assert.Equal(t, "sub-1", task.SubmissionID)
	case <-time.After(2 * time.Second):
		t.Fatal("task did not fire after advancing past its deadline")
	}

	cancel()
	<-done
}

func TestSchedulerFiresInDeadlineOrder(t *testing.T) {
	defer goleak.VerifyNone(t)

	clock := newFakeClock()
	s := NewScheduler(clock, zaptest.NewLogger(t))

	var mu sync.Mutex
	var order []string
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = s.Start(ctx, func(_ context.Context, task Task) {
			mu.Lock()
			order = append(order, task.SubmissionID)
			mu.Unlock()
		})
	}()

	// Armed out of order; must fire by deadline.
	s.Schedule(Task{SubmissionID: "late", RunAt: clock.Now().Add(8 * time.Minute)})
	s.Schedule(Task{SubmissionID: "early", RunAt: clock.Now().Add(2 * time.Minute)})

	waitFor(t, func() bool { return clock.timerCount() > 0 }, "scheduler never armed its timer")
	clock.Advance(2 * time.Minute)
	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(order) == 1
	}, "first task never fired")

	waitFor(t, func() bool { return clock.timerCount() > 0 }, "scheduler never re-armed")
	clock.Advance(6 * time.Minute)
	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(order) == 2
	}, "second task never fired")

	mu.Lock()
	assert.Equal(t, []string{"early", "late"}, order)
	mu.Unlock()

	cancel()
	<-done
}

func TestSchedulerRunsAlreadyDueTaskImmediately(t *testing.T) {
	defer goleak.VerifyNone(t)

	clock := newFakeClock()
	s := NewScheduler(clock, zaptest.NewLogger(t))

	fired := make(chan Task, 1)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = s.Start(ctx, func(_ context.Context, task Task) { fired <- task })
	}()

	// Deadline in the past: fires on the wake signal, no time advance needed.
	s.Schedule(Task{SubmissionID: "overdue", RunAt: clock.Now().Add(-time.Minute)})

	select {
	case task := <-fired:
		assert.Equal(t, "overdue", task.SubmissionID)
	case <-time.After(2 * time.Second):
		t.Fatal("overdue task did not fire")
	}
	assert.Equal(t, 0, s.Pending())

	cancel()
	<-done
}

func TestSchedulerSurvivesHandlerPanic(t *testing.T) {
	defer goleak.VerifyNone(t)

	clock := newFakeClock()
	s := NewScheduler(clock, zaptest.NewLogger(t))

	fired := make(chan string, 2)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = s.Start(ctx, func(_ context.Context, task Task) {
			fired <- task.SubmissionID
			if task.SubmissionID == "boom" {
				panic("handler bug")
			}
		})
	}()

	s.Schedule(Task{SubmissionID: "boom", RunAt: clock.Now()})
	require.Equal(t, "boom", <-fired)

	s.Schedule(Task{SubmissionID: "after", RunAt: clock.Now()})
	select {
	case id := <-fired:
		assert.Equal(t, "after", id)
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler stopped dispatching after a handler panic")
	}

	cancel()
	<-done
}
