package eventloop

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

func runLoop(t *testing.T) (*Loop, context.CancelFunc) {
	t.Helper()
	l := New(nil)
	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = l.Run(ctx) }()
	return l, cancel
}

func TestLoopRunsInPostOrder(t *testing.T) {
	l, cancel := runLoop(t)
	defer cancel()

	var got []int
	for i := 0; i < 50; i++ {
		i := i
		l.Post(func() { got = append(got, i) })
	}
	ctx, done := context.WithTimeout(context.Background(), 2*time.Second)
	defer done()
	if err := l.Do(ctx, func() {}); err != nil {
		t.Fatalf("Do: %v", err)
	}
	for i, v := range got {
		if v != i {
			t.Fatalf("order broken at %d: %v", i, got)
		}
	}
	if len(got) != 50 {
		t.Fatalf("ran %d tasks", len(got))
	}
}

func TestLoopSurvivesPanic(t *testing.T) {
	l, cancel := runLoop(t)
	defer cancel()

	l.Post(func() { panic("boom") })
	ran := false
	ctx, done := context.WithTimeout(context.Background(), 2*time.Second)
	defer done()
	if err := l.Do(ctx, func() { ran = true }); err != nil {
		t.Fatalf("Do: %v", err)
	}
	if !ran {
		t.Fatalf("loop stopped after panic")
	}
}

func TestAfterStopCancels(t *testing.T) {
	l, cancel := runLoop(t)
	defer cancel()

	var fired atomic.Int32
	s := l.After(20*time.Millisecond, func() { fired.Add(1) })
	if !s.Stop() {
		t.Fatalf("expected pending timer")
	}
	l.After(10*time.Millisecond, func() { fired.Add(10) })
	time.Sleep(100 * time.Millisecond)
	if got := fired.Load(); got != 10 {
		t.Fatalf("fired=%d want 10", got)
	}
}

func TestPostAfterCloseFails(t *testing.T) {
	l := New(nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_ = l.Run(ctx)
	if l.Post(func() {}) {
		t.Fatalf("post after close should fail")
	}
}

func TestManualAdvanceFiresInOrder(t *testing.T) {
	m := NewManual()
	var got []string
	m.After(3*time.Second, func() { got = append(got, "poll") })
	stop := m.After(time.Second, func() { got = append(got, "cancelled") })
	m.After(time.Second, func() {
		got = append(got, "retry")
		m.Post(func() { got = append(got, "posted") })
	})
	stop.Stop()
	m.Advance(2 * time.Second)
	if len(got) != 2 || got[0] != "retry" || got[1] != "posted" {
		t.Fatalf("after 2s: %v", got)
	}
	m.Advance(time.Second)
	if len(got) != 3 || got[2] != "poll" {
		t.Fatalf("after 3s: %v", got)
	}
	if m.Timers() != 0 {
		t.Fatalf("timers left: %d", m.Timers())
	}
}
