package loop

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"
)

func newTestLoop(t *testing.T) (*Loop, context.CancelFunc) {
	t.Helper()
	l := New(slog.New(slog.NewTextHandler(io.Discard, nil)), 16)
	ctx, cancel := context.WithCancel(context.Background())
	go l.Run(ctx)
	t.Cleanup(cancel)
	return l, cancel
}

func TestLoopRunsInOrder(t *testing.T) {
	l, _ := newTestLoop(t)

	var got []int
	for i := 0; i < 5; i++ {
		i := i
		if !l.Post(func() { got = append(got, i) }) {
			t.Fatalf("Post(%d) refused", i)
		}
	}
	var snapshot []int
	if !l.Do(func() { snapshot = append(snapshot, got...) }) {
		t.Fatal("Do refused")
	}
	for i, v := range snapshot {
		if v != i {
			t.Fatalf("order = %v", snapshot)
		}
	}
	if len(snapshot) != 5 {
		t.Fatalf("ran %d functions, want 5", len(snapshot))
	}
}

func TestLoopRefusesAfterStop(t *testing.T) {
	l, cancel := newTestLoop(t)
	cancel()

	select {
	case <-l.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("loop did not stop")
	}
	if l.Post(func() {}) {
		t.Error("Post accepted work after stop")
	}
	if l.Do(func() {}) {
		t.Error("Do accepted work after stop")
	}
}
