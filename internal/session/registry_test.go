package session

import (
	"errors"
	"io"
	"log/slog"
	"testing"
)

type fakeWatcher struct {
	watched   []string
	unwatched []string
	err       error
}

func (w *fakeWatcher) WatchClient(busID string) error {
	if w.err != nil {
		return w.err
	}
	w.watched = append(w.watched, busID)
	return nil
}

func (w *fakeWatcher) UnwatchClient(busID string) {
	w.unwatched = append(w.unwatched, busID)
}

func newTestRegistry(w Watcher) *Registry {
	return NewRegistry(slog.New(slog.NewTextHandler(io.Discard, nil)), w)
}

func TestRegistryCreateWatchesOncePerBusID(t *testing.T) {
	w := &fakeWatcher{}
	r := newTestRegistry(w)

	a := Identity{BusID: ":1.10", Path: "/player/a"}
	b := Identity{BusID: ":1.10", Path: "/player/b"}

	first, err := r.Create(a)
	if err != nil {
		t.Fatalf("Create(a): %v", err)
	}
	again, err := r.Create(a)
	if err != nil || again != first {
		t.Fatalf("re-create returned %p, %v; want %p", again, err, first)
	}
	if _, err := r.Create(b); err != nil {
		t.Fatalf("Create(b): %v", err)
	}
	if len(w.watched) != 1 || w.watched[0] != ":1.10" {
		t.Errorf("watched = %v, want [:1.10]", w.watched)
	}
	if r.Len() != 2 {
		t.Errorf("Len() = %d, want 2", r.Len())
	}
}

func TestRegistryCreateFailsWhenWatchFails(t *testing.T) {
	r := newTestRegistry(&fakeWatcher{err: errors.New("bus gone")})
	if _, err := r.Create(Identity{BusID: ":1.3", Path: "/p"}); err == nil {
		t.Fatal("Create succeeded without a watch")
	}
	if r.Len() != 0 {
		t.Errorf("client registered despite watch failure")
	}
}

func TestRegistryCreateRejectsPartialIdentity(t *testing.T) {
	r := newTestRegistry(nil)
	if _, err := r.Create(Identity{BusID: ":1.3"}); err == nil {
		t.Error("Create accepted an identity without a path")
	}
}

func TestRegistryPurge(t *testing.T) {
	w := &fakeWatcher{}
	r := newTestRegistry(w)
	r.Create(Identity{BusID: ":1.10", Path: "/a"})
	r.Create(Identity{BusID: ":1.10", Path: "/b"})
	r.Create(Identity{BusID: ":1.11", Path: "/a"})

	if n := r.Purge(":1.10"); n != 2 {
		t.Fatalf("Purge removed %d, want 2", n)
	}
	if _, ok := r.Find(Identity{BusID: ":1.10", Path: "/a"}); ok {
		t.Error("purged client still found")
	}
	if _, ok := r.Find(Identity{BusID: ":1.11", Path: "/a"}); !ok {
		t.Error("unrelated client purged")
	}
	if len(w.unwatched) != 1 || w.unwatched[0] != ":1.10" {
		t.Errorf("unwatched = %v", w.unwatched)
	}
	if n := r.Purge(":1.99"); n != 0 {
		t.Errorf("Purge of unknown id removed %d", n)
	}
	if len(w.unwatched) != 1 {
		t.Errorf("unknown purge unwatched: %v", w.unwatched)
	}
}

func TestRegistryListSorted(t *testing.T) {
	r := newTestRegistry(nil)
	r.Create(Identity{BusID: ":1.2", Path: "/b"})
	r.Create(Identity{BusID: ":1.1", Path: "/z"})
	r.Create(Identity{BusID: ":1.2", Path: "/a"})

	var got []string
	for _, c := range r.List() {
		got = append(got, c.Identity.String())
	}
	want := []string{":1.1/z", ":1.2/a", ":1.2/b"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("List order = %v, want %v", got, want)
		}
	}
}
