package broker

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"reflect"
	"testing"
	"time"

	"github.com/godbus/dbus/v5"

	"github.com/mil-ad/policyd/internal/bus"
	"github.com/mil-ad/policyd/internal/session"
)

type sent struct {
	ctx    context.Context
	call   *dbus.Call
	method string
	args   []any
}

type fakeCaller struct{ sent []*sent }

func (f *fakeCaller) Go(ctx context.Context, dest string, path dbus.ObjectPath, method string, args ...any) *dbus.Call {
	call := &dbus.Call{
		Destination: dest,
		Path:        path,
		Method:      method,
		Args:        args,
		Done:        make(chan *dbus.Call, 1),
	}
	f.sent = append(f.sent, &sent{ctx: ctx, call: call, method: method, args: args})
	return call
}

// queuePoster hands posted work to the test goroutine, which plays the
// event loop.
type queuePoster struct{ fns chan func() }

func newQueuePoster() *queuePoster {
	return &queuePoster{fns: make(chan func(), 8)}
}

func (p *queuePoster) Post(fn func()) bool {
	p.fns <- fn
	return true
}

func (p *queuePoster) runOne(t *testing.T) {
	t.Helper()
	select {
	case fn := <-p.fns:
		fn()
	case <-time.After(2 * time.Second):
		t.Fatal("no completion posted")
	}
}

type fakeClients map[session.Identity]bool

func (f fakeClients) Find(id session.Identity) (*session.Client, bool) {
	if !f[id] {
		return nil, false
	}
	return &session.Client{Identity: id}, true
}

var player = session.Identity{BusID: ":1.42", Path: "/org/example/Player"}

type harness struct {
	caller  *fakeCaller
	poster  *queuePoster
	clients fakeClients
	broker  *Broker
	results []Result
}

func newHarness() *harness {
	h := &harness{
		caller:  &fakeCaller{},
		poster:  newQueuePoster(),
		clients: fakeClients{player: true},
	}
	h.broker = New(h.caller, h.poster, h.clients, 0, slog.New(slog.NewTextHandler(io.Discard, nil)))
	return h
}

func (h *harness) record(r Result) { h.results = append(h.results, r) }

func (h *harness) reply(t *testing.T, i int, err error, body ...any) {
	t.Helper()
	c := h.caller.sent[i].call
	c.Err = err
	c.Body = body
	c.Done <- c
	h.poster.runOne(t)
}

func TestGetDeliversValue(t *testing.T) {
	for name, body := range map[string]any{
		"string":  "player",
		"variant": dbus.MakeVariant("player"),
	} {
		t.Run(name, func(t *testing.T) {
			h := newHarness()
			h.broker.Get(player, "Class", h.record)
			if h.broker.Pending() != 1 {
				t.Fatalf("Pending() = %d, want 1", h.broker.Pending())
			}

			s := h.caller.sent[0]
			if s.method != bus.PropertiesGet {
				t.Errorf("method = %q", s.method)
			}
			if want := []any{bus.PlaybackIface, "Class"}; !reflect.DeepEqual(s.args, want) {
				t.Errorf("args = %v, want %v", s.args, want)
			}
			if _, ok := s.ctx.Deadline(); ok {
				t.Error("get call carries a deadline")
			}

			h.reply(t, 0, nil, body)
			if len(h.results) != 1 {
				t.Fatalf("got %d callbacks, want 1", len(h.results))
			}
			r := h.results[0]
			if r.Err != nil || r.Value != "player" || r.Property != "Class" || r.Client != player {
				t.Errorf("result = %+v", r)
			}
			if h.broker.Pending() != 0 {
				t.Errorf("Pending() = %d after completion", h.broker.Pending())
			}
			if s.ctx.Err() == nil {
				t.Error("call context not released")
			}
		})
	}
}

func TestGetErrorReachesCallback(t *testing.T) {
	h := newHarness()
	h.broker.Get(player, "State", h.record)
	h.reply(t, 0, dbus.Error{Name: "org.example.Error.NoSuchProperty", Body: []any{"no State"}})

	if len(h.results) != 1 {
		t.Fatalf("got %d callbacks, want 1", len(h.results))
	}
	r := h.results[0]
	if r.Err == nil {
		t.Fatal("expected an error result")
	}
	if r.ErrorName() != "org.example.Error.NoSuchProperty" {
		t.Errorf("ErrorName() = %q", r.ErrorName())
	}
	if h.broker.Pending() != 0 {
		t.Errorf("Pending() = %d", h.broker.Pending())
	}
}

func TestMalformedReplyIsDropped(t *testing.T) {
	for name, body := range map[string][]any{
		"empty":          nil,
		"wrong type":     {uint32(3)},
		"variant of int": {dbus.MakeVariant(int32(1))},
	} {
		t.Run(name, func(t *testing.T) {
			h := newHarness()
			h.broker.Get(player, "State", h.record)
			h.reply(t, 0, nil, body...)
			if len(h.results) != 0 {
				t.Errorf("callback ran for malformed reply: %+v", h.results)
			}
			if h.broker.Pending() != 0 {
				t.Errorf("Pending() = %d", h.broker.Pending())
			}
		})
	}
}

func TestClientGoneDropsCompletion(t *testing.T) {
	h := newHarness()
	h.broker.Get(player, "State", h.record)
	h.broker.Set(player, "State", "Play", h.record)
	delete(h.clients, player)

	h.reply(t, 0, nil, "Play")
	h.reply(t, 1, errors.New("timeout"))
	if len(h.results) != 0 {
		t.Errorf("callbacks ran for a vanished client: %+v", h.results)
	}
	if h.broker.Pending() != 0 {
		t.Errorf("Pending() = %d", h.broker.Pending())
	}
	for i, s := range h.caller.sent {
		if s.ctx.Err() == nil {
			t.Errorf("call %d context not released", i)
		}
	}
}

func TestSetEncoding(t *testing.T) {
	tests := []struct {
		property, value string
		want            any
	}{
		{"State", "Play", "Play"},
		{AllowedStateProperty, "Play", []string{"Stop", "Play"}},
		{AllowedStateProperty, "Stop", []string{"Stop"}},
	}
	for _, tt := range tests {
		h := newHarness()
		h.broker.Set(player, tt.property, tt.value, h.record)
		s := h.caller.sent[0]
		if s.method != bus.PropertiesSet {
			t.Errorf("method = %q", s.method)
		}
		want := []any{bus.PlaybackIface, tt.property, tt.want}
		if !reflect.DeepEqual(s.args, want) {
			t.Errorf("Set(%s, %s) args = %#v, want %#v", tt.property, tt.value, s.args, want)
		}
		deadline, ok := s.ctx.Deadline()
		if !ok || time.Until(deadline) > DefaultSetTimeout {
			t.Errorf("set deadline = %v, %v", deadline, ok)
		}

		h.reply(t, 0, nil)
		if len(h.results) != 1 || h.results[0].Value != tt.value || h.results[0].Err != nil {
			t.Errorf("results = %+v", h.results)
		}
	}
}

func TestCompletionRunsOnce(t *testing.T) {
	h := newHarness()
	h.broker.Get(player, "State", h.record)
	pc := h.broker.pending[1]
	call := &dbus.Call{Body: []any{"Play"}}

	h.broker.complete(pc, call)
	h.broker.complete(pc, call)
	if len(h.results) != 1 {
		t.Errorf("got %d callbacks, want 1", len(h.results))
	}
}

func TestCloseAbandonsPending(t *testing.T) {
	h := newHarness()
	h.broker.Get(player, "State", h.record)
	h.broker.Get(player, "Class", h.record)
	h.broker.Close()
	if h.broker.Pending() != 0 {
		t.Fatalf("Pending() = %d after Close", h.broker.Pending())
	}

	h.reply(t, 0, nil, "Play")
	if len(h.results) != 0 {
		t.Errorf("callback ran after Close: %+v", h.results)
	}
}
