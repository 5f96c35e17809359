// Package lifecycle notices clients arriving with Hello and leaving when
// their bus name loses its owner.
package lifecycle

import (
	"log/slog"

	"github.com/godbus/dbus/v5"

	"github.com/mil-ad/policyd/internal/bus"
	"github.com/mil-ad/policyd/internal/session"
)

// Purger drops every client owned by a bus id.
type Purger interface {
	Purge(busID string) int
}

// HelloFunc is told about a client that announced itself.
type HelloFunc func(client session.Identity)

// Bridge handles NameOwnerChanged and Hello on the session bus.
type Bridge struct {
	purger Purger
	hello  HelloFunc
	logger *slog.Logger
}

// NewBridge returns a bridge purging through purger.
func NewBridge(purger Purger, logger *slog.Logger) *Bridge {
	return &Bridge{purger: purger, logger: logger}
}

// OnHello sets the callback for Hello announcements. A nil fn ignores them.
func (b *Bridge) OnHello(fn HelloFunc) {
	b.hello = fn
}

// Filters returns the session bus filters in the order they must be
// installed. The owner-changed filter carries no rule of its own: its
// signals arrive through the per-client watch rules, all of which exist
// before the matching client is registered.
func (b *Bridge) Filters() []bus.Filter {
	return []bus.Filter{
		{Name: "name_changed", Handle: b.HandleNameOwnerChanged},
		{
			Name:   "hello",
			Rule:   &bus.MatchRule{Interface: bus.PlaybackIface, Member: "Hello"},
			Handle: b.HandleHello,
		},
	}
}

// HandleNameOwnerChanged purges the clients of a name that lost its owner.
func (b *Bridge) HandleNameOwnerChanged(sig *dbus.Signal) bool {
	if sig.Name != bus.NameOwnerChanged {
		return false
	}
	if len(sig.Body) < 3 {
		return true
	}
	name, ok1 := sig.Body[0].(string)
	before, ok2 := sig.Body[1].(string)
	after, ok3 := sig.Body[2].(string)
	if !ok1 || !ok2 || !ok3 {
		return true
	}
	if before != "" && after == "" {
		n := b.purger.Purge(name)
		b.logger.Debug("client is gone", "bus_id", name, "purged", n)
	}
	return true
}

// HandleHello reports the announcing client.
func (b *Bridge) HandleHello(sig *dbus.Signal) bool {
	if sig.Name != bus.HelloSignal {
		return false
	}
	id := session.Identity{BusID: sig.Sender, Path: sig.Path}
	b.logger.Debug("hello", "client", id.String())
	if b.hello != nil {
		b.hello(id)
	}
	return true
}
