package notify

import (
	"log/slog"

	"github.com/godbus/dbus/v5"

	"github.com/mil-ad/policyd/internal/bus"
	"github.com/mil-ad/policyd/internal/session"
)

// Clients looks up live client sessions.
type Clients interface {
	Find(id session.Identity) (*session.Client, bool)
}

// Listener turns Properties.Notify signals from known clients into registry
// dispatches.
type Listener struct {
	registry *Registry
	clients  Clients
	logger   *slog.Logger
}

// NewListener returns a listener feeding registry.
func NewListener(registry *Registry, clients Clients, logger *slog.Logger) *Listener {
	return &Listener{registry: registry, clients: clients, logger: logger}
}

// Filter returns the session bus filter for Notify signals.
func (l *Listener) Filter() bus.Filter {
	return bus.Filter{
		Name:   "notify",
		Rule:   &bus.MatchRule{Interface: bus.PropertiesIface, Member: "Notify"},
		Handle: l.Handle,
	}
}

// Handle claims every Notify signal. Signals from unknown clients, for
// other interfaces or with the wrong arguments are dropped.
func (l *Listener) Handle(sig *dbus.Signal) bool {
	if sig.Name != bus.NotifySignal {
		return false
	}
	id := session.Identity{BusID: sig.Sender, Path: sig.Path}
	if _, ok := l.clients.Find(id); !ok {
		return true
	}

	iface, property, value, ok := notifyArgs(sig.Body)
	if !ok {
		l.logger.Error("malformed Notify", "client", id.String(), "body", sig.Body)
		return true
	}
	if iface != bus.PlaybackIface {
		return true
	}
	l.logger.Debug("property notified", "client", id.String(), "property", property, "value", value)
	l.registry.Dispatch(property, id, value)
	return true
}

func notifyArgs(body []any) (iface, property, value string, ok bool) {
	if len(body) != 3 {
		return "", "", "", false
	}
	s := [3]string{}
	for i, arg := range body {
		if s[i], ok = arg.(string); !ok {
			return "", "", "", false
		}
	}
	return s[0], s[1], s[2], true
}
