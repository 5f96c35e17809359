package bus

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/godbus/dbus/v5"
)

// Kind selects one of the two connections.
type Kind int

const (
	Session Kind = iota
	System
)

func (k Kind) String() string {
	if k == System {
		return "system"
	}
	return "session"
}

// Caller starts method calls on remote objects. The returned call's Done
// channel receives it exactly once, on success, error or timeout.
type Caller interface {
	Go(ctx context.Context, dest string, path dbus.ObjectPath, method string, args ...any) *dbus.Call
}

// Emitter sends signals. *dbus.Conn implements it.
type Emitter interface {
	Emit(path dbus.ObjectPath, name string, values ...any) error
}

// Manager owns the session and system bus connections, the signal filter
// chains and the well-known names this process holds.
type Manager struct {
	logger *slog.Logger

	conns   [2]*dbus.Conn
	routers [2]*Router
	signals [2]chan *dbus.Signal
	names   [2][]string
}

// Connect opens private connections to both buses. Inbound method calls on
// each bus go to its handler.
func Connect(logger *slog.Logger, sessionHandler, systemHandler *Handler) (*Manager, error) {
	session, err := dbus.ConnectSessionBus(dbus.WithHandler(sessionHandler))
	if err != nil {
		return nil, fmt.Errorf("connect to session bus: %w", err)
	}
	system, err := dbus.ConnectSystemBus(dbus.WithHandler(systemHandler))
	if err != nil {
		session.Close()
		return nil, fmt.Errorf("connect to system bus: %w", err)
	}

	m := &Manager{
		logger:  logger,
		conns:   [2]*dbus.Conn{session, system},
		routers: [2]*Router{{}, {}},
	}
	// Register the channels now so nothing matched before Listen is lost.
	for i, conn := range m.conns {
		m.signals[i] = make(chan *dbus.Signal, 64)
		conn.Signal(m.signals[i])
	}
	return m, nil
}

// Conn returns the connection for k.
func (m *Manager) Conn(k Kind) *dbus.Conn {
	return m.conns[k]
}

// AddFilter installs f's match rule, if any, and appends f to the filter
// chain of k. Filters must be added before Listen.
func (m *Manager) AddFilter(k Kind, f Filter) error {
	if f.Rule != nil {
		if err := m.addMatch(m.conns[k], *f.Rule); err != nil {
			return fmt.Errorf("add %s filter %q: %w", k, f.Name, err)
		}
	}
	m.routers[k].Add(f)
	m.logger.Debug("filter installed", "bus", k.String(), "filter", f.Name)
	return nil
}

// Claim requests name on k, replacing an existing owner. Anything short of
// primary ownership is an error.
func (m *Manager) Claim(k Kind, name string) error {
	reply, err := m.conns[k].RequestName(name, dbus.NameFlagReplaceExisting)
	if err != nil {
		return fmt.Errorf("request name %s: %w", name, err)
	}
	if reply != dbus.RequestNameReplyPrimaryOwner {
		return fmt.Errorf("can't be the primary owner for name %s (reply %d)", name, reply)
	}
	m.names[k] = append(m.names[k], name)
	m.logger.Info("got name", "bus", k.String(), "name", name)
	return nil
}

// Listen feeds signals from both connections through their filter chains
// on the event loop. It returns immediately.
func (m *Manager) Listen(poster Poster) {
	for i := range m.conns {
		go pump(m.signals[i], m.routers[i], poster)
	}
}

func pump(ch <-chan *dbus.Signal, router *Router, poster Poster) {
	for sig := range ch {
		sig := sig
		if !poster.Post(func() { router.Dispatch(sig) }) {
			return
		}
	}
}

// WatchClient arms NameOwnerChanged delivery for busID. It blocks until the
// bus daemon has the rule, so a client that dies right after announcing
// itself is still noticed.
func (m *Manager) WatchClient(busID string) error {
	rule := ClientWatchRule(busID)
	if err := m.addMatch(m.conns[Session], rule); err != nil {
		return fmt.Errorf("can't add match %q: %w", rule.String(), err)
	}
	return nil
}

// UnwatchClient drops the rule installed by WatchClient without waiting
// for the bus daemon.
func (m *Manager) UnwatchClient(busID string) {
	rule := ClientWatchRule(busID)
	// No reply is requested; a failed removal only leaves a stale rule.
	m.conns[Session].BusObject().Go(removeMatchMethod, dbus.FlagNoReplyExpected, nil, rule.String())
}

// Go issues an asynchronous method call on the session bus.
func (m *Manager) Go(ctx context.Context, dest string, path dbus.ObjectPath, method string, args ...any) *dbus.Call {
	obj := m.conns[Session].Object(dest, path)
	return obj.GoWithContext(ctx, method, 0, make(chan *dbus.Call, 1), args...)
}

func (m *Manager) addMatch(conn *dbus.Conn, rule MatchRule) error {
	return conn.BusObject().Call(addMatchMethod, 0, rule.String()).Err
}

// Close releases the claimed names and closes both connections.
func (m *Manager) Close() {
	for i, conn := range m.conns {
		for _, name := range m.names[i] {
			if _, err := conn.ReleaseName(name); err != nil {
				m.logger.Warn("release name", "name", name, "error", err)
			}
		}
		conn.Close()
	}
}
