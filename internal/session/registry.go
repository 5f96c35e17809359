// Package session keeps the manager-side record of every playback client
// that has announced itself, keyed by bus identity and object path.
package session

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/godbus/dbus/v5"
)

// ErrUnknownClient is returned for identities the registry does not hold.
var ErrUnknownClient = errors.New("unable to find playback object")

// Identity is the lookup key of a client. Both parts are required.
type Identity struct {
	BusID string
	Path  dbus.ObjectPath
}

func (id Identity) String() string {
	return id.BusID + string(id.Path)
}

// Client is one playback client session.
type Client struct {
	Identity

	// Class is the playback class reported by the client ("player", ...).
	Class string
	// State is the last state granted to or reported by the client.
	State string
	// PlayHint is the non-Stop state the client is currently allowed.
	PlayHint string
	PID      string
	Stream   string
	Created  time.Time
}

// Watcher arms and disarms client departure detection for a bus id.
type Watcher interface {
	WatchClient(busID string) error
	UnwatchClient(busID string)
}

// Registry holds live clients. It is not safe for concurrent use; all
// access happens on the event loop.
type Registry struct {
	logger  *slog.Logger
	watcher Watcher
	now     func() time.Time
	clients map[Identity]*Client
}

// NewRegistry returns an empty registry. watcher may be nil.
func NewRegistry(logger *slog.Logger, watcher Watcher) *Registry {
	return &Registry{
		logger:  logger,
		watcher: watcher,
		now:     time.Now,
		clients: make(map[Identity]*Client),
	}
}

// Find returns the client for id.
func (r *Registry) Find(id Identity) (*Client, bool) {
	c, ok := r.clients[id]
	return c, ok
}

// Create registers a client for id, or returns the existing one. The first
// client of a bus id arms the departure watch before it is registered.
func (r *Registry) Create(id Identity) (*Client, error) {
	if id.BusID == "" || id.Path == "" {
		return nil, fmt.Errorf("invalid client identity %q", id.String())
	}
	if c, ok := r.clients[id]; ok {
		return c, nil
	}
	if r.watcher != nil && !r.hasBusID(id.BusID) {
		if err := r.watcher.WatchClient(id.BusID); err != nil {
			return nil, fmt.Errorf("watch client %s: %w", id.BusID, err)
		}
	}
	c := &Client{Identity: id, Created: r.now()}
	r.clients[id] = c
	r.logger.Debug("client created", "client", id.String())
	return c, nil
}

// Purge removes every client owned by busID and returns how many were
// removed.
func (r *Registry) Purge(busID string) int {
	removed := 0
	for id := range r.clients {
		if id.BusID == busID {
			delete(r.clients, id)
			removed++
			r.logger.Debug("client purged", "client", id.String())
		}
	}
	if removed > 0 && r.watcher != nil {
		r.watcher.UnwatchClient(busID)
	}
	return removed
}

// Len reports the number of live clients.
func (r *Registry) Len() int {
	return len(r.clients)
}

// List returns the clients sorted by identity.
func (r *Registry) List() []*Client {
	list := make([]*Client, 0, len(r.clients))
	for _, c := range r.clients {
		list = append(list, c)
	}
	sort.Slice(list, func(i, j int) bool {
		return list[i].Identity.String() < list[j].Identity.String()
	})
	return list
}

func (r *Registry) hasBusID(busID string) bool {
	for id := range r.clients {
		if id.BusID == busID {
			return true
		}
	}
	return false
}
