// Package notify maps property names to the callbacks that consume their
// change notifications.
package notify

import (
	"sort"

	"github.com/mil-ad/policyd/internal/session"
)

// Callback receives a property change from a known client.
type Callback func(client session.Identity, property, value string)

// Registry is keyed by property name. The zero value is ready to use. It is
// not safe for concurrent use.
type Registry struct {
	entries map[string]Callback
}

func (r *Registry) init() {
	if r.entries == nil {
		r.entries = make(map[string]Callback)
	}
}

// Register sets the callback for property, replacing any earlier one.
func (r *Registry) Register(property string, callback Callback) {
	r.init()
	r.entries[property] = callback
}

// Find returns the callback registered for property.
func (r *Registry) Find(property string) (Callback, bool) {
	r.init()
	cb, ok := r.entries[property]
	return cb, ok
}

// Dispatch runs the callback for property, if any, and reports whether one
// ran.
func (r *Registry) Dispatch(property string, client session.Identity, value string) bool {
	cb, ok := r.Find(property)
	if !ok || cb == nil {
		return false
	}
	cb(client, property, value)
	return true
}

// Names returns the registered property names in sorted order.
func (r *Registry) Names() []string {
	r.init()
	names := make([]string, 0, len(r.entries))
	for name := range r.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Len reports the number of registered names.
func (r *Registry) Len() int {
	return len(r.entries)
}

// Reset drops every registration.
func (r *Registry) Reset() {
	r.entries = nil
}
