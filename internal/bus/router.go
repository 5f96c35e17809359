package bus

import "github.com/godbus/dbus/v5"

// SignalFunc handles one signal on the event loop. It reports whether the
// signal was meant for it; the router stops at the first filter that does.
type SignalFunc func(sig *dbus.Signal) bool

// Filter pairs a signal handler with the match rule that makes the bus
// deliver its signals. A nil Rule installs no bus-side match, for signals
// that are matched elsewhere (per-client rules, for example).
type Filter struct {
	Name   string
	Rule   *MatchRule
	Handle SignalFunc
}

// Router hands signals to filters in installation order.
type Router struct {
	filters []Filter
}

// Add appends f to the filter chain.
func (r *Router) Add(f Filter) {
	r.filters = append(r.filters, f)
}

// Dispatch runs sig through the chain and reports whether any filter
// handled it.
func (r *Router) Dispatch(sig *dbus.Signal) bool {
	for _, f := range r.filters {
		if f.Handle(sig) {
			return true
		}
	}
	return false
}

// Len reports the number of installed filters.
func (r *Router) Len() int {
	return len(r.filters)
}
