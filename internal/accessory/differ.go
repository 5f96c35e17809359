// Package accessory turns accessory events into accessory_request goals.
// Jack and A2DP events are diffed against the last known presence so that
// repeated events resolve nothing; info signals are passed straight on.
package accessory

import (
	"log/slog"
	"strings"

	"github.com/mil-ad/policyd/internal/policy"
)

// Accessory names used as accessory_name.
const (
	Headset    = "headset"
	Headmike   = "headmike"
	Headphones = "headphones"
	BTA2DP     = "bta2dp"
)

// Resolver runs policy goals.
type Resolver interface {
	Resolve(goal string, vars []policy.Var) error
}

// Presence is the last known connection state per accessory class.
type Presence struct {
	Headset    bool `json:"headset"`
	Headmike   bool `json:"headmike"`
	Headphones bool `json:"headphones"`
	A2DP       bool `json:"bta2dp"`
}

// jack returns the wired classification, "" when nothing is plugged in.
func (p Presence) jack() string {
	switch {
	case p.Headset:
		return Headset
	case p.Headmike:
		return Headmike
	case p.Headphones:
		return Headphones
	}
	return ""
}

// Differ tracks Presence and issues requests on changes only. It is not
// safe for concurrent use.
type Differ struct {
	resolver Resolver
	logger   *slog.Logger
	presence Presence
}

// NewDiffer returns a differ with nothing connected.
func NewDiffer(resolver Resolver, logger *slog.Logger) *Differ {
	return &Differ{resolver: resolver, logger: logger}
}

// Presence returns the current snapshot.
func (d *Differ) Presence() Presence {
	return d.presence
}

// Jack applies a backslash separated jack capability string, for example
// `headphone\microphone`. It reports whether the classification changed.
func (d *Differ) Jack(capabilities string) bool {
	var mic, phones bool
	for _, c := range strings.Split(capabilities, `\`) {
		switch c {
		case "headphone":
			phones = true
		case "microphone":
			mic = true
		}
	}

	next := ""
	switch {
	case mic && phones:
		next = Headset
	case mic:
		next = Headmike
	case phones:
		next = Headphones
	}
	prev := d.presence.jack()
	if next == prev {
		return false
	}

	if next != "" {
		d.request(next, -1, 1)
	}
	if prev != "" {
		d.request(prev, -1, 0)
	}
	d.presence.Headset = next == Headset
	d.presence.Headmike = next == Headmike
	d.presence.Headphones = next == Headphones
	return true
}

// A2DP applies a Bluetooth audio sink connection change. It reports
// whether presence changed.
func (d *Differ) A2DP(connected bool) bool {
	if d.presence.A2DP == connected {
		return false
	}
	d.presence.A2DP = connected
	d.request(BTA2DP, -1, boolInt(connected))
	return true
}

func (d *Differ) request(name string, driver, connected int) {
	Request(d.resolver, d.logger, name, driver, connected)
}

// Request resolves accessory_request for one device. Failures are logged.
func Request(resolver Resolver, logger *slog.Logger, name string, driver, connected int) bool {
	vars := []policy.Var{
		policy.String("accessory_name", name),
		policy.Int("accessory_driver", driver),
		policy.Int("accessory_connected", connected),
	}
	if err := resolver.Resolve(policy.AccessoryRequest, vars); err != nil {
		logger.Warn("resolving failed", "goal", policy.AccessoryRequest, "accessory", name, "error", err)
		return false
	}
	logger.Debug("accessory request", "accessory", name, "driver", driver, "connected", connected)
	return true
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
