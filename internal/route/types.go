// Package route serves the route manager interface: audio features that
// clients may switch on and off, and the routes the policy may select.
package route

import (
	"fmt"
	"strings"
)

// Type is the bit set describing a route.
type Type uint32

const (
	Output Type = 1 << iota
	Input
	Builtin
	Wired
	Wireless
	Bluetooth

	Available Type = 1 << 23
	Preferred Type = 1 << 24
	Active    Type = 1 << 25
)

// Direction masks the bits a Prefer request must carry.
const Direction = Output | Input

var typeNames = []struct {
	bit  Type
	name string
}{
	{Output, "output"},
	{Input, "input"},
	{Builtin, "builtin"},
	{Wired, "wired"},
	{Wireless, "wireless"},
	{Bluetooth, "bluetooth"},
	{Available, "available"},
	{Preferred, "preferred"},
	{Active, "active"},
}

// ParseType builds a Type from flag names.
func ParseType(names []string) (Type, error) {
	var t Type
	for _, n := range names {
		bit, ok := lookupType(strings.ToLower(strings.TrimSpace(n)))
		if !ok {
			return 0, fmt.Errorf("unknown route type flag %q", n)
		}
		t |= bit
	}
	return t, nil
}

func lookupType(name string) (Type, bool) {
	for _, tn := range typeNames {
		if tn.name == name {
			return tn.bit, true
		}
	}
	return 0, false
}

// Has reports whether every bit of mask is set.
func (t Type) Has(mask Type) bool {
	return t&mask == mask
}

func (t Type) String() string {
	var parts []string
	for _, tn := range typeNames {
		if t&tn.bit != 0 {
			parts = append(parts, tn.name)
		}
	}
	if len(parts) == 0 {
		return "unknown"
	}
	return strings.Join(parts, "|")
}

// Feature is a switchable audio feature.
type Feature struct {
	Name    string
	Allowed bool
	Enabled bool
}

// Route is a sink or source the policy can select.
type Route struct {
	Name string
	Type Type
}

// Result is the outcome of a feature or prefer decision.
type Result int

const (
	Success Result = iota
	Unknown
	Denied
	Error
)

// Wire forms of the structures returned by the route manager.

type wireFeature struct {
	Name    string
	Allowed uint32
	Enabled uint32
}

type wireRoute struct {
	Name string
	Type uint32
}

func boolWord(b bool) uint32 {
	if b {
		return 1
	}
	return 0
}

func (f Feature) wire() wireFeature {
	return wireFeature{Name: f.Name, Allowed: boolWord(f.Allowed), Enabled: boolWord(f.Enabled)}
}

func (r Route) wire() wireRoute {
	return wireRoute{Name: r.Name, Type: uint32(r.Type)}
}
