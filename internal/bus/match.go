package bus

import (
	"fmt"
	"strings"

	"github.com/godbus/dbus/v5"
)

// MatchRule describes the subset of signals a filter wants delivered.
// Empty Sender, Interface, Member and Path are left out of the rule. Args
// are positional: Args[i] becomes arg<i>, and an empty string is kept,
// since arg2='' is how "name lost its owner" is expressed.
type MatchRule struct {
	Sender    string
	Interface string
	Member    string
	Path      dbus.ObjectPath
	Args      []string
}

// String renders the rule in the bus daemon's match rule syntax.
func (r MatchRule) String() string {
	parts := []string{"type='signal'"}
	tag := func(key, value string) {
		if value != "" {
			parts = append(parts, fmt.Sprintf("%s='%s'", key, value))
		}
	}
	tag("sender", r.Sender)
	tag("interface", r.Interface)
	tag("member", r.Member)
	tag("path", string(r.Path))
	for i, arg := range r.Args {
		parts = append(parts, fmt.Sprintf("arg%d='%s'", i, arg))
	}
	return strings.Join(parts, ",")
}

// ClientWatchRule matches NameOwnerChanged for busID losing its owner.
func ClientWatchRule(busID string) MatchRule {
	return MatchRule{
		Sender:    DBusName,
		Interface: DBusIface,
		Member:    "NameOwnerChanged",
		Path:      DBusPath,
		Args:      []string{busID, busID, ""},
	}
}
