package accessory

import (
	"log/slog"
	"strconv"

	"github.com/godbus/dbus/v5"

	"github.com/mil-ad/policyd/internal/bus"
)

// Bridge handles the system bus accessory signals.
type Bridge struct {
	differ   *Differ
	resolver Resolver
	logger   *slog.Logger
}

// NewBridge returns a bridge feeding differ and resolver.
func NewBridge(differ *Differ, resolver Resolver, logger *slog.Logger) *Bridge {
	return &Bridge{differ: differ, resolver: resolver, logger: logger}
}

// Filters returns the system bus filters of the bridge.
func (b *Bridge) Filters() []bus.Filter {
	return []bus.Filter{
		{
			Name:   "info",
			Rule:   &bus.MatchRule{Interface: bus.PolicyIface, Member: "info", Path: bus.PolicyInfoPath},
			Handle: b.HandleInfo,
		},
		{
			Name:   "a2dp",
			Rule:   &bus.MatchRule{Interface: bus.AudioSinkIface, Member: "PropertyChanged"},
			Handle: b.HandleA2DP,
		},
		{
			Name:   "device_removed",
			Rule:   &bus.MatchRule{Interface: bus.AdapterIface, Member: "DeviceRemoved"},
			Handle: b.HandleDeviceRemoved,
		},
	}
}

// HandleInfo parses `[key] value devices`: an optional "driver" or
// "connected" key, a 0 or 1 value for it (driver by default) and a list of
// device names. Each device is requested with the parsed values; anything
// unexpected ends parsing.
func (b *Bridge) HandleInfo(sig *dbus.Signal) bool {
	if sig.Name != bus.InfoSignal {
		return false
	}
	dev, ok := parseInfo(sig.Body)
	if !ok {
		b.logger.Debug("ignoring malformed info signal", "body", sig.Body)
		return true
	}
	for _, name := range dev.names {
		Request(b.resolver, b.logger, name, dev.driver, dev.connected)
	}
	return true
}

type infoDevices struct {
	driver    int
	connected int
	names     []string
}

func parseInfo(body []any) (infoDevices, bool) {
	info := infoDevices{driver: -1, connected: -1}
	target := &info.driver

	i := 0
	for ; ; i++ {
		if i >= len(body) {
			return info, false
		}
		s, ok := body[i].(string)
		if !ok {
			return info, false
		}
		switch s {
		case "driver":
			target = &info.driver
			continue
		case "connected":
			target = &info.connected
			continue
		}
		v, err := strconv.Atoi(s)
		if err != nil || (v != 0 && v != 1) {
			return info, false
		}
		*target = v
		break
	}

	if i+1 >= len(body) {
		return info, false
	}
	names, ok := body[i+1].([]string)
	if !ok {
		return info, false
	}
	info.names = names
	return info, true
}

// HandleA2DP follows the Connected property of Bluetooth audio sinks.
func (b *Bridge) HandleA2DP(sig *dbus.Signal) bool {
	if sig.Name != bus.AudioSinkPropChanged {
		return false
	}
	if len(sig.Body) < 2 {
		return true
	}
	if name, ok := sig.Body[0].(string); !ok || name != "Connected" {
		return true
	}
	v, ok := sig.Body[1].(dbus.Variant)
	if !ok {
		return true
	}
	connected, ok := v.Value().(bool)
	if !ok {
		return true
	}
	b.logger.Debug("a2dp connection changed", "device", sig.Path, "connected", connected)
	b.differ.A2DP(connected)
	return true
}

// HandleDeviceRemoved treats a removed adapter device as a disconnected
// audio sink.
func (b *Bridge) HandleDeviceRemoved(sig *dbus.Signal) bool {
	if sig.Name != bus.AdapterDeviceRemoved {
		return false
	}
	if len(sig.Body) < 1 {
		return true
	}
	if _, ok := sig.Body[0].(dbus.ObjectPath); !ok {
		return true
	}
	b.differ.A2DP(false)
	return true
}
