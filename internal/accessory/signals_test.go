package accessory

import (
	"reflect"
	"testing"

	"github.com/godbus/dbus/v5"

	"github.com/mil-ad/policyd/internal/bus"
)

func newBridge() (*Bridge, *fakeResolver) {
	r := &fakeResolver{}
	return NewBridge(NewDiffer(r, testLogger()), r, testLogger()), r
}

func TestInfo(t *testing.T) {
	tests := []struct {
		name string
		body []any
		want []string
	}{
		{"bare value", []any{"1", []string{"fmtx"}}, []string{"fmtx 1 -1"}},
		{"driver", []any{"driver", "0", []string{"tvout", "fmtx"}}, []string{"tvout 0 -1", "fmtx 0 -1"}},
		{"connected", []any{"connected", "1", []string{"headset"}}, []string{"headset -1 1"}},
		{"bad value", []any{"connected", "2", []string{"headset"}}, nil},
		{"no devices", []any{"connected", "1"}, nil},
		{"not a list", []any{"connected", "1", "headset"}, nil},
		{"not a string", []any{uint32(1), []string{"headset"}}, nil},
		{"empty", nil, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, r := newBridge()
			sig := &dbus.Signal{Name: bus.InfoSignal, Path: bus.PolicyInfoPath, Body: tt.body}
			if !b.HandleInfo(sig) {
				t.Fatal("info signal not claimed")
			}
			if got := r.take(); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("requests = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestA2DPPropertyChanged(t *testing.T) {
	b, r := newBridge()
	changed := func(name string, v any) *dbus.Signal {
		return &dbus.Signal{Name: bus.AudioSinkPropChanged, Path: "/org/bluez/hci0/dev_00", Body: []any{name, dbus.MakeVariant(v)}}
	}
	b.HandleA2DP(changed("Connected", true))
	b.HandleA2DP(changed("Playing", false))
	b.HandleA2DP(changed("Connected", "yes"))
	b.HandleDeviceRemoved(&dbus.Signal{Name: bus.AdapterDeviceRemoved, Body: []any{dbus.ObjectPath("/org/bluez/hci0/dev_00")}})
	b.HandleDeviceRemoved(&dbus.Signal{Name: bus.AdapterDeviceRemoved, Body: []any{dbus.ObjectPath("/org/bluez/hci0/dev_00")}})

	if got, want := r.take(), []string{"bta2dp -1 1", "bta2dp -1 0"}; !reflect.DeepEqual(got, want) {
		t.Errorf("requests = %v, want %v", got, want)
	}
}

func TestBridgeIgnoresOtherSignals(t *testing.T) {
	b, _ := newBridge()
	other := &dbus.Signal{Name: "org.example.Other"}
	if b.HandleInfo(other) || b.HandleA2DP(other) || b.HandleDeviceRemoved(other) {
		t.Error("claimed a foreign signal")
	}
	if n := len(b.Filters()); n != 3 {
		t.Errorf("%d filters", n)
	}
}
