package bus

import "github.com/godbus/dbus/v5"

// Bus daemon names.
const (
	DBusName          = "org.freedesktop.DBus"
	DBusPath          = dbus.ObjectPath("/org/freedesktop/DBus")
	DBusIface         = "org.freedesktop.DBus"
	NameOwnerChanged  = DBusIface + ".NameOwnerChanged"
	PropertiesIface   = "org.freedesktop.DBus.Properties"
	PropertiesGet     = PropertiesIface + ".Get"
	PropertiesSet     = PropertiesIface + ".Set"
	addMatchMethod    = DBusIface + ".AddMatch"
	removeMatchMethod = DBusIface + ".RemoveMatch"
)

// Playback manager surface, served on the session bus.
const (
	PlaybackManagerName  = "org.maemo.Playback.Manager"
	PlaybackManagerPath  = dbus.ObjectPath("/org/maemo/Playback/Manager")
	PlaybackManagerIface = "org.maemo.Playback.Manager"

	// PlaybackIface is implemented by every playback client object.
	PlaybackIface = "org.maemo.Playback"

	HelloSignal   = PlaybackIface + ".Hello"
	NotifySignal  = PropertiesIface + ".Notify"
	PrivacySignal = "PrivacyOverride"
	MuteSignal    = "Mute"

	RequestStateMethod    = "RequestState"
	RequestPrivacyMethod  = "RequestPrivacyOverride"
	RequestMuteMethod     = "RequestMute"
	GetAllowedStateMethod = "GetAllowedStates"

	ErrorFailed = "org.maemo.Error.Failed"
)

// Policy decision endpoint, on the system bus.
const (
	PolicyIface        = "com.nokia.policy"
	PolicyDecisionPath = dbus.ObjectPath("/com/nokia/policy/decision")
	PolicyInfoPath     = dbus.ObjectPath("/com/nokia/policy/info")
	StreamInfoSignal   = "stream_info"
	InfoSignal         = PolicyIface + ".info"
)

// Route manager surface, served on the system bus.
const (
	RouteManagerName  = "org.nemomobile.Route.Manager"
	RouteManagerPath  = dbus.ObjectPath("/org/nemomobile/Route/Manager")
	RouteManagerIface = "org.nemomobile.Route.Manager"

	RouteChangedSignal   = "AudioRouteChanged"
	FeatureChangedSignal = "AudioFeatureChanged"

	RouteErrorFailed  = "org.nemomobile.Error.Failed"
	RouteErrorDenied  = "org.nemomobile.Error.RequestDenied"
	RouteErrorUnknown = "org.nemomobile.Error.Unknown"
)

// Legacy BlueZ audio signals consumed by the accessory bridge.
const (
	AudioSinkIface       = "org.bluez.AudioSink"
	AudioSinkPropChanged = AudioSinkIface + ".PropertyChanged"
	AdapterIface         = "org.bluez.Adapter"
	AdapterDeviceRemoved = AdapterIface + ".DeviceRemoved"
)

// Standard error names used when a call cannot be routed.
const (
	ErrorUnknownMethod    = "org.freedesktop.DBus.Error.UnknownMethod"
	ErrorUnknownInterface = "org.freedesktop.DBus.Error.UnknownInterface"
	ErrorUnknownObject    = "org.freedesktop.DBus.Error.UnknownObject"
)
