package policy

import (
	"fmt"
	"log/slog"

	"github.com/mil-ad/policyd/internal/route"
)

// Config seeds an Engine.
type Config struct {
	Features            []route.Feature
	Routes              []route.Route
	DeniedStates        []string
	LockPrivacyOverride bool
	LockMute            bool
}

// Accessory is the last reported state of one accessory. -1 means the
// value was never reported.
type Accessory struct {
	Driver    int `json:"driver"`
	Connected int `json:"connected"`
}

// Snapshot is a point-in-time view of the engine's facts.
type Snapshot struct {
	PrivacyOverride bool                 `json:"privacy_override"`
	Mute            bool                 `json:"mute"`
	ActiveSink      string               `json:"active_sink"`
	ActiveSource    string               `json:"active_source"`
	Accessories     map[string]Accessory `json:"accessories"`
}

// Engine is the default policy. It is not safe for concurrent use; the
// daemon drives it from the event loop.
type Engine struct {
	logger *slog.Logger

	features    []route.Feature
	routes      []route.Route
	denied      map[string]bool
	lockPrivacy bool
	lockMute    bool

	privacy     bool
	mute        bool
	accessories map[string]Accessory
	preferred   map[route.Type]string
	active      map[route.Type]string

	onPrivacy func(bool)
	onMute    func(bool)
	onRoute   func(route.Route)
	onFeature func(route.Feature)
}

// NewEngine returns an engine seeded from cfg.
func NewEngine(cfg Config, logger *slog.Logger) *Engine {
	e := &Engine{
		logger:      logger,
		features:    append([]route.Feature(nil), cfg.Features...),
		routes:      append([]route.Route(nil), cfg.Routes...),
		denied:      make(map[string]bool, len(cfg.DeniedStates)),
		lockPrivacy: cfg.LockPrivacyOverride,
		lockMute:    cfg.LockMute,
		accessories: make(map[string]Accessory),
		preferred:   make(map[route.Type]string),
		active:      make(map[route.Type]string),
	}
	for _, s := range cfg.DeniedStates {
		e.denied[s] = true
	}
	for i := range e.routes {
		e.routes[i].Type &^= route.Preferred | route.Active
	}
	e.selectRoutes()
	return e
}

// OnPrivacyOverride sets the hook run when the privacy override changes.
func (e *Engine) OnPrivacyOverride(fn func(bool)) { e.onPrivacy = fn }

// OnMute sets the hook run when mute changes.
func (e *Engine) OnMute(fn func(bool)) { e.onMute = fn }

// OnRouteChanged sets the hook run when the active sink or source changes.
func (e *Engine) OnRouteChanged(fn func(route.Route)) { e.onRoute = fn }

// OnFeatureChanged sets the hook run when a feature is switched.
func (e *Engine) OnFeatureChanged(fn func(route.Feature)) { e.onFeature = fn }

// Resolve runs goal with vars.
func (e *Engine) Resolve(goal string, vars []Var) error {
	e.logger.Debug("resolve", "goal", goal, "vars", vars)
	m := indexVars(vars)
	switch goal {
	case AccessoryRequest:
		return e.accessoryRequest(m)
	case PlaybackRequest:
		return e.playbackRequest(m)
	default:
		return fmt.Errorf("%w: %s", ErrUnknownGoal, goal)
	}
}

func (e *Engine) accessoryRequest(m Vars) error {
	name, err := m.stringVar("accessory_name")
	if err != nil {
		return err
	}
	driver, err := m.intVar("accessory_driver")
	if err != nil {
		return err
	}
	connected, err := m.intVar("accessory_connected")
	if err != nil {
		return err
	}

	e.accessories[name] = Accessory{Driver: driver, Connected: connected}
	if connected != 0 && connected != 1 {
		return nil
	}
	for i := range e.routes {
		if e.routes[i].Name != name {
			continue
		}
		if connected == 1 {
			e.routes[i].Type |= route.Available
		} else {
			e.routes[i].Type &^= route.Available
		}
	}
	e.reselect()
	return nil
}

func (e *Engine) playbackRequest(m Vars) error {
	state, err := m.stringVar("state")
	if err != nil {
		return err
	}
	for _, name := range []string{"pid", "stream", "group"} {
		if _, err := m.stringVar(name); err != nil {
			return err
		}
	}
	if e.denied[state] {
		return fmt.Errorf("%w: state %s", ErrDenied, state)
	}
	return nil
}

// AllowedHint is the non-Stop state clients may currently enter.
func (e *Engine) AllowedHint() string {
	if e.denied["Play"] {
		return "Stop"
	}
	return "Play"
}

// RequestPrivacyOverride switches the privacy override unless it is locked.
func (e *Engine) RequestPrivacyOverride(enable bool) bool {
	return e.toggle(&e.privacy, e.lockPrivacy, enable, e.onPrivacy)
}

// RequestMute switches mute unless it is locked.
func (e *Engine) RequestMute(enable bool) bool {
	return e.toggle(&e.mute, e.lockMute, enable, e.onMute)
}

func (e *Engine) toggle(flag *bool, locked, value bool, hook func(bool)) bool {
	if locked {
		return false
	}
	if *flag == value {
		return true
	}
	*flag = value
	if hook != nil {
		hook(value)
	}
	return true
}

// FeatureRequest switches a feature on or off.
func (e *Engine) FeatureRequest(name string, enable bool) route.Result {
	for i := range e.features {
		f := &e.features[i]
		if f.Name != name {
			continue
		}
		if !f.Allowed {
			return route.Denied
		}
		if f.Enabled != enable {
			f.Enabled = enable
			if e.onFeature != nil {
				e.onFeature(*f)
			}
		}
		return route.Success
	}
	return route.Unknown
}

// PreferRequest sets or clears name as the preferred route for the
// directions in t.
func (e *Engine) PreferRequest(name string, t route.Type, set bool) route.Result {
	r, ok := e.find(name)
	if !ok {
		return route.Unknown
	}
	dirs := r.Type & t & route.Direction
	if dirs == 0 {
		return route.Denied
	}
	if set && !r.Type.Has(route.Available) {
		return route.Denied
	}
	for _, dir := range []route.Type{route.Output, route.Input} {
		if dirs&dir == 0 {
			continue
		}
		if set {
			e.preferred[dir] = name
		} else if e.preferred[dir] == name {
			delete(e.preferred, dir)
		}
	}
	e.reselect()
	return route.Success
}

// Features returns the feature table.
func (e *Engine) Features() []route.Feature {
	return append([]route.Feature(nil), e.features...)
}

// Routes returns every route with its preferred and active bits filled in.
func (e *Engine) Routes() []route.Route {
	out := make([]route.Route, len(e.routes))
	for i, r := range e.routes {
		out[i] = e.decorate(r)
	}
	return out
}

// ActiveRoutes returns the selected sink and source. ok is false unless
// both are selected.
func (e *Engine) ActiveRoutes() (sink, source route.Route, ok bool) {
	sinkName, ok1 := e.active[route.Output]
	sourceName, ok2 := e.active[route.Input]
	if !ok1 || !ok2 {
		return route.Route{}, route.Route{}, false
	}
	sink, _ = e.find(sinkName)
	source, _ = e.find(sourceName)
	return e.decorate(sink), e.decorate(source), true
}

// Snapshot returns the current facts.
func (e *Engine) Snapshot() Snapshot {
	acc := make(map[string]Accessory, len(e.accessories))
	for k, v := range e.accessories {
		acc[k] = v
	}
	return Snapshot{
		PrivacyOverride: e.privacy,
		Mute:            e.mute,
		ActiveSink:      e.active[route.Output],
		ActiveSource:    e.active[route.Input],
		Accessories:     acc,
	}
}

func (e *Engine) find(name string) (route.Route, bool) {
	for _, r := range e.routes {
		if r.Name == name {
			return r, true
		}
	}
	return route.Route{}, false
}

func (e *Engine) decorate(r route.Route) route.Route {
	for _, dir := range []route.Type{route.Output, route.Input} {
		if r.Type&dir == 0 {
			continue
		}
		if e.preferred[dir] == r.Name {
			r.Type |= route.Preferred
		}
		if e.active[dir] == r.Name {
			r.Type |= route.Active
		}
	}
	return r
}

// reselect picks the active routes again and reports changes.
func (e *Engine) reselect() {
	before := map[route.Type]string{route.Output: e.active[route.Output], route.Input: e.active[route.Input]}
	e.selectRoutes()
	for _, dir := range []route.Type{route.Output, route.Input} {
		name, ok := e.active[dir]
		if !ok || name == before[dir] {
			continue
		}
		r, _ := e.find(name)
		e.logger.Info("active route changed", "route", name, "type", r.Type.String())
		if e.onRoute != nil {
			e.onRoute(e.decorate(r))
		}
	}
}

func (e *Engine) selectRoutes() {
	for _, dir := range []route.Type{route.Output, route.Input} {
		delete(e.active, dir)
		if name, ok := e.preferred[dir]; ok {
			if r, found := e.find(name); found && r.Type.Has(route.Available) {
				e.active[dir] = name
				continue
			}
		}
		for _, r := range e.routes {
			if r.Type&dir != 0 && r.Type.Has(route.Available) {
				e.active[dir] = r.Name
				break
			}
		}
	}
}
