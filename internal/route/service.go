package route

import (
	"log/slog"

	"github.com/mil-ad/policyd/internal/bus"
	"github.com/mil-ad/policyd/internal/request"
)

// InterfaceVersion is reported by the InterfaceVersion method.
const InterfaceVersion uint32 = 3

// Method names of the route manager interface.
const (
	InterfaceVersionMethod = "InterfaceVersion"
	GetAllMethod           = "GetAll"
	GetAll3Method          = "GetAll3"
	EnableMethod           = "Enable"
	DisableMethod          = "Disable"
	FeaturesMethod         = "Features"
	FeaturesAllowedMethod  = "FeaturesAllowed"
	FeaturesEnabledMethod  = "FeaturesEnabled"
	RoutesMethod           = "Routes"
	AvailableRoutesMethod  = "AvailableRoutes"
	PreferMethod           = "Prefer"
)

// Decider makes the feature and routing decisions.
type Decider interface {
	FeatureRequest(name string, enable bool) Result
	PreferRequest(name string, t Type, set bool) Result
	Features() []Feature
	Routes() []Route
	ActiveRoutes() (sink, source Route, ok bool)
}

// Service answers route manager method calls.
type Service struct {
	decider Decider
	logger  *slog.Logger
}

// NewService returns a service backed by decider.
func NewService(decider Decider, logger *slog.Logger) *Service {
	return &Service{decider: decider, logger: logger}
}

// Methods returns the method table for bus.Handler.Export.
func (s *Service) Methods() map[string]bus.MethodFunc {
	return map[string]bus.MethodFunc{
		InterfaceVersionMethod: s.interfaceVersion,
		GetAllMethod:           func(call *bus.Call) { s.getAll(call, 1) },
		GetAll3Method:          func(call *bus.Call) { s.getAll(call, 3) },
		EnableMethod:           func(call *bus.Call) { s.setFeature(call, true) },
		DisableMethod:          func(call *bus.Call) { s.setFeature(call, false) },
		FeaturesMethod:         func(call *bus.Call) { s.featureList(call, false, false) },
		FeaturesAllowedMethod:  func(call *bus.Call) { s.featureList(call, true, false) },
		FeaturesEnabledMethod:  func(call *bus.Call) { s.featureList(call, false, true) },
		RoutesMethod:           func(call *bus.Call) { s.routes(call, 0) },
		AvailableRoutesMethod:  func(call *bus.Call) { s.routes(call, Available) },
		PreferMethod:           s.prefer,
	}
}

func (s *Service) interfaceVersion(call *bus.Call) {
	call.Return(InterfaceVersion)
}

func (s *Service) getAll(call *bus.Call, version int) {
	sink, source, ok := s.decider.ActiveRoutes()
	if !ok {
		call.Fail(bus.RouteErrorFailed, "Policy error")
		return
	}
	features := s.decider.Features()
	table := make([]wireFeature, 0, len(features))
	for _, f := range features {
		table = append(table, f.wire())
	}
	values := []any{sink.Name, uint32(sink.Type), source.Name, uint32(source.Type), table}
	if version >= 3 {
		values = append(values, wireRoutes(s.decider.Routes(), 0))
	}
	call.Return(values...)
}

func (s *Service) setFeature(call *bus.Call, enable bool) {
	req, ok := featureRequest(call, enable)
	if !ok {
		s.logger.Debug("malformed feature request", "enable", enable, "sender", call.Sender)
		call.Fail(bus.RouteErrorFailed, "Invalid message format")
		return
	}
	s.logger.Debug("feature request", "request", req.ID, "feature", req.Feature, "enable", enable)
	reply(req, s.decider.FeatureRequest(req.Feature, enable), "Unknown feature")
}

func featureRequest(call *bus.Call, enable bool) (*request.Request, bool) {
	name, ok := stringArg(call.Body)
	if !ok {
		return nil, false
	}
	t := request.FeatureDisable
	if enable {
		t = request.FeatureEnable
	}
	req := request.New(t, call)
	req.Feature = name
	return req, true
}

func (s *Service) prefer(call *bus.Call) {
	req, ok := preferRequest(call)
	if !ok {
		s.logger.Debug("malformed prefer request", "sender", call.Sender)
		call.Fail(bus.RouteErrorFailed, "Invalid message format")
		return
	}
	t := Type(req.RouteType)
	if t&Output == 0 {
		req.Fail(bus.RouteErrorFailed, "Bad type")
		return
	}
	s.logger.Debug("prefer request", "request", req.ID, "route", req.Route, "type", t.String(), "set", req.Set)
	reply(req, s.decider.PreferRequest(req.Route, t, req.Set), "Unknown route")
}

func preferRequest(call *bus.Call) (*request.Request, bool) {
	name, t, set, ok := preferArgs(call.Body)
	if !ok {
		return nil, false
	}
	req := request.New(request.Prefer, call)
	req.Route = name
	req.RouteType = uint32(t)
	req.Set = set
	return req, true
}

// reply maps a decision to one of the four reply shapes.
func reply(req *request.Request, r Result, unknown string) {
	switch r {
	case Success:
		req.Reply()
	case Unknown:
		req.Fail(bus.RouteErrorUnknown, unknown)
	case Denied:
		req.Fail(bus.RouteErrorDenied, "Operation not allowed at this time")
	case Error:
		req.Fail(bus.RouteErrorFailed, "Policy error")
	default:
		req.Fail(bus.RouteErrorFailed, "Unknown error")
	}
}

func (s *Service) featureList(call *bus.Call, allowed, enabled bool) {
	names := []string{}
	for _, f := range s.decider.Features() {
		if (allowed && f.Allowed) || (enabled && f.Enabled) || (!allowed && !enabled) {
			names = append(names, f.Name)
		}
	}
	call.Return(names)
}

func (s *Service) routes(call *bus.Call, filter Type) {
	call.Return(wireRoutes(s.decider.Routes(), filter))
}

func wireRoutes(routes []Route, filter Type) []wireRoute {
	out := []wireRoute{}
	for _, r := range routes {
		if filter != 0 && r.Type&filter == 0 {
			continue
		}
		out = append(out, r.wire())
	}
	return out
}

func stringArg(body []any) (string, bool) {
	if len(body) != 1 {
		return "", false
	}
	s, ok := body[0].(string)
	return s, ok
}

func preferArgs(body []any) (name string, t Type, set bool, ok bool) {
	if len(body) != 3 {
		return "", 0, false, false
	}
	name, ok1 := body[0].(string)
	typ, ok2 := body[1].(uint32)
	flag, ok3 := body[2].(uint32)
	if !ok1 || !ok2 || !ok3 {
		return "", 0, false, false
	}
	return name, Type(typ), flag != 0, true
}
