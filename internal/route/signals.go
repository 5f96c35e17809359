package route

import (
	"log/slog"

	"github.com/mil-ad/policyd/internal/bus"
)

// Signals emits route manager signals.
type Signals struct {
	emitter bus.Emitter
	logger  *slog.Logger
}

// NewSignals returns a signal sender writing to emitter.
func NewSignals(emitter bus.Emitter, logger *slog.Logger) *Signals {
	return &Signals{emitter: emitter, logger: logger}
}

// RouteChanged announces a new active route.
func (s *Signals) RouteChanged(r Route) {
	name := bus.RouteManagerIface + "." + bus.RouteChangedSignal
	if err := s.emitter.Emit(bus.RouteManagerPath, name, r.Name, uint32(r.Type)); err != nil {
		s.logger.Error("failed to send route signal", "route", r.Name, "error", err)
		return
	}
	s.logger.Debug("route changed", "route", r.Name, "type", r.Type.String())
}

// FeatureChanged announces a change to f.
func (s *Signals) FeatureChanged(f Feature) {
	w := f.wire()
	name := bus.RouteManagerIface + "." + bus.FeatureChangedSignal
	if err := s.emitter.Emit(bus.RouteManagerPath, name, w.Name, w.Allowed, w.Enabled); err != nil {
		s.logger.Error("failed to send feature signal", "feature", f.Name, "error", err)
		return
	}
	s.logger.Debug("feature changed", "feature", f.Name, "allowed", f.Allowed, "enabled", f.Enabled)
}
