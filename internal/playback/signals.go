package playback

import (
	"log/slog"
	"strconv"

	"github.com/mil-ad/policyd/internal/bus"
)

const unknownStream = "<unknown>"

// Signals emits the playback manager's signals. Privacy override and mute
// go to session bus clients, stream info to the policy decision endpoint
// on the system bus.
type Signals struct {
	session bus.Emitter
	system  bus.Emitter
	logger  *slog.Logger
	txid    uint32
}

// NewSignals returns a signal sender.
func NewSignals(session, system bus.Emitter, logger *slog.Logger) *Signals {
	return &Signals{session: session, system: system, logger: logger, txid: 1}
}

// PrivacyOverrideChanged announces the privacy override state.
func (s *Signals) PrivacyOverrideChanged(enabled bool) {
	s.emitFlag(bus.PrivacySignal, enabled)
}

// MuteChanged announces the mute state.
func (s *Signals) MuteChanged(muted bool) {
	s.emitFlag(bus.MuteSignal, muted)
}

func (s *Signals) emitFlag(member string, value bool) {
	name := bus.PlaybackManagerIface + "." + member
	if err := s.session.Emit(bus.PlaybackManagerPath, name, value); err != nil {
		s.logger.Error("failed to send signal", "signal", member, "error", err)
		return
	}
	s.logger.Debug("signal sent", "signal", member, "value", value)
}

// StreamInfo tells the policy enforcement point about a stream. Nothing is
// sent unless pid is a non-zero decimal.
func (s *Signals) StreamInfo(oper, group, pid, stream string) {
	n, err := strconv.ParseUint(pid, 10, 32)
	if err != nil || n == 0 {
		s.logger.Error("invalid pid string", "pid", pid)
		return
	}
	if stream == "" {
		stream = unknownStream
	}
	name := bus.PolicyIface + "." + bus.StreamInfoSignal
	if err := s.system.Emit(bus.PolicyDecisionPath, name, s.txid, oper, group, uint32(n), stream); err != nil {
		s.logger.Error("failed to send stream info", "error", err)
		return
	}
	s.logger.Debug("stream info sent", "txid", s.txid, "operation", oper, "group", group, "pid", pid)
	s.txid++
}
