// Package playback serves the playback manager interface. Validated state
// change requests are handed to a StateMachine, which owns their reply;
// every other path is answered here.
package playback

import (
	"log/slog"

	"github.com/godbus/dbus/v5"

	"github.com/mil-ad/policyd/internal/broker"
	"github.com/mil-ad/policyd/internal/bus"
	"github.com/mil-ad/policyd/internal/request"
	"github.com/mil-ad/policyd/internal/session"
)

// Event is a request delivered to a client's state machine.
type Event struct {
	Request *request.Request
}

// StateMachine consumes requests for a client session. It must answer
// ev.Request exactly once.
type StateMachine interface {
	ProcessEvent(client *session.Client, ev Event)
}

// Decisions answers the privacy override and mute requests.
type Decisions interface {
	RequestPrivacyOverride(enable bool) bool
	RequestMute(enable bool) bool
}

// Clients looks up live client sessions.
type Clients interface {
	Find(id session.Identity) (*session.Client, bool)
}

// Dispatcher validates inbound playback manager calls.
type Dispatcher struct {
	clients   Clients
	machine   StateMachine
	decisions Decisions
	logger    *slog.Logger
}

// NewDispatcher returns a dispatcher feeding machine.
func NewDispatcher(clients Clients, machine StateMachine, decisions Decisions, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{clients: clients, machine: machine, decisions: decisions, logger: logger}
}

// Methods returns the method table for bus.Handler.Export.
func (d *Dispatcher) Methods() map[string]bus.MethodFunc {
	return map[string]bus.MethodFunc{
		bus.RequestStateMethod:    d.requestState,
		bus.RequestPrivacyMethod:  d.requestPrivacy,
		bus.RequestMuteMethod:     d.requestMute,
		bus.GetAllowedStateMethod: d.getAllowed,
	}
}

// requestState accepts (o s s s) and the legacy (o s s). Trailing
// arguments are ignored, and a 4th argument that is not a string leaves the
// stream empty.
func (d *Dispatcher) requestState(call *bus.Call) {
	d.logger.Debug("received state change request", "sender", call.Sender)

	path, state, pid, stream, ok := stateArgs(call.Body)
	if !ok {
		call.Fail("", "failed to parse playback request for state change")
		return
	}
	client, ok := d.clients.Find(session.Identity{BusID: call.Sender, Path: path})
	if !ok {
		call.Fail("", session.ErrUnknownClient.Error())
		return
	}

	req := request.New(request.StateChange, call)
	req.Client = client
	req.State = state
	req.PID = pid
	req.Stream = stream
	d.logger.Debug("state change request", "request", req.ID, "client", client.Identity.String(), "state", state)
	d.machine.ProcessEvent(client, Event{Request: req})
}

func stateArgs(body []any) (path dbus.ObjectPath, state, pid, stream string, ok bool) {
	if len(body) < 3 {
		return "", "", "", "", false
	}
	if path, ok = body[0].(dbus.ObjectPath); !ok {
		return "", "", "", "", false
	}
	if state, ok = body[1].(string); !ok {
		return "", "", "", "", false
	}
	if pid, ok = body[2].(string); !ok {
		return "", "", "", "", false
	}
	if len(body) > 3 {
		stream, _ = body[3].(string)
	}
	return path, state, pid, stream, true
}

func (d *Dispatcher) requestPrivacy(call *bus.Call) {
	d.logger.Debug("received set privacy override", "sender", call.Sender)
	d.decide(call, request.PrivacyOverride, "failed to parse set privacy override message", d.decisions.RequestPrivacyOverride)
}

func (d *Dispatcher) requestMute(call *bus.Call) {
	d.logger.Debug("received set mute", "sender", call.Sender)
	d.decide(call, request.Mute, "failed to parse set mute message", d.decisions.RequestMute)
}

func (d *Dispatcher) decide(call *bus.Call, t request.Type, parseErr string, decide func(bool) bool) {
	flag, ok := boolArg(call.Body)
	if !ok {
		call.Fail("", parseErr)
		return
	}
	req := request.New(t, call)
	req.Flag = flag
	if decide(flag) {
		req.Reply()
		return
	}
	req.Fail(bus.ErrorFailed, "Policy error")
}

func boolArg(body []any) (bool, bool) {
	if len(body) != 1 {
		return false, false
	}
	b, ok := body[0].(bool)
	return b, ok
}

func (d *Dispatcher) getAllowed(call *bus.Call) {
	d.logger.Debug("received allowed state request", "sender", call.Sender)

	var path dbus.ObjectPath
	ok := len(call.Body) == 1
	if ok {
		path, ok = call.Body[0].(dbus.ObjectPath)
	}
	if !ok {
		call.Fail("", "failed to parse playback request for allowed state")
		return
	}
	client, ok := d.clients.Find(session.Identity{BusID: call.Sender, Path: path})
	if !ok {
		call.Fail("", session.ErrUnknownClient.Error())
		return
	}

	req := request.New(request.GetAllowed, call)
	req.Client = client
	states := []string{broker.StopState}
	if client.PlayHint != "" {
		states = broker.AllowedStates(client.PlayHint)
	}
	req.Reply(states)
}
