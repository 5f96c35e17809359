package playback

import (
	"log/slog"

	"github.com/mil-ad/policyd/internal/broker"
	"github.com/mil-ad/policyd/internal/bus"
	"github.com/mil-ad/policyd/internal/notify"
	"github.com/mil-ad/policyd/internal/policy"
	"github.com/mil-ad/policyd/internal/request"
	"github.com/mil-ad/policyd/internal/session"
)

// Client properties the machine reads and writes.
const (
	ClassProperty = "Class"
	StateProperty = "State"
)

// Properties issues asynchronous property calls to clients.
type Properties interface {
	Get(client session.Identity, property string, callback broker.Callback)
	Set(client session.Identity, property, value string, callback broker.Callback)
}

// Resolver decides playback requests.
type Resolver interface {
	Resolve(goal string, vars []policy.Var) error
	AllowedHint() string
}

// StreamNotifier reports granted streams.
type StreamNotifier interface {
	StreamInfo(oper, group, pid, stream string)
}

// Sessions creates and finds client sessions.
type Sessions interface {
	Create(id session.Identity) (*session.Client, error)
	Find(id session.Identity) (*session.Client, bool)
}

// Machine is the default StateMachine. A granted state change is answered
// with the granted state and then pushed to the client as its State
// property, followed by the client's allowed states.
type Machine struct {
	sessions Sessions
	props    Properties
	resolver Resolver
	streams  StreamNotifier
	logger   *slog.Logger
}

// NewMachine returns a state machine.
func NewMachine(sessions Sessions, props Properties, resolver Resolver, streams StreamNotifier, logger *slog.Logger) *Machine {
	return &Machine{
		sessions: sessions,
		props:    props,
		resolver: resolver,
		streams:  streams,
		logger:   logger,
	}
}

// Hello creates a session for a client that announced itself and reads its
// class and state.
func (m *Machine) Hello(id session.Identity) {
	client, err := m.sessions.Create(id)
	if err != nil {
		m.logger.Error("failed to create client", "client", id.String(), "error", err)
		return
	}
	m.props.Get(id, ClassProperty, m.received)
	m.props.Get(id, StateProperty, m.received)
	m.PushAllowed(client)
}

// WatchProperties subscribes the machine to client property changes.
func (m *Machine) WatchProperties(r *notify.Registry) {
	r.Register(ClassProperty, m.notified)
	r.Register(StateProperty, m.notified)
}

// ProcessEvent implements StateMachine.
func (m *Machine) ProcessEvent(client *session.Client, ev Event) {
	req := ev.Request
	switch req.Type {
	case request.StateChange:
		m.stateChange(client, req)
	default:
		m.logger.Warn("unexpected request", "request", req.ID, "type", req.Type.String())
		req.Fail(bus.ErrorFailed, "unsupported request")
	}
}

func (m *Machine) stateChange(client *session.Client, req *request.Request) {
	vars := []policy.Var{
		policy.String("state", req.State),
		policy.String("pid", req.PID),
		policy.String("stream", req.Stream),
		policy.String("group", client.Class),
	}
	if err := m.resolver.Resolve(policy.PlaybackRequest, vars); err != nil {
		m.logger.Info("playback request refused",
			"request", req.ID, "client", client.Identity.String(), "state", req.State, "error", err)
		req.Fail(bus.ErrorFailed, "Policy error")
		return
	}

	client.State = req.State
	client.PID = req.PID
	client.Stream = req.Stream
	req.Reply(req.State)
	m.logger.Debug("playback request granted", "request", req.ID, "client", client.Identity.String(), "state", req.State)

	oper := "register"
	if req.State == broker.StopState {
		oper = "unregister"
	}
	m.streams.StreamInfo(oper, client.Class, req.PID, req.Stream)
	m.props.Set(client.Identity, StateProperty, req.State, m.stored)
	m.PushAllowed(client)
}

// PushAllowed sends the client its allowed states if the hint changed.
func (m *Machine) PushAllowed(client *session.Client) {
	hint := m.resolver.AllowedHint()
	if client.PlayHint == hint {
		return
	}
	client.PlayHint = hint
	m.props.Set(client.Identity, broker.AllowedStateProperty, hint, m.stored)
}

func (m *Machine) received(r broker.Result) {
	if r.Err != nil {
		m.logger.Warn("property receiving failed", "client", r.Client.String(), "property", r.Property, "error", r.Err)
		return
	}
	m.update(r.Client, r.Property, r.Value)
}

func (m *Machine) notified(id session.Identity, property, value string) {
	m.update(id, property, value)
}

func (m *Machine) update(id session.Identity, property, value string) {
	client, ok := m.sessions.Find(id)
	if !ok {
		return
	}
	switch property {
	case ClassProperty:
		client.Class = value
	case StateProperty:
		client.State = value
	}
	m.logger.Debug("client property", "client", id.String(), "property", property, "value", value)
}

func (m *Machine) stored(r broker.Result) {
	if r.Err != nil {
		m.logger.Warn("property setting failed",
			"client", r.Client.String(), "property", r.Property, "value", r.Value, "error", r.Err)
		return
	}
	m.logger.Debug("property set", "client", r.Client.String(), "property", r.Property, "value", r.Value)
}
