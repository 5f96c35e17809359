// Package broker issues asynchronous property get and set calls to
// playback clients and hands each completion back to the issuer's
// callback on the event loop.
//
// Every issued call owns one pending context until its completion has been
// processed. The context is released on every path: success, remote
// error, malformed reply and client gone.
package broker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/godbus/dbus/v5"

	"github.com/mil-ad/policyd/internal/bus"
	"github.com/mil-ad/policyd/internal/session"
)

// DefaultSetTimeout bounds property set calls.
const DefaultSetTimeout = time.Second

// AllowedStateProperty is sent as a list, see AllowedStates.
const AllowedStateProperty = "AllowedState"

// ErrMalformedReply marks a reply that lacks the expected string argument.
var ErrMalformedReply = errors.New("malformed property reply")

// Clients looks up live client sessions.
type Clients interface {
	Find(id session.Identity) (*session.Client, bool)
}

// Result is delivered to a Callback when a call completes. Err is set when
// the client answered with an error or the call timed out.
type Result struct {
	Client   session.Identity
	Property string
	Value    string
	Err      error
}

// ErrorName returns the bus error name of a failed call, if it has one.
func (r Result) ErrorName() string {
	var byValue dbus.Error
	if errors.As(r.Err, &byValue) {
		return byValue.Name
	}
	var byPointer *dbus.Error
	if errors.As(r.Err, &byPointer) {
		return byPointer.Name
	}
	return ""
}

// Callback receives a completed call on the event loop.
type Callback func(Result)

type kind int

const (
	kindGet kind = iota
	kindSet
)

func (k kind) String() string {
	if k == kindSet {
		return "set"
	}
	return "get"
}

type pendingCall struct {
	seq      uint64
	kind     kind
	client   session.Identity
	property string
	value    string
	callback Callback
	cancel   context.CancelFunc
}

// Broker correlates outgoing property calls with their replies. All
// methods must run on the event loop.
type Broker struct {
	caller     bus.Caller
	poster     bus.Poster
	clients    Clients
	setTimeout time.Duration
	logger     *slog.Logger

	next    uint64
	pending map[uint64]*pendingCall
}

// New returns a broker issuing calls through caller and completing them
// through poster. A non-positive setTimeout selects DefaultSetTimeout.
func New(caller bus.Caller, poster bus.Poster, clients Clients, setTimeout time.Duration, logger *slog.Logger) *Broker {
	if setTimeout <= 0 {
		setTimeout = DefaultSetTimeout
	}
	return &Broker{
		caller:     caller,
		poster:     poster,
		clients:    clients,
		setTimeout: setTimeout,
		logger:     logger,
		pending:    make(map[uint64]*pendingCall),
	}
}

// Get asks the client for property. The call carries no deadline beyond
// the transport's own.
func (b *Broker) Get(client session.Identity, property string, callback Callback) {
	ctx, cancel := context.WithCancel(context.Background())
	pc := b.track(kindGet, client, property, "", callback, cancel)
	b.start(ctx, pc, bus.PlaybackIface, property)
}

// Set asks the client to change property to value within the set timeout.
func (b *Broker) Set(client session.Identity, property, value string, callback Callback) {
	ctx, cancel := context.WithTimeout(context.Background(), b.setTimeout)
	pc := b.track(kindSet, client, property, value, callback, cancel)

	var encoded any = value
	if property == AllowedStateProperty {
		encoded = AllowedStates(value)
	}
	b.start(ctx, pc, bus.PlaybackIface, property, encoded)
}

// Pending reports the number of calls still awaiting completion.
func (b *Broker) Pending() int {
	return len(b.pending)
}

// Close abandons every pending call. Their callbacks never run.
func (b *Broker) Close() {
	for _, pc := range b.pending {
		b.release(pc)
	}
}

func (b *Broker) track(k kind, client session.Identity, property, value string, callback Callback, cancel context.CancelFunc) *pendingCall {
	b.next++
	pc := &pendingCall{
		seq:      b.next,
		kind:     k,
		client:   client,
		property: property,
		value:    value,
		callback: callback,
		cancel:   cancel,
	}
	b.pending[pc.seq] = pc
	return pc
}

func (b *Broker) start(ctx context.Context, pc *pendingCall, args ...any) {
	method := bus.PropertiesGet
	if pc.kind == kindSet {
		method = bus.PropertiesSet
	}
	b.logger.Debug("property call",
		"op", pc.kind.String(), "client", pc.client.String(), "property", pc.property, "value", pc.value)

	call := b.caller.Go(ctx, pc.client.BusID, pc.client.Path, method, args...)
	go func() {
		done := <-call.Done
		b.poster.Post(func() { b.complete(pc, done) })
	}()
}

// complete runs once per pending call, on the event loop. The client
// check happens here, in the same step that would touch client state.
func (b *Broker) complete(pc *pendingCall, call *dbus.Call) {
	if _, ok := b.pending[pc.seq]; !ok {
		return
	}
	defer b.release(pc)

	if _, ok := b.clients.Find(pc.client); !ok {
		b.logger.Debug("property call dropped: playback is gone",
			"op", pc.kind.String(), "client", pc.client.String(), "property", pc.property)
		return
	}

	result := Result{Client: pc.client, Property: pc.property, Value: pc.value}
	if call.Err != nil {
		result.Err = call.Err
		b.logger.Debug("property call failed",
			"op", pc.kind.String(), "client", pc.client.String(), "property", pc.property, "error", call.Err)
		b.deliver(pc, result)
		return
	}

	if pc.kind == kindGet {
		value, err := replyString(call.Body)
		if err != nil {
			b.logger.Error("failed to parse property reply",
				"client", pc.client.String(), "property", pc.property, "error", err)
			return
		}
		result.Value = value
		b.logger.Debug("received property", "client", pc.client.String(), "property", pc.property, "value", value)
	}
	b.deliver(pc, result)
}

func (b *Broker) deliver(pc *pendingCall, result Result) {
	if pc.callback != nil {
		pc.callback(result)
	}
}

func (b *Broker) release(pc *pendingCall) {
	if _, ok := b.pending[pc.seq]; !ok {
		return
	}
	delete(b.pending, pc.seq)
	pc.cancel()
}

// replyString accepts a bare string or a variant holding one.
func replyString(body []any) (string, error) {
	if len(body) < 1 {
		return "", fmt.Errorf("%w: empty body", ErrMalformedReply)
	}
	switch v := body[0].(type) {
	case string:
		return v, nil
	case dbus.Variant:
		if s, ok := v.Value().(string); ok {
			return s, nil
		}
		return "", fmt.Errorf("%w: variant of %s", ErrMalformedReply, v.Signature())
	default:
		return "", fmt.Errorf("%w: argument of type %T", ErrMalformedReply, body[0])
	}
}
