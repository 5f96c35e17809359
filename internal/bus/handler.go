package bus

import (
	"context"
	"log/slog"
	"sync"

	"github.com/godbus/dbus/v5"
)

// Poster schedules work on the event loop. Post reports false when the loop
// no longer accepts work.
type Poster interface {
	Post(fn func()) bool
}

// MethodFunc handles one inbound method call on the event loop. It must
// reply to call exactly once, either before returning or later.
type MethodFunc func(call *Call)

// Handler routes inbound method calls for the objects this process serves.
// It replaces godbus' reflection based export so that handlers see the
// sender and the raw argument list, and may defer their reply.
//
// godbus runs each inbound call on its own goroutine; the goroutine hands
// the call to the event loop and waits for the reply.
type Handler struct {
	poster Poster
	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.RWMutex
	objects map[dbus.ObjectPath]*object
}

type object struct {
	path   dbus.ObjectPath
	ifaces map[string]*iface
}

type iface struct {
	name    string
	methods map[string]MethodFunc
}

// NewHandler returns a Handler that runs method calls through poster.
func NewHandler(poster Poster, logger *slog.Logger) *Handler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Handler{
		poster:  poster,
		logger:  logger,
		ctx:     ctx,
		cancel:  cancel,
		objects: make(map[dbus.ObjectPath]*object),
	}
}

// Export serves methods under path and interface name. Exporting the same
// path and interface again replaces the method table.
func (h *Handler) Export(path dbus.ObjectPath, name string, methods map[string]MethodFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()

	obj, ok := h.objects[path]
	if !ok {
		obj = &object{path: path, ifaces: make(map[string]*iface)}
		h.objects[path] = obj
	}
	table := make(map[string]MethodFunc, len(methods))
	for member, fn := range methods {
		table[member] = fn
	}
	obj.ifaces[name] = &iface{name: name, methods: table}
}

// Unexport stops serving path.
func (h *Handler) Unexport(path dbus.ObjectPath) {
	h.mu.Lock()
	delete(h.objects, path)
	h.mu.Unlock()
}

// Close fails every call still waiting for a reply.
func (h *Handler) Close() {
	h.cancel()
}

// LookupObject implements dbus.Handler.
func (h *Handler) LookupObject(path dbus.ObjectPath) (dbus.ServerObject, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	obj, ok := h.objects[path]
	if !ok {
		return nil, false
	}
	return &serverObject{handler: h, object: obj}, true
}

type serverObject struct {
	handler *Handler
	object  *object
}

// LookupInterface never fails so that unknown interfaces and members get
// the standard error names instead of godbus' defaults. An empty name
// selects the object's interface when it has exactly one.
func (o *serverObject) LookupInterface(name string) (dbus.Interface, bool) {
	o.handler.mu.RLock()
	defer o.handler.mu.RUnlock()

	if name == "" && len(o.object.ifaces) == 1 {
		for _, only := range o.object.ifaces {
			return &serverIface{handler: o.handler, iface: only}, true
		}
	}
	found, ok := o.object.ifaces[name]
	if !ok {
		return &serverIface{handler: o.handler, iface: &iface{name: name}, unknown: true}, true
	}
	return &serverIface{handler: o.handler, iface: found}, true
}

type serverIface struct {
	handler *Handler
	iface   *iface
	unknown bool
}

func (i *serverIface) LookupMethod(name string) (dbus.Method, bool) {
	m := &method{handler: i.handler, iface: i.iface.name, member: name}
	if i.unknown {
		m.fn = func(call *Call) {
			call.Fail(ErrorUnknownInterface, "no such interface: "+call.Interface)
		}
		return m, true
	}
	fn, ok := i.iface.methods[name]
	if !ok {
		fn = func(call *Call) {
			call.Fail(ErrorUnknownMethod, "no such method: "+call.Member)
		}
	}
	m.fn = fn
	return m, true
}

// method adapts a MethodFunc to godbus' Method and ArgumentDecoder.
type method struct {
	handler *Handler
	iface   string
	member  string
	fn      MethodFunc
}

// DecodeArguments captures the raw message instead of decoding into
// typed parameters, so one member may accept several signatures.
func (m *method) DecodeArguments(conn *dbus.Conn, sender string, msg *dbus.Message, args []any) ([]any, error) {
	var path dbus.ObjectPath
	if v, ok := msg.Headers[dbus.FieldPath]; ok {
		path, _ = v.Value().(dbus.ObjectPath)
	}
	return []any{NewCall(sender, path, m.iface, m.member, args...)}, nil
}

func (m *method) Call(args ...any) ([]any, error) {
	call := args[0].(*Call)
	m.handler.logger.Debug("method call",
		"sender", call.Sender, "path", call.Path, "interface", call.Interface, "member", call.Member)

	if !m.handler.poster.Post(func() { m.fn(call) }) {
		return nil, NewError(ErrorFailed, "service shutting down")
	}
	body, err := call.Wait(m.handler.ctx)
	if err != nil {
		return nil, err
	}
	return body, nil
}

func (m *method) NumArguments() int { return 1 }

func (m *method) NumReturns() int { return 0 }

func (m *method) ArgumentValue(position int) any { return (*Call)(nil) }

func (m *method) ReturnValue(position int) any { return nil }
