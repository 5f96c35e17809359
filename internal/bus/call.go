package bus

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/godbus/dbus/v5"
)

// ErrAlreadyReplied is returned when a second reply is attempted for the
// same inbound method call.
var ErrAlreadyReplied = errors.New("method call already replied")

// Call is one inbound method call waiting for its reply. The first Return
// or Fail wins; later attempts report ErrAlreadyReplied and send nothing.
type Call struct {
	Sender    string
	Path      dbus.ObjectPath
	Interface string
	Member    string
	Body      []any

	replied atomic.Bool
	out     atomic.Pointer[outcome]
	done    chan struct{}
}

type outcome struct {
	body []any
	err  *dbus.Error
}

// NewCall builds a Call from the parts of an inbound message.
func NewCall(sender string, path dbus.ObjectPath, iface, member string, body ...any) *Call {
	return &Call{
		Sender:    sender,
		Path:      path,
		Interface: iface,
		Member:    member,
		Body:      body,
		done:      make(chan struct{}),
	}
}

// Return replies with a successful method return carrying values.
func (c *Call) Return(values ...any) error {
	return c.finish(outcome{body: values})
}

// Fail replies with the named bus error. An empty name means
// org.maemo.Error.Failed.
func (c *Call) Fail(name, description string) error {
	return c.finish(outcome{err: NewError(name, description)})
}

// Replied reports whether a reply has been produced.
func (c *Call) Replied() bool {
	return c.replied.Load()
}

// Wait blocks until the call is replied or ctx is done.
func (c *Call) Wait(ctx context.Context) ([]any, *dbus.Error) {
	select {
	case <-c.done:
	case <-ctx.Done():
		// Claim the reply slot so a late reply is reported as a duplicate.
		c.finish(outcome{err: NewError(ErrorFailed, "service shutting down")})
		<-c.done
	}
	out := c.out.Load()
	return out.body, out.err
}

// Result returns the reply without blocking. ok is false while the call
// is unanswered.
func (c *Call) Result() (body []any, err *dbus.Error, ok bool) {
	out := c.out.Load()
	if out == nil {
		return nil, nil, false
	}
	return out.body, out.err, true
}

func (c *Call) finish(out outcome) error {
	if !c.replied.CompareAndSwap(false, true) {
		return ErrAlreadyReplied
	}
	c.out.Store(&out)
	close(c.done)
	return nil
}

// NewError builds the bus error sent back to a caller.
func NewError(name, description string) *dbus.Error {
	if name == "" {
		name = ErrorFailed
	}
	return dbus.NewError(name, []any{description})
}
