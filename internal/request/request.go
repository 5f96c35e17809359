// Package request holds the validated form of an inbound method call. A
// Request keeps the call it came from so that exactly one reply is sent,
// whoever ends up producing it.
package request

import (
	"github.com/google/uuid"

	"github.com/mil-ad/policyd/internal/bus"
	"github.com/mil-ad/policyd/internal/session"
)

// Type tags what a request asks for.
type Type int

const (
	StateChange Type = iota
	PrivacyOverride
	Mute
	GetAllowed
	FeatureEnable
	FeatureDisable
	Prefer
)

var typeNames = [...]string{
	StateChange:     "state-change",
	PrivacyOverride: "privacy-override",
	Mute:            "mute",
	GetAllowed:      "get-allowed",
	FeatureEnable:   "feature-enable",
	FeatureDisable:  "feature-disable",
	Prefer:          "prefer",
}

func (t Type) String() string {
	if t < 0 || int(t) >= len(typeNames) {
		return "unknown"
	}
	return typeNames[t]
}

// Request is one validated inbound call. Only the fields relevant to Type
// are set.
type Request struct {
	ID     uuid.UUID
	Type   Type
	Client *session.Client
	Call   *bus.Call

	// StateChange
	State  string
	PID    string
	Stream string

	// PrivacyOverride, Mute
	Flag bool

	// FeatureEnable, FeatureDisable
	Feature string

	// Prefer
	Route     string
	RouteType uint32
	Set       bool
}

// New returns a request of type t answering call.
func New(t Type, call *bus.Call) *Request {
	return &Request{ID: uuid.New(), Type: t, Call: call}
}

// Reply answers the originating call successfully.
func (r *Request) Reply(values ...any) error {
	return r.Call.Return(values...)
}

// Fail answers the originating call with an error.
func (r *Request) Fail(name, description string) error {
	return r.Call.Fail(name, description)
}

// Replied reports whether the originating call has been answered.
func (r *Request) Replied() bool {
	return r.Call.Replied()
}
