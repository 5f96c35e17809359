package main

import (
	"time"

	"github.com/mil-ad/policyd/internal/accessory"
	"github.com/mil-ad/policyd/internal/policy"
)

// IPCRequest is sent from the CLI client to the daemon.
type IPCRequest struct {
	Command      string `json:"command"`                // "status" | "sessions" | "jack"
	Capabilities string `json:"capabilities,omitempty"` // jack capability string
}

// IPCResponse is sent from the daemon back to the CLI client.
type IPCResponse struct {
	Status   *Status       `json:"status,omitempty"`
	Sessions []SessionInfo `json:"sessions,omitempty"`
	Changed  *bool         `json:"changed,omitempty"` // jack only
	Error    string        `json:"error,omitempty"`
}

// Status summarises the daemon state.
type Status struct {
	Sessions        int                `json:"sessions"`
	PendingCalls    int                `json:"pending_calls"`
	WatchedProperty []string           `json:"watched_properties"`
	Presence        accessory.Presence `json:"presence"`
	Policy          policy.Snapshot    `json:"policy"`
}

// SessionInfo describes one client session.
type SessionInfo struct {
	BusID    string    `json:"bus_id"`
	Path     string    `json:"path"`
	Class    string    `json:"class,omitempty"`
	State    string    `json:"state,omitempty"`
	PlayHint string    `json:"play_hint,omitempty"`
	PID      string    `json:"pid,omitempty"`
	Stream   string    `json:"stream,omitempty"`
	Created  time.Time `json:"created"`
}
