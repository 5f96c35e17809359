package main

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"testing"

	"github.com/godbus/dbus/v5"

	"github.com/mil-ad/policyd/internal/accessory"
	"github.com/mil-ad/policyd/internal/broker"
	"github.com/mil-ad/policyd/internal/loop"
	"github.com/mil-ad/policyd/internal/notify"
	"github.com/mil-ad/policyd/internal/policy"
	"github.com/mil-ad/policyd/internal/session"
)

type idleCaller struct{}

func (idleCaller) Go(ctx context.Context, dest string, path dbus.ObjectPath, method string, args ...any) *dbus.Call {
	return &dbus.Call{Done: make(chan *dbus.Call, 1)}
}

func testDaemon(t *testing.T) *daemon {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	lp := loop.New(logger, 8)
	sessions := session.NewRegistry(logger, nil)
	engine := policy.NewEngine(defaultConfig().policyConfig(), logger)
	notifications := &notify.Registry{}
	notifications.Register("State", func(session.Identity, string, string) {})
	return &daemon{
		loop:     lp,
		logger:   logger,
		sessions: sessions,
		broker:   broker.New(idleCaller{}, lp, sessions, 0, logger),
		notify:   notifications,
		engine:   engine,
		differ:   accessory.NewDiffer(engine, logger),
	}
}

func TestHandleRequest(t *testing.T) {
	d := testDaemon(t)
	if _, err := d.sessions.Create(session.Identity{BusID: ":1.4", Path: "/p"}); err != nil {
		t.Fatal(err)
	}

	resp := d.handleRequest(IPCRequest{Command: "status"})
	if resp.Status == nil || resp.Status.Sessions != 1 || resp.Status.Policy.ActiveSink != "speaker" {
		t.Fatalf("status = %+v", resp.Status)
	}
	if len(resp.Status.WatchedProperty) != 1 {
		t.Errorf("watched = %v", resp.Status.WatchedProperty)
	}

	resp = d.handleRequest(IPCRequest{Command: "sessions"})
	if len(resp.Sessions) != 1 || resp.Sessions[0].BusID != ":1.4" {
		t.Errorf("sessions = %+v", resp.Sessions)
	}

	resp = d.handleRequest(IPCRequest{Command: "jack", Capabilities: `headphone\microphone`})
	if resp.Changed == nil || !*resp.Changed || !d.differ.Presence().Headset {
		t.Errorf("jack = %+v, presence %+v", resp, d.differ.Presence())
	}
	if d.engine.Snapshot().Accessories[accessory.Headset].Connected != 1 {
		t.Error("jack change did not reach the policy")
	}

	if resp := d.handleRequest(IPCRequest{Command: "toggle"}); resp.Error == "" {
		t.Error("unknown command accepted")
	}
}

func TestDaemonConfigOverrides(t *testing.T) {
	path := writeFile(t, "config.yaml", "log_level: warn\ncontrol_socket: /run/from-config.sock\n")
	tests := []struct {
		name       string
		opts       daemonOptions
		wantLevel  string
		wantSocket string
	}{
		{"config only", daemonOptions{configFile: path}, "warn", "/run/from-config.sock"},
		{"log level flag", daemonOptions{configFile: path, logLevel: "debug"}, "debug", "/run/from-config.sock"},
		{"socket flag", daemonOptions{configFile: path, socket: "/tmp/flag.sock"}, "warn", "/tmp/flag.sock"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := daemonConfig(tt.opts)
			if err != nil {
				t.Fatal(err)
			}
			if cfg.LogLevel != tt.wantLevel {
				t.Errorf("LogLevel = %q, want %q", cfg.LogLevel, tt.wantLevel)
			}
			if got := socketPath(cfg.ControlSocket); got != tt.wantSocket {
				t.Errorf("socket = %q, want %q", got, tt.wantSocket)
			}
		})
	}
}

func TestHandleConnRunsOnLoop(t *testing.T) {
	d := testDaemon(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go d.loop.Run(ctx)

	client, server := net.Pipe()
	go d.handleConn(server)
	defer client.Close()

	if err := json.NewEncoder(client).Encode(IPCRequest{Command: "status"}); err != nil {
		t.Fatal(err)
	}
	var resp IPCResponse
	if err := json.NewDecoder(client).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp.Status == nil || resp.Error != "" {
		t.Errorf("response = %+v", resp)
	}
}
