package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/mil-ad/policyd/internal/accessory"
	"github.com/mil-ad/policyd/internal/broker"
	"github.com/mil-ad/policyd/internal/bus"
	"github.com/mil-ad/policyd/internal/lifecycle"
	"github.com/mil-ad/policyd/internal/loop"
	"github.com/mil-ad/policyd/internal/notify"
	"github.com/mil-ad/policyd/internal/playback"
	"github.com/mil-ad/policyd/internal/policy"
	"github.com/mil-ad/policyd/internal/route"
	"github.com/mil-ad/policyd/internal/session"
)

const loopDepth = 256

func socketPath(configured string) string {
	if configured != "" {
		return configured
	}
	dir := os.Getenv("XDG_RUNTIME_DIR")
	if dir == "" {
		dir = "/tmp"
	}
	return filepath.Join(dir, "policyd.sock")
}

// daemon answers control requests. handleRequest runs on the event loop.
type daemon struct {
	loop     *loop.Loop
	logger   *slog.Logger
	sessions *session.Registry
	broker   *broker.Broker
	notify   *notify.Registry
	engine   *policy.Engine
	differ   *accessory.Differ
}

func (d *daemon) handleRequest(req IPCRequest) IPCResponse {
	switch req.Command {
	case "status":
		return IPCResponse{Status: &Status{
			Sessions:        d.sessions.Len(),
			PendingCalls:    d.broker.Pending(),
			WatchedProperty: d.notify.Names(),
			Presence:        d.differ.Presence(),
			Policy:          d.engine.Snapshot(),
		}}

	case "sessions":
		var list []SessionInfo
		for _, c := range d.sessions.List() {
			list = append(list, SessionInfo{
				BusID:    c.BusID,
				Path:     string(c.Path),
				Class:    c.Class,
				State:    c.State,
				PlayHint: c.PlayHint,
				PID:      c.PID,
				Stream:   c.Stream,
				Created:  c.Created,
			})
		}
		return IPCResponse{Sessions: list}

	case "jack":
		changed := d.differ.Jack(req.Capabilities)
		return IPCResponse{Changed: &changed}

	default:
		return IPCResponse{Error: fmt.Sprintf("unknown command: %q", req.Command)}
	}
}

func (d *daemon) handleConn(conn net.Conn) {
	defer conn.Close()

	var req IPCRequest
	if err := json.NewDecoder(conn).Decode(&req); err != nil {
		d.logger.Debug("invalid control request", "error", err)
		resp := IPCResponse{Error: "invalid request: " + err.Error()}
		json.NewEncoder(conn).Encode(resp)
		return
	}

	var resp IPCResponse
	if !d.loop.Do(func() { resp = d.handleRequest(req) }) {
		resp = IPCResponse{Error: "daemon is shutting down"}
	}
	json.NewEncoder(conn).Encode(resp)
}

func (d *daemon) serve(ln net.Listener) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			// Listener closed by shutdown.
			return
		}
		go d.handleConn(conn)
	}
}

type daemonOptions struct {
	configFile string
	logLevel   string
	socket     string
}

// daemonConfig loads the config and applies the command line overrides.
func daemonConfig(opts daemonOptions) (Config, error) {
	cfg, err := loadConfig(opts.configFile)
	if err != nil {
		return Config{}, err
	}
	if opts.logLevel != "" {
		cfg.LogLevel = opts.logLevel
	}
	if opts.socket != "" {
		cfg.ControlSocket = opts.socket
	}
	return cfg, nil
}

func runDaemon(opts daemonOptions) error {
	cfg, err := daemonConfig(opts)
	if err != nil {
		return err
	}
	level, err := parseLevel(cfg.LogLevel)
	if err != nil {
		return err
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	lp := loop.New(logger, loopDepth)
	sessionHandler := bus.NewHandler(lp, logger)
	systemHandler := bus.NewHandler(lp, logger)

	mgr, err := bus.Connect(logger, sessionHandler, systemHandler)
	if err != nil {
		return err
	}
	defer mgr.Close()
	// Fail waiting method calls before the connections go away.
	defer systemHandler.Close()
	defer sessionHandler.Close()

	sessions := session.NewRegistry(logger, mgr)
	calls := broker.New(mgr, lp, sessions, cfg.setTimeout(), logger)
	defer calls.Close()
	notifications := &notify.Registry{}
	engine := policy.NewEngine(cfg.policyConfig(), logger)

	playbackSignals := playback.NewSignals(mgr.Conn(bus.Session), mgr.Conn(bus.System), logger)
	routeSignals := route.NewSignals(mgr.Conn(bus.System), logger)
	engine.OnPrivacyOverride(playbackSignals.PrivacyOverrideChanged)
	engine.OnMute(playbackSignals.MuteChanged)
	engine.OnRouteChanged(routeSignals.RouteChanged)
	engine.OnFeatureChanged(routeSignals.FeatureChanged)

	machine := playback.NewMachine(sessions, calls, engine, playbackSignals, logger)
	machine.WatchProperties(notifications)
	bridge := lifecycle.NewBridge(sessions, logger)
	bridge.OnHello(machine.Hello)
	differ := accessory.NewDiffer(engine, logger)
	accessories := accessory.NewBridge(differ, engine, logger)

	sessionHandler.Export(bus.PlaybackManagerPath, bus.PlaybackManagerIface,
		playback.NewDispatcher(sessions, machine, engine, logger).Methods())
	systemHandler.Export(bus.RouteManagerPath, bus.RouteManagerIface,
		route.NewService(engine, logger).Methods())

	// name_changed precedes hello, see lifecycle.Bridge.Filters.
	sessionFilters := append(bridge.Filters(), notify.NewListener(notifications, sessions, logger).Filter())
	for _, f := range sessionFilters {
		if err := mgr.AddFilter(bus.Session, f); err != nil {
			return err
		}
	}
	for _, f := range accessories.Filters() {
		if err := mgr.AddFilter(bus.System, f); err != nil {
			return err
		}
	}
	if err := mgr.Claim(bus.Session, bus.PlaybackManagerName); err != nil {
		return err
	}
	if err := mgr.Claim(bus.System, bus.RouteManagerName); err != nil {
		return err
	}
	mgr.Listen(lp)

	sock := socketPath(cfg.ControlSocket)
	os.Remove(sock) // remove stale socket
	ln, err := net.Listen("unix", sock)
	if err != nil {
		return fmt.Errorf("listen %s: %w", sock, err)
	}
	os.Chmod(sock, 0700)
	defer os.Remove(sock)
	defer ln.Close()

	d := &daemon{
		loop:     lp,
		logger:   logger,
		sessions: sessions,
		broker:   calls,
		notify:   notifications,
		engine:   engine,
		differ:   differ,
	}
	go d.serve(ln)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("policy daemon running", "socket", sock)
	lp.Run(ctx)
	logger.Info("shutting down")
	return nil
}
