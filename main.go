package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/pflag"
)

var version = "dev"

const usage = `usage: policyd [flags] <daemon|status|sessions|jack <capabilities>|version>

flags:
`

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	flags := pflag.NewFlagSet("policyd", pflag.ContinueOnError)
	configFile := flags.StringP("config", "c", "", "config file (default $XDG_CONFIG_HOME/policyd/config.yaml)")
	logLevel := flags.String("log-level", "", "debug, info, warn or error (overrides the config)")
	socket := flags.String("socket", "", "control socket (default from the config, else $XDG_RUNTIME_DIR/policyd.sock)")
	flags.Usage = func() {
		fmt.Fprint(os.Stderr, usage)
		flags.PrintDefaults()
	}
	if err := flags.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	rest := flags.Args()
	if len(rest) == 0 {
		flags.Usage()
		return errors.New("no command given")
	}

	switch rest[0] {
	case "daemon":
		return runDaemon(daemonOptions{configFile: *configFile, logLevel: *logLevel, socket: *socket})
	case "version":
		fmt.Println("policyd", version)
		return nil
	}

	sock, err := resolveSocket(*configFile, *socket)
	if err != nil {
		return err
	}
	switch rest[0] {
	case "status":
		return runStatus(sock)
	case "sessions":
		return runSessions(sock)
	case "jack":
		if len(rest) < 2 {
			return errors.New("usage: policyd jack <capabilities>")
		}
		return runJack(sock, rest[1])
	default:
		return fmt.Errorf("unknown command: %s", rest[0])
	}
}

func resolveSocket(configFile, socket string) (string, error) {
	if socket != "" {
		return socket, nil
	}
	cfg, err := loadConfig(configFile)
	if err != nil {
		return "", err
	}
	return socketPath(cfg.ControlSocket), nil
}
