package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"

	"github.com/mil-ad/policyd/internal/broker"
	"github.com/mil-ad/policyd/internal/policy"
	"github.com/mil-ad/policyd/internal/route"
)

// Config is the daemon configuration.
type Config struct {
	LogLevel      string       `yaml:"log_level" json:"log_level"`
	ControlSocket string       `yaml:"control_socket" json:"control_socket"`
	SetTimeoutMS  int          `yaml:"set_timeout_ms" json:"set_timeout_ms"`
	Route         RouteConfig  `yaml:"route" json:"route"`
	Policy        PolicyConfig `yaml:"policy" json:"policy"`
}

type RouteConfig struct {
	Features []FeatureConfig `yaml:"features" json:"features"`
	// Routes are listed in selection priority order.
	Routes []RouteEntry `yaml:"routes" json:"routes"`
}

type FeatureConfig struct {
	Name    string `yaml:"name" json:"name"`
	Allowed bool   `yaml:"allowed" json:"allowed"`
	Enabled bool   `yaml:"enabled" json:"enabled"`
}

type RouteEntry struct {
	Name string   `yaml:"name" json:"name"`
	Type []string `yaml:"type" json:"type"`
}

type PolicyConfig struct {
	DeniedStates        []string `yaml:"denied_states" json:"denied_states"`
	LockPrivacyOverride bool     `yaml:"lock_privacy_override" json:"lock_privacy_override"`
	LockMute            bool     `yaml:"lock_mute" json:"lock_mute"`
}

func defaultConfig() Config {
	return Config{
		LogLevel:     "info",
		SetTimeoutMS: int(broker.DefaultSetTimeout / time.Millisecond),
		Route: RouteConfig{
			Routes: []RouteEntry{
				{Name: "speaker", Type: []string{"output", "builtin", "available"}},
				{Name: "microphone", Type: []string{"input", "builtin", "available"}},
			},
		},
	}
}

func configPath() string {
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		dir = filepath.Join(os.Getenv("HOME"), ".config")
	}
	return filepath.Join(dir, "policyd", "config.yaml")
}

// loadConfig reads path over the defaults. An empty path selects the XDG
// location, which may be missing.
func loadConfig(path string) (Config, error) {
	cfg := defaultConfig()
	explicit := path != ""
	if !explicit {
		path = configPath()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if !explicit && errors.Is(err, fs.ErrNotExist) {
			return cfg, nil
		}
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	if err := decodeConfig(path, data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

func decodeConfig(path string, data []byte, cfg *Config) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".jsonc":
		dec := json.NewDecoder(bytes.NewReader(jsonc.ToJSON(data)))
		dec.DisallowUnknownFields()
		return dec.Decode(cfg)
	default:
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		err := dec.Decode(cfg)
		if errors.Is(err, io.EOF) {
			return nil
		}
		return err
	}
}

// Validate checks values the decoders cannot.
func (c Config) Validate() error {
	if _, err := parseLevel(c.LogLevel); err != nil {
		return err
	}
	if c.SetTimeoutMS < 0 {
		return fmt.Errorf("set_timeout_ms must not be negative, got %d", c.SetTimeoutMS)
	}
	seen := make(map[string]bool)
	for _, f := range c.Route.Features {
		if f.Name == "" {
			return errors.New("feature without a name")
		}
		if seen[f.Name] {
			return fmt.Errorf("duplicate feature %q", f.Name)
		}
		seen[f.Name] = true
	}
	seen = make(map[string]bool)
	for _, r := range c.Route.Routes {
		if r.Name == "" {
			return errors.New("route without a name")
		}
		if seen[r.Name] {
			return fmt.Errorf("duplicate route %q", r.Name)
		}
		seen[r.Name] = true
		if _, err := route.ParseType(r.Type); err != nil {
			return fmt.Errorf("route %q: %w", r.Name, err)
		}
	}
	return nil
}

func (c Config) setTimeout() time.Duration {
	return time.Duration(c.SetTimeoutMS) * time.Millisecond
}

// policyConfig converts the route and policy sections for policy.NewEngine.
// c must have passed Validate.
func (c Config) policyConfig() policy.Config {
	pc := policy.Config{
		DeniedStates:        c.Policy.DeniedStates,
		LockPrivacyOverride: c.Policy.LockPrivacyOverride,
		LockMute:            c.Policy.LockMute,
	}
	for _, f := range c.Route.Features {
		pc.Features = append(pc.Features, route.Feature{Name: f.Name, Allowed: f.Allowed, Enabled: f.Enabled})
	}
	for _, r := range c.Route.Routes {
		t, _ := route.ParseType(r.Type)
		pc.Routes = append(pc.Routes, route.Route{Name: r.Name, Type: t})
	}
	return pc
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("unknown log level %q", s)
	}
	return level, nil
}
