// Package policy is the built-in decision engine. It resolves goals from
// typed variables against a small fact store seeded from configuration.
package policy

import (
	"errors"
	"fmt"
	"strconv"
)

// Goals understood by Engine.Resolve.
const (
	AccessoryRequest = "accessory_request"
	PlaybackRequest  = "playback_request"
)

var (
	ErrUnknownGoal = errors.New("unknown goal")
	ErrDenied      = errors.New("request denied")
)

// Var is one named, typed goal variable.
type Var struct {
	Name string
	Kind byte // 's' or 'i'
	Str  string
	Int  int
}

// String returns a string variable.
func String(name, value string) Var {
	return Var{Name: name, Kind: 's', Str: value}
}

// Int returns an integer variable.
func Int(name string, value int) Var {
	return Var{Name: name, Kind: 'i', Int: value}
}

func (v Var) String() string {
	if v.Kind == 'i' {
		return v.Name + ":i=" + strconv.Itoa(v.Int)
	}
	return v.Name + ":s=" + v.Str
}

// Vars indexes a variable list by name.
type Vars map[string]Var

func indexVars(vars []Var) Vars {
	m := make(Vars, len(vars))
	for _, v := range vars {
		m[v.Name] = v
	}
	return m
}

func (m Vars) stringVar(name string) (string, error) {
	v, ok := m[name]
	if !ok {
		return "", fmt.Errorf("missing variable %s", name)
	}
	if v.Kind != 's' {
		return "", fmt.Errorf("variable %s is not a string", name)
	}
	return v.Str, nil
}

func (m Vars) intVar(name string) (int, error) {
	v, ok := m[name]
	if !ok {
		return 0, fmt.Errorf("missing variable %s", name)
	}
	if v.Kind != 'i' {
		return 0, fmt.Errorf("variable %s is not an integer", name)
	}
	return v.Int, nil
}
