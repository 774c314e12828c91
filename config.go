// Copyright 2026 The Xsupervisor Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use file except in compliance with the License.
// You may obtain a copy of the license at
//
//    http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package xsupervisor

import (
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"
	"sort"
	"strings"
	"syscall"
	"time"

	"golang.org/x/crypto/bcrypt"
	"gopkg.in/yaml.v3"
)

const (
	DefaultName   = "xsupervisor"
	DefaultListen = "127.0.0.1:8321"

	maxNumProcs     = 100
	maxStartRetries = 20
	maxSeconds      = 3600
	maxExitCode     = 255
)

// AutoRestart selects what happens when a Running instance exits.
type AutoRestart int

const (
	RestartUnexpected AutoRestart = iota // restart unless the code is expected
	RestartAlways
	RestartNever
)

func (a AutoRestart) String() string {
	switch a {
	case RestartAlways:
		return "always"
	case RestartNever:
		return "never"
	}
	return "unexpected"
}

// OutputKind says where a child's stdout or stderr goes.
type OutputKind int

const (
	OutputAuto OutputKind = iota // a per-instance file in the log directory
	OutputNone                   // discarded
	OutputFile                   // an explicit path
)

type Output struct {
	Kind OutputKind
	Path string
}

func (o Output) String() string {
	switch o.Kind {
	case OutputNone:
		return "NONE"
	case OutputFile:
		return o.Path
	}
	return "AUTO"
}

// ProgramConfig describes one program.  It is never modified after it has
// been loaded, and is shared by every instance of the program.
type ProgramConfig struct {
	Name           string
	Cmd            string
	NumProcs       int
	WorkingDir     string
	AutoStart      bool
	AutoRestart    AutoRestart
	ExitCodes      []int
	StartRetries   int
	StartTime      time.Duration
	StopSignal     syscall.Signal
	StopSignalName string
	StopTime       time.Duration
	Stdout         Output
	Stderr         Output
	Env            map[string]string
}

// Argv returns the command split on white space.
func (pc *ProgramConfig) Argv() []string {
	return strings.Fields(pc.Cmd)
}

// Expected reports whether code is one of the configured exit codes.
func (pc *ProgramConfig) Expected(code int) bool {
	for _, c := range pc.ExitCodes {
		if c == code {
			return true
		}
	}
	return false
}

// ShouldRestart applies the autorestart policy to an exit from Running.
func (pc *ProgramConfig) ShouldRestart(code int) bool {
	switch pc.AutoRestart {
	case RestartAlways:
		return true
	case RestartNever:
		return false
	}
	return !pc.Expected(code)
}

// NewProgramConfig returns a configuration for cmd with every other field
// set to its default.
func NewProgramConfig(name string, cmd string) *ProgramConfig {
	return &ProgramConfig{
		Name:           name,
		Cmd:            cmd,
		NumProcs:       1,
		AutoStart:      true,
		AutoRestart:    RestartUnexpected,
		ExitCodes:      []int{0},
		StartRetries:   5,
		StartTime:      3 * time.Second,
		StopSignal:     syscall.SIGQUIT,
		StopSignalName: "QUIT",
		StopTime:       10 * time.Second,
		Env:            map[string]string{},
	}
}

// Config is the validated form of a configuration document.
type Config struct {
	Name     string
	Listen   string
	LogDir   string
	PidFile  string
	History  string
	Users    map[string]string // user name -> bcrypt hash
	Programs map[string]*ProgramConfig
}

// ProgramNames returns the configured program names, sorted.
func (c *Config) ProgramNames() []string {
	names := make([]string, 0, len(c.Programs))
	for n := range c.Programs {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

type rawSupervisor struct {
	Name    string            `yaml:"name"`
	Listen  string            `yaml:"listen"`
	LogDir  string            `yaml:"logdir"`
	PidFile string            `yaml:"pidfile"`
	History string            `yaml:"history"`
	Users   map[string]string `yaml:"users"`
}

type rawProgram struct {
	Cmd          *string           `yaml:"cmd"`
	NumProcs     *int              `yaml:"numprocs"`
	WorkingDir   string            `yaml:"workingdir"`
	AutoStart    *bool             `yaml:"autostart"`
	AutoRestart  yaml.Node         `yaml:"autorestart"`
	ExitCodes    yaml.Node         `yaml:"exitcodes"`
	StartRetries *int              `yaml:"startretries"`
	StartTime    *int              `yaml:"starttime"`
	StopSignal   *string           `yaml:"stopsignal"`
	StopTime     *int              `yaml:"stoptime"`
	Stdout       *string           `yaml:"stdout"`
	Stderr       *string           `yaml:"stderr"`
	Env          map[string]string `yaml:"env"`
}

type rawConfig struct {
	Supervisor rawSupervisor          `yaml:"supervisor"`
	Programs   map[string]*rawProgram `yaml:"programs"`
}

var programNameRe = regexp.MustCompile(`^[A-Za-z0-9_.-]+$`)

// LoadConfig reads and validates the configuration file at path.
func LoadConfig(path string) (*Config, error) {
	f, e := os.Open(path)
	if e != nil {
		return nil, e
	}
	defer f.Close()
	return ParseConfig(f)
}

// ParseConfig decodes and validates a YAML configuration document.  All
// validation failures are reported together, each as a *ConfigError.
func ParseConfig(r io.Reader) (*Config, error) {
	var raw rawConfig
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if e := dec.Decode(&raw); e != nil {
		if errors.Is(e, io.EOF) {
			return nil, &ConfigError{Msg: "empty configuration"}
		}
		return nil, &ConfigError{Msg: e.Error()}
	}

	v := &validator{}
	c := &Config{
		Name:     raw.Supervisor.Name,
		Listen:   raw.Supervisor.Listen,
		LogDir:   raw.Supervisor.LogDir,
		PidFile:  raw.Supervisor.PidFile,
		History:  raw.Supervisor.History,
		Users:    map[string]string{},
		Programs: map[string]*ProgramConfig{},
	}
	if c.Name == "" {
		c.Name = DefaultName
	}
	if c.Listen == "" {
		c.Listen = DefaultListen
	}
	if c.LogDir == "" {
		c.LogDir = os.TempDir()
	}
	for user, hash := range raw.Supervisor.Users {
		if _, e := bcrypt.Cost([]byte(hash)); e != nil {
			v.fail("", "users."+user, "not a bcrypt hash")
			continue
		}
		c.Users[user] = hash
	}

	if len(raw.Programs) == 0 {
		v.fail("", "programs", "at least one program is required")
	}
	for name, rp := range raw.Programs {
		if !programNameRe.MatchString(name) {
			v.fail(name, "", "name may only contain letters, digits, '_', '.' and '-'")
			continue
		}
		if rp == nil {
			v.fail(name, "cmd", "required")
			continue
		}
		if pc := v.program(name, rp); pc != nil {
			c.Programs[name] = pc
		}
	}
	if e := v.err(); e != nil {
		return nil, e
	}
	return c, nil
}

type validator struct {
	errs []error
}

func (v *validator) fail(program, field, format string, args ...interface{}) {
	v.errs = append(v.errs, &ConfigError{
		Program: program,
		Field:   field,
		Msg:     fmt.Sprintf(format, args...),
	})
}

func (v *validator) err() error {
	sort.SliceStable(v.errs, func(i, j int) bool {
		return v.errs[i].Error() < v.errs[j].Error()
	})
	return errors.Join(v.errs...)
}

func (v *validator) bounded(name, field string, p *int, lo, hi, def int) int {
	if p == nil {
		return def
	}
	if *p < lo || *p > hi {
		v.fail(name, field, "must be between %d and %d, got %d", lo, hi, *p)
		return def
	}
	return *p
}

func (v *validator) program(name string, rp *rawProgram) *ProgramConfig {
	nerr := len(v.errs)
	pc := NewProgramConfig(name, "")

	if rp.Cmd == nil || len(strings.Fields(*rp.Cmd)) == 0 {
		v.fail(name, "cmd", "required")
	} else {
		pc.Cmd = *rp.Cmd
	}
	pc.NumProcs = v.bounded(name, "numprocs", rp.NumProcs, 1, maxNumProcs, pc.NumProcs)
	pc.StartRetries = v.bounded(name, "startretries", rp.StartRetries, 0, maxStartRetries, pc.StartRetries)
	secs := v.bounded(name, "starttime", rp.StartTime, 0, maxSeconds, int(pc.StartTime/time.Second))
	pc.StartTime = time.Duration(secs) * time.Second
	secs = v.bounded(name, "stoptime", rp.StopTime, 0, maxSeconds, int(pc.StopTime/time.Second))
	pc.StopTime = time.Duration(secs) * time.Second

	pc.WorkingDir = rp.WorkingDir
	if rp.AutoStart != nil {
		pc.AutoStart = *rp.AutoStart
	}
	if rp.AutoRestart.Kind != 0 {
		if ar, e := parseAutoRestart(&rp.AutoRestart); e != nil {
			v.fail(name, "autorestart", "%v", e)
		} else {
			pc.AutoRestart = ar
		}
	}
	if rp.ExitCodes.Kind != 0 {
		if codes, e := parseExitCodes(&rp.ExitCodes); e != nil {
			v.fail(name, "exitcodes", "%v", e)
		} else {
			pc.ExitCodes = codes
		}
	}
	if rp.StopSignal != nil {
		if sig, sname, e := parseStopSignal(*rp.StopSignal); e != nil {
			v.fail(name, "stopsignal", "%v", e)
		} else {
			pc.StopSignal = sig
			pc.StopSignalName = sname
		}
	}
	if rp.Stdout != nil {
		pc.Stdout = parseOutput(*rp.Stdout)
	}
	if rp.Stderr != nil {
		pc.Stderr = parseOutput(*rp.Stderr)
	}
	for k, val := range rp.Env {
		if k == "" || strings.Contains(k, "=") {
			v.fail(name, "env", "bad variable name %q", k)
			continue
		}
		pc.Env[k] = val
	}

	if len(v.errs) != nerr {
		return nil
	}
	return pc
}

func parseAutoRestart(n *yaml.Node) (AutoRestart, error) {
	if n.Kind != yaml.ScalarNode {
		return 0, errors.New("expected a scalar")
	}
	if n.ShortTag() == "!!bool" {
		var b bool
		if e := n.Decode(&b); e != nil {
			return 0, e
		}
		if b {
			return RestartAlways, nil
		}
		return RestartNever, nil
	}
	switch strings.ToLower(n.Value) {
	case "always":
		return RestartAlways, nil
	case "never":
		return RestartNever, nil
	case "unexpected":
		return RestartUnexpected, nil
	}
	return 0, fmt.Errorf("unknown policy %q", n.Value)
}

func parseExitCodes(n *yaml.Node) ([]int, error) {
	var codes []int
	switch n.Kind {
	case yaml.ScalarNode:
		var c int
		if e := n.Decode(&c); e != nil {
			return nil, errors.New("expected an integer or a list of integers")
		}
		codes = []int{c}
	case yaml.SequenceNode:
		if e := n.Decode(&codes); e != nil {
			return nil, errors.New("expected a list of integers")
		}
	default:
		return nil, errors.New("expected an integer or a list of integers")
	}
	for _, c := range codes {
		if c < 0 || c > maxExitCode {
			return nil, fmt.Errorf("exit code %d out of range 0-%d", c, maxExitCode)
		}
	}
	return codes, nil
}

func parseOutput(s string) Output {
	switch strings.ToUpper(s) {
	case "AUTO", "":
		return Output{Kind: OutputAuto}
	case "NONE":
		return Output{Kind: OutputNone}
	}
	return Output{Kind: OutputFile, Path: s}
}
