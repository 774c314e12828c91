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
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func parse(t *testing.T, doc string) (*Config, error) {
	t.Helper()
	return ParseConfig(strings.NewReader(doc))
}

func configErrors(t *testing.T, e error) []*ConfigError {
	t.Helper()
	require.Error(t, e)
	var rv []*ConfigError
	if j, ok := e.(interface{ Unwrap() []error }); ok {
		for _, x := range j.Unwrap() {
			var ce *ConfigError
			require.True(t, errors.As(x, &ce), "%v is not a ConfigError", x)
			rv = append(rv, ce)
		}
		return rv
	}
	var ce *ConfigError
	require.True(t, errors.As(e, &ce), "%v is not a ConfigError", e)
	return append(rv, ce)
}

func TestConfigDefaults(t *testing.T) {
	c, e := parse(t, `
programs:
  web:
    cmd: /usr/bin/python3 -m http.server
`)
	require.NoError(t, e)
	assert.Equal(t, DefaultName, c.Name)
	assert.Equal(t, DefaultListen, c.Listen)
	assert.Equal(t, os.TempDir(), c.LogDir)
	assert.Equal(t, []string{"web"}, c.ProgramNames())

	pc := c.Programs["web"]
	require.NotNil(t, pc)
	assert.Equal(t, "web", pc.Name)
	assert.Equal(t, []string{"/usr/bin/python3", "-m", "http.server"}, pc.Argv())
	assert.Equal(t, 1, pc.NumProcs)
	assert.True(t, pc.AutoStart)
	assert.Equal(t, RestartUnexpected, pc.AutoRestart)
	assert.Equal(t, []int{0}, pc.ExitCodes)
	assert.Equal(t, 5, pc.StartRetries)
	assert.Equal(t, 3*time.Second, pc.StartTime)
	assert.Equal(t, syscall.SIGQUIT, pc.StopSignal)
	assert.Equal(t, "QUIT", pc.StopSignalName)
	assert.Equal(t, 10*time.Second, pc.StopTime)
	assert.Equal(t, OutputAuto, pc.Stdout.Kind)
	assert.Equal(t, OutputAuto, pc.Stderr.Kind)
	assert.Empty(t, pc.Env)
	assert.Empty(t, pc.WorkingDir)
}

func TestConfigFull(t *testing.T) {
	hash, e := bcrypt.GenerateFromPassword([]byte("secret"), bcrypt.MinCost)
	require.NoError(t, e)

	c, e := parse(t, `
supervisor:
  name: box
  listen: 0.0.0.0:9000
  logdir: /var/log/box
  pidfile: /run/box.pid
  history: /var/lib/box/history.db
  users:
    admin: "`+string(hash)+`"
programs:
  worker:
    cmd: ./worker --queue jobs
    numprocs: 4
    workingdir: /srv
    autostart: false
    autorestart: always
    exitcodes: [0, 2]
    startretries: 0
    starttime: 0
    stopsignal: SIGTERM
    stoptime: 3600
    stdout: NONE
    stderr: /var/log/worker.err
    env:
      QUEUE: jobs
      DEBUG: "1"
`)
	require.NoError(t, e)
	assert.Equal(t, "box", c.Name)
	assert.Equal(t, "0.0.0.0:9000", c.Listen)
	assert.Equal(t, "/var/log/box", c.LogDir)
	assert.Equal(t, "/run/box.pid", c.PidFile)
	assert.Equal(t, "/var/lib/box/history.db", c.History)
	assert.Equal(t, string(hash), c.Users["admin"])

	pc := c.Programs["worker"]
	require.NotNil(t, pc)
	assert.Equal(t, 4, pc.NumProcs)
	assert.Equal(t, "/srv", pc.WorkingDir)
	assert.False(t, pc.AutoStart)
	assert.Equal(t, RestartAlways, pc.AutoRestart)
	assert.Equal(t, []int{0, 2}, pc.ExitCodes)
	assert.Equal(t, 0, pc.StartRetries)
	assert.Equal(t, time.Duration(0), pc.StartTime)
	assert.Equal(t, syscall.SIGTERM, pc.StopSignal)
	assert.Equal(t, "TERM", pc.StopSignalName)
	assert.Equal(t, time.Hour, pc.StopTime)
	assert.Equal(t, Output{Kind: OutputNone}, pc.Stdout)
	assert.Equal(t, Output{Kind: OutputFile, Path: "/var/log/worker.err"}, pc.Stderr)
	assert.Equal(t, map[string]string{"QUEUE": "jobs", "DEBUG": "1"}, pc.Env)
}

func TestConfigAutoRestart(t *testing.T) {
	cases := map[string]AutoRestart{
		"always":     RestartAlways,
		"Never":      RestartNever,
		"UNEXPECTED": RestartUnexpected,
		"true":       RestartAlways,
		"false":      RestartNever,
	}
	for in, want := range cases {
		t.Run(in, func(t *testing.T) {
			c, e := parse(t, "programs:\n  p:\n    cmd: x\n    autorestart: "+in+"\n")
			require.NoError(t, e)
			assert.Equal(t, want, c.Programs["p"].AutoRestart)
		})
	}

	_, e := parse(t, "programs:\n  p:\n    cmd: x\n    autorestart: sometimes\n")
	errs := configErrors(t, e)
	require.Len(t, errs, 1)
	assert.Equal(t, "p", errs[0].Program)
	assert.Equal(t, "autorestart", errs[0].Field)
}

func TestConfigExitCodes(t *testing.T) {
	c, e := parse(t, "programs:\n  p:\n    cmd: x\n    exitcodes: 3\n")
	require.NoError(t, e)
	assert.Equal(t, []int{3}, c.Programs["p"].ExitCodes)
	assert.True(t, c.Programs["p"].Expected(3))
	assert.False(t, c.Programs["p"].Expected(0))

	c, e = parse(t, "programs:\n  p:\n    cmd: x\n    exitcodes: [0, 2]\n")
	require.NoError(t, e)
	assert.Equal(t, []int{0, 2}, c.Programs["p"].ExitCodes)

	// No expected code at all: every exit is unexpected.
	c, e = parse(t, "programs:\n  p:\n    cmd: x\n    exitcodes: []\n")
	require.NoError(t, e)
	assert.Empty(t, c.Programs["p"].ExitCodes)
	assert.False(t, c.Programs["p"].Expected(0))
	assert.True(t, c.Programs["p"].ShouldRestart(0))

	for _, bad := range []string{"[256]", "-1", "nope", "{a: 1}"} {
		_, e := parse(t, "programs:\n  p:\n    cmd: x\n    exitcodes: "+bad+"\n")
		errs := configErrors(t, e)
		require.Len(t, errs, 1, bad)
		assert.Equal(t, "exitcodes", errs[0].Field, bad)
	}
}

func TestConfigShouldRestart(t *testing.T) {
	pc := NewProgramConfig("p", "x")
	pc.ExitCodes = []int{0, 2}

	pc.AutoRestart = RestartUnexpected
	assert.False(t, pc.ShouldRestart(0))
	assert.False(t, pc.ShouldRestart(2))
	assert.True(t, pc.ShouldRestart(1))
	assert.True(t, pc.ShouldRestart(-1))

	pc.AutoRestart = RestartAlways
	assert.True(t, pc.ShouldRestart(0))

	pc.AutoRestart = RestartNever
	assert.False(t, pc.ShouldRestart(1))
}

func TestConfigStopSignal(t *testing.T) {
	for _, name := range []string{"TERM", "HUP", "INT", "QUIT", "KILL", "USR1", "USR2", "sigterm", "SIGUSR1"} {
		c, e := parse(t, "programs:\n  p:\n    cmd: x\n    stopsignal: "+name+"\n")
		require.NoError(t, e, name)
		assert.NotZero(t, c.Programs["p"].StopSignal, name)
		assert.False(t, strings.HasPrefix(c.Programs["p"].StopSignalName, "SIG"), name)
	}
	for _, name := range []string{"SEGV", "STOP", "", "42"} {
		_, e := parse(t, "programs:\n  p:\n    cmd: x\n    stopsignal: '"+name+"'\n")
		errs := configErrors(t, e)
		require.Len(t, errs, 1, name)
		assert.Equal(t, "stopsignal", errs[0].Field, name)
	}
}

func TestConfigBounds(t *testing.T) {
	cases := []struct {
		field string
		value string
	}{
		{"numprocs", "0"},
		{"numprocs", "101"},
		{"startretries", "-1"},
		{"startretries", "21"},
		{"starttime", "-1"},
		{"starttime", "3601"},
		{"stoptime", "3601"},
	}
	for _, c := range cases {
		t.Run(c.field+"="+c.value, func(t *testing.T) {
			_, e := parse(t, "programs:\n  p:\n    cmd: x\n    "+c.field+": "+c.value+"\n")
			errs := configErrors(t, e)
			require.Len(t, errs, 1)
			assert.Equal(t, c.field, errs[0].Field)
			assert.Contains(t, errs[0].Error(), "must be between")
		})
	}
}

func TestConfigErrorsCollected(t *testing.T) {
	_, e := parse(t, `
supervisor:
  users:
    bob: plaintext
programs:
  "bad name":
    cmd: x
  empty:
    cmd: "   "
  nocmd:
  envs:
    cmd: x
    numprocs: 500
    env:
      "A=B": c
`)
	errs := configErrors(t, e)
	fields := map[string]bool{}
	for _, ce := range errs {
		fields[ce.Program+"/"+ce.Field] = true
	}
	assert.True(t, fields["/users.bob"])
	assert.True(t, fields["bad name/"])
	assert.True(t, fields["empty/cmd"])
	assert.True(t, fields["nocmd/cmd"])
	assert.True(t, fields["envs/numprocs"])
	assert.True(t, fields["envs/env"])
	assert.Len(t, errs, 6)
}

func TestConfigRejects(t *testing.T) {
	cases := map[string]string{
		"empty":       "",
		"no programs": "supervisor:\n  name: x\n",
		"unknown key": "programs:\n  p:\n    cmd: x\n    comand: y\n",
		"bad yaml":    "programs: [",
		"bad type":    "programs:\n  p:\n    cmd: x\n    numprocs: many\n",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			c, e := parse(t, doc)
			assert.Nil(t, c)
			var ce *ConfigError
			assert.True(t, errors.As(e, &ce), "%v", e)
		})
	}
}

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "supervisor.yaml")
	require.NoError(t, os.WriteFile(path, []byte("programs:\n  a:\n    cmd: a\n  b:\n    cmd: b\n"), 0o644))

	c, e := LoadConfig(path)
	require.NoError(t, e)
	assert.Equal(t, []string{"a", "b"}, c.ProgramNames())

	_, e = LoadConfig(filepath.Join(dir, "missing.yaml"))
	assert.True(t, errors.Is(e, os.ErrNotExist))
}
