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


package main

import (
	"context"
	"fmt"
	"log"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/Devessier/xsupervisor"
	"github.com/Devessier/xsupervisor/rest"
)

// parkedLauncher spawns processes that run until they are signaled.
type parkedLauncher struct {
	mx   sync.Mutex
	reqs []xsupervisor.LaunchRequest
}

type parkedHandle struct {
	once   sync.Once
	notify func(xsupervisor.LaunchEvent)
}

func (h *parkedHandle) Pid() int { return 321 }

func (h *parkedHandle) Signal(os.Signal) error {
	h.once.Do(func() {
		go h.notify(xsupervisor.LaunchEvent{Kind: xsupervisor.ProcessExited, ExitCode: -1})
	})
	return nil
}

func (h *parkedHandle) Kill() error { return h.Signal(os.Kill) }

func (l *parkedLauncher) Launch(req xsupervisor.LaunchRequest, notify func(xsupervisor.LaunchEvent)) {
	l.mx.Lock()
	l.reqs = append(l.reqs, req)
	l.mx.Unlock()
	go notify(xsupervisor.LaunchEvent{
		Kind:   xsupervisor.ProcessSpawned,
		Handle: &parkedHandle{notify: notify},
	})
}

func (l *parkedLauncher) requests() []xsupervisor.LaunchRequest {
	l.mx.Lock()
	defer l.mx.Unlock()
	return append([]xsupervisor.LaunchRequest(nil), l.reqs...)
}

func writeConfig(t *testing.T, dir string) string {
	hash, e := bcrypt.GenerateFromPassword([]byte("secret"), bcrypt.MinCost)
	require.NoError(t, e)
	doc := fmt.Sprintf(`
supervisor:
  name: daemontest
  listen: 127.0.0.1:0
  logdir: %[1]s
  history: %[1]s/history.db
  users:
    admin: "%[2]s"
programs:
  web:
    cmd: /usr/bin/web --port 8080
    numprocs: 2
    workingdir: %[1]s
    autostart: true
    autorestart: unexpected
    exitcodes: [0, 2]
    startretries: 3
    starttime: 0
    stopsignal: INT
    stoptime: 1
    stdout: AUTO
    stderr: NONE
    env:
      PORT: "8080"
  batch:
    cmd: /usr/bin/batch
    autostart: false
    autorestart: false
    exitcodes: 3
    stdout: %[1]s/batch.out
  cron:
    cmd: /usr/bin/cron
    autorestart: always
    exitcodes: []
`, dir, hash)
	path := filepath.Join(dir, "supervisor.yaml")
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))
	return path
}

func allIn(m *xsupervisor.Manager, name string, s xsupervisor.State) bool {
	sts, e := m.Snapshot(name)
	if e != nil || len(sts) == 0 {
		return false
	}
	for _, st := range sts {
		if st.State != s {
			return false
		}
	}
	return true
}

func TestBuildFromConfigFile(t *testing.T) {
	dir := t.TempDir()
	cfg, e := xsupervisor.LoadConfig(writeConfig(t, dir))
	require.NoError(t, e)

	web := cfg.Programs["web"]
	assert.Equal(t, xsupervisor.RestartUnexpected, web.AutoRestart)
	assert.Equal(t, []int{0, 2}, web.ExitCodes)
	assert.Equal(t, xsupervisor.RestartNever, cfg.Programs["batch"].AutoRestart)
	assert.Equal(t, []int{3}, cfg.Programs["batch"].ExitCodes)
	assert.Equal(t, xsupervisor.RestartAlways, cfg.Programs["cron"].AutoRestart)
	assert.Empty(t, cfg.Programs["cron"].ExitCodes)
	assert.Equal(t, time.Second, maxStopTime(cfg))

	l := &parkedLauncher{}
	logger := log.New(os.Stderr, "", log.LstdFlags)
	m, handler, closeHistory, e := build(cfg, logger,
		xsupervisor.WithLauncher(l), xsupervisor.WithLogWriter(nil))
	require.NoError(t, e)
	srv := httptest.NewServer(handler)
	defer func() {
		srv.Close()
		assert.NoError(t, m.Shutdown(context.Background()))
		assert.NoError(t, closeHistory())
	}()

	assert.Equal(t, "daemontest", m.Name())
	require.Eventually(t, func() bool {
		return allIn(m, "web", xsupervisor.StateRunning) &&
			allIn(m, "cron", xsupervisor.StateRunning) &&
			allIn(m, "batch", xsupervisor.StateStopped)
	}, 5*time.Second, 5*time.Millisecond)

	for _, req := range l.requests() {
		if req.Config.Name != "web" {
			continue
		}
		assert.Equal(t, dir, req.Config.WorkingDir)
		assert.Equal(t, "8080", req.Config.Env["PORT"])
		assert.Equal(t, dir, filepath.Dir(req.Stdout))
		assert.Empty(t, req.Stderr)
	}

	// The users table protects the REST surface.
	anon := rest.NewClient(nil, srv.URL)
	_, e = anon.Programs()
	assert.Error(t, e)

	c := rest.NewClient(nil, srv.URL)
	c.SetAuth("admin", "secret")
	info, e := c.GetProgram("batch")
	require.NoError(t, e)
	assert.Equal(t, "never", info.AutoRestart)
	assert.Equal(t, filepath.Join(dir, "batch.out"), info.Instances[0].Stdout)

	require.NoError(t, c.StartProgram("batch"))
	require.Eventually(t, func() bool {
		return allIn(m, "batch", xsupervisor.StateRunning)
	}, 5*time.Second, 5*time.Millisecond)

	// Transitions reach the history store configured in the file.
	require.Eventually(t, func() bool {
		recs, e := c.History("batch", 10)
		return e == nil && len(recs) > 0
	}, 5*time.Second, 20*time.Millisecond)
}

func TestBuildBadHistory(t *testing.T) {
	cfg := &xsupervisor.Config{
		Name:     "x",
		History:  filepath.Join(t.TempDir(), "missing", "dir", "history.db"),
		Programs: map[string]*xsupervisor.ProgramConfig{},
	}
	_, _, _, e := build(cfg, log.New(os.Stderr, "", 0))
	assert.ErrorContains(t, e, "failed to open history")
}
