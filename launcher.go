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
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
)

// LaunchEventKind identifies what a Launcher is reporting.
type LaunchEventKind int

const (
	ProcessSpawned LaunchEventKind = iota // Handle is set
	ProcessError                          // Err is set, nothing runs
	ProcessExited                         // ExitCode is set
)

func (k LaunchEventKind) String() string {
	switch k {
	case ProcessSpawned:
		return "spawned"
	case ProcessError:
		return "error"
	case ProcessExited:
		return "exited"
	}
	return "unknown"
}

type LaunchEvent struct {
	Kind     LaunchEventKind
	Handle   ProcessHandle
	ExitCode int
	Err      error
}

// ProcessHandle is the running OS process behind an instance.  Only the
// Process that received it in a ProcessSpawned event ever uses it.
type ProcessHandle interface {
	Pid() int
	Signal(sig os.Signal) error
	Kill() error
}

// LaunchRequest is everything a Launcher needs for one spawn attempt.
// Stdout and Stderr are file paths, or empty to discard the stream.
type LaunchRequest struct {
	Config *ProgramConfig
	Index  int
	ID     string
	Stdout string
	Stderr string
}

// Launcher is what process launchers must implement.  Launch must not
// block, and must call notify from another goroutine: either once with
// ProcessError, or once with ProcessSpawned followed, when the process
// terminates for whatever reason, by exactly one ProcessExited.
// Launchers keep no state between invocations.
type Launcher interface {
	Launch(req LaunchRequest, notify func(LaunchEvent))
}

// LogPath returns the file used for an Auto stream of an instance.  The
// instance id keeps replicas of one program from sharing files.
func LogPath(dir string, program string, index int, id string, stream string) string {
	name := fmt.Sprintf("xsupervisor-%s-%d-%s-%s.log", program, index, id, stream)
	return filepath.Join(dir, name)
}

// ExecLauncher launches real operating system processes with os/exec.
type ExecLauncher struct{}

func (ExecLauncher) Launch(req LaunchRequest, notify func(LaunchEvent)) {
	go launch(req, notify)
}

func launch(req LaunchRequest, notify func(LaunchEvent)) {
	argv := req.Config.Argv()
	if len(argv) == 0 {
		notify(LaunchEvent{Kind: ProcessError, Err: errors.New("empty command")})
		return
	}
	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Dir = req.Config.WorkingDir
	cmd.Env = environ(req)

	var files []*os.File
	closeFiles := func() {
		for _, f := range files {
			f.Close()
		}
	}
	if req.Stdout != "" {
		f, e := openLog(req.Stdout)
		if e != nil {
			notify(LaunchEvent{Kind: ProcessError, Err: e})
			return
		}
		files = append(files, f)
		cmd.Stdout = f
	}
	if req.Stderr != "" {
		f, e := openLog(req.Stderr)
		if e != nil {
			closeFiles()
			notify(LaunchEvent{Kind: ProcessError, Err: e})
			return
		}
		files = append(files, f)
		cmd.Stderr = f
	}

	e := cmd.Start()
	// The child holds its own descriptors now.
	closeFiles()
	if e != nil {
		notify(LaunchEvent{Kind: ProcessError, Err: e})
		return
	}
	notify(LaunchEvent{Kind: ProcessSpawned, Handle: execHandle{cmd.Process}})

	e = cmd.Wait()
	code := 0
	if e != nil {
		var ee *exec.ExitError
		if errors.As(e, &ee) {
			code = ee.ExitCode()
		} else {
			code = -1
		}
	}
	notify(LaunchEvent{Kind: ProcessExited, ExitCode: code, Err: e})
}

func openLog(path string) (*os.File, error) {
	return os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
}

func environ(req LaunchRequest) []string {
	env := os.Environ()
	keys := make([]string, 0, len(req.Config.Env))
	for k := range req.Config.Env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		env = append(env, k+"="+req.Config.Env[k])
	}
	return append(env,
		"XSUPERVISOR_PROGRAM="+req.Config.Name,
		"XSUPERVISOR_INSTANCE="+strconv.Itoa(req.Index),
		"XSUPERVISOR_INSTANCE_ID="+req.ID)
}

type execHandle struct {
	p *os.Process
}

func (h execHandle) Pid() int {
	return h.p.Pid
}

func (h execHandle) Signal(sig os.Signal) error {
	return h.p.Signal(sig)
}

func (h execHandle) Kill() error {
	return h.p.Kill()
}
