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
	"context"
	"fmt"
	"log"
	"time"
)

// InstanceStatus is a read-only snapshot of one instance.
type InstanceStatus struct {
	Program      string    `json:"program"`
	Index        int       `json:"index"`
	ID           string    `json:"id"`
	State        State     `json:"state"`
	Pid          int       `json:"pid,omitempty"`
	StartedAt    time.Time `json:"startedAt"`
	EndedAt      time.Time `json:"endedAt"`
	StartRetries int       `json:"startRetries"`
	ExitCode     int       `json:"exitCode"`
	Reason       string    `json:"reason,omitempty"`
	Stdout       string    `json:"stdout,omitempty"`
	Stderr       string    `json:"stderr,omitempty"`
}

// Transition reports a state change of one instance to its owner.
type Transition struct {
	Program string    `json:"program"`
	Index   int       `json:"index"`
	ID      string    `json:"id"`
	From    State     `json:"from"`
	To      State     `json:"to"`
	Time    time.Time `json:"time"`
	Reason  string    `json:"reason,omitempty"`
}

type command int

const (
	cmdStart command = iota
	cmdStop
	cmdRestart
	cmdClear
	cmdShutdown
)

type timerKind int

const (
	startTimer timerKind = iota
	stopTimer
)

type request struct {
	cmd   command
	reply chan error
}

type snapshotRequest struct {
	reply chan InstanceStatus
}

type launchMsg struct {
	gen int
	ev  LaunchEvent
}

type timerMsg struct {
	seq  int
	kind timerKind
}

// Process supervises one instance of a program.  All of its state is owned
// by a single goroutine, which handles commands, launcher events and timer
// expirations strictly one at a time.  Other goroutines only talk to it
// through its inbox.
type Process struct {
	program  string
	index    int
	id       string
	cfg      *ProgramConfig
	launcher Launcher
	logger   *log.Logger
	out      chan<- Transition
	inbox    chan interface{}
	done     chan struct{}

	// Everything below belongs to the run goroutine.
	state        State
	handle       ProcessHandle
	gen          int
	seq          int
	timer        *time.Timer
	startedAt    time.Time
	endedAt      time.Time
	retries      int
	exitCode     int
	reason       string
	pendingStop  bool
	pendingStart bool
	shutdown     bool
	stdout       string
	stderr       string
}

type processOptions struct {
	index    int
	id       string
	launcher Launcher
	logDir   string
	logger   *log.Logger
	out      chan<- Transition
}

func newProcess(cfg *ProgramConfig, o processOptions) *Process {
	p := &Process{
		program:  cfg.Name,
		index:    o.index,
		id:       o.id,
		cfg:      cfg,
		launcher: o.launcher,
		logger:   o.logger,
		out:      o.out,
		inbox:    make(chan interface{}, 16),
		done:     make(chan struct{}),
		state:    StateCheckingInitial,
	}
	p.stdout = p.streamPath(cfg.Stdout, o.logDir, "stdout")
	p.stderr = p.streamPath(cfg.Stderr, o.logDir, "stderr")
	go p.run()
	return p
}

func (p *Process) streamPath(out Output, dir string, stream string) string {
	switch out.Kind {
	case OutputNone:
		return ""
	case OutputFile:
		return out.Path
	}
	return LogPath(dir, p.program, p.index, p.id, stream)
}

// Name returns the "program:index" name of the instance.
func (p *Process) Name() string {
	return fmt.Sprintf("%s:%d", p.program, p.index)
}

// ID returns the identifier that is unique to this instance.
func (p *Process) ID() string {
	return p.id
}

// Start asks the instance to run.  It is rejected with ErrFatal when the
// instance has exhausted its retries and has not been cleared.
func (p *Process) Start() error {
	return p.send(cmdStart)
}

// Stop asks the instance to stop.  A stop received while the process is
// still being spawned is applied as soon as the launcher reports back.
func (p *Process) Stop() error {
	return p.send(cmdStop)
}

// Restart stops the instance if it is executing, then starts it again.
func (p *Process) Restart() error {
	return p.send(cmdRestart)
}

// Clear resets a Fatal instance to Stopped, forgetting its failed retries.
func (p *Process) Clear() error {
	return p.send(cmdClear)
}

// Snapshot returns the current status of the instance.
func (p *Process) Snapshot() InstanceStatus {
	req := &snapshotRequest{reply: make(chan InstanceStatus, 1)}
	select {
	case p.inbox <- req:
	case <-p.done:
		return p.status()
	}
	select {
	case st := <-req.reply:
		return st
	case <-p.done:
		return p.status()
	}
}

// Shutdown stops the instance and terminates its goroutine once the
// process is gone.
func (p *Process) Shutdown(ctx context.Context) error {
	if e := p.send(cmdShutdown); e != nil && e != ErrShutdown {
		return e
	}
	select {
	case <-p.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Done is closed once the instance has been shut down.
func (p *Process) Done() <-chan struct{} {
	return p.done
}

func (p *Process) send(cmd command) error {
	req := &request{cmd: cmd, reply: make(chan error, 1)}
	select {
	case p.inbox <- req:
	case <-p.done:
		return ErrShutdown
	}
	select {
	case e := <-req.reply:
		return e
	case <-p.done:
		select {
		case e := <-req.reply:
			return e
		default:
			return ErrShutdown
		}
	}
}

// post delivers an internal event.  It never blocks once the run
// goroutine has finished.
func (p *Process) post(msg interface{}) {
	select {
	case p.inbox <- msg:
	case <-p.done:
	}
}

func (p *Process) logf(format string, v ...interface{}) {
	if p.logger != nil {
		p.logger.Printf(format, v...)
	}
}

func (p *Process) run() {
	defer close(p.done)

	if p.cfg.AutoStart {
		p.spawn("autostart")
	} else {
		p.enter(StateStopped, "autostart disabled")
	}
	for !(p.shutdown && p.state.Resting()) {
		switch m := (<-p.inbox).(type) {
		case *request:
			m.reply <- p.command(m.cmd)
		case *snapshotRequest:
			m.reply <- p.status()
		case launchMsg:
			if m.gen == p.gen {
				p.launched(m.ev)
			}
		case timerMsg:
			if m.seq == p.seq {
				p.fired(m.kind)
			}
		}
	}
	p.disarm()
	p.logf("Supervision ended in state %s", p.state)
}

func (p *Process) status() InstanceStatus {
	st := InstanceStatus{
		Program:      p.program,
		Index:        p.index,
		ID:           p.id,
		State:        p.state,
		StartedAt:    p.startedAt,
		EndedAt:      p.endedAt,
		StartRetries: p.retries,
		ExitCode:     p.exitCode,
		Reason:       p.reason,
		Stdout:       p.stdout,
		Stderr:       p.stderr,
	}
	if p.handle != nil {
		st.Pid = p.handle.Pid()
	}
	return st
}

func (p *Process) enter(to State, reason string) {
	from := p.state
	p.state = to
	if reason != "" {
		p.logf("%s -> %s: %s", from, to, reason)
	} else {
		p.logf("%s -> %s", from, to)
	}
	if p.out != nil {
		p.out <- Transition{
			Program: p.program,
			Index:   p.index,
			ID:      p.id,
			From:    from,
			To:      to,
			Time:    time.Now(),
			Reason:  reason,
		}
	}
}

func (p *Process) command(cmd command) error {
	switch cmd {
	case cmdStart:
		return p.start("start requested")

	case cmdStop:
		p.pendingStart = false
		p.halt("stop requested")

	case cmdRestart:
		switch p.state {
		case StateSpawning, StateStarting, StateRunning, StateStopping:
			p.halt("restart requested")
			p.pendingStart = true
		default:
			return p.start("restart requested")
		}

	case cmdClear:
		if p.state == StateFatal {
			p.retries = 0
			p.reason = ""
			p.enter(StateStopped, "fault cleared")
		}

	case cmdShutdown:
		p.shutdown = true
		p.pendingStart = false
		p.halt("shutting down")
	}
	return nil
}

func (p *Process) start(reason string) error {
	switch p.state {
	case StateStopped, StateExited:
		if p.shutdown {
			return ErrShutdown
		}
		p.retries = 0
		p.spawn(reason)
	case StateFatal:
		return ErrFatal
	case StateSpawning:
		p.pendingStop = false
	case StateStopping:
		p.pendingStart = true
	}
	return nil
}

// halt moves an executing instance towards Stopped.
func (p *Process) halt(reason string) {
	switch p.state {
	case StateSpawning:
		// Nothing to signal yet.
		if !p.pendingStop {
			p.logf("Stop queued until the process is spawned")
		}
		p.pendingStop = true
	case StateStarting, StateRunning:
		p.stop(reason)
	}
}

func (p *Process) spawn(reason string) {
	p.gen++
	p.handle = nil
	p.pendingStop = false
	p.enter(StateSpawning, reason)

	gen := p.gen
	req := LaunchRequest{
		Config: p.cfg,
		Index:  p.index,
		ID:     p.id,
		Stdout: p.stdout,
		Stderr: p.stderr,
	}
	p.launcher.Launch(req, func(ev LaunchEvent) {
		p.post(launchMsg{gen: gen, ev: ev})
	})
}

func (p *Process) launched(ev LaunchEvent) {
	switch ev.Kind {
	case ProcessSpawned:
		if p.state != StateSpawning {
			return
		}
		p.handle = ev.Handle
		p.startedAt = time.Now()
		p.endedAt = time.Time{}
		p.exitCode = 0
		p.enter(StateStarting, fmt.Sprintf("pid %d", ev.Handle.Pid()))
		if p.pendingStop {
			p.pendingStop = false
			p.stop("stop requested while spawning")
			return
		}
		p.arm(startTimer, p.cfg.StartTime)

	case ProcessError:
		p.handle = nil
		e := fmt.Errorf("%w: %v", ErrSpawnFailed, ev.Err)
		if p.pendingStop {
			p.pendingStop = false
			p.reason = e.Error()
			p.settle(e.Error())
			return
		}
		p.backoff(e)

	case ProcessExited:
		p.exited(ev)
	}
}

func (p *Process) exited(ev LaunchEvent) {
	p.handle = nil
	p.endedAt = time.Now()
	p.exitCode = ev.ExitCode
	p.disarm()

	how := "exit status 0"
	if ev.Err != nil {
		how = ev.Err.Error()
	}

	switch p.state {
	case StateSpawning, StateStarting:
		if p.pendingStop {
			p.pendingStop = false
			p.settle(how)
			return
		}
		p.backoff(fmt.Errorf("%w: %s", ErrPrematureExit, how))

	case StateRunning:
		if !p.cfg.ShouldRestart(ev.ExitCode) {
			p.reason = how
			p.enter(StateExited, how)
			return
		}
		if p.cfg.Expected(ev.ExitCode) {
			p.backoff(fmt.Errorf("%s, autorestart %s", how, p.cfg.AutoRestart))
		} else {
			p.backoff(fmt.Errorf("%w: %s", ErrUnexpectedExit, how))
		}

	case StateStopping:
		p.reason = ""
		p.settle(how)
	}
}

// settle enters Stopped, and honors a start that was queued meanwhile.
func (p *Process) settle(reason string) {
	p.enter(StateStopped, reason)
	if p.pendingStart && !p.shutdown {
		p.pendingStart = false
		p.retries = 0
		p.spawn("start requested while stopping")
	}
}

func (p *Process) backoff(cause error) {
	p.reason = cause.Error()
	p.enter(StateBackoff, p.reason)
	if p.shutdown {
		p.enter(StateStopped, "shutting down")
		return
	}
	if p.retries >= p.cfg.StartRetries {
		p.reason = fmt.Sprintf("%v (%d retries): %v",
			ErrRetriesExhausted, p.retries, cause)
		p.enter(StateFatal, p.reason)
		return
	}
	p.retries++
	p.spawn(fmt.Sprintf("retry %d of %d", p.retries, p.cfg.StartRetries))
}

func (p *Process) stop(reason string) {
	p.disarm()
	p.enter(StateStopping, reason)
	if e := p.handle.Signal(p.cfg.StopSignal); e != nil {
		p.logf("Failed sending SIG%s: %v", p.cfg.StopSignalName, e)
	}
	p.arm(stopTimer, p.cfg.StopTime)
}

func (p *Process) fired(kind timerKind) {
	p.timer = nil
	switch kind {
	case startTimer:
		if p.state == StateStarting {
			p.retries = 0
			p.reason = ""
			p.enter(StateRunning, fmt.Sprintf("stable for %v", p.cfg.StartTime))
		}
	case stopTimer:
		if p.state == StateStopping && p.handle != nil {
			p.logf("Graceful shutdown timed out after %v, killing", p.cfg.StopTime)
			if e := p.handle.Kill(); e != nil {
				p.logf("Failed killing: %v", e)
			}
		}
	}
}

func (p *Process) arm(kind timerKind, d time.Duration) {
	p.disarm()
	seq := p.seq
	p.timer = time.AfterFunc(d, func() {
		p.post(timerMsg{seq: seq, kind: kind})
	})
}

// disarm cancels the pending timer.  A timer that already fired has its
// message discarded, since the sequence number moves on.
func (p *Process) disarm() {
	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
	p.seq++
}
