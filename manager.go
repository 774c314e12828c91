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
	"errors"
	"io"
	"log"
	"os"
	"sync"
	"time"
)

// Recorder receives every state transition of every instance, for example
// to keep a history.  Record is called from the goroutine relaying the
// program's transitions, so it should not block for long.
type Recorder interface {
	Record(t Transition)
}

// Manager is the root supervisor.  It owns one Program per configured
// program name; the set of programs is built once by NewManager and never
// changes afterwards.  Every transition of every instance bumps the
// manager's serial number, which clients can long-poll with WatchSerial.
type Manager struct {
	name       string
	programs   map[string]*Program
	names      []string
	launcher   Launcher
	recorder   Recorder
	logDir     string
	writer     io.Writer
	logger     *log.Logger
	log        *Log
	mlog       *MultiLogger
	serial     int64
	createTime time.Time
	updateTime time.Time
	closed     bool
	mx         sync.Mutex
	cvs        map[*sync.Cond]bool
}

type ManagerInfo struct {
	Name       string
	Serial     int64
	UpdateTime time.Time
	CreateTime time.Time
}

// Option customizes a Manager created by NewManager.
type Option func(*Manager)

// WithLauncher replaces the ExecLauncher used to start processes.
func WithLauncher(l Launcher) Option {
	return func(m *Manager) { m.launcher = l }
}

// WithRecorder registers r to receive every transition.
func WithRecorder(r Recorder) Option {
	return func(m *Manager) { m.recorder = r }
}

// WithLogWriter sends the log to w instead of stderr.  A nil writer keeps
// the log in memory only.
func WithLogWriter(w io.Writer) Option {
	return func(m *Manager) { m.writer = w }
}

// WithName overrides the configured manager name.
func WithName(name string) Option {
	return func(m *Manager) { m.name = name }
}

func (m *Manager) lock() {
	m.mx.Lock()
}

func (m *Manager) unlock() {
	m.mx.Unlock()
}

// bumpSerial increments the serial and wakes up watchers.  Call with
// the lock held, so that the woken goroutines see the new value.
func (m *Manager) bumpSerial() {
	m.updateTime = time.Now()
	m.serial++
	for cv := range m.cvs {
		cv.Broadcast()
	}
}

// WatchSerial waits for the serial number to differ from old.  It returns
// the current serial number once it changes, or when expire has elapsed.
// An expire of zero just polls.
func (m *Manager) WatchSerial(old int64, expire time.Duration) int64 {
	expired := false
	cv := sync.NewCond(&m.mx)
	var timer *time.Timer
	var rv int64

	if expire > 0 {
		timer = time.AfterFunc(expire, func() {
			m.lock()
			expired = true
			cv.Broadcast()
			m.unlock()
		})
	} else {
		expired = true
	}

	m.lock()
	m.cvs[cv] = true
	for {
		rv = m.serial
		if rv != old || expired {
			break
		}
		cv.Wait()
	}
	delete(m.cvs, cv)
	m.unlock()
	if timer != nil {
		timer.Stop()
	}
	return rv
}

// Serial returns the global serial number.  It is incremented on every
// state transition of every instance.
func (m *Manager) Serial() int64 {
	m.lock()
	defer m.unlock()
	return m.serial
}

// Name returns the name the manager was created with.
func (m *Manager) Name() string {
	return m.name
}

// GetInfo returns top-level information about the Manager, consistently.
func (m *Manager) GetInfo() *ManagerInfo {
	m.lock()
	defer m.unlock()
	return &ManagerInfo{
		Name:       m.name,
		Serial:     m.serial,
		CreateTime: m.createTime,
		UpdateTime: m.updateTime,
	}
}

// Names returns the program names, sorted.
func (m *Manager) Names() []string {
	return append([]string(nil), m.names...)
}

// Program looks a program up by name.
func (m *Manager) Program(name string) (*Program, error) {
	if p, ok := m.programs[name]; ok {
		return p, nil
	}
	return nil, ErrNotFound
}

// Start starts every instance of the named program.
func (m *Manager) Start(name string) error {
	return m.apply(name, "start", (*Program).Start)
}

// Stop stops every instance of the named program.
func (m *Manager) Stop(name string) error {
	return m.apply(name, "stop", (*Program).Stop)
}

// Restart restarts every instance of the named program.
func (m *Manager) Restart(name string) error {
	return m.apply(name, "restart", (*Program).Restart)
}

// Clear clears the Fatal instances of the named program.
func (m *Manager) Clear(name string) error {
	return m.apply(name, "clear", (*Program).Clear)
}

func (m *Manager) apply(name string, what string, fn func(*Program)) error {
	p, e := m.Program(name)
	if e != nil {
		return e
	}
	m.lock()
	closed := m.closed
	m.unlock()
	if closed {
		return ErrShutdown
	}
	m.logf("Request to %s %s", what, name)
	fn(p)
	return nil
}

// Snapshot returns the status of every instance of the named program.
func (m *Manager) Snapshot(name string) ([]InstanceStatus, error) {
	p, e := m.Program(name)
	if e != nil {
		return nil, e
	}
	return p.Snapshot(), nil
}

// observe is called for each transition relayed by a Program.
func (m *Manager) observe(t Transition) {
	m.lock()
	m.bumpSerial()
	m.unlock()
	if m.recorder != nil {
		m.recorder.Record(t)
	}
}

func (m *Manager) logf(format string, v ...interface{}) {
	m.logger.Printf(format, v...)
}

// Logger returns a logger whose output lands in the manager's log.
func (m *Manager) Logger() *log.Logger {
	return m.logger
}

// GetLog returns the manager's log records and the current log id.
func (m *Manager) GetLog(lastid int64) ([]LogRecord, int64) {
	return m.log.GetRecords(lastid)
}

func (m *Manager) WatchLog(old int64, expire time.Duration) int64 {
	return m.log.Watch(old, expire)
}

// Shutdown gracefully stops every instance of every program.  It returns
// once all of them are gone, or with the context's error if ctx ends
// first.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.lock()
	if m.closed {
		m.unlock()
		return nil
	}
	m.closed = true
	m.unlock()

	m.logf("*** %s shutting down ***", m.name)
	errs := make([]error, len(m.names))
	var wg sync.WaitGroup
	for i, name := range m.names {
		wg.Add(1)
		go func(i int, p *Program) {
			defer wg.Done()
			errs[i] = p.Shutdown(ctx)
		}(i, m.programs[name])
	}
	wg.Wait()
	e := errors.Join(errs...)
	if e != nil {
		m.logf("*** %s shut down with errors: %v ***", m.name, e)
	} else {
		m.logf("*** %s shut down ***", m.name)
	}
	return e
}

// NewManager creates the supervision tree for cfg.  Programs are started
// right away, and each of their instances runs its autostart check.
func NewManager(cfg *Config, opts ...Option) *Manager {
	// The serial starts from the clock, so that a client caching state
	// notices when the daemon was restarted.
	now := time.Now()
	m := &Manager{
		name:       cfg.Name,
		launcher:   ExecLauncher{},
		logDir:     cfg.LogDir,
		writer:     os.Stderr,
		serial:     now.UnixNano(),
		createTime: now,
		updateTime: now,
		programs:   make(map[string]*Program),
		cvs:        make(map[*sync.Cond]bool),
	}
	for _, o := range opts {
		o(m)
	}
	if m.name == "" {
		m.name = DefaultName
	}
	if m.logDir == "" {
		m.logDir = os.TempDir()
	}
	m.log = NewLog()
	m.mlog = NewMultiLogger(log.New(m.log, "", 0))
	if m.writer != nil {
		m.mlog.AddLogger(log.New(m.writer, "", log.LstdFlags))
	}
	m.logger = m.mlog.Logger("")

	m.logf("*** %s starting with %d programs ***", m.name, len(cfg.Programs))
	m.names = cfg.ProgramNames()
	for _, name := range m.names {
		m.programs[name] = newProgram(cfg.Programs[name], programOptions{
			launcher: m.launcher,
			logDir:   m.logDir,
			parent:   m.mlog,
			notify:   m.observe,
		})
	}
	return m
}
