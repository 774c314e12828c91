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
	"fmt"
	"log"
	"sync"

	"github.com/google/uuid"
)

// Program supervises the numprocs instances of one configured program.
// The set of instances is fixed when the Program is created; each of them
// runs its own lifecycle independently of its siblings.
type Program struct {
	name   string
	cfg    *ProgramConfig
	procs  []*Process
	log    *Log
	logger *log.Logger
	events chan Transition
	notify func(Transition)
	done   chan struct{}
}

type programOptions struct {
	launcher Launcher
	logDir   string
	parent   *MultiLogger
	notify   func(Transition)
}

func newProgram(cfg *ProgramConfig, o programOptions) *Program {
	p := &Program{
		name:   cfg.Name,
		cfg:    cfg,
		log:    NewLog(),
		events: make(chan Transition, 4*cfg.NumProcs),
		notify: o.notify,
		done:   make(chan struct{}),
	}
	mlog := NewMultiLogger(log.New(p.log, "", 0))
	if o.parent != nil {
		mlog.AddLogger(log.New(o.parent, "", 0))
	}
	p.logger = mlog.Logger(fmt.Sprintf("[%s] ", p.name))

	p.procs = make([]*Process, 0, cfg.NumProcs)
	for i := 0; i < cfg.NumProcs; i++ {
		p.procs = append(p.procs, newProcess(cfg, processOptions{
			index:    i,
			id:       uuid.NewString(),
			launcher: o.launcher,
			logDir:   o.logDir,
			logger:   mlog.Logger(fmt.Sprintf("[%s:%d] ", p.name, i)),
			out:      p.events,
		}))
	}
	go p.forward()
	go func() {
		for _, proc := range p.procs {
			<-proc.Done()
		}
		close(p.events)
	}()
	return p
}

// forward relays the transitions of every instance upwards until all of
// them have shut down.
func (p *Program) forward() {
	defer close(p.done)
	for t := range p.events {
		if p.notify != nil {
			p.notify(t)
		}
	}
}

func (p *Program) Name() string {
	return p.name
}

// Config returns the configuration shared by every instance.  It must not
// be modified.
func (p *Program) Config() *ProgramConfig {
	return p.cfg
}

// Instances returns the instances in index order.
func (p *Program) Instances() []*Process {
	return append([]*Process(nil), p.procs...)
}

// Log returns the ring holding this program's log lines.
func (p *Program) Log() *Log {
	return p.log
}

// each applies fn to every instance concurrently, and waits for all of
// them to acknowledge.  Rejections are logged.
func (p *Program) each(what string, fn func(*Process) error) {
	var wg sync.WaitGroup
	for _, proc := range p.procs {
		wg.Add(1)
		go func(proc *Process) {
			defer wg.Done()
			if e := fn(proc); e != nil {
				p.logger.Printf("Instance %d refused %s: %v", proc.index, what, e)
			}
		}(proc)
	}
	wg.Wait()
}

func (p *Program) Start() {
	p.each("start", (*Process).Start)
}

func (p *Program) Stop() {
	p.each("stop", (*Process).Stop)
}

func (p *Program) Restart() {
	p.each("restart", (*Process).Restart)
}

// Clear resets every Fatal instance to Stopped.
func (p *Program) Clear() {
	p.each("clear", (*Process).Clear)
}

// Snapshot returns the status of every instance, in index order.
func (p *Program) Snapshot() []InstanceStatus {
	rv := make([]InstanceStatus, 0, len(p.procs))
	for _, proc := range p.procs {
		rv = append(rv, proc.Snapshot())
	}
	return rv
}

// Shutdown stops every instance and waits until all of them are gone, or
// until ctx is done.
func (p *Program) Shutdown(ctx context.Context) error {
	errs := make([]error, len(p.procs))
	var wg sync.WaitGroup
	for i, proc := range p.procs {
		wg.Add(1)
		go func(i int, proc *Process) {
			defer wg.Done()
			if e := proc.Shutdown(ctx); e != nil {
				errs[i] = fmt.Errorf("%s: %w", proc.Name(), e)
			}
		}(i, proc)
	}
	wg.Wait()
	if e := errors.Join(errs...); e != nil {
		return e
	}
	select {
	case <-p.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
