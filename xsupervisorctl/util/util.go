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


// Package util is used for internal implementation bits in the CLI/UI.
package util

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/Devessier/xsupervisor"
	"github.com/Devessier/xsupervisor/rest"
)

// Class groups states by how an operator should read them.
type Class int

const (
	ClassNormal Class = iota
	ClassGood
	ClassWarn
	ClassError
)

// Label returns the short lower case name shown for a state.
func Label(s xsupervisor.State) string {
	switch s {
	case xsupervisor.StateCheckingInitial:
		return "initial"
	case xsupervisor.StateStopped:
		return "stopped"
	case xsupervisor.StateSpawning:
		return "spawning"
	case xsupervisor.StateStarting:
		return "starting"
	case xsupervisor.StateRunning:
		return "running"
	case xsupervisor.StateStopping:
		return "stopping"
	case xsupervisor.StateBackoff:
		return "backoff"
	case xsupervisor.StateExited:
		return "exited"
	case xsupervisor.StateFatal:
		return "fatal"
	}
	return strings.ToLower(s.String())
}

func StateClass(s xsupervisor.State) Class {
	switch s {
	case xsupervisor.StateRunning:
		return ClassGood
	case xsupervisor.StateFatal:
		return ClassError
	case xsupervisor.StateStopped, xsupervisor.StateCheckingInitial:
		return ClassNormal
	}
	return ClassWarn
}

// ProgramClass is the worst class of any instance of p.
func ProgramClass(p *rest.ProgramInfo) Class {
	c := ClassNormal
	for _, st := range p.Instances {
		if sc := StateClass(st.State); sc > c {
			c = sc
		}
	}
	return c
}

// Failed reports whether any instance of p is Fatal.
func Failed(p *rest.ProgramInfo) bool {
	for _, st := range p.Instances {
		if st.State == xsupervisor.StateFatal {
			return true
		}
	}
	return false
}

// Since returns how long st has been in its current phase: the time
// since the last spawn while executing, or since the last exit
// otherwise.  Zero if the instance never ran.
func Since(st xsupervisor.InstanceStatus, now time.Time) time.Duration {
	t := st.EndedAt
	if st.State.Executing() || st.State == xsupervisor.StateStopping {
		t = st.StartedAt
	}
	if t.IsZero() || now.Before(t) {
		return 0
	}
	d := now.Sub(t)
	return d - d%time.Second
}

func FormatDuration(d time.Duration) string {

	sec := int((d % time.Minute) / time.Second)
	min := int((d % time.Hour) / time.Minute)
	hour := int(d / time.Hour)

	return fmt.Sprintf("%d:%02d:%02d", hour, min, sec)
}

// Describe renders one instance as a status line.
func Describe(st xsupervisor.InstanceStatus, now time.Time) string {
	name := fmt.Sprintf("%s:%d", st.Program, st.Index)
	detail := st.Reason
	if st.Pid != 0 && st.State.Executing() {
		detail = fmt.Sprintf("pid %d", st.Pid)
		if st.Reason != "" {
			detail += ", " + st.Reason
		}
	}
	return fmt.Sprintf("%-24s %-9s %10s   %s",
		name, Label(st.State), FormatDuration(Since(st, now)), detail)
}

type sorted []*rest.ProgramInfo

func (s sorted) Swap(i, j int) {
	s[i], s[j] = s[j], s[i]
}

func (s sorted) Len() int {
	return len(s)
}

func (s sorted) Less(i, j int) bool {
	a := s[i]
	b := s[j]

	if fa, fb := Failed(a), Failed(b); fa != fb {
		// put failed items at front
		return fa
	}
	return a.Name < b.Name
}

func SortPrograms(items []*rest.ProgramInfo) {
	sort.Sort(sorted(items))
}
