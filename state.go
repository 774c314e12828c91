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
	"fmt"
	"strings"
)

// State is the state of a single process instance.  The Executing
// composite state has three substates, Spawning, Starting and Running,
// whose names are qualified with the parent ("Executing.Running").
type State int

const (
	StateCheckingInitial State = iota
	StateStopped
	StateSpawning
	StateStarting
	StateRunning
	StateStopping
	StateBackoff
	StateExited
	StateFatal
)

const executing = "Executing"

var stateNames = map[State]string{
	StateCheckingInitial: "CheckingInitial",
	StateStopped:         "Stopped",
	StateSpawning:        "Spawning",
	StateStarting:        "Starting",
	StateRunning:         "Running",
	StateStopping:        "Stopping",
	StateBackoff:         "Backoff",
	StateExited:          "Exited",
	StateFatal:           "Fatal",
}

// Executing reports whether s is one of the Executing substates.
func (s State) Executing() bool {
	return s == StateSpawning || s == StateStarting || s == StateRunning
}

// Resting reports whether the state machine waits for an operator
// command in s.  Nothing happens to a resting instance on its own.
func (s State) Resting() bool {
	return s == StateStopped || s == StateExited || s == StateFatal
}

func (s State) String() string {
	name, ok := stateNames[s]
	if !ok {
		return fmt.Sprintf("State(%d)", int(s))
	}
	if s.Executing() {
		return executing + "." + name
	}
	return name
}

func (s State) MarshalText() ([]byte, error) {
	if _, ok := stateNames[s]; !ok {
		return nil, fmt.Errorf("bad state %d", int(s))
	}
	return []byte(s.String()), nil
}

func (s *State) UnmarshalText(b []byte) error {
	v, e := ParseState(string(b))
	if e != nil {
		return e
	}
	*s = v
	return nil
}

// ParseState parses a state name as produced by String.  The bare
// substate names ("Running") are accepted as well.
func ParseState(name string) (State, error) {
	name = strings.TrimPrefix(name, executing+".")
	for s, n := range stateNames {
		if n == name {
			return s, nil
		}
	}
	return 0, fmt.Errorf("unknown state %q", name)
}
