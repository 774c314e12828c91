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

//go:build unix

package xsupervisor

import (
	"fmt"
	"strings"
	"syscall"

	"golang.org/x/sys/unix"
)

// The signals a program may use as its stopsignal.
var stopSignals = []string{"TERM", "HUP", "INT", "QUIT", "KILL", "USR1", "USR2"}

// parseStopSignal accepts both "TERM" and "SIGTERM", in any case, and
// returns the signal with its short upper case name.
func parseStopSignal(name string) (syscall.Signal, string, error) {
	short := strings.TrimPrefix(strings.ToUpper(strings.TrimSpace(name)), "SIG")
	for _, s := range stopSignals {
		if s != short {
			continue
		}
		if sig := unix.SignalNum("SIG" + s); sig != 0 {
			return sig, s, nil
		}
		break
	}
	return 0, "", fmt.Errorf("unsupported signal %q (want one of %s)",
		name, strings.Join(stopSignals, ", "))
}
