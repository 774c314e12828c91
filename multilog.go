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
	"log"
	"strings"
	"sync"
)

// MultiLogger is an io.Writer that relays every line it receives to a
// dynamic set of loggers.  The loggers add their own prefixes and flags,
// so the same line can land timestamped on stderr and bare in a Log ring.
type MultiLogger struct {
	loggers []*log.Logger
	lock    sync.Mutex
}

func NewMultiLogger(loggers ...*log.Logger) *MultiLogger {
	return &MultiLogger{loggers: loggers}
}

func (l *MultiLogger) Write(b []byte) (int, error) {
	lines := strings.Split(strings.TrimRight(string(b), "\n"), "\n")
	l.lock.Lock()
	for _, logger := range l.loggers {
		for _, line := range lines {
			logger.Println(line)
		}
	}
	l.lock.Unlock()
	return len(b), nil
}

func (l *MultiLogger) AddLogger(logger *log.Logger) {
	l.lock.Lock()
	defer l.lock.Unlock()
	for _, x := range l.loggers {
		if x == logger {
			return
		}
	}
	l.loggers = append(l.loggers, logger)
}

func (l *MultiLogger) DelLogger(logger *log.Logger) {
	l.lock.Lock()
	defer l.lock.Unlock()
	for i, x := range l.loggers {
		if x == logger {
			l.loggers = append(l.loggers[:i:i], l.loggers[i+1:]...)
			return
		}
	}
}

// Logger returns a new logger that writes through l, prefixing each line.
func (l *MultiLogger) Logger(prefix string) *log.Logger {
	return log.New(l, prefix, 0)
}
