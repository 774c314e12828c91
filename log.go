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
	"strings"
	"sync"
	"time"
)

// MaxLogRecords is the capacity of a Log ring.
const MaxLogRecords = 1000

type LogRecord struct {
	Id   int64     `json:"id,string"`
	Time time.Time `json:"time"`
	Text string    `json:"text"`
}

// Log is an in-memory ring of log lines.  It implements io.Writer, so it
// can sit behind a log.Logger.  Every record gets an id one larger than its
// predecessor; the id of the newest record can be used as an ETag and
// waited upon for changes.
type Log struct {
	records []LogRecord
	next    int // total records ever written since the last Clear
	id      int64
	changed chan struct{}
	mx      sync.Mutex
}

func NewLog() *Log {
	return &Log{
		records: make([]LogRecord, MaxLogRecords),
		// Starting from the clock lets clients notice a restarted daemon.
		id:      time.Now().UnixNano(),
		changed: make(chan struct{}),
	}
}

func (l *Log) Write(b []byte) (int, error) {
	now := time.Now()
	l.mx.Lock()
	for _, line := range strings.Split(strings.TrimRight(string(b), "\n"), "\n") {
		l.id++
		l.records[l.next%len(l.records)] = LogRecord{
			Id:   l.id,
			Time: now,
			Text: line,
		}
		l.next++
	}
	l.wake()
	l.mx.Unlock()
	return len(b), nil
}

// wake releases every waiter.  Call with the lock held.
func (l *Log) wake() {
	close(l.changed)
	l.changed = make(chan struct{})
}

// Clear drops all records.
func (l *Log) Clear() {
	l.mx.Lock()
	l.next = 0
	l.id = time.Now().UnixNano()
	l.wake()
	l.mx.Unlock()
}

// Id returns the id of the most recent record.
func (l *Log) Id() int64 {
	l.mx.Lock()
	defer l.mx.Unlock()
	return l.id
}

// GetRecords returns the retained records, oldest first, and the current
// id.  If last already equals the current id there is nothing new and nil
// is returned.
func (l *Log) GetRecords(last int64) ([]LogRecord, int64) {
	l.mx.Lock()
	defer l.mx.Unlock()

	if l.id == last {
		return nil, last
	}
	n := l.next
	if n > len(l.records) {
		n = len(l.records)
	}
	recs := make([]LogRecord, 0, n)
	for i := l.next - n; i < l.next; i++ {
		recs = append(recs, l.records[i%len(l.records)])
	}
	return recs, l.id
}

// Watch waits until the id differs from last, or until expire has
// elapsed, and returns the id at that point.  An expire of zero polls.
func (l *Log) Watch(last int64, expire time.Duration) int64 {
	var timeout <-chan time.Time
	if expire > 0 {
		t := time.NewTimer(expire)
		defer t.Stop()
		timeout = t.C
	}
	for {
		l.mx.Lock()
		id, changed := l.id, l.changed
		l.mx.Unlock()
		if id != last || timeout == nil {
			return id
		}
		select {
		case <-changed:
		case <-timeout:
			return l.Id()
		}
	}
}
