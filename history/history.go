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

// Package history keeps the state transitions of supervised instances in
// a SQLite database, so that they survive daemon restarts.
package history

import (
	"context"
	"errors"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"

	"github.com/Devessier/xsupervisor"
)

const schema = `
CREATE TABLE IF NOT EXISTS transitions (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	program TEXT NOT NULL,
	instance INTEGER NOT NULL,
	instance_id TEXT NOT NULL,
	from_state TEXT NOT NULL,
	to_state TEXT NOT NULL,
	reason TEXT NOT NULL DEFAULT '',
	at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS transitions_program ON transitions (program, id);
`

const insertSql = `
INSERT INTO transitions (program, instance, instance_id, from_state, to_state, reason, at)
VALUES (:program, :instance, :instance_id, :from_state, :to_state, :reason, :at)
`

const querySql = `
SELECT id, program, instance, instance_id, from_state, to_state, reason, at
FROM transitions
WHERE program = ?
ORDER BY id DESC
LIMIT ?
`

// DefaultLimit is the number of records Query returns when asked for none.
const DefaultLimit = 100

// queueSize bounds the transitions waiting to be written.  Transitions
// arriving while the queue is full are dropped, and logged.
const queueSize = 1024

var ErrClosed = errors.New("History store is closed")

// Record is one stored transition.
type Record struct {
	Id         int64     `db:"id" json:"id"`
	Program    string    `db:"program" json:"program"`
	Instance   int       `db:"instance" json:"instance"`
	InstanceId string    `db:"instance_id" json:"instanceId"`
	From       string    `db:"from_state" json:"from"`
	To         string    `db:"to_state" json:"to"`
	Reason     string    `db:"reason" json:"reason,omitempty"`
	Time       time.Time `db:"at" json:"time"`
}

type op struct {
	rec  *Record
	done chan struct{}
}

// Store is a transition history backed by SQLite.  It implements
// xsupervisor.Recorder; writes happen on a goroutine of their own, so that
// recording never holds up a supervisor.
type Store struct {
	db      *sqlx.DB
	logger  *log.Logger
	queue   chan op
	wg      sync.WaitGroup
	mx      sync.RWMutex // write locked only to close the queue
	closed  bool
	dropped atomic.Int64
}

// Open opens, creating it if needed, the database at path.  Errors while
// writing are reported to logger, which may be nil.
func Open(path string, logger *log.Logger) (*Store, error) {
	db, err := sqlx.Connect("sqlite3", path)
	if err != nil {
		return nil, err
	}
	// SQLite serializes writers anyway.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, err
	}
	s := &Store{
		db:     db,
		logger: logger,
		queue:  make(chan op, queueSize),
	}
	s.wg.Add(1)
	go s.writer()
	return s, nil
}

func (s *Store) logf(format string, v ...interface{}) {
	if s.logger != nil {
		s.logger.Printf(format, v...)
	}
}

func (s *Store) writer() {
	defer s.wg.Done()
	for o := range s.queue {
		if o.rec != nil {
			if _, err := s.db.NamedExec(insertSql, o.rec); err != nil {
				s.logf("history: %v", err)
			}
		}
		if o.done != nil {
			close(o.done)
		}
	}
}

// Record queues a transition for writing.
func (s *Store) Record(t xsupervisor.Transition) {
	rec := &Record{
		Program:    t.Program,
		Instance:   t.Index,
		InstanceId: t.ID,
		From:       t.From.String(),
		To:         t.To.String(),
		Reason:     t.Reason,
		Time:       t.Time.UTC(),
	}
	s.mx.RLock()
	defer s.mx.RUnlock()
	if s.closed {
		return
	}
	select {
	case s.queue <- op{rec: rec}:
	default:
		n := s.dropped.Add(1)
		s.logf("history: queue full, dropped %d transitions so far", n)
	}
}

// Sync waits until every transition recorded so far has been written.
func (s *Store) Sync(ctx context.Context) error {
	done := make(chan struct{})
	s.mx.RLock()
	if s.closed {
		s.mx.RUnlock()
		return ErrClosed
	}
	select {
	case s.queue <- op{done: done}:
	case <-ctx.Done():
		s.mx.RUnlock()
		return ctx.Err()
	}
	s.mx.RUnlock()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Query returns the most recent transitions of program, newest first.  A
// limit of zero or less means DefaultLimit.
func (s *Store) Query(ctx context.Context, program string, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	recs := []Record{}
	if err := s.db.SelectContext(ctx, &recs, querySql, program, limit); err != nil {
		return nil, err
	}
	return recs, nil
}

// Close writes out what is queued, and closes the database.
func (s *Store) Close() error {
	s.mx.Lock()
	if s.closed {
		s.mx.Unlock()
		return ErrClosed
	}
	s.closed = true
	close(s.queue)
	s.mx.Unlock()

	s.wg.Wait()
	return s.db.Close()
}
