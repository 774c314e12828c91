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

// Package rest exposes a Manager over HTTP, and provides a client for it.
//
// Read requests may be long polls: a client passing the Etag it last saw in
// the X-Xsupervisor-Poll-Etag header, and a number of seconds in
// X-Xsupervisor-Poll-Time, gets an answer once the resource changed or the
// time ran out, whichever comes first.
package rest

import (
	"time"

	"github.com/Devessier/xsupervisor"
	"github.com/Devessier/xsupervisor/history"
)

const (
	mimeJson = "application/json; charset=UTF-8"

	PollEtagHeader = "X-Xsupervisor-Poll-Etag"
	PollTimeHeader = "X-Xsupervisor-Poll-Time"

	// MaxPollTime bounds how long the server holds a long poll.
	MaxPollTime = 300 * time.Second
)

var ok struct{}

type ManagerInfo struct {
	Name       string    `json:"name"`
	Serial     int64     `json:"serial,string"`
	CreateTime time.Time `json:"created"`
	UpdateTime time.Time `json:"updated"`
	etag       string
}

// ProgramInfo describes a program and the current state of each of its
// instances.
type ProgramInfo struct {
	Name        string                       `json:"name"`
	Command     string                       `json:"cmd"`
	NumProcs    int                          `json:"numprocs"`
	AutoStart   bool                         `json:"autostart"`
	AutoRestart string                       `json:"autorestart"`
	Instances   []xsupervisor.InstanceStatus `json:"instances"`
	etag        string
}

type LogRecord = xsupervisor.LogRecord

type HistoryRecord = history.Record

type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *Error) Error() string {
	return e.Message
}
