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

package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
	"golang.org/x/crypto/bcrypt"

	"github.com/Devessier/xsupervisor"
)

// stubLauncher "runs" processes that live until they are signaled.
type stubLauncher struct{}

type stubHandle struct {
	once   sync.Once
	notify func(xsupervisor.LaunchEvent)
}

func (h *stubHandle) Pid() int { return 4242 }

func (h *stubHandle) Signal(os.Signal) error {
	h.once.Do(func() {
		go h.notify(xsupervisor.LaunchEvent{Kind: xsupervisor.ProcessExited, ExitCode: -1})
	})
	return nil
}

func (h *stubHandle) Kill() error { return h.Signal(os.Kill) }

func (stubLauncher) Launch(req xsupervisor.LaunchRequest, notify func(xsupervisor.LaunchEvent)) {
	go notify(xsupervisor.LaunchEvent{
		Kind:   xsupervisor.ProcessSpawned,
		Handle: &stubHandle{notify: notify},
	})
}

type stubHistory struct {
	program string
	limit   int
}

func (s *stubHistory) Query(ctx context.Context, program string, limit int) ([]HistoryRecord, error) {
	s.program, s.limit = program, limit
	return []HistoryRecord{{Id: 7, Program: program, From: "Stopped", To: "Executing.Spawning"}}, nil
}

type syncBuffer struct {
	mx  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mx.Lock()
	defer b.mx.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mx.Lock()
	defer b.mx.Unlock()
	return b.buf.String()
}

func testManager(dir string) *xsupervisor.Manager {
	web := xsupervisor.NewProgramConfig("web", "/bin/web")
	web.NumProcs = 2
	web.StartTime = 10 * time.Millisecond
	web.Stdout = xsupervisor.Output{Kind: xsupervisor.OutputFile, Path: filepath.Join(dir, "web.out")}
	idle := xsupervisor.NewProgramConfig("idle", "/bin/idle")
	idle.AutoStart = false
	idle.Stdout = xsupervisor.Output{Kind: xsupervisor.OutputNone}
	cfg := &xsupervisor.Config{
		Name:   "resttest",
		LogDir: dir,
		Programs: map[string]*xsupervisor.ProgramConfig{
			"web":  web,
			"idle": idle,
		},
	}
	return xsupervisor.NewManager(cfg,
		xsupervisor.WithLauncher(stubLauncher{}),
		xsupervisor.WithLogWriter(nil))
}

func waitState(c *Client, program string, index int, s xsupervisor.State) bool {
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if info, e := c.GetProgram(program); e == nil && info.Instances[index].State == s {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return false
}

func TestServer(t *testing.T) {
	Convey("Given a REST server", t, func() {
		dir := t.TempDir()
		m := testManager(dir)
		hist := &stubHistory{}
		srv := httptest.NewServer(NewHandler(m, WithHistory(hist)))
		c := NewClient(nil, srv.URL)
		Reset(func() {
			srv.Close()
			m.Shutdown(context.Background())
		})
		So(waitState(c, "web", 1, xsupervisor.StateRunning), ShouldBeTrue)

		Convey("Manager info is served with an etag", func() {
			info, e := c.Info()
			So(e, ShouldBeNil)
			So(info.Name, ShouldEqual, "resttest")
			So(info.Serial, ShouldEqual, m.Serial())

			req, _ := http.NewRequest("GET", srv.URL+"/", nil)
			req.Header.Set("If-None-Match", formatTag(m.Serial()))
			res, e := http.DefaultClient.Do(req)
			So(e, ShouldBeNil)
			res.Body.Close()
			So(res.StatusCode, ShouldEqual, http.StatusNotModified)
		})

		Convey("Programs are listed sorted", func() {
			names, e := c.Programs()
			So(e, ShouldBeNil)
			So(names, ShouldResemble, []string{"idle", "web"})
		})

		Convey("A program shows its instances", func() {
			info, e := c.GetProgram("web")
			So(e, ShouldBeNil)
			So(info.Name, ShouldEqual, "web")
			So(info.Command, ShouldEqual, "/bin/web")
			So(info.NumProcs, ShouldEqual, 2)
			So(info.AutoRestart, ShouldEqual, "unexpected")
			So(len(info.Instances), ShouldEqual, 2)
			So(info.Instances[0].Pid, ShouldEqual, 4242)
			So(info.Instances[1].Index, ShouldEqual, 1)
		})

		Convey("Unknown programs are 404", func() {
			_, e := c.GetProgram("nope")
			So(e, ShouldNotBeNil)
			So(e.(*Error).Code, ShouldEqual, http.StatusNotFound)
			So(e.Error(), ShouldEqual, "Program not found")
			e = c.StartProgram("nope")
			So(e.(*Error).Code, ShouldEqual, http.StatusNotFound)
			e = c.StopProgram("nope")
			So(e.(*Error).Code, ShouldEqual, http.StatusNotFound)
			_, e = c.History("nope", 0)
			So(e.(*Error).Code, ShouldEqual, http.StatusNotFound)
		})

		Convey("Start and stop reach the program", func() {
			So(c.StartProgram("idle"), ShouldBeNil)
			So(waitState(c, "idle", 0, xsupervisor.StateRunning), ShouldBeTrue)
			So(c.StopProgram("idle"), ShouldBeNil)
			So(waitState(c, "idle", 0, xsupervisor.StateStopped), ShouldBeTrue)
			So(c.RestartProgram("web"), ShouldBeNil)
			So(c.ClearProgram("web"), ShouldBeNil)
		})

		Convey("A long poll returns once something changes", func() {
			last, e := c.GetProgram("idle")
			So(e, ShouldBeNil)
			ch := make(chan *ProgramInfo, 1)
			go func() {
				info, _ := c.WatchProgram(context.Background(), "idle", last)
				ch <- info
			}()
			time.Sleep(20 * time.Millisecond)
			So(m.Start("idle"), ShouldBeNil)
			var info *ProgramInfo
			select {
			case info = <-ch:
			case <-time.After(5 * time.Second):
			}
			So(info, ShouldNotBeNil)
			So(info.etag, ShouldNotEqual, last.etag)
		})

		Convey("Logs are served", func() {
			li, e := c.GetLog("web")
			So(e, ShouldBeNil)
			So(len(li.Records), ShouldBeGreaterThan, 0)
			So(li.Records[0].Text, ShouldStartWith, "[web:")

			li, e = c.GetLog("")
			So(e, ShouldBeNil)
			So(len(li.Records), ShouldBeGreaterThan, 0)
		})

		Convey("History is served from the store", func() {
			recs, e := c.History("web", 5)
			So(e, ShouldBeNil)
			So(len(recs), ShouldEqual, 1)
			So(recs[0].Id, ShouldEqual, 7)
			So(hist.program, ShouldEqual, "web")
			So(hist.limit, ShouldEqual, 5)

			res, e := http.Get(srv.URL + "/programs/web/history?limit=x")
			So(e, ShouldBeNil)
			res.Body.Close()
			So(res.StatusCode, ShouldEqual, http.StatusBadRequest)
		})

		Convey("Output can be tailed", func() {
			path := filepath.Join(dir, "web.out")
			So(os.WriteFile(path, []byte("before\n"), 0o644), ShouldBeNil)

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			out := &syncBuffer{}
			done := make(chan error, 1)
			go func() { done <- c.Tail(ctx, "web", 0, "stdout", out) }()

			f, e := os.OpenFile(path, os.O_WRONLY|os.O_APPEND, 0)
			So(e, ShouldBeNil)
			written := false
			deadline := time.Now().Add(5 * time.Second)
			for time.Now().Before(deadline) && out.String() != "before\nafter\n" {
				if !written && out.String() == "before\n" {
					f.WriteString("after\n")
					written = true
				}
				time.Sleep(10 * time.Millisecond)
			}
			f.Close()
			So(out.String(), ShouldEqual, "before\nafter\n")
			cancel()
			So(<-done, ShouldEqual, context.Canceled)
		})

		Convey("Discarded output cannot be tailed", func() {
			e := c.Tail(context.Background(), "idle", 0, "stdout", &syncBuffer{})
			So(e, ShouldNotBeNil)
			So(e.(*Error).Code, ShouldEqual, http.StatusNotFound)
		})
	})
}

func TestServerNoHistory(t *testing.T) {
	Convey("Without a history store", t, func() {
		m := testManager(t.TempDir())
		srv := httptest.NewServer(NewHandler(m))
		Reset(func() {
			srv.Close()
			m.Shutdown(context.Background())
		})

		res, e := http.Get(srv.URL + "/programs/web/history")
		So(e, ShouldBeNil)
		defer res.Body.Close()
		So(res.StatusCode, ShouldEqual, http.StatusNotFound)
		er := &Error{}
		So(json.NewDecoder(res.Body).Decode(er), ShouldBeNil)
		So(er.Message, ShouldEqual, xsupervisor.ErrNoHistory.Error())
	})
}

func TestServerAuth(t *testing.T) {
	Convey("Given a server requiring authentication", t, func() {
		hash, e := bcrypt.GenerateFromPassword([]byte("hunter2"), bcrypt.MinCost)
		So(e, ShouldBeNil)
		m := testManager(t.TempDir())
		srv := httptest.NewServer(NewHandler(m, WithUsers(map[string]string{"admin": string(hash)})))
		Reset(func() {
			srv.Close()
			m.Shutdown(context.Background())
		})

		Convey("Anonymous requests are refused", func() {
			res, e := http.Get(srv.URL + "/programs")
			So(e, ShouldBeNil)
			res.Body.Close()
			So(res.StatusCode, ShouldEqual, http.StatusUnauthorized)
			So(res.Header.Get("WWW-Authenticate"), ShouldContainSubstring, "Basic")
		})

		Convey("Wrong passwords are refused", func() {
			c := NewClient(nil, srv.URL)
			c.SetAuth("admin", "nope")
			_, e := c.Programs()
			So(e, ShouldNotBeNil)
			So(e.(*Error).Code, ShouldEqual, http.StatusUnauthorized)
		})

		Convey("Valid users get through", func() {
			c := NewClient(nil, srv.URL)
			c.SetAuth("admin", "hunter2")
			names, e := c.Programs()
			So(e, ShouldBeNil)
			So(len(names), ShouldEqual, 2)
		})
	})
}
