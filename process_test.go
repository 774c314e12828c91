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

// These tests run real processes, and rely on /bin/sh, /bin/false and sleep
// being available as on any POSIX system.

package xsupervisor

import (
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
)

func execManager(t *testing.T, pcs ...*ProgramConfig) (*Manager, *recorder) {
	rec := &recorder{}
	cfg := testConfig(pcs...)
	cfg.LogDir = t.TempDir()
	m := NewManager(cfg, WithRecorder(rec), WithLogWriter(&testLog{t: t}))
	return m, rec
}

func TestExecFalse(t *testing.T) {
	Convey("Running /bin/false with two retries", t, func() {
		pc := NewProgramConfig("false", "/bin/false")
		pc.StartRetries = 2
		pc.StartTime = time.Second
		m, rec := execManager(t, pc)
		Reset(func() { So(m.Shutdown(testContext()), ShouldBeNil) })

		So(rec.WaitFor("false", 0, StateFatal), ShouldBeTrue)
		So(rec.States("false", 0), ShouldResemble, []State{
			StateSpawning, StateStarting, StateBackoff,
			StateSpawning, StateStarting, StateBackoff,
			StateSpawning, StateStarting, StateBackoff,
			StateFatal,
		})
		st, _ := m.Snapshot("false")
		So(st[0].ExitCode, ShouldEqual, 1)
	})
}

func TestExecMissing(t *testing.T) {
	Convey("Running a binary that does not exist", t, func() {
		pc := NewProgramConfig("ghost", "/nonexistent/ghost")
		pc.StartRetries = 1
		m, rec := execManager(t, pc)
		Reset(func() { So(m.Shutdown(testContext()), ShouldBeNil) })

		So(rec.WaitFor("ghost", 0, StateFatal), ShouldBeTrue)
		So(rec.States("ghost", 0), ShouldResemble, []State{
			StateSpawning, StateBackoff, StateSpawning, StateBackoff, StateFatal,
		})
		st, _ := m.Snapshot("ghost")
		So(st[0].Reason, ShouldContainSubstring, ErrSpawnFailed.Error())
	})
}

func TestExecSleep(t *testing.T) {
	Convey("Running sleep with a three second start time", t, func() {
		pc := NewProgramConfig("sleep", "sleep 100")
		pc.StartTime = 3 * time.Second
		pc.StopSignal = syscall.SIGTERM
		pc.StopSignalName = "TERM"
		m, rec := execManager(t, pc)
		Reset(func() { So(m.Shutdown(testContext()), ShouldBeNil) })

		So(rec.WaitFor("sleep", 0, StateStarting), ShouldBeTrue)
		st, _ := m.Snapshot("sleep")
		So(st[0].Pid, ShouldBeGreaterThan, 0)

		Convey("A stop after one second skips Running", func() {
			time.Sleep(time.Second)
			So(m.Stop("sleep"), ShouldBeNil)
			So(rec.WaitFor("sleep", 0, StateStopped), ShouldBeTrue)
			So(rec.States("sleep", 0), ShouldResemble, []State{
				StateSpawning, StateStarting, StateStopping, StateStopped,
			})
			st, _ := m.Snapshot("sleep")
			So(st[0].ExitCode, ShouldEqual, -1)
		})
	})
}

func TestExecStopTimeout(t *testing.T) {
	Convey("A process ignoring its stop signal", t, func() {
		dir := t.TempDir()
		script := filepath.Join(dir, "trap.sh")
		body := "trap '' TERM\nwhile :; do sleep 1; done\n"
		So(os.WriteFile(script, []byte(body), 0o755), ShouldBeNil)
		pc := NewProgramConfig("trap", "/bin/sh "+script)
		pc.StartTime = 100 * time.Millisecond
		pc.StopSignal = syscall.SIGTERM
		pc.StopSignalName = "TERM"
		pc.StopTime = 300 * time.Millisecond
		m, rec := execManager(t, pc)
		Reset(func() { So(m.Shutdown(testContext()), ShouldBeNil) })

		So(rec.WaitFor("trap", 0, StateRunning), ShouldBeTrue)
		start := time.Now()
		So(m.Stop("trap"), ShouldBeNil)
		So(rec.WaitFor("trap", 0, StateStopped), ShouldBeTrue)
		So(time.Since(start), ShouldBeGreaterThanOrEqualTo, 300*time.Millisecond)

		recs, _ := m.GetLog(0)
		killed := false
		for _, r := range recs {
			if strings.Contains(r.Text, "timed out") {
				killed = true
			}
		}
		So(killed, ShouldBeTrue)
	})
}

func TestExecEnvironment(t *testing.T) {
	Convey("A process sees its environment and output files", t, func() {
		dir := t.TempDir()
		script := filepath.Join(dir, "env.sh")
		So(os.WriteFile(script, []byte("env\nexec sleep 30\n"), 0o755), ShouldBeNil)
		pc := NewProgramConfig("env", "/bin/sh "+script)
		pc.Env = map[string]string{"GREETING": "hello"}
		pc.WorkingDir = dir
		pc.StartTime = 50 * time.Millisecond
		m, rec := execManager(t, pc)
		Reset(func() { So(m.Shutdown(testContext()), ShouldBeNil) })

		So(rec.WaitFor("env", 0, StateRunning), ShouldBeTrue)
		st, _ := m.Snapshot("env")
		So(filepath.Dir(st[0].Stdout), ShouldNotEqual, dir)
		var out string
		So(eventually(func() bool {
			b, _ := os.ReadFile(st[0].Stdout)
			out = string(b)
			return strings.Contains(out, "XSUPERVISOR_INSTANCE_ID")
		}), ShouldBeTrue)
		So(out, ShouldContainSubstring, "GREETING=hello")
		So(out, ShouldContainSubstring, "XSUPERVISOR_PROGRAM=env")
		So(out, ShouldContainSubstring, "XSUPERVISOR_INSTANCE=0")
		So(out, ShouldContainSubstring, "XSUPERVISOR_INSTANCE_ID="+st[0].ID)
	})
}
