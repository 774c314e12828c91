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


//go:build !noui

package main

import (
	"io"
	"log"
	"os"

	"github.com/spf13/cobra"

	"github.com/Devessier/xsupervisor/xsupervisorctl/ui"
)

// runUI opens the console.  XSUPERVISORCTL_DEBUG names a file to log
// UI activity to, since stderr is covered by the screen.
func runUI(cmd *cobra.Command, args []string) error {
	client, e := newClient()
	if e != nil {
		return e
	}

	var w io.Writer = io.Discard
	if path := os.Getenv("XSUPERVISORCTL_DEBUG"); path != "" {
		f, e := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0644)
		if e != nil {
			return e
		}
		defer f.Close()
		w = f
	}

	app := ui.NewApp(client, addr)
	app.SetLogger(log.New(w, "ui: ", log.LstdFlags))
	return app.Run()
}

/*
   Our screen has the following appearance:

   http://127.0.0.1:8321       Programs                          xsupervisor
      3 Programs    2 Running    1 Fatal    0 Exited    0 Stopped
   web:0                    running      0:12:03   pid 4242
   web:1                    running      0:12:03   pid 4243
   worker:0                 fatal        0:00:41   Executing.Spawning (3 retries): ...
   [Q] Quit [H] Help [L] Log [I] Info [S] Start [T] Stop [R] Restart
*/
