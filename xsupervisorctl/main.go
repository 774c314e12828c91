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


// Command xsupervisorctl is the client for xsupervisord.  With no
// subcommand it opens the full screen console when attached to a
// terminal, and prints the status of every instance otherwise.
//
// The global flags are
//
//	-a <address>	- server URL, default is http://127.0.0.1:8321
//	-u <user:pass>	- user name & password for basic auth
//
// Subcommands are
//
//	programs                    - list the program names
//	status [<program> ...]      - show the instances of programs (or all)
//	start <program>             - start every instance of a program
//	stop <program>              - stop every instance of a program
//	restart <program>           - restart every instance of a program
//	clear <program>             - clear Fatal instances of a program
//	log [<program>]             - supervisor log of a program (or all)
//	history <program>           - recent state transitions of a program
//	tail <program> <index> [stderr] - follow the output of an instance
//	ui                          - full screen console
//	passwd <user>               - hash a password for the users table
package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/Devessier/xsupervisor/rest"
)

const defaultAddr = "http://127.0.0.1:8321"

var (
	addr = defaultAddr
	auth = ""
)

func newClient() (*rest.Client, error) {
	client := rest.NewClient(nil, addr)
	if auth != "" {
		a := strings.SplitN(auth, ":", 2)
		if len(a) != 2 {
			return nil, fmt.Errorf("bad user:pass supplied")
		}
		client.SetAuth(a[0], a[1])
	}
	return client, nil
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "xsupervisorctl",
		Short:         "Control an xsupervisord server",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if term.IsTerminal(int(os.Stdout.Fd())) {
				return runUI(cmd, args)
			}
			return runStatus(cmd, nil)
		},
	}
	root.PersistentFlags().StringVarP(&addr, "address", "a", addr,
		"xsupervisord address")
	root.PersistentFlags().StringVarP(&auth, "user", "u", auth,
		"user:pass authentication")

	root.AddCommand(newProgramsCmd())
	root.AddCommand(newStatusCmd())
	for _, c := range controlCmds() {
		root.AddCommand(c)
	}
	root.AddCommand(newLogCmd())
	root.AddCommand(newHistoryCmd())
	root.AddCommand(newTailCmd())
	root.AddCommand(newUICmd())
	root.AddCommand(newPasswdCmd())

	return root
}

func main() {
	if e := newRootCmd().Execute(); e != nil {
		fmt.Fprintf(os.Stderr, "Failed: %v\n", e)
		os.Exit(1)
	}
}
