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


package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/term"
	"gopkg.in/yaml.v3"

	"github.com/Devessier/xsupervisor/rest"
	"github.com/Devessier/xsupervisor/xsupervisorctl/util"
)

func newProgramsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "programs",
		Short: "List the program names",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, e := newClient()
			if e != nil {
				return e
			}
			names, e := client.Programs()
			if e != nil {
				return e
			}
			sort.Strings(names)
			for _, name := range names {
				fmt.Fprintln(cmd.OutOrStdout(), name)
			}
			return nil
		},
	}
}

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status [program...]",
		Short: "Show the instances of programs",
		RunE:  runStatus,
	}
}

func runStatus(cmd *cobra.Command, args []string) error {
	client, e := newClient()
	if e != nil {
		return e
	}
	names := args
	if len(names) == 0 {
		if names, e = client.Programs(); e != nil {
			return e
		}
	}
	items := make([]*rest.ProgramInfo, 0, len(names))
	for _, name := range names {
		info, e := client.GetProgram(name)
		if e != nil {
			return fmt.Errorf("%s: %w", name, e)
		}
		items = append(items, info)
	}
	util.SortPrograms(items)

	now := time.Now()
	for _, info := range items {
		for _, st := range info.Instances {
			fmt.Fprintln(cmd.OutOrStdout(), util.Describe(st, now))
		}
	}
	return nil
}

func controlCmds() []*cobra.Command {
	mk := func(use, short string, fn func(*rest.Client, string) error) *cobra.Command {
		return &cobra.Command{
			Use:   use + " <program>",
			Short: short,
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				client, e := newClient()
				if e != nil {
					return e
				}
				return fn(client, args[0])
			},
		}
	}
	return []*cobra.Command{
		mk("start", "Start every instance of a program", (*rest.Client).StartProgram),
		mk("stop", "Stop every instance of a program", (*rest.Client).StopProgram),
		mk("restart", "Restart every instance of a program", (*rest.Client).RestartProgram),
		mk("clear", "Clear the Fatal instances of a program", (*rest.Client).ClearProgram),
	}
}

func newLogCmd() *cobra.Command {
	var follow bool
	cmd := &cobra.Command{
		Use:   "log [program]",
		Short: "Show the supervisor log of a program, or of the manager",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, e := newClient()
			if e != nil {
				return e
			}
			name := ""
			if len(args) == 1 {
				name = args[0]
			}
			info, e := client.GetLog(name)
			if e != nil {
				return e
			}
			last := printLog(cmd.OutOrStdout(), info, 0)
			if !follow {
				return nil
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			for {
				if info, e = client.WatchLog(ctx, name, info); e != nil {
					if ctx.Err() != nil {
						return nil
					}
					return e
				}
				last = printLog(cmd.OutOrStdout(), info, last)
			}
		},
	}
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "wait for new records")
	return cmd
}

// printLog prints the records of info newer than last, and returns the
// newest id printed.
func printLog(w io.Writer, info *rest.LogInfo, last int64) int64 {
	for _, r := range info.Records {
		if r.Id <= last {
			continue
		}
		fmt.Fprintf(w, "%s %s\n", r.Time.Format(time.StampMilli), r.Text)
		last = r.Id
	}
	return last
}

func newHistoryCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history <program>",
		Short: "Show the recent state transitions of a program",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, e := newClient()
			if e != nil {
				return e
			}
			recs, e := client.History(args[0], limit)
			if e != nil {
				return e
			}
			for _, r := range recs {
				line := fmt.Sprintf("%s %s:%d %s -> %s",
					r.Time.Format(time.StampMilli), r.Program,
					r.Instance, r.From, r.To)
				if r.Reason != "" {
					line += ": " + r.Reason
				}
				fmt.Fprintln(cmd.OutOrStdout(), line)
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of transitions")
	return cmd
}

func newTailCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tail <program> <index> [stdout|stderr]",
		Short: "Follow the output of one instance",
		Args:  cobra.RangeArgs(2, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			index, e := strconv.Atoi(args[1])
			if e != nil || index < 0 {
				return fmt.Errorf("bad instance index %q", args[1])
			}
			stream := "stdout"
			if len(args) == 3 {
				stream = args[2]
			}
			if stream != "stdout" && stream != "stderr" {
				return fmt.Errorf("bad stream %q", stream)
			}
			client, e := newClient()
			if e != nil {
				return e
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			e = client.Tail(ctx, args[0], index, stream, cmd.OutOrStdout())
			if ctx.Err() != nil {
				return nil
			}
			return e
		},
	}
}

func newUICmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ui",
		Short: "Open the full screen console",
		Args:  cobra.NoArgs,
		RunE:  runUI,
	}
}

func newPasswdCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "passwd <user>",
		Short: "Hash a password for the users table of the configuration",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pass, e := readPassword(cmd)
			if e != nil {
				return e
			}
			hash, e := bcrypt.GenerateFromPassword(pass, bcrypt.DefaultCost)
			if e != nil {
				return e
			}
			out, e := yaml.Marshal(map[string]string{args[0]: string(hash)})
			if e != nil {
				return e
			}
			_, e = cmd.OutOrStdout().Write(out)
			return e
		},
	}
}

// readPassword prompts on a terminal, and otherwise reads one line.
func readPassword(cmd *cobra.Command) ([]byte, error) {
	if f, ok := cmd.InOrStdin().(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		fmt.Fprint(cmd.ErrOrStderr(), "Password: ")
		pass, e := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(cmd.ErrOrStderr())
		if e != nil {
			return nil, e
		}
		if len(pass) == 0 {
			return nil, errors.New("empty password")
		}
		return pass, nil
	}
	line, e := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
	if e != nil && e != io.EOF {
		return nil, e
	}
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		return nil, errors.New("empty password")
	}
	return []byte(line), nil
}
