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


package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/gdamore/tcell/v2/views"

	"github.com/Devessier/xsupervisor/rest"
	"github.com/Devessier/xsupervisor/xsupervisorctl/util"
)

// InfoPanel shows the configuration of one program, the detail of each
// instance, and its most recent transitions.
type InfoPanel struct {
	text *views.TextArea
	info *rest.ProgramInfo
	name string

	Panel
}

func NewInfoPanel(app *App) *InfoPanel {
	p := &InfoPanel{}

	p.Panel.Init(app)
	p.SetKeys([]string{"[ESC] Main", "[H] Help"})

	p.text = views.NewTextArea()
	p.text.EnableCursor(false)
	p.text.SetStyle(StyleNormal)
	p.SetContent(p.text)

	return p
}

func (p *InfoPanel) Draw() {
	p.update()
	p.Panel.Draw()
}

func (p *InfoPanel) HandleEvent(ev tcell.Event) bool {
	info := p.info
	app := p.App()
	switch ev := ev.(type) {
	case *tcell.EventKey:
		switch ev.Key() {
		case tcell.KeyEsc:
			app.ShowMain()
			return true
		case tcell.KeyF1:
			app.ShowHelp()
			return true
		case tcell.KeyRune:
			switch ev.Rune() {
			case 'Q', 'q':
				app.ShowMain()
				return true
			case 'H', 'h':
				app.ShowHelp()
				return true
			case 'L', 'l':
				app.ShowLog(p.name)
				return true
			case 'S', 's':
				if info != nil {
					app.StartProgram(info.Name)
					return true
				}
			case 'T', 't':
				if info != nil {
					app.StopProgram(info.Name)
					return true
				}
			case 'R', 'r':
				if info != nil {
					app.RestartProgram(info.Name)
					return true
				}
			case 'C', 'c':
				if info != nil && util.Failed(info) {
					app.ClearProgram(info.Name)
					return true
				}
			}
		}
	}
	return p.Panel.HandleEvent(ev)
}

func (p *InfoPanel) SetName(name string) {
	p.name = name
	p.info = nil
	p.text.SetLines(nil)
}

func (p *InfoPanel) update() {
	app := p.App()
	words := []string{"[ESC] Main", "[H] Help", "[L] Log"}

	p.SetTitle("Details for " + p.name)

	info, e := app.GetItem(p.name)
	p.info = info
	if info == nil {
		if Unauthorized(e) {
			app.ShowAuth()
			return
		}
		p.SetStatus(fmt.Sprintf("No data: %v", e))
		p.SetClass(util.ClassError)
		p.text.SetLines(nil)
		p.SetKeys(words)
		return
	}

	p.SetStatus(fmt.Sprintf("%d instances", len(info.Instances)))
	p.SetClass(util.ProgramClass(info))

	now := time.Now()
	lines := []string{
		fmt.Sprintf("%13s %s", "Name:", info.Name),
		fmt.Sprintf("%13s %s", "Command:", info.Command),
		fmt.Sprintf("%13s %d", "Processes:", info.NumProcs),
		fmt.Sprintf("%13s %v", "Autostart:", info.AutoStart),
		fmt.Sprintf("%13s %s", "Autorestart:", info.AutoRestart),
		"",
	}
	for _, st := range info.Instances {
		lines = append(lines, util.Describe(st, now))
		lines = append(lines, fmt.Sprintf("%13s %s", "Id:", st.ID))
		if st.Pid != 0 {
			lines = append(lines, fmt.Sprintf("%13s %d", "Pid:", st.Pid))
		}
		if !st.EndedAt.IsZero() {
			lines = append(lines, fmt.Sprintf("%13s %d at %s",
				"Exit code:", st.ExitCode,
				st.EndedAt.Format(time.Stamp)))
		}
		lines = append(lines, fmt.Sprintf("%13s %d", "Retries:",
			st.StartRetries))
		if st.Stdout != "" {
			lines = append(lines, fmt.Sprintf("%13s %s", "Stdout:", st.Stdout))
		}
		if st.Stderr != "" {
			lines = append(lines, fmt.Sprintf("%13s %s", "Stderr:", st.Stderr))
		}
		lines = append(lines, "")
	}

	recs, e := app.GetHistory(p.name)
	switch {
	case e != nil:
		lines = append(lines, fmt.Sprintf("History unavailable: %v", e))
	case len(recs) > 0:
		lines = append(lines, "Recent transitions:")
		for _, r := range recs {
			l := fmt.Sprintf("  %s %s:%d %s -> %s",
				r.Time.Format(time.StampMilli), r.Program,
				r.Instance, r.From, r.To)
			if r.Reason != "" {
				l += " (" + strings.TrimSpace(r.Reason) + ")"
			}
			lines = append(lines, l)
		}
	}
	p.text.SetLines(lines)

	words = append(words, "[S] Start", "[T] Stop", "[R] Restart")
	if util.Failed(info) {
		words = append(words, "[C] Clear")
	}
	p.SetKeys(words)
}
