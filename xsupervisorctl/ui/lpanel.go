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
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/gdamore/tcell/v2/views"

	"github.com/Devessier/xsupervisor/rest"
	"github.com/Devessier/xsupervisor/xsupervisorctl/util"
)

// LogPanel follows the supervisor log of one program, or the manager
// log when the name is empty.
type LogPanel struct {
	text *views.TextArea
	info *rest.ProgramInfo
	name string

	Panel
}

func NewLogPanel(app *App) *LogPanel {
	p := &LogPanel{}

	p.Panel.Init(app)
	p.SetKeys([]string{"[ESC] Main", "[H] Help"})

	p.text = views.NewTextArea()
	p.text.EnableCursor(false)
	p.text.SetStyle(StyleNormal)
	p.SetContent(p.text)

	return p
}

func (p *LogPanel) Draw() {
	p.update()
	p.Panel.Draw()
}

func (p *LogPanel) HandleEvent(ev tcell.Event) bool {
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
			case 'I', 'i':
				if info != nil {
					app.ShowInfo(info.Name)
					return true
				}
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

func (p *LogPanel) SetName(name string) {
	p.text.SetLines(nil)
	p.name = name
	p.info = nil
}

func (p *LogPanel) update() {
	app := p.App()
	words := []string{"[ESC] Main", "[H] Help"}

	if p.name == "" {
		p.SetTitle("Supervisor Log")
		p.info = nil
	} else {
		p.SetTitle("Log for " + p.name)
		p.info, _ = app.GetItem(p.name)
	}

	loginfo, e := app.GetLog(p.name)
	if loginfo == nil {
		if e != nil {
			if Unauthorized(e) {
				app.ShowAuth()
				return
			}
			p.SetStatus(fmt.Sprintf("No data: %v", e))
			p.SetClass(util.ClassError)
		} else {
			p.SetStatus("Loading ...")
			p.SetClass(util.ClassNormal)
		}
		p.text.SetLines([]string{""})
		p.SetKeys(words)
		return
	}

	p.SetStatus(fmt.Sprintf("%d records", len(loginfo.Records)))
	p.SetClass(util.ClassNormal)
	if p.info != nil {
		p.SetClass(util.ProgramClass(p.info))
	}

	lines := make([]string, 0, len(loginfo.Records))
	for _, r := range loginfo.Records {
		lines = append(lines, fmt.Sprintf("%s %s",
			r.Time.Format(time.StampMilli), r.Text))
	}
	p.text.SetLines(lines)

	if info := p.info; info != nil {
		words = append(words, "[I] Info", "[S] Start", "[T] Stop",
			"[R] Restart")
		if util.Failed(info) {
			words = append(words, "[C] Clear")
		}
	}
	p.SetKeys(words)
}
