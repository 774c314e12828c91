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

	"github.com/Devessier/xsupervisor"
	"github.com/Devessier/xsupervisor/rest"
	"github.com/Devessier/xsupervisor/xsupervisorctl/util"
)

var (
	StyleNormal = tcell.StyleDefault.
			Foreground(tcell.ColorSilver).
			Background(tcell.ColorBlack)
	StyleGood = tcell.StyleDefault.
			Foreground(tcell.ColorGreen).
			Background(tcell.ColorBlack)
	StyleWarn = tcell.StyleDefault.
			Foreground(tcell.ColorYellow).
			Background(tcell.ColorBlack)
	StyleError = tcell.StyleDefault.
			Foreground(tcell.ColorMaroon).
			Background(tcell.ColorBlack)
)

var lineStyles = map[util.Class]tcell.Style{
	util.ClassNormal: StyleNormal,
	util.ClassGood:   StyleGood,
	util.ClassWarn:   StyleWarn,
	util.ClassError:  StyleError,
}

// row is one instance line of the main panel.
type row struct {
	prog  *rest.ProgramInfo
	index int
	line  string
	style tcell.Style
}

// MainPanel lists every instance of every program, one per line, using
// data loaded from the REST API.  Commands apply to the program of
// the selected line.
type MainPanel struct {
	content  *views.CellView
	rows     []row
	selected *rest.ProgramInfo
	selIndex int
	width    int
	curx     int
	cury     int

	Panel
}

// mainModel provides the model for a CellView.
type mainModel struct {
	m *MainPanel
}

func NewMainPanel(app *App) *MainPanel {
	m := &MainPanel{}

	m.Panel.Init(app)
	m.content = views.NewCellView()
	m.SetContent(m.content)

	m.content.SetModel(&mainModel{m})
	m.content.SetStyle(StyleNormal)

	m.SetTitle("Programs")
	m.SetKeys([]string{"[Q] Quit"})

	return m
}

func (m *MainPanel) Draw() {
	m.update()
	m.Panel.Draw()
}

func (m *MainPanel) HandleEvent(ev tcell.Event) bool {
	app := m.App()
	sel := m.selected
	switch ev := ev.(type) {
	case *tcell.EventKey:
		switch ev.Key() {
		case tcell.KeyEsc:
			m.unselect()
			return true
		case tcell.KeyF1:
			app.ShowHelp()
			return true
		case tcell.KeyEnter:
			if sel != nil {
				app.ShowInfo(sel.Name)
				return true
			}
		case tcell.KeyRune:
			switch ev.Rune() {
			case 'Q', 'q':
				app.Quit()
				return true
			case 'H', 'h':
				app.ShowHelp()
				return true
			case 'I', 'i':
				if sel != nil {
					app.ShowInfo(sel.Name)
					return true
				}
			case 'L', 'l':
				if sel != nil {
					app.ShowLog(sel.Name)
				} else {
					app.ShowLog("")
				}
				return true
			case 'S', 's':
				if sel != nil {
					app.StartProgram(sel.Name)
					return true
				}
			case 'T', 't':
				if sel != nil {
					app.StopProgram(sel.Name)
					return true
				}
			case 'R', 'r':
				if sel != nil {
					app.RestartProgram(sel.Name)
					return true
				}
			case 'C', 'c':
				if sel != nil && util.Failed(sel) {
					app.ClearProgram(sel.Name)
					return true
				}
			}
		}
	}
	return m.Panel.HandleEvent(ev)
}

func (model *mainModel) GetCell(x, y int) (rune, tcell.Style, []rune, int) {
	m := model.m

	if y < 0 || y >= len(m.rows) {
		return ' ', StyleNormal, nil, 1
	}
	r := m.rows[y]
	ch := ' '
	if x >= 0 && x < len(r.line) {
		ch = rune(r.line[x])
	}
	style := r.style
	if r.prog == m.selected && r.index == m.selIndex {
		style = style.Reverse(true)
	}
	return ch, style, nil, 1
}

func (model *mainModel) GetBounds() (int, int) {
	m := model.m
	return m.width, len(m.rows)
}

func (model *mainModel) GetCursor() (int, int, bool, bool) {
	m := model.m
	return m.curx, m.cury, true, false
}

func (model *mainModel) MoveCursor(offx, offy int) {
	m := model.m
	m.curx += offx
	m.cury += offy
	m.updateCursor(true)
}

func (model *mainModel) SetCursor(x, y int) {
	m := model.m
	m.curx = x
	m.cury = y
	m.updateCursor(true)
}

func (m *MainPanel) unselect() {
	m.cury = 0
	m.curx = 0
	m.updateCursor(false)
}

func (m *MainPanel) updateCursor(selected bool) {
	if m.curx > m.width-1 {
		m.curx = m.width - 1
	}
	if m.cury > len(m.rows)-1 {
		m.cury = len(m.rows) - 1
	}
	if m.curx < 0 {
		m.curx = 0
	}
	if m.cury < 0 {
		m.cury = 0
	}
	if selected && len(m.rows) > 0 {
		if m.selected == nil {
			m.curx = 0
			m.cury = 0
		}
		m.selected = m.rows[m.cury].prog
		m.selIndex = m.rows[m.cury].index
	} else {
		m.selected = nil
	}
}

// update rebuilds the rows from the latest items.  It runs on the
// application goroutine.
func (m *MainPanel) update() {
	app := m.App()
	items, err := app.GetItems()

	if err != nil {
		if Unauthorized(err) {
			app.ShowAuth()
			return
		}
		m.SetClass(util.ClassError)
		m.SetStatus(fmt.Sprintf("Cannot load programs: %v", err))
		m.rows = nil
		m.selected = nil
		return
	}

	now := time.Now()
	rows := make([]row, 0, len(items))
	counts := map[xsupervisor.State]int{}
	worst := util.ClassNormal
	m.width = 0

	sel := m.selected
	m.selected = nil
	for _, p := range items {
		for _, st := range p.Instances {
			line := util.Describe(st, now)
			if len(line) > m.width {
				m.width = len(line)
			}
			class := util.StateClass(st.State)
			if class > worst {
				worst = class
			}
			counts[st.State]++
			if sel != nil && p.Name == sel.Name && st.Index == m.selIndex {
				m.selected = p
				m.cury = len(rows)
			}
			rows = append(rows, row{
				prog:  p,
				index: st.Index,
				line:  line,
				style: lineStyles[class],
			})
		}
	}
	m.rows = rows

	if notice := app.Notice(); notice != "" {
		m.SetStatus(notice)
		m.SetClass(util.ClassError)
	} else {
		m.SetStatus(fmt.Sprintf(
			"%4d Programs %4d Running %4d Fatal %4d Exited %4d Stopped",
			len(items),
			counts[xsupervisor.StateRunning],
			counts[xsupervisor.StateFatal],
			counts[xsupervisor.StateExited],
			counts[xsupervisor.StateStopped]))
		m.SetClass(worst)
	}

	words := []string{"[Q] Quit", "[H] Help", "[L] Log"}
	if p := m.selected; p != nil {
		words = append(words, "[I] Info", "[S] Start", "[T] Stop",
			"[R] Restart")
		if util.Failed(p) {
			words = append(words, "[C] Clear")
		}
	}
	m.SetKeys(words)
}
