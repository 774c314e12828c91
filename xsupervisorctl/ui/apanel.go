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
	"github.com/gdamore/tcell/v2"
	"github.com/gdamore/tcell/v2/views"

	"github.com/Devessier/xsupervisor/xsupervisorctl/util"
)

const fieldWidth = 16

// AuthPanel prompts for credentials when the server answers 401.
type AuthPanel struct {
	hlayout    *views.BoxLayout
	left       *views.BoxLayout
	right      *views.BoxLayout
	ufield     *views.Text
	pfield     *views.Text
	passactive bool
	username   []rune
	password   []rune

	Panel
}

var (
	fieldFocus = tcell.StyleDefault.
			Foreground(tcell.ColorWhite).
			Background(tcell.ColorNavy)
)

func NewAuthPanel(app *App) *AuthPanel {
	a := &AuthPanel{}
	a.Panel.Init(app)

	prompt := func(s string) *views.Text {
		t := views.NewText()
		t.SetText(s)
		t.SetStyle(StyleNormal)
		return t
	}

	a.hlayout = views.NewBoxLayout(views.Horizontal)
	a.left = views.NewBoxLayout(views.Vertical)
	a.right = views.NewBoxLayout(views.Vertical)
	a.ufield = prompt(pad(nil))
	a.pfield = prompt(pad(nil))

	a.hlayout.SetStyle(StyleNormal)
	a.left.SetStyle(StyleNormal)
	a.right.SetStyle(StyleNormal)

	a.left.AddWidget(views.NewSpacer(), 1.0)
	a.left.AddWidget(prompt("Username: "), 0.0)
	a.left.AddWidget(prompt("Password: "), 0.0)
	a.left.AddWidget(views.NewSpacer(), 1.0)

	a.right.AddWidget(views.NewSpacer(), 1.0)
	a.right.AddWidget(a.ufield, 0.0)
	a.right.AddWidget(a.pfield, 0.0)
	a.right.AddWidget(views.NewSpacer(), 1.0)

	a.hlayout.AddWidget(views.NewSpacer(), 1.0)
	a.hlayout.AddWidget(a.left, 0.0)
	a.hlayout.AddWidget(a.right, 0.0)
	a.hlayout.AddWidget(views.NewSpacer(), 1.0)

	a.SetTitle("Login")
	a.SetStatus("Authentication Required")
	a.SetKeys([]string{"[ESC] Quit", "[TAB] Next"})
	a.SetContent(a.hlayout)

	return a
}

func (a *AuthPanel) ResetFields() {
	a.passactive = false
	a.username = a.username[:0]
	a.password = a.password[:0]
}

func (a *AuthPanel) Draw() {
	a.update()
	a.Panel.Draw()
}

func (a *AuthPanel) field() *[]rune {
	if a.passactive {
		return &a.password
	}
	return &a.username
}

func (a *AuthPanel) HandleEvent(ev tcell.Event) bool {
	switch ev := ev.(type) {
	case *tcell.EventKey:
		f := a.field()
		switch ev.Key() {
		case tcell.KeyEsc:
			a.App().Quit()
		case tcell.KeyTab, tcell.KeyEnter:
			if a.passactive {
				a.App().SetUserPassword(string(a.username),
					string(a.password))
				a.App().ShowMain()
			} else {
				a.passactive = true
			}
		case tcell.KeyBacktab:
			a.passactive = false
		case tcell.KeyCtrlU, tcell.KeyCtrlW:
			*f = (*f)[:0]
		case tcell.KeyBackspace, tcell.KeyBackspace2:
			if len(*f) > 0 {
				*f = (*f)[:len(*f)-1]
			}
		case tcell.KeyRune:
			if len(*f) < 256 {
				*f = append(*f, ev.Rune())
			}
		default:
			return false
		}
		return true
	}
	return a.Panel.HandleEvent(ev)
}

// pad fits r into the visible field width, marking truncation with '<'.
func pad(r []rune) string {
	r = append([]rune{}, r...)
	if len(r) > fieldWidth {
		r = r[len(r)-fieldWidth:]
		r[0] = '<'
	}
	for len(r) < fieldWidth {
		r = append(r, ' ')
	}
	return string(r)
}

func (a *AuthPanel) update() {
	a.SetClass(util.ClassError)

	user := append([]rune{}, a.username...)
	pass := make([]rune, 0, len(a.password)+1)
	for range a.password {
		pass = append(pass, '*')
	}
	if a.passactive {
		pass = append(pass, '_')
	} else {
		user = append(user, '_')
	}
	a.ufield.SetText(pad(user))
	a.pfield.SetText(pad(pass))

	if a.passactive {
		a.pfield.SetStyle(fieldFocus)
		a.ufield.SetStyle(StyleNormal)
	} else {
		a.ufield.SetStyle(fieldFocus)
		a.pfield.SetStyle(StyleNormal)
	}
}
