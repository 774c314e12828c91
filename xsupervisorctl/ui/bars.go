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
	"strings"
	"sync"

	"github.com/gdamore/tcell/v2"
	"github.com/gdamore/tcell/v2/views"

	"github.com/Devessier/xsupervisor/xsupervisorctl/util"
)

var (
	barStyle = tcell.StyleDefault.
			Foreground(tcell.ColorBlack).
			Background(tcell.ColorSilver)
	barAccent = tcell.StyleDefault.
			Foreground(tcell.ColorNavy).
			Background(tcell.ColorSilver).
			Bold(true)
)

// statusStyles colors the status bar by class, e.g. a red background
// while any instance is Fatal.
var statusStyles = map[util.Class]tcell.Style{
	util.ClassNormal: barStyle,
	util.ClassGood: tcell.StyleDefault.
		Foreground(tcell.ColorWhite).
		Background(tcell.ColorGreen).
		Bold(true),
	util.ClassWarn: tcell.StyleDefault.
		Foreground(tcell.ColorBlack).
		Background(tcell.ColorYellow),
	util.ClassError: tcell.StyleDefault.
		Foreground(tcell.ColorWhite).
		Background(tcell.ColorMaroon).
		Bold(true),
}

// TitleBar shows the server on the left, the panel title in the
// center and the application name on the right.
type TitleBar struct {
	once sync.Once
	views.SimpleStyledTextBar
}

func (tb *TitleBar) Init() {
	tb.once.Do(func() {
		tb.SimpleStyledTextBar.Init()
		tb.SetStyle(barStyle)
		tb.RegisterLeftStyle('N', barStyle)
		tb.RegisterLeftStyle('A', barAccent)
		tb.RegisterCenterStyle('N', barStyle)
		tb.RegisterCenterStyle('A', barAccent)
		tb.RegisterRightStyle('N', barStyle)
		tb.RegisterRightStyle('A', barAccent)
	})
}

func NewTitleBar() *TitleBar {
	tb := &TitleBar{}
	tb.Init()
	return tb
}

// StatusBar is a single line of text whose colors follow a Class.
type StatusBar struct {
	once  sync.Once
	text  string
	class util.Class
	views.SimpleStyledTextBar
}

func (sb *StatusBar) Init() {
	sb.once.Do(func() {
		sb.SimpleStyledTextBar.Init()
		sb.SetClass(util.ClassNormal)
	})
}

func (sb *StatusBar) SetClass(c util.Class) {
	sb.class = c
	style := statusStyles[c]
	sb.SimpleStyledTextBar.SetStyle(style)
	sb.RegisterLeftStyle('N', style)
	sb.SetLeft(escape(sb.text))
}

func (sb *StatusBar) Class() util.Class {
	return sb.class
}

func (sb *StatusBar) SetText(text string) {
	sb.text = text
	sb.SetLeft(escape(text))
}

func NewStatusBar() *StatusBar {
	sb := &StatusBar{}
	sb.Init()
	return sb
}

// KeyBar lists the keys active on a panel.  Each word is written as
// "[K] Action"; the bracketed key is highlighted.
type KeyBar struct {
	once sync.Once
	views.SimpleStyledTextBar
}

func (k *KeyBar) Init() {
	k.once.Do(func() {
		k.SimpleStyledTextBar.Init()
		k.SimpleStyledTextBar.SetStyle(barStyle)
		k.RegisterLeftStyle('N', barStyle)
		k.RegisterLeftStyle('A', barAccent)
	})
}

func (k *KeyBar) SetKeys(words []string) {
	k.SetLeft(keyMarkup(words))
}

func NewKeyBar() *KeyBar {
	kb := &KeyBar{}
	kb.Init()
	return kb
}

// keyMarkup converts key words to the %A/%N style markup understood
// by SimpleStyledTextBar.
func keyMarkup(words []string) string {
	var b strings.Builder
	for i, w := range words {
		if i != 0 && w != "" {
			b.WriteByte(' ')
		}
		key := false
		for _, r := range w {
			switch {
			case r == '%':
				b.WriteString("%%")
			case r == '[' && !key:
				key = true
				b.WriteRune(r)
				b.WriteString("%A")
			case r == ']' && key:
				key = false
				b.WriteString("%N")
				b.WriteRune(r)
			default:
				b.WriteRune(r)
			}
		}
	}
	return b.String()
}

func escape(s string) string {
	return strings.ReplaceAll(s, "%", "%%")
}
