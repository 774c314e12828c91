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


// Package ui implements the full screen operator console.
package ui

import (
	"errors"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/gdamore/tcell/v2/views"
	"golang.org/x/net/context"

	"github.com/Devessier/xsupervisor/rest"
	"github.com/Devessier/xsupervisor/xsupervisorctl/util"
)

var errNoProgram = errors.New("Program not found")

type App struct {
	app    *views.Application
	view   views.View
	panel  views.Widget
	info   *InfoPanel
	help   *HelpPanel
	log    *LogPanel
	main   *MainPanel
	auth   *AuthPanel
	client *rest.Client
	server string
	logger *log.Logger
	once   sync.Once

	// The fields below are only touched on the application goroutine,
	// via PostFunc.
	items     []*rest.ProgramInfo
	err       error
	notice    string
	logName   string
	logInfo   *rest.LogInfo
	logErr    error
	logCancel context.CancelFunc
	histName  string
	history   []rest.HistoryRecord
	histErr   error

	views.WidgetWatchers
}

func (a *App) show(w views.Widget) {
	if w != a.panel {
		a.panel.SetView(nil)
		a.panel = w
	}
	a.panel.SetView(a.view)
	a.panel.Resize()
	a.app.Refresh()
}

func (a *App) ShowHelp() {
	a.show(a.help)
}

func (a *App) ShowInfo(name string) {
	a.info.SetName(name)
	a.histName = name
	a.history = nil
	a.histErr = nil
	go a.loadHistory(name)
	a.show(a.info)
}

// ShowLog follows the log of the named program, or the manager's own
// log when name is empty.
func (a *App) ShowLog(name string) {
	if a.logCancel != nil {
		a.logCancel()
	}
	ctx, cancel := context.WithCancel(context.Background())
	a.logInfo = nil
	a.logErr = nil
	a.logName = name
	a.logCancel = cancel
	a.log.SetName(name)
	go a.refreshLog(ctx, name)

	a.show(a.log)
}

func (a *App) ShowMain() {
	a.show(a.main)
}

func (a *App) ShowAuth() {
	a.auth.ResetFields()
	a.show(a.auth)
}

func (a *App) SetUserPassword(user, pass string) {
	a.client.SetAuth(user, pass)
	a.err = nil
	go a.reload()
}

func (a *App) StartProgram(name string) {
	a.control("start", name, a.client.StartProgram)
}

func (a *App) StopProgram(name string) {
	a.control("stop", name, a.client.StopProgram)
}

func (a *App) RestartProgram(name string) {
	a.control("restart", name, a.client.RestartProgram)
}

func (a *App) ClearProgram(name string) {
	a.control("clear", name, a.client.ClearProgram)
}

// control runs a command without blocking the event loop.  A refusal
// is shown on the status bar until the next command.
func (a *App) control(verb, name string, fn func(string) error) {
	a.notice = ""
	a.Logf("%s %s", verb, name)
	go func() {
		if e := fn(name); e != nil {
			a.app.PostFunc(func() {
				a.notice = fmt.Sprintf("Cannot %s %s: %v", verb, name, e)
				a.app.Update()
			})
		}
	}()
}

// Notice returns the result of the last failed command, if any.
func (a *App) Notice() string {
	return a.notice
}

func (a *App) Quit() {
	a.app.Quit()
}

func (a *App) SetLogger(logger *log.Logger) {
	a.logger = logger
}

func (a *App) Logf(fmt string, v ...interface{}) {
	if a.logger != nil {
		a.logger.Printf(fmt, v...)
	}
}

func (a *App) HandleEvent(ev tcell.Event) bool {
	switch ev := ev.(type) {
	case *tcell.EventKey:
		switch ev.Key() {
		case tcell.KeyCtrlC:
			a.Quit()
			return true
		case tcell.KeyCtrlL:
			a.app.Refresh()
			return true
		}
	}

	if a.panel != nil {
		return a.panel.HandleEvent(ev)
	}
	return false
}

func (a *App) Draw() {
	// PostFunc drops events until the screen exists, so the pollers
	// start with the first draw.
	a.once.Do(a.startPolling)
	if a.panel != nil {
		a.panel.Draw()
	}
}

func (a *App) Resize() {
	if a.panel != nil {
		a.panel.Resize()
	}
}

func (a *App) SetView(view views.View) {
	a.view = view
	if a.panel != nil {
		a.panel.SetView(view)
	}
}

func (a *App) Size() (int, int) {
	if a.panel != nil {
		return a.panel.Size()
	}
	return 0, 0
}

func (a *App) Server() string {
	return a.server
}

func (a *App) GetAppName() string {
	return "xsupervisor"
}

func NewApp(client *rest.Client, server string) *App {
	app := &App{
		app:    &views.Application{},
		client: client,
		server: server,
	}
	app.info = NewInfoPanel(app)
	app.help = NewHelpPanel(app)
	app.log = NewLogPanel(app)
	app.main = NewMainPanel(app)
	app.auth = NewAuthPanel(app)
	app.panel = app.main
	return app
}

func (a *App) getItems() ([]*rest.ProgramInfo, error) {
	names, e := a.client.Programs()
	if e != nil {
		return nil, e
	}
	items := make([]*rest.ProgramInfo, 0, len(names))
	for _, n := range names {
		item, e := a.client.GetProgram(n)
		if e != nil {
			return nil, e
		}
		items = append(items, item)
	}
	util.SortPrograms(items)
	return items, nil
}

func (a *App) reload() {
	items, e := a.getItems()
	a.app.PostFunc(func() {
		a.items = items
		a.err = e
		a.app.Update()
	})
}

// refresh keeps the items current by long polling the manager serial.
func (a *App) refresh() {
	etag := ""
	for {
		a.reload()

		ctx, cancel := context.WithTimeout(context.Background(),
			time.Hour)
		ntag, e := a.client.Watch(ctx, etag)
		cancel()
		if e != nil {
			time.Sleep(2 * time.Second)
			continue
		}
		etag = ntag
	}
}

func (a *App) refreshLog(ctx context.Context, name string) {
	info, e := a.client.GetLog(name)

	for {
		a.app.PostFunc(func() {
			if a.logName == name {
				a.logInfo = info
				a.logErr = e
				a.app.Update()
			}
		})
		select {
		case <-ctx.Done():
			return
		default:
		}
		if e != nil {
			time.Sleep(2 * time.Second)
			info, e = a.client.GetLog(name)
			continue
		}
		info, e = a.client.WatchLog(ctx, name, info)
	}
}

func (a *App) loadHistory(name string) {
	recs, e := a.client.History(name, 20)
	a.app.PostFunc(func() {
		if a.histName == name {
			a.history = recs
			a.histErr = e
			a.app.Update()
		}
	})
}

// Unauthorized reports whether e is the server refusing our
// credentials.
func Unauthorized(e error) bool {
	var re *rest.Error
	return errors.As(e, &re) && re.Code == http.StatusUnauthorized
}

func (a *App) GetItems() ([]*rest.ProgramInfo, error) {
	return a.items, a.err
}

func (a *App) GetItem(name string) (*rest.ProgramInfo, error) {
	if a.err != nil {
		return nil, a.err
	}
	for _, i := range a.items {
		if i.Name == name {
			return i, nil
		}
	}
	return nil, errNoProgram
}

func (a *App) GetLog(name string) (*rest.LogInfo, error) {
	if a.logName == name {
		return a.logInfo, a.logErr
	}
	return nil, nil
}

func (a *App) GetHistory(name string) ([]rest.HistoryRecord, error) {
	if a.histName == name {
		return a.history, a.histErr
	}
	return nil, nil
}

func (a *App) Run() error {
	a.Logf("Starting up user interface")
	a.app.SetRootWidget(a)
	a.ShowMain()
	return a.app.Run()
}

func (a *App) startPolling() {
	go a.refresh()
	go func() {
		// Uptime columns advance once a second.
		for {
			a.app.PostFunc(func() {})
			time.Sleep(time.Second)
		}
	}()
}
