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

package rest

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"golang.org/x/crypto/bcrypt"

	"github.com/Devessier/xsupervisor"
)

// Historian is the part of a history store the handler needs.
type Historian interface {
	Query(ctx context.Context, program string, limit int) ([]HistoryRecord, error)
}

// Handler wraps a Manager, adding http.Handler functionality.
type Handler struct {
	m       *xsupervisor.Manager
	r       *mux.Router
	history Historian
	users   map[string]string
	logger  *log.Logger
}

// HandlerOption customizes a Handler.
type HandlerOption func(*Handler)

// WithHistory serves transition history from hist.
func WithHistory(hist Historian) HandlerOption {
	return func(h *Handler) { h.history = hist }
}

// WithUsers requires HTTP basic authentication against users, a map of
// user names to bcrypt password hashes.  An empty map disables it.
func WithUsers(users map[string]string) HandlerOption {
	return func(h *Handler) { h.users = users }
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
}

func (h *Handler) internalError(w http.ResponseWriter, e error) {
	http.Error(w, e.Error(), http.StatusInternalServerError)
}

func (h *Handler) writeJson(w http.ResponseWriter, v interface{}) {
	if b, e := json.Marshal(v); e != nil {
		h.internalError(w, e)
	} else {
		w.Header().Set("Content-Type", mimeJson)
		w.Write(b)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, e *Error) {
	if b, err := json.Marshal(e); err != nil {
		h.internalError(w, err)
	} else {
		w.Header().Set("Content-Type", mimeJson)
		w.WriteHeader(e.Code)
		w.Write(b)
	}
}

// writeTagged writes v with the given Etag, or just 304 when the client
// already has it.
func (h *Handler) writeTagged(w http.ResponseWriter, r *http.Request, etag string, v interface{}) {
	w.Header().Set("Etag", etag)
	if r.Header.Get("If-None-Match") == etag {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	h.writeJson(w, v)
}

func errorFor(e error) *Error {
	switch {
	case errors.Is(e, xsupervisor.ErrNotFound):
		return &Error{http.StatusNotFound, "Program not found"}
	case errors.Is(e, xsupervisor.ErrShutdown):
		return &Error{http.StatusServiceUnavailable, e.Error()}
	}
	return &Error{http.StatusBadRequest, e.Error()}
}

// pollParams returns the etag and wait time of a long poll request.  The
// wait is zero if the request is not a long poll.
func pollParams(r *http.Request) (string, time.Duration) {
	etag := r.Header.Get(PollEtagHeader)
	secs, e := strconv.Atoi(r.Header.Get(PollTimeHeader))
	if etag == "" || e != nil || secs <= 0 {
		return etag, 0
	}
	d := time.Duration(secs) * time.Second
	if d > MaxPollTime {
		d = MaxPollTime
	}
	return etag, d
}

func parseTag(etag string) int64 {
	v, _ := strconv.ParseInt(etag, 10, 64)
	return v
}

func formatTag(v int64) string {
	return strconv.FormatInt(v, 10)
}

// waitSerial blocks a long poll until the manager's serial changes.
func (h *Handler) waitSerial(r *http.Request) {
	if etag, d := pollParams(r); d > 0 {
		h.m.WatchSerial(parseTag(etag), d)
	}
}

func (h *Handler) getManager(w http.ResponseWriter, r *http.Request) {
	h.waitSerial(r)
	i := h.m.GetInfo()
	info := &ManagerInfo{
		Name:       i.Name,
		Serial:     i.Serial,
		CreateTime: i.CreateTime,
		UpdateTime: i.UpdateTime,
	}
	h.writeTagged(w, r, formatTag(i.Serial), info)
}

func (h *Handler) listPrograms(w http.ResponseWriter, r *http.Request) {
	h.writeJson(w, h.m.Names())
}

func (h *Handler) findProgram(r *http.Request) (*xsupervisor.Program, *Error) {
	p, e := h.m.Program(mux.Vars(r)["program"])
	if e != nil {
		return nil, errorFor(e)
	}
	return p, nil
}

func (h *Handler) getProgram(w http.ResponseWriter, r *http.Request) {
	p, e := h.findProgram(r)
	if e != nil {
		h.writeError(w, e)
		return
	}
	h.waitSerial(r)
	// Read the serial first, so a change racing with the snapshot
	// shows up on the next poll.
	serial := h.m.Serial()
	cfg := p.Config()
	info := &ProgramInfo{
		Name:        p.Name(),
		Command:     cfg.Cmd,
		NumProcs:    cfg.NumProcs,
		AutoStart:   cfg.AutoStart,
		AutoRestart: cfg.AutoRestart.String(),
		Instances:   p.Snapshot(),
	}
	h.writeTagged(w, r, formatTag(serial), info)
}

func (h *Handler) control(action func(*xsupervisor.Manager, string) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := action(h.m, mux.Vars(r)["program"]); err != nil {
			h.writeError(w, errorFor(err))
			return
		}
		h.writeJson(w, ok)
	}
}

func (h *Handler) serveLog(w http.ResponseWriter, r *http.Request, l *xsupervisor.Log) {
	if etag, d := pollParams(r); d > 0 {
		l.Watch(parseTag(etag), d)
	}
	recs, id := l.GetRecords(0)
	h.writeTagged(w, r, formatTag(id), recs)
}

func (h *Handler) getLog(w http.ResponseWriter, r *http.Request) {
	p, e := h.findProgram(r)
	if e != nil {
		h.writeError(w, e)
		return
	}
	h.serveLog(w, r, p.Log())
}

func (h *Handler) getManagerLog(w http.ResponseWriter, r *http.Request) {
	if etag, d := pollParams(r); d > 0 {
		h.m.WatchLog(parseTag(etag), d)
	}
	recs, id := h.m.GetLog(0)
	h.writeTagged(w, r, formatTag(id), recs)
}

func (h *Handler) getHistory(w http.ResponseWriter, r *http.Request) {
	p, e := h.findProgram(r)
	if e != nil {
		h.writeError(w, e)
		return
	}
	if h.history == nil {
		h.writeError(w, &Error{http.StatusNotFound, xsupervisor.ErrNoHistory.Error()})
		return
	}
	limit := 0
	if s := r.URL.Query().Get("limit"); s != "" {
		v, err := strconv.Atoi(s)
		if err != nil || v < 0 {
			h.writeError(w, &Error{http.StatusBadRequest, "Bad limit"})
			return
		}
		limit = v
	}
	recs, err := h.history.Query(r.Context(), p.Name(), limit)
	if err != nil {
		h.internalError(w, err)
		return
	}
	h.writeJson(w, recs)
}

func (h *Handler) tail(w http.ResponseWriter, r *http.Request) {
	p, e := h.findProgram(r)
	if e != nil {
		h.writeError(w, e)
		return
	}
	vars := mux.Vars(r)
	index, err := strconv.Atoi(vars["index"])
	procs := p.Instances()
	if err != nil || index < 0 || index >= len(procs) {
		h.writeError(w, &Error{http.StatusNotFound, "Instance not found"})
		return
	}
	st := procs[index].Snapshot()
	path := st.Stdout
	if vars["stream"] == "stderr" {
		path = st.Stderr
	}
	if path == "" {
		h.writeError(w, &Error{http.StatusNotFound, "Stream is discarded"})
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// The upgrader already replied.
		h.logf("Tail of %s:%d failed: %v", p.Name(), index, err)
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				cancel()
				return
			}
		}
	}()

	err = follow(ctx, path, tailBacklog, func(b []byte) error {
		conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		return conn.WriteMessage(websocket.TextMessage, b)
	})
	if err != nil {
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseInternalServerErr, err.Error()),
			time.Now().Add(time.Second))
		return
	}
	conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
}

func (h *Handler) logf(format string, v ...interface{}) {
	if h.logger != nil {
		h.logger.Printf(format, v...)
	}
}

// authenticate checks HTTP basic auth credentials against the users.
func (h *Handler) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if ok {
			if hash, found := h.users[user]; found &&
				bcrypt.CompareHashAndPassword([]byte(hash), []byte(pass)) == nil {
				next.ServeHTTP(w, r)
				return
			}
			h.logf("Authentication failed for user %q from %s", user, r.RemoteAddr)
		}
		w.Header().Set("WWW-Authenticate", `Basic realm="xsupervisor"`)
		h.writeError(w, &Error{http.StatusUnauthorized, "Unauthorized"})
	})
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	h.r.ServeHTTP(w, req)
}

func NewHandler(m *xsupervisor.Manager, opts ...HandlerOption) *Handler {
	r := mux.NewRouter()
	h := &Handler{m: m, r: r, logger: m.Logger()}
	for _, o := range opts {
		o(h)
	}
	if len(h.users) > 0 {
		r.Use(h.authenticate)
	}
	r.HandleFunc("/", h.getManager).Methods("GET")
	r.HandleFunc("/log", h.getManagerLog).Methods("GET")
	r.HandleFunc("/programs", h.listPrograms).Methods("GET")
	r.HandleFunc("/programs/{program}", h.getProgram).Methods("GET")
	r.HandleFunc("/programs/{program}/start", h.control((*xsupervisor.Manager).Start)).Methods("POST")
	r.HandleFunc("/programs/{program}/stop", h.control((*xsupervisor.Manager).Stop)).Methods("POST")
	r.HandleFunc("/programs/{program}/restart", h.control((*xsupervisor.Manager).Restart)).Methods("POST")
	r.HandleFunc("/programs/{program}/clear", h.control((*xsupervisor.Manager).Clear)).Methods("POST")
	r.HandleFunc("/programs/{program}/log", h.getLog).Methods("GET")
	r.HandleFunc("/programs/{program}/history", h.getHistory).Methods("GET")
	r.HandleFunc("/programs/{program}/instances/{index:[0-9]+}/tail/{stream:stdout|stderr}", h.tail).Methods("GET")
	return h
}
