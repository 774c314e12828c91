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
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/net/context"
)

type LogInfo struct {
	name    string
	etag    string
	Records []LogRecord
}

type Client struct {
	user   string // HTTP Basic-Auth
	pass   string
	base   string // URI to root of tree on server
	auth   bool
	client *http.Client
	dialer *websocket.Dialer

	// Cached data
	manager  *ManagerInfo
	programs map[string]*ProgramInfo
	logs     map[string]*LogInfo
	lock     sync.Mutex
}

func (c *Client) SetAuth(user string, pass string) {
	c.user = user
	c.pass = pass
	c.auth = true
}

func (c *Client) url(name string) string {
	if name == "" {
		return c.base + "/programs"
	}
	return c.base + "/programs/" + url.PathEscape(name)
}

// Watch waits for the manager's state to change from etag, which is
// returned by a previous call.  An empty etag returns the current one
// right away.
func (c *Client) Watch(ctx context.Context, etag string) (string, error) {
	wait := 300
	if etag == "" {
		wait = 0
	}
	minfo := &ManagerInfo{}
	ntag, e := c.poll(ctx, c.base+"/", etag, wait, minfo)
	if e != nil {
		return "", e
	}
	if ntag == "" {
		return etag, nil
	}
	minfo.etag = ntag
	c.lock.Lock()
	c.manager = minfo
	c.lock.Unlock()
	return ntag, nil
}

// Info returns top-level information about the server.
func (c *Client) Info() (*ManagerInfo, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, e := c.Watch(ctx, ""); e != nil {
		return nil, e
	}
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.manager, nil
}

// Programs returns the names of the programs known to the server.
func (c *Client) Programs() ([]string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	v := []string{}
	if _, e := c.poll(ctx, c.url(""), "", 0, &v); e != nil {
		return nil, e
	}
	return v, nil
}

func (c *Client) pollProgram(ctx context.Context, name string, secs int, last *ProgramInfo) (*ProgramInfo, error) {

	v := &ProgramInfo{}
	c.lock.Lock()
	cached, ok := c.programs[name]
	c.lock.Unlock()

	otag := ""
	if last == nil {
		secs = 0
	} else if ok && last.etag != cached.etag {
		// The cache is already newer than what the caller has.
		return cached, nil
	} else {
		otag = last.etag
	}

	etag, e := c.poll(ctx, c.url(name), otag, secs, v)
	if e != nil {
		c.lock.Lock()
		delete(c.programs, name)
		c.lock.Unlock()
		return nil, e
	}
	if etag == "" {
		if cached == nil {
			return last, nil
		}
		return cached, nil
	}
	v.etag = etag
	c.lock.Lock()
	c.programs[name] = v
	c.lock.Unlock()
	return v, nil
}

// GetProgram returns the current state of a program.
func (c *Client) GetProgram(name string) (*ProgramInfo, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return c.pollProgram(ctx, name, 0, nil)
}

// WatchProgram waits until the program's state differs from last.
func (c *Client) WatchProgram(ctx context.Context, name string, last *ProgramInfo) (*ProgramInfo, error) {
	return c.pollProgram(ctx, name, 300, last)
}

type chanResp struct {
	r *http.Response
	e error
}

func (c *Client) newRequest(ctx context.Context, method string, url string) (*http.Request, error) {
	req, e := http.NewRequest(method, url, nil)
	if e != nil {
		return nil, e
	}
	if c.auth {
		req.SetBasicAuth(c.user, c.pass)
	}
	return req.WithContext(ctx), nil
}

// responseError turns an unsuccessful response into an *Error, using the
// message the server sent if there is one.
func responseError(res *http.Response) error {
	e := &Error{}
	if b, err := io.ReadAll(io.LimitReader(res.Body, 4096)); err == nil &&
		json.Unmarshal(b, e) == nil && e.Message != "" {
		e.Code = res.StatusCode
		return e
	}
	return &Error{Code: res.StatusCode, Message: res.Status}
}

// poll issues an HTTP GET against the URL, optionally checking for a cache,
// including optionally issuing a long poll that tries to wait until the
// value changes.  The return values are the new Etag and any error.  If the
// value did not change, then the returned etag will be "", but the error will
// be nil.
func (c *Client) poll(ctx context.Context, url string, etag string, wait int, v interface{}) (string, error) {

	req, e := c.newRequest(ctx, "GET", url)
	if e != nil {
		return "", e
	}
	if etag != "" {
		req.Header.Set("If-None-Match", etag)
		if wait > 0 {
			req.Header.Set(PollEtagHeader, etag)
			req.Header.Set(PollTimeHeader, strconv.Itoa(wait))
		}
	}

	ch := make(chan chanResp, 1)
	go func() {
		res, e := c.client.Do(req)
		ch <- chanResp{r: res, e: e}
	}()

	var res *http.Response
	select {
	case <-ctx.Done():
		if cr := <-ch; cr.r != nil {
			cr.r.Body.Close()
		}
		return "", ctx.Err()
	case cr := <-ch:
		res = cr.r
		e = cr.e
	}
	if e != nil {
		return "", e
	}
	defer res.Body.Close()
	if res.StatusCode == http.StatusNotModified {
		return "", nil
	}
	if res.StatusCode != http.StatusOK {
		return "", responseError(res)
	}
	if e := json.NewDecoder(res.Body).Decode(v); e != nil {
		return "", e
	}
	return res.Header.Get("Etag"), nil
}

func (c *Client) post(url string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	req, e := c.newRequest(ctx, "POST", url)
	if e != nil {
		return e
	}
	req.Body = io.NopCloser(strings.NewReader(""))
	req.Header.Set("Content-Type", "text/plain") // we don't really care
	res, e := c.client.Do(req)
	if e != nil {
		return e
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		return responseError(res)
	}
	return nil
}

func (c *Client) postProgram(name string, action string) error {
	return c.post(c.url(name) + "/" + action)
}

func (c *Client) StartProgram(name string) error {
	return c.postProgram(name, "start")
}

func (c *Client) StopProgram(name string) error {
	return c.postProgram(name, "stop")
}

func (c *Client) RestartProgram(name string) error {
	return c.postProgram(name, "restart")
}

func (c *Client) ClearProgram(name string) error {
	return c.postProgram(name, "clear")
}

// History returns up to limit of the program's most recent transitions,
// newest first.
func (c *Client) History(name string, limit int) ([]HistoryRecord, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	u := c.url(name) + "/history"
	if limit > 0 {
		u += "?limit=" + strconv.Itoa(limit)
	}
	v := []HistoryRecord{}
	if _, e := c.poll(ctx, u, "", 0, &v); e != nil {
		return nil, e
	}
	return v, nil
}

func (c *Client) pollLog(ctx context.Context, name string, secs int, last *LogInfo) (*LogInfo, error) {

	v := &LogInfo{name: name}

	c.lock.Lock()
	cached, ok := c.logs[name]
	c.lock.Unlock()

	otag := ""
	if last == nil {
		secs = 0
	} else if ok && last.etag != cached.etag {
		return cached, nil
	} else {
		otag = last.etag
	}

	url := c.url(name) + "/log"
	if name == "" {
		url = c.base + "/log"
	}

	etag, e := c.poll(ctx, url, otag, secs, &v.Records)
	if e != nil {
		c.lock.Lock()
		delete(c.logs, name)
		c.lock.Unlock()
		return nil, e
	}
	if etag == "" {
		if cached == nil {
			return last, nil
		}
		return cached, nil
	}
	v.etag = etag
	c.lock.Lock()
	c.logs[name] = v
	c.lock.Unlock()

	return v, nil
}

// WatchLog waits for the log to differ from last.  An empty name is the
// manager's own log.
func (c *Client) WatchLog(ctx context.Context, name string, last *LogInfo) (*LogInfo, error) {

	// Let the poll wait for up to 300 secs (5 minutes).
	return c.pollLog(ctx, name, 300, last)
}

func (c *Client) GetLog(name string) (*LogInfo, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return c.pollLog(ctx, name, 0, nil)
}

// Tail copies the output stream ("stdout" or "stderr") of one instance
// to w, until ctx is done or the server ends the stream.
func (c *Client) Tail(ctx context.Context, name string, index int, stream string, w io.Writer) error {
	u, e := url.Parse(fmt.Sprintf("%s/instances/%d/tail/%s", c.url(name), index, stream))
	if e != nil {
		return e
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	hdr := http.Header{}
	if c.auth {
		req := &http.Request{Header: hdr}
		req.SetBasicAuth(c.user, c.pass)
	}
	conn, res, e := c.dialer.DialContext(ctx, u.String(), hdr)
	if e != nil {
		if res != nil {
			defer res.Body.Close()
			return responseError(res)
		}
		return e
	}
	defer conn.Close()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	for {
		_, b, e := conn.ReadMessage()
		if e != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if websocket.IsCloseError(e, websocket.CloseNormalClosure) {
				return nil
			}
			return e
		}
		if _, e := w.Write(b); e != nil {
			return e
		}
	}
}

// NewClient returns a Client handle.  The transport maybe nil to use
// a default transport, but it may also be adjusted to support additional
// options such as TLS.  baseURI is the base URL to use.
func NewClient(t *http.Transport, baseURI string) *Client {
	if t == nil {
		t = &http.Transport{}
	}
	c := &Client{
		base:     strings.TrimRight(baseURI, "/"),
		client:   &http.Client{Transport: t},
		dialer:   &websocket.Dialer{TLSClientConfig: t.TLSClientConfig, Proxy: t.Proxy},
		programs: make(map[string]*ProgramInfo),
		logs:     make(map[string]*LogInfo),
	}
	return c
}
