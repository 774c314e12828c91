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
	"io"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// tailBacklog is how much of an existing file a tail starts with.
const tailBacklog = 16 * 1024

// follow sends the last backlog bytes of the file at path to out, then
// everything appended to it, until ctx is done.  The file need not exist
// yet.  If it is truncated or replaced, following starts over from its
// beginning.
func follow(ctx context.Context, path string, backlog int64, out func([]byte) error) error {
	path = filepath.Clean(path)
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()
	// Watch the directory, so that creation and rotation are seen.
	if err := w.Add(filepath.Dir(path)); err != nil {
		return err
	}

	var f *os.File
	defer func() {
		if f != nil {
			f.Close()
		}
	}()
	// open reopens the file, positioned to read its last keep bytes, or
	// all of it when keep is negative.
	open := func(keep int64) {
		if f != nil {
			f.Close()
			f = nil
		}
		nf, err := os.Open(path)
		if err != nil {
			return
		}
		if fi, err := nf.Stat(); err == nil && keep >= 0 && fi.Size() > keep {
			nf.Seek(fi.Size()-keep, io.SeekStart)
		}
		f = nf
	}

	buf := make([]byte, 32*1024)
	drain := func() error {
		if f == nil {
			return nil
		}
		if pos, err := f.Seek(0, io.SeekCurrent); err == nil {
			if fi, err := f.Stat(); err == nil && fi.Size() < pos {
				f.Seek(0, io.SeekStart)
			}
		}
		for {
			n, err := f.Read(buf)
			if n > 0 {
				if err := out(buf[:n]); err != nil {
					return err
				}
			}
			if err == io.EOF {
				return nil
			}
			if err != nil {
				return err
			}
		}
	}

	open(backlog)
	if err := drain(); err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != path {
				continue
			}
			if ev.Has(fsnotify.Create) {
				open(-1)
			}
			if ev.Has(fsnotify.Create) || ev.Has(fsnotify.Write) {
				if err := drain(); err != nil {
					return err
				}
			}
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			return err
		}
	}
}
