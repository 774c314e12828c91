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

// Command xsupervisord runs the programs described by a configuration file,
// and serves the REST control interface for them.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/google/renameio/v2"
	"vawter.tech/stopper"

	"github.com/Devessier/xsupervisor"
	"github.com/Devessier/xsupervisor/history"
	"github.com/Devessier/xsupervisor/rest"
)

var cfgPath string = "supervisor.yaml"
var addr string
var name string

// shutdownGrace is added to the longest stoptime when shutting down.
const shutdownGrace = 5 * time.Second

func writePidFile(path string) error {
	return renameio.WriteFile(path, []byte(strconv.Itoa(os.Getpid())+"\n"), 0o644)
}

// maxStopTime is the longest any instance may take to stop gracefully.
func maxStopTime(cfg *xsupervisor.Config) time.Duration {
	var d time.Duration
	for _, pc := range cfg.Programs {
		if pc.StopTime > d {
			d = pc.StopTime
		}
	}
	return d
}

// build creates the supervision tree for cfg and the REST handler serving
// it.  The returned function closes the history store, if any, and must
// be called once the manager has shut down.
func build(cfg *xsupervisor.Config, logger *log.Logger, opts ...xsupervisor.Option) (*xsupervisor.Manager, http.Handler, func() error, error) {
	var hopts []rest.HandlerOption
	closeHistory := func() error { return nil }
	if cfg.History != "" {
		store, e := history.Open(cfg.History, logger)
		if e != nil {
			return nil, nil, nil, fmt.Errorf("failed to open history %s: %w", cfg.History, e)
		}
		closeHistory = store.Close
		opts = append(opts, xsupervisor.WithRecorder(store))
		hopts = append(hopts, rest.WithHistory(store))
	}
	if len(cfg.Users) > 0 {
		hopts = append(hopts, rest.WithUsers(cfg.Users))
	}

	m := xsupervisor.NewManager(cfg, opts...)
	return m, rest.NewHandler(m, hopts...), closeHistory, nil
}

func run(logger *log.Logger) error {
	cfg, e := xsupervisor.LoadConfig(cfgPath)
	if e != nil {
		return fmt.Errorf("failed to load %s: %w", cfgPath, e)
	}
	if addr != "" {
		cfg.Listen = addr
	}
	if name != "" {
		cfg.Name = name
	}

	// Bind first, so that a second daemon fails before starting anything.
	ln, e := net.Listen("tcp", cfg.Listen)
	if e != nil {
		return e
	}

	if cfg.PidFile != "" {
		if e := writePidFile(cfg.PidFile); e != nil {
			ln.Close()
			return fmt.Errorf("failed to write pid file: %w", e)
		}
		defer os.Remove(cfg.PidFile)
	}

	m, handler, closeHistory, e := build(cfg, logger)
	if e != nil {
		ln.Close()
		return e
	}
	defer closeHistory()
	srv := &http.Server{Handler: handler}
	grace := maxStopTime(cfg) + shutdownGrace

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(sigs)

	sctx := stopper.WithContext(context.Background())

	sctx.Go(func(sctx *stopper.Context) error {
		m.Logger().Printf("Listening on %s", ln.Addr())
		if e := srv.Serve(ln); e != nil && e != http.ErrServerClosed {
			m.Logger().Printf("HTTP server failed: %v", e)
			sctx.Stop(grace)
			return e
		}
		return nil
	})

	sctx.Go(func(sctx *stopper.Context) error {
		select {
		case sig := <-sigs:
			m.Logger().Printf("Received %v, shutting down", sig)
			sctx.Stop(grace)
		case <-sctx.Stopping():
		}
		return nil
	})

	// Tear down when stopping, whatever the cause.
	sctx.Go(func(sctx *stopper.Context) error {
		<-sctx.Stopping()
		ctx, cancel := context.WithTimeout(context.Background(), grace)
		defer cancel()
		e := m.Shutdown(ctx)
		srv.Shutdown(ctx)
		return e
	})

	return sctx.Wait()
}

func main() {
	flag.StringVar(&cfgPath, "c", cfgPath, "configuration file")
	flag.StringVar(&addr, "a", addr, "listen address (overrides the configuration)")
	flag.StringVar(&name, "n", name, "supervisor name (overrides the configuration)")
	flag.Parse()

	logger := log.New(os.Stderr, "", log.LstdFlags)
	if e := run(logger); e != nil {
		logger.Printf("xsupervisord: %v", e)
		os.Exit(1)
	}
}
