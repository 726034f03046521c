// Copyright (c) 2024 Big Cove Technologies Ltd
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License version 3 as
// published by the Free Software Foundation.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.

// Package daemon exposes the updater over a local HTTP API: trigger an
// update, inspect status and history, follow progress events.
package daemon

import (
	"bufio"
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gopkg.in/tomb.v2"

	"github.com/Big-Cove/nerves-zero-downtime/internals/bootenv"
	"github.com/Big-Cove/nerves-zero-downtime/internals/logger"
	"github.com/Big-Cove/nerves-zero-downtime/internals/statefile"
	"github.com/Big-Cove/nerves-zero-downtime/internals/update"
)

// Options holds the daemon setup required for the initialization of a new
// daemon.
type Options struct {
	// Address is the HTTP listen address, e.g. ":4000".
	Address string

	// DefaultRef is the firmware reference applied by the zero-argument
	// notify trigger, typically the device's staged upload path.
	DefaultRef string

	Version      string
	Orchestrator *update.Orchestrator
	State        *statefile.Store
	Env          bootenv.Store
}

// A Daemon listens for requests and routes them to the right command.
type Daemon struct {
	options  Options
	router   *mux.Router
	serve    *http.Server
	listener net.Listener
	tomb     tomb.Tomb

	mu sync.Mutex
}

// A ResponseFunc handles one of the individual verbs for a method.
type ResponseFunc func(*Command, *http.Request) Response

// A Command routes a request to an individual per-verb ResponseFunc.
type Command struct {
	Path string

	GET  ResponseFunc
	POST ResponseFunc

	d *Daemon
}

func (c *Command) Daemon() *Daemon {
	return c.d
}

func (c *Command) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var rspf ResponseFunc
	switch r.Method {
	case "GET":
		rspf = c.GET
	case "POST":
		rspf = c.POST
	}
	if rspf == nil {
		MethodNotAllowed("method %q not allowed", r.Method).ServeHTTP(w, r)
		return
	}
	rspf(c, r).ServeHTTP(w, r)
}

// New creates an unstarted daemon routing the API commands.
func New(opts Options) *Daemon {
	d := &Daemon{options: opts}
	d.router = mux.NewRouter()
	for _, c := range API {
		command := *c
		command.d = d
		d.router.Handle(command.Path, &command).Name(command.Path)
	}
	d.router.Handle("/metrics", promhttp.Handler())
	d.router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		NotFound("invalid API endpoint requested").ServeHTTP(w, r)
	})
	d.serve = &http.Server{Handler: logit(d.router)}
	return d
}

// Start begins serving on the configured address.
func (d *Daemon) Start() error {
	listener, err := net.Listen("tcp", d.options.Address)
	if err != nil {
		return err
	}
	d.mu.Lock()
	d.listener = listener
	d.mu.Unlock()
	logger.Noticef("Serving API on %s", listener.Addr())
	d.tomb.Go(func() error {
		err := d.serve.Serve(listener)
		if err == http.ErrServerClosed {
			return nil
		}
		if err != nil && d.tomb.Err() == tomb.ErrStillAlive {
			return err
		}
		return nil
	})
	return nil
}

// Addr returns the address the daemon is listening on, valid after Start.
func (d *Daemon) Addr() net.Addr {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.listener == nil {
		return nil
	}
	return d.listener.Addr()
}

// Stop shuts the daemon down gracefully.
func (d *Daemon) Stop() error {
	d.tomb.Kill(nil)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := d.serve.Shutdown(ctx)
	if tombErr := d.tomb.Wait(); tombErr != nil && err == nil {
		err = tombErr
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return errors.New("cannot gracefully shut down the daemon")
	}
	return err
}

func logit(handler http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := &wrappedWriter{w: w}
		t0 := time.Now()
		handler.ServeHTTP(ww, r)
		t := time.Since(t0)
		logger.Debugf("%s %s %s %s %d", r.RemoteAddr, r.Method, r.URL, t, ww.status)
	})
}

type wrappedWriter struct {
	w      http.ResponseWriter
	status int
}

func (w *wrappedWriter) Header() http.Header {
	return w.w.Header()
}

func (w *wrappedWriter) Write(bs []byte) (int, error) {
	return w.w.Write(bs)
}

func (w *wrappedWriter) WriteHeader(status int) {
	w.status = status
	w.w.WriteHeader(status)
}

func (w *wrappedWriter) Flush() {
	if f, ok := w.w.(http.Flusher); ok {
		f.Flush()
	}
}

// Hijack is needed so the events endpoint can upgrade to a websocket.
func (w *wrappedWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := w.w.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("underlying writer does not support hijacking")
	}
	return h.Hijack()
}
