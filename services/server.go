// Copyright (c) 2023 The KBase Project and its Contributors
// Copyright (c) 2023 Cohere Consulting, LLC
//
// Permission is hereby granted, free of charge, to any person obtaining a copy of
// this software and associated documentation files (the "Software"), to deal in
// the Software without restriction, including without limitation the rights to
// use, copy, modify, merge, publish, distribute, sublicense, and/or sell copies
// of the Software, and to permit persons to whom the Software is furnished to do
// so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
// SOFTWARE.

// Package services implements the librarian's HTTP surface (spec section 6):
// the upload protocol, the clone protocol, checkin reconciliation, search and
// validation, and a small admin API over durable Error rows. Routing follows
// the teacher's services/prototype.go: a gorilla/mux router built from an
// explicit table rather than decorator-bound handlers, served behind a
// netutil.LimitListener, with graceful shutdown.
package services

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"golang.org/x/net/netutil"

	"github.com/HERA-Team/librarian-sub000/auth"
	"github.com/HERA-Team/librarian-sub000/config"
	"github.com/HERA-Team/librarian-sub000/tasks"
)

// Server is this librarian's HTTP front end.
type Server struct {
	Name      string
	StartTime time.Time
	Port      int

	Deps *tasks.Deps
	Auth *auth.Registry

	router *mux.Router
	http   *http.Server
}

// route is one entry in the explicit routing table NewServer builds,
// replacing the decorator-bound endpoint registration spec section 9 flags
// for removal.
type route struct {
	path    string
	methods []string
	handler http.HandlerFunc
}

// NewServer builds a Server wired to deps and authRegistry. It does not bind
// a listener; call Start to do that.
func NewServer(deps *tasks.Deps, authRegistry *auth.Registry) *Server {
	s := &Server{
		Name: config.Service.Name,
		Deps: deps,
		Auth: authRegistry,
	}

	r := mux.NewRouter()
	for _, rt := range s.routes() {
		r.HandleFunc(rt.path, rt.handler).Methods(rt.methods...)
	}
	AddDocEndpoints(r)
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "no such endpoint", "check the request path and method")
	})
	s.router = r
	return s
}

// routes is the librarian's explicit routing table (spec section 6).
func (s *Server) routes() []route {
	return []route{
		{"/ping", []string{http.MethodGet}, s.requireAuth(auth.Read, s.ping)},
		{"/search/file", []string{http.MethodGet}, s.requireAuth(auth.Read, s.searchFile)},
		{"/validate/file", []string{http.MethodPost}, s.requireAuth(auth.Read, s.validateFile)},

		{"/upload/stage", []string{http.MethodPost}, s.requireAuth(auth.Append, s.uploadStage)},
		{"/upload/commit", []string{http.MethodPost}, s.requireAuth(auth.Append, s.uploadCommit)},

		{"/clone/stage", []string{http.MethodPost}, s.requireAuth(auth.Append, s.cloneStage)},
		{"/clone/batch_stage", []string{http.MethodPost}, s.requireAuth(auth.Append, s.cloneBatchStage)},
		{"/clone/ongoing", []string{http.MethodPost}, s.requireAuth(auth.Append, s.cloneOngoing)},
		{"/clone/staged", []string{http.MethodPost}, s.requireAuth(auth.Append, s.cloneStaged)},
		{"/clone/complete", []string{http.MethodPost}, s.requireAuth(auth.Append, s.cloneComplete)},
		{"/clone/fail", []string{http.MethodPost}, s.requireAuth(auth.Append, s.cloneFail)},

		{"/checkin/status", []string{http.MethodPost}, s.requireAuth(auth.Append, s.checkinStatus)},
		{"/checkin/update", []string{http.MethodPost}, s.requireAuth(auth.Append, s.checkinUpdate)},

		{"/admin/errors", []string{http.MethodGet}, s.requireAuth(auth.Admin, s.adminListErrors)},
		{"/admin/errors/{id}/clear", []string{http.MethodPost}, s.requireAuth(auth.Admin, s.adminClearError)},
	}
}

// Handler returns the server's routing table as an http.Handler, letting
// tests drive it with httptest.NewServer instead of binding a real port.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start binds a listener on port, limits it to config.Service.MaxConnections
// concurrent connections, and serves until Shutdown or Close is called.
func (s *Server) Start(port int) error {
	slog.Info("services: starting", "name", s.Name, "port", port, "max_connections", config.Service.MaxConnections)
	s.StartTime = time.Now().UTC()
	s.Port = port

	listener, err := net.Listen("tcp", ":"+strconv.Itoa(port))
	if err != nil {
		return fmt.Errorf("binding port %d: %w", port, err)
	}
	listener = netutil.LimitListener(listener, config.Service.MaxConnections)

	s.http = &http.Server{Handler: s.router}
	err = s.http.Serve(listener)
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown gracefully stops the server, letting active requests finish
// before ctx expires.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}

// Close stops the server immediately, abandoning active connections.
func (s *Server) Close() error {
	if s.http == nil {
		return nil
	}
	return s.http.Close()
}

func (s *Server) uptime() time.Duration {
	return time.Since(s.StartTime)
}
