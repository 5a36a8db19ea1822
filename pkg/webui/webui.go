// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package webui serves the panel state as JSON and over a websocket, and
// accepts requests from viewers.
package webui

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/Thermoquad/aquastat/pkg/errcode"
	"github.com/Thermoquad/aquastat/pkg/navigator"
	"github.com/Thermoquad/aquastat/pkg/screen"
	"github.com/Thermoquad/aquastat/pkg/session"
	"github.com/Thermoquad/aquastat/pkg/state"
)

// REQUEST_TIMEOUT bounds how long an HTTP request waits for its operation
const REQUEST_TIMEOUT = 5 * time.Minute

const writeWait = 10 * time.Second

// Submitter starts operations
type Submitter interface {
	Submit(req navigator.Request) *navigator.Task
}

// Request is the body of POST /api/request and of websocket messages
type Request struct {
	Op   string   `json:"op"`
	Args []string `json:"args,omitempty"`

	// NoWait returns as soon as the operation is accepted
	NoWait bool `json:"no_wait,omitempty"`
}

// Result answers a request
type Result struct {
	OK    bool   `json:"ok"`
	Op    string `json:"op"`
	Code  string `json:"code,omitempty"`
	Error string `json:"error,omitempty"`
}

// Server serves one driver's state
type Server struct {
	st  *state.State
	scr *screen.Screen
	sup *session.Supervisor
	ops Submitter

	upgrader websocket.Upgrader
	log      logrus.FieldLogger
}

// New creates a server
func New(st *state.State, scr *screen.Screen, sup *session.Supervisor, ops Submitter, log logrus.FieldLogger) *Server {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Server{
		st:  st,
		scr: scr,
		sup: sup,
		ops: ops,
		log: log.WithField("component", "web"),
	}
}

// Handler routes the API
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/state", s.handleState)
	mux.HandleFunc("POST /api/request", s.handleRequest)
	mux.HandleFunc("GET /ws", s.handleStream)
	return mux
}

// ListenAndServe serves on addr until ctx ends
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.Handler(), ReadHeaderTimeout: 10 * time.Second}

	stop := context.AfterFunc(ctx, func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	})
	defer stop()

	s.log.WithField("addr", addr).Info("Web server listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return ctx.Err()
}

func (s *Server) status() Status {
	return NewStatus(s.st.Snapshot(), s.scr.View(), s.sup.Current())
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.status())
}

func (s *Server) handleRequest(w http.ResponseWriter, r *http.Request) {
	var body Request
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 4096)).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, Result{Code: string(errcode.InvalidArgument), Error: err.Error()})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), REQUEST_TIMEOUT)
	defer cancel()
	res := s.run(ctx, body)
	writeJSON(w, httpStatus(errcode.Code(res.Code)), res)
}

// run parses and submits one request, waiting unless NoWait is set
func (s *Server) run(ctx context.Context, body Request) Result {
	res := Result{Op: body.Op}
	req, err := navigator.ParseRequest(body.Op, body.Args...)
	if err == nil {
		s.log.WithFields(logrus.Fields{"op": req.Kind, "args": body.Args}).Info("Request")
		task := s.ops.Submit(req)
		if body.NoWait {
			select {
			case <-task.Done():
				err = task.Err()
			default:
			}
		} else {
			err = task.Wait(ctx)
		}
	}

	if err != nil {
		res.Code = string(errcode.Of(err))
		res.Error = err.Error()
		return res
	}
	res.OK = true
	return res
}

func httpStatus(c errcode.Code) int {
	switch c {
	case "", errcode.OK:
		return http.StatusOK
	case errcode.InvalidArgument:
		return http.StatusBadRequest
	case errcode.NotFound:
		return http.StatusNotFound
	case errcode.Busy:
		return http.StatusConflict
	case errcode.Unsupported:
		return http.StatusNotImplemented
	case errcode.LinkTimeout:
		return http.StatusGatewayTimeout
	case errcode.Cancelled:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

// handleStream pushes a status document on connect and after every change.
// Requests sent by the viewer are answered with a Result on the same
// socket. The viewer counts as open until the socket closes.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	c, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.WithError(err).Debug("Upgrade failed")
		return
	}
	defer c.Close()

	s.st.NoteViewer(1)
	defer s.st.NoteViewer(-1)
	log := s.log.WithField("remote", r.RemoteAddr)
	log.Debug("Viewer connected")

	changes, unsubscribe := s.st.Subscribe()
	defer unsubscribe()

	out := make(chan any, 4)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			var req Request
			if err := c.ReadJSON(&req); err != nil {
				log.WithError(err).Debug("Viewer disconnected")
				return
			}
			go func() {
				res := s.run(r.Context(), req)
				select {
				case out <- res:
				case <-done:
				}
			}()
		}
	}()

	send := func(v any) bool {
		c.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.WriteJSON(v); err != nil {
			log.WithError(err).Debug("Write failed")
			return false
		}
		return true
	}

	if !send(s.status()) {
		return
	}
	for {
		select {
		case <-done:
			return
		case <-changes:
			if !send(s.status()) {
				return
			}
		case v := <-out:
			if !send(v) {
				return
			}
		}
	}
}
