// Package httpserver exposes the task intake endpoint plus health and
// metrics. Accepted tasks are answered immediately and processed in the
// background; the submitter learns the outcome through the callback.
package httpserver

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"git.home.luguber.info/inful/pagesmith/internal/config"
	"git.home.luguber.info/inful/pagesmith/internal/logfields"
	"git.home.luguber.info/inful/pagesmith/internal/orchestrator"
	smw "git.home.luguber.info/inful/pagesmith/internal/server/middleware"
	"git.home.luguber.info/inful/pagesmith/internal/task"
)

// maxBodyBytes caps the inbound payload; attachments arrive inline as data URIs.
const maxBodyBytes = 32 << 20

// TaskRunner processes one task to a terminal state.
type TaskRunner interface {
	Run(ctx context.Context, t *task.Task) (orchestrator.State, error)
}

// Options tunes server behavior beyond the config file.
type Options struct {
	// MetricsHandler serves GET /metrics when set.
	MetricsHandler http.Handler
	// TaskTimeout bounds background processing of one task. Zero means 15m.
	TaskTimeout time.Duration
}

// Server is the intake HTTP server.
type Server struct {
	cfg    *config.Config
	runner TaskRunner
	opts   Options

	httpSrv *http.Server
	tasks   sync.WaitGroup
}

// New constructs the intake server.
func New(cfg *config.Config, runner TaskRunner, opts Options) *Server {
	if opts.TaskTimeout <= 0 {
		opts.TaskTimeout = 15 * time.Minute
	}
	return &Server{cfg: cfg, runner: runner, opts: opts}
}

// Handler builds the full route table wrapped in the middleware chain.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/tasks", s.handleSubmit)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	if s.opts.MetricsHandler != nil {
		mux.Handle("GET /metrics", s.opts.MetricsHandler)
	}
	return smw.Chain(slog.Default())(mux)
}

// Start binds the listen address and serves in the background. Binding
// eagerly surfaces 'address already in use' at startup instead of after.
func (s *Server) Start(ctx context.Context) error {
	lc := net.ListenConfig{}
	ln, err := lc.Listen(ctx, "tcp", s.cfg.Server.ListenAddr)
	if err != nil {
		return err
	}
	s.httpSrv = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := s.httpSrv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("intake server error", logfields.Error(err))
		}
	}()
	slog.Info("intake server started", slog.String("addr", s.cfg.Server.ListenAddr))
	return nil
}

// Stop shuts the server down and waits for in-flight tasks to finish or the
// context to expire, whichever comes first.
func (s *Server) Stop(ctx context.Context) error {
	var err error
	if s.httpSrv != nil {
		err = s.httpSrv.Shutdown(ctx)
	}

	done := make(chan struct{})
	go func() {
		s.tasks.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		slog.Warn("shutdown deadline reached with tasks still running")
	}
	return err
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "cannot read request body"})
		return
	}

	payload, err := task.ParsePayload(body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "malformed task payload"})
		return
	}

	if subtle.ConstantTimeCompare([]byte(payload.Secret), []byte(s.cfg.SharedSecret)) != 1 {
		slog.Warn("task rejected: secret mismatch",
			logfields.TaskID(payload.Task), logfields.RemoteAddr(r.RemoteAddr))
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid secret"})
		return
	}

	t, dropped, err := task.FromPayload(payload)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	for _, name := range dropped {
		slog.Warn("dropping undecodable attachment",
			logfields.TaskID(t.ID), slog.String("attachment", name))
	}

	s.dispatch(t)
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "accepted",
		"task":   t.ID,
		"round":  t.Round,
	})
}

// dispatch runs the task detached from the request; the HTTP response only
// acknowledges receipt.
func (s *Server) dispatch(t *task.Task) {
	s.tasks.Add(1)
	go func() {
		defer s.tasks.Done()
		ctx, cancel := context.WithTimeout(context.Background(), s.opts.TaskTimeout)
		defer cancel()
		if _, err := s.runner.Run(ctx, t); err != nil {
			// Run already notified and logged details; this is the summary line.
			slog.Error("task processing failed",
				logfields.TaskID(t.ID), logfields.Round(t.Round), logfields.Error(err))
		}
	}()
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
