// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/jeranaias/bizartvisor-cli/internal/backend"
	"github.com/jeranaias/bizartvisor-cli/internal/config"
	"github.com/jeranaias/bizartvisor-cli/internal/model"
)

// ============================================================================
// CONSTANTS
// ============================================================================

const (
	// MaxRequestBodySize bounds the stream request body (1MB).
	MaxRequestBodySize = 1 * 1024 * 1024

	// ShutdownTimeout bounds graceful shutdown.
	ShutdownTimeout = 5 * time.Second

	// Greeting is the body of GET /.
	Greeting = "hello, you shouldn't be here"
)

// ============================================================================
// STATS
// ============================================================================

// Stats tracks server usage.
type Stats struct {
	Requests      atomic.Int64
	Streams       atomic.Int64
	Failures      atomic.Int64
	BytesStreamed atomic.Int64
	StartTime     time.Time
}

// StatsResponse is the body of GET /stats.
type StatsResponse struct {
	Requests      int64 `json:"requests"`
	Streams       int64 `json:"streams"`
	Failures      int64 `json:"failures"`
	BytesStreamed int64 `json:"bytes_streamed"`
	Sessions      int   `json:"sessions"`
	UptimeSeconds int64 `json:"uptime_seconds"`
}

// ============================================================================
// SERVER
// ============================================================================

// Options configures a Server. Zero values get defaults.
type Options struct {
	Config     config.ServerConfig
	Responder  Responder
	Store      *Store
	ModelNames []string
	Logger     *logrus.Entry

	// NewSessionID mints ids for new sessions (default: UUIDv7)
	NewSessionID func() (string, error)
}

// Server is the development conversation backend.
type Server struct {
	cfg        config.ServerConfig
	responder  Responder
	store      *Store
	modelNames []string
	newID      func() (string, error)
	log        *logrus.Entry
	stats      *Stats
	limiter    *RateLimiter
	mux        *http.ServeMux
}

// New creates a Server.
func New(opts Options) *Server {
	cfg := opts.Config
	if cfg.Addr == "" {
		cfg.Addr = config.Default().Server.Addr
	}
	if cfg.ChunkSize < 1 {
		cfg.ChunkSize = config.Default().Server.ChunkSize
	}

	s := &Server{
		cfg:        cfg,
		responder:  opts.Responder,
		store:      opts.Store,
		modelNames: opts.ModelNames,
		newID:      opts.NewSessionID,
		log:        opts.Logger,
		stats:      &Stats{StartTime: time.Now()},
		mux:        http.NewServeMux(),
	}
	if s.responder == nil {
		s.responder = EchoResponder{}
	}
	if s.store == nil {
		s.store = NewStore()
	}
	if len(s.modelNames) == 0 {
		s.modelNames = model.DefaultModelNames
	}
	if s.newID == nil {
		s.newID = newUUID
	}
	if s.log == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		s.log = logrus.NewEntry(l)
	}
	s.log = s.log.WithField("component", "server")
	if cfg.RateLimit > 0 {
		s.limiter = NewRateLimiter(cfg.RateLimit, cfg.RateBurst)
	}

	s.setupRoutes()
	return s
}

func newUUID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// Store returns the conversation store.
func (s *Server) Store() *Store {
	return s.store
}

// Addr returns the configured listen address.
func (s *Server) Addr() string {
	return s.cfg.Addr
}

func (s *Server) setupRoutes() {
	s.mux.HandleFunc("GET /{$}", s.handleRoot)
	s.mux.HandleFunc("POST "+backend.PathStream, s.handleStream)
	s.mux.HandleFunc("GET "+backend.PathHistory, s.handleHistory)
	s.mux.HandleFunc("GET "+backend.PathChangeThread, s.handleChangeThread)
	s.mux.HandleFunc("GET "+backend.PathModelNames, s.handleModelNames)
	s.mux.HandleFunc("GET /stats", s.handleStats)
}

// Handler returns the routes wrapped in the middleware chain.
func (s *Server) Handler() http.Handler {
	cors := DefaultCORSConfig()
	if len(s.cfg.AllowedOrigins) > 0 {
		cors.AllowedOrigins = s.cfg.AllowedOrigins
	}

	chain := []Middleware{
		RecoveryMiddleware(s.log),
		LoggingMiddleware(s.log),
		CORSMiddleware(cors),
	}
	if s.limiter != nil {
		chain = append(chain, RateLimitMiddleware(s.limiter))
	}
	counted := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.stats.Requests.Add(1)
		s.mux.ServeHTTP(w, r)
	})
	return Chain(chain...)(counted)
}

// ============================================================================
// HANDLERS
// ============================================================================

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, Greeting)
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, MaxRequestBodySize)

	var req backend.StreamRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "Request body too large.")
			return
		}
		s.log.WithError(err).Warn("invalid stream request")
		writeError(w, http.StatusBadRequest, "Invalid request body.")
		return
	}

	sessionID := strings.TrimSpace(req.SessionID)
	if sessionID == "" || sessionID == model.NewSessionID {
		id, err := s.newID()
		if err != nil {
			s.stats.Failures.Add(1)
			s.log.WithError(err).Error("mint session id")
			writeError(w, http.StatusInternalServerError, "Could not create session.")
			return
		}
		sessionID = id
	}

	prompt := Prompt{
		Input:       req.Input,
		SessionID:   sessionID,
		ModelName:   req.ModelName,
		UseRAG:      req.UseRAG != nil && *req.UseRAG,
		UseNewsTool: req.UseNewsTool != nil && *req.UseNewsTool,
		History:     s.store.Messages(sessionID),
	}
	reply, err := s.responder.Respond(r.Context(), prompt)
	if err != nil {
		s.stats.Failures.Add(1)
		s.log.WithError(err).WithField("session_id", sessionID).Error("responder failed")
		writeError(w, http.StatusInternalServerError, "Response generation failed.")
		return
	}

	s.store.Append(sessionID,
		backend.WireMessageFrom(model.UserMessage(req.Input)),
		backend.WireMessageFrom(model.BotMessage(reply)),
	)
	s.stats.Streams.Add(1)

	h := w.Header()
	h.Set(backend.SessionHeader, sessionID)
	h.Set("Content-Type", "text/plain; charset=utf-8")
	h.Set("Cache-Control", "no-cache")
	h.Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(http.StatusOK)

	n, err := s.writeChunks(r.Context(), w, []byte(reply))
	s.stats.BytesStreamed.Add(int64(n))
	if err != nil {
		s.log.WithError(err).WithFields(logrus.Fields{
			"session_id": sessionID,
			"written":    n,
		}).Debug("stream ended early")
	}
}

// writeChunks writes data in ChunkSize pieces, flushing after each one.
// Headers are flushed first so an empty reply is still a streamed body.
func (s *Server) writeChunks(ctx context.Context, w http.ResponseWriter, data []byte) (int, error) {
	rc := http.NewResponseController(w)
	if err := rc.Flush(); err != nil {
		return 0, err
	}

	written := 0
	for len(data) > 0 {
		size := min(s.cfg.ChunkSize, len(data))
		n, err := w.Write(data[:size])
		written += n
		if err != nil {
			return written, err
		}
		if err := rc.Flush(); err != nil {
			return written, err
		}
		data = data[size:]

		if len(data) > 0 && s.cfg.ChunkDelayMs > 0 {
			select {
			case <-ctx.Done():
				return written, ctx.Err()
			case <-time.After(s.cfg.ChunkDelay()):
			}
		}
	}
	return written, nil
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.store.IDs())
}

func (s *Server) handleChangeThread(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(r.URL.Query().Get("id"))
	if id == "" {
		writeError(w, http.StatusBadRequest, "ID parameter is required.")
		return
	}
	writeJSON(w, http.StatusOK, backend.WireConversation{
		SessionID: id,
		Messages:  s.store.Messages(id),
	})
}

func (s *Server) handleModelNames(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.modelNames)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, StatsResponse{
		Requests:      s.stats.Requests.Load(),
		Streams:       s.stats.Streams.Load(),
		Failures:      s.stats.Failures.Load(),
		BytesStreamed: s.stats.BytesStreamed.Load(),
		Sessions:      s.store.Len(),
		UptimeSeconds: int64(time.Since(s.stats.StartTime).Seconds()),
	})
}

// ============================================================================
// LIFECYCLE
// ============================================================================

// Run listens on the configured address and serves until ctx is done.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.cfg.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is done, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.log.WithField("addr", ln.Addr().String()).Info("server listening")
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
		defer cancel()
		s.log.WithField("sessions", s.store.Len()).Info("server shutting down")
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// ============================================================================
// HELPERS
// ============================================================================

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, backend.ErrorBody{Error: message})
}
