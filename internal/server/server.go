package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/thinkscotty/autoresearch/internal/auth"
	"github.com/thinkscotty/autoresearch/internal/config"
	"github.com/thinkscotty/autoresearch/internal/database"
	"github.com/thinkscotty/autoresearch/internal/scheduler"
)

type Server struct {
	cfg     config.Config
	db      *database.DB
	sched   *scheduler.Scheduler
	version string
	keys    auth.Verifier
	httpSrv *http.Server
}

func New(cfg config.Config, db *database.DB, sched *scheduler.Scheduler, version string) *Server {
	return &Server{
		cfg:     cfg,
		db:      db,
		sched:   sched,
		version: version,
	}
}

// Handler returns the routed handler wrapped in the recovery and logging
// middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.routes(mux)
	return recoveryMiddleware(loggingMiddleware(mux))
}

// Start sets up routes and starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Server.Host, s.cfg.Server.Port)
	s.httpSrv = &http.Server{
		Addr:         addr,
		Handler:      s.Handler(),
		ReadTimeout:  time.Duration(s.cfg.Server.ReadTimeoutSeconds) * time.Second,
		WriteTimeout: time.Duration(s.cfg.Server.WriteTimeoutSeconds) * time.Second,
	}

	slog.Info("Starting server", "addr", addr)
	return s.httpSrv.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}

func (s *Server) routes(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", s.handleHealth)

	// Protected by API key
	mux.Handle("POST /api/v1/research", s.requireAPIKey(http.HandlerFunc(s.handleResearch)))
	mux.Handle("GET /api/v1/articles", s.requireAPIKey(http.HandlerFunc(s.handleListArticles)))
	mux.Handle("GET /api/v1/articles/{id}", s.requireAPIKey(http.HandlerFunc(s.handleGetArticle)))
	mux.Handle("GET /api/v1/articles/{id}/markdown", s.requireAPIKey(http.HandlerFunc(s.handleArticleMarkdown)))
	mux.Handle("GET /api/v1/stats", s.requireAPIKey(http.HandlerFunc(s.handleStats)))
}
