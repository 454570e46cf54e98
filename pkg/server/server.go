// Package server exposes the HTTP API for evaluating price windows and
// managing settings.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/NYTimes/gziphandler"
	"github.com/levenlabs/go-lflag"
	"github.com/spreadpilot/spreadpilot/pkg/engine"
	"github.com/spreadpilot/spreadpilot/pkg/log"
	"github.com/spreadpilot/spreadpilot/pkg/pricesource"
	"github.com/spreadpilot/spreadpilot/pkg/storage"
)

// Server handles the HTTP API for the SpreadPilot system. It orchestrates
// interactions between the price source, the evaluation engine, and storage.
type Server struct {
	engine  *engine.Engine
	storage storage.Database
	source  pricesource.Provider

	listenAddr    string
	serverName    string
	retentionDays int
	location      *time.Location
	httpServer    *http.Server
}

// Configured initializes the Server with dependencies.
// It uses lflag to register command-line flags for configuration.
func Configured(db storage.Database, src pricesource.Provider) *Server {
	srv := &Server{
		storage:    db,
		source:     src,
		serverName: "spreadpilot",
		location:   time.Local,
	}
	revision := os.Getenv("K_REVISION")
	if revision != "" {
		srv.serverName = revision
	}

	// get the port from PORT when running in cloud run
	port := os.Getenv("PORT")
	if port == "" {
		// otherwise default to 8080
		port = "8080"
	}

	listenAddr := lflag.String("http-listen", ":"+port, "HTTP server listen address")
	cacheTTL := lflag.Duration("evaluation-cache-ttl", 30*time.Second, "How long evaluation results stay cached (should sit just under the host polling interval)")
	retention := lflag.Duration("snapshot-retention", 7*24*time.Hour, "How long to keep price snapshots")
	timezone := lflag.String("timezone", "", "IANA timezone for local-day boundaries (defaults to system local)")

	lflag.Do(func() {
		srv.listenAddr = *listenAddr
		srv.retentionDays = int(*retention / (24 * time.Hour))
		if *timezone != "" {
			loc, err := time.LoadLocation(*timezone)
			if err != nil {
				log.Ctx(context.Background()).Error("failed to load timezone", slog.String("timezone", *timezone), slog.Any("error", err))
				os.Exit(1)
			}
			srv.location = loc
		}
		srv.engine = engine.New(*cacheTTL, nil)
	})

	return srv
}

func (s *Server) setupHandler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/evaluate", s.handleEvaluate)
	mux.HandleFunc("POST /api/update", s.handleUpdate)
	mux.HandleFunc("GET /api/latest", s.handleLatest)
	mux.HandleFunc("GET /api/settings", s.handleGetSettings)
	mux.HandleFunc("PUT /api/settings", s.handleUpdateSettings)
	mux.HandleFunc("POST /api/rotate", s.handleRotate)
	mux.HandleFunc("/healthz", s.handleHealthz)
	return s.revisionMiddleware(gziphandler.GzipHandler(mux))
}

// Run starts the HTTP server and blocks until the context is canceled or an error occurs.
// It also handles graceful shutdown when the context is done.
func (s *Server) Run(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:         s.listenAddr,
		Handler:      s.setupHandler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  15 * time.Second,
	}

	// use a channel to capturing server errors
	errChan := make(chan error, 1)
	go func() {
		defer close(errChan)
		log.Ctx(ctx).InfoContext(ctx, "starting server", slog.String("addr", s.listenAddr))
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	select {
	case <-ctx.Done():
		// Context canceled, shut down gracefully
		log.Ctx(ctx).InfoContext(ctx, "shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}
		return nil
	case err := <-errChan:
		return fmt.Errorf("server error: %w", err)
	}
}

func writeJSONError(w http.ResponseWriter, msg string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(struct {
		Error string `json:"error"`
	}{Error: msg}); err != nil {
		slog.Warn("failed to write error response", slog.Any("error", err))
		panic(http.ErrAbortHandler)
	}
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		panic(http.ErrAbortHandler)
	}
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte("ok")); err != nil {
		panic(http.ErrAbortHandler)
	}
}

func (s *Server) revisionMiddleware(next http.Handler) http.Handler {
	if s.serverName == "" {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Server", s.serverName)
		next.ServeHTTP(w, r)
	})
}

// dayKey returns the canonical "YYYY-MM-DD" snapshot key for t in the
// server's local timezone.
func (s *Server) dayKey(t time.Time) string {
	return t.In(s.location).Format("2006-01-02")
}
