// Package report serves benchmark results over HTTP so a dashboard or CI
// job can poll the latest harness run.
package report

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

	"github.com/batplan/batplan/pkg/common"
	"github.com/batplan/batplan/pkg/log"
	"github.com/batplan/batplan/pkg/storage"
)

// Server exposes the latest benchmark report and the stored fixtures.
type Server struct {
	store storage.Store

	listenAddr string
	httpServer *http.Server
}

// Configured initializes the Server with dependencies.
// It uses lflag to register command-line flags for configuration.
func Configured(store storage.Store) *Server {
	srv := &Server{store: store}

	// get the port from PORT when running in cloud run
	port := os.Getenv("PORT")
	if port == "" {
		// otherwise default to 8080
		port = "8080"
	}

	listenAddr := lflag.String("http-listen", ":"+port, "HTTP server listen address")

	lflag.Do(func() {
		srv.listenAddr = *listenAddr
	})

	return srv
}

// NewServer returns a server without flag wiring, for embedding and tests.
func NewServer(store storage.Store, listenAddr string) *Server {
	return &Server{store: store, listenAddr: listenAddr}
}

func (s *Server) setupHandler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/report/latest", s.handleLatestReport)
	mux.HandleFunc("GET /api/fixtures", s.handleListFixtures)
	mux.HandleFunc("GET /api/fixtures/{name}", s.handleGetFixture)
	mux.HandleFunc("/healthz", s.handleHealthz)
	return s.versionMiddleware(gziphandler.GzipHandler(mux))
}

func (s *Server) versionMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Batplan-Version", common.Version())
		next.ServeHTTP(w, r)
	})
}

// Run starts the HTTP server and blocks until the context is canceled or an
// error occurs. It also handles graceful shutdown when the context is done.
func (s *Server) Run(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:         s.listenAddr,
		Handler:      s.setupHandler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  15 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		defer close(errChan)
		log.Ctx(ctx).Info("starting report server", slog.String("addr", s.listenAddr))
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Ctx(ctx).Info("shutting down report server")
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

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("failed to write response", slog.Any("error", err))
		panic(http.ErrAbortHandler)
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

func (s *Server) handleLatestReport(w http.ResponseWriter, r *http.Request) {
	report, err := s.store.GetLatestReport(r.Context())
	if err != nil {
		if errors.Is(err, storage.ErrReportNotFound) {
			writeJSONError(w, "no reports yet", http.StatusNotFound)
			return
		}
		log.Ctx(r.Context()).Error("failed to load latest report", slog.Any("error", err))
		writeJSONError(w, "failed to load report", http.StatusInternalServerError)
		return
	}
	writeJSON(w, report)
}

func (s *Server) handleListFixtures(w http.ResponseWriter, r *http.Request) {
	names, err := s.store.ListFixtures(r.Context())
	if err != nil {
		log.Ctx(r.Context()).Error("failed to list fixtures", slog.Any("error", err))
		writeJSONError(w, "failed to list fixtures", http.StatusInternalServerError)
		return
	}
	if names == nil {
		names = []string{}
	}
	writeJSON(w, names)
}

func (s *Server) handleGetFixture(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	fixture, err := s.store.GetFixture(r.Context(), name)
	if err != nil {
		if errors.Is(err, storage.ErrFixtureNotFound) {
			writeJSONError(w, "fixture not found", http.StatusNotFound)
			return
		}
		log.Ctx(r.Context()).Error("failed to load fixture", slog.String("name", name), slog.Any("error", err))
		writeJSONError(w, "failed to load fixture", http.StatusInternalServerError)
		return
	}
	writeJSON(w, fixture)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte("ok")); err != nil {
		panic(http.ErrAbortHandler)
	}
}
