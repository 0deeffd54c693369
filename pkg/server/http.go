// Package server exposes retrieval over HTTP and MCP. Indexing stays owned
// by the coordinator; the adapters here only read the graph, except for the
// explicit MCP re-index tool.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/onemcp/onemcp/pkg/retrieval"
)

// HTTPServer serves the retrieval API.
type HTTPServer struct {
	addr      string
	retrieval *retrieval.Service
	metrics   http.Handler
	logger    *slog.Logger
}

// HTTPOptions wires an HTTPServer.
type HTTPOptions struct {
	Host string
	Port int
	// Retrieval is required.
	Retrieval *retrieval.Service
	// Metrics, when set, is mounted at /metrics (normally the prometheus
	// handler).
	Metrics http.Handler
	Logger  *slog.Logger
}

// NewHTTP builds the HTTP adapter.
func NewHTTP(opts HTTPOptions) (*HTTPServer, error) {
	if opts.Retrieval == nil {
		return nil, fmt.Errorf("server: retrieval service is required")
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &HTTPServer{
		addr:      fmt.Sprintf("%s:%d", opts.Host, opts.Port),
		retrieval: opts.Retrieval,
		metrics:   opts.Metrics,
		logger:    opts.Logger,
	}, nil
}

// Router assembles the chi router.
func (s *HTTPServer) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics)
	}
	r.Post("/v1/context/retrieve", s.handleRetrieve)

	return r
}

// Start serves until the context is cancelled, then shuts down gracefully.
func (s *HTTPServer) Start(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("retrieval server listening", "addr", s.addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}

func (s *HTTPServer) handleRetrieve(w http.ResponseWriter, r *http.Request) {
	var req retrieval.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": fmt.Sprintf("invalid request body: %v", err),
		})
		return
	}

	resp, err := s.retrieval.Retrieve(r.Context(), req)
	if err != nil {
		s.logger.Error("retrieval failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "retrieval failed",
		})
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *HTTPServer) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start))
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
