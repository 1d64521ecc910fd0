package main

import (
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"
)

// Server bundles the HTTP surface over a registry and its hub.
type Server struct {
	registry *Registry
	hub      *Hub
	archive  *SQLArchive
	log      *AppLogger
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	// Wrap handlers with compression and caching control
	wrap := func(pattern string, handler http.HandlerFunc) {
		var h http.Handler = handler
		h = compress(h)
		h = disableCaching(h)
		mux.Handle(pattern, h)
	}

	// The upgrade needs the raw ResponseWriter, so /ws is not compressed.
	mux.Handle("/ws", disableCaching(http.HandlerFunc(s.hub.handleWebSocket)))
	wrap("GET /api/rooms/{code}", s.handleRoom)
	wrap("GET /api/games", s.handleGames)
	wrap("GET /healthz", s.handleHealth)
	return mux
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func (s *Server) handleRoom(w http.ResponseWriter, r *http.Request) {
	room, err := s.registry.Room(r.PathValue("code"))
	if err != nil {
		writeJSON(w, http.StatusNotFound, errorEvent("", err).Payload)
		return
	}
	writeJSON(w, http.StatusOK, room.Snapshot())
}

func (s *Server) handleGames(w http.ResponseWriter, r *http.Request) {
	if s.archive == nil {
		writeJSON(w, http.StatusOK, []GameSummary{})
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	games, err := s.archive.RecentGames(r.Context(), limit)
	if err != nil {
		s.log.Error("list games", zap.Error(err))
		http.Error(w, "Failed to list games", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, games)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "rooms": s.registry.RoomCount()})
}

func disableCaching(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Add("Cache-Control", "no-cache")

		next.ServeHTTP(w, r)
	})
}

// shouldCompress determines if a content type should be gzip compressed
// Compresses text-based formats but not binary formats like images
func shouldCompress(contentType string) bool {
	compressiblePrefixes := []string{
		"text/",
		"application/json",
		"application/javascript",
		"image/svg",
	}
	for _, prefix := range compressiblePrefixes {
		if strings.HasPrefix(contentType, prefix) {
			return true
		}
	}
	return false
}

// responseWriter wraps http.ResponseWriter to handle conditional gzip compression
type responseWriter struct {
	http.ResponseWriter
	gz            *gzip.Writer
	wrappedWriter http.ResponseWriter
	headerSent    bool
	acceptGzip    bool
}

// WriteHeader checks content type and sets up compression if appropriate
func (w *responseWriter) WriteHeader(statusCode int) {
	if w.headerSent {
		return
	}
	w.headerSent = true

	contentType := w.Header().Get("Content-Type")

	// Only compress if content type is compressible and client supports gzip
	if contentType != "" && shouldCompress(contentType) && w.acceptGzip {
		w.gz = gzip.NewWriter(w.wrappedWriter)
		w.Header().Set("Content-Encoding", "gzip")
		w.Header().Del("Content-Length")
	}

	w.ResponseWriter.WriteHeader(statusCode)
}

// Write writes to gzip writer if it exists, otherwise to original writer
func (w *responseWriter) Write(b []byte) (int, error) {
	if !w.headerSent {
		w.WriteHeader(http.StatusOK)
	}

	if w.gz != nil {
		return w.gz.Write(b)
	}
	return w.ResponseWriter.Write(b)
}

// Flush flushes both gzip and response writer
func (w *responseWriter) Flush() {
	if w.gz != nil {
		w.gz.Flush()
	}
	if flusher, ok := w.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

// Close closes the gzip writer if it exists
func (w *responseWriter) Close() error {
	if w.gz != nil {
		return w.gz.Close()
	}
	return nil
}

// compress adds gzip compression to compressible responses
func compress(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		wrapped := &responseWriter{
			ResponseWriter: w,
			wrappedWriter:  w,
			acceptGzip:     strings.Contains(r.Header.Get("Accept-Encoding"), "gzip"),
		}
		defer wrapped.Close()

		next.ServeHTTP(wrapped, r)
	})
}

func main() {
	fv := registerFlags(flag.CommandLine)
	flag.Parse()

	cfg, warnings := loadConfig(*fv.configPath, *fv.envPath)
	fv.applyTo(flag.CommandLine, &cfg)

	logger, err := NewAppLogger(cfg.toLogConfig())
	if err != nil {
		os.Stderr.WriteString("Failed to initialize logger: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer logger.Sync()
	for _, w := range warnings {
		logger.Warn("config", zap.String("warning", w))
	}
	if logger.IsEnabled() {
		logger.Info("extended logging enabled")
	}

	archive, err := OpenArchive(cfg.DB, logger)
	if err != nil {
		logger.Fatal("Failed to open archive", zap.Error(err))
	}
	defer archive.Close()

	pruner, err := startArchivePruning(archive, time.Duration(cfg.ArchiveRetention)*time.Hour, logger)
	if err != nil {
		logger.Fatal("Failed to schedule archive pruning", zap.Error(err))
	}
	defer pruner.Stop()

	hub := newHub(logger)
	registry := NewRegistry(cfg.gameConfig(), RoomDeps{
		Emitter:  hub,
		Logger:   logger,
		Archive:  archive,
		Narrator: initStoryteller(cfg, logger),
	})
	hub.attach(registry)

	// Start WebSocket hub
	hub.start()

	srv := &Server{registry: registry, hub: hub, archive: archive, log: logger}
	httpServer := &http.Server{Addr: cfg.Addr, Handler: srv.routes()}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("server starting", zap.String("addr", cfg.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	httpServer.Shutdown(shutdownCtx)
	registry.Close()
	hub.stop()
}
