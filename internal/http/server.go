// Package http exposes the import pipeline as a JSON API.
package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"budsjett/internal/cache"
	"budsjett/internal/extractor"
	"budsjett/internal/middleware/trace"
	"budsjett/internal/services"
)

// ExtractorLister lists the parsers the extraction service offers.
type ExtractorLister interface {
	ListExtractors(ctx context.Context) ([]extractor.Info, error)
}

type Server struct {
	http.Server
	service    *services.ImportService
	extractors ExtractorLister

	rateLimiter *rateLimiter

	// The extractor list rarely changes; a short TTL keeps the upstream
	// round-trips off the hot path.
	extractorCache *cache.LRUCache[[]extractor.Info]
	cacheManager   *cache.Manager

	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run server.
func NewServer(addr string, svc *services.ImportService, extractors ExtractorLister) *Server {
	mux := http.NewServeMux()

	s := &Server{
		service:        svc,
		extractors:     extractors,
		rateLimiter:    newRateLimiter(),
		extractorCache: cache.NewLRUCache[[]extractor.Info](1, 5*time.Minute),
		cacheManager:   cache.NewManager(),
	}
	s.cacheManager.Register(s.extractorCache)
	s.cacheManager.StartCleanup(10 * time.Minute)

	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /api/extractors", s.handleListExtractors)
	mux.HandleFunc("POST /api/import", s.handleImport)
	mux.HandleFunc("GET /api/staged", s.handleListStaged)
	mux.HandleFunc("PATCH /api/staged/{id}", s.handleUpdateStaged)
	mux.HandleFunc("DELETE /api/staged/{id}", s.handleDeleteStaged)
	mux.HandleFunc("POST /api/staged/categorize", s.handleBulkCategorize)
	mux.HandleFunc("POST /api/commit", s.handleCommit)
	mux.HandleFunc("GET /api/ledger", s.handleListLedger)

	traceMW := trace.NewMiddleware(clientIP)
	s.Server = http.Server{
		Addr:    addr,
		Handler: traceMW.Middleware(s.withRateLimit(mux)),
	}

	return s
}

// Shutdown stops the server and its background goroutines.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		if s.cacheManager != nil {
			s.cacheManager.Stop()
		}
		if s.rateLimiter != nil {
			s.rateLimiter.stop()
		}
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

// withRateLimit applies the per-client limit to mutating requests.
func (s *Server) withRateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost, http.MethodPatch, http.MethodDelete:
			if !s.rateLimiter.allow(clientIP(r)) {
				w.Header().Set("Retry-After", "60")
				respondError(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

// clientIP extracts the client address, honoring proxy headers.
func clientIP(r *http.Request) string {
	if ip := r.Header.Get("X-Forwarded-For"); ip != "" {
		return ip
	}
	if ip := r.Header.Get("X-Real-IP"); ip != "" {
		return ip
	}
	return r.RemoteAddr
}
