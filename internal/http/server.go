// Package http exposes the record store as a JSON API: per-kind record CRUD,
// admin user management and health endpoints.
package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"finova/internal/core"
	"finova/internal/log"
	"finova/internal/services"
	"finova/internal/storage"
)

// Server is the record store HTTP server.
type Server struct {
	http.Server
	records    *services.RecordService
	users      *storage.SQLiteRepository
	adminToken string
	logger     *log.Logger

	rateLimiter *rateLimiter
	metrics     securityMetrics
	started     time.Time

	// Per kind+owner record listings with eviction policy
	listCache *lruCache[[]core.Record]

	stopCacheCleanup chan struct{}
	shutdownOnce     sync.Once
}

// NewServer configures routes, returning a ready-to-run http.Server. The
// admin token guards destructive user management; empty disables it.
func NewServer(addr string, records *services.RecordService, repo *storage.SQLiteRepository, adminToken string, logger *log.Logger) *Server {
	mux := http.NewServeMux()

	s := &Server{
		Server: http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
		},
		records:          records,
		users:            repo,
		adminToken:       adminToken,
		logger:           logger.WithComponent(log.ComponentHTTP),
		rateLimiter:      newRateLimiter(120),
		started:          time.Now(),
		listCache:        newLRUCache[[]core.Record](200, 30*time.Second), // Max 200 entries, 30s TTL
		stopCacheCleanup: make(chan struct{}),
	}

	// Start periodic cache cleanup
	go s.startCacheCleanup()

	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/readyz", s.handleReady)

	for _, kind := range core.Kinds {
		mux.HandleFunc(kind.APIPath(), s.withSecurityHeaders(s.handleRecords(kind)))
		mux.HandleFunc(kind.APIPath()+"/", s.withSecurityHeaders(s.handleRecordByID(kind)))
	}

	mux.HandleFunc("/api/admin/users", s.withSecurityHeaders(s.handleUsers))
	mux.HandleFunc("/api/admin/users/", s.withSecurityHeaders(s.handleUserByID))

	return s
}

// startCacheCleanup runs periodic cleanup for the listing cache.
func (s *Server) startCacheCleanup() {
	ticker := time.NewTicker(10 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if cleaned := s.listCache.CleanExpired(); cleaned > 0 {
				s.logger.Debug("Cache cleanup completed", "entries_removed", cleaned)
			}
		case <-s.stopCacheCleanup:
			return
		}
	}
}

// Shutdown gracefully shuts down the server and cleanup routines.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error

	s.shutdownOnce.Do(func() {
		if s.stopCacheCleanup != nil {
			close(s.stopCacheCleanup)
		}
		if s.rateLimiter != nil {
			s.rateLimiter.stop()
		}
		shutdownErr = s.Server.Shutdown(ctx)
	})

	return shutdownErr
}

// withSecurityHeaders adds security headers, rate limiting, and request
// logging to responses.
func (s *Server) withSecurityHeaders(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		clientIP := extractClientIP(r)
		requestID := generateRequestID()

		reqLogger := s.logger.With(
			log.FieldRequestID, requestID,
			log.FieldClientIP, clientIP,
		)
		ctx := log.IntoContext(r.Context(), reqLogger)
		r = r.WithContext(ctx)

		reqLogger.InfoContext(ctx, "Request started",
			log.FieldMethod, r.Method,
			log.FieldPath, r.URL.Path,
			log.FieldUserAgent, r.Header.Get("User-Agent"))

		// Rate limit mutating requests only; listing stays cheap via cache.
		if r.Method != http.MethodGet && !s.rateLimiter.allow(clientIP, &s.metrics) {
			reqLogger.WarnContext(ctx, "Rate limit exceeded",
				log.FieldMethod, r.Method, log.FieldPath, r.URL.Path)
			w.Header().Set("Retry-After", "60")
			writeMessage(w, http.StatusTooManyRequests, "rate limit exceeded, try again later")
			return
		}

		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")

		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next(rw, r)

		reqLogger.InfoContext(ctx, "Request completed",
			log.FieldMethod, r.Method,
			log.FieldPath, r.URL.Path,
			log.FieldStatusCode, rw.statusCode,
			log.FieldDuration, time.Since(start).Milliseconds())
	}
}

// responseWriter wraps http.ResponseWriter to capture the status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}
