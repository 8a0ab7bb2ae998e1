// Package http exposes the mess ledger as a JSON API. Every route under
// /api except register and login requires a bearer token; the handlers only
// translate between JSON and the ledger service, which owns the rules.
package http

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"messbook/internal/auth"
	"messbook/internal/cache"
	"messbook/internal/core"
	"messbook/internal/ledger"
	"messbook/internal/log"
	"messbook/internal/storage"
)

// InsightGenerator produces the AI budgeting note shown on the summary page.
type InsightGenerator interface {
	SummaryInsight(ctx context.Context, summary core.Summary, currencyCode string) string
}

type Server struct {
	http.Server
	ledger       *ledger.Service
	authn        *auth.PasswordAuthenticator
	tokens       *auth.JWTManager
	repo         *storage.SQLiteRepository
	insights     InsightGenerator
	currencyCode string
	rateLimiter  *rateLimiter

	// Per-user cache for the advice note; the worker refreshes the stored
	// copy in the background, this just absorbs repeated page loads.
	insightCache *cache.LRUCache[string]

	stopCleanup  chan struct{}
	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run server.
func NewServer(addr string, svc *ledger.Service, authn *auth.PasswordAuthenticator, tokens *auth.JWTManager, repo *storage.SQLiteRepository, insights InsightGenerator, currencyCode string) *Server {
	mux := http.NewServeMux()

	httpLogger := log.New(log.DefaultConfig()).WithComponent(log.ComponentHTTP)

	s := &Server{
		Server: http.Server{
			Addr:    addr,
			Handler: log.Middleware(httpLogger)(mux),
		},
		ledger:       svc,
		authn:        authn,
		tokens:       tokens,
		repo:         repo,
		insights:     insights,
		currencyCode: currencyCode,
		rateLimiter:  newRateLimiter(),
		insightCache: cache.NewLRUCache[string](500, 5*time.Minute),
		stopCleanup:  make(chan struct{}),
	}

	go s.startCacheCleanup()

	mux.HandleFunc("/healthz", handleHealth)
	mux.HandleFunc("/readyz", s.handleReady)

	mux.HandleFunc("POST /api/register", s.withSecurityHeaders(s.handleRegister))
	mux.HandleFunc("POST /api/login", s.withSecurityHeaders(s.handleLogin))

	mux.HandleFunc("GET /api/members", s.withSecurityHeaders(s.requireAuth(s.handleListMembers)))
	mux.HandleFunc("POST /api/members", s.withSecurityHeaders(s.requireAuth(s.handleCreateMember)))
	mux.HandleFunc("POST /api/members/{id}/leave", s.withSecurityHeaders(s.requireAuth(s.handleLeave)))
	mux.HandleFunc("POST /api/members/{id}/rejoin", s.withSecurityHeaders(s.requireAuth(s.handleRejoin)))
	mux.HandleFunc("DELETE /api/members/{id}", s.withSecurityHeaders(s.requireAuth(s.handleDeleteMember)))

	mux.HandleFunc("GET /api/transactions", s.withSecurityHeaders(s.requireAuth(s.handleListTransactions)))
	mux.HandleFunc("POST /api/transactions", s.withSecurityHeaders(s.requireAuth(s.handleCreateTransaction)))
	mux.HandleFunc("DELETE /api/transactions/{id}", s.withSecurityHeaders(s.requireAuth(s.handleDeleteTransaction)))

	mux.HandleFunc("GET /api/summary", s.withSecurityHeaders(s.requireAuth(s.handleSummary)))
	mux.HandleFunc("GET /api/insight", s.withSecurityHeaders(s.requireAuth(s.handleInsight)))

	return s
}

func (s *Server) startCacheCleanup() {
	ticker := time.NewTicker(10 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if removed := s.insightCache.CleanExpired(); removed > 0 {
				slog.Debug("Insight cache cleanup completed", "entries_removed", removed)
			}
		case <-s.stopCleanup:
			return
		}
	}
}

// Shutdown gracefully shuts down the server and cleanup routines.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error

	s.shutdownOnce.Do(func() {
		if s.stopCleanup != nil {
			close(s.stopCleanup)
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

		clientIP := r.Header.Get("X-Forwarded-For")
		if clientIP == "" {
			clientIP = r.Header.Get("X-Real-IP")
		}
		if clientIP == "" {
			clientIP = r.RemoteAddr
		}

		requestID := generateRequestID()
		ctx := context.WithValue(r.Context(), contextKey("request_id"), requestID)
		r = r.WithContext(ctx)

		logger := log.FromContext(ctx)
		logger.InfoContext(ctx, "Request started",
			log.FieldRequestID, requestID,
			log.FieldMethod, r.Method,
			log.FieldPath, r.URL.Path,
			log.FieldClientIP, clientIP)

		if r.Method != http.MethodGet && !s.rateLimiter.allow(clientIP) {
			logger.WarnContext(ctx, "Rate limit exceeded",
				log.FieldClientIP, clientIP,
				log.FieldMethod, r.Method,
				log.FieldPath, r.URL.Path)
			w.Header().Set("Retry-After", "60")
			writeError(w, http.StatusTooManyRequests, "RATE_LIMITED", "Rate limit exceeded. Please try again later.")
			return
		}

		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Content-Security-Policy", "default-src 'none'")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")

		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next(rw, r)

		duration := time.Since(start)
		log.HTTPEnd(ctx, logger, r, rw.statusCode, duration.Milliseconds(), clientIP)
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

func generateRequestID() string {
	bytes := make([]byte, 8)
	if _, err := rand.Read(bytes); err != nil {
		return fmt.Sprintf("req_%d", time.Now().UnixNano())
	}
	return "req_" + hex.EncodeToString(bytes)
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if err := s.repo.Ping(r.Context()); err != nil {
		slog.ErrorContext(r.Context(), "Readiness check failed", "error", err)
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("database unavailable"))
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}
