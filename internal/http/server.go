// Package http exposes the JSON API: Google sign-in, family membership
// management, and the wallet/budget ledger.
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

	"duit/internal/cache"
	"duit/internal/identity"
	"duit/internal/services"
)

type Server struct {
	http.Server
	directory   *DirectoryAPI
	ledger      *LedgerAPI
	provider    identity.Provider
	rateLimiter *rateLimiter

	// Opaque session token -> uid. Sessions live only in process memory;
	// a restart signs everyone out.
	sessions *cache.LRUCache[string]
	// Pending OAuth state tokens awaiting the callback.
	states *cache.LRUCache[time.Time]

	// Member roster cache keyed by family id, invalidated on every
	// roster mutation.
	memberCache *cache.LRUCache[services.MemberList]

	cacheManager *cache.Manager
	shutdownOnce sync.Once
}

// DirectoryAPI is the slice of DirectoryService the handlers use.
type DirectoryAPI = services.DirectoryService

// LedgerAPI is the slice of LedgerService the handlers use.
type LedgerAPI = services.LedgerService

// Options tunes the server beyond its dependencies.
type Options struct {
	MemberCacheSize int
	MemberCacheTTL  time.Duration
}

// NewServer configures routes and middleware, returning a ready-to-run
// http.Server. provider may be nil when Google sign-in is not configured;
// the auth routes then report 503.
func NewServer(addr string, directory *DirectoryAPI, ledger *LedgerAPI, provider identity.Provider, opts Options) *Server {
	if opts.MemberCacheSize < 1 {
		opts.MemberCacheSize = 100
	}
	if opts.MemberCacheTTL <= 0 {
		opts.MemberCacheTTL = 5 * time.Minute
	}

	mux := http.NewServeMux()
	s := &Server{
		Server: http.Server{
			Addr:    addr,
			Handler: mux,
		},
		directory:    directory,
		ledger:       ledger,
		provider:     provider,
		rateLimiter:  newRateLimiter(),
		sessions:     cache.NewLRUCache[string](1000, 24*time.Hour),
		states:       cache.NewLRUCache[time.Time](1000, 10*time.Minute),
		memberCache:  cache.NewLRUCache[services.MemberList](opts.MemberCacheSize, opts.MemberCacheTTL),
		cacheManager: cache.NewManager(),
	}

	s.cacheManager.Register("sessions", s.sessions)
	s.cacheManager.Register("oauth_states", s.states)
	s.cacheManager.Register("members", s.memberCache)
	if directory != nil {
		s.cacheManager.Register("users", directory.UserCache())
	}
	s.cacheManager.StartCleanup(10 * time.Minute)

	mux.HandleFunc("GET /healthz", handleHealth)
	mux.HandleFunc("GET /readyz", handleReady)

	mux.HandleFunc("GET /auth/login", s.withSecurityHeaders(s.handleLogin))
	mux.HandleFunc("GET /auth/callback", s.withSecurityHeaders(s.handleCallback))
	mux.HandleFunc("POST /auth/logout", s.withSecurityHeaders(s.handleLogout))

	mux.HandleFunc("GET /api/me", s.withSecurityHeaders(s.requireUser(s.handleMe)))

	mux.HandleFunc("POST /api/families", s.withSecurityHeaders(s.requireUser(s.handleCreateFamily)))
	mux.HandleFunc("GET /api/families/{id}", s.withSecurityHeaders(s.requireUser(s.handleGetFamily)))
	mux.HandleFunc("GET /api/families/{id}/members", s.withSecurityHeaders(s.requireUser(s.handleListMembers)))
	mux.HandleFunc("POST /api/families/{id}/members", s.withSecurityHeaders(s.requireUser(s.handleInviteMember)))
	mux.HandleFunc("PATCH /api/families/{id}/members/{uid}", s.withSecurityHeaders(s.requireUser(s.handleChangeRole)))
	mux.HandleFunc("DELETE /api/families/{id}/members/{uid}", s.withSecurityHeaders(s.requireUser(s.handleRemoveMember)))

	mux.HandleFunc("GET /api/families/{id}/wallets", s.withSecurityHeaders(s.requireUser(s.handleListWallets)))
	mux.HandleFunc("POST /api/families/{id}/wallets", s.withSecurityHeaders(s.requireUser(s.handleCreateWallet)))
	mux.HandleFunc("GET /api/families/{id}/budgets", s.withSecurityHeaders(s.requireUser(s.handleListBudgets)))
	mux.HandleFunc("POST /api/families/{id}/budgets", s.withSecurityHeaders(s.requireUser(s.handleCreateBudget)))
	mux.HandleFunc("POST /api/families/{id}/transfers", s.withSecurityHeaders(s.requireUser(s.handleTransfer)))
	mux.HandleFunc("GET /api/families/{id}/transactions", s.withSecurityHeaders(s.requireUser(s.handleListTransactions)))
	mux.HandleFunc("POST /api/families/{id}/transactions", s.withSecurityHeaders(s.requireUser(s.handleRecordDaily)))

	return s
}

// Shutdown stops the cleanup goroutines and the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.cacheManager.Stop()
		if s.rateLimiter != nil {
			s.rateLimiter.stop()
		}
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

// withSecurityHeaders adds security headers, rate limiting, request IDs
// and request logging.
func (s *Server) withSecurityHeaders(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		clientIP := extractClientIP(r)
		requestID := generateRequestID()

		ctx := context.WithValue(r.Context(), requestIDKey{}, requestID)
		r = r.WithContext(ctx)

		slog.InfoContext(ctx, "Request started",
			"request_id", requestID,
			"method", r.Method,
			"url", r.URL.Path,
			"client_ip", clientIP,
			"user_agent", r.Header.Get("User-Agent"))

		// Rate limit mutations only; reads stay cheap.
		if r.Method != http.MethodGet && !s.rateLimiter.allow(clientIP) {
			slog.WarnContext(ctx, "Rate limit exceeded", "client_ip", clientIP, "method", r.Method, "url", r.URL.Path)
			w.Header().Set("Retry-After", "60")
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded, try again later")
			return
		}

		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("Cache-Control", "no-store")

		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next(rw, r)

		duration := time.Since(start)
		slog.InfoContext(ctx, "Request completed",
			"request_id", requestID,
			"method", r.Method,
			"url", r.URL.Path,
			"status", rw.statusCode,
			"duration_ms", duration.Milliseconds(),
			"client_ip", clientIP)
	}
}

type requestIDKey struct{}

// responseWriter wraps http.ResponseWriter to capture the status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// generateRequestID creates a unique request ID for tracing.
func generateRequestID() string {
	bytes := make([]byte, 8)
	if _, err := rand.Read(bytes); err != nil {
		return fmt.Sprintf("req_%d", time.Now().UnixNano())
	}
	return "req_" + hex.EncodeToString(bytes)
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func handleReady(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}
