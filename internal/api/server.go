// Package api provides the HTTP server and handlers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/fruitsalade/cloudstore/internal/auth"
	"github.com/fruitsalade/cloudstore/internal/logging"
	"github.com/fruitsalade/cloudstore/internal/metrics"
	"github.com/fruitsalade/cloudstore/internal/quota"
	"github.com/fruitsalade/cloudstore/internal/resource"
	"github.com/fruitsalade/cloudstore/internal/vfs"
)

// Accounts is the identity service the server authenticates against.
// *auth.Auth implements it.
type Accounts interface {
	SignUp(ctx context.Context, username, email, password string) (*auth.User, error)
	SignIn(ctx context.Context, username, password string) (*auth.User, error)
	DeleteUser(ctx context.Context, userID int64) error
	IssueToken(ctx context.Context, u *auth.User) (string, time.Time, error)
	RevokeToken(ctx context.Context, tokenStr string) error
	Middleware(next http.Handler) http.Handler
}

// Server is the HTTP server.
type Server struct {
	resources     *resource.Service
	accounts      Accounts
	rateLimiter   *quota.RateLimiter
	maxUploadSize int64
	secureCookies bool
}

// Option configures a Server.
type Option func(*Server)

// WithSecureCookies marks the session cookie Secure.
func WithSecureCookies() Option {
	return func(s *Server) { s.secureCookies = true }
}

// NewServer creates a new server.
func NewServer(
	resources *resource.Service,
	accounts Accounts,
	rateLimiter *quota.RateLimiter,
	maxUploadSize int64,
	opts ...Option,
) *Server {
	s := &Server{
		resources:     resources,
		accounts:      accounts,
		rateLimiter:   rateLimiter,
		maxUploadSize: maxUploadSize,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// route tags h with its pattern for request metrics.
func route(mux *http.ServeMux, pattern string, h http.HandlerFunc) {
	mux.HandleFunc(pattern, func(w http.ResponseWriter, r *http.Request) {
		metrics.SetRoute(r.Context(), pattern)
		h(w, r)
	})
}

// Handler returns the HTTP handler with auth and metrics middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// Public endpoints (no auth required)
	route(mux, "GET /health", s.handleHealth)
	route(mux, "POST /api/auth/sign-up", s.handleSignUp)
	route(mux, "POST /api/auth/sign-in", s.handleSignIn)

	// Protected endpoints
	protected := http.NewServeMux()

	route(protected, "POST /api/auth/sign-out", s.handleSignOut)
	route(protected, "GET /api/user/me", s.handleMe)

	route(protected, "GET /api/directory", s.handleListDirectory)
	route(protected, "POST /api/directory", s.handleCreateDirectory)

	route(protected, "GET /api/resource", s.handleGetInfo)
	route(protected, "POST /api/resource", s.handleUpload)
	route(protected, "DELETE /api/resource", s.handleDelete)
	route(protected, "GET /api/resource/move", s.handleMove)
	route(protected, "GET /api/resource/search", s.handleSearch)
	route(protected, "GET /api/resource/download", s.handleDownload)

	// Auth runs first so the rate limiter can key on the user
	getUserID := func(ctx context.Context) (int64, bool) {
		claims := auth.GetClaims(ctx)
		if claims == nil {
			return 0, false
		}
		return claims.UserID, true
	}
	rateLimited := quota.RateLimitMiddleware(s.rateLimiter, getUserID)(protected)
	mux.Handle("/api/", s.accounts.Middleware(rateLimited))

	// Apply logging and metrics middleware
	return metrics.Middleware(logging.Middleware(mux))
}

// ─── Health ─────────────────────────────────────────────────────────────────

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// ─── Responses ──────────────────────────────────────────────────────────────

type errorResponse struct {
	Message   string    `json:"message"`
	Error     string    `json:"error"`
	Status    int       `json:"status"`
	Path      string    `json:"path"`
	Timestamp time.Time `json:"timestamp"`
}

func (s *Server) sendJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Warn("failed to encode response", zap.Error(err))
	}
}

func (s *Server) sendError(w http.ResponseWriter, r *http.Request, code int, message string) {
	s.sendJSON(w, code, errorResponse{
		Message:   message,
		Error:     http.StatusText(code),
		Status:    code,
		Path:      r.URL.Path,
		Timestamp: time.Now().UTC(),
	})
}

var kindStatus = map[resource.Kind]int{
	resource.KindInvalidInput:   http.StatusBadRequest,
	resource.KindTypeMismatch:   http.StatusBadRequest,
	resource.KindEmptyFilename:  http.StatusBadRequest,
	resource.KindNotFound:       http.StatusNotFound,
	resource.KindParentNotFound: http.StatusNotFound,
	resource.KindAlreadyExists:  http.StatusConflict,
	resource.KindStorage:        http.StatusInternalServerError,
	resource.KindInternal:       http.StatusInternalServerError,
}

// sendResourceError maps a resource.Service error to a status and logs it.
// Expected domain errors log at Info; everything else is an incident.
func (s *Server) sendResourceError(w http.ResponseWriter, r *http.Request, err error) {
	kind := resource.KindOf(err)
	code := kindStatus[kind]
	logger := logging.WithContext(r.Context())

	if resource.IsExpected(err) {
		logger.Info("request rejected",
			zap.String("path", r.URL.Path),
			zap.String("kind", kind.String()),
			zap.String("reason", err.Error()))
		s.sendError(w, r, code, err.Error())
		return
	}

	logger.Error("request failed",
		zap.String("path", r.URL.Path),
		zap.String("kind", kind.String()),
		zap.Error(err))

	message := "Internal server error"
	var se *vfs.StorageError
	if errors.As(err, &se) {
		message = "Storage " + se.Op + " failed"
	}
	s.sendError(w, r, code, message)
}
