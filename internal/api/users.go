package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/fruitsalade/cloudstore/internal/auth"
	"github.com/fruitsalade/cloudstore/internal/logging"
)

const maxAuthBody = 1 << 20

type credentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Email    string `json:"email"`
}

type userResponse struct {
	Username  string     `json:"username"`
	Token     string     `json:"token,omitempty"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

func (s *Server) decodeCredentials(w http.ResponseWriter, r *http.Request) (credentialsRequest, bool) {
	var req credentialsRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxAuthBody)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, r, http.StatusBadRequest, "invalid request body")
		return req, false
	}
	if err := auth.ValidateCredentials(req.Username, req.Password); err != nil {
		s.sendError(w, r, http.StatusBadRequest, err.Error())
		return req, false
	}
	return req, true
}

// handleSignUp creates an account, bootstraps its root directory and starts
// a session.
func (s *Server) handleSignUp(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeCredentials(w, r)
	if !ok {
		return
	}
	if err := auth.ValidateEmail(req.Email); err != nil {
		s.sendError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	u, err := s.accounts.SignUp(r.Context(), req.Username, req.Email, req.Password)
	switch {
	case errors.Is(err, auth.ErrUsernameTaken):
		s.sendError(w, r, http.StatusConflict, "User with username "+req.Username+" already exists")
		return
	case errors.Is(err, auth.ErrEmailTaken):
		s.sendError(w, r, http.StatusConflict, "User with email "+req.Email+" already exists")
		return
	case err != nil:
		logging.Error("sign-up failed", zap.String("username", req.Username), zap.Error(err))
		s.sendError(w, r, http.StatusInternalServerError, "failed to create user")
		return
	}

	if err := s.resources.CreateRootDirectory(r.Context(), u.ID); err != nil {
		logging.Error("root directory bootstrap failed", zap.Int64("user_id", u.ID), zap.Error(err))
		if delErr := s.accounts.DeleteUser(r.Context(), u.ID); delErr != nil {
			logging.Error("failed to roll back user", zap.Int64("user_id", u.ID), zap.Error(delErr))
		}
		s.sendError(w, r, http.StatusInternalServerError, "failed to create user storage")
		return
	}

	s.startSession(w, r, u, http.StatusCreated)
}

func (s *Server) handleSignIn(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeCredentials(w, r)
	if !ok {
		return
	}

	u, err := s.accounts.SignIn(r.Context(), req.Username, req.Password)
	if errors.Is(err, auth.ErrInvalidCredentials) {
		s.sendError(w, r, http.StatusUnauthorized, "Invalid username or password")
		return
	}
	if err != nil {
		logging.Error("sign-in failed", zap.String("username", req.Username), zap.Error(err))
		s.sendError(w, r, http.StatusInternalServerError, "failed to sign in")
		return
	}

	s.startSession(w, r, u, http.StatusOK)
}

func (s *Server) startSession(w http.ResponseWriter, r *http.Request, u *auth.User, code int) {
	tokenStr, expires, err := s.accounts.IssueToken(r.Context(), u)
	if err != nil {
		logging.Error("failed to issue token", zap.Int64("user_id", u.ID), zap.Error(err))
		s.sendError(w, r, http.StatusInternalServerError, "failed to generate token")
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     auth.CookieName,
		Value:    tokenStr,
		Path:     "/",
		Expires:  expires,
		HttpOnly: true,
		Secure:   s.secureCookies,
		SameSite: http.SameSiteLaxMode,
	})
	s.sendJSON(w, code, userResponse{Username: u.Username, Token: tokenStr, ExpiresAt: &expires})
}

func (s *Server) handleSignOut(w http.ResponseWriter, r *http.Request) {
	if tokenStr := auth.TokenFromRequest(r); tokenStr != "" {
		if err := s.accounts.RevokeToken(r.Context(), tokenStr); err != nil {
			logging.WithContext(r.Context()).Warn("token revocation failed", zap.Error(err))
		}
	}

	http.SetCookie(w, &http.Cookie{
		Name:     auth.CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.secureCookies,
		SameSite: http.SameSiteLaxMode,
	})
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	claims := auth.GetClaims(r.Context())
	if claims == nil {
		s.sendError(w, r, http.StatusUnauthorized, "authentication required")
		return
	}
	s.sendJSON(w, http.StatusOK, userResponse{Username: claims.Username})
}
