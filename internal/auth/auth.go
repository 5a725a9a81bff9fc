// Package auth provides user accounts and JWT-based authentication
// middleware with metrics.
package auth

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/mail"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/lib/pq"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/fruitsalade/cloudstore/internal/logging"
	"github.com/fruitsalade/cloudstore/internal/metrics"
)

type contextKey string

const (
	userContextKey contextKey = "user"

	// CookieName is the cookie that carries the session token for browsers.
	CookieName = "token"

	issuer = "cloudstore"
)

var (
	ErrUsernameTaken      = errors.New("username already taken")
	ErrEmailTaken         = errors.New("email already registered")
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrUnauthenticated    = errors.New("not authenticated")
)

// ValidationError reports a malformed sign-up or sign-in request.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Message
}

// Claims holds JWT token claims.
type Claims struct {
	UserID   int64  `json:"user_id"`
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// User represents a user account.
type User struct {
	ID        int64     `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
}

// Auth handles accounts and JWT authentication.
type Auth struct {
	db     *sql.DB
	secret []byte
	ttl    time.Duration
}

// New creates a new Auth handler.
func New(db *sql.DB, jwtSecret string, ttl time.Duration) *Auth {
	return &Auth{
		db:     db,
		secret: []byte(jwtSecret),
		ttl:    ttl,
	}
}

// ValidateCredentials checks the shape of a username and password.
func ValidateCredentials(username, password string) error {
	if strings.TrimSpace(username) == "" {
		return &ValidationError{Field: "username", Message: "Username must not be blank"}
	}
	if n := len(username); n < 4 || n > 15 {
		return &ValidationError{Field: "username", Message: "Username must be between 4 and 15 characters long"}
	}
	if strings.TrimSpace(password) == "" {
		return &ValidationError{Field: "password", Message: "Password must not be blank"}
	}
	if len(password) < 6 {
		return &ValidationError{Field: "password", Message: "Password must have at least 6 characters"}
	}
	return nil
}

// ValidateEmail checks that email is a bare address.
func ValidateEmail(email string) error {
	if strings.TrimSpace(email) == "" {
		return &ValidationError{Field: "email", Message: "Email must not be blank"}
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return &ValidationError{Field: "email", Message: "Email must be a valid address"}
	}
	return nil
}

// SignUp creates a user with a bcrypt-hashed password.
func (a *Auth) SignUp(ctx context.Context, username, email, password string) (*User, error) {
	if err := ValidateCredentials(username, password); err != nil {
		return nil, err
	}
	if err := ValidateEmail(email); err != nil {
		return nil, err
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	u := &User{Username: username, Email: email}
	err = a.db.QueryRowContext(ctx,
		`INSERT INTO users (username, email, password) VALUES ($1, $2, $3) RETURNING id, created_at`,
		username, email, string(hashed)).Scan(&u.ID, &u.CreatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			if strings.Contains(pqErr.Constraint, "email") {
				return nil, ErrEmailTaken
			}
			return nil, ErrUsernameTaken
		}
		return nil, fmt.Errorf("insert user: %w", err)
	}

	logging.Info("user created", zap.String("username", username), zap.Int64("user_id", u.ID))
	return u, nil
}

// DeleteUser removes a user. Used to undo a sign-up whose storage
// bootstrap failed.
func (a *Auth) DeleteUser(ctx context.Context, userID int64) error {
	if _, err := a.db.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, userID); err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	logging.Info("user deleted", zap.Int64("user_id", userID))
	return nil
}

// SignIn verifies a username and password.
func (a *Auth) SignIn(ctx context.Context, username, password string) (*User, error) {
	u := &User{Username: username}
	var hashed string
	err := a.db.QueryRowContext(ctx,
		`SELECT id, email, password, created_at FROM users WHERE username = $1`,
		username).Scan(&u.ID, &u.Email, &hashed, &u.CreatedAt)
	if err == sql.ErrNoRows {
		metrics.RecordAuthAttempt(false)
		logging.Warn("login failed: unknown user", zap.String("username", username))
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		metrics.RecordAuthAttempt(false)
		return nil, fmt.Errorf("query user: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(hashed), []byte(password)); err != nil {
		metrics.RecordAuthAttempt(false)
		logging.Warn("login failed: invalid password", zap.String("username", username))
		return nil, ErrInvalidCredentials
	}

	metrics.RecordAuthAttempt(true)
	logging.Info("login successful", zap.String("username", username))
	return u, nil
}

// GetUser looks a user up by id.
func (a *Auth) GetUser(ctx context.Context, userID int64) (*User, error) {
	u := &User{ID: userID}
	err := a.db.QueryRowContext(ctx,
		`SELECT username, email, created_at FROM users WHERE id = $1`,
		userID).Scan(&u.Username, &u.Email, &u.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("user %d not found", userID)
	}
	if err != nil {
		return nil, fmt.Errorf("query user: %w", err)
	}
	return u, nil
}

// IssueToken signs a JWT for u and records it as a device token so it can
// be revoked on sign-out.
func (a *Auth) IssueToken(ctx context.Context, u *User) (string, time.Time, error) {
	tokenStr, expires, err := a.signToken(u)
	if err != nil {
		return "", time.Time{}, err
	}

	_, err = a.db.ExecContext(ctx,
		`INSERT INTO device_tokens (user_id, token_hash) VALUES ($1, $2)`,
		u.ID, hashToken(tokenStr))
	if err != nil {
		logging.Error("failed to record device token", zap.Error(err))
	}
	return tokenStr, expires, nil
}

func (a *Auth) signToken(u *User) (string, time.Time, error) {
	now := time.Now()
	claims := &Claims{
		UserID:   u.ID,
		Username: u.Username,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(a.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    issuer,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenStr, err := token.SignedString(a.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return tokenStr, claims.ExpiresAt.Time, nil
}

func (a *Auth) validateToken(tokenStr string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return a.secret, nil
	}, jwt.WithIssuer(issuer))
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}
	return claims, nil
}

// Middleware returns HTTP middleware that validates JWT tokens.
func (a *Auth) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenStr := TokenFromRequest(r)
		if tokenStr == "" {
			metrics.RecordAuthAttempt(false)
			sendAuthError(w, r, "missing authentication token")
			return
		}

		claims, err := a.validateToken(tokenStr)
		if err != nil {
			metrics.RecordAuthAttempt(false)
			sendAuthError(w, r, "invalid token: "+err.Error())
			return
		}

		revoked, err := a.isTokenRevoked(r.Context(), tokenStr)
		if err != nil {
			logging.Error("token revocation check failed", zap.Error(err))
		}
		if revoked {
			metrics.RecordAuthAttempt(false)
			sendAuthError(w, r, "token has been revoked")
			return
		}

		ctx := logging.WithUser(WithClaims(r.Context(), claims), claims.UserID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (a *Auth) isTokenRevoked(ctx context.Context, tokenStr string) (bool, error) {
	if a.db == nil {
		return false, nil
	}
	var revoked bool
	err := a.db.QueryRowContext(ctx,
		`SELECT revoked FROM device_tokens WHERE token_hash = $1`, hashToken(tokenStr)).Scan(&revoked)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return revoked, nil
}

// RevokeToken revokes a token by its hash.
func (a *Auth) RevokeToken(ctx context.Context, tokenStr string) error {
	result, err := a.db.ExecContext(ctx,
		`UPDATE device_tokens SET revoked = TRUE WHERE token_hash = $1`, hashToken(tokenStr))
	if err != nil {
		return fmt.Errorf("revoke token: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("token not found")
	}
	return nil
}

// WithClaims stores claims in ctx.
func WithClaims(ctx context.Context, claims *Claims) context.Context {
	return context.WithValue(ctx, userContextKey, claims)
}

// GetClaims extracts claims from the request context.
func GetClaims(ctx context.Context) *Claims {
	claims, _ := ctx.Value(userContextKey).(*Claims)
	return claims
}

// Identity resolves the authenticated user from request claims.
type Identity struct{}

// UserID returns the id carried by the request's claims.
func (Identity) UserID(ctx context.Context) (int64, error) {
	claims := GetClaims(ctx)
	if claims == nil {
		return 0, ErrUnauthenticated
	}
	return claims.UserID, nil
}

// TokenFromRequest returns the bearer token, falling back to the session cookie.
func TokenFromRequest(r *http.Request) string {
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimPrefix(h, "Bearer ")
	}
	if c, err := r.Cookie(CookieName); err == nil {
		return c.Value
	}
	return ""
}

func hashToken(token string) string {
	h := sha256.Sum256([]byte(token))
	return hex.EncodeToString(h[:])
}

func sendAuthError(w http.ResponseWriter, r *http.Request, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"message":   msg,
		"error":     http.StatusText(http.StatusUnauthorized),
		"status":    http.StatusUnauthorized,
		"path":      r.URL.Path,
		"timestamp": time.Now().UTC(),
	})
}
