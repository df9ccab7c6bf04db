package middleware

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"

	apperrors "rugviz-be/pkg/errors"
	"rugviz-be/pkg/logger"
)

// AdminCookieName is the session cookie set after a successful admin login
const AdminCookieName = "rv_admin"

// adminSessionLifetime bounds how long an admin session stays valid
const adminSessionLifetime = 7 * 24 * time.Hour

// AdminAuth issues and verifies signed admin session tokens
type AdminAuth struct {
	username string
	password string
	secret   []byte
	secure   bool
	logger   *logger.Logger
}

// NewAdminAuth creates the admin authenticator. An empty secret gets replaced
// with a random one, which invalidates sessions across restarts but never
// leaves the signing key guessable.
func NewAdminAuth(username, password, secret string, secure bool, logger *logger.Logger) (*AdminAuth, error) {
	key := []byte(secret)
	if len(key) == 0 {
		key = make([]byte, 32)
		if _, err := rand.Read(key); err != nil {
			return nil, fmt.Errorf("failed to generate session secret: %w", err)
		}
		logger.Warn("ADMIN_JWT_SECRET not set, admin sessions will not survive restarts")
	}

	return &AdminAuth{
		username: username,
		password: password,
		secret:   key,
		secure:   secure,
		logger:   logger,
	}, nil
}

// Enabled reports whether admin credentials are configured
func (a *AdminAuth) Enabled() bool {
	return a.username != "" && a.password != ""
}

// Login checks the credentials and returns a signed session token
func (a *AdminAuth) Login(username, password string) (string, error) {
	if !a.Enabled() {
		return "", apperrors.NewAuthenticationError("Admin access is not configured")
	}

	userOK := subtle.ConstantTimeCompare([]byte(username), []byte(a.username)) == 1
	passOK := subtle.ConstantTimeCompare([]byte(password), []byte(a.password)) == 1
	if !userOK || !passOK {
		return "", apperrors.NewAuthenticationError("Invalid username or password")
	}

	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   username,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(adminSessionLifetime)),
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
	if err != nil {
		return "", apperrors.NewInternalError("Failed to sign session token", err)
	}
	return token, nil
}

// Verify parses a session token and returns the admin username
func (a *AdminAuth) Verify(tokenString string) (string, error) {
	token, err := jwt.ParseWithClaims(tokenString, &jwt.RegisteredClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return a.secret, nil
	})
	if err != nil || !token.Valid {
		return "", apperrors.NewAuthenticationError("Session is invalid or expired")
	}

	claims, ok := token.Claims.(*jwt.RegisteredClaims)
	if !ok || claims.Subject == "" {
		return "", apperrors.NewAuthenticationError("Session is invalid or expired")
	}
	return claims.Subject, nil
}

// SetSessionCookie attaches the session token to the response
func (a *AdminAuth) SetSessionCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     AdminCookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(adminSessionLifetime / time.Second),
		HttpOnly: true,
		Secure:   a.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// ClearSessionCookie removes the session cookie
func (a *AdminAuth) ClearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     AdminCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   a.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// RequireAdmin rejects requests without a valid admin session cookie
func (a *AdminAuth) RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie(AdminCookieName)
		if err != nil || cookie.Value == "" {
			a.deny(w, r)
			return
		}
		if _, err := a.Verify(cookie.Value); err != nil {
			a.deny(w, r)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (a *AdminAuth) deny(w http.ResponseWriter, r *http.Request) {
	a.logger.WithField("path", r.URL.Path).Debug("Rejected unauthenticated admin request")

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"success": false,
		"code":    "unauthorized",
		"message": "Admin authentication required",
	})
}
