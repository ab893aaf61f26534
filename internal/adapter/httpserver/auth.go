package httpserver

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/fairyhunter13/gemini-pool-gateway/internal/config"
	"github.com/fairyhunter13/gemini-pool-gateway/internal/domain"
)

// The gateway runs on a single shared secret: it is both the admin console
// password and the bearer API key for /v1 endpoints. There is no per-caller
// scoping.

const sessionCookieName = "session"
const sessionLifetime = 7 * 24 * time.Hour

// SessionManager issues and validates HMAC-signed session cookies.
type SessionManager struct {
	secret []byte
	cfg    config.Config
}

// NewSessionManager creates a new session manager.
func NewSessionManager(cfg config.Config) *SessionManager {
	return &SessionManager{secret: []byte(cfg.AdminSessionSecret), cfg: cfg}
}

// CreateSession returns a signed session cookie value.
func (sm *SessionManager) CreateSession() string {
	now := time.Now()
	expiresAt := now.Add(sessionLifetime)
	payload := fmt.Sprintf("%d:%d", now.Unix(), expiresAt.Unix())
	mac := hmac.New(sha256.New, sm.secret)
	mac.Write([]byte(payload))
	signature := base64.URLEncoding.EncodeToString(mac.Sum(nil))
	return payload + "." + signature
}

// ValidateSession verifies the signature and expiry of a cookie value.
func (sm *SessionManager) ValidateSession(sessionValue string) error {
	parts := strings.Split(sessionValue, ".")
	if len(parts) != 2 {
		return fmt.Errorf("invalid session format: %w", domain.ErrUnauthorized)
	}
	payload, signatureB64 := parts[0], parts[1]

	mac := hmac.New(sha256.New, sm.secret)
	mac.Write([]byte(payload))
	expected := mac.Sum(nil)
	actual, err := base64.URLEncoding.DecodeString(signatureB64)
	if err != nil || !hmac.Equal(expected, actual) {
		return fmt.Errorf("invalid session signature: %w", domain.ErrUnauthorized)
	}

	fields := strings.Split(payload, ":")
	if len(fields) != 2 {
		return fmt.Errorf("invalid session payload: %w", domain.ErrUnauthorized)
	}
	expiresAt, err := strconv.ParseInt(fields[1], 10, 64)
	if err != nil || time.Now().After(time.Unix(expiresAt, 0)) {
		return fmt.Errorf("session expired: %w", domain.ErrUnauthorized)
	}
	return nil
}

// SetSessionCookie sets the session cookie on the response.
func (sm *SessionManager) SetSessionCookie(w http.ResponseWriter, sessionValue string) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    sessionValue,
		Path:     "/",
		HttpOnly: true,
		Secure:   !sm.cfg.IsDev(),
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(sessionLifetime / time.Second),
	})
}

// ClearSessionCookie clears the session cookie.
func (sm *SessionManager) ClearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		Secure:   !sm.cfg.IsDev(),
		SameSite: http.SameSiteLaxMode,
		MaxAge:   -1,
	})
}

// VerifySecret compares a presented secret with the shared secret in
// constant time.
func (s *Server) VerifySecret(presented string) bool {
	return subtle.ConstantTimeCompare([]byte(presented), []byte(s.Cfg.AdminPassword)) == 1
}

// bearerToken extracts the Authorization credential, accepting both the
// "Bearer <token>" form and a raw token.
func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if h == "" {
		return ""
	}
	if rest, ok := strings.CutPrefix(h, "Bearer "); ok {
		return strings.TrimSpace(rest)
	}
	return strings.TrimSpace(h)
}

// authenticated reports whether the request carries a valid bearer key or a
// valid session cookie. Both map to the same shared secret.
func (s *Server) authenticated(r *http.Request) bool {
	if tok := bearerToken(r); tok != "" && s.VerifySecret(tok) {
		return true
	}
	if c, err := r.Cookie(sessionCookieName); err == nil && c.Value != "" {
		return s.Sessions.ValidateSession(c.Value) == nil
	}
	return false
}

// RequireAuth guards an endpoint with bearer-or-cookie authentication.
func (s *Server) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.authenticated(r) {
			writeError(w, fmt.Errorf("missing or invalid credentials: %w", domain.ErrUnauthorized))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// LoginHandler exchanges the shared password for a session cookie.
func (s *Server) LoginHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Password string `json:"password"`
		}
		if err := decodeJSON(r, &body); err != nil {
			writeError(w, err)
			return
		}
		if !s.VerifySecret(body.Password) {
			writeError(w, fmt.Errorf("wrong password: %w", domain.ErrUnauthorized))
			return
		}
		s.Sessions.SetSessionCookie(w, s.Sessions.CreateSession())
		writeJSON(w, http.StatusOK, map[string]bool{"success": true})
	}
}

// LogoutHandler clears the session cookie.
func (s *Server) LogoutHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		s.Sessions.ClearSessionCookie(w)
		writeJSON(w, http.StatusOK, map[string]bool{"success": true})
	}
}
