package usecase

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/fairyhunter13/gemini-pool-gateway/internal/domain"
)

// tokenRefreshSkew refreshes tokens slightly before their expiry so an
// attempt never starts with a token about to lapse mid-exchange.
const tokenRefreshSkew = 30 * time.Second

// SessionService lazily establishes and caches the per-account token and
// session handle. Concurrent refreshes for the same account are allowed to
// race; the last writer wins and a duplicate exchange is wasteful, not wrong.
type SessionService struct {
	cache    domain.SessionCache
	upstream domain.UpstreamClient
	now      func() time.Time
}

// NewSessionService constructs a SessionService.
func NewSessionService(cache domain.SessionCache, upstream domain.UpstreamClient) *SessionService {
	return &SessionService{cache: cache, upstream: upstream, now: time.Now}
}

// EnsureToken returns a cached unexpired token or performs the token
// exchange. A rejected exchange surfaces the upstream's ErrAccountRejected.
func (s *SessionService) EnsureToken(ctx domain.Context, a domain.Account) (string, error) {
	if rec, ok := s.cache.Get(a.ID); ok && rec.TokenValid(s.now().Add(tokenRefreshSkew)) {
		return rec.Token, nil
	}

	tok, err := s.upstream.ExchangeToken(ctx, a)
	if err != nil {
		return "", fmt.Errorf("op=session.token account=%s: %w", a.ID, err)
	}
	slog.Debug("token exchanged", slog.String("account_id", a.ID), slog.Time("expires_at", tok.ExpiresAt))

	// Replace the record wholesale: a session bound to the old token is
	// useless once the token rotates.
	s.cache.Put(a.ID, domain.SessionRecord{Token: tok.Value, TokenExpiresAt: tok.ExpiresAt})
	return tok.Value, nil
}

// EnsureSession returns a cached session bound to the current token or
// establishes a fresh one.
func (s *SessionService) EnsureSession(ctx domain.Context, a domain.Account, token string) (string, error) {
	rec, _ := s.cache.Get(a.ID)
	if rec.SessionValidFor(token) {
		return rec.Session, nil
	}

	session, err := s.upstream.EstablishSession(ctx, a, token)
	if err != nil {
		return "", fmt.Errorf("op=session.establish account=%s: %w", a.ID, err)
	}
	slog.Debug("session established", slog.String("account_id", a.ID))

	rec.Session = session
	rec.SessionToken = token
	s.cache.Put(a.ID, rec)
	return session, nil
}
