package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/fairyhunter13/gemini-pool-gateway/internal/adapter/observability"
	"github.com/fairyhunter13/gemini-pool-gateway/internal/domain"
)

// ChatOutcome is the result of one completed inbound chat request.
type ChatOutcome struct {
	Text      string
	Artifacts []domain.ImageArtifact
	AccountID string
}

// ChatService drives one inbound request across the pool: select an account,
// ensure its token and session, call upstream, and classify failures.
//
// The retry loop is strictly sequential; there is no speculative fan-out
// across accounts. When the pool has shrunk to one account, repeated
// transient failures legitimately reselect that same account.
type ChatService struct {
	pool           *PoolService
	sessions       *SessionService
	upstream       domain.UpstreamClient
	configs        domain.ConfigRepository
	images         *ImageService
	maxRetries     int
	attemptTimeout time.Duration
}

// NewChatService constructs a ChatService.
func NewChatService(pool *PoolService, sessions *SessionService, upstream domain.UpstreamClient, configs domain.ConfigRepository, images *ImageService, maxRetries int, attemptTimeout time.Duration) *ChatService {
	if maxRetries <= 0 {
		maxRetries = 3
	}
	if attemptTimeout <= 0 {
		attemptTimeout = 120 * time.Second
	}
	return &ChatService{
		pool:           pool,
		sessions:       sessions,
		upstream:       upstream,
		configs:        configs,
		images:         images,
		maxRetries:     maxRetries,
		attemptTimeout: attemptTimeout,
	}
}

// Complete runs the retry state machine for one request.
//
// Terminal outcomes: success; ErrUpstreamRateLimited (immediate, no retry, no
// penalty); ErrPoolEmpty; exhaustion carrying the last attempt's error.
// An ErrAccountRejected attempt disables exactly the account that produced
// it before the next attempt; transient failures retry without penalty.
func (s *ChatService) Complete(ctx domain.Context, messages []domain.ChatMessage, model string) (ChatOutcome, error) {
	if len(messages) == 0 {
		return ChatOutcome{}, fmt.Errorf("op=chat.complete: no messages provided: %w", domain.ErrInvalidArgument)
	}
	if model == "" {
		model = domain.DefaultModel
	}

	gwCfg, err := s.configs.Get(ctx)
	if err != nil {
		slog.Warn("gateway config unavailable, proceeding without proxy", slog.Any("error", err))
		gwCfg = domain.GatewayConfig{}
	}

	var lastErr error
	for attempt := 0; attempt < s.maxRetries; attempt++ {
		account, err := s.pool.SelectNext(ctx)
		if err != nil {
			if errors.Is(err, domain.ErrPoolEmpty) && lastErr != nil {
				return ChatOutcome{}, fmt.Errorf("op=chat.complete: all accounts failed: %w", lastErr)
			}
			return ChatOutcome{}, err
		}
		slog.Info("chat attempt",
			slog.Int("attempt", attempt+1),
			slog.String("account_id", account.ID),
			slog.String("model", model))

		result, err := s.attempt(ctx, account, messages, model, gwCfg.Proxy)
		if err == nil {
			observability.ChatAttemptsTotal.WithLabelValues("success").Inc()
			observability.ChatRequestsTotal.WithLabelValues("success").Inc()
			artifacts := s.images.Resolve(ctx, result.Images)
			return ChatOutcome{Text: result.Text, Artifacts: artifacts, AccountID: account.ID}, nil
		}

		switch {
		case errors.Is(err, domain.ErrUpstreamRateLimited):
			observability.ChatAttemptsTotal.WithLabelValues("rate_limited").Inc()
			observability.ChatRequestsTotal.WithLabelValues("rate_limited").Inc()
			return ChatOutcome{}, err
		case errors.Is(err, domain.ErrAccountRejected):
			observability.ChatAttemptsTotal.WithLabelValues("account_rejected").Inc()
			// Penalize the account that actually produced the failure.
			if markErr := s.pool.MarkUnavailable(ctx, account.ID, err.Error()); markErr != nil {
				slog.Error("failed to disable rejected account", slog.String("account_id", account.ID), slog.Any("error", markErr))
			} else {
				slog.Warn("account disabled after upstream rejection", slog.String("account_id", account.ID))
			}
			lastErr = err
		default:
			observability.ChatAttemptsTotal.WithLabelValues("transient").Inc()
			slog.Warn("chat attempt failed", slog.Int("attempt", attempt+1), slog.String("account_id", account.ID), slog.Any("error", err))
			lastErr = err
		}
	}

	observability.ChatRequestsTotal.WithLabelValues("exhausted").Inc()
	return ChatOutcome{}, fmt.Errorf("op=chat.complete: all accounts failed after %d attempts: %w", s.maxRetries, lastErr)
}

// attempt runs one token-ensure, session-ensure, upstream-call sequence under
// a bounded deadline so a single unresponsive account cannot eat the whole
// retry budget.
func (s *ChatService) attempt(ctx domain.Context, account domain.Account, messages []domain.ChatMessage, model, proxy string) (domain.ChatResult, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, s.attemptTimeout)
	defer cancel()

	token, err := s.sessions.EnsureToken(attemptCtx, account)
	if err != nil {
		return domain.ChatResult{}, err
	}
	session, err := s.sessions.EnsureSession(attemptCtx, account, token)
	if err != nil {
		return domain.ChatResult{}, err
	}
	return s.upstream.Chat(attemptCtx, domain.ChatCall{
		Token:    token,
		Session:  session,
		Messages: messages,
		Model:    model,
		TeamID:   account.TeamID,
		Proxy:    proxy,
	})
}
