// Package usecase contains the application services: credential pool,
// session lifecycle, image artifact resolution and the chat retry
// orchestrator.
package usecase

import (
	"errors"
	"fmt"

	"github.com/fairyhunter13/gemini-pool-gateway/internal/adapter/observability"
	"github.com/fairyhunter13/gemini-pool-gateway/internal/domain"
)

// PoolService owns account selection. The shared cursor lives in the cursor
// store; selection snapshots the available set and the cursor, then advances
// the cursor with a conditional write so two concurrent selections can never
// act on the same snapshot.
type PoolService struct {
	accounts    domain.AccountRepository
	cursor      domain.CursorStore
	maxAttempts int
}

// NewPoolService constructs a PoolService. maxAttempts bounds the optimistic
// selection loop so write conflicts cannot livelock a request.
func NewPoolService(accounts domain.AccountRepository, cursor domain.CursorStore, maxAttempts int) *PoolService {
	if maxAttempts <= 0 {
		maxAttempts = 8
	}
	return &PoolService{accounts: accounts, cursor: cursor, maxAttempts: maxAttempts}
}

// ListAvailable returns selection-eligible accounts in stable order.
func (s *PoolService) ListAvailable(ctx domain.Context) ([]domain.Account, error) {
	return s.accounts.ListAvailable(ctx)
}

// SelectNext picks the next account round robin. Fails with ErrPoolEmpty when
// no account is available and with ErrConflict when the conditional cursor
// advance keeps losing races for maxAttempts rounds.
func (s *PoolService) SelectNext(ctx domain.Context) (domain.Account, error) {
	for attempt := 0; attempt < s.maxAttempts; attempt++ {
		available, err := s.accounts.ListAvailable(ctx)
		if err != nil {
			return domain.Account{}, fmt.Errorf("op=pool.select: %w", err)
		}
		observability.AccountsAvailable.Set(float64(len(available)))
		if len(available) == 0 {
			return domain.Account{}, fmt.Errorf("op=pool.select: %w", domain.ErrPoolEmpty)
		}

		cursor, err := s.cursor.Get(ctx)
		if err != nil {
			return domain.Account{}, fmt.Errorf("op=pool.select: %w", err)
		}
		idx := cursor % int64(len(available))
		if idx < 0 {
			idx += int64(len(available))
		}

		if err := s.cursor.Advance(ctx, cursor); err != nil {
			if errors.Is(err, domain.ErrConflict) {
				continue
			}
			return domain.Account{}, fmt.Errorf("op=pool.select: %w", err)
		}
		return available[idx], nil
	}
	return domain.Account{}, fmt.Errorf("op=pool.select: advance retries exhausted: %w", domain.ErrConflict)
}

// MarkUnavailable removes an account from rotation and records why.
// Idempotent; the cursor value is untouched, only the modulus shrinks.
func (s *PoolService) MarkUnavailable(ctx domain.Context, id, reason string) error {
	if err := s.accounts.SetAvailability(ctx, id, false, reason); err != nil {
		return fmt.Errorf("op=pool.mark_unavailable: %w", err)
	}
	return nil
}

// SetAvailable toggles selection eligibility (admin surface).
func (s *PoolService) SetAvailable(ctx domain.Context, id string, available bool) error {
	if err := s.accounts.SetAvailability(ctx, id, available, ""); err != nil {
		return fmt.Errorf("op=pool.set_available: %w", err)
	}
	return nil
}
