package postgres

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/fairyhunter13/gemini-pool-gateway/internal/domain"
)

// AccountRepo persists pooled accounts.
type AccountRepo struct{ Pool PgxPool }

// NewAccountRepo constructs an AccountRepo with the given pool.
func NewAccountRepo(p PgxPool) *AccountRepo { return &AccountRepo{Pool: p} }

// Create stores a new account and returns its id (generates one if empty).
func (r *AccountRepo) Create(ctx domain.Context, a domain.Account) (string, error) {
	id := a.ID
	if id == "" {
		id = uuid.New().String()
	}
	now := time.Now().UTC()
	q := `INSERT INTO accounts (id, team_id, secure_c_ses, host_c_oses, csesidx, user_agent, available, unavailable_reason, created_at, updated_at)
	      VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`
	_, err := r.Pool.Exec(ctx, q, id, a.TeamID, a.SecureCSes, a.HostCOses, a.CSesIdx, a.UserAgent, true, "", now, now)
	if err != nil {
		return "", fmt.Errorf("op=account.create: %w", err)
	}
	return id, nil
}

// Update replaces the mutable fields of an account. The id never changes.
func (r *AccountRepo) Update(ctx domain.Context, a domain.Account) error {
	q := `UPDATE accounts SET team_id=$2, secure_c_ses=$3, host_c_oses=$4, csesidx=$5, user_agent=$6, updated_at=$7 WHERE id=$1`
	tag, err := r.Pool.Exec(ctx, q, a.ID, a.TeamID, a.SecureCSes, a.HostCOses, a.CSesIdx, a.UserAgent, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("op=account.update: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("op=account.update id=%s: %w", a.ID, domain.ErrNotFound)
	}
	return nil
}

// Delete removes an account by id.
func (r *AccountRepo) Delete(ctx domain.Context, id string) error {
	tag, err := r.Pool.Exec(ctx, `DELETE FROM accounts WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("op=account.delete: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("op=account.delete id=%s: %w", id, domain.ErrNotFound)
	}
	return nil
}

// Get loads an account by id or returns ErrNotFound.
func (r *AccountRepo) Get(ctx domain.Context, id string) (domain.Account, error) {
	row := r.Pool.QueryRow(ctx, selectAccounts+` WHERE id=$1`, id)
	a, err := scanAccount(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Account{}, fmt.Errorf("op=account.get id=%s: %w", id, domain.ErrNotFound)
		}
		return domain.Account{}, fmt.Errorf("op=account.get: %w", err)
	}
	return a, nil
}

// List returns all accounts in creation order.
func (r *AccountRepo) List(ctx domain.Context) ([]domain.Account, error) {
	rows, err := r.Pool.Query(ctx, selectAccounts+` ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("op=account.list: %w", err)
	}
	defer rows.Close()
	return collectAccounts(rows)
}

// ListAvailable returns selection-eligible accounts in stable creation order.
func (r *AccountRepo) ListAvailable(ctx domain.Context) ([]domain.Account, error) {
	rows, err := r.Pool.Query(ctx, selectAccounts+` WHERE available ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("op=account.list_available: %w", err)
	}
	defer rows.Close()
	return collectAccounts(rows)
}

// SetAvailability toggles selection eligibility and records the reason.
// Idempotent: re-disabling an already disabled account only updates the reason.
func (r *AccountRepo) SetAvailability(ctx domain.Context, id string, available bool, reason string) error {
	q := `UPDATE accounts SET available=$2, unavailable_reason=$3, updated_at=$4 WHERE id=$1`
	tag, err := r.Pool.Exec(ctx, q, id, available, reason, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("op=account.set_availability: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("op=account.set_availability id=%s: %w", id, domain.ErrNotFound)
	}
	return nil
}

const selectAccounts = `SELECT id, team_id, secure_c_ses, host_c_oses, csesidx, user_agent, available, unavailable_reason, created_at, updated_at FROM accounts`

func scanAccount(row pgx.Row) (domain.Account, error) {
	var a domain.Account
	err := row.Scan(&a.ID, &a.TeamID, &a.SecureCSes, &a.HostCOses, &a.CSesIdx, &a.UserAgent, &a.Available, &a.UnavailableReason, &a.CreatedAt, &a.UpdatedAt)
	return a, err
}

func collectAccounts(rows pgx.Rows) ([]domain.Account, error) {
	out := []domain.Account{}
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("op=account.scan: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
