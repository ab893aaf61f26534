package postgres

import (
	"fmt"
	"time"

	"github.com/fairyhunter13/gemini-pool-gateway/internal/domain"
	"github.com/jackc/pgx/v5"
)

// ModelRepo persists the models exposed by the OpenAI-compatible surface.
type ModelRepo struct{ Pool PgxPool }

// NewModelRepo constructs a ModelRepo with the given pool.
func NewModelRepo(p PgxPool) *ModelRepo { return &ModelRepo{Pool: p} }

// Create stores a new model.
func (r *ModelRepo) Create(ctx domain.Context, m domain.Model) error {
	q := `INSERT INTO models (id, name, enabled, created_at) VALUES ($1,$2,$3,$4)`
	if _, err := r.Pool.Exec(ctx, q, m.ID, m.Name, m.Enabled, time.Now().UTC()); err != nil {
		return fmt.Errorf("op=model.create: %w", err)
	}
	return nil
}

// Update replaces name and enabled flag.
func (r *ModelRepo) Update(ctx domain.Context, m domain.Model) error {
	tag, err := r.Pool.Exec(ctx, `UPDATE models SET name=$2, enabled=$3 WHERE id=$1`, m.ID, m.Name, m.Enabled)
	if err != nil {
		return fmt.Errorf("op=model.update: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("op=model.update id=%s: %w", m.ID, domain.ErrNotFound)
	}
	return nil
}

// Delete removes a model by id.
func (r *ModelRepo) Delete(ctx domain.Context, id string) error {
	tag, err := r.Pool.Exec(ctx, `DELETE FROM models WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("op=model.delete: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("op=model.delete id=%s: %w", id, domain.ErrNotFound)
	}
	return nil
}

// List returns all models in creation order.
func (r *ModelRepo) List(ctx domain.Context) ([]domain.Model, error) {
	rows, err := r.Pool.Query(ctx, `SELECT id, name, enabled, created_at FROM models ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("op=model.list: %w", err)
	}
	defer rows.Close()
	return collectModels(rows)
}

// ListEnabled returns only models currently exposed to clients.
func (r *ModelRepo) ListEnabled(ctx domain.Context) ([]domain.Model, error) {
	rows, err := r.Pool.Query(ctx, `SELECT id, name, enabled, created_at FROM models WHERE enabled ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("op=model.list_enabled: %w", err)
	}
	defer rows.Close()
	return collectModels(rows)
}

func collectModels(rows pgx.Rows) ([]domain.Model, error) {
	out := []domain.Model{}
	for rows.Next() {
		var m domain.Model
		if err := rows.Scan(&m.ID, &m.Name, &m.Enabled, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("op=model.scan: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
