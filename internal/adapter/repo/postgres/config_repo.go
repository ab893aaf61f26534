package postgres

import (
	"errors"
	"fmt"
	"time"

	"github.com/fairyhunter13/gemini-pool-gateway/internal/domain"
	"github.com/jackc/pgx/v5"
)

// ConfigRepo persists the single operator-managed gateway configuration row.
type ConfigRepo struct{ Pool PgxPool }

// NewConfigRepo constructs a ConfigRepo with the given pool.
func NewConfigRepo(p PgxPool) *ConfigRepo { return &ConfigRepo{Pool: p} }

// Get loads the configuration. A missing row is an empty config, not an error.
func (r *ConfigRepo) Get(ctx domain.Context) (domain.GatewayConfig, error) {
	q := `SELECT proxy, image_base_url, upload_endpoint, upload_api_token FROM gateway_config WHERE id=1`
	row := r.Pool.QueryRow(ctx, q)
	var c domain.GatewayConfig
	if err := row.Scan(&c.Proxy, &c.ImageBaseURL, &c.UploadEndpoint, &c.UploadAPIToken); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.GatewayConfig{}, nil
		}
		return domain.GatewayConfig{}, fmt.Errorf("op=config.get: %w", err)
	}
	return c, nil
}

// Put upserts the configuration row.
func (r *ConfigRepo) Put(ctx domain.Context, c domain.GatewayConfig) error {
	q := `INSERT INTO gateway_config (id, proxy, image_base_url, upload_endpoint, upload_api_token, updated_at)
	      VALUES (1,$1,$2,$3,$4,$5)
	      ON CONFLICT (id) DO UPDATE SET
	        proxy = EXCLUDED.proxy,
	        image_base_url = EXCLUDED.image_base_url,
	        upload_endpoint = EXCLUDED.upload_endpoint,
	        upload_api_token = EXCLUDED.upload_api_token,
	        updated_at = EXCLUDED.updated_at`
	if _, err := r.Pool.Exec(ctx, q, c.Proxy, c.ImageBaseURL, c.UploadEndpoint, c.UploadAPIToken, time.Now().UTC()); err != nil {
		return fmt.Errorf("op=config.put: %w", err)
	}
	return nil
}
