// README: Pricing store backed by PostgreSQL; one row per config version.
package pricing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"transferhub/internal/types"
)

var ErrConfigNotFound = fmt.Errorf("pricing config: %w", types.ErrNotFound)

type Store struct {
	db *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

func (s *Store) Latest(ctx context.Context) (Config, error) {
	var (
		cfg  Config
		body []byte
	)
	err := s.db.QueryRow(ctx, `
		SELECT version, body, updated_at, COALESCE(updated_by, '')
		FROM pricing_configs
		ORDER BY version DESC
		LIMIT 1`,
	).Scan(&cfg.Version, &body, &cfg.UpdatedAt, &cfg.UpdatedBy)
	if errors.Is(err, pgx.ErrNoRows) {
		return Config{}, ErrConfigNotFound
	}
	if err != nil {
		return Config{}, err
	}
	version, updatedAt, updatedBy := cfg.Version, cfg.UpdatedAt, cfg.UpdatedBy
	if err := json.Unmarshal(body, &cfg); err != nil {
		return Config{}, fmt.Errorf("decode pricing config v%d: %w", version, err)
	}
	cfg.Version, cfg.UpdatedAt, cfg.UpdatedBy = version, updatedAt, updatedBy
	return cfg, nil
}

// Save inserts a new version. The primary key on version turns a lost
// race between two admins into a conflict.
func (s *Store) Save(ctx context.Context, cfg Config) error {
	body, err := json.Marshal(cfg)
	if err != nil {
		return err
	}
	var updatedBy *string
	if cfg.UpdatedBy != "" {
		v := string(cfg.UpdatedBy)
		updatedBy = &v
	}
	_, err = s.db.Exec(ctx, `
		INSERT INTO pricing_configs (version, body, updated_at, updated_by)
		VALUES ($1, $2, $3, $4)`,
		cfg.Version, body, cfg.UpdatedAt, updatedBy,
	)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return fmt.Errorf("pricing config v%d: %w", cfg.Version, types.ErrConflict)
	}
	return err
}

func isNotFound(err error) bool {
	return errors.Is(err, types.ErrNotFound)
}
