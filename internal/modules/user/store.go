// README: User directory backed by PostgreSQL (vehicles and zones stored as JSONB).
package user

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

type PostgresDirectory struct {
	db *pgxpool.Pool
}

func NewPostgresDirectory(db *pgxpool.Pool) *PostgresDirectory {
	return &PostgresDirectory{db: db}
}

const userColumns = `id, name, role, status, vehicles, zones,
	balance, earnings, currency, trip_count, device_token, commission_rate`

func (s *PostgresDirectory) Get(ctx context.Context, id types.ID) (*User, error) {
	row := s.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, string(id))
	u, err := scanUser(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return u, err
}

func (s *PostgresDirectory) Upsert(ctx context.Context, u *User) error {
	if err := u.Validate(); err != nil {
		return err
	}
	vehicles, err := json.Marshal(u.Vehicles)
	if err != nil {
		return err
	}
	zones, err := json.Marshal(u.Zones)
	if err != nil {
		return err
	}
	status := u.Status
	if status == "" {
		status = StatusActive
	}
	currency := u.Balance.Currency
	if currency == "" {
		currency = types.DefaultCurrency
	}
	// balances are never overwritten by an upsert; they move only through UpdateBalance
	_, err = s.db.Exec(ctx, `
		INSERT INTO users (id, name, role, status, vehicles, zones, balance, earnings, currency, trip_count, device_token, commission_rate)
		VALUES ($1, $2, $3, $4, $5, $6, 0, 0, $7, 0, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			role = EXCLUDED.role,
			status = EXCLUDED.status,
			vehicles = EXCLUDED.vehicles,
			zones = EXCLUDED.zones,
			device_token = EXCLUDED.device_token,
			commission_rate = EXCLUDED.commission_rate`,
		string(u.ID), u.Name, string(u.Role), string(status), vehicles, zones,
		currency, u.DeviceToken, u.CommissionRate,
	)
	return err
}

func (s *PostgresDirectory) UpdateBalance(ctx context.Context, d BalanceDelta) error {
	return ApplyDelta(ctx, s.db, d)
}

// Execer is satisfied by both *pgxpool.Pool and pgx.Tx so balance updates can
// join a caller's transaction.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func ApplyDelta(ctx context.Context, db Execer, d BalanceDelta) error {
	tag, err := db.Exec(ctx, `
		UPDATE users
		SET balance = balance + $1,
		    earnings = earnings + $2,
		    trip_count = trip_count + $3
		WHERE id = $4`,
		d.Balance.Amount, d.Earnings.Amount, d.Trips, string(d.UserID),
	)
	if err != nil {
		return fmt.Errorf("apply balance delta for %s: %w", d.UserID, err)
	}
	if tag.RowsAffected() != 1 {
		return fmt.Errorf("apply balance delta for %s: %w", d.UserID, ErrNotFound)
	}
	return nil
}

func (s *PostgresDirectory) UpdateStatus(ctx context.Context, id types.ID, status Status) error {
	tag, err := s.db.Exec(ctx, `UPDATE users SET status = $1 WHERE id = $2`, string(status), string(id))
	if err != nil {
		return err
	}
	if tag.RowsAffected() != 1 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresDirectory) ListByRole(ctx context.Context, role Role) ([]*User, error) {
	rows, err := s.db.Query(ctx, `SELECT `+userColumns+` FROM users WHERE role = $1 ORDER BY id`, string(role))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func scanUser(row pgx.Row) (*User, error) {
	var (
		u                 User
		vehicles, zones   []byte
		balance, earnings int64
		currency          string
	)
	err := row.Scan(
		&u.ID, &u.Name, &u.Role, &u.Status, &vehicles, &zones,
		&balance, &earnings, &currency, &u.TripCount, &u.DeviceToken, &u.CommissionRate,
	)
	if err != nil {
		return nil, err
	}
	if len(vehicles) > 0 {
		if err := json.Unmarshal(vehicles, &u.Vehicles); err != nil {
			return nil, fmt.Errorf("decode vehicles for %s: %w", u.ID, err)
		}
	}
	if len(zones) > 0 {
		if err := json.Unmarshal(zones, &u.Zones); err != nil {
			return nil, fmt.Errorf("decode zones for %s: %w", u.ID, err)
		}
	}
	u.Balance = types.Money{Amount: balance, Currency: currency}
	u.Earnings = types.Money{Amount: earnings, Currency: currency}
	return &u, nil
}
