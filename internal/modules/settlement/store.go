// README: Ledger backed by PostgreSQL; settlement writes can join a caller's transaction.
package settlement

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"transferhub/internal/modules/user"
	"transferhub/internal/types"
)

type PostgresLedger struct {
	db *pgxpool.Pool
}

func NewPostgresLedger(db *pgxpool.Pool) *PostgresLedger {
	return &PostgresLedger{db: db}
}

func (s *PostgresLedger) Apply(ctx context.Context, plan Plan) error {
	return pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
		return ApplyTx(ctx, tx, plan)
	})
}

// ApplyTx writes the plan inside tx. Used by the job store so the status
// flip and the settlement commit or roll back together.
func ApplyTx(ctx context.Context, tx pgx.Tx, plan Plan) error {
	for _, t := range plan.Transactions {
		if err := insertTransaction(ctx, tx, t); err != nil {
			return err
		}
	}
	for _, d := range plan.Deltas {
		if err := user.ApplyDelta(ctx, tx, d); err != nil {
			return err
		}
	}
	return nil
}

func (s *PostgresLedger) Debit(ctx context.Context, t Transaction) error {
	return pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE users SET balance = balance - $1
			WHERE id = $2 AND balance >= $1`,
			t.Amount.Amount, string(t.UserID),
		)
		if err != nil {
			return err
		}
		if tag.RowsAffected() != 1 {
			return ErrInsufficientBalance
		}
		return insertTransaction(ctx, tx, t)
	})
}

func (s *PostgresLedger) ListByUser(ctx context.Context, userID types.ID) ([]Transaction, error) {
	return s.list(ctx, `WHERE user_id = $1`, string(userID))
}

func (s *PostgresLedger) ListByJob(ctx context.Context, jobID types.ID) ([]Transaction, error) {
	return s.list(ctx, `WHERE job_id = $1`, string(jobID))
}

func (s *PostgresLedger) list(ctx context.Context, where string, arg string) ([]Transaction, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, user_id, kind, amount, currency, status, created_at, description, job_id
		FROM transactions `+where+`
		ORDER BY created_at, id`, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Transaction
	for rows.Next() {
		var (
			t     Transaction
			jobID *string
		)
		if err := rows.Scan(&t.ID, &t.UserID, &t.Kind, &t.Amount.Amount, &t.Amount.Currency,
			&t.Status, &t.CreatedAt, &t.Description, &jobID); err != nil {
			return nil, err
		}
		if jobID != nil {
			id := types.ID(*jobID)
			t.JobID = &id
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func insertTransaction(ctx context.Context, tx pgx.Tx, t Transaction) error {
	var jobID *string
	if t.JobID != nil {
		v := string(*t.JobID)
		jobID = &v
	}
	_, err := tx.Exec(ctx, `
		INSERT INTO transactions (id, user_id, kind, amount, currency, status, created_at, description, job_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		string(t.ID), string(t.UserID), string(t.Kind), t.Amount.Amount, t.Amount.Currency,
		string(t.Status), t.CreatedAt, t.Description, jobID,
	)
	if err != nil {
		return fmt.Errorf("insert %s transaction for %s: %w", t.Kind, t.UserID, err)
	}
	return nil
}
